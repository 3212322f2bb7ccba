// Package cassandra stores conversation messages in Cassandra.
// Messages are partitioned by (conversation_id, monthly bucket) and clustered by
// (created_at, message_id), which is the conversation order.
package cassandra

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"travelchat-backend/internal/database"
	"travelchat-backend/internal/domain"
	"travelchat-backend/pkg/metrics"
)

//go:embed schema.cql
var schema string

// Migrate creates the message tables in the session keyspace
func Migrate(ctx context.Context, db *database.CassandraDB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.ExecWithContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply cassandra schema: %w", err)
		}
	}
	return nil
}

// Bucket returns the monthly partition bucket of t, e.g. 202606
func Bucket(t time.Time) int {
	t = t.UTC()
	return t.Year()*100 + int(t.Month())
}

// MessageRepository handles message storage in Cassandra
type MessageRepository struct {
	db *database.CassandraDB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *database.CassandraDB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `conversation_id, bucket, created_at, message_id, sender_id, sender_role, message_type,
	content, attachments, reply_to_id, read_at, is_flagged, flag_reason, flagged_by, flagged_at,
	moderation_status, moderated_by, moderated_at`

type messageKey struct {
	conversationID gocql.UUID
	bucket         int
	createdAt      time.Time
	messageID      gocql.UUID
}

// Save inserts a new message and its lookup rows
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) (err error) {
	defer func(start time.Time) { observe("message_save", start, err) }(time.Now())

	bucket := Bucket(message.CreatedAt)
	convID := gocql.UUID(message.ConversationID)
	msgID := gocql.UUID(message.MessageID)
	senderID := gocql.UUID(message.SenderID)

	batch := r.db.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages (
			conversation_id, bucket, created_at, message_id, sender_id, sender_role, message_type,
			content, attachments, reply_to_id, is_flagged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false)`,
		convID, bucket, message.CreatedAt, msgID, senderID, string(message.SenderRole),
		string(message.Type), message.Content, message.Attachments, toNullable(message.ReplyToID),
	)
	batch.Query(`INSERT INTO messages_by_id (message_id, conversation_id, bucket, created_at) VALUES (?, ?, ?, ?)`,
		msgID, convID, bucket, message.CreatedAt)
	batch.Query(`INSERT INTO messages_by_sender (sender_id, conversation_id, message_id, bucket, created_at) VALUES (?, ?, ?, ?, ?)`,
		senderID, convID, msgID, bucket, message.CreatedAt)
	batch.Query(`INSERT INTO conversation_buckets (conversation_id, bucket) VALUES (?, ?)`, convID, bucket)

	if err := r.db.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetByID retrieves a message through the id lookup table
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (msg *domain.Message, err error) {
	defer func(start time.Time) { observe("message_get", start, err) }(time.Now())

	key, err := r.resolve(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, key)
}

// List returns up to query.Limit messages strictly after query.After in the walk direction,
// walking bucket partitions in order
func (r *MessageRepository) List(ctx context.Context, query domain.HistoryQuery) (out []*domain.Message, err error) {
	defer func(start time.Time) { observe("message_list", start, err) }(time.Now())

	buckets, err := r.buckets(ctx, query.ConversationID)
	if err != nil {
		return nil, err
	}
	backward := query.Direction == domain.HistoryBackward
	if backward {
		sort.Sort(sort.Reverse(sort.IntSlice(buckets)))
	}

	convID := gocql.UUID(query.ConversationID)
	out = make([]*domain.Message, 0, query.Limit)
	for _, bucket := range buckets {
		if query.After != nil {
			cursorBucket := Bucket(query.After.CreatedAt)
			if (!backward && bucket < cursorBucket) || (backward && bucket > cursorBucket) {
				continue
			}
		}

		stmt := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? AND bucket = ?`
		args := []interface{}{convID, bucket}
		if query.After != nil {
			op := ">"
			if backward {
				op = "<"
			}
			stmt += ` AND (created_at, message_id) ` + op + ` (?, ?)`
			args = append(args, query.After.CreatedAt, gocql.UUID(query.After.MessageID))
		}
		if backward {
			stmt += ` ORDER BY created_at DESC, message_id DESC`
		}
		stmt += ` LIMIT ?`
		args = append(args, query.Limit-len(out))

		page, err := r.scanAll(r.db.QueryWithContext(ctx, stmt, args...).Iter())
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(out) >= query.Limit {
			break
		}
	}
	return out, nil
}

// MarkRead adds readerID to the read set with a lightweight transaction so the
// first read timestamp wins. A repeated read returns the stored timestamp with applied=false.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, readerID uuid.UUID, at time.Time) (readAt time.Time, applied bool, err error) {
	defer func(start time.Time) { observe("message_mark_read", start, err) }(time.Now())

	key, err := r.resolve(ctx, messageID)
	if err != nil {
		return time.Time{}, false, err
	}

	reader := gocql.UUID(readerID)
	applied, err = r.db.QueryWithContext(ctx, `
		UPDATE messages SET read_at[?] = ?
		WHERE conversation_id = ? AND bucket = ? AND created_at = ? AND message_id = ?
		IF read_at[?] = null`,
		reader, at, key.conversationID, key.bucket, key.createdAt, key.messageID, reader,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to mark message read: %w", err)
	}
	if applied {
		return at, true, nil
	}

	msg, err := r.load(ctx, key)
	if err != nil {
		return time.Time{}, false, err
	}
	return msg.ReadAt[readerID], false, nil
}

// SetFlag records or refreshes the single flag of a message
func (r *MessageRepository) SetFlag(ctx context.Context, messageID, flaggedBy uuid.UUID, reason string, at time.Time) (err error) {
	defer func(start time.Time) { observe("message_flag", start, err) }(time.Now())

	key, err := r.resolve(ctx, messageID)
	if err != nil {
		return err
	}
	err = r.db.ExecWithContext(ctx, `
		UPDATE messages SET is_flagged = true, flag_reason = ?, flagged_by = ?, flagged_at = ?
		WHERE conversation_id = ? AND bucket = ? AND created_at = ? AND message_id = ?`,
		reason, gocql.UUID(flaggedBy), at, key.conversationID, key.bucket, key.createdAt, key.messageID)
	if err != nil {
		return fmt.Errorf("failed to flag message: %w", err)
	}
	return nil
}

// SetModeration records a moderator's resolution and clears the flag
func (r *MessageRepository) SetModeration(ctx context.Context, messageID, moderatorID uuid.UUID, status domain.ModerationStatus, at time.Time) (err error) {
	defer func(start time.Time) { observe("message_moderate", start, err) }(time.Now())

	key, err := r.resolve(ctx, messageID)
	if err != nil {
		return err
	}
	err = r.db.ExecWithContext(ctx, `
		UPDATE messages SET is_flagged = false, moderation_status = ?, moderated_by = ?, moderated_at = ?
		WHERE conversation_id = ? AND bucket = ? AND created_at = ? AND message_id = ?`,
		string(status), gocql.UUID(moderatorID), at, key.conversationID, key.bucket, key.createdAt, key.messageID)
	if err != nil {
		return fmt.Errorf("failed to moderate message: %w", err)
	}
	return nil
}

// DeleteBySender removes every message senderID wrote in the given conversations
func (r *MessageRepository) DeleteBySender(ctx context.Context, senderID uuid.UUID, conversationIDs []uuid.UUID) (deleted int, err error) {
	defer func(start time.Time) { observe("message_delete_sender", start, err) }(time.Now())

	sender := gocql.UUID(senderID)
	for _, id := range conversationIDs {
		convID := gocql.UUID(id)
		iter := r.db.QueryWithContext(ctx, `
			SELECT message_id, bucket, created_at FROM messages_by_sender
			WHERE sender_id = ? AND conversation_id = ?`, sender, convID).Iter()

		var keys []messageKey
		var msgID gocql.UUID
		var bucket int
		var createdAt time.Time
		for iter.Scan(&msgID, &bucket, &createdAt) {
			keys = append(keys, messageKey{conversationID: convID, bucket: bucket, createdAt: createdAt, messageID: msgID})
		}
		if err := iter.Close(); err != nil {
			return deleted, fmt.Errorf("failed to list sender messages: %w", err)
		}

		for _, k := range keys {
			batch := r.db.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
			batch.Query(`DELETE FROM messages WHERE conversation_id = ? AND bucket = ? AND created_at = ? AND message_id = ?`,
				k.conversationID, k.bucket, k.createdAt, k.messageID)
			batch.Query(`DELETE FROM messages_by_id WHERE message_id = ?`, k.messageID)
			batch.Query(`DELETE FROM messages_by_sender WHERE sender_id = ? AND conversation_id = ? AND message_id = ?`,
				sender, k.conversationID, k.messageID)
			if err := r.db.Session.ExecuteBatch(batch); err != nil {
				return deleted, fmt.Errorf("failed to delete message: %w", err)
			}
			deleted++
		}
	}
	return deleted, nil
}

func (r *MessageRepository) resolve(ctx context.Context, messageID uuid.UUID) (messageKey, error) {
	key := messageKey{messageID: gocql.UUID(messageID)}
	err := r.db.QueryWithContext(ctx,
		`SELECT conversation_id, bucket, created_at FROM messages_by_id WHERE message_id = ?`, key.messageID,
	).Scan(&key.conversationID, &key.bucket, &key.createdAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return key, domain.ErrNotFound
		}
		return key, fmt.Errorf("failed to resolve message: %w", err)
	}
	return key, nil
}

func (r *MessageRepository) load(ctx context.Context, key messageKey) (*domain.Message, error) {
	msgs, err := r.scanAll(r.db.QueryWithContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND bucket = ? AND created_at = ? AND message_id = ?`,
		key.conversationID, key.bucket, key.createdAt, key.messageID,
	).Iter())
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.ErrNotFound
	}
	return msgs[0], nil
}

func (r *MessageRepository) buckets(ctx context.Context, conversationID uuid.UUID) ([]int, error) {
	iter := r.db.QueryWithContext(ctx,
		`SELECT bucket FROM conversation_buckets WHERE conversation_id = ?`, gocql.UUID(conversationID)).Iter()

	var buckets []int
	var b int
	for iter.Scan(&b) {
		buckets = append(buckets, b)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	return buckets, nil
}

func (r *MessageRepository) scanAll(iter *gocql.Iter) ([]*domain.Message, error) {
	var out []*domain.Message
	for {
		var (
			convID, msgID, senderID         gocql.UUID
			bucket                          int
			role, msgType, status           string
			replyTo, flaggedBy, moderatedBy *gocql.UUID
			flaggedAt, moderatedAt          *time.Time
			readAt                          map[gocql.UUID]time.Time
		)
		m := &domain.Message{}
		if !iter.Scan(
			&convID, &bucket, &m.CreatedAt, &msgID, &senderID, &role, &msgType,
			&m.Content, &m.Attachments, &replyTo, &readAt, &m.IsFlagged, &m.FlagReason, &flaggedBy, &flaggedAt,
			&status, &moderatedBy, &moderatedAt,
		) {
			break
		}

		m.ConversationID = uuid.UUID(convID)
		m.MessageID = uuid.UUID(msgID)
		m.SenderID = uuid.UUID(senderID)
		m.SenderRole = domain.Role(role)
		m.Type = domain.MessageType(msgType)
		m.ModerationStatus = domain.ModerationStatus(status)
		m.ReplyToID = fromNullable(replyTo)
		m.FlaggedBy = fromNullable(flaggedBy)
		m.ModeratedBy = fromNullable(moderatedBy)
		m.FlaggedAt = flaggedAt
		m.ModeratedAt = moderatedAt
		if m.Attachments == nil {
			m.Attachments = []string{}
		}
		applyReads(m, readAt)

		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}

// applyReads fills ReadAt and ReadBy, ordering readers by read time
func applyReads(m *domain.Message, readAt map[gocql.UUID]time.Time) {
	m.ReadAt = make(map[uuid.UUID]time.Time, len(readAt))
	m.ReadBy = make([]uuid.UUID, 0, len(readAt))
	for id, at := range readAt {
		m.ReadAt[uuid.UUID(id)] = at
		m.ReadBy = append(m.ReadBy, uuid.UUID(id))
	}
	sort.Slice(m.ReadBy, func(i, j int) bool {
		return m.ReadAt[m.ReadBy[i]].Before(m.ReadAt[m.ReadBy[j]])
	})
	m.IsRead = len(m.ReadBy) > 0
}

func toNullable(id *uuid.UUID) *gocql.UUID {
	if id == nil {
		return nil
	}
	v := gocql.UUID(*id)
	return &v
}

func fromNullable(id *gocql.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := uuid.UUID(*id)
	return &v
}

func observe(operation string, start time.Time, err error) {
	metrics.RecordStoreQuery("cassandra", operation, start, err)
}
