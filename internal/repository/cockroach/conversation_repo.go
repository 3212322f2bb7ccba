package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"travelchat-backend/internal/domain"
)

// ConversationRepository handles conversation operations.
// Uniqueness of active conversations is enforced by a partial unique index on signature.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

const conversationColumns = `conversation_id, type, is_active, message_count, last_message_id, last_message_at, created_at, updated_at`

// FindOrCreate inserts conversation unless an active one with the same participant
// signature exists, in which case that one is returned with created=false.
// Contention surfaces as domain.ErrConflict.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, conversation *domain.Conversation) (result *domain.Conversation, created bool, err error) {
	defer func(start time.Time) { observe("conversation_find_or_create", start, err) }(time.Now())

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sig := conversation.Signature()
	tag, err := tx.Exec(ctx, `
		INSERT INTO conversations (conversation_id, type, signature, is_active, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, true, 0, $4, $5)
		ON CONFLICT (signature) WHERE is_active DO NOTHING
	`, conversation.ConversationID, conversation.Type, sig, conversation.CreatedAt, conversation.UpdatedAt)
	if err != nil {
		return nil, false, classify(fmt.Errorf("failed to create conversation: %w", err))
	}

	if tag.RowsAffected() == 0 {
		var existingID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT conversation_id FROM conversations WHERE signature = $1 AND is_active`, sig,
		).Scan(&existingID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// archived between our insert and select
				return nil, false, domain.ErrConflict
			}
			return nil, false, classify(fmt.Errorf("failed to load existing conversation: %w", err))
		}
		existing, err := r.get(ctx, tx, existingID)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, classify(fmt.Errorf("failed to commit: %w", err))
		}
		return existing, false, nil
	}

	batch := &pgx.Batch{}
	for _, userID := range conversation.Participants {
		batch.Queue(`
			INSERT INTO conversation_participants (conversation_id, user_id, role, unread_count, joined_at)
			VALUES ($1, $2, $3, 0, $4)
		`, conversation.ConversationID, userID, conversation.ParticipantRoles[userID], conversation.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, false, classify(fmt.Errorf("failed to add participants: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, classify(fmt.Errorf("failed to commit: %w", err))
	}
	return conversation, true, nil
}

// GetByID retrieves a conversation with its participants
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (conv *domain.Conversation, err error) {
	defer func(start time.Time) { observe("conversation_get", start, err) }(time.Now())
	return r.get(ctx, r.pool, conversationID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *ConversationRepository) get(ctx context.Context, q querier, conversationID uuid.UUID) (*domain.Conversation, error) {
	row := q.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = $1`, conversationID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	byID := map[uuid.UUID]*domain.Conversation{conv.ConversationID: conv}
	if err := loadParticipants(ctx, q, byID); err != nil {
		return nil, err
	}
	return conv, nil
}

// RecordMessage bumps the message count, moves the last-message pointer and
// increments unread for every participant except the sender
func (r *ConversationRepository) RecordMessage(ctx context.Context, conversationID, senderID, messageID uuid.UUID, at time.Time) (err error) {
	defer func(start time.Time) { observe("conversation_record_message", start, err) }(time.Now())

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE conversations
			SET message_count = message_count + 1, last_message_id = $2, last_message_at = $3, updated_at = now()
			WHERE conversation_id = $1 AND last_message_id IS DISTINCT FROM $2
		`, conversationID, messageID, at)
		if err != nil {
			return classify(fmt.Errorf("failed to update conversation: %w", err))
		}
		if tag.RowsAffected() == 0 {
			// Either unknown, or already recorded by an attempt whose commit reply was lost.
			var exists bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM conversations WHERE conversation_id = $1)
			`, conversationID).Scan(&exists); err != nil {
				return classify(fmt.Errorf("failed to check conversation: %w", err))
			}
			if !exists {
				return domain.ErrNotFound
			}
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE conversation_participants
			SET unread_count = CASE WHEN user_id = $2 THEN 0 ELSE unread_count + 1 END
			WHERE conversation_id = $1
		`, conversationID, senderID)
		if err != nil {
			return classify(fmt.Errorf("failed to update unread counts: %w", err))
		}
		return nil
	})
}

// MarkRead zeroes the reader's unread count when through is newer than the stored watermark
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, through domain.MessageCursor) (applied bool, err error) {
	defer func(start time.Time) { observe("conversation_mark_read", start, err) }(time.Now())

	tag, err := r.pool.Exec(ctx, `
		UPDATE conversation_participants
		SET unread_count = 0, read_through_at = $3, read_through_id = $4
		WHERE conversation_id = $1 AND user_id = $2
		  AND (read_through_at IS NULL OR (read_through_at, read_through_id) < ($3, $4))
	`, conversationID, readerID, through.CreatedAt, through.MessageID)
	if err != nil {
		return false, classify(fmt.Errorf("failed to mark conversation read: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)
	`, conversationID, readerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

// ListForUser returns the user's active conversations by activity, newest first, strictly after cursor
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID, after *domain.ConversationCursor, limit int) (convs []*domain.Conversation, err error) {
	defer func(start time.Time) { observe("conversation_list", start, err) }(time.Now())

	var afterAt *time.Time
	var afterID *uuid.UUID
	if after != nil {
		afterAt, afterID = &after.ActivityAt, &after.ConversationID
	}

	rows, err := r.pool.Query(ctx, `
		SELECT c.conversation_id, c.type, c.is_active, c.message_count, c.last_message_id, c.last_message_at, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.conversation_id
		WHERE p.user_id = $1 AND c.is_active
		  AND ($2::TIMESTAMPTZ IS NULL OR (COALESCE(c.last_message_at, c.created_at), c.conversation_id) < ($2::TIMESTAMPTZ, $3::UUID))
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.conversation_id DESC
		LIMIT $4
	`, userID, afterAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*domain.Conversation)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
		byID[conv.ConversationID] = conv
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	if err := loadParticipants(ctx, r.pool, byID); err != nil {
		return nil, err
	}
	return convs, nil
}

// Archive deactivates a conversation, freeing its signature for a new one
func (r *ConversationRepository) Archive(ctx context.Context, conversationID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("conversation_archive", start, err) }(time.Now())

	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET is_active = false, updated_at = now() WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return classify(fmt.Errorf("failed to archive conversation: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Counterparts lists users sharing at least one active conversation with userID
func (r *ConversationRepository) Counterparts(ctx context.Context, userID uuid.UUID) (ids []uuid.UUID, err error) {
	defer func(start time.Time) { observe("conversation_counterparts", start, err) }(time.Now())

	return r.collectIDs(ctx, `
		SELECT DISTINCT other.user_id
		FROM conversation_participants me
		JOIN conversations c ON c.conversation_id = me.conversation_id AND c.is_active
		JOIN conversation_participants other ON other.conversation_id = me.conversation_id AND other.user_id <> me.user_id
		WHERE me.user_id = $1
	`, userID)
}

// ConversationIDsForUser lists every conversation the user belongs to, archived ones included
func (r *ConversationRepository) ConversationIDsForUser(ctx context.Context, userID uuid.UUID) (ids []uuid.UUID, err error) {
	defer func(start time.Time) { observe("conversation_ids_for_user", start, err) }(time.Now())

	return r.collectIDs(ctx, `SELECT conversation_id FROM conversation_participants WHERE user_id = $1`, userID)
}

func (r *ConversationRepository) collectIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan ids: %w", err)
	}
	return ids, nil
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ParticipantRoles: make(map[uuid.UUID]domain.Role),
		UnreadCount:      make(map[uuid.UUID]int64),
	}
	err := row.Scan(
		&c.ConversationID,
		&c.Type,
		&c.IsActive,
		&c.MessageCount,
		&c.LastMessageID,
		&c.LastMessageAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// loadParticipants fills participants, roles and unread counts for every conversation in byID
func loadParticipants(ctx context.Context, q querier, byID map[uuid.UUID]*domain.Conversation) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := q.Query(ctx, `
		SELECT conversation_id, user_id, role, unread_count
		FROM conversation_participants
		WHERE conversation_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var convID, userID uuid.UUID
		var role domain.Role
		var unread int64
		if err := rows.Scan(&convID, &userID, &role, &unread); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		c := byID[convID]
		c.Participants = append(c.Participants, userID)
		c.ParticipantRoles[userID] = role
		c.UnreadCount[userID] = unread
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate participants: %w", err)
	}

	for _, c := range byID {
		c.Participants = domain.SortParticipants(c.Participants)
	}
	return nil
}
