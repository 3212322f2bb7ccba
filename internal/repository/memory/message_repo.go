package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
)

// MessageRepository keeps messages per conversation in (created_at, message_id) order
type MessageRepository struct {
	mu             sync.RWMutex
	byConversation map[uuid.UUID][]*domain.Message
	byID           map[uuid.UUID]*domain.Message
}

// NewMessageRepository creates an empty message store
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		byConversation: make(map[uuid.UUID][]*domain.Message),
		byID:           make(map[uuid.UUID]*domain.Message),
	}
}

// Save stores a new message
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[message.MessageID]; exists {
		return domain.ErrAlreadyExists
	}

	stored := message.Clone()
	msgs := r.byConversation[stored.ConversationID]
	i := sort.Search(len(msgs), func(i int) bool { return stored.Before(msgs[i]) })
	msgs = append(msgs, nil)
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = stored
	r.byConversation[stored.ConversationID] = msgs
	r.byID[stored.MessageID] = stored
	return nil
}

// GetByID retrieves a message
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.Clone(), nil
}

// List returns up to query.Limit messages strictly after query.After in the walk direction
func (r *MessageRepository) List(ctx context.Context, query domain.HistoryQuery) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.byConversation[query.ConversationID]
	out := make([]*domain.Message, 0, query.Limit)

	if query.Direction == domain.HistoryBackward {
		for i := len(msgs) - 1; i >= 0 && len(out) < query.Limit; i-- {
			if query.After != nil && !before(msgs[i], query.After) {
				continue
			}
			out = append(out, msgs[i].Clone())
		}
		return out, nil
	}

	for _, m := range msgs {
		if len(out) >= query.Limit {
			break
		}
		if query.After != nil && !after(m, query.After) {
			continue
		}
		out = append(out, m.Clone())
	}
	return out, nil
}

// MarkRead adds readerID to the read set. The first read timestamp wins; a repeated read
// returns the stored timestamp with applied=false.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, readerID uuid.UUID, at time.Time) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[messageID]
	if !ok {
		return time.Time{}, false, domain.ErrNotFound
	}
	if prev, ok := m.ReadAt[readerID]; ok {
		return prev, false, nil
	}

	if m.ReadAt == nil {
		m.ReadAt = make(map[uuid.UUID]time.Time)
	}
	m.ReadAt[readerID] = at
	m.ReadBy = append(m.ReadBy, readerID)
	m.IsRead = true
	return at, true, nil
}

// SetFlag records or refreshes the single flag of a message
func (r *MessageRepository) SetFlag(ctx context.Context, messageID, flaggedBy uuid.UUID, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	m.IsFlagged = true
	m.FlagReason = reason
	m.FlaggedBy = &flaggedBy
	m.FlaggedAt = &at
	return nil
}

// SetModeration records a moderator's resolution and clears the flag
func (r *MessageRepository) SetModeration(ctx context.Context, messageID, moderatorID uuid.UUID, status domain.ModerationStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	m.IsFlagged = false
	m.ModerationStatus = status
	m.ModeratedBy = &moderatorID
	m.ModeratedAt = &at
	return nil
}

// DeleteBySender removes every message senderID wrote in the given conversations
func (r *MessageRepository) DeleteBySender(ctx context.Context, senderID uuid.UUID, conversationIDs []uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for _, convID := range conversationIDs {
		msgs := r.byConversation[convID]
		kept := msgs[:0]
		for _, m := range msgs {
			if m.SenderID == senderID {
				delete(r.byID, m.MessageID)
				deleted++
				continue
			}
			kept = append(kept, m)
		}
		r.byConversation[convID] = kept
	}
	return deleted, nil
}

func after(m *domain.Message, cur *domain.MessageCursor) bool {
	if !m.CreatedAt.Equal(cur.CreatedAt) {
		return m.CreatedAt.After(cur.CreatedAt)
	}
	return m.MessageID.String() > cur.MessageID.String()
}

func before(m *domain.Message, cur *domain.MessageCursor) bool {
	if !m.CreatedAt.Equal(cur.CreatedAt) {
		return m.CreatedAt.Before(cur.CreatedAt)
	}
	return m.MessageID.String() < cur.MessageID.String()
}
