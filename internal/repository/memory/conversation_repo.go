package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
)

type conversationRecord struct {
	conv        *domain.Conversation
	readThrough map[uuid.UUID]domain.MessageCursor
}

// ConversationRepository keeps conversations in process memory.
// A signature index of active conversations makes find-or-create atomic.
type ConversationRepository struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]*conversationRecord
	activeBySig map[string]uuid.UUID
	byUser      map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewConversationRepository creates an empty conversation store
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byID:        make(map[uuid.UUID]*conversationRecord),
		activeBySig: make(map[string]uuid.UUID),
		byUser:      make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// FindOrCreate stores conversation unless an active one with the same signature exists,
// in which case the existing one is returned with created=false
func (r *ConversationRepository) FindOrCreate(ctx context.Context, conversation *domain.Conversation) (*domain.Conversation, bool, error) {
	sig := conversation.Signature()

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.activeBySig[sig]; ok {
		return cloneConversation(r.byID[id].conv), false, nil
	}

	stored := cloneConversation(conversation)
	r.byID[stored.ConversationID] = &conversationRecord{
		conv:        stored,
		readThrough: make(map[uuid.UUID]domain.MessageCursor),
	}
	r.activeBySig[sig] = stored.ConversationID
	for _, userID := range stored.Participants {
		if r.byUser[userID] == nil {
			r.byUser[userID] = make(map[uuid.UUID]struct{})
		}
		r.byUser[userID][stored.ConversationID] = struct{}{}
	}

	return cloneConversation(stored), true, nil
}

// GetByID retrieves a conversation
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[conversationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneConversation(rec.conv), nil
}

// RecordMessage applies one accepted message to the counters
func (r *ConversationRepository) RecordMessage(ctx context.Context, conversationID, senderID, messageID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[conversationID]
	if !ok {
		return domain.ErrNotFound
	}

	c := rec.conv
	if c.LastMessageID != nil && *c.LastMessageID == messageID {
		return nil
	}
	c.MessageCount++
	c.LastMessageID = &messageID
	c.LastMessageAt = &at
	c.UpdatedAt = time.Now()
	for _, userID := range c.Participants {
		if userID == senderID {
			c.UnreadCount[userID] = 0
			continue
		}
		c.UnreadCount[userID]++
	}

	return nil
}

// MarkRead zeroes the reader's unread count unless through is not newer than the stored watermark
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, through domain.MessageCursor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[conversationID]
	if !ok || !rec.conv.HasParticipant(readerID) {
		return false, domain.ErrNotFound
	}

	if prev, ok := rec.readThrough[readerID]; ok && !cursorAfter(through, prev) {
		return false, nil
	}

	rec.readThrough[readerID] = through
	rec.conv.UnreadCount[readerID] = 0
	return true, nil
}

// ListForUser returns the user's conversations by activity, newest first, strictly after cursor
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID, after *domain.ConversationCursor, limit int) ([]*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := make([]*domain.Conversation, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		c := r.byID[id].conv
		if !c.IsActive {
			continue
		}
		if after != nil && !activityBefore(c, after) {
			continue
		}
		convs = append(convs, c)
	}

	sort.Slice(convs, func(i, j int) bool {
		ai, aj := convs[i].ActivityAt(), convs[j].ActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return convs[i].ConversationID.String() > convs[j].ConversationID.String()
	})

	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	out := make([]*domain.Conversation, len(convs))
	for i, c := range convs {
		out[i] = cloneConversation(c)
	}
	return out, nil
}

// Archive deactivates a conversation, freeing its signature for a new one
func (r *ConversationRepository) Archive(ctx context.Context, conversationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[conversationID]
	if !ok {
		return domain.ErrNotFound
	}
	if !rec.conv.IsActive {
		return nil
	}
	rec.conv.IsActive = false
	rec.conv.UpdatedAt = time.Now()
	delete(r.activeBySig, rec.conv.Signature())
	return nil
}

// Counterparts lists users sharing at least one active conversation with userID
func (r *ConversationRepository) Counterparts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for id := range r.byUser[userID] {
		c := r.byID[id].conv
		if !c.IsActive {
			continue
		}
		for _, other := range c.Participants {
			if other == userID {
				continue
			}
			if _, dup := seen[other]; dup {
				continue
			}
			seen[other] = struct{}{}
			out = append(out, other)
		}
	}
	return out, nil
}

// ConversationIDsForUser lists every conversation the user belongs to, archived ones included
func (r *ConversationRepository) ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		out = append(out, id)
	}
	return out, nil
}

func activityBefore(c *domain.Conversation, cur *domain.ConversationCursor) bool {
	at := c.ActivityAt()
	if !at.Equal(cur.ActivityAt) {
		return at.Before(cur.ActivityAt)
	}
	return c.ConversationID.String() < cur.ConversationID.String()
}

func cursorAfter(a, b domain.MessageCursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.MessageID.String() > b.MessageID.String()
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Participants = append([]uuid.UUID{}, c.Participants...)
	cp.ParticipantRoles = make(map[uuid.UUID]domain.Role, len(c.ParticipantRoles))
	for k, v := range c.ParticipantRoles {
		cp.ParticipantRoles[k] = v
	}
	cp.UnreadCount = make(map[uuid.UUID]int64, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		cp.LastMessageID = &id
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		cp.LastMessageAt = &at
	}
	return &cp
}
