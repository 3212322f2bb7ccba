package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversationType classifies a conversation
type ConversationType string

const (
	ConversationTypeCustomerProvider ConversationType = "CUSTOMER_PROVIDER"
	ConversationTypeSupport          ConversationType = "SUPPORT"
)

// Valid reports whether t is a known conversation type
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationTypeCustomerProvider, ConversationTypeSupport:
		return true
	}
	return false
}

// Conversation represents a conversation between two or more marketplace users
// Maps to CockroachDB conversations + conversation_participants tables
type Conversation struct {
	ConversationID   uuid.UUID           `json:"conversation_id" db:"conversation_id"`
	Type             ConversationType    `json:"type" db:"type"`
	Participants     []uuid.UUID         `json:"participants"` // sorted
	ParticipantRoles map[uuid.UUID]Role  `json:"participant_roles"`
	IsActive         bool                `json:"is_active" db:"is_active"`
	MessageCount     int64               `json:"message_count" db:"message_count"`
	UnreadCount      map[uuid.UUID]int64 `json:"unread_count"`
	LastMessageID    *uuid.UUID          `json:"last_message_id,omitempty" db:"last_message_id"`
	LastMessageAt    *time.Time          `json:"last_message_at,omitempty" db:"last_message_at"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID
func (c *Conversation) Others(userID uuid.UUID) []uuid.UUID {
	others := make([]uuid.UUID, 0, len(c.Participants))
	for _, id := range c.Participants {
		if id != userID {
			others = append(others, id)
		}
	}
	return others
}

// ActivityAt is the inbox ordering key: last message time, or creation time for empty conversations
func (c *Conversation) ActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Signature returns the canonical uniqueness key of the conversation
func (c *Conversation) Signature() string {
	return ParticipantSignature(c.Type, c.Participants)
}

// SortParticipants returns a sorted copy of ids
func SortParticipants(ids []uuid.UUID) []uuid.UUID {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}

// ParticipantSignature builds "TYPE:id1,id2,..." over the sorted participant set.
// Two conversations with the same signature must never both be active.
func ParticipantSignature(t ConversationType, ids []uuid.UUID) string {
	sorted := SortParticipants(ids)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = id.String()
	}
	return string(t) + ":" + strings.Join(parts, ",")
}

// ConversationCreate represents a find-or-create request
type ConversationCreate struct {
	Type             ConversationType
	ParticipantIDs   []uuid.UUID
	ParticipantRoles map[uuid.UUID]Role
}

// ConversationCursor positions inbox pagination at (activity time, id)
type ConversationCursor struct {
	ActivityAt     time.Time `json:"t"`
	ConversationID uuid.UUID `json:"id"`
}

// ConversationPage is one page of a user's inbox
type ConversationPage struct {
	Conversations []*Conversation `json:"conversations"`
	NextCursor    string          `json:"next_cursor,omitempty"`
	HasMore       bool            `json:"has_more"`
}
