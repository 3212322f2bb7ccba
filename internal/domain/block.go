package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserBlock is a directed block: BlockerID no longer accepts messages from BlockedUserID
// Maps to CockroachDB blocked_users table
type UserBlock struct {
	BlockerID     uuid.UUID `json:"blocker_id" db:"blocker_id"`
	BlockedUserID uuid.UUID `json:"blocked_user_id" db:"blocked_user_id"`
	Reason        string    `json:"reason,omitempty" db:"reason"`
	BlockedAt     time.Time `json:"blocked_at" db:"blocked_at"`
}
