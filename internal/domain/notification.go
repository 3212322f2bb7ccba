package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notification
type NotificationType string

const (
	NotificationTypeMessage NotificationType = "MESSAGE"
	NotificationTypeReview  NotificationType = "REVIEW"
	NotificationTypeSystem  NotificationType = "SYSTEM"
)

// Notification represents a user notification
// Maps to CockroachDB notifications table
type Notification struct {
	NotificationID uuid.UUID              `json:"notification_id" db:"notification_id"`
	UserID         uuid.UUID              `json:"user_id" db:"user_id"`
	Type           NotificationType       `json:"type" db:"type"`
	Title          string                 `json:"title" db:"title"`
	Message        string                 `json:"message" db:"message"`
	Data           map[string]interface{} `json:"data,omitempty" db:"data"`
	IsRead         bool                   `json:"is_read" db:"is_read"`
	IsPushed       bool                   `json:"is_pushed" db:"is_pushed"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
	ReadAt         *time.Time             `json:"read_at,omitempty" db:"read_at"`
}

// NotificationCreate represents data needed to create a notification
type NotificationCreate struct {
	UserID  uuid.UUID
	Type    NotificationType
	Title   string
	Message string
	Data    map[string]interface{}
}

// NotificationListResponse represents paginated notification list
type NotificationListResponse struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
	TotalCount    int             `json:"total_count"`
	HasMore       bool            `json:"has_more"`
}

// RetentionPolicy bounds how long notifications are kept
type RetentionPolicy struct {
	ReadOlderThan   time.Duration
	UnreadOlderThan time.Duration
}

// DefaultRetention purges read notifications after 30 days and unread ones after 90
var DefaultRetention = RetentionPolicy{
	ReadOlderThan:   30 * 24 * time.Hour,
	UnreadOlderThan: 90 * 24 * time.Hour,
}
