package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
)

// NotificationRepository keeps notifications in memory
type NotificationRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*domain.Notification
	now   func() time.Time
}

// NewNotificationRepository creates an empty notification store
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		items: make(map[uuid.UUID]*domain.Notification),
		now:   time.Now,
	}
}

// Create stores a notification for create.UserID
func (r *NotificationRepository) Create(ctx context.Context, create *domain.NotificationCreate) (*domain.Notification, error) {
	n := &domain.Notification{
		NotificationID: uuid.New(),
		UserID:         create.UserID,
		Type:           create.Type,
		Title:          create.Title,
		Message:        create.Message,
		Data:           create.Data,
		CreatedAt:      r.now(),
	}

	r.mu.Lock()
	r.items[n.NotificationID] = n
	r.mu.Unlock()

	cp := *n
	return &cp, nil
}

// GetByUserID returns one page of the user's notifications, newest first, plus the total count
func (r *NotificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]*domain.Notification, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*domain.Notification
	for _, n := range r.items {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return []*domain.Notification{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]*domain.Notification, 0, end-offset)
	for _, n := range all[offset:end] {
		cp := *n
		page = append(page, &cp)
	}
	return page, total, nil
}

// GetUnreadCount counts the user's unread notifications
func (r *NotificationRepository) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkAsRead marks one of the user's notifications read
func (r *NotificationRepository) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[notificationID]
	if !ok || n.UserID != userID {
		return domain.ErrNotFound
	}
	if !n.IsRead {
		at := r.now()
		n.IsRead = true
		n.ReadAt = &at
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the user read
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
		}
	}
	return nil
}

// MarkAsPushed records that a push was sent for the notification
func (r *NotificationRepository) MarkAsPushed(ctx context.Context, notificationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[notificationID]
	if !ok {
		return domain.ErrNotFound
	}
	n.IsPushed = true
	return nil
}

// DeleteByUser removes every notification of the user
func (r *NotificationRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, n := range r.items {
		if n.UserID == userID {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}

// Prune removes read notifications created before readBefore and unread ones created before unreadBefore
func (r *NotificationRepository) Prune(ctx context.Context, readBefore, unreadBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, n := range r.items {
		if (n.IsRead && n.CreatedAt.Before(readBefore)) || (!n.IsRead && n.CreatedAt.Before(unreadBefore)) {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}
