package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"travelchat-backend/internal/domain"
)

// NotificationRepository handles notification data operations
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `notification_id, user_id, type, title, body, data, is_read, is_pushed, created_at, read_at`

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, notification *domain.NotificationCreate) (n *domain.Notification, err error) {
	defer func(start time.Time) { observe("notification_create", start, err) }(time.Now())

	row := r.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, type, title, body, data, is_read, is_pushed, created_at)
		VALUES ($1, $2, $3, $4, $5, false, false, now())
		RETURNING `+notificationColumns,
		notification.UserID,
		notification.Type,
		notification.Title,
		notification.Message,
		notification.Data,
	)
	n = &domain.Notification{}
	if err := scanNotification(row, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

// GetByUserID returns one page of the user's notifications, newest first, plus the total count
func (r *NotificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) (list []*domain.Notification, total int, err error) {
	defer func(start time.Time) { observe("notification_list", start, err) }(time.Now())

	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1 AND (NOT $4::BOOL OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	list = []*domain.Notification{}
	for rows.Next() {
		n := &domain.Notification{}
		if err := scanNotification(rows, n); err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND (NOT $2::BOOL OR NOT is_read)
	`, userID, unreadOnly).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return list, total, nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (r *NotificationRepository) GetUnreadCount(ctx context.Context, userID uuid.UUID) (count int, err error) {
	defer func(start time.Time) { observe("notification_unread_count", start, err) }(time.Now())

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return count, nil
}

// MarkAsRead marks one of the user's notifications read
func (r *NotificationRepository) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("notification_mark_read", start, err) }(time.Now())

	result, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = true, read_at = COALESCE(read_at, now())
		WHERE notification_id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the user read
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("notification_mark_all_read", start, err) }(time.Now())

	if _, err = r.db.Exec(ctx, `
		UPDATE notifications SET is_read = true, read_at = now()
		WHERE user_id = $1 AND is_read = false
	`, userID); err != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	return nil
}

// MarkAsPushed records that a push was sent for the notification
func (r *NotificationRepository) MarkAsPushed(ctx context.Context, notificationID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("notification_mark_pushed", start, err) }(time.Now())

	result, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_pushed = true WHERE notification_id = $1`, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as pushed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByUser removes every notification of the user
func (r *NotificationRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (deleted int64, err error) {
	defer func(start time.Time) { observe("notification_delete_user", start, err) }(time.Now())

	result, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return result.RowsAffected(), nil
}

// Prune removes read notifications created before readBefore and unread ones created before unreadBefore
func (r *NotificationRepository) Prune(ctx context.Context, readBefore, unreadBefore time.Time) (deleted int64, err error) {
	defer func(start time.Time) { observe("notification_prune", start, err) }(time.Now())

	result, err := r.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE (is_read AND created_at < $1) OR (NOT is_read AND created_at < $2)
	`, readBefore, unreadBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return result.RowsAffected(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner, n *domain.Notification) error {
	return row.Scan(
		&n.NotificationID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Data,
		&n.IsRead,
		&n.IsPushed,
		&n.CreatedAt,
		&n.ReadAt,
	)
}
