package notification

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/internal/domain"
	apperrors "travelchat-backend/pkg/errors"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
	"travelchat-backend/pkg/pagination"
	"travelchat-backend/pkg/push"
)

const previewLength = 120

// Repository stores notifications
type Repository interface {
	Create(ctx context.Context, create *domain.NotificationCreate) (*domain.Notification, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]*domain.Notification, int, error)
	GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	MarkAsPushed(ctx context.Context, notificationID uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	Prune(ctx context.Context, readBefore, unreadBefore time.Time) (int64, error)
}

// Pusher sends a notification to the devices of users
type Pusher interface {
	SendToUsers(ctx context.Context, notification *push.Notification, userIDs []uuid.UUID) (*push.SendResult, error)
}

// Service handles notification business logic
type Service struct {
	repo      Repository
	pusher    Pusher
	metrics   *metrics.Metrics
	retention domain.RetentionPolicy
	now       func() time.Time
}

// NewService creates a new notification service. pusher may be nil.
func NewService(repo Repository, pusher Pusher, m *metrics.Metrics, retention domain.RetentionPolicy) *Service {
	if retention.ReadOlderThan <= 0 || retention.UnreadOlderThan <= 0 {
		retention = domain.DefaultRetention
	}
	return &Service{
		repo:      repo,
		pusher:    pusher,
		metrics:   m,
		retention: retention,
		now:       time.Now,
	}
}

// CreateNotificationInput represents input for creating a notification
type CreateNotificationInput struct {
	UserID  uuid.UUID
	Type    domain.NotificationType
	Title   string
	Message string
	Data    map[string]interface{}
}

// Create creates a new notification
func (s *Service) Create(ctx context.Context, input *CreateNotificationInput) (*domain.Notification, error) {
	notification, err := s.repo.Create(ctx, &domain.NotificationCreate{
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
		Data:    input.Data,
	})
	if err != nil {
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to create notification: %w", err))
	}
	return notification, nil
}

// NotifyNewMessage records a MESSAGE notification for recipientID and, when
// requested, pushes it to the recipient's devices
func (s *Service) NotifyNewMessage(ctx context.Context, recipientID uuid.UUID, event *domain.ChatMessageEvent, sendPush bool) error {
	title := messageTitle(event.Message)
	body := preview(event.Message)

	notification, err := s.Create(ctx, &CreateNotificationInput{
		UserID:  recipientID,
		Type:    domain.NotificationTypeMessage,
		Title:   title,
		Message: body,
		Data: map[string]interface{}{
			"conversationId": event.ConversationID.String(),
			"senderId":       event.Message.SenderID.String(),
			"messageId":      event.Message.ID.String(),
		},
	})
	if err != nil {
		return err
	}

	if !sendPush || s.pusher == nil {
		return nil
	}

	result, err := s.pusher.SendToUsers(ctx, &push.Notification{
		Title:    title,
		Body:     body,
		Priority: "high",
		Sound:    "default",
		ThreadID: event.ConversationID.String(),
		Data: map[string]string{
			"type":           string(domain.NotificationTypeMessage),
			"conversationId": event.ConversationID.String(),
			"senderId":       event.Message.SenderID.String(),
			"messageId":      event.Message.ID.String(),
		},
	}, []uuid.UUID{recipientID})
	if err != nil {
		s.metrics.RecordPushNotificationFailure(string(domain.NotificationTypeMessage), "all", "send_failed")
		logger.FromContext(ctx).Warn("Push delivery failed",
			zap.String("user_id", recipientID.String()), zap.Error(err))
		return nil
	}
	if result == nil || result.SuccessCount == 0 {
		return nil
	}

	s.metrics.RecordPushNotification(string(domain.NotificationTypeMessage), "all")
	if err := s.repo.MarkAsPushed(ctx, notification.NotificationID); err != nil {
		logger.FromContext(ctx).Warn("Failed to mark notification pushed",
			zap.String("notification_id", notification.NotificationID.String()), zap.Error(err))
	}
	return nil
}

// GetNotifications retrieves notifications for a user, newest first
func (s *Service) GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) (*domain.NotificationListResponse, error) {
	limit = pagination.ClampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	notifications, totalCount, err := s.repo.GetByUserID(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to get notifications: %w", err))
	}

	unreadCount, err := s.repo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to get unread count: %w", err))
	}

	if notifications == nil {
		notifications = []*domain.Notification{}
	}

	return &domain.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unreadCount,
		TotalCount:    totalCount,
		HasMore:       offset+len(notifications) < totalCount,
	}, nil
}

// MarkAsRead marks one of the user's notifications as read
func (s *Service) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, notificationID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NotFoundError("Notification")
		}
		return apperrors.UnavailableError(fmt.Errorf("failed to mark notification as read: %w", err))
	}
	return nil
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.MarkAllAsRead(ctx, userID); err != nil {
		return apperrors.UnavailableError(fmt.Errorf("failed to mark all notifications as read: %w", err))
	}
	return nil
}

// DeleteAllForUser removes every notification of a user
func (s *Service) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, apperrors.UnavailableError(fmt.Errorf("failed to delete notifications: %w", err))
	}
	return n, nil
}

// Prune deletes notifications past the retention policy
func (s *Service) Prune(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.repo.Prune(ctx, now.Add(-s.retention.ReadOlderThan), now.Add(-s.retention.UnreadOlderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return n, nil
}

// RunPruner prunes every interval until ctx is done
func (s *Service) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx)
			if err != nil {
				logger.Error("Notification pruning failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Pruned notifications", zap.Int64("count", n))
			}
		}
	}
}

func messageTitle(m domain.EventMessage) string {
	switch {
	case m.Type == domain.MessageTypeSystem:
		return "Conversation update"
	case m.SenderRole == domain.RoleSuperAdmin:
		return "New message from support"
	default:
		return "New message"
	}
}

func preview(m domain.EventMessage) string {
	if m.Content == "" {
		if len(m.Attachments) > 0 {
			return "Sent an attachment"
		}
		return ""
	}
	if utf8.RuneCountInString(m.Content) <= previewLength {
		return m.Content
	}
	runes := []rune(m.Content)
	return string(runes[:previewLength]) + "…"
}
