package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/internal/domain"
	apperrors "travelchat-backend/pkg/errors"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/sanitize"
)

const maxFlagReasonLength = 500

// FlagMessage raises the single flag of a message for moderator review.
// Flagging again replaces the reason and flagger.
func (s *Service) FlagMessage(ctx context.Context, messageID, flaggedBy uuid.UUID, role domain.Role, reason string) (*domain.Message, error) {
	reason = sanitize.SingleLine(reason)
	if reason == "" {
		return nil, apperrors.MissingFieldError("reason")
	}
	if len(reason) > maxFlagReasonLength {
		return nil, apperrors.ValidationError("Reason is too long")
	}

	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleSuperAdmin {
		if _, err := s.conversations.GetForParticipant(ctx, msg.ConversationID, flaggedBy); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeConversationNotFound) {
				return nil, apperrors.MessageNotFoundError()
			}
			return nil, err
		}
	}

	if err := s.messages.SetFlag(ctx, messageID, flaggedBy, reason, s.now().UTC()); err != nil {
		return nil, mapMessageErr(err, "failed to flag message")
	}

	logger.FromContext(ctx).Info("Message flagged",
		zap.String("message_id", messageID.String()),
		zap.String("flagged_by", flaggedBy.String()))

	return s.loadMessage(ctx, messageID)
}

// ModerateMessage records a moderator's resolution and clears the flag.
// Only SUPER_ADMIN may moderate. REMOVED messages render without content.
func (s *Service) ModerateMessage(ctx context.Context, messageID, moderatorID uuid.UUID, role domain.Role, status domain.ModerationStatus) (*domain.Message, error) {
	if role != domain.RoleSuperAdmin {
		return nil, apperrors.ForbiddenError("Only administrators can moderate messages")
	}
	if !status.Valid() {
		return nil, apperrors.ValidationError("status must be APPROVED or REMOVED")
	}

	if err := s.messages.SetModeration(ctx, messageID, moderatorID, status, s.now().UTC()); err != nil {
		return nil, mapMessageErr(err, "failed to moderate message")
	}

	logger.FromContext(ctx).Info("Message moderated",
		zap.String("message_id", messageID.String()),
		zap.String("moderator_id", moderatorID.String()),
		zap.String("status", string(status)))

	return s.loadMessage(ctx, messageID)
}

// ErasureResult reports what EraseUserMessages removed
type ErasureResult struct {
	MessagesDeleted      int   `json:"messages_deleted"`
	NotificationsDeleted int64 `json:"notifications_deleted"`
}

// EraseUserMessages deletes every message the user sent and their notifications.
// Conversation counters are left as they were.
func (s *Service) EraseUserMessages(ctx context.Context, userID uuid.UUID) (*ErasureResult, error) {
	convIDs, err := s.conversations.ConversationIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &ErasureResult{}
	if len(convIDs) > 0 {
		n, err := s.messages.DeleteBySender(ctx, userID, convIDs)
		if err != nil {
			return nil, mapMessageErr(err, "failed to erase messages")
		}
		result.MessagesDeleted = n
	}

	if s.notifications != nil {
		n, err := s.notifications.DeleteAllForUser(ctx, userID)
		if err != nil {
			return result, err
		}
		result.NotificationsDeleted = n
	}

	logger.FromContext(ctx).Info("User messages erased",
		zap.String("user_id", userID.String()),
		zap.Int("messages", result.MessagesDeleted),
		zap.Int64("notifications", result.NotificationsDeleted))

	return result, nil
}
