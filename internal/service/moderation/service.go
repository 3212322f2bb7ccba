package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/internal/domain"
	apperrors "travelchat-backend/pkg/errors"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/sanitize"
)

const maxReasonLength = 500

// BlockRepository stores directed user blocks
type BlockRepository interface {
	Create(ctx context.Context, block *domain.UserBlock) error
	Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Exists(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error)
	ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]*domain.UserBlock, error)
}

// Service is the gate every send passes through
type Service struct {
	blocks BlockRepository
}

// NewService creates a new moderation service
func NewService(blocks BlockRepository) *Service {
	return &Service{blocks: blocks}
}

// IsBlocked reports whether recipientID has blocked senderID
func (s *Service) IsBlocked(ctx context.Context, senderID, recipientID uuid.UUID) (bool, error) {
	blocked, err := s.blocks.Exists(ctx, recipientID, senderID)
	if err != nil {
		return false, apperrors.UnavailableError(fmt.Errorf("failed to check block: %w", err))
	}
	return blocked, nil
}

// Block stops blockedID from sending messages to blockerID
func (s *Service) Block(ctx context.Context, blockerID, blockedID uuid.UUID, reason string) (*domain.UserBlock, error) {
	if blockedID == uuid.Nil {
		return nil, apperrors.MissingFieldError("user_id")
	}
	if blockerID == blockedID {
		return nil, apperrors.ValidationError("You cannot block yourself")
	}
	reason = sanitize.SingleLine(reason)
	if len(reason) > maxReasonLength {
		return nil, apperrors.ValidationError("Reason is too long")
	}

	block := &domain.UserBlock{
		BlockerID:     blockerID,
		BlockedUserID: blockedID,
		Reason:        reason,
		BlockedAt:     time.Now().UTC(),
	}
	if err := s.blocks.Create(ctx, block); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, apperrors.AlreadyBlockedError()
		}
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to block user: %w", err))
	}

	logger.FromContext(ctx).Info("User blocked",
		zap.String("blocker_id", blockerID.String()),
		zap.String("blocked_id", blockedID.String()))

	return block, nil
}

// Unblock removes a block. Unblocking a user that is not blocked succeeds.
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	if err := s.blocks.Delete(ctx, blockerID, blockedID); err != nil {
		return apperrors.UnavailableError(fmt.Errorf("failed to unblock user: %w", err))
	}
	return nil
}

// ListBlocked returns the blocks created by blockerID, newest first
func (s *Service) ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]*domain.UserBlock, error) {
	blocks, err := s.blocks.ListByBlocker(ctx, blockerID)
	if err != nil {
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to list blocks: %w", err))
	}
	if blocks == nil {
		blocks = []*domain.UserBlock{}
	}
	return blocks, nil
}
