package chat

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
)

const readScanPage = 100

// MarkRead acknowledges a message for readerID. The first read timestamp wins and
// a repeated read changes nothing. Reading your own message is a no-op.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID uuid.UUID) (*domain.ReadReceipt, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.conversations.GetForParticipant(ctx, msg.ConversationID, readerID); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeConversationNotFound) {
			return nil, apperrors.MessageNotFoundError()
		}
		return nil, err
	}

	receipt := &domain.ReadReceipt{
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
		ReaderID:       readerID,
	}
	if msg.SenderID == readerID {
		return receipt, nil
	}

	readAt, applied, err := s.messages.MarkRead(ctx, messageID, readerID, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return nil, mapMessageErr(err, "failed to mark message read")
	}
	receipt.ReadAt = readAt
	receipt.Applied = applied
	if !applied {
		return receipt, nil
	}

	if err := s.advanceWatermark(ctx, msg, readerID); err != nil {
		logger.FromContext(ctx).Warn("Failed to reset unread count",
			zap.String("conversation_id", msg.ConversationID.String()),
			zap.Error(err))
	}
	s.dispatcher.MessageRead(ctx, msg, receipt)

	return receipt, nil
}

// MarkConversationRead acknowledges every unread message from other participants,
// newest first, stopping at the first message the reader had already read.
// Sends wait for the scan so the unread reset covers exactly what was acknowledged.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	if _, err := s.conversations.GetForParticipant(ctx, conversationID, readerID); err != nil {
		return 0, err
	}

	unlock, err := s.lockConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var latest *domain.Message
	marked := 0
	query := domain.HistoryQuery{
		ConversationID: conversationID,
		Direction:      domain.HistoryBackward,
		Limit:          readScanPage,
	}

scan:
	for {
		page, err := s.messages.List(ctx, query)
		if err != nil {
			return marked, apperrors.UnavailableError(fmt.Errorf("failed to list messages: %w", err))
		}

		for _, msg := range page {
			if latest == nil {
				latest = msg
			}
			if msg.SenderID == readerID {
				continue
			}
			if msg.HasReadBy(readerID) {
				break scan
			}

			readAt, applied, err := s.messages.MarkRead(ctx, msg.MessageID, readerID, s.now().UTC().Truncate(time.Millisecond))
			if err != nil {
				return marked, mapMessageErr(err, "failed to mark message read")
			}
			if applied {
				marked++
				s.dispatcher.MessageRead(ctx, msg, &domain.ReadReceipt{
					MessageID:      msg.MessageID,
					ConversationID: conversationID,
					ReaderID:       readerID,
					ReadAt:         readAt,
					Applied:        true,
				})
			}
		}

		if len(page) < query.Limit {
			break
		}
		last := page[len(page)-1]
		query.After = &domain.MessageCursor{CreatedAt: last.CreatedAt, MessageID: last.MessageID}
	}

	if latest != nil {
		if _, err := s.conversations.MarkRead(ctx, conversationID, readerID, cursorOf(latest)); err != nil {
			return marked, err
		}
	}
	return marked, nil
}

// advanceWatermark resets the reader's unread count unless another participant
// has posted after msg. The scan and the reset hold the conversation lock, so a
// send cannot land between them.
func (s *Service) advanceWatermark(ctx context.Context, msg *domain.Message, readerID uuid.UUID) error {
	unlock, err := s.lockConversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	defer unlock()

	query := domain.HistoryQuery{
		ConversationID: msg.ConversationID,
		After:          &domain.MessageCursor{CreatedAt: msg.CreatedAt, MessageID: msg.MessageID},
		Direction:      domain.HistoryForward,
		Limit:          readScanPage,
	}
	for {
		newer, err := s.messages.List(ctx, query)
		if err != nil {
			return err
		}
		for _, m := range newer {
			if m.SenderID != readerID {
				return nil
			}
		}
		if len(newer) < query.Limit {
			break
		}
		last := newer[len(newer)-1]
		query.After = &domain.MessageCursor{CreatedAt: last.CreatedAt, MessageID: last.MessageID}
	}

	_, err = s.conversations.MarkRead(ctx, msg.ConversationID, readerID, cursorOf(msg))
	return err
}

func (s *Service) loadMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapMessageErr(err, "failed to load message")
	}
	return msg, nil
}

func cursorOf(m *domain.Message) domain.MessageCursor {
	return domain.MessageCursor{CreatedAt: m.CreatedAt, MessageID: m.MessageID}
}

func mapMessageErr(err error, op string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperrors.MessageNotFoundError()
	}
	return apperrors.UnavailableError(fmt.Errorf("%s: %w", op, err))
}
