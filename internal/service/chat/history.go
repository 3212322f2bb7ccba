package chat

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
	apperrors "travelchat-backend/pkg/errors"
	"travelchat-backend/pkg/pagination"
)

// HistoryInput selects one page of a conversation's messages
type HistoryInput struct {
	ConversationID uuid.UUID
	ReaderID       uuid.UUID
	Cursor         string
	Direction      domain.HistoryDirection
	Limit          int
}

// History returns one page of messages in (created_at, message_id) order.
// Forward walks oldest to newest; backward loads earlier messages.
func (s *Service) History(ctx context.Context, input *HistoryInput) (*domain.MessagePage, error) {
	if _, err := s.conversations.GetForParticipant(ctx, input.ConversationID, input.ReaderID); err != nil {
		return nil, err
	}

	direction := input.Direction
	switch direction {
	case "":
		direction = domain.HistoryForward
	case domain.HistoryForward, domain.HistoryBackward:
	default:
		return nil, apperrors.ValidationError("direction must be forward or backward")
	}

	var after *domain.MessageCursor
	var pos domain.MessageCursor
	ok, err := pagination.DecodeCursor(input.Cursor, &pos)
	if err != nil {
		return nil, apperrors.ValidationError("Invalid cursor")
	}
	if ok {
		after = &pos
	}

	limit := pagination.ClampLimit(input.Limit)
	msgs, err := s.messages.List(ctx, domain.HistoryQuery{
		ConversationID: input.ConversationID,
		After:          after,
		Direction:      direction,
		Limit:          limit + 1,
	})
	if err != nil {
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to list messages: %w", err))
	}

	page := &domain.MessagePage{}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		page.HasMore = true
		next, err := pagination.EncodeCursor(cursorOf(msgs[limit-1]))
		if err != nil {
			return nil, apperrors.InternalError("Failed to build cursor")
		}
		page.NextCursor = next
	}

	page.Messages = make([]*domain.Message, len(msgs))
	for i, m := range msgs {
		page.Messages[i] = m.Redacted()
	}
	return page, nil
}

// IterateHistory walks a conversation lazily, fetching pageSize messages at a time.
// Iteration stops at the first error, which is yielded once.
func (s *Service) IterateHistory(ctx context.Context, conversationID, readerID uuid.UUID, direction domain.HistoryDirection, pageSize int) iter.Seq2[*domain.Message, error] {
	return func(yield func(*domain.Message, error) bool) {
		cursor := ""
		for {
			page, err := s.History(ctx, &HistoryInput{
				ConversationID: conversationID,
				ReaderID:       readerID,
				Cursor:         cursor,
				Direction:      direction,
				Limit:          pageSize,
			})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, m := range page.Messages {
				if !yield(m, nil) {
					return
				}
			}
			if !page.HasMore {
				return
			}
			cursor = page.NextCursor
		}
	}
}
