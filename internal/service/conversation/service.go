package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/internal/domain"
	"travelchat-backend/pkg/constants"
	apperrors "travelchat-backend/pkg/errors"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
	"travelchat-backend/pkg/pagination"
)

// Repository is the conversation store the registry needs
type Repository interface {
	FindOrCreate(ctx context.Context, conversation *domain.Conversation) (*domain.Conversation, bool, error)
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	RecordMessage(ctx context.Context, conversationID, senderID, messageID uuid.UUID, at time.Time) error
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, through domain.MessageCursor) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, after *domain.ConversationCursor, limit int) ([]*domain.Conversation, error)
	Archive(ctx context.Context, conversationID uuid.UUID) error
	Counterparts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Service owns conversation identity, membership and aggregate counters
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a new conversation service
func NewService(repo Repository, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		metrics: m,
		now:     time.Now,
	}
}

// FindOrCreateOutput contains the resolved conversation
type FindOrCreateOutput struct {
	Conversation *domain.Conversation
	Created      bool
}

// FindOrCreate returns the active conversation for the participant set and type,
// creating it on first contact. Concurrent calls for the same set converge on one conversation.
func (s *Service) FindOrCreate(ctx context.Context, input *domain.ConversationCreate) (*FindOrCreateOutput, error) {
	if err := validateParticipants(input); err != nil {
		return nil, err
	}

	participants := domain.SortParticipants(input.ParticipantIDs)
	roles := make(map[uuid.UUID]domain.Role, len(participants))
	unread := make(map[uuid.UUID]int64, len(participants))
	for _, id := range participants {
		roles[id] = input.ParticipantRoles[id]
		unread[id] = 0
	}

	var lastErr error
	for attempt := 0; attempt < constants.FindOrCreateRetries; attempt++ {
		now := s.now().UTC().Truncate(time.Millisecond)
		candidate := &domain.Conversation{
			ConversationID:   uuid.New(),
			Type:             input.Type,
			Participants:     participants,
			ParticipantRoles: roles,
			IsActive:         true,
			UnreadCount:      unread,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		conv, created, err := s.repo.FindOrCreate(ctx, candidate)
		if err == nil {
			s.metrics.RecordConversation(created)
			if created {
				logger.FromContext(ctx).Info("Conversation created",
					zap.String("conversation_id", conv.ConversationID.String()),
					zap.String("type", string(conv.Type)))
			}
			return &FindOrCreateOutput{Conversation: conv, Created: created}, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, apperrors.UnavailableError(fmt.Errorf("failed to find or create conversation: %w", err))
		}

		lastErr = err
		metrics.RecordStoreRetry("registry", "find_or_create", "conflict")
		select {
		case <-ctx.Done():
			return nil, apperrors.UnavailableError(ctx.Err())
		case <-time.After(time.Duration(attempt+1) * constants.LockRetryInterval):
		}
	}

	return nil, apperrors.UnavailableError(fmt.Errorf("find or create kept conflicting: %w", lastErr))
}

// RecordMessage applies an accepted message to the conversation counters atomically.
// Transient store failures are retried; recording the same message twice counts it once.
func (s *Service) RecordMessage(ctx context.Context, conversationID, senderID, messageID uuid.UUID, at time.Time) error {
	var err error
	for attempt := 0; attempt < constants.RecordMessageRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordStoreRetry("registry", "record_message", "error")
			select {
			case <-ctx.Done():
				return apperrors.UnavailableError(ctx.Err())
			case <-time.After(time.Duration(attempt) * constants.LockRetryInterval):
			}
		}

		err = s.repo.RecordMessage(ctx, conversationID, senderID, messageID, at)
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			break
		}
		logger.FromContext(ctx).Warn("Recording message failed",
			zap.String("conversation_id", conversationID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	if err != nil {
		return mapRepoErr(err, "failed to record message")
	}
	return nil
}

// MarkRead resets the reader's unread count. Marking through the same or an older
// message again has no effect and reports false.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, through domain.MessageCursor) (bool, error) {
	applied, err := s.repo.MarkRead(ctx, conversationID, readerID, through)
	if err != nil {
		return false, mapRepoErr(err, "failed to mark conversation read")
	}
	return applied, nil
}

// ListForUser returns one page of the user's inbox, most recent activity first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*domain.ConversationPage, error) {
	limit = pagination.ClampLimit(limit)

	var after *domain.ConversationCursor
	var pos domain.ConversationCursor
	ok, err := pagination.DecodeCursor(cursor, &pos)
	if err != nil {
		return nil, apperrors.ValidationError("Invalid cursor")
	}
	if ok {
		after = &pos
	}

	convs, err := s.repo.ListForUser(ctx, userID, after, limit+1)
	if err != nil {
		return nil, mapRepoErr(err, "failed to list conversations")
	}

	page := &domain.ConversationPage{Conversations: convs}
	if len(convs) > limit {
		page.Conversations = convs[:limit]
		page.HasMore = true
		last := page.Conversations[limit-1]
		next, err := pagination.EncodeCursor(domain.ConversationCursor{
			ActivityAt:     last.ActivityAt(),
			ConversationID: last.ConversationID,
		})
		if err != nil {
			return nil, apperrors.InternalError("Failed to build cursor")
		}
		page.NextCursor = next
	}
	if page.Conversations == nil {
		page.Conversations = []*domain.Conversation{}
	}

	return page, nil
}

// Get retrieves a conversation by id
func (s *Service) Get(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, mapRepoErr(err, "failed to get conversation")
	}
	return conv, nil
}

// GetForParticipant retrieves a conversation the user belongs to.
// Non-participants get NotFound so conversation ids cannot be enumerated.
func (s *Service) GetForParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.ConversationNotFoundError()
	}
	return conv, nil
}

// Archive soft-deactivates a conversation; a later FindOrCreate opens a new one
func (s *Service) Archive(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, err := s.GetForParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.repo.Archive(ctx, conversationID); err != nil {
		return mapRepoErr(err, "failed to archive conversation")
	}

	logger.FromContext(ctx).Info("Conversation archived",
		zap.String("conversation_id", conversationID.String()),
		zap.String("archived_by", userID.String()))
	return nil
}

// Counterparts lists the users sharing an active conversation with userID
func (s *Service) Counterparts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.Counterparts(ctx, userID)
	if err != nil {
		return nil, mapRepoErr(err, "failed to list counterparts")
	}
	return ids, nil
}

// ConversationIDsForUser lists every conversation the user ever joined
func (s *Service) ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.ConversationIDsForUser(ctx, userID)
	if err != nil {
		return nil, mapRepoErr(err, "failed to list conversations")
	}
	return ids, nil
}

func validateParticipants(input *domain.ConversationCreate) error {
	if !input.Type.Valid() {
		return apperrors.ValidationError("Invalid conversation type")
	}
	if len(input.ParticipantIDs) < 2 {
		return apperrors.ValidationError("A conversation needs at least two participants")
	}

	seen := make(map[uuid.UUID]struct{}, len(input.ParticipantIDs))
	for _, id := range input.ParticipantIDs {
		if id == uuid.Nil {
			return apperrors.ValidationError("Participant id is required")
		}
		if _, dup := seen[id]; dup {
			return apperrors.ValidationError("Participants must be distinct")
		}
		seen[id] = struct{}{}

		role, ok := input.ParticipantRoles[id]
		if !ok || !role.Valid() {
			return apperrors.ValidationError(fmt.Sprintf("Missing or invalid role for participant %s", id))
		}
	}
	return nil
}

func mapRepoErr(err error, op string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperrors.ConversationNotFoundError()
	}
	return apperrors.UnavailableError(fmt.Errorf("%s: %w", op, err))
}
