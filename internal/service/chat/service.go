package chat

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
	"travelchat-backend/pkg/sanitize"
)

// MessageRepository stores messages in (created_at, message_id) order per conversation
type MessageRepository interface {
	Save(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	List(ctx context.Context, query domain.HistoryQuery) ([]*domain.Message, error)
	MarkRead(ctx context.Context, messageID, readerID uuid.UUID, at time.Time) (time.Time, bool, error)
	SetFlag(ctx context.Context, messageID, flaggedBy uuid.UUID, reason string, at time.Time) error
	SetModeration(ctx context.Context, messageID, moderatorID uuid.UUID, status domain.ModerationStatus, at time.Time) error
	DeleteBySender(ctx context.Context, senderID uuid.UUID, conversationIDs []uuid.UUID) (int, error)
}

// ConversationRegistry owns conversation membership and counters
type ConversationRegistry interface {
	Get(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	GetForParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)
	RecordMessage(ctx context.Context, conversationID, senderID, messageID uuid.UUID, at time.Time) error
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, through domain.MessageCursor) (bool, error)
	ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// BlockChecker answers whether recipientID refuses messages from senderID
type BlockChecker interface {
	IsBlocked(ctx context.Context, senderID, recipientID uuid.UUID) (bool, error)
}

// Dispatcher delivers message events to live sessions
type Dispatcher interface {
	MessageAccepted(ctx context.Context, conv *domain.Conversation, msg *domain.Message)
	MessageRead(ctx context.Context, msg *domain.Message, receipt *domain.ReadReceipt)
}

// TypingTracker holds typing indicators
type TypingTracker interface {
	StartTyping(ctx context.Context, conversationID, userID uuid.UUID) bool
	StopTyping(ctx context.Context, conversationID, userID uuid.UUID) bool
}

// Locker serializes sends per conversation
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// IdempotencyStore remembers which message a client send key produced
type IdempotencyStore interface {
	Reserve(ctx context.Context, senderID uuid.UUID, key string, messageID uuid.UUID) (uuid.UUID, bool, error)
	Release(ctx context.Context, senderID uuid.UUID, key string) error
}

// AttachmentVerifier checks attachment keys reference stored objects
type AttachmentVerifier interface {
	VerifyAttachments(ctx context.Context, keys []string) error
}

// NotificationEraser removes a user's notifications
type NotificationEraser interface {
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Deps are the collaborators of the message pipeline. Idempotency, Attachments,
// Notifications and Metrics are optional.
type Deps struct {
	Messages      MessageRepository
	Conversations ConversationRegistry
	Blocks        BlockChecker
	Dispatcher    Dispatcher
	Typing        TypingTracker
	Locker        Locker
	Idempotency   IdempotencyStore
	Attachments   AttachmentVerifier
	Notifications NotificationEraser
	Metrics       *metrics.Metrics
}

// Service handles chat business logic
type Service struct {
	messages      MessageRepository
	conversations ConversationRegistry
	blocks        BlockChecker
	dispatcher    Dispatcher
	typing        TypingTracker
	locker        Locker
	idempotency   IdempotencyStore
	attachments   AttachmentVerifier
	notifications NotificationEraser
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewService creates a new chat service
func NewService(deps Deps) *Service {
	return &Service{
		messages:      deps.Messages,
		conversations: deps.Conversations,
		blocks:        deps.Blocks,
		dispatcher:    deps.Dispatcher,
		typing:        deps.Typing,
		locker:        deps.Locker,
		idempotency:   deps.Idempotency,
		attachments:   deps.Attachments,
		notifications: deps.Notifications,
		metrics:       deps.Metrics,
		now:           time.Now,
	}
}

// SendMessageInput contains message data
type SendMessageInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	SenderRole     domain.Role
	Type           domain.MessageType
	Content        string
	Attachments    []string
	ReplyToID      *uuid.UUID
	IdempotencyKey string
}

// SendMessage validates, persists and sequences a message, then fans it out.
// A retried send carrying the same idempotency key returns the original message.
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*domain.Message, error) {
	start := s.now()
	log := logger.FromContext(ctx)

	if err := normalizeSendInput(input); err != nil {
		s.metrics.RecordMessageRejected("validation")
		return nil, err
	}

	conv, err := s.activeConversation(ctx, input.ConversationID, input.SenderID)
	if err != nil {
		s.metrics.RecordMessageRejected("conversation")
		return nil, err
	}
	if role, ok := conv.ParticipantRoles[input.SenderID]; ok {
		input.SenderRole = role
	}

	if input.Type == domain.MessageTypeReply {
		if err := s.checkReplyTarget(ctx, conv.ConversationID, *input.ReplyToID); err != nil {
			s.metrics.RecordMessageRejected("validation")
			return nil, err
		}
	}

	if err := s.checkBlocks(ctx, conv, input.SenderID); err != nil {
		return nil, err
	}

	if len(input.Attachments) > 0 && s.attachments != nil {
		if err := s.attachments.VerifyAttachments(ctx, input.Attachments); err != nil {
			s.metrics.RecordMessageRejected("attachments")
			return nil, err
		}
	}
	s.metrics.ObserveSendStep("validate", start)

	msg := &domain.Message{
		ConversationID: conv.ConversationID,
		SenderID:       input.SenderID,
		SenderRole:     input.SenderRole,
		Type:           input.Type,
		Content:        input.Content,
		Attachments:    input.Attachments,
		ReplyToID:      input.ReplyToID,
	}

	out, err := s.accept(ctx, msg, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveSendStep("total", start)
	log.Debug("Message accepted",
		zap.String("message_id", out.MessageID.String()),
		zap.String("conversation_id", out.ConversationID.String()))
	return out, nil
}

// PostSystemMessage appends a SYSTEM message. It skips block checks and counts
// as unread for every participant.
func (s *Service) PostSystemMessage(ctx context.Context, conversationID uuid.UUID, content string) (*domain.Message, error) {
	content = sanitize.MessageText(content)
	if content == "" {
		return nil, apperrors.ValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("Content exceeds %d characters", domain.MaxContentLength))
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, apperrors.ConversationNotFoundError()
	}

	return s.accept(ctx, &domain.Message{
		ConversationID: conversationID,
		SenderID:       domain.SystemSenderID,
		Type:           domain.MessageTypeSystem,
		Content:        content,
		Attachments:    []string{},
	}, "")
}

// lockConversation serializes everything that reads or writes a conversation's
// counters: accepted sends and unread resets
func (s *Service) lockConversation(ctx context.Context, conversationID uuid.UUID) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "conversation:"+conversationID.String())
	if err != nil {
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to lock conversation: %w", err))
	}
	return unlock, nil
}

// accept sequences and persists msg under the conversation lock, then hands it to the dispatcher
func (s *Service) accept(ctx context.Context, msg *domain.Message, idempotencyKey string) (*domain.Message, error) {
	lockStart := s.now()
	unlock, err := s.lockConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	s.metrics.ObserveSendStep("lock", lockStart)

	messageID, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.InternalError("Failed to generate message id")
	}
	msg.MessageID = messageID

	if idempotencyKey != "" && s.idempotency != nil {
		existingID, reserved, err := s.idempotency.Reserve(ctx, msg.SenderID, idempotencyKey, messageID)
		if err != nil {
			return nil, apperrors.UnavailableError(fmt.Errorf("failed to reserve idempotency key: %w", err))
		}
		if !reserved {
			return s.replay(ctx, msg.ConversationID, existingID)
		}
	}

	// Re-read under the lock: lastMessageAt must reflect every accepted send.
	conv, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		s.release(ctx, msg.SenderID, idempotencyKey)
		return nil, err
	}
	if !conv.IsActive {
		s.release(ctx, msg.SenderID, idempotencyKey)
		return nil, apperrors.ConversationNotFoundError()
	}

	msg.CreatedAt = nextTimestamp(s.now(), conv.LastMessageAt)
	msg.IsRead = false
	msg.ReadBy = []uuid.UUID{}
	msg.ReadAt = map[uuid.UUID]time.Time{}
	if msg.Attachments == nil {
		msg.Attachments = []string{}
	}

	persistStart := s.now()
	if err := s.messages.Save(ctx, msg); err != nil {
		s.release(ctx, msg.SenderID, idempotencyKey)
		s.metrics.RecordMessageRejected("storage")
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to save message: %w", err))
	}
	s.metrics.ObserveSendStep("persist", persistStart)

	if err := s.conversations.RecordMessage(ctx, msg.ConversationID, msg.SenderID, msg.MessageID, msg.CreatedAt); err != nil {
		logger.FromContext(ctx).Error("Failed to update conversation counters after retries",
			zap.String("conversation_id", msg.ConversationID.String()),
			zap.String("message_id", msg.MessageID.String()),
			zap.Error(err))
	}
	s.metrics.RecordMessageAccepted(string(msg.Type))

	dispatchStart := s.now()
	s.dispatcher.MessageAccepted(ctx, conv, msg)
	s.metrics.ObserveSendStep("dispatch", dispatchStart)

	return msg, nil
}

// replay returns the message an earlier send with the same key produced
func (s *Service) replay(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error) {
	existing, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.ConflictError("A send with this idempotency key is still in progress")
		}
		return nil, apperrors.UnavailableError(fmt.Errorf("failed to load message: %w", err))
	}
	if existing.ConversationID != conversationID {
		return nil, apperrors.ConflictError("Idempotency key was used for another conversation")
	}
	return existing.Redacted(), nil
}

func (s *Service) release(ctx context.Context, senderID uuid.UUID, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, senderID, key); err != nil {
		logger.FromContext(ctx).Warn("Failed to release idempotency key", zap.Error(err))
	}
}

// activeConversation loads a conversation the user may post to
func (s *Service) activeConversation(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.conversations.GetForParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, apperrors.ConversationNotFoundError()
	}
	return conv, nil
}

func (s *Service) checkReplyTarget(ctx context.Context, conversationID, replyToID uuid.UUID) error {
	target, err := s.messages.GetByID(ctx, replyToID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.ValidationError("Reply target does not exist")
		}
		return apperrors.UnavailableError(fmt.Errorf("failed to load reply target: %w", err))
	}
	if target.ConversationID != conversationID {
		return apperrors.ValidationError("Reply target belongs to another conversation")
	}
	return nil
}

// checkBlocks rejects the send if any recipient has blocked the sender.
// The error never says which recipient or why.
func (s *Service) checkBlocks(ctx context.Context, conv *domain.Conversation, senderID uuid.UUID) error {
	for _, recipientID := range conv.Others(senderID) {
		blocked, err := s.blocks.IsBlocked(ctx, senderID, recipientID)
		if err != nil {
			return err
		}
		if blocked {
			s.metrics.RecordMessageRejected("blocked")
			logger.FromContext(ctx).Info("Send rejected by block",
				zap.String("conversation_id", conv.ConversationID.String()),
				zap.String("sender_id", senderID.String()))
			return apperrors.SendRejectedError()
		}
	}
	return nil
}

// StartTyping records that userID is typing in a conversation they belong to
func (s *Service) StartTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, err := s.activeConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	s.typing.StartTyping(ctx, conversationID, userID)
	return nil
}

// StopTyping clears userID's typing indicator
func (s *Service) StopTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, err := s.conversations.GetForParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.typing.StopTyping(ctx, conversationID, userID)
	return nil
}

func normalizeSendInput(input *SendMessageInput) error {
	if input.Type == "" {
		input.Type = domain.MessageTypeText
		if input.ReplyToID != nil {
			input.Type = domain.MessageTypeReply
		}
	}

	switch input.Type {
	case domain.MessageTypeText:
		if input.ReplyToID != nil {
			return apperrors.ValidationError("reply_to_id requires type REPLY")
		}
	case domain.MessageTypeReply:
		if input.ReplyToID == nil || *input.ReplyToID == uuid.Nil {
			return apperrors.MissingFieldError("reply_to_id")
		}
	default:
		return apperrors.ValidationError("Invalid message type")
	}

	input.Content = sanitize.MessageText(input.Content)
	if input.Content == "" && len(input.Attachments) == 0 {
		return apperrors.ValidationError("Message must have content or attachments")
	}
	if utf8.RuneCountInString(input.Content) > domain.MaxContentLength {
		return apperrors.ValidationError(fmt.Sprintf("Content exceeds %d characters", domain.MaxContentLength))
	}
	if len(input.Attachments) > domain.MaxAttachments {
		return apperrors.ValidationError(fmt.Sprintf("At most %d attachments are allowed", domain.MaxAttachments))
	}
	return nil
}

// nextTimestamp returns now at millisecond precision, bumped past last so
// creation times are strictly increasing within a conversation
func nextTimestamp(now time.Time, last *time.Time) time.Time {
	at := now.UTC().Truncate(time.Millisecond)
	if last != nil && !at.After(*last) {
		at = last.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return at
}
