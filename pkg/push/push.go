package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/pkg/logger"
)

// Provider sends a notification to a set of device tokens
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	ThreadID string            `json:"thread_id,omitempty"` // groups notifications of one conversation
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
)

// Token represents a push notification token for a user
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	Platform  string    `json:"platform,omitempty"` // ios, android, web
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// TokenRepository stores push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	GetByToken(ctx context.Context, token string) (*Token, error)
	Update(ctx context.Context, token *Token) error
	Delete(ctx context.Context, tokenID uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
	MarkInactive(ctx context.Context, tokenID uuid.UUID) error
}

// Service handles push notification operations
type Service struct {
	provider Provider
	repo     TokenRepository
}

// NewService creates a new push notification service
func NewService(provider Provider, repo TokenRepository) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
	}
}

// RegisterToken registers a push token for a user, reactivating it if already known
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	now := time.Now().Unix()
	existing, err := s.repo.GetByToken(ctx, token.Token)
	if err == nil && existing != nil {
		existing.UserID = token.UserID
		existing.Active = true
		existing.UpdatedAt = now
		existing.DeviceID = token.DeviceID
		existing.Platform = token.Platform
		return s.repo.Update(ctx, existing)
	}

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.Active = true
	token.CreatedAt = now
	token.UpdatedAt = now
	return s.repo.Store(ctx, token)
}

// UnregisterToken removes one of the user's tokens by value
func (s *Service) UnregisterToken(ctx context.Context, userID uuid.UUID, tokenStr string) error {
	existing, err := s.repo.GetByToken(ctx, tokenStr)
	if err != nil || existing == nil || existing.UserID != userID {
		return nil
	}
	return s.repo.Delete(ctx, existing.ID)
}

// UnregisterAllTokens removes all tokens for a user
func (s *Service) UnregisterAllTokens(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// SendToUsers pushes notification to every active token of userIDs.
// A user with no tokens is not an error; the result then reports zero sends.
func (s *Service) SendToUsers(ctx context.Context, notification *Notification, userIDs []uuid.UUID) (*SendResult, error) {
	var allTokens []string
	for _, userID := range userIDs {
		tokens, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			logger.Warn("Failed to get push tokens for user",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}

		for _, token := range tokens {
			if token.Active {
				allTokens = append(allTokens, token.Token)
			}
		}
	}

	if len(allTokens) == 0 {
		return &SendResult{}, nil
	}

	result, err := s.provider.Send(ctx, notification, allTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to send push notification: %w", err)
	}

	logger.Debug("Push notification sent",
		zap.Int("user_count", len(userIDs)),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount))

	if len(result.InvalidTokens) > 0 {
		s.handleInvalidTokens(ctx, result.InvalidTokens)
	}

	return result, nil
}

// handleInvalidTokens marks invalid tokens as inactive
func (s *Service) handleInvalidTokens(ctx context.Context, invalidTokens []string) {
	for _, tokenStr := range invalidTokens {
		token, err := s.repo.GetByToken(ctx, tokenStr)
		if err == nil && token != nil {
			if err := s.repo.MarkInactive(ctx, token.ID); err != nil {
				logger.Warn("Failed to mark token as inactive",
					zap.String("token_id", token.ID.String()),
					zap.Error(err))
			}
		}
	}
}

// MockProvider records notifications instead of sending them
type MockProvider struct {
	mu   sync.Mutex
	sent []*Notification
}

// Send implements Provider interface
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.mu.Lock()
	m.sent = append(m.sent, notification)
	m.mu.Unlock()

	logger.Debug("MockProvider: Sending notification",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))

	return &SendResult{SuccessCount: len(tokens)}, nil
}

// Sent returns the notifications recorded so far
func (m *MockProvider) Sent() []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Notification{}, m.sent...)
}
