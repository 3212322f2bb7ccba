package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
	"travelchat-backend/pkg/push"
)

// PushTokenRepository keeps push tokens in memory
type PushTokenRepository struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]*push.Token
}

// NewPushTokenRepository creates an empty token store
func NewPushTokenRepository() *PushTokenRepository {
	return &PushTokenRepository{tokens: make(map[uuid.UUID]*push.Token)}
}

// Store saves a new token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

// GetByUserID returns every token of the user
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*push.Token
	for _, t := range r.tokens {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetByToken looks a token up by its value
func (r *PushTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*push.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tokens {
		if t.Token == tokenStr {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Update replaces a stored token
func (r *PushTokenRepository) Update(ctx context.Context, token *push.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

// Delete removes a token
func (r *PushTokenRepository) Delete(ctx context.Context, tokenID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, tokenID)
	return nil
}

// DeleteByUserID removes every token of the user
func (r *PushTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}

// MarkInactive disables a token the provider rejected
func (r *PushTokenRepository) MarkInactive(ctx context.Context, tokenID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Active = false
	return nil
}
