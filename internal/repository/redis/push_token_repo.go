package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/internal/database"
	"travelchat-backend/pkg/constants"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/push"
)

// PushTokenRepository stores device tokens in Redis.
// Keys: push:token:{token} (JSON), push:id:{id} -> token, push:user:{id}:tokens (set).
type PushTokenRepository struct {
	client *database.RedisClient
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *database.RedisClient) *PushTokenRepository {
	return &PushTokenRepository{client: client}
}

func tokenKey(token string) string          { return "push:token:" + token }
func tokenIDKey(id uuid.UUID) string        { return "push:id:" + id.String() }
func userTokensKey(userID uuid.UUID) string { return fmt.Sprintf("push:user:%s:tokens", userID) }

// Store stores a push notification token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if err := r.write(ctx, token); err != nil {
		return err
	}

	if err := r.client.SafeSAdd(ctx, userTokensKey(token.UserID), token.Token).Err(); err != nil {
		return fmt.Errorf("failed to add token to user set: %w", err)
	}
	if err := r.client.SafeExpire(ctx, userTokensKey(token.UserID), constants.PushTokenExpiry).Err(); err != nil {
		logger.Warn("Failed to set expiration on user tokens set",
			zap.String("user_id", token.UserID.String()),
			zap.Error(err))
	}
	return nil
}

// GetByToken retrieves a token by its value; nil when unknown
func (r *PushTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*push.Token, error) {
	data, err := r.client.SafeGet(ctx, tokenKey(tokenStr)).Bytes()
	if err != nil {
		if isNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token push.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// GetByUserID retrieves all tokens for a user
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	values, err := r.client.SafeSMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	var result []*push.Token
	for _, v := range values {
		token, err := r.GetByToken(ctx, v)
		if err != nil {
			logger.Warn("Failed to get token",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}
		if token != nil {
			result = append(result, token)
		}
	}
	return result, nil
}

// Update overwrites an existing token
func (r *PushTokenRepository) Update(ctx context.Context, token *push.Token) error {
	return r.write(ctx, token)
}

// Delete removes a token by id
func (r *PushTokenRepository) Delete(ctx context.Context, tokenID uuid.UUID) error {
	token, err := r.byID(ctx, tokenID)
	if err != nil || token == nil {
		return err
	}

	if err := r.client.SafeSRem(ctx, userTokensKey(token.UserID), token.Token).Err(); err != nil {
		return fmt.Errorf("failed to remove token from user set: %w", err)
	}
	if err := r.client.SafeDel(ctx, tokenKey(token.Token), tokenIDKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteByUserID removes all tokens for a user
func (r *PushTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	tokens, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	keys := []string{userTokensKey(userID)}
	for _, t := range tokens {
		keys = append(keys, tokenKey(t.Token), tokenIDKey(t.ID))
	}
	if err := r.client.SafeDel(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}
	return nil
}

// MarkInactive stops pushes to a token the provider rejected
func (r *PushTokenRepository) MarkInactive(ctx context.Context, tokenID uuid.UUID) error {
	token, err := r.byID(ctx, tokenID)
	if err != nil || token == nil {
		return err
	}
	token.Active = false
	return r.write(ctx, token)
}

func (r *PushTokenRepository) byID(ctx context.Context, tokenID uuid.UUID) (*push.Token, error) {
	value, err := r.client.SafeGet(ctx, tokenIDKey(tokenID)).Result()
	if err != nil {
		if isNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve token id: %w", err)
	}
	return r.GetByToken(ctx, value)
}

func (r *PushTokenRepository) write(ctx context.Context, token *push.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := r.client.SafeSet(ctx, tokenKey(token.Token), data, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if err := r.client.SafeSet(ctx, tokenIDKey(token.ID), token.Token, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to index token: %w", err)
	}
	return nil
}
