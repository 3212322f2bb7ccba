package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"travelchat-backend/internal/database"
)

// IdempotencyStore remembers which message a sender's client key produced
type IdempotencyStore struct {
	client *database.RedisClient
	ttl    time.Duration
}

// NewIdempotencyStore creates a store whose keys expire after ttl
func NewIdempotencyStore(client *database.RedisClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(senderID uuid.UUID, key string) string {
	return fmt.Sprintf("idem:%s:%s", senderID, key)
}

// Reserve binds key to messageID unless it is already bound, in which case the
// bound id is returned with reserved=false
func (s *IdempotencyStore) Reserve(ctx context.Context, senderID uuid.UUID, key string, messageID uuid.UUID) (uuid.UUID, bool, error) {
	k := idempotencyKey(senderID, key)
	ok, err := s.client.SafeSetNX(ctx, k, messageID.String(), s.ttl).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to reserve key: %w", err)
	}
	if ok {
		return messageID, true, nil
	}

	existing, err := s.client.SafeGet(ctx, k).Result()
	if err != nil {
		if isNil(err) {
			// expired between SETNX and GET; try once more
			return s.Reserve(ctx, senderID, key, messageID)
		}
		return uuid.Nil, false, fmt.Errorf("failed to read key: %w", err)
	}
	id, err := uuid.Parse(existing)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency entry %s: %w", k, err)
	}
	return id, false, nil
}

// Release forgets a reservation whose send failed
func (s *IdempotencyStore) Release(ctx context.Context, senderID uuid.UUID, key string) error {
	if err := s.client.SafeDel(ctx, idempotencyKey(senderID, key)).Err(); err != nil {
		return fmt.Errorf("failed to release key: %w", err)
	}
	return nil
}
