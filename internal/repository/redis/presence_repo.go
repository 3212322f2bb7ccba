package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"travelchat-backend/internal/database"
	"travelchat-backend/pkg/constants"
	"travelchat-backend/pkg/metrics"
)

const onlineSetKey = "presence:online"

// PresenceRepository mirrors per-replica online status into Redis so other
// replicas and tooling can read it. Entries expire if a replica dies.
type PresenceRepository struct {
	client *database.RedisClient
	ttl    time.Duration
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{client: client, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetUserOnline marks user as online
func (r *PresenceRepository) SetUserOnline(ctx context.Context, userID uuid.UUID) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery("redis", "presence_online", start, err) }(time.Now())

	if err = r.client.SafeSet(ctx, presenceKey(userID), constants.UserStatusOnline, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	if err = r.client.SafeSAdd(ctx, onlineSetKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}
	return nil
}

// SetUserOffline marks user as offline
func (r *PresenceRepository) SetUserOffline(ctx context.Context, userID uuid.UUID) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery("redis", "presence_offline", start, err) }(time.Now())

	if err = r.client.SafeDel(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	if err = r.client.SafeSRem(ctx, onlineSetKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}
	return nil
}

// IsUserOnline checks the mirrored status of a user
func (r *PresenceRepository) IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	status, err := r.client.SafeGet(ctx, presenceKey(userID)).Result()
	if err != nil {
		if isNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return status == constants.UserStatusOnline, nil
}

// GetOnlineUsers lists users any replica has mirrored as online
func (r *PresenceRepository) GetOnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := r.client.SafeSMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}

	userIDs := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, nil
}
