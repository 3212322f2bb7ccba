package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"travelchat-backend/internal/database"
	"travelchat-backend/pkg/logger"
)

const userChannelPrefix = "chat:user:"

// RedisRelay is the cross-replica Transport. Each replica subscribes to
// chat:user:{id} while it holds a session of that user, so the PUBLISH
// receiver count tells whether the user is live on any replica.
type RedisRelay struct {
	client *database.RedisClient
	hub    *Hub

	mu     sync.Mutex
	pubsub *redis.PubSub
}

// NewRedisRelay creates a relay delivering received events to hub
func NewRedisRelay(client *database.RedisClient, hub *Hub) *RedisRelay {
	return &RedisRelay{
		client: client,
		hub:    hub,
		pubsub: client.Client.Subscribe(context.Background()),
	}
}

// Deliver publishes payload to the user's channel. When Redis is unreachable
// the event is delivered to this replica's sessions only.
func (r *RedisRelay) Deliver(ctx context.Context, userID uuid.UUID, payload []byte) (int, error) {
	receivers, err := r.client.SafePublish(ctx, userChannel(userID), payload).Result()
	if err != nil {
		logger.FromContext(ctx).Warn("Relay publish failed, delivering locally",
			zap.String("user_id", userID.String()), zap.Error(err))
		return r.hub.Deliver(ctx, userID, payload)
	}
	return int(receivers), nil
}

// UserConnected subscribes this replica to the user's channel
func (r *RedisRelay) UserConnected(ctx context.Context, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pubsub.Subscribe(ctx, userChannel(userID)); err != nil {
		logger.FromContext(ctx).Error("Failed to subscribe user channel",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// UserDisconnected drops the subscription once the user's last local session closed
func (r *RedisRelay) UserDisconnected(ctx context.Context, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pubsub.Unsubscribe(ctx, userChannel(userID)); err != nil {
		logger.FromContext(ctx).Warn("Failed to unsubscribe user channel",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Run forwards received events to local sessions until ctx is done
func (r *RedisRelay) Run(ctx context.Context) {
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, err := parseUserChannel(msg.Channel)
			if err != nil {
				logger.Warn("Ignoring relay message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if _, err := r.hub.Deliver(ctx, userID, []byte(msg.Payload)); err != nil {
				logger.Warn("Local delivery failed", zap.String("user_id", userID.String()), zap.Error(err))
			}
		}
	}
}

// Close releases the pubsub connection
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Close()
}

func userChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

func parseUserChannel(channel string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("unexpected channel %q", channel)
	}
	return uuid.Parse(raw)
}
