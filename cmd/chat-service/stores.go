package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	intDatabase "travelchat-backend/internal/database"
	"travelchat-backend/internal/repository/cassandra"
	"travelchat-backend/internal/repository/cockroach"
	"travelchat-backend/internal/repository/memory"
	redisRepo "travelchat-backend/internal/repository/redis"
	chatService "travelchat-backend/internal/service/chat"
	conversationService "travelchat-backend/internal/service/conversation"
	moderationService "travelchat-backend/internal/service/moderation"
	notificationService "travelchat-backend/internal/service/notification"
	"travelchat-backend/internal/service/presence"
	"travelchat-backend/internal/service/realtime"
	"travelchat-backend/pkg/config"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/push"
)

// stores is the persistence and cross-replica plumbing selected by STORAGE_BACKEND
type stores struct {
	messages      chatService.MessageRepository
	conversations conversationService.Repository
	blocks        moderationService.BlockRepository
	notifications notificationService.Repository
	pushTokens    push.TokenRepository
	locker        chatService.Locker
	idempotency   chatService.IdempotencyStore
	mirror        presence.Mirror
	transport     realtime.Transport
	listeners     []realtime.ConnectionListener
	background    []func(ctx context.Context)
	closers       []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, hub *realtime.Hub) (*stores, error) {
	if cfg.Storage == config.StorageCluster {
		return openClusterStores(ctx, cfg, hub)
	}

	logger.Warn("Using in-memory storage; data is lost on restart and replicas do not share state")
	return &stores{
		messages:      memory.NewMessageRepository(),
		conversations: memory.NewConversationRepository(),
		blocks:        memory.NewBlockRepository(),
		notifications: memory.NewNotificationRepository(),
		pushTokens:    memory.NewPushTokenRepository(),
		locker:        memory.NewLocker(),
		idempotency:   memory.NewIdempotencyStore(cfg.Chat.IdempotencyTTL),
		transport:     hub,
	}, nil
}

func openClusterStores(ctx context.Context, cfg *config.Config, hub *realtime.Hub) (_ *stores, err error) {
	st := &stores{}
	defer func() {
		if err != nil {
			st.close()
		}
	}()

	// 1. CockroachDB: conversations, blocks, notifications
	dbConfig := intDatabase.DefaultDBConfig()
	dbConfig.MaxOpenConns = cfg.Database.MaxConns
	dbConfig.MinConns = cfg.Database.MinConns
	db, err := intDatabase.NewDB(ctx, intDatabase.ConnString(
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Database, cfg.Database.SSLMode,
	), dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CockroachDB: %w", err)
	}
	st.closers = append(st.closers, db.Close)
	if err := cockroach.Migrate(ctx, db.Pool); err != nil {
		return nil, fmt.Errorf("failed to migrate CockroachDB: %w", err)
	}
	logger.Info("Connected to CockroachDB", zap.String("host", cfg.Database.Host))

	// 2. Cassandra: message history
	cassandraDB, err := intDatabase.NewCassandraDBWithConfig(&intDatabase.CassandraConfig{
		Hosts:       cfg.Cassandra.Hosts,
		Keyspace:    cfg.Cassandra.Keyspace,
		Username:    cfg.Cassandra.Username,
		Password:    cfg.Cassandra.Password,
		Consistency: cfg.Cassandra.Consistency,
		Timeout:     cfg.Cassandra.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	st.closers = append(st.closers, cassandraDB.Close)
	if err := cassandra.Migrate(ctx, cassandraDB); err != nil {
		return nil, fmt.Errorf("failed to migrate Cassandra: %w", err)
	}
	logger.Info("Connected to Cassandra", zap.Strings("hosts", cfg.Cassandra.Hosts))

	// 3. Redis: locks, idempotency keys, presence, push tokens, event relay
	redisDB, err := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	st.closers = append(st.closers, redisDB.Close)
	redisDB.StartHealthCheck(ctx, 10*time.Second)
	logger.Info("Connected to Redis", zap.String("host", cfg.Redis.Host))

	relay := realtime.NewRedisRelay(redisDB, hub)
	st.closers = append(st.closers, func() {
		if err := relay.Close(); err != nil {
			logger.Warn("Failed to close relay", zap.Error(err))
		}
	})

	st.messages = cassandra.NewMessageRepository(cassandraDB)
	st.conversations = cockroach.NewConversationRepository(db.Pool)
	st.blocks = cockroach.NewBlockRepository(db.Pool)
	st.notifications = cockroach.NewNotificationRepository(db.Pool)
	st.pushTokens = redisRepo.NewPushTokenRepository(redisDB)
	st.locker = redisRepo.NewLocker(redisDB, cfg.Chat.LockTTL)
	st.idempotency = redisRepo.NewIdempotencyStore(redisDB, cfg.Chat.IdempotencyTTL)
	st.mirror = redisRepo.NewPresenceRepository(redisDB, cfg.Chat.PresenceTTL)
	st.transport = relay
	st.listeners = append(st.listeners, relay)
	st.background = append(st.background, relay.Run)

	return st, nil
}
