package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"travelchat-backend/internal/domain"
	adminHandler "travelchat-backend/internal/handler/http/admin"
	blockHandler "travelchat-backend/internal/handler/http/block"
	chatHandler "travelchat-backend/internal/handler/http/chat"
	conversationHandler "travelchat-backend/internal/handler/http/conversation"
	notificationHandler "travelchat-backend/internal/handler/http/notification"
	pushHandler "travelchat-backend/internal/handler/http/push"
	wsHandler "travelchat-backend/internal/handler/ws"
	"travelchat-backend/internal/middleware"
	chatService "travelchat-backend/internal/service/chat"
	conversationService "travelchat-backend/internal/service/conversation"
	moderationService "travelchat-backend/internal/service/moderation"
	notificationService "travelchat-backend/internal/service/notification"
	"travelchat-backend/internal/service/presence"
	"travelchat-backend/internal/service/realtime"
	storageService "travelchat-backend/internal/service/storage"
	"travelchat-backend/pkg/config"
	"travelchat-backend/pkg/jwt"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
	"travelchat-backend/pkg/push"
)

func main() {
	// 1. Load configuration and logger
	cfg, err := config.Load()
	if err != nil {
		logger.InitDefault()
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		logger.InitDefault()
		logger.Warn("Falling back to default logger", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, 15*time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	hub := realtime.NewHub(appMetrics)

	// 2. Storage backend
	st, err := openStores(ctx, cfg, hub)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.String("backend", cfg.Storage), zap.Error(err))
	}
	defer st.close()

	// 3. Attachments and push
	var attachments chatService.AttachmentVerifier
	if cfg.MinIO.Enabled {
		minioClient, err := storageService.NewMinioClient(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.UseSSL)
		if err != nil {
			logger.Fatal("Failed to create MinIO client", zap.Error(err))
		}
		attachments = storageService.NewService(minioClient, cfg.MinIO.Bucket)
		logger.Info("Attachment verification enabled", zap.String("bucket", cfg.MinIO.Bucket))
	}

	pushProvider, err := push.NewProvider(&cfg.Push)
	if err != nil {
		logger.Fatal("Failed to create push provider", zap.Error(err))
	}
	pushSvc := push.NewService(pushProvider, st.pushTokens)

	// 4. Services
	conversationSvc := conversationService.NewService(st.conversations, appMetrics)
	moderationSvc := moderationService.NewService(st.blocks)
	notificationSvc := notificationService.NewService(st.notifications, pushSvc, appMetrics, domain.RetentionPolicy{
		ReadOlderThan:   cfg.Chat.RetentionRead,
		UnreadOlderThan: cfg.Chat.RetentionUnread,
	})
	dispatcher := realtime.NewDispatcher(st.transport, conversationSvc, notificationSvc, appMetrics)

	trackerOpts := []presence.Option{
		presence.WithTypingTTL(cfg.Chat.TypingTTL),
		presence.WithMetrics(appMetrics),
	}
	if st.mirror != nil {
		trackerOpts = append(trackerOpts, presence.WithMirror(st.mirror))
	}
	tracker := presence.NewTracker(dispatcher, trackerOpts...)

	hub.AddListener(tracker)
	for _, l := range st.listeners {
		hub.AddListener(l)
	}

	chatSvc := chatService.NewService(chatService.Deps{
		Messages:      st.messages,
		Conversations: conversationSvc,
		Blocks:        moderationSvc,
		Dispatcher:    dispatcher,
		Typing:        tracker,
		Locker:        st.locker,
		Idempotency:   st.idempotency,
		Attachments:   attachments,
		Notifications: notificationSvc,
		Metrics:       appMetrics,
	})

	// 5. Background loops
	go tracker.Run(ctx, cfg.Chat.TypingSweepInterval)
	go notificationSvc.RunPruner(ctx, cfg.Chat.RetentionInterval)
	for _, run := range st.background {
		go run(ctx)
	}

	// 6. Handlers
	chatHdlr := chatHandler.NewHandler(chatSvc, tracker)
	conversationHdlr := conversationHandler.NewHandler(conversationSvc)
	blockHdlr := blockHandler.NewHandler(moderationSvc)
	notificationHdlr := notificationHandler.NewHandler(notificationSvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)
	adminHdlr := adminHandler.NewHandler(chatSvc)
	wsHdlr := wsHandler.NewChatHandler(hub, chatSvc, wsHandler.ChatOptions{
		SessionBuffer:  cfg.Chat.SessionBuffer,
		FrameRate:      cfg.Chat.FrameRate,
		FrameBurst:     cfg.Chat.FrameBurst,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, appMetrics)

	// 7. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Warn("Failed to set trusted proxies", zap.Error(err))
	}

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthHandler(middleware.HealthInfo{
		ServiceName: cfg.Server.ServiceName,
		Storage:     cfg.Storage,
		Sessions:    hub.SessionCount,
	}))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	rateLimiter := middleware.NewRateLimiter(120, time.Minute, 30)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		// WebSocket event stream
		v1.GET("/ws/chat", wsHdlr.ServeWS)

		api := v1.Group("")
		api.Use(rateLimiter.Middleware())

		conversations := api.Group("/conversations")
		{
			conversations.POST("", conversationHdlr.CreateConversation)
			conversations.GET("", conversationHdlr.GetConversations)
			conversations.GET("/:id", conversationHdlr.GetConversation)
			conversations.POST("/:id/archive", conversationHdlr.ArchiveConversation)
			conversations.POST("/:id/read", chatHdlr.MarkConversationRead)
			conversations.POST("/:id/messages", chatHdlr.SendMessage)
			conversations.GET("/:id/messages", chatHdlr.GetMessages)
		}

		api.POST("/messages/:id/read", chatHdlr.MarkMessageRead)
		api.POST("/messages/:id/flag", chatHdlr.FlagMessage)

		api.POST("/typing", chatHdlr.HandleTypingIndicator)
		api.POST("/presence", chatHdlr.UpdatePresence)
		api.GET("/presence/:user_id", chatHdlr.GetPresence)

		api.POST("/blocks", blockHdlr.BlockUser)
		api.GET("/blocks", blockHdlr.GetBlockedUsers)
		api.DELETE("/blocks/:user_id", blockHdlr.UnblockUser)

		api.GET("/notifications", notificationHdlr.GetNotifications)
		api.POST("/notifications/read-all", notificationHdlr.MarkAllAsRead)
		api.POST("/notifications/:id/read", notificationHdlr.MarkAsRead)

		api.POST("/push/tokens", pushHdlr.RegisterToken)
		api.DELETE("/push/tokens", pushHdlr.UnregisterToken)
		api.DELETE("/push/tokens/all", pushHdlr.UnregisterAllTokens)

		api.DELETE("/me/messages", chatHdlr.EraseMyMessages)

		admin := api.Group("/admin", adminHandler.RequireAdmin())
		{
			admin.POST("/messages/:id/moderate", adminHdlr.ModerateMessage)
			admin.POST("/conversations/:id/system-messages", adminHdlr.PostSystemMessage)
			admin.DELETE("/users/:user_id/messages", adminHdlr.EraseUserMessages)
		}
	}

	// 8. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Chat service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 9. Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	hub.CloseAll(shutdownCtx)
	dispatcher.Wait()

	logger.Info("Server exited")
}
