package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"travelchat-backend/pkg/env"
)

var (
	// Log is the global logger instance
	Log *zap.Logger
	// Sugar is the sugared logger for easier use
	Sugar *zap.SugaredLogger
)

// Packages log before main calls Init (and tests never do), so start with a no-op logger.
func init() {
	Log = zap.NewNop()
	Sugar = Log.Sugar()
}

// Config holds logger configuration
type Config struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Init initializes the global logger with configuration
func Init(cfg *Config) error {
	var zapConfig zap.Config

	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if cfg.Output == "file" && cfg.FilePath != "" {
		zapConfig.OutputPaths = []string{cfg.FilePath}
		zapConfig.ErrorOutputPaths = []string{cfg.FilePath}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	built, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	Log = built
	Sugar = Log.Sugar()

	return nil
}

// InitDefault initializes logger with default settings
func InitDefault() {
	cfg := &Config{
		Level:    env.GetString("LOG_LEVEL", "info"),
		Format:   env.GetString("LOG_FORMAT", "json"),
		Output:   env.GetString("LOG_OUTPUT", "stdout"),
		FilePath: env.GetString("LOG_FILE_PATH", "/logs/chat-service.log"),
	}

	if err := Init(cfg); err != nil {
		Log, _ = zap.NewProduction()
		Sugar = Log.Sugar()
	}
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
)

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID adds the authenticated user to context for log correlation
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// FromContext creates a logger with context fields
func FromContext(ctx context.Context) *zap.Logger {
	l := Log
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		l = l.With(zap.String("request_id", requestID))
	}
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		l = l.With(zap.String("user_id", userID))
	}
	return l
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Log.With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return Log.Sync()
}
