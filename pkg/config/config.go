package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"travelchat-backend/pkg/env"
)

// Storage backends
const (
	StorageMemory  = "memory"
	StorageCluster = "cluster"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Storage   string // memory, cluster
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	MinIO     MinIOConfig
	Push      PushConfig
	JWT       JWTConfig
	Log       LogConfig
	Chat      ChatConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Environment     string // development, staging, production
	ServiceName     string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	Consistency string
	Timeout     time.Duration
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// PushConfig selects and configures the push provider
type PushConfig struct {
	Provider            string // mock, fcm, apns
	FirebaseProjectID   string
	FirebaseCredentials string
	APNsKeyPath         string
	APNsKeyID           string
	APNsTeamID          string
	APNsTopic           string
	APNsProduction      bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
	Issuer string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// ChatConfig holds the realtime and retention knobs of the chat core
type ChatConfig struct {
	TypingTTL           time.Duration
	TypingSweepInterval time.Duration
	PresenceTTL         time.Duration
	IdempotencyTTL      time.Duration
	LockTTL             time.Duration
	SessionBuffer       int
	FrameRate           float64 // inbound websocket frames per second
	FrameBurst          int
	RetentionRead       time.Duration
	RetentionUnread     time.Duration
	RetentionInterval   time.Duration
}

// Load loads configuration from environment variables, reading a .env file first when present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            env.GetInt("PORT", 8082),
			Environment:     env.GetString("ENV", "development"),
			ServiceName:     env.GetString("SERVICE_NAME", "chat-service"),
			ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  env.GetStringList("CORS_ALLOWED_ORIGINS", ""),
		},
		Storage: strings.ToLower(env.GetString("STORAGE_BACKEND", StorageMemory)),
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "travelchat"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Hosts:       env.GetStringList("CASSANDRA_HOSTS", "localhost"),
			Keyspace:    env.GetString("CASSANDRA_KEYSPACE", "travelchat"),
			Username:    env.GetStringFromFile("CASSANDRA_USER", ""),
			Password:    env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Consistency: env.GetString("CASSANDRA_CONSISTENCY", "QUORUM"),
			Timeout:     env.GetDuration("CASSANDRA_TIMEOUT", 600*time.Millisecond),
		},
		MinIO: MinIOConfig{
			Enabled:   env.GetBool("MINIO_ENABLED", false),
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "chat-attachments"),
		},
		Push: PushConfig{
			Provider:            env.GetString("PUSH_PROVIDER", "mock"),
			FirebaseProjectID:   env.GetString("FIREBASE_PROJECT_ID", ""),
			FirebaseCredentials: env.GetString("FIREBASE_CREDENTIALS_PATH", ""),
			APNsKeyPath:         env.GetString("APNS_KEY_PATH", ""),
			APNsKeyID:           env.GetString("APNS_KEY_ID", ""),
			APNsTeamID:          env.GetString("APNS_TEAM_ID", ""),
			APNsTopic:           env.GetString("APNS_TOPIC", ""),
			APNsProduction:      env.GetBool("APNS_PRODUCTION", false),
		},
		JWT: JWTConfig{
			Secret: env.GetStringFromFile("JWT_SECRET", ""),
			Issuer: env.GetString("JWT_ISSUER", "travel-marketplace"),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/chat-service.log"),
		},
		Chat: ChatConfig{
			TypingTTL:           env.GetDuration("TYPING_TTL", 8*time.Second),
			TypingSweepInterval: env.GetDuration("TYPING_SWEEP_INTERVAL", 2*time.Second),
			PresenceTTL:         env.GetDuration("PRESENCE_TTL", 5*time.Minute),
			IdempotencyTTL:      env.GetDuration("IDEMPOTENCY_TTL", 10*time.Minute),
			LockTTL:             env.GetDuration("CONVERSATION_LOCK_TTL", 5*time.Second),
			SessionBuffer:       env.GetInt("WS_SEND_BUFFER", 256),
			FrameRate:           env.GetFloat("WS_FRAMES_PER_SECOND", 10),
			FrameBurst:          env.GetInt("WS_FRAME_BURST", 20),
			RetentionRead:       env.GetDuration("NOTIFICATION_RETENTION_READ", 30*24*time.Hour),
			RetentionUnread:     env.GetDuration("NOTIFICATION_RETENTION_UNREAD", 90*24*time.Hour),
			RetentionInterval:   env.GetDuration("NOTIFICATION_PRUNE_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage != StorageMemory && c.Storage != StorageCluster {
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageMemory, StorageCluster, c.Storage)
	}

	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}

	if c.Chat.TypingTTL <= 0 {
		return fmt.Errorf("TYPING_TTL must be positive")
	}
	if c.Chat.SessionBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
