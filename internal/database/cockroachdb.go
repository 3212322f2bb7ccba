package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"travelchat-backend/pkg/constants"
	"travelchat-backend/pkg/logger"
)

// DBConfig contains database pool configuration
type DBConfig struct {
	MaxOpenConns      int
	MinConns          int
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() *DBConfig {
	return &DBConfig{
		MaxOpenConns:      25,
		MinConns:          5,
		ConnMaxLifetime:   constants.MaxConnLifetime,
		ConnMaxIdleTime:   constants.MaxConnIdleTime,
		HealthCheckPeriod: constants.HealthCheckPeriod,
	}
}

// ConnString builds a postgres URL for CockroachDB
func ConnString(host string, port int, user, password, database, sslMode string) string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	if password == "" {
		u.User = url.User(user)
	}
	return u.String()
}

// DB wraps the pgxpool.Pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection pool with configured limits
func NewDB(ctx context.Context, connString string, dbConfig *DBConfig) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	if dbConfig == nil {
		dbConfig = DefaultDBConfig()
	}
	config.MaxConns = int32(dbConfig.MaxOpenConns)
	config.MinConns = int32(dbConfig.MinConns)
	config.MaxConnLifetime = dbConfig.ConnMaxLifetime
	config.MaxConnIdleTime = dbConfig.ConnMaxIdleTime
	config.HealthCheckPeriod = dbConfig.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
	logger.Info("Database connection pool closed")
}
