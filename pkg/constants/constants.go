// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// FanoutTimeout bounds one realtime delivery attempt
	FanoutTimeout = 5 * time.Second

	// NotificationTimeout bounds the offline fallback (persist + push)
	NotificationTimeout = 10 * time.Second
)

// WebSocket constants
const (
	// WebSocketWriteWait is the time allowed to write a message to the peer
	WebSocketWriteWait = 10 * time.Second

	// WebSocketPongWait is the time allowed to read the next pong message from the peer
	WebSocketPongWait = 60 * time.Second

	// WebSocketPingInterval must be less than WebSocketPongWait
	WebSocketPingInterval = (WebSocketPongWait * 9) / 10

	// WebSocketMaxMessageSize caps an inbound frame in bytes
	WebSocketMaxMessageSize = 64 * 1024
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Conversation registry constants
const (
	// FindOrCreateRetries bounds retries of a conflicting conversation insert
	FindOrCreateRetries = 5

	// RecordMessageRetries bounds attempts to apply an accepted message to the counters
	RecordMessageRetries = 3

	// LockRetryInterval is the back-off between conversation lock attempts
	LockRetryInterval = 10 * time.Millisecond
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour // 30 days
)

// User status constants
const (
	// UserStatusOnline indicates a user is currently online
	UserStatusOnline = "online"

	// UserStatusOffline indicates a user is currently offline
	UserStatusOffline = "offline"
)
