package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
)

// DefaultTypingTTL is how long a typing indicator survives without a refresh
const DefaultTypingTTL = 8 * time.Second

// Notifier receives presence and typing transitions
type Notifier interface {
	TypingChanged(ctx context.Context, conversationID, userID uuid.UUID, typing bool)
	PresenceChanged(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time)
}

// Mirror publishes online status for other replicas. It is a hint only.
type Mirror interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
}

type typingKey struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

// Tracker holds process-local presence and typing state
type Tracker struct {
	mu       sync.RWMutex
	online   map[uuid.UUID]time.Time
	lastSeen map[uuid.UUID]time.Time
	typing   map[uuid.UUID]map[uuid.UUID]time.Time // conversation -> user -> expiry

	ttl      time.Duration
	notifier Notifier
	mirror   Mirror
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithTypingTTL overrides DefaultTypingTTL
func WithTypingTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMirror records online status in a shared store
func WithMirror(m Mirror) Option {
	return func(t *Tracker) { t.mirror = m }
}

// WithMetrics reports online users and expired typing entries
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates a tracker emitting transitions to notifier. notifier may be nil.
func NewTracker(notifier Notifier, opts ...Option) *Tracker {
	t := &Tracker{
		online:   make(map[uuid.UUID]time.Time),
		lastSeen: make(map[uuid.UUID]time.Time),
		typing:   make(map[uuid.UUID]map[uuid.UUID]time.Time),
		ttl:      DefaultTypingTTL,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetOnline marks the user online. It reports whether the state changed.
func (t *Tracker) SetOnline(ctx context.Context, userID uuid.UUID) bool {
	now := t.now()

	t.mu.Lock()
	_, already := t.online[userID]
	if !already {
		t.online[userID] = now
	}
	count := len(t.online)
	t.mu.Unlock()

	if already {
		return false
	}

	t.metrics.SetUsersOnline(count)
	if t.mirror != nil {
		if err := t.mirror.SetUserOnline(ctx, userID); err != nil {
			logger.FromContext(ctx).Warn("Failed to mirror online status",
				zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	if t.notifier != nil {
		t.notifier.PresenceChanged(ctx, userID, true, now)
	}
	return true
}

// SetOffline marks the user offline and clears every typing indicator they hold
func (t *Tracker) SetOffline(ctx context.Context, userID uuid.UUID) bool {
	now := t.now()

	t.mu.Lock()
	_, wasOnline := t.online[userID]
	delete(t.online, userID)
	t.lastSeen[userID] = now
	var stopped []uuid.UUID
	for convID, users := range t.typing {
		if _, ok := users[userID]; ok {
			delete(users, userID)
			stopped = append(stopped, convID)
			if len(users) == 0 {
				delete(t.typing, convID)
			}
		}
	}
	count := len(t.online)
	t.mu.Unlock()

	if t.notifier != nil {
		for _, convID := range stopped {
			t.notifier.TypingChanged(ctx, convID, userID, false)
		}
	}
	if !wasOnline {
		return false
	}

	t.metrics.SetUsersOnline(count)
	if t.mirror != nil {
		if err := t.mirror.SetUserOffline(ctx, userID); err != nil {
			logger.FromContext(ctx).Warn("Failed to mirror offline status",
				zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	if t.notifier != nil {
		t.notifier.PresenceChanged(ctx, userID, false, now)
	}
	return true
}

// IsOnline reports whether the user has a live session on this replica
func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// LastSeen returns when the user last went offline
func (t *Tracker) LastSeen(userID uuid.UUID) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.lastSeen[userID]
	return at, ok
}

// OnlineCount returns the number of users online on this replica
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}

// StartTyping records or refreshes a typing indicator.
// typing_start is emitted only when the user was not already typing.
func (t *Tracker) StartTyping(ctx context.Context, conversationID, userID uuid.UUID) bool {
	now := t.now()

	t.mu.Lock()
	users, ok := t.typing[conversationID]
	if !ok {
		users = make(map[uuid.UUID]time.Time)
		t.typing[conversationID] = users
	}
	expiry, exists := users[userID]
	started := !exists || !now.Before(expiry)
	users[userID] = now.Add(t.ttl)
	t.mu.Unlock()

	if started && t.notifier != nil {
		t.notifier.TypingChanged(ctx, conversationID, userID, true)
	}
	return started
}

// StopTyping clears a typing indicator. Stopping twice is a no-op.
func (t *Tracker) StopTyping(ctx context.Context, conversationID, userID uuid.UUID) bool {
	t.mu.Lock()
	users, ok := t.typing[conversationID]
	_, exists := users[userID]
	if exists {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.typing, conversationID)
		}
	}
	t.mu.Unlock()

	if !ok || !exists {
		return false
	}
	if t.notifier != nil {
		t.notifier.TypingChanged(ctx, conversationID, userID, false)
	}
	return true
}

// TypingUsers returns the users typing in a conversation. Expired entries are skipped.
func (t *Tracker) TypingUsers(conversationID uuid.UUID) []uuid.UUID {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	users := t.typing[conversationID]
	out := make([]uuid.UUID, 0, len(users))
	for userID, expiry := range users {
		if now.Before(expiry) {
			out = append(out, userID)
		}
	}
	return out
}

// Sweep removes expired typing entries and emits typing_stop for each
func (t *Tracker) Sweep(ctx context.Context) int {
	now := t.now()

	t.mu.Lock()
	var expired []typingKey
	for convID, users := range t.typing {
		for userID, expiry := range users {
			if !now.Before(expiry) {
				delete(users, userID)
				expired = append(expired, typingKey{convID, userID})
			}
		}
		if len(users) == 0 {
			delete(t.typing, convID)
		}
	}
	t.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	t.metrics.RecordTypingExpired(len(expired))
	if t.notifier != nil {
		for _, k := range expired {
			t.notifier.TypingChanged(ctx, k.conversationID, k.userID, false)
		}
	}
	return len(expired)
}

// Run sweeps expired typing entries every interval until ctx is done
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(ctx); n > 0 {
				logger.Debug("Expired typing indicators", zap.Int("count", n))
			}
		}
	}
}

// UserConnected marks a user online when their first session opens
func (t *Tracker) UserConnected(ctx context.Context, userID uuid.UUID) {
	t.SetOnline(ctx, userID)
}

// UserDisconnected marks a user offline when their last session closes
func (t *Tracker) UserDisconnected(ctx context.Context, userID uuid.UUID) {
	t.SetOffline(ctx, userID)
}
