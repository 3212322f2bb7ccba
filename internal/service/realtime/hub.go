package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
)

// DefaultSessionBuffer is the number of outbound frames a session may queue
const DefaultSessionBuffer = 256

// Session is one live connection of a user. Frames queued with enqueue are
// written by the connection's writer in queue order.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session with a send queue of the given size
func NewSession(userID uuid.UUID, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	return &Session{
		ID:     uuid.New(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Outbound is the queue the connection writer drains
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Done is closed when the session is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session closed. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue adds a frame without blocking. A full queue reports false.
func (s *Session) enqueue(payload []byte) bool {
	if s.closed() {
		return false
	}

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// ConnectionListener is told when a user's first session opens and last session closes
type ConnectionListener interface {
	UserConnected(ctx context.Context, userID uuid.UUID)
	UserDisconnected(ctx context.Context, userID uuid.UUID)
}

// userGate orders one user's connect and disconnect transitions
type userGate struct {
	mu   sync.Mutex
	refs int
}

// Hub is the registry of live sessions on this replica. It is also the local Transport.
// Listeners see a user's transitions in the order the sessions changed.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]map[uuid.UUID]*Session
	total     int
	listeners []ConnectionListener
	metrics   *metrics.Metrics

	gatesMu sync.Mutex
	gates   map[uuid.UUID]*userGate
}

// NewHub creates an empty session registry
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[uuid.UUID]*Session),
		metrics:  m,
		gates:    make(map[uuid.UUID]*userGate),
	}
}

// lockUser holds userID's transition gate until the returned func is called.
// The membership change and the listener calls both happen under it.
func (h *Hub) lockUser(userID uuid.UUID) func() {
	h.gatesMu.Lock()
	g, ok := h.gates[userID]
	if !ok {
		g = &userGate{}
		h.gates[userID] = g
	}
	g.refs++
	h.gatesMu.Unlock()

	g.mu.Lock()
	return func() {
		g.mu.Unlock()
		h.gatesMu.Lock()
		g.refs--
		if g.refs == 0 {
			delete(h.gates, userID)
		}
		h.gatesMu.Unlock()
	}
}

// AddListener subscribes l to connection transitions. Call before serving traffic.
func (h *Hub) AddListener(l ConnectionListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// Register adds a session
func (h *Hub) Register(ctx context.Context, s *Session) {
	unlock := h.lockUser(s.UserID)
	defer unlock()

	h.mu.Lock()
	userSessions, ok := h.sessions[s.UserID]
	if !ok {
		userSessions = make(map[uuid.UUID]*Session)
		h.sessions[s.UserID] = userSessions
	}
	first := len(userSessions) == 0
	if _, dup := userSessions[s.ID]; !dup {
		userSessions[s.ID] = s
		h.total++
	}
	total := h.total
	listeners := h.listeners
	h.mu.Unlock()

	h.metrics.SetWebSocketConnections(total)
	logger.FromContext(ctx).Debug("Session registered",
		zap.String("user_id", s.UserID.String()),
		zap.String("session_id", s.ID.String()))

	if first {
		for _, l := range listeners {
			l.UserConnected(ctx, s.UserID)
		}
	}
}

// Unregister removes and closes a session. Unregistering twice is a no-op.
func (h *Hub) Unregister(ctx context.Context, s *Session) {
	s.Close()

	unlock := h.lockUser(s.UserID)
	defer unlock()

	h.mu.Lock()
	userSessions, ok := h.sessions[s.UserID]
	_, exists := userSessions[s.ID]
	last := false
	if ok && exists {
		delete(userSessions, s.ID)
		h.total--
		if len(userSessions) == 0 {
			delete(h.sessions, s.UserID)
			last = true
		}
	}
	total := h.total
	listeners := h.listeners
	h.mu.Unlock()

	if !exists {
		return
	}

	h.metrics.SetWebSocketConnections(total)
	logger.FromContext(ctx).Debug("Session unregistered",
		zap.String("user_id", s.UserID.String()),
		zap.String("session_id", s.ID.String()))

	if last {
		for _, l := range listeners {
			l.UserDisconnected(ctx, s.UserID)
		}
	}
}

// Sessions lists the live sessions of a user
func (h *Hub) Sessions(userID uuid.UUID) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Session, 0, len(h.sessions[userID]))
	for _, s := range h.sessions[userID] {
		out = append(out, s)
	}
	return out
}

// SessionCount returns the number of live sessions on this replica
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Deliver queues payload on every session of userID and returns how many accepted it.
// Sessions whose queue is full are closed as slow consumers and unregistered in the
// background: Deliver runs inside other users' listeners, which hold their own gates.
func (h *Hub) Deliver(ctx context.Context, userID uuid.UUID, payload []byte) (int, error) {
	var slow []*Session
	delivered := 0

	h.mu.RLock()
	for _, s := range h.sessions[userID] {
		if s.enqueue(payload) {
			delivered++
			continue
		}
		if !s.closed() {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.metrics.RecordSlowConsumer()
		logger.FromContext(ctx).Warn("Closing slow session",
			zap.String("user_id", userID.String()),
			zap.String("session_id", s.ID.String()))
		s.Close()
		go h.Unregister(context.WithoutCancel(ctx), s)
	}

	return delivered, nil
}

// CloseAll unregisters every session, used on shutdown
func (h *Hub) CloseAll(ctx context.Context) {
	h.mu.RLock()
	var all []*Session
	for _, userSessions := range h.sessions {
		for _, s := range userSessions {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		h.Unregister(ctx, s)
	}
}
