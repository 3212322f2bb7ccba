package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type typingChange struct {
	conversationID uuid.UUID
	userID         uuid.UUID
	typing         bool
}

type recordingNotifier struct {
	mu       sync.Mutex
	typing   []typingChange
	presence map[uuid.UUID][]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{presence: make(map[uuid.UUID][]bool)}
}

func (n *recordingNotifier) TypingChanged(ctx context.Context, conversationID, userID uuid.UUID, typing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.typing = append(n.typing, typingChange{conversationID, userID, typing})
}

func (n *recordingNotifier) PresenceChanged(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.presence[userID] = append(n.presence[userID], online)
}

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) SetUserOnline(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockMirror) SetUserOffline(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func newTestTracker() (*Tracker, *recordingNotifier, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	n := newRecordingNotifier()
	return NewTracker(n, WithClock(clock.Now), WithTypingTTL(8*time.Second)), n, clock
}

func TestTyping_AutoExpiry(t *testing.T) {
	tracker, _, clock := newTestTracker()
	ctx := context.Background()
	convID, userA := uuid.New(), uuid.New()

	tracker.StartTyping(ctx, convID, userA)
	assert.Equal(t, []uuid.UUID{userA}, tracker.TypingUsers(convID))

	clock.Advance(9 * time.Second)
	assert.Empty(t, tracker.TypingUsers(convID))
}

func TestTyping_RefreshExtendsExpiry(t *testing.T) {
	tracker, n, clock := newTestTracker()
	ctx := context.Background()
	convID, userA := uuid.New(), uuid.New()

	assert.True(t, tracker.StartTyping(ctx, convID, userA))
	clock.Advance(5 * time.Second)
	assert.False(t, tracker.StartTyping(ctx, convID, userA))
	clock.Advance(5 * time.Second)

	assert.Equal(t, []uuid.UUID{userA}, tracker.TypingUsers(convID))
	assert.Len(t, n.typing, 1, "refresh must not emit a second typing_start")
}

func TestTyping_StopIsIdempotent(t *testing.T) {
	tracker, n, _ := newTestTracker()
	ctx := context.Background()
	convID, userA := uuid.New(), uuid.New()

	tracker.StartTyping(ctx, convID, userA)
	assert.True(t, tracker.StopTyping(ctx, convID, userA))
	assert.False(t, tracker.StopTyping(ctx, convID, userA))

	require.Len(t, n.typing, 2)
	assert.Equal(t, typingChange{convID, userA, true}, n.typing[0])
	assert.Equal(t, typingChange{convID, userA, false}, n.typing[1])
}

func TestSweep_EmitsTypingStop(t *testing.T) {
	tracker, n, clock := newTestTracker()
	ctx := context.Background()
	convID, userA, userB := uuid.New(), uuid.New(), uuid.New()

	tracker.StartTyping(ctx, convID, userA)
	clock.Advance(4 * time.Second)
	tracker.StartTyping(ctx, convID, userB)
	clock.Advance(5 * time.Second)

	assert.Equal(t, 1, tracker.Sweep(ctx))
	assert.Equal(t, []uuid.UUID{userB}, tracker.TypingUsers(convID))
	assert.Equal(t, typingChange{convID, userA, false}, n.typing[len(n.typing)-1])

	assert.Equal(t, 0, tracker.Sweep(ctx))
}

func TestPresence_Transitions(t *testing.T) {
	tracker, n, _ := newTestTracker()
	ctx := context.Background()
	userA := uuid.New()

	assert.True(t, tracker.SetOnline(ctx, userA))
	assert.False(t, tracker.SetOnline(ctx, userA))
	assert.True(t, tracker.IsOnline(userA))

	assert.True(t, tracker.SetOffline(ctx, userA))
	assert.False(t, tracker.SetOffline(ctx, userA))
	assert.False(t, tracker.IsOnline(userA))

	assert.Equal(t, []bool{true, false}, n.presence[userA])
	_, ok := tracker.LastSeen(userA)
	assert.True(t, ok)
}

func TestSetOffline_ClearsTyping(t *testing.T) {
	tracker, n, _ := newTestTracker()
	ctx := context.Background()
	conv1, conv2, userA := uuid.New(), uuid.New(), uuid.New()

	tracker.SetOnline(ctx, userA)
	tracker.StartTyping(ctx, conv1, userA)
	tracker.StartTyping(ctx, conv2, userA)
	tracker.SetOffline(ctx, userA)

	assert.Empty(t, tracker.TypingUsers(conv1))
	assert.Empty(t, tracker.TypingUsers(conv2))

	stops := 0
	for _, c := range n.typing {
		if !c.typing {
			stops++
		}
	}
	assert.Equal(t, 2, stops)
}

func TestMirror_ErrorsAreNotFatal(t *testing.T) {
	mirror := new(MockMirror)
	userA := uuid.New()
	mirror.On("SetUserOnline", mock.Anything, userA).Return(errors.New("redis down"))
	mirror.On("SetUserOffline", mock.Anything, userA).Return(nil)

	tracker := NewTracker(nil, WithMirror(mirror))
	ctx := context.Background()

	assert.True(t, tracker.SetOnline(ctx, userA))
	assert.True(t, tracker.IsOnline(userA))
	assert.True(t, tracker.SetOffline(ctx, userA))
	mirror.AssertExpectations(t)
}

func TestRun_StopsOnCancel(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		tracker.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
