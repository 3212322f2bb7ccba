package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu           sync.Mutex
	connected    []uuid.UUID
	disconnected []uuid.UUID
}

func (l *recordingListener) UserConnected(ctx context.Context, userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = append(l.connected, userID)
}

func (l *recordingListener) UserDisconnected(ctx context.Context, userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected = append(l.disconnected, userID)
}

func drain(s *Session) []string {
	var out []string
	for {
		select {
		case p := <-s.Outbound():
			out = append(out, string(p))
		default:
			return out
		}
	}
}

func TestHub_FirstAndLastSessionTransitions(t *testing.T) {
	hub := NewHub(nil)
	l := &recordingListener{}
	hub.AddListener(l)
	ctx := context.Background()
	userID := uuid.New()

	s1 := NewSession(userID, 4)
	s2 := NewSession(userID, 4)
	hub.Register(ctx, s1)
	hub.Register(ctx, s2)
	assert.Len(t, hub.Sessions(userID), 2)
	assert.Equal(t, []uuid.UUID{userID}, l.connected)

	hub.Unregister(ctx, s1)
	assert.Empty(t, l.disconnected)
	hub.Unregister(ctx, s2)
	hub.Unregister(ctx, s2)
	assert.Equal(t, []uuid.UUID{userID}, l.disconnected)
	assert.Equal(t, 0, hub.SessionCount())
}

func TestHub_DeliverToAllSessionsInOrder(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	userID := uuid.New()

	s1 := NewSession(userID, 8)
	s2 := NewSession(userID, 8)
	hub.Register(ctx, s1)
	hub.Register(ctx, s2)

	for _, p := range []string{"m1", "m2", "m3"} {
		n, err := hub.Deliver(ctx, userID, []byte(p))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	assert.Equal(t, []string{"m1", "m2", "m3"}, drain(s1))
	assert.Equal(t, []string{"m1", "m2", "m3"}, drain(s2))
}

func TestHub_NoSessions(t *testing.T) {
	hub := NewHub(nil)

	n, err := hub.Deliver(context.Background(), uuid.New(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHub_SlowConsumerIsClosed(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	userID := uuid.New()

	slow := NewSession(userID, 1)
	fast := NewSession(userID, 8)
	hub.Register(ctx, slow)
	hub.Register(ctx, fast)

	n, err := hub.Deliver(ctx, userID, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = hub.Deliver(ctx, userID, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow session should be closed")
	}
	assert.Eventually(t, func() bool { return len(hub.Sessions(userID)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, drain(fast))

	n, err = hub.Deliver(ctx, userID, []byte("third"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// gatedListener blocks UserDisconnected until release is closed
type gatedListener struct {
	mu       sync.Mutex
	online   bool
	entered  chan struct{}
	release  chan struct{}
	gateOnce sync.Once
}

func (l *gatedListener) UserConnected(ctx context.Context, userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.online = true
}

func (l *gatedListener) UserDisconnected(ctx context.Context, userID uuid.UUID) {
	l.gateOnce.Do(func() {
		close(l.entered)
		<-l.release
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	l.online = false
}

func (l *gatedListener) isOnline() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.online
}

func TestHub_ReconnectDuringDisconnectEndsOnline(t *testing.T) {
	hub := NewHub(nil)
	l := &gatedListener{entered: make(chan struct{}), release: make(chan struct{})}
	hub.AddListener(l)
	ctx := context.Background()
	userID := uuid.New()

	old := NewSession(userID, 4)
	hub.Register(ctx, old)
	require.True(t, l.isOnline())

	unregistered := make(chan struct{})
	go func() {
		hub.Unregister(ctx, old)
		close(unregistered)
	}()
	<-l.entered

	registered := make(chan struct{})
	go func() {
		hub.Register(ctx, NewSession(userID, 4))
		close(registered)
	}()

	// The reload must not finish while the old session's disconnect is still being announced.
	select {
	case <-registered:
		t.Fatal("register completed while the previous disconnect was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(l.release)
	<-unregistered
	<-registered

	assert.Len(t, hub.Sessions(userID), 1)
	assert.True(t, l.isOnline(), "listeners must end on connected while a session is live")
}

func TestHub_ConcurrentChurnMatchesSessions(t *testing.T) {
	hub := NewHub(nil)
	l := &recordingListener{}
	hub.AddListener(l)
	ctx := context.Background()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewSession(userID, 1)
			hub.Register(ctx, s)
			hub.Unregister(ctx, s)
		}()
	}
	wg.Wait()

	assert.Empty(t, hub.Sessions(userID))
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, len(l.connected), len(l.disconnected))
}

func TestParseUserChannel(t *testing.T) {
	id := uuid.New()

	got, err := parseUserChannel(userChannel(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseUserChannel("chat:conversation:" + id.String())
	assert.Error(t, err)
}
