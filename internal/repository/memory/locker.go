package memory

import (
	"context"
	"sync"
)

type keyedMutex struct {
	ch   chan struct{}
	refs int
}

// Locker serializes work per key inside one process
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyedMutex
}

// NewLocker creates a keyed mutex
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyedMutex)}
}

// Lock blocks until key is free or ctx is done. The returned func releases the key.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	km, ok := l.locks[key]
	if !ok {
		km = &keyedMutex{ch: make(chan struct{}, 1)}
		l.locks[key] = km
	}
	km.refs++
	l.mu.Unlock()

	select {
	case km.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, km)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-km.ch
			l.release(key, km)
		})
	}, nil
}

func (l *Locker) release(key string, km *keyedMutex) {
	l.mu.Lock()
	km.refs--
	if km.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
