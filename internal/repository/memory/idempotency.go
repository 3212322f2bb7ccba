package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type idempotencyEntry struct {
	messageID uuid.UUID
	expiresAt time.Time
}

// IdempotencyStore remembers client send keys for a bounded window
type IdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]idempotencyEntry
	now     func() time.Time
}

// NewIdempotencyStore creates a store whose keys expire after ttl
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:     ttl,
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

// Reserve binds key to messageID for senderID. If the key is already bound and not
// expired, it returns the bound id with reserved=false.
func (s *IdempotencyStore) Reserve(ctx context.Context, senderID uuid.UUID, key string, messageID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := senderID.String() + ":" + key
	if e, ok := s.entries[k]; ok && now.Before(e.expiresAt) {
		return e.messageID, false, nil
	}

	s.entries[k] = idempotencyEntry{messageID: messageID, expiresAt: now.Add(s.ttl)}
	if len(s.entries)%256 == 0 {
		s.evictExpired(now)
	}
	return messageID, true, nil
}

// Release forgets a reservation whose send failed
func (s *IdempotencyStore) Release(ctx context.Context, senderID uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, senderID.String()+":"+key)
	return nil
}

func (s *IdempotencyStore) evictExpired(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
