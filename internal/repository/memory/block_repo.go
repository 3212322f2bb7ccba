package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
)

type blockKey struct {
	blocker uuid.UUID
	blocked uuid.UUID
}

// BlockRepository keeps directed user blocks in memory
type BlockRepository struct {
	mu     sync.RWMutex
	blocks map[blockKey]*domain.UserBlock
}

// NewBlockRepository creates an empty block store
func NewBlockRepository() *BlockRepository {
	return &BlockRepository{blocks: make(map[blockKey]*domain.UserBlock)}
}

// Create stores a block, failing with ErrAlreadyExists for a duplicate ordered pair
func (r *BlockRepository) Create(ctx context.Context, block *domain.UserBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := blockKey{block.BlockerID, block.BlockedUserID}
	if _, exists := r.blocks[key]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *block
	r.blocks[key] = &cp
	return nil
}

// Delete removes a block; removing a missing block is not an error
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.blocks, blockKey{blockerID, blockedID})
	return nil
}

// Exists reports whether blockerID has blocked blockedID
func (r *BlockRepository) Exists(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.blocks[blockKey{blockerID, blockedID}]
	return ok, nil
}

// ListByBlocker returns the blocks created by blockerID, newest first
func (r *BlockRepository) ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]*domain.UserBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.UserBlock
	for key, b := range r.blocks {
		if key.blocker == blockerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.After(out[j].BlockedAt) })
	return out, nil
}
