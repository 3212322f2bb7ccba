package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"travelchat-backend/internal/domain"
)

// BlockRepository handles directed user blocks in CockroachDB
type BlockRepository struct {
	pool *pgxpool.Pool
}

// NewBlockRepository creates a new BlockRepository
func NewBlockRepository(pool *pgxpool.Pool) *BlockRepository {
	return &BlockRepository{pool: pool}
}

// Create stores a block, failing with ErrAlreadyExists for a duplicate ordered pair
func (r *BlockRepository) Create(ctx context.Context, block *domain.UserBlock) (err error) {
	defer func(start time.Time) { observe("block_create", start, err) }(time.Now())

	var reason *string
	if block.Reason != "" {
		reason = &block.Reason
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO blocked_users (blocker_id, blocked_id, reason, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`, block.BlockerID, block.BlockedUserID, reason, block.BlockedAt)
	if err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Delete removes a block; removing a missing block is not an error
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("block_delete", start, err) }(time.Now())

	if _, err = r.pool.Exec(ctx,
		`DELETE FROM blocked_users WHERE blocker_id = $1 AND blocked_id = $2`, blockerID, blockedID,
	); err != nil {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return nil
}

// Exists reports whether blockerID has blocked blockedID
func (r *BlockRepository) Exists(ctx context.Context, blockerID, blockedID uuid.UUID) (blocked bool, err error) {
	defer func(start time.Time) { observe("block_exists", start, err) }(time.Now())

	err = r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM blocked_users WHERE blocker_id = $1 AND blocked_id = $2)
	`, blockerID, blockedID).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return blocked, nil
}

// ListByBlocker returns the blocks created by blockerID, newest first
func (r *BlockRepository) ListByBlocker(ctx context.Context, blockerID uuid.UUID) (blocks []*domain.UserBlock, err error) {
	defer func(start time.Time) { observe("block_list", start, err) }(time.Now())

	rows, err := r.pool.Query(ctx, `
		SELECT blocker_id, blocked_id, COALESCE(reason, ''), created_at
		FROM blocked_users
		WHERE blocker_id = $1
		ORDER BY created_at DESC
	`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.UserBlock
		if err := rows.Scan(&b.BlockerID, &b.BlockedUserID, &b.Reason, &b.BlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}
