package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"travelchat-backend/internal/domain"
	"travelchat-backend/internal/repository/memory"
	apperrors "travelchat-backend/pkg/errors"
)

type MockBlockRepository struct {
	mock.Mock
}

func (m *MockBlockRepository) Create(ctx context.Context, block *domain.UserBlock) error {
	args := m.Called(ctx, block)
	return args.Error(0)
}

func (m *MockBlockRepository) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Error(0)
}

func (m *MockBlockRepository) Exists(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlockRepository) ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]*domain.UserBlock, error) {
	args := m.Called(ctx, blockerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.UserBlock), args.Error(1)
}

func TestIsBlocked_Direction(t *testing.T) {
	svc := NewService(memory.NewBlockRepository())
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	_, err := svc.Block(ctx, bob, alice, "spam")
	require.NoError(t, err)

	blocked, err := svc.IsBlocked(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, blocked, "bob blocked alice, so alice cannot send to bob")

	blocked, err = svc.IsBlocked(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, blocked, "a block is directed")
}

func TestBlock_Duplicate(t *testing.T) {
	svc := NewService(memory.NewBlockRepository())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := svc.Block(ctx, a, b, "")
	require.NoError(t, err)

	_, err = svc.Block(ctx, a, b, "again")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyBlocked))
}

func TestBlock_Self(t *testing.T) {
	svc := NewService(memory.NewBlockRepository())
	a := uuid.New()

	_, err := svc.Block(context.Background(), a, a, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestUnblock_Idempotent(t *testing.T) {
	svc := NewService(memory.NewBlockRepository())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, svc.Unblock(ctx, a, b))

	_, err := svc.Block(ctx, a, b, "")
	require.NoError(t, err)
	require.NoError(t, svc.Unblock(ctx, a, b))
	require.NoError(t, svc.Unblock(ctx, a, b))

	blocked, err := svc.IsBlocked(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, blocked)

	list, err := svc.ListBlocked(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIsBlocked_StoreFailure(t *testing.T) {
	repo := new(MockBlockRepository)
	svc := NewService(repo)
	sender, recipient := uuid.New(), uuid.New()

	repo.On("Exists", mock.Anything, recipient, sender).Return(false, errors.New("connection refused"))

	_, err := svc.IsBlocked(context.Background(), sender, recipient)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeServiceUnavail))
	repo.AssertExpectations(t)
}
