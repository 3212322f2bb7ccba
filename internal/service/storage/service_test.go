package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "travelchat-backend/pkg/errors"
)

type MockObjectStatter struct {
	mock.Mock
}

func (m *MockObjectStatter) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func noSuchKey() error {
	return minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
}

func TestVerifyAttachments(t *testing.T) {
	statter := new(MockObjectStatter)
	statter.On("StatObject", mock.Anything, "chat-attachments", "chat/photo.jpg").
		Return(minio.ObjectInfo{Key: "chat/photo.jpg", Size: 1024}, nil)
	statter.On("StatObject", mock.Anything, "chat-attachments", "chat/missing.jpg").
		Return(minio.ObjectInfo{}, noSuchKey())

	svc := NewService(newMinioClient(statter, DefaultCircuitBreakerConfig()), "chat-attachments")
	ctx := context.Background()

	require.NoError(t, svc.VerifyAttachments(ctx, []string{"chat/photo.jpg"}))

	err := svc.VerifyAttachments(ctx, []string{"chat/photo.jpg", "chat/missing.jpg"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestVerifyAttachments_InvalidKeys(t *testing.T) {
	svc := NewService(newMinioClient(new(MockObjectStatter), DefaultCircuitBreakerConfig()), "b")

	for _, key := range []string{"", "  ", "/etc/passwd", "chat/../secret", "chat//a.jpg"} {
		err := svc.VerifyAttachments(context.Background(), []string{key})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation), key)
	}
}

func TestCircuitBreaker(t *testing.T) {
	statter := new(MockObjectStatter)
	statter.On("StatObject", mock.Anything, "b", "k").Return(minio.ObjectInfo{}, errors.New("connection refused"))

	cfg := &CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Second, ResetTimeout: time.Minute}
	client := newMinioClient(statter, cfg)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := client.StatObject(context.Background(), "b", "k")
		require.Error(t, err)
	}
	assert.Equal(t, CircuitBreakerOpen, client.GetState())

	_, err := client.StatObject(context.Background(), "b", "k")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	statter.AssertNumberOfCalls(t, "StatObject", 2)

	svc := NewService(client, "b")
	err = svc.VerifyAttachments(context.Background(), []string{"k"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeServiceUnavail))

	now = now.Add(2 * time.Minute)
	_, err = client.StatObject(context.Background(), "b", "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitBreakerOpen, client.GetState(), "a failed half-open attempt reopens the breaker")
}

func TestCircuitBreaker_NotFoundIsHealthy(t *testing.T) {
	statter := new(MockObjectStatter)
	statter.On("StatObject", mock.Anything, "b", "k").Return(minio.ObjectInfo{}, noSuchKey())

	client := newMinioClient(statter, &CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second, ResetTimeout: time.Minute})
	for i := 0; i < 3; i++ {
		_, err := client.StatObject(context.Background(), "b", "k")
		assert.True(t, IsNotFound(err))
	}
	assert.Equal(t, CircuitBreakerClosed, client.GetState())
}
