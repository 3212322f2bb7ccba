package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"travelchat-backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerHalfOpen
	CircuitBreakerOpen
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxFailures  int
	Timeout      time.Duration
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns default circuit breaker settings
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		Timeout:      5 * time.Second,
		ResetTimeout: 30 * time.Second,
	}
}

// objectStatter is the subset of *minio.Client the verifier needs
type objectStatter interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// MinioClient wraps object lookups with a timeout and a circuit breaker
type MinioClient struct {
	client objectStatter
	config *CircuitBreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
}

// NewMinioClient connects to an S3 compatible endpoint
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return newMinioClient(client, DefaultCircuitBreakerConfig()), nil
}

func newMinioClient(client objectStatter, cfg *CircuitBreakerConfig) *MinioClient {
	return &MinioClient{
		client: client,
		config: cfg,
		now:    time.Now,
		state:  CircuitBreakerClosed,
	}
}

// StatObject fetches object metadata. A missing object is not counted as a failure.
func (c *MinioClient) StatObject(ctx context.Context, bucketName, objectName string) (minio.ObjectInfo, error) {
	if !c.allow() {
		return minio.ObjectInfo{}, ErrCircuitOpen
	}

	statCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	info, err := c.client.StatObject(statCtx, bucketName, objectName, minio.StatObjectOptions{})
	if err == nil || IsNotFound(err) {
		c.onSuccess()
		return info, err
	}

	c.onFailure(err)
	return info, err
}

// IsNotFound reports whether err means the object or bucket does not exist
func IsNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.Code == "NotFound"
}

// allow reports whether a call may proceed, moving an open breaker to half-open after ResetTimeout
func (c *MinioClient) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CircuitBreakerOpen {
		return true
	}
	if c.now().Sub(c.lastFailure) >= c.config.ResetTimeout {
		c.state = CircuitBreakerHalfOpen
		return true
	}
	return false
}

func (c *MinioClient) onSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.state = CircuitBreakerClosed
	c.lastFailure = time.Time{}
}

func (c *MinioClient) onFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.lastFailure = c.now()

	logger.Warn("MinIO operation failed",
		zap.Int("failures", c.failures),
		zap.Error(err))

	if c.state == CircuitBreakerHalfOpen || c.failures >= c.config.MaxFailures {
		if c.state != CircuitBreakerOpen {
			logger.Error("MinIO circuit breaker opened", zap.Int("failures", c.failures))
		}
		c.state = CircuitBreakerOpen
	}
}

// GetState returns the current circuit breaker state
func (c *MinioClient) GetState() CircuitBreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
