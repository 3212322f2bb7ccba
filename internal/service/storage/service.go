package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	apperrors "travelchat-backend/pkg/errors"
)

// ObjectStore looks up objects by key
type ObjectStore interface {
	StatObject(ctx context.Context, bucketName, objectName string) (minio.ObjectInfo, error)
}

// Service verifies that message attachments reference uploaded objects
type Service struct {
	store      ObjectStore
	bucketName string
}

// NewService creates an attachment verifier for bucketName
func NewService(store ObjectStore, bucketName string) *Service {
	return &Service{
		store:      store,
		bucketName: bucketName,
	}
}

// VerifyAttachments checks every key names an existing object
func (s *Service) VerifyAttachments(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return err
		}

		_, err := s.store.StatObject(ctx, s.bucketName, key)
		if err == nil {
			continue
		}
		if IsNotFound(err) {
			return apperrors.ValidationError(fmt.Sprintf("Attachment not found: %s", key))
		}
		if errors.Is(err, ErrCircuitOpen) {
			return apperrors.UnavailableError(err)
		}
		return apperrors.UnavailableError(fmt.Errorf("failed to verify attachment: %w", err))
	}
	return nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return apperrors.ValidationError("Attachment key must not be empty")
	}
	if strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.Contains(key, "..") {
		return apperrors.ValidationError(fmt.Sprintf("Invalid attachment key: %s", key))
	}
	return nil
}
