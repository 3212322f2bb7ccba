package push

import (
	"fmt"

	"go.uber.org/zap"

	"travelchat-backend/pkg/config"
	"travelchat-backend/pkg/logger"
)

// ProviderType represents the type of push notification provider
type ProviderType string

const (
	ProviderTypeMock ProviderType = "mock"
	ProviderTypeFCM  ProviderType = "fcm"
	ProviderTypeAPNs ProviderType = "apns"
)

// NewProvider creates the push provider selected by cfg.Provider
func NewProvider(cfg *config.PushConfig) (Provider, error) {
	providerType := ProviderType(cfg.Provider)

	logger.Info("Initializing push notification provider",
		zap.String("provider_type", string(providerType)))

	switch providerType {
	case ProviderTypeFCM:
		if cfg.FirebaseProjectID == "" {
			return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required for FCM provider")
		}
		return NewFCMProvider(&FCMConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsPath: cfg.FirebaseCredentials,
		})
	case ProviderTypeAPNs:
		return NewAPNsProvider(&APNsConfig{
			BundleID:   cfg.APNsTopic,
			KeyPath:    cfg.APNsKeyPath,
			KeyID:      cfg.APNsKeyID,
			TeamID:     cfg.APNsTeamID,
			Production: cfg.APNsProduction,
		})
	case ProviderTypeMock:
		return &MockProvider{}, nil
	default:
		logger.Warn("Unknown push provider type, falling back to mock",
			zap.String("provider_type", string(providerType)))
		return &MockProvider{}, nil
	}
}
