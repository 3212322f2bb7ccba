package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"

	"travelchat-backend/pkg/logger"
)

// APNsProvider implements Provider interface for Apple Push Notification Service
type APNsProvider struct {
	client   *apns2.Client
	bundleID string
}

// APNsConfig contains configuration for token-based APNs authentication
type APNsConfig struct {
	KeyPath    string // Path to .p8 private key file
	KeyID      string // 10-character Key ID from Apple Developer Portal
	TeamID     string // 10-character Team ID from Apple Developer Portal
	BundleID   string // Bundle ID of the app (e.g., com.example.app)
	Production bool   // Use production APNs endpoint (true) or sandbox (false)
}

// NewAPNsProvider creates a new APNs provider
func NewAPNsProvider(config *APNsConfig) (*APNsProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("APNs config is required")
	}
	if config.BundleID == "" {
		return nil, fmt.Errorf("APNS_TOPIC is required for APNs provider")
	}
	if config.KeyPath == "" || config.KeyID == "" || config.TeamID == "" {
		return nil, fmt.Errorf("APNS_KEY_PATH, APNS_KEY_ID and APNS_TEAM_ID are required for APNs provider")
	}

	authKey, err := token.AuthKeyFromFile(config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   config.KeyID,
		TeamID:  config.TeamID,
	})
	if config.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNs provider initialized with token authentication",
		zap.String("bundle_id", config.BundleID),
		zap.Bool("production", config.Production))

	return &APNsProvider{client: client, bundleID: config.BundleID}, nil
}

// Send implements Provider interface for APNs
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}

	for _, deviceToken := range tokens {
		p := payload.NewPayload().
			AlertTitle(notification.Title).
			AlertBody(notification.Body)
		if notification.Sound != "" {
			p.Sound(notification.Sound)
		}
		if notification.Badge != nil {
			p.Badge(*notification.Badge)
		}
		if notification.ThreadID != "" {
			p.ThreadID(notification.ThreadID)
		}
		for key, value := range notification.Data {
			p.Custom(key, value)
		}

		msg := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.bundleID,
			Payload:     p,
			CollapseID:  notification.ThreadID,
			Priority:    apns2.PriorityLow,
		}
		if notification.Priority == "high" {
			msg.Priority = apns2.PriorityHigh
		}

		resp, err := a.client.PushWithContext(ctx, msg)
		if err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			continue
		}

		if resp.Sent() {
			result.SuccessCount++
			continue
		}

		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Errorf("APNs error: %s", resp.Reason))
		if resp.StatusCode == http.StatusGone ||
			resp.Reason == apns2.ReasonUnregistered ||
			resp.Reason == apns2.ReasonBadDeviceToken ||
			resp.Reason == apns2.ReasonDeviceTokenNotForTopic {
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		}

		logger.Warn("APNs notification failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("reason", resp.Reason))
	}

	return result, nil
}
