package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTManager(t *testing.T) {
	manager := NewJWTManager("test-secret-key-for-testing-purposes", "travel-marketplace", 15*time.Minute)

	assert.NotNil(t, manager)
	assert.Equal(t, "travel-marketplace", manager.issuer)
	assert.Equal(t, 15*time.Minute, manager.accessTokenDuration)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "travel-marketplace", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "CUSTOMER")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "CUSTOMER", claims.Role)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", "travel-marketplace", 15*time.Minute)
	verifier := NewJWTManager("secret-b", "travel-marketplace", 15*time.Minute)

	token, err := issuer.GenerateAccessToken(uuid.New(), "CUSTOMER")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	issuer := NewJWTManager("secret", "someone-else", 15*time.Minute)
	verifier := NewJWTManager("secret", "travel-marketplace", 15*time.Minute)

	token, err := issuer.GenerateAccessToken(uuid.New(), "CUSTOMER")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	manager := NewJWTManager("secret", "travel-marketplace", -time.Minute)

	token, err := manager.GenerateAccessToken(uuid.New(), "TOUR_GUIDE")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	manager := NewJWTManager("secret", "travel-marketplace", time.Minute)

	_, err := manager.ValidateToken("not.a.token")
	assert.Error(t, err)
}
