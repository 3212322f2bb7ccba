package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendRejectedError_HidesBlock(t *testing.T) {
	err := fmt.Errorf("send: %w", SendRejectedError())

	assert.True(t, errors.Is(err, ErrBlocked))
	assert.True(t, HasCode(err, ErrCodeSendRejected))

	appErr := GetAppError(err)
	assert.Equal(t, http.StatusForbidden, appErr.StatusCode)
	assert.NotContains(t, strings.ToLower(appErr.Message), "block")
}

func TestUnavailableError_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := UnavailableError(cause)

	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotContains(t, err.Message, "connection refused")
}

func TestGetAppError_WrapsPlainErrors(t *testing.T) {
	appErr := GetAppError(errors.New("boom"))

	assert.Equal(t, ErrCodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(ConversationNotFoundError(), ErrCodeConversationNotFound))
	assert.False(t, HasCode(MessageNotFoundError(), ErrCodeConversationNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeInternal))
	assert.False(t, HasCode(nil, ErrCodeInternal))
}
