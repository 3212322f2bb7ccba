package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Constants
const (
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// ParseLimit parses a limit query parameter, clamping it to [MinLimit, MaxLimit]
func ParseLimit(limitStr string) (int, error) {
	if limitStr == "" {
		return DefaultLimit, nil
	}
	l, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}
	return ClampLimit(l), nil
}

// ClampLimit bounds limit, substituting the default for non-positive values
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// EncodeCursor serializes a keyset position into an opaque token
func EncodeCursor(position interface{}) (string, error) {
	raw, err := json.Marshal(position)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor restores a keyset position from a token produced by EncodeCursor.
// An empty token leaves dst untouched and reports false.
func DecodeCursor(token string, dst interface{}) (bool, error) {
	if token == "" {
		return false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false, fmt.Errorf("invalid cursor: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("invalid cursor: %w", err)
	}
	return true, nil
}
