// Package env reads typed settings from the process environment.
// Unset or malformed values fall back to the supplied default.
package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GetStringFromFile prefers the file named by KEY_FILE (Docker and Kubernetes secrets)
// and falls back to KEY itself
func GetStringFromFile(key, defaultValue string) string {
	if path := os.Getenv(key + "_FILE"); path != "" {
		if content, err := os.ReadFile(filepath.Clean(path)); err == nil {
			return string(bytes.TrimSpace(content))
		}
	}
	return GetString(key, defaultValue)
}

// GetString returns the variable or defaultValue when it is empty
func GetString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetStringList splits a comma separated variable, dropping blank items
func GetStringList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(GetString(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetInt returns the variable as an int
func GetInt(key string, defaultValue int) int {
	return parse(key, defaultValue, strconv.Atoi)
}

// GetFloat returns the variable as a float64
func GetFloat(key string, defaultValue float64) float64 {
	return parse(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetBool accepts the forms understood by strconv.ParseBool
func GetBool(key string, defaultValue bool) bool {
	return parse(key, defaultValue, strconv.ParseBool)
}

// GetDuration accepts Go duration strings such as "8s" or "720h"
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	return parse(key, defaultValue, time.ParseDuration)
}

func parse[T any](key string, defaultValue T, conv func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	value, err := conv(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
