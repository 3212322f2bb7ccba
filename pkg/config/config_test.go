package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 8*time.Second, cfg.Chat.TypingTTL)
	assert.Equal(t, 10*time.Minute, cfg.Chat.IdempotencyTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Chat.RetentionRead)
	assert.Equal(t, []string{"localhost"}, cfg.Cassandra.Hosts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "CLUSTER")
	t.Setenv("CASSANDRA_HOSTS", "cass-1, cass-2,,")
	t.Setenv("TYPING_TTL", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageCluster, cfg.Storage)
	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cassandra.Hosts)
	assert.Equal(t, 5*time.Second, cfg.Chat.TypingTTL)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_ProductionNeedsStrongSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("STORAGE_BACKEND", "memory")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
