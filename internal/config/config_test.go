package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8084, cfg.App.Port)
	assert.Equal(t, "chatsync", cfg.Mongo.DB)
	assert.Equal(t, 2*time.Second, cfg.TypingTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ProfileTTL)
	assert.Equal(t, 20, cfg.Sync.SearchLimit)
	assert.False(t, cfg.Development())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_APP_ENV", "development")
	t.Setenv("APP_MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("APP_SYNC_TYPING_TIMEOUT_MS", "500")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, 500*time.Millisecond, cfg.TypingTimeout)
	assert.True(t, cfg.Development())
}
