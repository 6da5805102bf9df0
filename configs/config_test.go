package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES_URI", "postgres://localhost/crosspost?sslmode=disable")
	t.Setenv("SECRET_KEY", "identity-secret")
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.PlatformTimeout)
	assert.Equal(t, 5*time.Minute, cfg.MediaTimeout)
	assert.Equal(t, 10, cfg.PublishConcurrency)
	assert.Equal(t, 5, cfg.MaxPublishAttempts)
	assert.Equal(t, "@every 10m", cfg.RefreshSchedule)
	assert.Equal(t, 5.0, cfg.PlatformRateLimit)
	assert.Equal(t, 10, cfg.PlatformBurst)
	assert.Equal(t, "@every 5m", cfg.PendingSweepSchedule)
}

func TestLoadConfig_NestedPlatformKeys(t *testing.T) {
	setRequired(t)
	t.Setenv("TWITTER_CLIENT_ID", "tw-client")
	t.Setenv("TWITTER_CONSUMER_KEY", "tw-consumer")
	t.Setenv("TIKTOK_CLIENT_SECRET", "tt-secret")
	t.Setenv("R2_BUCKET_NAME", "media")
	t.Setenv("PLATFORM_TIMEOUT", "12s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tw-client", cfg.Twitter.ClientID)
	assert.Equal(t, "tw-consumer", cfg.Twitter.ConsumerKey)
	assert.Equal(t, "tt-secret", cfg.Tiktok.ClientSecret)
	assert.Equal(t, "media", cfg.R2.BucketName)
	assert.Equal(t, 12*time.Second, cfg.PlatformTimeout)
}

func TestLoadConfig_RejectsBadEncryptionKey(t *testing.T) {
	setRequired(t)
	t.Setenv("ENCRYPTION_KEY", "short")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	for _, key := range []string{"POSTGRES_URI", "SECRET_KEY", "ENCRYPTION_KEY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	_, err := LoadConfig()
	assert.Error(t, err)
}
