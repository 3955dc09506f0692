package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, StoreS3, cfg.Store.Kind)
	assert.Equal(t, "tools/", cfg.Store.Prefix)
	assert.Equal(t, ".go", cfg.Store.Extension)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.True(t, cfg.Sync.Enabled)
	assert.True(t, cfg.Sync.RunOnStart)
	assert.False(t, cfg.Auth.Required)
	assert.True(t, cfg.Scripts.Bundled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid s3 config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Store.Bucket = "scripts"

		assert.NoError(t, cfg.Validate())
	})

	t.Run("valid local config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Store.Kind = StoreLocal
		cfg.Store.LocalDir = "/srv/scripts"
		cfg.Store.Watch = true

		assert.NoError(t, cfg.Validate())
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = 70000
		cfg.Logging.Level = "verbose"

		err := cfg.Validate()
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Errors, 3) // port, level, missing bucket
		assert.ErrorIs(t, err, ErrInvalidValue)
		assert.Contains(t, err.Error(), "server.port")
		assert.Contains(t, err.Error(), "store.bucket")
	})

	t.Run("required auth needs a secret", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Store.Bucket = "scripts"
		cfg.Auth.Required = true

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.secret_hex")
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.SecretHex = "deadbeef"
	cfg.Store.SecretAccessKey = "very-secret"

	s := cfg.String()
	assert.NotContains(t, s, "deadbeef")
	assert.NotContains(t, s, "very-secret")
	assert.Contains(t, s, `"port": 8080`)

	// the original is untouched
	assert.Equal(t, "deadbeef", cfg.Auth.SecretHex)
}
