package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("s3 store", func(t *testing.T) {
		answers := strings.Join([]string{
			"",          // store kind, default s3
			"",          // bucket, rejected
			"my-bucket", // bucket
			"eu-west-1", // region
			"",          // endpoint
			"",          // prefix
			"99999",     // port, rejected
			"9000",      // port
			"zz",        // secret, rejected
			"c0ffee",    // secret
			"debug",     // log level
		}, "\n") + "\n"

		var out bytes.Buffer
		cfg, err := NewWizardWithIO(strings.NewReader(answers), &out).Run()
		require.NoError(t, err)

		assert.Equal(t, StoreS3, cfg.Store.Kind)
		assert.Equal(t, "my-bucket", cfg.Store.Bucket)
		assert.Equal(t, "eu-west-1", cfg.Store.Region)
		assert.Equal(t, "tools/", cfg.Store.Prefix)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "c0ffee", cfg.Auth.SecretHex)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Error: bucket is required")
		assert.NoError(t, cfg.Validate())
	})

	t.Run("local store", func(t *testing.T) {
		answers := "local\n/srv/scripts\nn\nscripts/\n\n\n\n"

		cfg, err := NewWizardWithIO(strings.NewReader(answers), &bytes.Buffer{}).Run()
		require.NoError(t, err)

		assert.Equal(t, StoreLocal, cfg.Store.Kind)
		assert.Equal(t, "/srv/scripts", cfg.Store.LocalDir)
		assert.False(t, cfg.Store.Watch)
		assert.Equal(t, "scripts/", cfg.Store.Prefix)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("input ends early", func(t *testing.T) {
		_, err := NewWizardWithIO(strings.NewReader("s3\n"), &bytes.Buffer{}).Run()
		assert.Error(t, err)
	})
}
