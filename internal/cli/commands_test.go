package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolserver/pkg/auth"
)

const squareScript = `package main

func square(executionParams string, x float64) float64 {
	return x * x
}
`

func TestSyncCommand(t *testing.T) {
	path, storeDir := writeConfig(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "tools", "square.go"), []byte(squareScript), 0644))

	out, err := run(t, "sync", "--config", path)
	require.NoError(t, err)

	var report struct {
		Listed int      `json:"listed"`
		Added  []string `json:"added"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Listed)
	assert.Equal(t, []string{"square"}, report.Added)
}

func TestSyncCommand_ReportsFailures(t *testing.T) {
	path, storeDir := writeConfig(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "tools", "broken.go"), []byte("func broken(ctx string {"), 0644))

	out, err := run(t, "sync", "--config", path)
	require.Error(t, err)
	assert.Contains(t, out, `"broken"`)
}

func TestToolsCommand(t *testing.T) {
	path, storeDir := writeConfig(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "tools", "square.go"), []byte(squareScript), 0644))

	t.Run("with sync", func(t *testing.T) {
		out, err := run(t, "tools", "--config", path)
		require.NoError(t, err)

		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "add")
		assert.Contains(t, out, "multiply")
		assert.Contains(t, out, "square")
	})

	t.Run("without sync", func(t *testing.T) {
		defer func() { toolsSkipSync = false }()

		out, err := run(t, "tools", "--config", path, "--no-sync")
		require.NoError(t, err)

		assert.Contains(t, out, "respond")
		assert.NotContains(t, out, "square")
	})
}

func TestTokenCommand(t *testing.T) {
	const secret = "00112233445566778899aabbccddeeff"
	path, _ := writeConfig(t, map[string]any{"auth": map[string]any{"secret_hex": secret}})

	out, err := run(t, "token", "--config", path, "--subject", "ana")
	require.NoError(t, err)

	v, err := auth.NewValidator(secret)
	require.NoError(t, err)
	claims, err := v.Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Subject())
}

func TestTokenCommand_NoSecret(t *testing.T) {
	path, _ := writeConfig(t, nil)

	_, err := run(t, "token", "--config", path, "--subject", "ana")
	assert.Error(t, err)
}

func TestStatusAndStopCommands_NotRunning(t *testing.T) {
	path, _ := writeConfig(t, nil)

	out, err := run(t, "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: stopped")

	out, err = run(t, "stop", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Server is not running")
}

func TestConfigureCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolserver.json")
	scripts := filepath.Join(dir, "scripts")

	GetRootCmd().SetIn(strings.NewReader("local\n" + scripts + "\ny\n\n9001\n\n\n"))
	out, err := run(t, "configure", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved to: "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), scripts)
	assert.Contains(t, string(data), "9001")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}
