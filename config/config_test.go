package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestValidateRejectsNonPowerOfTwoSize(t *testing.T) {
	cfg := Defaults()
	cfg.Canvas.InitialSize = 17
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroMaxCredits(t *testing.T) {
	cfg := Defaults()
	cfg.Canvas.MaxCredits = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFileMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[server]
listen = "0.0.0.0:9090"

[canvas]
initial_size = 32
max_credits = 20
credit_regen_seconds = 300

[database]
path = "test.db"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Listen)
	assert.Equal(t, 32, cfg.Canvas.InitialSize)
	assert.Equal(t, 20, cfg.Canvas.MaxCredits)
	assert.Equal(t, 300, cfg.Canvas.CreditRegenSeconds)
	assert.Equal(t, "test.db", cfg.Database.Path)

	// Unset keys keep their defaults.
	assert.Equal(t, Defaults().Watcher.PollIntervalMS, cfg.Watcher.PollIntervalMS)
}

func TestLoadFromFileRejectsInvalidOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[canvas]
initial_size = 17
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}
