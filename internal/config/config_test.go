package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/metrics?sslmode=disable")
	t.Setenv("CREDENTIAL_KEY", "aabbccdd")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://a.klaviyo.com/api", cfg.Klaviyo.BaseURL)
	assert.Equal(t, "2024-10-15", cfg.Klaviyo.Revision)
	assert.Equal(t, 60*time.Minute, cfg.Sync.Interval())
	assert.Equal(t, 30*time.Second, cfg.Sync.FallbackDelay())
	assert.Equal(t, 365, cfg.Sync.CampaignWindowDays)
	assert.Equal(t, 5, cfg.Sync.FlowPageCap)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CREDENTIAL_KEY", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
database:
  url: postgres://u:p@db:5432/metrics
klaviyo:
  timeout_seconds: 15
sync:
  interval_minutes: 15
crypto:
  key_hex: deadbeef
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Klaviyo.Timeout())
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval())
	assert.Equal(t, "deadbeef", cfg.Crypto.KeyHex)
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-wins@db:5432/metrics")
	t.Setenv("CREDENTIAL_KEY", "cafe")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://yaml@db:5432/m\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-wins@db:5432/metrics", cfg.Database.URL)
}

func TestValidateRequiresDatabaseAndKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CREDENTIAL_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}
