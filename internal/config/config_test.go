package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	raw := `server:
  port: 8090
  mode: release

database:
  driver: sqlite
  path: /tmp/rotor-test.db

autopilot:
  interval_minutes: 45
  timezone: UTC

publishers:
  - platform: youtube
    base_url: http://localhost:9420
    enabled: true
  - platform: tiktok
    base_url: http://localhost:9421
    enabled: false
`
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/rotor-test.db", cfg.Database.Path)
	assert.Equal(t, 45, cfg.Autopilot.IntervalMinutes)
	assert.Equal(t, "UTC", cfg.Autopilot.Timezone)

	require.Len(t, cfg.Publishers, 2)
	assert.Equal(t, "youtube", cfg.Publishers[0].Platform)
	assert.True(t, cfg.Publishers[0].Enabled)
	assert.False(t, cfg.Publishers[1].Enabled)

	// Everything the file omits falls back to a default.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "12h", cfg.Auth.SessionTTL)
	assert.Equal(t, 10, cfg.Autopilot.MaxItemsPerWake)
	assert.Equal(t, 3, cfg.Autopilot.WorkerSlots)
	assert.Equal(t, 3, cfg.Autopilot.MaxRetries)
	assert.Equal(t, "1m", cfg.Autopilot.RetryBackoff)
	assert.Equal(t, "30m", cfg.Autopilot.MaxRetryBackoff)
	assert.Equal(t, "5m", cfg.Autopilot.StepTimeout)
	assert.Equal(t, 100, cfg.Intake.PageSize)
	assert.Equal(t, "0 5 0 * * *", cfg.Analytics.SnapshotSchedule)
	assert.Equal(t, 90, cfg.Analytics.RetentionDays)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
