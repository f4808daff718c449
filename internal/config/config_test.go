package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.True(t, cfg.LANEnabled())
	assert.Equal(t, 5*time.Second, cfg.LAN.Timeout.Duration())
	assert.Equal(t, 5*time.Second, cfg.LAN.StateTimeout.Duration())
	assert.Equal(t, 3, cfg.LAN.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.LAN.Cooldown.Duration())
	assert.Equal(t, "https://api.lifx.com/v1", cfg.HTTP.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout.Duration())
	assert.Equal(t, 2.0, cfg.HTTP.RateLimitRPS)
	assert.Equal(t, 10*time.Second, cfg.Control.Timeout.Duration())
	assert.Equal(t, time.Second, cfg.Control.DefaultDuration.Duration())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "profiles.db", filepath.Base(cfg.Store.Path))
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("LIFXCTL_TEST_TOKEN", "secret")

	cfg, err := Parse([]byte(`
lan:
  enabled: false
  timeout: 3s
  retry_attempts: 5
  broadcast: 192.168.1.255
http:
  token: ${LIFXCTL_TEST_TOKEN}
  base_url: ${LIFXCTL_TEST_URL:http://localhost:8080}
control:
  default_duration: 250ms
log:
  level: debug
  json: true
store:
  path: /tmp/profiles.db
`))
	require.NoError(t, err)

	assert.False(t, cfg.LANEnabled())
	assert.Equal(t, 3*time.Second, cfg.LAN.Timeout.Duration())
	assert.Equal(t, 5, cfg.LAN.RetryAttempts)
	assert.Equal(t, "secret", cfg.HTTP.Token)
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Control.DefaultDuration.Duration())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "/tmp/profiles.db", cfg.Store.Path)

	lc := cfg.Lights()
	assert.False(t, lc.EnableLANDiscovery)
	assert.Equal(t, "secret", lc.HTTPAPIToken)
	assert.Equal(t, "192.168.1.255", lc.LANBroadcast)
	assert.Equal(t, 3*time.Second, lc.LANTimeout)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad duration", "lan:\n  timeout: soon\n"},
		{"negative retries", "lan:\n  retry_attempts: -1\n"},
		{"negative duration", "control:\n  timeout: -1s\n"},
		{"not yaml", "lan: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	t.Run("missing default file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(dir, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Log.Level)
	})
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LIFXCTL_SET", "value")

	assert.Equal(t, "value", expandEnvVars("${LIFXCTL_SET}"))
	assert.Equal(t, "value", expandEnvVars("${LIFXCTL_SET:fallback}"))
	assert.Equal(t, "fallback", expandEnvVars("${LIFXCTL_UNSET_VAR:fallback}"))
	assert.Equal(t, "", expandEnvVars("${LIFXCTL_UNSET_VAR}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}
