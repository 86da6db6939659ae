package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"api_port":"9000","time_zone":"America/Chicago","workers":2}`), 0600))

	t.Setenv("CLIENTCOMM_API_PORT", "9100")
	t.Setenv("CLIENTCOMM_REDACTION_DELAY", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.APIPort)
	assert.Equal(t, "America/Chicago", cfg.TimeZone)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30*time.Minute, cfg.GetRedactionDelay())
	assert.Equal(t, DefaultDatabaseDriver, cfg.DatabaseDriver)
}

func TestConfig_URLs(t *testing.T) {
	cfg := &Config{DeployBaseURL: "https://clientcomm.example.org/"}
	assert.Equal(t, "https://clientcomm.example.org/incoming/sms/status", cfg.StatusCallbackURL())
	assert.Equal(t, "https://clientcomm.example.org/incoming/sms", cfg.WebhookURL("/incoming/sms"))
}

func TestConfig_LocationFallback(t *testing.T) {
	cfg := &Config{TimeZone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())
}
