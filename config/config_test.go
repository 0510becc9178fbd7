package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.PageTimeout)
	assert.Equal(t, 10, cfg.Batch.GroupSize)
	assert.Equal(t, 3, cfg.Batch.MaxRetries)
	assert.False(t, cfg.Geocoding.Enabled)
	assert.False(t, cfg.Telegram.Enabled)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIURL)
	assert.Equal(t, ":5250", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("BATCH_GROUP_SIZE", "25")
	t.Setenv("BATCH_RETRY_DELAY", "500ms")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 25, cfg.Batch.GroupSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Batch.RetryDelay)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("BATCH_GROUP_SIZE", "many")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadProfile(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := LoadProfile("")
		require.NoError(t, err)
		assert.Equal(t, DefaultProfile(), *p)
		require.NoError(t, p.Validate())
	})

	t.Run("overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		content := `
near_zero_threshold: 0.01
administrative_words: [kommun]
extra_aliases:
  living_area: [boarea]
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		p, err := LoadProfile(path)
		require.NoError(t, err)
		assert.Equal(t, 0.01, p.NearZeroThreshold)
		assert.Equal(t, []string{"kommun"}, p.AdministrativeWords)
		assert.Equal(t, []string{"boarea"}, p.ExtraAliases["living_area"])
		assert.Equal(t, "/salda/", p.SoldPathMarker, "unset keys keep their defaults")
	})

	t.Run("invalid timezone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		require.NoError(t, os.WriteFile(path, []byte("timezone: Mars/Olympus"), 0644))
		_, err := LoadProfile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
