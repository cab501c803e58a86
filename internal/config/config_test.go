package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":3000", cfg.ListenAddr)
	require.Equal(t, "serpapi", cfg.ScraperID)
	require.Equal(t, 3*time.Second, cfg.ScrapeDelay)
	require.Equal(t, 30*time.Second, cfg.ScrapeTimeout)
	require.True(t, cfg.RetryEnabled)
	require.Equal(t, time.Hour, cfg.CronInterval)
	require.Equal(t, "data/ranklens.db", cfg.DatabasePath)
	require.Equal(t, "data/failed_queue.json", cfg.RetryFilePath)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranklens.yaml")
	body := []byte(`
server:
  listen_addr: ":9090"
scraper:
  id: valueserp
  api_key: secret
  delay: 10s
storage:
  database_path: /tmp/rank.db
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, "valueserp", cfg.ScraperID)
	require.Equal(t, "secret", cfg.ScraperAPIKey)
	require.Equal(t, 10*time.Second, cfg.ScrapeDelay)
	require.Equal(t, "/tmp/rank.db", cfg.DatabasePath)
	// Untouched keys keep their defaults.
	require.Equal(t, "data/failed_queue.json", cfg.RetryFilePath)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RANKLENS_SCRAPER_ID", "serply")
	t.Setenv("RANKLENS_SCRAPER_API_KEY", "envkey")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "serply", cfg.ScraperID)
	require.Equal(t, "envkey", cfg.ScraperAPIKey)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Parallel()

	valid := Config{
		ListenAddr:     ":3000",
		ScraperID:      "serpapi",
		ScrapeTimeout:  30 * time.Second,
		CronInterval:   time.Hour,
		StaleThreshold: time.Hour,
		DatabasePath:   "x.db",
		RetryFilePath:  "q.json",
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"empty scraper id", func(c *Config) { c.ScraperID = "" }},
		{"negative delay", func(c *Config) { c.ScrapeDelay = -time.Second }},
		{"zero timeout", func(c *Config) { c.ScrapeTimeout = 0 }},
		{"zero cron interval", func(c *Config) { c.CronInterval = 0 }},
		{"zero stale threshold", func(c *Config) { c.StaleThreshold = 0 }},
		{"empty db path", func(c *Config) { c.DatabasePath = "" }},
		{"empty retry path", func(c *Config) { c.RetryFilePath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := valid
			tc.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
