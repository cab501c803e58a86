// Package config loads the application configuration via Viper from a
// config file, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob that influences the tracker. All values
// originate from Viper so the service can be configured via a file or
// env vars (prefix RANKLENS, dots become underscores).
type Config struct {
	// Server.
	ListenAddr      string
	APIKey          string // empty disables request auth
	ShutdownTimeout time.Duration

	// Scraping.
	ScraperID     string
	ScraperAPIKey string
	ScrapeDelay   time.Duration
	ScrapeTimeout time.Duration
	RetryEnabled  bool

	// Cron worker.
	CronInterval   time.Duration
	StaleThreshold time.Duration

	// Storage.
	DatabasePath  string
	RetryFilePath string

	// Logging.
	Development bool
}

// Load reads configuration from the named file path (optional), the
// environment, and defaults. A missing config file is not an error;
// a malformed one is.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RANKLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ranklens")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ranklens/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		ListenAddr:      v.GetString("server.listen_addr"),
		APIKey:          v.GetString("server.api_key"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		ScraperID:       v.GetString("scraper.id"),
		ScraperAPIKey:   v.GetString("scraper.api_key"),
		ScrapeDelay:     v.GetDuration("scraper.delay"),
		ScrapeTimeout:   v.GetDuration("scraper.timeout"),
		RetryEnabled:    v.GetBool("scraper.retry_enabled"),
		CronInterval:    v.GetDuration("cron.interval"),
		StaleThreshold:  v.GetDuration("cron.stale_threshold"),
		DatabasePath:    v.GetString("storage.database_path"),
		RetryFilePath:   v.GetString("storage.retry_file_path"),
		Development:     v.GetBool("logging.development"),
	}
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":3000")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("scraper.id", "serpapi")
	v.SetDefault("scraper.delay", "3s")
	v.SetDefault("scraper.timeout", "30s")
	v.SetDefault("scraper.retry_enabled", true)

	v.SetDefault("cron.interval", "1h")
	v.SetDefault("cron.stale_threshold", "1h")

	v.SetDefault("storage.database_path", "data/ranklens.db")
	v.SetDefault("storage.retry_file_path", "data/failed_queue.json")
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must be set")
	}
	if c.ScraperID == "" {
		return fmt.Errorf("scraper.id must be set")
	}
	if c.ScrapeDelay < 0 {
		return fmt.Errorf("scraper.delay must be >= 0")
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("scraper.timeout must be > 0")
	}
	if c.CronInterval <= 0 {
		return fmt.Errorf("cron.interval must be > 0")
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("cron.stale_threshold must be > 0")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("storage.database_path must be set")
	}
	if c.RetryFilePath == "" {
		return fmt.Errorf("storage.retry_file_path must be set")
	}
	return nil
}
