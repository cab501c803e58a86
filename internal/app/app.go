// Package app initializes and holds the long-lived services both
// binaries share, acting as a dependency injection container.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	clocksystem "github.com/ranklens/ranklens/internal/clock/system"
	"github.com/ranklens/ranklens/internal/config"
	"github.com/ranklens/ranklens/internal/logging"
	"github.com/ranklens/ranklens/internal/metrics"
	"github.com/ranklens/ranklens/internal/provider"
	"github.com/ranklens/ranklens/internal/refresh"
	"github.com/ranklens/ranklens/internal/retryqueue"
	"github.com/ranklens/ranklens/internal/stats"
	"github.com/ranklens/ranklens/internal/store/sqlite"
	"github.com/ranklens/ranklens/internal/tracker"
)

// App holds the shared, long-lived services: logger, store, retry
// queue, provider registry, and the refresh orchestrator. It is built
// once at startup and torn down with Close.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        *sqlite.Store
	Queue        *retryqueue.Queue
	Registry     *provider.Registry
	Orchestrator *refresh.Orchestrator
}

// New builds the service graph from the named config file path (empty
// uses the default search paths). It fails fast when any critical
// service cannot be initialized.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	queue := retryqueue.New(retryqueue.Config{Path: cfg.RetryFilePath}, logger)
	registry := provider.NewRegistry()
	client := provider.NewClient(cfg.ScrapeTimeout, logger)
	aggregator := stats.New(store, store, logger)
	orchestrator := refresh.New(
		store, store, queue, registry, client, aggregator,
		clocksystem.New(), logger,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Queue:        queue,
		Registry:     registry,
		Orchestrator: orchestrator,
	}, nil
}

// Settings returns the global scrape settings derived from config.
func (a *App) Settings() tracker.Settings {
	return tracker.Settings{
		ScraperID:    a.Config.ScraperID,
		APIKey:       a.Config.ScraperAPIKey,
		RetryEnabled: a.Config.RetryEnabled,
		ScrapeDelay:  a.Config.ScrapeDelay,
		Timeout:      a.Config.ScrapeTimeout,
	}
}

// Close tears down the service graph.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("store close failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
