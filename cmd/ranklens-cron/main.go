// Package main runs the cron worker: it clears stale in-flight flags
// left by crashed runs, then periodically re-scrapes the retry queue
// and every keyword not refreshed within the configured interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ranklens/ranklens/internal/app"
	"github.com/ranklens/ranklens/internal/metrics"
	"github.com/ranklens/ranklens/internal/tracker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Flags stuck from a crashed run would exclude those keywords from
	// every future sweep, so clear them before the first one.
	cleared, err := a.Store.ClearStaleUpdating(ctx, time.Now().Add(-a.Config.StaleThreshold))
	if err != nil {
		a.Logger.Error("stale flag cleanup failed", zap.Error(err))
	} else if cleared > 0 {
		a.Logger.Info("cleared stale updating flags", zap.Int64("keywords", cleared))
	}

	if err := sweep(ctx, a); err != nil {
		a.Logger.Error("sweep failed", zap.Error(err))
	}
	if *once {
		return
	}

	ticker := time.NewTicker(a.Config.CronInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Logger.Info("cron worker stopping")
			return
		case <-ticker.C:
			if err := sweep(ctx, a); err != nil {
				a.Logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// sweep refreshes the retry queue's keywords plus any keyword whose
// last update predates the cron interval, deduplicated.
func sweep(ctx context.Context, a *app.App) error {
	queued, err := a.Queue.List()
	if err != nil {
		return fmt.Errorf("read retry queue: %w", err)
	}
	metrics.SetRetryQueueSize(len(queued))

	stale, err := a.Store.ListStaleKeywords(ctx, time.Now().Add(-a.Config.CronInterval))
	if err != nil {
		return fmt.Errorf("list stale keywords: %w", err)
	}

	seen := make(map[int64]struct{}, len(stale))
	keywords := make([]tracker.Keyword, 0, len(stale)+len(queued))
	for _, k := range stale {
		seen[k.ID] = struct{}{}
		keywords = append(keywords, k)
	}
	var missing []int64
	for _, id := range queued {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fromQueue, err := a.Store.ListKeywordsByIDs(ctx, missing)
		if err != nil {
			return fmt.Errorf("load queued keywords: %w", err)
		}
		keywords = append(keywords, fromQueue...)
	}
	if len(keywords) == 0 {
		a.Logger.Debug("nothing to refresh")
		return nil
	}

	a.Logger.Info("sweep starting",
		zap.Int("keywords", len(keywords)),
		zap.Int("from_retry_queue", len(queued)),
	)
	updated, err := a.Orchestrator.RefreshBatch(ctx, keywords, a.Settings())
	if err != nil {
		return fmt.Errorf("refresh batch: %w", err)
	}
	a.Logger.Info("sweep finished", zap.Int("keywords", len(updated)))

	if remaining, err := a.Queue.List(); err == nil {
		metrics.SetRetryQueueSize(len(remaining))
	}
	return nil
}
