// Package refresh drives keyword refresh batches: scraping, the single
// per-keyword state write, retry queue upkeep, and the per-domain stats
// recompute.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ranklens/ranklens/internal/metrics"
	"github.com/ranklens/ranklens/internal/provider"
	"github.com/ranklens/ranklens/internal/stats"
	"github.com/ranklens/ranklens/internal/tracker"
)

// Fetcher executes a provider API call. Satisfied by provider.Client.
type Fetcher interface {
	Fetch(ctx context.Context, adapter provider.Adapter, req provider.Request) ([]byte, error)
}

// Orchestrator coordinates one batch of keyword refreshes.
type Orchestrator struct {
	keywords   tracker.KeywordStore
	domains    tracker.DomainStore
	queue      tracker.RetryQueue
	registry   *provider.Registry
	fetcher    Fetcher
	aggregator *stats.Aggregator
	clock      tracker.Clock
	logger     *zap.Logger
}

// New constructs an Orchestrator.
func New(
	keywords tracker.KeywordStore,
	domains tracker.DomainStore,
	queue tracker.RetryQueue,
	registry *provider.Registry,
	fetcher Fetcher,
	aggregator *stats.Aggregator,
	clock tracker.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		keywords:   keywords,
		domains:    domains,
		queue:      queue,
		registry:   registry,
		fetcher:    fetcher,
		aggregator: aggregator,
		clock:      clock,
		logger:     logger,
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// task is one keyword bound to its effective settings and domain policy.
type task struct {
	keyword  tracker.Keyword
	settings tracker.Settings
	adapter  provider.Adapter
	skip     bool  // domain has scraping disabled
	bindErr  error // unknown provider id
}

// RefreshBatch refreshes the given keywords and returns their
// post-refresh state re-read from the store.
//
// A single keyword's failure never aborts its siblings; only a
// batch-level failure before any scraping starts (the domain lookup) is
// returned as an error.
func (o *Orchestrator) RefreshBatch(ctx context.Context, keywords []tracker.Keyword, settings tracker.Settings) ([]tracker.Keyword, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	batchID := uuid.NewString()
	logger := o.logger.With(zap.String("batch_id", batchID))
	logger.Info("refresh batch starting", zap.Int("keywords", len(keywords)))

	tasks, err := o.bindTasks(ctx, keywords, settings)
	if err != nil {
		return nil, err
	}

	if err := o.markInFlight(ctx, tasks); err != nil {
		return nil, err
	}

	var parallel, sequential, skipped []task
	for _, t := range tasks {
		switch {
		case t.skip:
			skipped = append(skipped, t)
		case t.adapter != nil && t.adapter.SupportsParallel():
			parallel = append(parallel, t)
		default:
			sequential = append(sequential, t)
		}
	}

	// Skipped keywords still get exactly one write clearing the
	// in-flight pair.
	for _, t := range skipped {
		o.settle(ctx, logger, t, tracker.RefreshOutcome{
			KeywordID:  t.keyword.ID,
			FinishedAt: o.clock.Now(),
		})
	}

	o.runParallel(ctx, logger, parallel)
	o.runSequential(ctx, logger, sequential)

	o.recomputeStats(ctx, logger, tasks)

	ids := make([]int64, 0, len(keywords))
	for _, k := range keywords {
		ids = append(ids, k.ID)
	}
	updated, err := o.keywords.ListKeywordsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload refreshed keywords: %w", err)
	}
	logger.Info("refresh batch finished", zap.Int("keywords", len(updated)))
	return updated, nil
}

// bindTasks resolves each keyword's domain policy, effective settings,
// and adapter. Domain lookup failure is a batch-level error; an unknown
// provider id only fails its own keyword.
func (o *Orchestrator) bindTasks(ctx context.Context, keywords []tracker.Keyword, settings tracker.Settings) ([]task, error) {
	domainCache := make(map[string]tracker.Domain)
	tasks := make([]task, 0, len(keywords))
	for _, k := range keywords {
		d, ok := domainCache[k.Domain]
		if !ok {
			var err error
			d, err = o.domains.GetDomain(ctx, k.Domain)
			if err != nil {
				return nil, fmt.Errorf("lookup domain %s: %w", k.Domain, err)
			}
			domainCache[k.Domain] = d
		}

		t := task{keyword: k, settings: settings.Merge(d)}
		if !d.ScrapeEnabled {
			t.skip = true
			tasks = append(tasks, t)
			continue
		}
		adapter, err := o.registry.Lookup(t.settings.ScraperID)
		if err != nil {
			t.bindErr = err
		}
		t.adapter = adapter
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (o *Orchestrator) markInFlight(ctx context.Context, tasks []task) error {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.keyword.ID)
	}
	if err := o.keywords.MarkUpdating(ctx, ids, o.clock.Now()); err != nil {
		return fmt.Errorf("mark keywords updating: %w", err)
	}
	return nil
}

// runParallel fans out one goroutine per keyword; every task settles
// regardless of sibling failures.
func (o *Orchestrator) runParallel(ctx context.Context, logger *zap.Logger, tasks []task) {
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			o.refreshOne(ctx, logger, t)
		}(t)
	}
	wg.Wait()
}

// runSequential scrapes one keyword at a time with an inter-call delay
// for rate-limit sensitive providers.
func (o *Orchestrator) runSequential(ctx context.Context, logger *zap.Logger, tasks []task) {
	if len(tasks) == 0 {
		return
	}
	var limiter *rate.Limiter
	for _, t := range tasks {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				// Context finished; settle the remaining keywords as
				// timed out rather than leaving them in flight.
				o.settle(ctx, logger, t, o.failureOutcome(t, fmt.Errorf("batch canceled: %w", err)))
				continue
			}
		} else if t.settings.ScrapeDelay > 0 {
			limiter = rate.NewLimiter(rate.Every(t.settings.ScrapeDelay), 1)
			// First call consumes the initial token immediately.
			_ = limiter.Wait(ctx)
		}
		o.refreshOne(ctx, logger, t)
	}
}

// refreshOne runs the scrape for one keyword and settles it with
// exactly one state write whatever the outcome, panics included.
func (o *Orchestrator) refreshOne(ctx context.Context, logger *zap.Logger, t task) {
	start := o.clock.Now()
	outcome := o.scrape(ctx, t)
	status := "success"
	if outcome.Error != nil {
		status = "error"
	}
	metrics.ObserveRefresh(providerLabel(t), status, time.Since(start))
	o.settle(ctx, logger, t, outcome)
}

// scrape performs the provider call and decode, converting every
// failure mode, panics included, into a failure outcome.
func (o *Orchestrator) scrape(ctx context.Context, t task) (outcome tracker.RefreshOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = o.failureOutcome(t, fmt.Errorf("scrape panic: %v", r))
		}
	}()

	if t.bindErr != nil {
		return o.failureOutcome(t, t.bindErr)
	}

	req, err := t.adapter.BuildRequest(t.keyword, t.settings)
	if err != nil {
		return o.failureOutcome(t, fmt.Errorf("build request: %w", err))
	}
	body, err := o.fetcher.Fetch(ctx, t.adapter, req)
	if err != nil {
		metrics.ObserveProviderRequest(t.adapter.ID(), "error")
		return o.failureOutcome(t, err)
	}
	metrics.ObserveProviderRequest(t.adapter.ID(), "ok")

	decoded, err := t.adapter.DecodeResponse(provider.DecodeInput{
		Body:     body,
		Keyword:  t.keyword,
		Settings: t.settings,
	})
	if err != nil {
		return o.failureOutcome(t, err)
	}

	return o.successOutcome(ctx, t, decoded)
}

// successOutcome builds the single-write payload for a successful
// scrape: new position, trimmed history, serialized results, cleared
// error, cleared in-flight pair.
func (o *Orchestrator) successOutcome(ctx context.Context, t task, decoded provider.DecodeOutput) tracker.RefreshOutcome {
	now := o.clock.Now()
	today := tracker.DayKey(now)

	history := make(map[string]int, len(t.keyword.History)+1)
	for k, v := range t.keyword.History {
		history[k] = v
	}
	position := provider.PositionFor(decoded.OrganicResults, t.keyword.Domain)
	history[today] = position

	mapPack := decoded.MapPackTop3
	if t.adapter.SupportsMapPack() && t.keyword.Device == tracker.DeviceMobile && !decoded.HasLocalSection {
		// The payload had no local section at all: fall back to the
		// sibling desktop keyword's last known value instead of
		// computing false. An existing-but-empty section is computed
		// normally and never reaches this branch.
		mapPack = o.desktopFallback(ctx, t.keyword)
	}

	return tracker.RefreshOutcome{
		KeywordID:    t.keyword.ID,
		Scraped:      true,
		Position:     position,
		History:      tracker.TrimHistory(history, today),
		LastResult:   decoded.OrganicResults,
		LocalResults: decoded.LocalResults,
		MapPackTop3:  mapPack,
		FinishedAt:   now,
	}
}

func (o *Orchestrator) desktopFallback(ctx context.Context, k tracker.Keyword) bool {
	sibling, err := o.keywords.SiblingDesktop(ctx, k)
	if err != nil {
		return false
	}
	return sibling.MapPackTop3
}

func (o *Orchestrator) failureOutcome(t task, err error) tracker.RefreshOutcome {
	return tracker.RefreshOutcome{
		KeywordID: t.keyword.ID,
		Error: &tracker.UpdateError{
			Date:      o.clock.Now(),
			Error:     err.Error(),
			ScraperID: providerLabel(t),
		},
		FinishedAt: o.clock.Now(),
	}
}

// settle applies the outcome's single state write and then performs the
// best-effort retry queue update. A failing queue never affects the
// keyword's own transition; a failing state write is logged and left
// for the stale-flag cleanup.
func (o *Orchestrator) settle(ctx context.Context, logger *zap.Logger, t task, outcome tracker.RefreshOutcome) {
	if err := o.keywords.ApplyRefresh(ctx, outcome); err != nil {
		logger.Error("keyword state write failed",
			zap.Int64("keyword_id", outcome.KeywordID),
			zap.Error(err),
		)
		return
	}

	switch {
	case outcome.Error != nil && t.settings.RetryEnabled:
		if err := o.queue.Add(outcome.KeywordID); err != nil {
			logger.Warn("retry queue add failed",
				zap.Int64("keyword_id", outcome.KeywordID), zap.Error(err))
		}
	default:
		if err := o.queue.Remove(outcome.KeywordID); err != nil {
			logger.Warn("retry queue remove failed",
				zap.Int64("keyword_id", outcome.KeywordID), zap.Error(err))
		}
	}

	if outcome.Error != nil {
		logger.Warn("keyword refresh failed",
			zap.Int64("keyword_id", outcome.KeywordID),
			zap.String("provider", outcome.Error.ScraperID),
			zap.String("error", outcome.Error.Error),
		)
	}
}

// recomputeStats refreshes derived stats for every domain the batch
// touched, in parallel across domains, after all keyword writes for
// the batch have settled.
func (o *Orchestrator) recomputeStats(ctx context.Context, logger *zap.Logger, tasks []task) {
	if o.aggregator == nil {
		return
	}
	seen := make(map[string]struct{})
	var domains []string
	for _, t := range tasks {
		if _, ok := seen[t.keyword.Domain]; ok {
			continue
		}
		seen[t.keyword.Domain] = struct{}{}
		domains = append(domains, t.keyword.Domain)
	}
	if err := o.aggregator.RecomputeAll(ctx, domains); err != nil {
		logger.Error("domain stats recompute failed", zap.Error(err))
	}
}

func providerLabel(t task) string {
	if t.adapter != nil {
		return t.adapter.ID()
	}
	return t.settings.ScraperID
}
