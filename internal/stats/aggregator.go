// Package stats recomputes per-domain derived statistics after a
// refresh batch.
package stats

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ranklens/ranklens/internal/metrics"
)

// Source supplies the fresh aggregate numbers for one domain. The
// aggregate query runs over the current keyword rows, never over
// in-memory instances, which may be stale after bulk writes.
type Source interface {
	AggregateDomainStats(ctx context.Context, domain string) (avgPosition, mapPackKeywords int, err error)
}

// Sink receives the recomputed stats.
type Sink interface {
	UpdateDomainStats(ctx context.Context, domain string, avgPosition, mapPackKeywords int) error
}

// Aggregator recomputes the write-only derived stats on domain rows.
type Aggregator struct {
	source Source
	sink   Sink
	logger *zap.Logger
}

// New constructs an Aggregator.
func New(source Source, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{source: source, sink: sink, logger: logger}
}

// Recompute refreshes one domain's stats. A domain with zero keywords
// gets both stats written as zero rather than left stale.
func (a *Aggregator) Recompute(ctx context.Context, domain string) error {
	avg, mapPack, err := a.source.AggregateDomainStats(ctx, domain)
	if err != nil {
		return fmt.Errorf("aggregate stats for %s: %w", domain, err)
	}
	if err := a.sink.UpdateDomainStats(ctx, domain, avg, mapPack); err != nil {
		return fmt.Errorf("store stats for %s: %w", domain, err)
	}
	metrics.ObserveStatsRecompute()
	a.logger.Debug("domain stats recomputed",
		zap.String("domain", domain),
		zap.Int("avg_position", avg),
		zap.Int("map_pack_keywords", mapPack),
	)
	return nil
}

// RecomputeAll refreshes stats for every domain, in parallel across
// domains. The first failure is returned but does not cancel siblings
// already in flight.
func (a *Aggregator) RecomputeAll(ctx context.Context, domains []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, domain := range domains {
		g.Go(func() error {
			return a.Recompute(gctx, domain)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("recompute domain stats: %w", err)
	}
	return nil
}
