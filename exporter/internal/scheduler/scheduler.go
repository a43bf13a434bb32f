package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/collector"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/config"
)

// Collector runs one collection round.
type Collector interface {
	CollectOnce(ctx context.Context, cfg *config.Config) collector.Report
}

// Hook is called after every collection round.
type Hook func(ctx context.Context, rep collector.Report)

// Scheduler runs collection rounds on the configured interval.
type Scheduler struct {
	coll  Collector
	cfg   *config.Provider
	hooks []Hook

	mu sync.Mutex // serializes rounds
}

// New returns a Scheduler that reads its settings from cfg.
func New(coll Collector, cfg *config.Provider, hooks ...Hook) *Scheduler {
	return &Scheduler{coll: coll, cfg: cfg, hooks: hooks}
}

// RunOnce performs one collection round and fires the hooks.
// Concurrent calls are serialized.
func (s *Scheduler) RunOnce(ctx context.Context) collector.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := s.coll.CollectOnce(ctx, s.cfg.Current())
	for _, h := range s.hooks {
		h(ctx, rep)
	}
	return rep
}

// Run collects immediately, then on every interval tick. It blocks until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.interval()
	slog.Info("scheduler: started", "interval", interval)

	s.RunOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return
		case <-t.C:
			rep := s.RunOnce(ctx)
			if rep.Duration > interval {
				slog.Warn("scheduler: round overran interval",
					"duration", rep.Duration, "interval", interval)
			}
			if next := s.interval(); next != interval {
				slog.Info("scheduler: interval changed", "from", interval, "to", next)
				interval = next
				t.Reset(interval)
			}
		}
	}
}

func (s *Scheduler) interval() time.Duration {
	d := s.cfg.Current().Exporter.ScrapeInterval.Duration()
	if d <= 0 {
		return config.DefaultScrapeInterval
	}
	return d
}
