package collector

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/config"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/status"
)

// Fetcher retrieves the status document of one server.
type Fetcher interface {
	Fetch(ctx context.Context, srv config.Server) (*status.Snapshot, error)
}

// Report summarizes one collection round.
type Report struct {
	Succeeded []string
	Failed    []string
	Duration  time.Duration
}

// Collector writes fishnet status into a metricset.Set.
// CollectOnce may be called from one goroutine at a time.
type Collector struct {
	set     *metricset.Set
	fetcher Fetcher
	names   Names
	deltas  *metricset.DeltaTracker // origin is the server name
	now     func() time.Time        // injectable for deterministic tests

	polled map[string]struct{} // servers with baselines in deltas
}

// New returns a Collector writing into set. namespace must match the one set's
// catalogue was built with.
func New(set *metricset.Set, fetcher Fetcher, namespace string) *Collector {
	return &Collector{
		set:     set,
		fetcher: fetcher,
		names:   NamesFor(namespace),
		deltas:  metricset.NewDeltaTracker(),
		now:     time.Now,
		polled:  make(map[string]struct{}),
	}
}

// Names returns the metric names this Collector writes.
func (c *Collector) Names() Names { return c.names }

// CollectOnce polls every server in cfg and updates the metric set.
// Per-server failures are logged and reflected in up{instance}; they are
// never returned.
func (c *Collector) CollectOnce(ctx context.Context, cfg *config.Config) Report {
	start := c.now()

	limit := cfg.Exporter.MaxConcurrency
	if limit <= 0 {
		limit = config.DefaultMaxConcurrency
	}
	cumulative := cfg.Exporter.CounterMode != config.CounterModeIncremental
	c.forgetRemoved(cfg.Servers)

	var (
		mu  sync.Mutex
		rep Report
		g   errgroup.Group
	)
	g.SetLimit(limit)
	for _, srv := range cfg.Servers {
		srv := srv
		g.Go(func() error {
			ok := c.collectServer(ctx, srv, cumulative)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				rep.Succeeded = append(rep.Succeeded, srv.Name)
			} else {
				rep.Failed = append(rep.Failed, srv.Name)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(rep.Succeeded)
	sort.Strings(rep.Failed)
	rep.Duration = c.now().Sub(start)

	slog.Info("collector: round complete",
		"succeeded", len(rep.Succeeded),
		"failed", len(rep.Failed),
		"duration", rep.Duration,
	)
	return rep
}

// forgetRemoved drops the counter baselines of servers that are no longer
// configured, so a hot reload that removes a server does not leak them.
func (c *Collector) forgetRemoved(servers []config.Server) {
	current := make(map[string]struct{}, len(servers))
	for _, srv := range servers {
		current[srv.Name] = struct{}{}
	}
	for name := range c.polled {
		if _, ok := current[name]; !ok {
			c.deltas.Forget(name)
			delete(c.polled, name)
			slog.Debug("collector: forgot removed server", "server", name)
		}
	}
	for name := range current {
		c.polled[name] = struct{}{}
	}
}

// collectServer fetches one server and applies its snapshot.
// It reports whether the fetch succeeded.
func (c *Collector) collectServer(ctx context.Context, srv config.Server, cumulative bool) bool {
	inst := metricset.Labels{LabelInstance: srv.Name}

	snap, err := c.fetcher.Fetch(ctx, srv)
	if err != nil {
		_ = c.set.SetGauge(c.names.Up, inst, 0)
		slog.Warn("collector: fetch failed", "server", srv.Name, "err", err)
		return false
	}

	_ = c.set.SetGauge(c.names.Up, inst, 1)
	c.apply(srv.Name, snap, cumulative)
	slog.Debug("collector: collected", "server", srv.Name)
	return true
}

// apply translates snap into series labelled instance=server.
func (c *Collector) apply(server string, snap *status.Snapshot, cumulative bool) {
	n := c.names
	inst := metricset.Labels{LabelInstance: server}

	_ = c.set.SetGauge(n.Nodes, inst, snap.NodeCount())

	for jobType, pending := range snap.Queue {
		_ = c.set.SetGauge(n.JobsQueued, metricset.Labels{LabelInstance: server, LabelJobType: jobType}, pending)
	}

	c.addCounters(n.JobsCompleted, server, snap.Completed(), cumulative)
	c.addCounters(n.JobsRejected, server, snap.Rejected(), cumulative)

	for clientID, info := range snap.Clients {
		version := info.Version
		if version == "" {
			version = unknownVersion
		}
		_ = c.set.SetGauge(n.ClientVersion, metricset.Labels{
			LabelInstance: server,
			LabelClientID: clientID,
			LabelVersion:  version,
		}, 1)
	}

	_ = c.set.SetGauge(n.AnalysesPerSecond, inst, snap.AnalysesPerSecond())

	for depth, ms := range snap.MoveTime() {
		_ = c.set.SetGauge(n.MoveTime, metricset.Labels{LabelInstance: server, LabelDepth: depth}, ms)
	}
}

func (c *Collector) addCounters(name, server string, counts map[string]float64, cumulative bool) {
	for jobType, raw := range counts {
		labels := metricset.Labels{LabelInstance: server, LabelJobType: jobType}
		delta := raw
		if cumulative {
			delta = c.deltas.Observe(server, name, labels, raw)
		}
		// A zero delta still materializes the series.
		_ = c.set.IncrementCounter(name, labels, delta)
	}
}
