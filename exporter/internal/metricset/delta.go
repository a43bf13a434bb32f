package metricset

import (
	"math"
	"sync"

	"github.com/prometheus/common/model"
)

// DeltaTracker converts cumulative totals into non-negative increments.
// It remembers the last raw value seen for each (origin, series) pair.
//
// All exported methods are safe for concurrent use.
type DeltaTracker struct {
	mu   sync.Mutex
	last map[string]map[string]float64 // origin -> series -> raw
}

// NewDeltaTracker returns an empty tracker.
func NewDeltaTracker() *DeltaTracker {
	return &DeltaTracker{last: make(map[string]map[string]float64)}
}

// Observe records raw as the latest total for the series and returns the
// increment since the previous observation from the same origin.
//
// The first observation returns raw itself. A decrease means the origin
// restarted; it returns 0 and the new value becomes the baseline.
// NaN and infinite values are ignored: they return 0 and leave the baseline
// untouched.
func (d *DeltaTracker) Observe(origin, name string, labels Labels, raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	key := seriesID(name, labels)

	d.mu.Lock()
	defer d.mu.Unlock()

	byOrigin, ok := d.last[origin]
	if !ok {
		byOrigin = make(map[string]float64)
		d.last[origin] = byOrigin
	}
	prev, seen := byOrigin[key]
	byOrigin[key] = raw
	if !seen {
		if raw < 0 {
			return 0
		}
		return raw
	}
	return deltaOf(raw, prev)
}

// Forget drops every baseline recorded for origin.
func (d *DeltaTracker) Forget(origin string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, origin)
}

// Origins returns the number of origins with recorded baselines.
func (d *DeltaTracker) Origins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}

// deltaOf returns cur - prev, clamped to 0 for counter resets.
func deltaOf(cur, prev float64) float64 {
	if d := cur - prev; d > 0 {
		return d
	}
	return 0
}

func seriesID(name string, labels Labels) string {
	m := make(model.Metric, len(labels)+1)
	m[model.MetricNameLabel] = model.LabelValue(name)
	for k, v := range labels {
		m[model.LabelName(k)] = model.LabelValue(v)
	}
	return m.String()
}
