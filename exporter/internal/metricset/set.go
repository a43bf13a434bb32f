package metricset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/common/model"
)

// ErrNegativeDelta is returned by IncrementCounter for a delta below zero.
var ErrNegativeDelta = errors.New("negative counter delta")

// ErrNonFiniteDelta is returned by IncrementCounter for a NaN or infinite
// delta, or one that would overflow the counter to infinity.
var ErrNonFiniteDelta = errors.New("non-finite counter delta")

// LabelPair is one label of a Sample.
type LabelPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Sample is the value of one series at snapshot time.
type Sample struct {
	Name   string      `json:"name"`
	Kind   Kind        `json:"-"`
	Labels []LabelPair `json:"labels"`
	Value  float64     `json:"value"`
}

// Label returns the value of the named label, or "".
func (s Sample) Label(name string) string {
	for _, l := range s.Labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

type series struct {
	name   string
	values []string
	value  float64
}

// Set is a thread-safe in-memory registry of gauge and counter series,
// constrained by a Catalogue. Every mutation holds the write lock, so a
// counter increment is a single atomic read-modify-write.
type Set struct {
	cat *Catalogue

	mu     sync.RWMutex
	series map[string]*series
}

// New returns an empty Set for the given catalogue.
func New(cat *Catalogue) *Set {
	return &Set{
		cat:    cat,
		series: make(map[string]*series),
	}
}

// Catalogue returns the descriptors this Set accepts.
func (s *Set) Catalogue() *Catalogue { return s.cat }

// SetGauge records value for the gauge series identified by name and labels.
// The previous value, if any, is replaced.
func (s *Set) SetGauge(name string, labels Labels, value float64) error {
	desc, values, err := s.cat.Resolve(name, labels)
	if err == nil && desc.Kind != Gauge {
		err = fmt.Errorf("%w: %s is a %s", ErrKindMismatch, name, desc.Kind)
	}
	if err != nil {
		slog.Warn("metricset: gauge update dropped", "metric", name, "err", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seriesFor(name, values).value = value
	return nil
}

// IncrementCounter adds delta to the counter series identified by name and
// labels, creating it at zero first if needed.
func (s *Set) IncrementCounter(name string, labels Labels, delta float64) error {
	desc, values, err := s.cat.Resolve(name, labels)
	switch {
	case err != nil:
	case desc.Kind != Counter:
		err = fmt.Errorf("%w: %s is a %s", ErrKindMismatch, name, desc.Kind)
	case math.IsNaN(delta) || math.IsInf(delta, 0):
		err = fmt.Errorf("%w: %s by %g", ErrNonFiniteDelta, name, delta)
	case delta < 0:
		err = fmt.Errorf("%w: %s by %g", ErrNegativeDelta, name, delta)
	}
	if err != nil {
		slog.Warn("metricset: counter update dropped", "metric", name, "err", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sr := s.seriesFor(name, values)
	if next := sr.value + delta; !math.IsInf(next, 0) {
		sr.value = next
		return nil
	}
	err = fmt.Errorf("%w: %s overflows at %g + %g", ErrNonFiniteDelta, name, sr.value, delta)
	slog.Warn("metricset: counter update dropped", "metric", name, "err", err)
	return err
}

// Get returns the current value of a series and whether it exists.
func (s *Set) Get(name string, labels Labels) (float64, bool) {
	_, values, err := s.cat.Resolve(name, labels)
	if err != nil {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[seriesKey(name, values)]
	if !ok {
		return 0, false
	}
	return sr.value, true
}

// Kind returns the kind bound to name, or 0 for an unknown name.
func (s *Set) Kind(name string) Kind {
	d, _ := s.cat.Lookup(name)
	return d.Kind
}

// Len returns the number of series currently held.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

// Snapshot returns a copy of every series, sorted by name then label values.
// The copy is taken in a single pass under the read lock.
func (s *Set) Snapshot() []Sample {
	s.mu.RLock()
	out := make([]Sample, 0, len(s.series))
	for _, sr := range s.series {
		desc, _ := s.cat.Lookup(sr.name)
		labels := make([]LabelPair, len(sr.values))
		for i, v := range sr.values {
			labels[i] = LabelPair{Name: desc.LabelNames[i], Value: v}
		}
		out = append(out, Sample{
			Name:   sr.name,
			Kind:   desc.Kind,
			Labels: labels,
			Value:  sr.value,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		a, b := out[i].Labels, out[j].Labels
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k].Value != b[k].Value {
				return a[k].Value < b[k].Value
			}
		}
		return len(a) < len(b)
	})
	return out
}

// seriesFor returns the series for (name, values), creating it at zero.
// Callers must hold s.mu for writing.
func (s *Set) seriesFor(name string, values []string) *series {
	key := seriesKey(name, values)
	sr, ok := s.series[key]
	if !ok {
		sr = &series{name: name, values: values}
		s.series[key] = sr
	}
	return sr
}

func seriesKey(name string, values []string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, v := range values {
		b.WriteByte(model.SeparatorByte)
		b.WriteString(v)
	}
	return b.String()
}
