package metricset

import (
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/common/model"
)

// Kind is the merge rule of a metric.
type Kind int

const (
	// Gauge values are overwritten on every update.
	Gauge Kind = iota + 1
	// Counter values only grow, by non-negative increments.
	Counter
)

func (k Kind) String() string {
	switch k {
	case Gauge:
		return "gauge"
	case Counter:
		return "counter"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Labels maps label names to values for one series.
type Labels map[string]string

// Desc describes one metric name.
type Desc struct {
	Name       string
	Help       string
	Kind       Kind
	LabelNames []string
}

// Errors returned when a write does not match the catalogue.
var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrKindMismatch  = errors.New("metric kind mismatch")
	ErrLabelMismatch = errors.New("label names do not match metric")
)

// Catalogue is the fixed set of metric descriptors known to a process.
// It is immutable after construction and safe for concurrent use.
type Catalogue struct {
	descs map[string]Desc
	names []string
}

// NewCatalogue validates descs and returns a Catalogue holding them.
func NewCatalogue(descs ...Desc) (*Catalogue, error) {
	c := &Catalogue{descs: make(map[string]Desc, len(descs))}
	for _, d := range descs {
		if !model.IsValidMetricName(model.LabelValue(d.Name)) {
			return nil, fmt.Errorf("metricset: invalid metric name %q", d.Name)
		}
		if d.Kind != Gauge && d.Kind != Counter {
			return nil, fmt.Errorf("metricset: %s: invalid kind %v", d.Name, d.Kind)
		}
		if _, dup := c.descs[d.Name]; dup {
			return nil, fmt.Errorf("metricset: duplicate metric %q", d.Name)
		}
		seen := make(map[string]struct{}, len(d.LabelNames))
		for _, ln := range d.LabelNames {
			if !model.LabelName(ln).IsValid() || ln == model.MetricNameLabel {
				return nil, fmt.Errorf("metricset: %s: invalid label name %q", d.Name, ln)
			}
			if _, dup := seen[ln]; dup {
				return nil, fmt.Errorf("metricset: %s: duplicate label %q", d.Name, ln)
			}
			seen[ln] = struct{}{}
		}
		d.LabelNames = append([]string(nil), d.LabelNames...)
		c.descs[d.Name] = d
		c.names = append(c.names, d.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// MustCatalogue is like NewCatalogue but panics on an invalid descriptor.
func MustCatalogue(descs ...Desc) *Catalogue {
	c, err := NewCatalogue(descs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the descriptor for name.
func (c *Catalogue) Lookup(name string) (Desc, bool) {
	d, ok := c.descs[name]
	return d, ok
}

// Names returns all metric names in sorted order.
func (c *Catalogue) Names() []string {
	return append([]string(nil), c.names...)
}

// Resolve checks that name is known and that labels carry exactly its label
// names. It returns the descriptor and the label values in descriptor order.
func (c *Catalogue) Resolve(name string, labels Labels) (Desc, []string, error) {
	d, ok := c.descs[name]
	if !ok {
		return Desc{}, nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	if len(labels) != len(d.LabelNames) {
		return Desc{}, nil, fmt.Errorf("%w: %s wants %v", ErrLabelMismatch, name, d.LabelNames)
	}
	values := make([]string, len(d.LabelNames))
	for i, ln := range d.LabelNames {
		v, ok := labels[ln]
		if !ok {
			return Desc{}, nil, fmt.Errorf("%w: %s wants %v", ErrLabelMismatch, name, d.LabelNames)
		}
		values[i] = v
	}
	return d, values, nil
}

// FQName joins a namespace and a metric name with "_". An empty namespace
// returns name unchanged.
func FQName(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "_" + name
}
