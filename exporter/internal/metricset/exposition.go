package metricset

import (
	"bufio"
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// TextContentType is the Content-Type of WriteText output and of push bodies.
var TextContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Families groups samples (as returned by Snapshot) into metric families,
// one per name, in the order the names first appear.
func (c *Catalogue) Families(samples []Sample) []*dto.MetricFamily {
	var (
		out   []*dto.MetricFamily
		index = make(map[string]*dto.MetricFamily)
	)
	for _, s := range samples {
		mf, ok := index[s.Name]
		if !ok {
			desc, _ := c.Lookup(s.Name)
			help := desc.Help
			if help == "" {
				help = s.Name
			}
			mf = &dto.MetricFamily{
				Name: proto.String(s.Name),
				Help: proto.String(help),
				Type: metricType(s.Kind),
			}
			index[s.Name] = mf
			out = append(out, mf)
		}
		mf.Metric = append(mf.Metric, toMetric(s))
	}
	return out
}

// WriteText renders the current contents of s in the Prometheus text
// exposition format, each family preceded by its # HELP and # TYPE lines.
func (s *Set) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, mf := range s.cat.Families(s.Snapshot()) {
		if _, err := expfmt.MetricFamilyToText(bw, mf); err != nil {
			return fmt.Errorf("metricset: write %s: %w", mf.GetName(), err)
		}
	}
	return bw.Flush()
}

func metricType(k Kind) *dto.MetricType {
	if k == Counter {
		return dto.MetricType_COUNTER.Enum()
	}
	return dto.MetricType_GAUGE.Enum()
}

func toMetric(s Sample) *dto.Metric {
	m := &dto.Metric{Label: make([]*dto.LabelPair, 0, len(s.Labels))}
	for _, l := range s.Labels {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(l.Name),
			Value: proto.String(l.Value),
		})
	}
	if s.Kind == Counter {
		m.Counter = &dto.Counter{Value: proto.Float64(s.Value)}
	} else {
		m.Gauge = &dto.Gauge{Value: proto.Float64(s.Value)}
	}
	return m
}
