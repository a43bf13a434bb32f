package federation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/common/expfmt"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"
)

// errNoSample is returned for a line that parses but carries no sample.
var errNoSample = errors.New("no sample on line")

// Sample is one parsed exposition line.
type Sample struct {
	Name   string
	Labels metricset.Labels
	Value  float64
}

// ParseError reports a line that is not a valid sample line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("federation: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// skipLine reports whether line carries no sample by definition: blank lines
// and comments (including # HELP and # TYPE).
func skipLine(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

// ParseLine parses one sample line of the text exposition format:
//
//	name{label="value",...} value [timestamp]
//
// The label block is optional. Timestamps are accepted and ignored.
func ParseLine(line string) (Sample, error) {
	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(strings.NewReader(strings.TrimSpace(line) + "\n"))
	if err != nil {
		return Sample{}, err
	}
	for name, mf := range mfs {
		for _, m := range mf.GetMetric() {
			s := Sample{Name: name, Labels: make(metricset.Labels, len(m.GetLabel()))}
			for _, lp := range m.GetLabel() {
				s.Labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case m.Untyped != nil:
				s.Value = m.GetUntyped().GetValue()
			case m.Gauge != nil:
				s.Value = m.GetGauge().GetValue()
			case m.Counter != nil:
				s.Value = m.GetCounter().GetValue()
			default:
				return Sample{}, errNoSample
			}
			return s, nil
		}
	}
	return Sample{}, errNoSample
}
