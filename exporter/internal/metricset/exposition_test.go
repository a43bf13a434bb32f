package metricset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
)

func TestWriteText_HelpTypeAndSamples(t *testing.T) {
	s := New(testCatalogue())
	_ = s.SetGauge("up", Labels{"instance": "a"}, 1)
	_ = s.SetGauge("up", Labels{"instance": "b"}, 0)
	_ = s.IncrementCounter("jobs_completed_total", Labels{"instance": "a", "job_type": "analysis"}, 12)

	var buf bytes.Buffer
	if err := s.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# HELP up Whether the server is reachable.\n",
		"# TYPE up gauge\n",
		`up{instance="a"} 1` + "\n",
		`up{instance="b"} 0` + "\n",
		"# TYPE jobs_completed_total counter\n",
		`jobs_completed_total{instance="a",job_type="analysis"} 12` + "\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Count(out, "# TYPE up") != 1 {
		t.Errorf("expected one TYPE line for up, got:\n%s", out)
	}
}

func TestWriteText_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := New(testCatalogue()).WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty set: got %q, want no output", buf.String())
	}
}

func TestWriteText_RoundTripsThroughParser(t *testing.T) {
	s := New(testCatalogue())
	_ = s.SetGauge("jobs_queued", Labels{"instance": `we"ird\name`, "job_type": "move"}, 3)

	var buf bytes.Buffer
	if err := s.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mf, ok := mfs["jobs_queued"]
	if !ok || len(mf.GetMetric()) != 1 {
		t.Fatalf("parsed families: %v", mfs)
	}
	if got := mf.GetMetric()[0].GetLabel()[0].GetValue(); got != `we"ird\name` {
		t.Errorf("escaped label: got %q", got)
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("value: got %v, want 3", got)
	}
}

func TestTextContentType(t *testing.T) {
	if !strings.HasPrefix(TextContentType, "text/plain; version=0.0.4") {
		t.Errorf("TextContentType: got %q", TextContentType)
	}
}
