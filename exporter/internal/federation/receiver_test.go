package federation

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/collector"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"
)

func newSet() *metricset.Set { return metricset.New(collector.Catalogue("")) }

func value(t *testing.T, set *metricset.Set, name string, labels metricset.Labels) float64 {
	t.Helper()
	v, ok := set.Get(name, labels)
	if !ok {
		t.Fatalf("series %s%v not found", name, labels)
	}
	return v
}

func TestMerge_Gauge(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)

	res, err := r.Merge("c1", strings.NewReader(`nodes_total{instance="a"} 5`+"\n"))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Accepted != 1 {
		t.Errorf("Accepted: got %d, want 1", res.Accepted)
	}
	if got := value(t, set, "nodes_total", metricset.Labels{"instance": "a"}); got != 5 {
		t.Errorf("nodes_total: got %v, want 5", got)
	}

	_, _ = r.Merge("c2", strings.NewReader(`nodes_total{instance="a"} 2`+"\n"))
	if got := value(t, set, "nodes_total", metricset.Labels{"instance": "a"}); got != 2 {
		t.Errorf("nodes_total after second push: got %v, want 2 (last write wins)", got)
	}
}

func TestMerge_SkipsMalformedKeepsRest(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)
	body := strings.Join([]string{
		"# HELP nodes_total Number of connected nodes",
		"# TYPE nodes_total gauge",
		`nodes_total{instance="a"} 5`,
		"garbage_no_braces 5",
		`jobs_queued{instance="a",job_type="move" 3`,
		"",
		`jobs_queued{instance="a",job_type="analysis"} 7`,
	}, "\n")

	res, err := r.Merge("c1", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Accepted != 2 || res.Skipped != 1 || res.Malformed != 1 {
		t.Errorf("result: got %+v, want accepted=2 skipped=1 malformed=1", res)
	}
	if got := value(t, set, "jobs_queued", metricset.Labels{"instance": "a", "job_type": "analysis"}); got != 7 {
		t.Errorf("jobs_queued: got %v, want 7", got)
	}
	if set.Len() != 2 {
		t.Errorf("Len: got %d, want 2", set.Len())
	}
}

func TestMerge_LabelMismatchSkipped(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)

	res, err := r.Merge("c1", strings.NewReader(`nodes_total{host="a"} 5`+"\n"+`nodes_total 3`+"\n"))
	if !errors.Is(err, ErrNoValidSamples) {
		t.Fatalf("err: got %v, want ErrNoValidSamples", err)
	}
	if res.Skipped != 2 || res.Accepted != 0 {
		t.Errorf("result: got %+v, want skipped=2", res)
	}
	if set.Len() != 0 {
		t.Errorf("Len: got %d, want 0", set.Len())
	}
}

func TestMerge_AllMalformed(t *testing.T) {
	r := NewReceiver(newSet())
	_, err := r.Merge("c1", strings.NewReader("this is not\n{exposition} text\n"))
	if !errors.Is(err, ErrNoValidSamples) {
		t.Errorf("err: got %v, want ErrNoValidSamples", err)
	}
}

func TestMerge_OnlyUnknownMetrics(t *testing.T) {
	set := newSet()
	res, err := NewReceiver(set).Merge("c1", strings.NewReader("garbage_no_braces 5\n"))
	if !errors.Is(err, ErrNoValidSamples) {
		t.Fatalf("err: got %v, want ErrNoValidSamples", err)
	}
	if res.Skipped != 1 || set.Len() != 0 {
		t.Errorf("result %+v, Len %d: want skipped=1 and an empty set", res, set.Len())
	}
}

func TestMerge_NonFiniteCounterSkipped(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)
	lbl := metricset.Labels{"instance": "a", "job_type": "x"}
	line := func(v string) string {
		return `jobs_completed_total{instance="a",job_type="x"} ` + v + "\n"
	}
	_ = set.IncrementCounter("jobs_completed_total", lbl, 5)

	for _, v := range []string{"NaN", "+Inf", "-Inf"} {
		res, _ := r.Merge("o1", strings.NewReader(line(v)+`nodes_total{instance="a"} 1`+"\n"))
		if res.Skipped != 1 || res.Accepted != 1 {
			t.Errorf("push %s: got %+v, want accepted=1 skipped=1", v, res)
		}
		if got := value(t, set, "jobs_completed_total", lbl); got != 5 {
			t.Fatalf("counter after %s push: got %v, want 5", v, got)
		}
	}

	// Neither the series nor the origin's baseline is poisoned.
	if _, err := r.Merge("o1", strings.NewReader(line("3"))); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := set.IncrementCounter("jobs_completed_total", lbl, 10); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if got := value(t, set, "jobs_completed_total", lbl); got != 18 {
		t.Errorf("counter: got %v, want 18", got)
	}
}

func TestMerge_EmptyBody(t *testing.T) {
	r := NewReceiver(newSet())
	res, err := r.Merge("c1", strings.NewReader("# only comments\n\n"))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res != (MergeResult{}) {
		t.Errorf("result: got %+v, want zero", res)
	}
}

func TestMerge_CounterForwardDifferencePerOrigin(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)
	lbl := metricset.Labels{"instance": "a", "job_type": "analysis"}
	push := func(origin string, v string) {
		t.Helper()
		line := `jobs_completed_total{instance="a",job_type="analysis"} ` + v + "\n"
		if _, err := r.Merge(origin, strings.NewReader(line)); err != nil {
			t.Fatalf("Merge: %v", err)
		}
	}

	push("c1", "10")
	push("c1", "10") // repeated cumulative push: no double count
	push("c1", "14")
	push("c2", "5") // independent origin contributes its own total
	push("c1", "2") // c1 restarted: no decrease
	push("c1", "3")

	if got := value(t, set, "jobs_completed_total", lbl); got != 20 {
		t.Errorf("counter: got %v, want 20", got)
	}
}

func TestMerge_CounterNeverDecreases(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)
	lbl := metricset.Labels{"instance": "a", "job_type": "move"}

	var last float64
	for _, v := range []string{"5", "3", "9", "0", "-4", "1", "12"} {
		line := `jobs_rejected_total{instance="a",job_type="move"} ` + v + "\n"
		_, _ = r.Merge("c1", strings.NewReader(line))
		got := value(t, set, "jobs_rejected_total", lbl)
		if got < last {
			t.Fatalf("counter decreased from %v to %v after push %s", last, got, v)
		}
		last = got
	}
}

func TestReceiver_Origins(t *testing.T) {
	r := NewReceiver(newSet())
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, _ = r.Merge("b", strings.NewReader(`up{instance="x"} 1`+"\n"))
	_, _ = r.Merge("a", strings.NewReader(`up{instance="y"} 1`+"\n"+`up{instance="z"} 0`+"\n"))

	got := r.Origins()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("Origins: got %+v", got)
	}
	if got[0].Accepted != 2 || !got[0].LastPush.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("origin a: got %+v", got[0])
	}
}

func TestReceiver_EvictIdleOrigins(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)
	r.ttl = time.Hour
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	clock := base
	r.now = func() time.Time { return clock }
	lbl := metricset.Labels{"instance": "a", "job_type": "analysis"}
	line := func(v string) *strings.Reader {
		return strings.NewReader(`jobs_completed_total{instance="a",job_type="analysis"} ` + v + "\n")
	}

	_, _ = r.Merge("old", line("5"))
	clock = base.Add(50 * time.Minute)
	_, _ = r.Merge("fresh", line("1"))

	if n := r.Evict(base.Add(90 * time.Minute)); n != 1 {
		t.Fatalf("Evict: got %d, want 1", n)
	}
	got := r.Origins()
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("Origins after evict: %+v", got)
	}
	if v := value(t, set, "jobs_completed_total", lbl); v != 6 {
		t.Errorf("merged counter must survive eviction: got %v, want 6", v)
	}

	// A returning origin starts from a fresh baseline.
	_, _ = r.Merge("old", line("2"))
	if v := value(t, set, "jobs_completed_total", lbl); v != 8 {
		t.Errorf("counter after returning origin: got %v, want 8", v)
	}
}

// Evict running alongside pushes from a stale origin may forget it at most
// once, before the first push marks it live again.
func TestReceiver_EvictDuringMerge(t *testing.T) {
	set := newSet()
	r := NewReceiver(set)
	r.ttl = time.Hour
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	var clock atomic.Int64
	clock.Store(base.UnixNano())
	r.now = func() time.Time { return time.Unix(0, clock.Load()) }
	lbl := metricset.Labels{"instance": "a", "job_type": "analysis"}
	body := `jobs_completed_total{instance="a",job_type="analysis"} 10` + "\n"

	if _, err := r.Merge("c1", strings.NewReader(body)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	later := base.Add(2 * time.Hour)
	clock.Store(later.UnixNano())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				r.Evict(later)
			}
		}
	}()
	for i := 0; i < 200; i++ {
		if _, err := r.Merge("c1", strings.NewReader(body)); err != nil {
			t.Fatalf("Merge %d: %v", i, err)
		}
	}
	close(stop)
	<-done

	got := value(t, set, "jobs_completed_total", lbl)
	if got != 10 && got != 20 {
		t.Errorf("counter: got %v, want 10 or 20 (at most one rebaseline)", got)
	}
}

func post(t *testing.T, h http.Handler, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/metrics/push", bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTP_Success(t *testing.T) {
	set := newSet()
	rec := post(t, NewReceiver(set), []byte(`nodes_total{instance="a"} 5`+"\ngarbage_no_braces 5\n"), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var resp pushResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" || resp.Accepted != 1 || resp.Skipped != 1 {
		t.Errorf("response: got %+v", resp)
	}
}

func TestServeHTTP_AllMalformed500(t *testing.T) {
	set := newSet()
	rec := post(t, NewReceiver(set), []byte("not{valid\n"), nil)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("body: got %q", rec.Body.String())
	}
}

func TestServeHTTP_Gzip(t *testing.T) {
	set := newSet()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(`nodes_total{instance="z"} 9` + "\n"))
	_ = zw.Close()

	rec := post(t, NewReceiver(set), buf.Bytes(), map[string]string{"Content-Encoding": "gzip"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := value(t, set, "nodes_total", metricset.Labels{"instance": "z"}); got != 9 {
		t.Errorf("nodes_total: got %v, want 9", got)
	}
}

func TestServeHTTP_OnlyUnknownMetrics500(t *testing.T) {
	set := newSet()
	rec := post(t, NewReceiver(set), []byte("garbage_no_braces 5\n"), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500 (%s)", rec.Code, rec.Body.String())
	}
	if set.Len() != 0 {
		t.Errorf("Len: got %d, want 0", set.Len())
	}
}

func TestServeHTTP_BadGzip(t *testing.T) {
	rec := post(t, NewReceiver(newSet()), []byte("plain text"), map[string]string{"Content-Encoding": "gzip"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewReceiver(newSet()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/push", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rec.Code)
	}
}

func TestOriginOf(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/metrics/push", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := originOf(req); got != "10.0.0.7" {
		t.Errorf("origin from remote addr: got %q", got)
	}
	req.Header.Set(OriginHeader, "worker-3")
	if got := originOf(req); got != "worker-3" {
		t.Errorf("origin from header: got %q", got)
	}
}
