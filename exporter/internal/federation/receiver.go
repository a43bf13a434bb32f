package federation

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"
)

// OriginHeader identifies the pushing exporter.
const OriginHeader = "X-Fishnet-Exporter"

const (
	maxPushBytes = 16 << 20
	maxLineBytes = 1 << 20
)

// DefaultOriginTTL is how long an origin may stay silent before its
// bookkeeping and counter baselines are dropped. An origin that returns
// after eviction is treated as new.
const DefaultOriginTTL = 24 * time.Hour

// ErrNoValidSamples is returned by Merge when the body held sample lines and
// none of them could be merged, either because they did not parse or because
// the catalogue rejected them.
var ErrNoValidSamples = errors.New("no valid sample lines")

// MergeResult counts what happened to the lines of one push.
type MergeResult struct {
	Accepted  int // merged into the set
	Skipped   int // valid syntax, rejected by the catalogue
	Malformed int // not a valid sample line
}

// Origin is the bookkeeping kept for one pushing exporter.
type Origin struct {
	ID       string    `json:"id"`
	LastPush time.Time `json:"last_push"`
	Accepted int       `json:"accepted"`
}

// Receiver merges pushed exposition text into a metric set.
// It is safe for concurrent use.
type Receiver struct {
	set    *metricset.Set
	deltas *metricset.DeltaTracker
	ttl    time.Duration
	now    func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	origins map[string]*Origin
}

// NewReceiver returns a Receiver writing into set.
func NewReceiver(set *metricset.Set) *Receiver {
	return &Receiver{
		set:     set,
		deltas:  metricset.NewDeltaTracker(),
		ttl:     DefaultOriginTTL,
		now:     time.Now,
		origins: make(map[string]*Origin),
	}
}

// Merge parses body line by line and merges every valid sample pushed by
// origin. It returns ErrNoValidSamples when sample lines were present but
// none was accepted, and a read error if body could not be consumed.
func (r *Receiver) Merge(origin string, body io.Reader) (MergeResult, error) {
	var res MergeResult

	// The origin is live before any of its baselines is read.
	r.touch(origin)

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if skipLine(line) {
			continue
		}
		s, err := ParseLine(line)
		if err != nil {
			res.Malformed++
			slog.Warn("federation: malformed line skipped",
				"origin", origin, "err", &ParseError{Line: lineNo, Text: line, Err: err})
			continue
		}
		if err := r.mergeSample(origin, s); err != nil {
			res.Skipped++
			slog.Debug("federation: sample skipped", "origin", origin, "line", lineNo, "err", err)
			continue
		}
		res.Accepted++
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("federation: read body: %w", err)
	}

	r.record(origin, res.Accepted)

	if res.Accepted == 0 && res.Malformed+res.Skipped > 0 {
		return res, ErrNoValidSamples
	}
	return res, nil
}

func (r *Receiver) mergeSample(origin string, s Sample) error {
	switch r.set.Kind(s.Name) {
	case metricset.Gauge:
		return r.set.SetGauge(s.Name, s.Labels, s.Value)
	case metricset.Counter:
		if _, _, err := r.set.Catalogue().Resolve(s.Name, s.Labels); err != nil {
			return err
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return fmt.Errorf("%w: %s = %g", metricset.ErrNonFiniteDelta, s.Name, s.Value)
		}
		return r.set.IncrementCounter(s.Name, s.Labels, r.deltas.Observe(origin, s.Name, s.Labels, s.Value))
	default:
		return fmt.Errorf("%w: %q", metricset.ErrUnknownMetric, s.Name)
	}
}

// touch marks origin as pushing now.
func (r *Receiver) touch(origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.originLocked(origin).LastPush = r.now().UTC()
}

// record stores the outcome of the push that just finished.
func (r *Receiver) record(origin string, accepted int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.originLocked(origin).Accepted = accepted
}

func (r *Receiver) originLocked(id string) *Origin {
	o, ok := r.origins[id]
	if !ok {
		o = &Origin{ID: id, LastPush: r.now().UTC()}
		r.origins[id] = o
	}
	return o
}

// Origins returns every exporter that has pushed, sorted by ID.
func (r *Receiver) Origins() []Origin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Origin, 0, len(r.origins))
	for _, o := range r.origins {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evict forgets origins whose last push is older than now minus the TTL.
// Merged series are kept. It returns the number of origins removed.
func (r *Receiver) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-r.ttl)
	removed := 0
	for id, o := range r.origins {
		if !o.LastPush.After(cutoff) {
			delete(r.origins, id)
			r.deltas.Forget(id)
			removed++
		}
	}
	return removed
}

// Run evicts idle origins until ctx is cancelled. It ticks at half the TTL,
// at least once a second.
func (r *Receiver) Run(ctx context.Context) {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := r.Evict(now); n > 0 {
				slog.Info("federation: evicted idle origins", "count", n)
			}
		}
	}
}

// pushResponse is the 200 body of POST /metrics/push.
type pushResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
	Skipped  int    `json:"skipped"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles POST /metrics/push. Authentication is enforced by the
// middleware wrapping this handler.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	origin := originOf(req)
	var body io.Reader = http.MaxBytesReader(w, req.Body, maxPushBytes)
	if strings.EqualFold(req.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(body)
		if err != nil {
			slog.Error("federation: bad gzip body", "origin", origin, "err", err)
			jsonErr(w, http.StatusInternalServerError, "invalid gzip body")
			return
		}
		defer zr.Close()
		body = zr
	}

	res, err := r.Merge(origin, body)
	if err != nil {
		slog.Error("federation: push rejected", "origin", origin, "err", err)
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("federation: push merged",
		"origin", origin,
		"accepted", res.Accepted,
		"skipped", res.Skipped+res.Malformed,
	)
	jsonResp(w, http.StatusOK, pushResponse{
		Status:   "success",
		Accepted: res.Accepted,
		Skipped:  res.Skipped + res.Malformed,
	})
}

// originOf names the pushing exporter: the origin header, else the remote host.
func originOf(req *http.Request) string {
	if id := strings.TrimSpace(req.Header.Get(OriginHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
