package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/auth"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/federation"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"
)

// Options selects the optional parts of the HTTP surface.
type Options struct {
	// Receiver enables POST /metrics/push. Nil leaves the route unregistered.
	Receiver *federation.Receiver

	// Token guards POST /metrics/push. Nil or "" means no authentication.
	Token auth.TokenFunc

	// Stream is mounted at /ws/stream when non-nil.
	Stream http.Handler

	// UpMetric is the fully-qualified name of the per-server up gauge.
	UpMetric string

	// Mode is reported by /api/v1/health: standalone, central or client.
	Mode string
}

// Handler serves the exporter's HTTP endpoints.
type Handler struct {
	set  *metricset.Set
	opts Options
	mux  *chi.Mux
	now  func() time.Time // injectable for deterministic tests
}

// New returns the exporter's HTTP handler reading from set.
func New(set *metricset.Set, opts Options) *Handler {
	if opts.Token == nil {
		opts.Token = auth.Static("")
	}
	if opts.Mode == "" {
		opts.Mode = "standalone"
	}
	h := &Handler{set: set, opts: opts, mux: chi.NewRouter(), now: time.Now}

	r := h.mux
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, "text/plain", "application/json"))
		r.Get("/metrics", h.metrics)
		r.Get("/api/v1/health", h.health)
		r.Get("/api/v1/snapshot", h.snapshot)
	})

	if opts.Receiver != nil {
		r.With(auth.RequireBearer(opts.Token)).Post("/metrics/push", opts.Receiver.ServeHTTP)
	}
	if opts.Stream != nil {
		r.Get("/ws/stream", opts.Stream.ServeHTTP)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// metrics serves GET /metrics.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", metricset.TextContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := h.set.WriteText(w); err != nil {
		slog.Error("api: write exposition failed", "err", err)
	}
}

// health serves GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Mode:        h.opts.Mode,
		SeriesCount: h.set.Len(),
	}
	for _, s := range h.set.Snapshot() {
		if s.Name != h.opts.UpMetric {
			continue
		}
		resp.ServerCount++
		if s.Value == 1 {
			resp.UpCount++
		} else {
			resp.DownCount++
		}
	}
	resp.State = stateOf(resp.UpCount, resp.DownCount)
	if h.opts.Receiver != nil {
		resp.Origins = h.opts.Receiver.Origins()
	}
	jsonResp(w, http.StatusOK, resp)
}

// snapshot serves GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.set, h.now()))
}

// BuildSnapshot converts the current contents of set into a SnapshotResponse.
// It is also used by the WebSocket stream.
func BuildSnapshot(set *metricset.Set, now time.Time) SnapshotResponse {
	samples := set.Snapshot()
	series := make([]SeriesResponse, 0, len(samples))
	for _, s := range samples {
		labels := make(map[string]string, len(s.Labels))
		for _, l := range s.Labels {
			labels[l.Name] = l.Value
		}
		sr := SeriesResponse{Name: s.Name, Kind: s.Kind.String(), Labels: labels}
		if !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0) {
			v := s.Value
			sr.Value = &v
		}
		series = append(series, sr)
	}
	return SnapshotResponse{
		Series:      series,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

// stateOf maps up/down counts to a health state.
func stateOf(up, down int) string {
	switch {
	case up == 0 && down == 0:
		return "unknown"
	case down == 0:
		return "healthy"
	case up == 0:
		return "down"
	default:
		return "degraded"
	}
}

// requestLogger logs every request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
