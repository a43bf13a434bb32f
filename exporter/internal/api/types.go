package api

import "github.com/fishnet-exporter/fishnet-exporter/exporter/internal/federation"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State       string `json:"state"` // healthy | degraded | down | unknown
	Mode        string `json:"mode"`  // standalone | central | client
	ServerCount int    `json:"server_count"`
	UpCount     int    `json:"up_count"`
	DownCount   int    `json:"down_count"`
	SeriesCount int    `json:"series_count"`

	// Origins lists exporters that pushed to this instance (central mode).
	Origins []federation.Origin `json:"origins,omitempty"`
}

// SeriesResponse is one series in GET /api/v1/snapshot.
type SeriesResponse struct {
	Name   string            `json:"name"`
	Kind   string            `json:"kind"`
	Labels map[string]string `json:"labels"`

	// Value is null for NaN and infinities, which JSON cannot carry.
	Value *float64 `json:"value"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Series      []SeriesResponse `json:"series"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
