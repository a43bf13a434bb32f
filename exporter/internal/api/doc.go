// Package api assembles the exporter's HTTP surface on a chi router.
//
// New(set, opts) returns an http.Handler that serves:
//
//	GET  /metrics           Prometheus text exposition of the metric set
//	POST /metrics/push      federation push (central mode; bearer auth)
//	GET  /api/v1/health     up/down counts derived from the up gauges
//	GET  /api/v1/snapshot   every series as JSON, plus generated_at
//	GET  /ws/stream         live snapshot stream (when a stream handler is set)
//
// /metrics always answers 200 and is rendered on demand from the set; nothing
// is cached. Unknown paths get a 404 JSON error and wrong methods a 405.
package api
