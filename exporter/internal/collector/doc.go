// Package collector turns fishnet status documents into metric series.
//
// CollectOnce fetches every configured server concurrently (bounded by
// exporter.max_concurrency) and writes the results into a metricset.Set:
// up{instance} is 1 on success and 0 on any fetch failure, and a failed
// server never prevents the others from being collected.
//
// jobs.completed and jobs.rejected are counters. In cumulative mode the
// upstream values are running totals and only their forward difference is
// added; in incremental mode each reported value is added as-is.
package collector
