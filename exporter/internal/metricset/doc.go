// Package metricset is the exporter's in-process registry of typed metric
// series.
//
// A Catalogue fixes, at startup, every metric name the process knows about:
// its kind (gauge or counter), help text and ordered label names. A Set holds
// the current value of every series (name + label values) and enforces the
// catalogue on every write:
//
//   - SetGauge overwrites; last write wins.
//   - IncrementCounter adds a non-negative finite delta; negative deltas are
//     rejected with ErrNegativeDelta and NaN or infinite ones with
//     ErrNonFiniteDelta, so counters never decrease or get stuck at NaN.
//   - Writing a gauge name as a counter (or the reverse) returns
//     ErrKindMismatch; unknown names and wrong label names are rejected too.
//
// Snapshot returns a sorted copy taken under a read lock, so readers never
// observe a half-applied write. Families and WriteText render a snapshot in
// the Prometheus text exposition format.
//
// DeltaTracker turns cumulative upstream totals into counter increments by
// remembering the last raw value per origin and series.
package metricset
