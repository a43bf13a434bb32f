// Package scheduler drives the collector on a fixed interval.
//
// Run collects once immediately and then on every tick of
// exporter.scrape_interval until its context is cancelled. Only one round
// runs at a time: a round that outlasts the interval delays the next one
// instead of overlapping it. The interval is re-read from the config
// Provider after every round, so a hot-reloaded config takes effect on the
// following tick.
//
// Hooks run after each round, in order, on the scheduler goroutine. The
// federation Pusher attaches itself here in client mode.
package scheduler
