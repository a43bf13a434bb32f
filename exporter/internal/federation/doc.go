// Package federation moves metric sets from client exporters to one central
// exporter.
//
// A client runs a Pusher as a scheduler hook: after every collection round it
// renders its metric set as Prometheus text and POSTs it to the central
// instance's /metrics/push endpoint. Push failures are logged and dropped;
// the next round sends fresh data.
//
// The central instance mounts a Receiver on /metrics/push. Bodies are parsed
// one line at a time so a malformed line only loses itself. Each sample is
// merged according to the kind the local catalogue assigns to its name:
//
//   - gauges are overwritten (last write wins);
//   - counters advance by the forward difference against the last value the
//     same origin pushed for that series, so repeated cumulative pushes are
//     not double counted and a client restart never decreases a counter.
//
// Unknown metric names and label sets that do not match the catalogue are
// skipped. The origin of a push is the X-Fishnet-Exporter header, or the
// remote host when the header is absent. Receiver.Run forgets origins that
// have been silent for longer than DefaultOriginTTL.
package federation
