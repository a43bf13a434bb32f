package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/status"
)

const rule = "=================================================="

// render writes the human-readable report for one server. A nil snapshot
// means the fetch failed.
func render(w io.Writer, name string, snap *status.Snapshot) {
	fmt.Fprintf(w, "\n%s\nServer status: %s\n%s\n", rule, name, rule)
	if snap == nil {
		fmt.Fprintln(w, "No data available for this server")
		return
	}
	renderNodes(w, snap)
	renderQueue(w, snap)
	renderPerformance(w, snap)
	renderClients(w, snap)
	renderJobs(w, snap)
}

func renderNodes(w io.Writer, snap *status.Snapshot) {
	fmt.Fprintf(w, "\n=== Connected nodes ===\nTotal: %s nodes\n", num(snap.NodeCount()))
}

func renderQueue(w io.Writer, snap *status.Snapshot) {
	fmt.Fprintln(w, "\n=== Queues ===")
	if len(snap.Queue) == 0 {
		fmt.Fprintln(w, "No queue information available")
		return
	}
	countTable(w, "Job type", "Pending", snap.Queue)
}

func renderPerformance(w io.Writer, snap *status.Snapshot) {
	fmt.Fprintln(w, "\n=== Performance ===")
	if snap.Performance == nil {
		fmt.Fprintln(w, "No performance information available")
		return
	}
	fmt.Fprintf(w, "Analyses per second: %.2f\n", snap.AnalysesPerSecond())

	moves := snap.MoveTime()
	if len(moves) == 0 {
		return
	}
	fmt.Fprintln(w, "\nMove time by depth:")
	tw := newTable(w, "Depth", "Average time")
	for _, depth := range status.SortedKeys(moves) {
		fmt.Fprintf(tw, "%s\t%s ms\n", depth, num(moves[depth]))
	}
	tw.Flush() //nolint:errcheck
}

func renderClients(w io.Writer, snap *status.Snapshot) {
	fmt.Fprintln(w, "\n=== Connected clients ===")
	if len(snap.Clients) == 0 {
		fmt.Fprintln(w, "No clients connected")
		return
	}
	tw := newTable(w, "Client ID", "Version", "Engine", "Cores", "Memory")
	for _, id := range status.SortedKeys(snap.Clients) {
		c := snap.Clients[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(id),
			orUnknown(c.Version),
			orUnknown(c.Engine),
			orUnknown(string(c.Cores)),
			orUnknown(string(c.Memory)),
		)
	}
	tw.Flush() //nolint:errcheck
}

func renderJobs(w io.Writer, snap *status.Snapshot) {
	fmt.Fprintln(w, "\n=== Job statistics ===")
	if snap.Jobs == nil {
		fmt.Fprintln(w, "No job information available")
		return
	}
	if completed := snap.Completed(); len(completed) > 0 {
		fmt.Fprintln(w, "\nCompleted jobs:")
		countTable(w, "Type", "Count", completed)
	}
	if rejected := snap.Rejected(); len(rejected) > 0 {
		fmt.Fprintln(w, "\nRejected jobs:")
		countTable(w, "Type", "Count", rejected)
	}
}

func countTable(w io.Writer, keyHeader, valueHeader string, counts map[string]float64) {
	tw := newTable(w, keyHeader, valueHeader)
	for _, k := range status.SortedKeys(counts) {
		fmt.Fprintf(tw, "%s\t%s\n", k, num(counts[k]))
	}
	tw.Flush() //nolint:errcheck
}

// newTable returns a tabwriter with the header row and its underline written.
func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	under := make([]string, len(headers))
	for i, h := range headers {
		under[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(under, "\t"))
	return tw
}

// shortID abbreviates long client IDs to their first 8 characters.
func shortID(id string) string {
	if len(id) > 10 {
		return id[:8] + "..."
	}
	return id
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// num formats integral values without a fraction.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
