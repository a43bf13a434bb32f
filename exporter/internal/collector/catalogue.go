package collector

import "github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"

// Label names used across the catalogue.
const (
	LabelInstance = "instance"
	LabelJobType  = "job_type"
	LabelClientID = "client_id"
	LabelVersion  = "version"
	LabelDepth    = "depth"
)

// unknownVersion is reported for clients that do not publish a version.
const unknownVersion = "unknown"

// Names holds the fully-qualified metric names for one namespace.
type Names struct {
	Up                string
	Nodes             string
	JobsQueued        string
	JobsCompleted     string
	JobsRejected      string
	ClientVersion     string
	AnalysesPerSecond string
	MoveTime          string
}

// NamesFor returns the metric names prefixed with namespace.
func NamesFor(namespace string) Names {
	fq := func(n string) string { return metricset.FQName(namespace, n) }
	return Names{
		Up:                fq("up"),
		Nodes:             fq("nodes_total"),
		JobsQueued:        fq("jobs_queued"),
		JobsCompleted:     fq("jobs_completed_total"),
		JobsRejected:      fq("jobs_rejected_total"),
		ClientVersion:     fq("client_version"),
		AnalysesPerSecond: fq("analyses_per_second"),
		MoveTime:          fq("move_time_ms"),
	}
}

// Catalogue returns the fishnet metric catalogue for namespace.
func Catalogue(namespace string) *metricset.Catalogue {
	n := NamesFor(namespace)
	inst := []string{LabelInstance}
	instJob := []string{LabelInstance, LabelJobType}
	return metricset.MustCatalogue(
		metricset.Desc{Name: n.Up, Help: "Status of Fishnet instance", Kind: metricset.Gauge, LabelNames: inst},
		metricset.Desc{Name: n.Nodes, Help: "Number of connected nodes", Kind: metricset.Gauge, LabelNames: inst},
		metricset.Desc{Name: n.JobsQueued, Help: "Number of jobs in queue", Kind: metricset.Gauge, LabelNames: instJob},
		metricset.Desc{Name: n.JobsCompleted, Help: "Total number of completed jobs", Kind: metricset.Counter, LabelNames: instJob},
		metricset.Desc{Name: n.JobsRejected, Help: "Total number of rejected jobs", Kind: metricset.Counter, LabelNames: instJob},
		metricset.Desc{Name: n.ClientVersion, Help: "Version information for each client", Kind: metricset.Gauge,
			LabelNames: []string{LabelInstance, LabelClientID, LabelVersion}},
		metricset.Desc{Name: n.AnalysesPerSecond, Help: "Analyses per second", Kind: metricset.Gauge, LabelNames: inst},
		metricset.Desc{Name: n.MoveTime, Help: "Average time per move in milliseconds", Kind: metricset.Gauge,
			LabelNames: []string{LabelInstance, LabelDepth}},
	)
}
