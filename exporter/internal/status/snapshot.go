package status

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Snapshot is the decoded status document of one fishnet server.
type Snapshot struct {
	Nodes       *float64              `json:"nodes,omitempty"`
	Queue       map[string]float64    `json:"queue,omitempty"`
	Clients     map[string]ClientInfo `json:"clients,omitempty"`
	Performance *Performance          `json:"performance,omitempty"`
	Jobs        *Jobs                 `json:"jobs,omitempty"`
}

// ClientInfo describes one worker client connected to the server.
type ClientInfo struct {
	Version string     `json:"version,omitempty"`
	Engine  string     `json:"engine,omitempty"`
	Cores   FlexString `json:"cores,omitempty"`
	Memory  FlexString `json:"memory,omitempty"`
}

// Performance holds throughput figures.
type Performance struct {
	AnalysesPerSecond *float64 `json:"analyses_per_second,omitempty"`

	// MoveTime maps search depth to average milliseconds per move.
	MoveTime map[string]float64 `json:"move_time,omitempty"`
}

// Jobs holds per job type counts.
type Jobs struct {
	Completed map[string]float64 `json:"completed,omitempty"`
	Rejected  map[string]float64 `json:"rejected,omitempty"`
}

// NodeCount returns the number of nodes, 0 when absent.
func (s *Snapshot) NodeCount() float64 {
	if s.Nodes == nil {
		return 0
	}
	return *s.Nodes
}

// AnalysesPerSecond returns the analysis rate, 0 when absent.
func (s *Snapshot) AnalysesPerSecond() float64 {
	if s.Performance == nil || s.Performance.AnalysesPerSecond == nil {
		return 0
	}
	return *s.Performance.AnalysesPerSecond
}

// MoveTime returns the depth to milliseconds map, nil when absent.
func (s *Snapshot) MoveTime() map[string]float64 {
	if s.Performance == nil {
		return nil
	}
	return s.Performance.MoveTime
}

// Completed returns completed job counts, nil when absent.
func (s *Snapshot) Completed() map[string]float64 {
	if s.Jobs == nil {
		return nil
	}
	return s.Jobs.Completed
}

// Rejected returns rejected job counts, nil when absent.
func (s *Snapshot) Rejected() map[string]float64 {
	if s.Jobs == nil {
		return nil
	}
	return s.Jobs.Rejected
}

// FlexString decodes from either a JSON string or a JSON number.
// Servers report cores and memory both ways.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("status: want string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

// SortedKeys returns the keys of m in lexical order, numeric keys ordered by
// value when every key is a number (depths "8", "12", "20").
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	numeric := true
	for k := range m {
		keys = append(keys, k)
		if _, err := strconv.ParseFloat(k, 64); err != nil {
			numeric = false
		}
	}
	if numeric {
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.ParseFloat(keys[i], 64)
			b, _ := strconv.ParseFloat(keys[j], 64)
			return a < b
		})
		return keys
	}
	sort.Strings(keys)
	return keys
}
