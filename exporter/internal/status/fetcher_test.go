package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/config"
)

const sampleDoc = `{
  "nodes": 3,
  "queue": {"analysis": 5, "move": 1},
  "clients": {
    "abc123": {"version": "2.7.1", "engine": "stockfish", "cores": 8, "memory": "16G"},
    "def456": {}
  },
  "performance": {"analyses_per_second": 12.5, "move_time": {"20": 850, "12": 120}},
  "jobs": {"completed": {"analysis": 100}, "rejected": {"analysis": 2}}
}`

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_DecodesDocument(t *testing.T) {
	ts := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleDoc))
	})

	snap, err := NewFetcher(0).Fetch(context.Background(), config.Server{Name: "main", URL: ts.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if snap.NodeCount() != 3 {
		t.Errorf("nodes: got %v, want 3", snap.NodeCount())
	}
	if snap.Queue["analysis"] != 5 {
		t.Errorf("queue[analysis]: got %v", snap.Queue["analysis"])
	}
	if c := snap.Clients["abc123"]; c.Version != "2.7.1" || c.Cores != "8" || c.Memory != "16G" {
		t.Errorf("client abc123: got %+v", c)
	}
	if snap.Clients["def456"].Version != "" {
		t.Errorf("client def456 version: got %q, want empty", snap.Clients["def456"].Version)
	}
	if snap.AnalysesPerSecond() != 12.5 {
		t.Errorf("analyses_per_second: got %v", snap.AnalysesPerSecond())
	}
	if snap.MoveTime()["20"] != 850 {
		t.Errorf("move_time[20]: got %v", snap.MoveTime()["20"])
	}
	if snap.Completed()["analysis"] != 100 || snap.Rejected()["analysis"] != 2 {
		t.Errorf("jobs: got %+v", snap.Jobs)
	}
}

func TestFetch_EmptyDocument(t *testing.T) {
	ts := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	snap, err := NewFetcher(0).Fetch(context.Background(), config.Server{Name: "main", URL: ts.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Nodes != nil {
		t.Errorf("Nodes: got %v, want nil", *snap.Nodes)
	}
	if snap.NodeCount() != 0 || snap.AnalysesPerSecond() != 0 {
		t.Errorf("defaults: nodes=%v aps=%v, want 0", snap.NodeCount(), snap.AnalysesPerSecond())
	}
	if snap.MoveTime() != nil || snap.Completed() != nil || snap.Rejected() != nil {
		t.Error("absent sections should be nil")
	}
}

func TestFetch_BearerHeader(t *testing.T) {
	auth := make(chan string, 2)
	ts := serve(t, func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	})

	f := NewFetcher(0)
	if _, err := f.Fetch(context.Background(), config.Server{Name: "a", URL: ts.URL, Key: "k1"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := <-auth; got != "Bearer k1" {
		t.Errorf("Authorization: got %q, want %q", got, "Bearer k1")
	}

	if _, err := f.Fetch(context.Background(), config.Server{Name: "a", URL: ts.URL}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := <-auth; got != "" {
		t.Errorf("Authorization without key: got %q, want none", got)
	}
}

func TestFetch_Non200(t *testing.T) {
	ts := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	_, err := NewFetcher(0).Fetch(context.Background(), config.Server{Name: "main", URL: ts.URL})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err: got %T %v, want *FetchError", err, err)
	}
	if fe.Server != "main" || fe.StatusCode != http.StatusForbidden {
		t.Errorf("FetchError: got %+v", fe)
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("errors.Is(err, ErrUnexpectedStatus) = false for %v", err)
	}
}

func TestFetch_BadJSON(t *testing.T) {
	ts := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := NewFetcher(0).Fetch(context.Background(), config.Server{Name: "main", URL: ts.URL})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err: got %v, want *FetchError", err)
	}
	if !strings.Contains(err.Error(), "decode json") {
		t.Errorf("err: got %v", err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := NewFetcher(100*time.Millisecond).Fetch(context.Background(), config.Server{Name: "slow", URL: ts.URL})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch took %v, want it bounded by the timeout", elapsed)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewFetcher(0).Fetch(context.Background(), config.Server{Name: "gone", URL: url})
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 0 {
		t.Fatalf("err: got %v, want *FetchError without status", err)
	}
}

func TestFlexString(t *testing.T) {
	var snap Snapshot
	doc := `{"clients":{"a":{"cores":4,"memory":"8G"},"b":{"cores":"16","memory":null}}}`
	if err := jsonUnmarshal(doc, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.Clients["a"].Cores != "4" || snap.Clients["a"].Memory != "8G" {
		t.Errorf("a: got %+v", snap.Clients["a"])
	}
	if snap.Clients["b"].Cores != "16" || snap.Clients["b"].Memory != "" {
		t.Errorf("b: got %+v", snap.Clients["b"])
	}
	if err := jsonUnmarshal(`{"clients":{"c":{"cores":true}}}`, &snap); err == nil {
		t.Error("expected error for boolean cores")
	}
}

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]float64{"20": 1, "8": 1, "12": 1})
	if strings.Join(got, ",") != "8,12,20" {
		t.Errorf("numeric keys: got %v", got)
	}
	got = SortedKeys(map[string]int{"move": 1, "analysis": 1})
	if strings.Join(got, ",") != "analysis,move" {
		t.Errorf("string keys: got %v", got)
	}
}

func jsonUnmarshal(doc string, v any) error {
	return json.Unmarshal([]byte(doc), v)
}
