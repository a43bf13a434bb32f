package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/config"
)

// DefaultTimeout bounds one status request end to end.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps the status document size.
const maxBodyBytes = 8 << 20

// userAgent is sent with every status request.
const userAgent = "fishnet-exporter"

// ErrUnexpectedStatus is wrapped by FetchError for any non-200 response.
var ErrUnexpectedStatus = errors.New("unexpected http status")

// FetchError reports a failed status fetch for one server.
type FetchError struct {
	Server     string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("status: fetch %q: %v", e.Server, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves status documents over HTTP.
// It is safe for concurrent use.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher whose requests time out after timeout.
// A zero timeout uses DefaultTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// NewFetcherWithClient returns a Fetcher that uses client as-is.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch retrieves and decodes the status document of srv.
func (f *Fetcher) Fetch(ctx context.Context, srv config.Server) (*Snapshot, error) {
	body, err := f.FetchRaw(ctx, srv)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &FetchError{Server: srv.Name, StatusCode: http.StatusOK, Err: fmt.Errorf("decode json: %w", err)}
	}
	return &snap, nil
}

// FetchRaw retrieves the status document of srv without decoding it.
// The body is returned only for HTTP 200.
func (f *Fetcher) FetchRaw(ctx context.Context, srv config.Server) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		return nil, &FetchError{Server: srv.Name, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if key := srv.BearerKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Server: srv.Name, Err: fmt.Errorf("http get: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &FetchError{
			Server:     srv.Name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{Server: srv.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxBodyBytes {
		return nil, &FetchError{Server: srv.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("body exceeds %d bytes", maxBodyBytes)}
	}
	return body, nil
}
