package federation

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/collector"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/config"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"
)

const pushTimeout = 10 * time.Second

// ErrPushRejected is returned when the central instance answers non-200.
var ErrPushRejected = errors.New("push rejected by central")

// Pusher ships the local metric set to the central exporter.
// AfterCollect is non-blocking: it renders the set and hands the payload to
// Run, keeping only the newest payload when a push is still in flight.
type Pusher struct {
	set    *metricset.Set
	cfg    *config.Provider
	origin string
	client *resty.Client
	buf    chan []byte
}

// NewPusher returns a Pusher that reads central_url, the auth token and the
// compression flag from cfg on every push. origin is sent in OriginHeader.
func NewPusher(set *metricset.Set, cfg *config.Provider, origin string) *Pusher {
	return &Pusher{
		set:    set,
		cfg:    cfg,
		origin: origin,
		client: resty.New().SetTimeout(pushTimeout),
		buf:    make(chan []byte, 1),
	}
}

// AfterCollect is a scheduler hook that queues the current metric set for
// pushing.
func (p *Pusher) AfterCollect(_ context.Context, _ collector.Report) {
	var b bytes.Buffer
	if err := p.set.WriteText(&b); err != nil {
		slog.Error("federation: render metrics failed", "err", err)
		return
	}
	payload := b.Bytes()

	select {
	case p.buf <- payload:
	default:
		// Buffer full: drop the stale payload, keep the newest.
		select {
		case <-p.buf:
			slog.Warn("federation: previous push still pending, replaced")
		default:
		}
		select {
		case p.buf <- payload:
		default:
		}
	}
}

// Run pushes queued payloads until ctx is cancelled.
func (p *Pusher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-p.buf:
			if err := p.Push(ctx, payload); err != nil {
				slog.Warn("federation: push failed", "err", err)
				continue
			}
			slog.Debug("federation: pushed", "bytes", len(payload))
		}
	}
}

// Push POSTs payload to the central instance once. There are no retries.
func (p *Pusher) Push(ctx context.Context, payload []byte) error {
	ms := p.cfg.Current().MetricsServer

	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", metricset.TextContentType).
		SetHeader(OriginHeader, p.origin)
	if token := ms.Token(); token != "" {
		req.SetAuthToken(token)
	}

	if ms.Compress {
		zipped, err := gzipBytes(payload)
		if err != nil {
			return fmt.Errorf("federation: compress: %w", err)
		}
		req.SetHeader("Content-Encoding", "gzip")
		payload = zipped
	}

	resp, err := req.SetBody(payload).Post(ms.CentralURL)
	if err != nil {
		return fmt.Errorf("federation: post %s: %w", ms.CentralURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("federation: post %s: %w: http %d: %s",
			ms.CentralURL, ErrPushRejected, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
