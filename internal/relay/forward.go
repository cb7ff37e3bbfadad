package relay

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
)

// HardBodyLimit is the largest courier body the relay returns. Console
// clients keep their own ceiling safely below this value, so an oversized
// answer here means the caller skipped that check.
const HardBodyLimit int64 = 6 * 1024 * 1024

const relayUserAgent = "courier-relay/1.0"

// forwardableResponseHeaders are the only courier response headers passed
// back to the caller. Content-Type travels separately with the body write.
var forwardableResponseHeaders = map[string]bool{
	"Cache-Control": true,
	"Date":          true,
	"Retry-After":   true,
	"X-Request-Id":  true,
}

// ForwardResult carries the courier's answer back to the handler. Oversized
// results have no body; the handler turns them into a 413 envelope.
type ForwardResult struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Oversized  bool
	Duration   time.Duration
}

// Forwarder re-issues descriptor calls against courier APIs with a pooled
// client.
type Forwarder struct {
	client       *http.Client
	metrics      *Metrics
	logger       *slog.Logger
	allowPrivate bool
}

func NewForwarder(cfg *Config, m *Metrics, logger *slog.Logger) *Forwarder {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          cfg.Forward.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Forwarder{
		client: &http.Client{
			Transport: tr,
			Timeout:   time.Duration(cfg.Forward.TimeoutSeconds) * time.Second,
		},
		metrics:      m,
		logger:       logger.With("component", "forwarder"),
		allowPrivate: cfg.Forward.AllowPrivate,
	}
}

// Forward builds the outbound request from the descriptor and performs it.
// Private and loopback targets are refused before any dial; the courier's
// body is read fully so oversized answers can be rejected whole.
func (f *Forwarder) Forward(ctx context.Context, d *reqspec.Descriptor) (*ForwardResult, error) {
	if !f.allowPrivate {
		if err := transport.CheckTargetURL(d.URL); err != nil {
			return nil, err
		}
	}

	req, err := transport.BuildHTTPRequest(ctx, d)
	if err != nil {
		return nil, err
	}
	stripHopByHop(req.Header)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", relayUserAgent)
	}

	f.logger.Debug("forwarding request",
		"method", req.Method,
		"host", req.URL.Hostname(),
	)

	method := NormalizeMethod(req.Method)
	start := time.Now()
	resp, err := f.client.Do(req)
	f.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	f.metrics.UpstreamResponses.WithLabelValues(method, StatusClass(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, HardBodyLimit+1))
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "read courier response")
	}

	result := &ForwardResult{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Duration:   time.Since(start),
	}
	if int64(len(body)) > HardBodyLimit {
		result.Oversized = true
		return result, nil
	}
	result.Body = body
	return result, nil
}

func stripHopByHop(header http.Header) {
	for _, h := range hopByHopHeaders {
		header.Del(h)
	}
}

func contentTypeOf(header http.Header) string {
	ct := strings.TrimSpace(header.Get("Content-Type"))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
