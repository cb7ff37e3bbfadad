package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/redact"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
)

// Server wires the relay's handlers, middleware, and metrics.
type Server struct {
	cfg     *Config
	version string
	logger  *slog.Logger
	metrics *Metrics
	fwd     *Forwarder
}

func NewServer(cfg *Config, version string, logger *slog.Logger) *Server {
	m := NewMetrics()
	return &Server{
		cfg:     cfg,
		version: version,
		logger:  logger.With("component", "relay_server"),
		metrics: m,
		fwd:     NewForwarder(cfg, m, logger),
	}
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Echo assembles the server with its middleware stack and routes.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks. WriteTimeout stays
	// disabled so a slow courier near the forward deadline still gets its
	// answer written out.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(RequestLogger(s.logger))
	e.Use(MetricsMiddleware(s.metrics))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", s.cfg.Server.BodyMaxBytes)))
	e.Use(SecurityHeaders())

	if s.cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(s.cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		s.logger.Info("rate limiter enabled", "rps", s.cfg.Server.RateLimit.RequestsPerSecond)
	}

	e.POST("/relay", s.handleRelay)
	e.GET("/healthz", s.handleHealthz)
	if s.cfg.Metrics.Enabled {
		e.GET(s.cfg.Metrics.Path, echo.WrapHandler(
			promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}),
		))
	}

	return e
}

// handleRelay decodes the descriptor envelope, re-issues the call, and
// answers with the courier's raw body. Courier-side failures come back as
// 200 + error envelope so the caller can classify the wrapped status;
// relay-side failures use real 4xx/5xx statuses, which tells the caller to
// try its next transport. Every answer carries X-Relay-Envelope so a
// courier body shaped like an envelope is never mistaken for one.
func (s *Server) handleRelay(c echo.Context) error {
	req := c.Request()

	if key := s.cfg.Forward.AuthKey; key != "" {
		presented := req.Header.Get("X-Relay-Key")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			return s.envelopeJSON(c, http.StatusUnauthorized, "relay key required", nil)
		}
	}

	var d reqspec.Descriptor
	if err := json.NewDecoder(req.Body).Decode(&d); err != nil {
		return s.envelopeJSON(c, http.StatusBadRequest,
			"malformed descriptor envelope: "+sanitizeError(err), nil)
	}
	if strings.TrimSpace(d.URL) == "" {
		return s.envelopeJSON(c, http.StatusBadRequest, "descriptor url is required", nil)
	}

	result, err := s.fwd.Forward(req.Context(), &d)
	if err != nil {
		return s.mapError(c, &d, err)
	}

	if result.Oversized {
		return s.envelopeJSON(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("courier response exceeded the %d byte relay limit", HardBodyLimit), nil)
	}

	if result.StatusCode < 200 || result.StatusCode >= 300 {
		c.Response().Header().Set(transport.RelayEnvelopeHeader, "1")
		return c.JSON(http.StatusOK, ErrorEnvelope{
			Error:      true,
			Status:     result.StatusCode,
			StatusText: http.StatusText(result.StatusCode),
			Message:    fmt.Sprintf("courier api returned %s", result.Status),
			Details:    envelopeDetails(result.Body),
		})
	}

	header := c.Response().Header()
	header.Set(transport.RelayEnvelopeHeader, "0")
	for key, vals := range result.Header {
		if !forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range vals {
			header.Add(key, v)
		}
	}
	return c.Blob(result.StatusCode, contentTypeOf(result.Header), result.Body)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) mapError(c echo.Context, d *reqspec.Descriptor, err error) error {
	s.logger.Error("relay forward failed",
		"err", sanitizeError(err),
		"target", redact.URL(d.URL),
	)

	var private *transport.PrivateHostError
	if errors.As(err, &private) {
		return s.envelopeJSON(c, http.StatusBadRequest, "refusing to call a private address", nil)
	}

	if errdef.CodeOf(err) == errdef.CodeValidation {
		return s.envelopeJSON(c, http.StatusBadRequest, sanitizeError(err), nil)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return s.envelopeJSON(c, http.StatusGatewayTimeout, "courier request timed out", nil)
	}

	if errors.Is(err, context.Canceled) {
		return s.envelopeJSON(c, http.StatusBadGateway, "client disconnected", nil)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return s.envelopeJSON(c, http.StatusBadGateway, "courier host unreachable", nil)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return s.envelopeJSON(c, http.StatusBadGateway, "courier connection failed", nil)
	}

	return s.envelopeJSON(c, http.StatusBadGateway, "courier request failed", nil)
}

func (s *Server) envelopeJSON(c echo.Context, status int, message string, details json.RawMessage) error {
	c.Response().Header().Set(transport.RelayEnvelopeHeader, "1")
	return c.JSON(status, ErrorEnvelope{
		Error:      true,
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    message,
		Details:    details,
	})
}
