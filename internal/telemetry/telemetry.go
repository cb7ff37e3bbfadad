package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/chetanft/courier-integration-sub002/internal/redact"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

var httpHostKey = attribute.Key("http.host")

type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	Shutdown(ctx context.Context) error
}

type RequestStart struct {
	Descriptor  *reqspec.Descriptor
	HTTPRequest *http.Request
	Transport   string
}

type RequestResult struct {
	Err        error
	StatusCode int
	Outcome    string
}

type RequestSpan interface {
	End(result RequestResult)
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

func (m *manager) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	if info.HTTPRequest == nil && info.Descriptor == nil {
		return ctx, noopSpan{}
	}

	attrs := buildSpanAttributes(info)
	spanName := spanNameFor(info)
	ctx, span := m.tracer.Start(
		ctx,
		spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &requestSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type requestSpan struct {
	span trace.Span
}

func (rs *requestSpan) End(result RequestResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
	}
	if result.Outcome != "" {
		rs.span.SetAttributes(attribute.String("courier.outcome", result.Outcome))
	}

	statusCode := codes.Unset
	statusMsg := ""

	if result.Err != nil {
		rs.span.RecordError(result.Err)
		statusCode = codes.Error
		statusMsg = result.Err.Error()
	}

	if result.Err == nil && result.StatusCode >= 400 {
		statusCode = codes.Error
		statusMsg = fmt.Sprintf("HTTP %d", result.StatusCode)
	}

	if statusCode == codes.Unset {
		statusCode = codes.Ok
		statusMsg = "OK"
	}

	rs.span.SetStatus(statusCode, statusMsg)
	rs.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) End(RequestResult) {}

func buildSpanAttributes(info RequestStart) []attribute.KeyValue {
	var attrs []attribute.KeyValue

	if info.Transport != "" {
		attrs = append(attrs, attribute.String("courier.transport", info.Transport))
	}

	req := info.HTTPRequest
	if req != nil {
		if req.Method != "" {
			attrs = append(attrs, semconv.HTTPMethodKey.String(req.Method))
		}
		if req.URL != nil {
			if scheme := req.URL.Scheme; scheme != "" {
				attrs = append(attrs, semconv.HTTPSchemeKey.String(scheme))
			}
			if host := req.URL.Host; host != "" {
				attrs = append(attrs, httpHostKey.String(host))
			}
			// Resolved auth can land in the query string; spans carry
			// the redacted form.
			if target := req.URL.RequestURI(); target != "" {
				attrs = append(attrs, semconv.HTTPTargetKey.String(redact.URL(target)))
			}
			if full := req.URL.String(); full != "" {
				attrs = append(attrs, semconv.HTTPURLKey.String(redact.URL(full)))
			}
		}
	}

	if d := info.Descriptor; d != nil {
		if req == nil && d.Method != "" {
			attrs = append(attrs, semconv.HTTPMethodKey.String(d.Method))
		}
		if intent := strings.TrimSpace(string(d.Intent)); intent != "" {
			attrs = append(attrs, attribute.String("courier.intent", intent))
		}
		if id := strings.TrimSpace(d.CourierID); id != "" {
			attrs = append(attrs, attribute.String("courier.id", id))
		}
	}

	return attrs
}

func spanNameFor(info RequestStart) string {
	if info.HTTPRequest != nil && info.HTTPRequest.Method != "" {
		if info.HTTPRequest.URL != nil && info.HTTPRequest.URL.Host != "" {
			return fmt.Sprintf("%s %s", info.HTTPRequest.Method, info.HTTPRequest.URL.Host)
		}
		return info.HTTPRequest.Method
	}
	if d := info.Descriptor; d != nil && d.Method != "" {
		if host := d.Host(); host != "" {
			return fmt.Sprintf("%s %s", d.Method, host)
		}
		return d.Method
	}
	return "http.request"
}
