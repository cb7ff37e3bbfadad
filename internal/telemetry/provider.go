package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var tracerName = "github.com/chetanft/courier-integration-sub002/internal/telemetry"

// Option overrides parts of the span pipeline, mostly so tests can capture
// spans without a collector.
type Option func(*pipeline)

type pipeline struct {
	exporter   sdktrace.SpanExporter
	processors []sdktrace.SpanProcessor
}

func (p pipeline) empty() bool {
	return p.exporter == nil && len(p.processors) == 0
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(p *pipeline) {
		if exp != nil {
			p.exporter = exp
		}
	}
}

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(p *pipeline) {
		if proc != nil {
			p.processors = append(p.processors, proc)
		}
	}
}

// New builds the OTLP-backed instrumenter. Without an endpoint or any
// pipeline override it degrades to the no-op implementation.
func New(cfg Config, opts ...Option) (Instrumenter, error) {
	var pipe pipeline
	for _, opt := range opts {
		opt(&pipe)
	}
	if !cfg.Enabled() && pipe.empty() {
		return Noop(), nil
	}

	if pipe.exporter == nil && cfg.Enabled() {
		exporter, err := newExporter(cfg)
		if err != nil {
			return nil, err
		}
		pipe.exporter = exporter
	}

	tp, err := newTracerProvider(cfg, pipe)
	if err != nil {
		return nil, err
	}
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func newTracerProvider(cfg Config, pipe pipeline) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if pipe.exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(pipe.exporter))
	}
	for _, proc := range pipe.processors {
		opts = append(opts, sdktrace.WithSpanProcessor(proc))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}
