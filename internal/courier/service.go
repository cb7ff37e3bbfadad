// Package courier glues the request pipeline together. A descriptor is
// normalized, its placeholders expanded, credentials resolved, the request
// executed through the transport chain, and the result classified into an
// Outcome. Transport and HTTP failures never surface as errors from this
// package; every run yields an Outcome and a journal entry.
package courier

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chetanft/courier-integration-sub002/internal/auth"
	"github.com/chetanft/courier-integration-sub002/internal/curl"
	"github.com/chetanft/courier-integration-sub002/internal/outcome"
	"github.com/chetanft/courier-integration-sub002/internal/redact"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/store"
	"github.com/chetanft/courier-integration-sub002/internal/telemetry"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
	"github.com/chetanft/courier-integration-sub002/internal/vars"
)

const (
	// DefaultBatchSize bounds how many targets one batch wave runs at once.
	DefaultBatchSize = 5
	// DefaultBatchPause separates consecutive waves so courier hosts see a
	// steady trickle rather than one burst per batch.
	DefaultBatchPause = time.Second
)

// Journal records finished runs. *store.Store satisfies it.
type Journal interface {
	AppendRun(ctx context.Context, rec store.RunRecord) error
}

// Service is the pipeline facade used by the CLI and the relay surface.
type Service struct {
	resolver *auth.Resolver
	exec     *transport.Executor
	vars     *vars.Resolver
	journal  Journal
	log      *slog.Logger
	instr    telemetry.Instrumenter

	batchSize  int
	batchPause time.Duration
}

// NewService builds a Service around a credential resolver and an executor.
// Both are required; everything else is optional and off by default.
func NewService(resolver *auth.Resolver, exec *transport.Executor) *Service {
	return &Service{
		resolver:   resolver,
		exec:       exec,
		log:        slog.New(slog.DiscardHandler),
		instr:      telemetry.Noop(),
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
	}
}

// SetVars configures the placeholder resolver applied before auth.
func (s *Service) SetVars(r *vars.Resolver) {
	s.vars = r
}

// SetJournal configures the run journal. Passing nil disables journaling.
func (s *Service) SetJournal(j Journal) {
	s.journal = j
}

func (s *Service) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s.log = logger
}

func (s *Service) SetInstrumenter(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	s.instr = instr
}

// SetBatchSize overrides the per-wave concurrency for FetchBatch.
func (s *Service) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// SetBatchPause overrides the pause between FetchBatch waves. Zero removes
// the pause.
func (s *Service) SetBatchPause(d time.Duration) {
	if d >= 0 {
		s.batchPause = d
	}
}

// Run executes one descriptor end to end and always produces an Outcome.
// Input-stage failures (bad URL, unknown courier, missing credentials)
// classify like any other failure instead of being raised, so callers
// render a single shape no matter where the pipeline stopped.
func (s *Service) Run(ctx context.Context, d *reqspec.Descriptor) outcome.Outcome {
	start := time.Now()

	normalized, err := reqspec.Normalize(d)
	if err != nil {
		return s.finish(ctx, d, outcome.Classify(nil, err, d), start)
	}

	expanded, err := vars.ExpandDescriptor(s.vars, normalized)
	if err != nil {
		s.log.Warn("placeholder expansion incomplete",
			"url", redact.URL(normalized.URL),
			"error", err,
		)
	}

	resolved, err := s.resolver.Resolve(ctx, expanded)
	if err != nil {
		return s.finish(ctx, expanded, outcome.Classify(nil, err, expanded), start)
	}

	ctx, span := s.instr.Start(ctx, telemetry.RequestStart{Descriptor: resolved})
	result, execErr := s.exec.Execute(ctx, resolved)
	out := outcome.Classify(result, execErr, resolved)
	span.End(telemetry.RequestResult{
		Err:        execErr,
		StatusCode: out.Status,
		Outcome:    string(out.Kind),
	})

	return s.finish(ctx, resolved, out, start)
}

// RunCurl parses a pasted curl command and runs the resulting descriptor.
// Parse warnings (ignored flags) pass through so the console can show them
// beside the outcome. A parse failure is the one case that returns an
// error: there is no descriptor to classify.
func (s *Service) RunCurl(ctx context.Context, text string) (outcome.Outcome, []string, error) {
	d, warnings, err := curl.Parse(text)
	if err != nil {
		return outcome.Outcome{}, warnings, err
	}
	return s.Run(ctx, d), warnings, nil
}

func (s *Service) finish(ctx context.Context, d *reqspec.Descriptor, out outcome.Outcome, start time.Time) outcome.Outcome {
	if out.DurationMS == 0 {
		out.DurationMS = time.Since(start).Milliseconds()
	}
	s.logRun(d, out)
	// A canceled run still deserves a journal row.
	s.journalRun(context.WithoutCancel(ctx), d, out)
	return out
}

func (s *Service) logRun(d *reqspec.Descriptor, out outcome.Outcome) {
	attrs := []any{
		"kind", string(out.Kind),
		"status", out.Status,
		"via", out.Via,
		"durationMs", out.DurationMS,
	}
	if d != nil {
		attrs = append(attrs, "method", d.Method, "url", redact.URL(d.URL))
		if d.CourierID != "" {
			attrs = append(attrs, "courier", d.CourierID)
		}
	}
	s.log.Info("run finished", attrs...)
}

func (s *Service) journalRun(ctx context.Context, d *reqspec.Descriptor, out outcome.Outcome) {
	if s.journal == nil {
		return
	}
	rec := store.RunRecord{
		ID:         uuid.NewString(),
		At:         time.Now().UTC(),
		Kind:       string(out.Kind),
		Status:     out.Status,
		Via:        out.Via,
		DurationMS: out.DurationMS,
		Message:    out.Message,
	}
	if d != nil {
		rec.CourierID = d.CourierID
		rec.Method = d.Method
		rec.URL = redact.URL(d.URL)
		rec.Intent = string(d.Intent)
	}
	if out.Request != nil {
		rec.Method = out.Request.Method
		rec.URL = out.Request.URL
		if out.Request.Intent != "" {
			rec.Intent = string(out.Request.Intent)
		}
	}
	if err := s.journal.AppendRun(ctx, rec); err != nil {
		s.log.Warn("run journal append failed", "error", err)
	}
}
