package courier

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/auth"
	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/outcome"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/store"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
	"github.com/chetanft/courier-integration-sub002/internal/vars"
)

func TestRunSuccessJournals(t *testing.T) {
	svc, stub, journal := newTestService(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := svc.Run(ctx, &reqspec.Descriptor{
		URL:       "https://api.example.com/shipments?api_key=sk-live-9",
		Method:    "get",
		Intent:    reqspec.IntentFetchData,
		CourierID: "courier-7",
	})
	if out.Kind != outcome.KindSuccess {
		t.Fatalf("kind = %s, want %s (message %q)", out.Kind, outcome.KindSuccess, out.Message)
	}
	if out.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", out.Status)
	}
	if got := stub.callCount(); got != 1 {
		t.Fatalf("transport calls = %d, want 1", got)
	}

	recs := journal.records()
	if len(recs) != 1 {
		t.Fatalf("journal records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID == "" {
		t.Error("journal record has no id")
	}
	if rec.Method != http.MethodGet {
		t.Errorf("journal method = %q, want GET", rec.Method)
	}
	if strings.Contains(rec.URL, "sk-live-9") {
		t.Errorf("journal URL kept a secret: %s", rec.URL)
	}
	if rec.CourierID != "courier-7" {
		t.Errorf("journal courier = %q", rec.CourierID)
	}
	if rec.Kind != string(outcome.KindSuccess) {
		t.Errorf("journal kind = %q", rec.Kind)
	}
	if rec.Intent != string(reqspec.IntentFetchData) {
		t.Errorf("journal intent = %q", rec.Intent)
	}
	if rec.Via != "direct" {
		t.Errorf("journal via = %q", rec.Via)
	}
	if rec.At.IsZero() {
		t.Error("journal timestamp is zero")
	}
}

func TestRunValidationStaysTotal(t *testing.T) {
	svc, stub, journal := newTestService(nil)

	out := svc.Run(context.Background(), &reqspec.Descriptor{URL: "   "})
	if out.Kind != outcome.KindClientError {
		t.Fatalf("kind = %s, want %s", out.Kind, outcome.KindClientError)
	}
	if out.Code != string(errdef.CodeValidation) {
		t.Fatalf("code = %q, want validation", out.Code)
	}
	if got := stub.callCount(); got != 0 {
		t.Fatalf("transport calls = %d, want 0", got)
	}
	recs := journal.records()
	if len(recs) != 1 || recs[0].Kind != string(outcome.KindClientError) {
		t.Fatalf("journal = %+v, want one client_error record", recs)
	}
}

func TestRunNilDescriptor(t *testing.T) {
	svc, _, _ := newTestService(nil)

	out := svc.Run(context.Background(), nil)
	if out.Kind != outcome.KindClientError {
		t.Fatalf("kind = %s, want %s", out.Kind, outcome.KindClientError)
	}
}

func TestRunMissingCredentialsBecomesAuthError(t *testing.T) {
	svc, stub, journal := newTestService(nil)

	out := svc.Run(context.Background(), &reqspec.Descriptor{
		URL:       "https://api.example.com/track",
		CourierID: "courier-7",
		UseStored: true,
	})
	if out.Kind != outcome.KindAuthError {
		t.Fatalf("kind = %s, want %s", out.Kind, outcome.KindAuthError)
	}
	if out.Code != string(errdef.CodeCredentials) {
		t.Fatalf("code = %q, want credentials", out.Code)
	}
	if got := stub.callCount(); got != 0 {
		t.Fatalf("transport calls = %d, want 0", got)
	}
	if recs := journal.records(); len(recs) != 1 || recs[0].Kind != string(outcome.KindAuthError) {
		t.Fatalf("journal = %+v, want one auth_error record", recs)
	}
}

func TestRunPrivateHostShortCircuits(t *testing.T) {
	svc, stub, _ := newTestService(nil)

	out := svc.Run(context.Background(), &reqspec.Descriptor{URL: "http://192.168.1.10/status"})
	if out.Kind != outcome.KindNetworkError {
		t.Fatalf("kind = %s, want %s", out.Kind, outcome.KindNetworkError)
	}
	if out.Code != "private_address" {
		t.Fatalf("code = %q, want private_address", out.Code)
	}
	if got := stub.callCount(); got != 0 {
		t.Fatalf("transport calls = %d, want 0", got)
	}
}

func TestRunExpandsPlaceholders(t *testing.T) {
	var gotURL string
	svc, _, _ := newTestService(func(d *reqspec.Descriptor) (*transport.Response, error) {
		gotURL = d.URL
		return jsonResponse(200, `{"ok":true}`), nil
	})
	svc.SetVars(vars.NewResolver(vars.NewMapProvider("test", map[string]string{
		"base": "https://api.example.com",
	})))

	out := svc.Run(context.Background(), &reqspec.Descriptor{URL: "{{base}}/v2/track"})
	if out.Kind != outcome.KindSuccess {
		t.Fatalf("kind = %s, want success", out.Kind)
	}
	if gotURL != "https://api.example.com/v2/track" {
		t.Fatalf("executed URL = %q", gotURL)
	}
}

func TestRunJournalFailureDoesNotBreakRun(t *testing.T) {
	svc, _, journal := newTestService(nil)
	journal.err = errdef.New(errdef.CodeFilesystem, "disk full")

	out := svc.Run(context.Background(), &reqspec.Descriptor{URL: "https://api.example.com/ok"})
	if out.Kind != outcome.KindSuccess {
		t.Fatalf("kind = %s, want success despite journal failure", out.Kind)
	}
}

func TestRunCurl(t *testing.T) {
	svc, stub, _ := newTestService(nil)

	out, warnings, err := svc.RunCurl(context.Background(),
		`curl --retry 3 -H 'X-Trace: 1' https://api.example.com/v1/shipments`)
	if err != nil {
		t.Fatalf("RunCurl: %v", err)
	}
	if out.Kind != outcome.KindSuccess {
		t.Fatalf("kind = %s, want success", out.Kind)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "--retry") {
		t.Fatalf("warnings = %v, want one about --retry", warnings)
	}
	if got := stub.callCount(); got != 1 {
		t.Fatalf("transport calls = %d, want 1", got)
	}
}

func TestRunCurlParseFailure(t *testing.T) {
	svc, stub, journal := newTestService(nil)

	_, _, err := svc.RunCurl(context.Background(), "wget https://api.example.com")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if errdef.CodeOf(err) != errdef.CodeParse {
		t.Fatalf("code = %s, want parse", errdef.CodeOf(err))
	}
	if got := stub.callCount(); got != 0 {
		t.Fatalf("transport calls = %d, want 0", got)
	}
	if recs := journal.records(); len(recs) != 0 {
		t.Fatalf("journal records = %d, want none for unparsed input", len(recs))
	}
}

func newTestService(fn roundTripFunc) (*Service, *stubTransport, *memJournal) {
	stub := &stubTransport{fn: fn}
	exec := transport.NewExecutor(stub)
	resolver := auth.NewResolver(nil)
	resolver.SetRequestFunc(func(ctx context.Context, d *reqspec.Descriptor) (*transport.Response, error) {
		return stub.RoundTrip(ctx, d, transport.Options{})
	})

	svc := NewService(resolver, exec)
	svc.SetBatchPause(0)
	journal := &memJournal{}
	svc.SetJournal(journal)
	return svc, stub, journal
}

func jsonResponse(status int, body string) *transport.Response {
	return &transport.Response{
		Status:     http.StatusText(status),
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
		Duration:   25 * time.Millisecond,
		Via:        "direct",
	}
}

type roundTripFunc func(d *reqspec.Descriptor) (*transport.Response, error)

type stubTransport struct {
	mu    sync.Mutex
	calls int
	fn    roundTripFunc
}

func (s *stubTransport) Name() string { return "direct" }

func (s *stubTransport) RoundTrip(_ context.Context, d *reqspec.Descriptor, _ transport.Options) (*transport.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(d)
	}
	return jsonResponse(200, `{"ok":true}`), nil
}

func (s *stubTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memJournal struct {
	mu   sync.Mutex
	recs []store.RunRecord
	err  error
}

func (m *memJournal) AppendRun(_ context.Context, rec store.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memJournal) records() []store.RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.RunRecord(nil), m.recs...)
}
