package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

func TestRelayPostsDescriptorEnvelope(t *testing.T) {
	var (
		gotMethod      string
		gotContentType string
		gotRelayKey    string
		gotDescriptor  reqspec.Descriptor
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotRelayKey = r.Header.Get("X-Relay-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotDescriptor); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{
		Name:     "relay-a",
		Endpoint: srv.URL,
		Headers:  reqspec.PairList{{Key: "X-Relay-Key", Value: "rk-123"}},
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	d := &reqspec.Descriptor{
		URL:    "https://api.example.com/v1/shipments",
		Method: http.MethodPost,
		Body:   reqspec.BodySource{Text: `{"status":"open"}`, MimeType: "application/json"},
		Intent: reqspec.IntentFetchData,
	}
	resp, err := relay.RoundTrip(context.Background(), d, Options{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST to relay, got %s", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
	if gotRelayKey != "rk-123" {
		t.Fatalf("expected relay header to be sent, got %q", gotRelayKey)
	}
	if gotDescriptor.URL != d.URL {
		t.Fatalf("expected descriptor url in envelope, got %q", gotDescriptor.URL)
	}
	if gotDescriptor.Method != http.MethodPost {
		t.Fatalf("expected descriptor method in envelope, got %q", gotDescriptor.Method)
	}
	if !strings.Contains(gotDescriptor.Body.Text, "open") {
		t.Fatalf("expected descriptor body in envelope, got %q", gotDescriptor.Body.Text)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 passthrough, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if resp.Via != "relay-a" {
		t.Fatalf("expected via relay-a, got %q", resp.Via)
	}
}

func TestRelayDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":true,"status":404,"statusText":"Not Found","message":"no shipment 9","details":{"courier":"atlas"}}`))
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	resp, err := relay.RoundTrip(context.Background(), fetchDescriptor(), Options{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected upstream status from envelope, got %d", resp.StatusCode)
	}
	if resp.Status != "404 Not Found" {
		t.Fatalf("unexpected status line %q", resp.Status)
	}
	if !strings.Contains(string(resp.Body), "no shipment 9") {
		t.Fatalf("expected message to survive, got %s", resp.Body)
	}
	if !strings.Contains(string(resp.Body), "atlas") {
		t.Fatalf("expected details to survive, got %s", resp.Body)
	}
}

func TestRelayEnvelopeDefaultStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":true,"message":"upstream unreachable"}`))
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	resp, err := relay.RoundTrip(context.Background(), fetchDescriptor(), Options{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 fallback for bare envelope, got %d", resp.StatusCode)
	}
}

func TestRelayIgnoresNonErrorEnvelope(t *testing.T) {
	body := `{"error":false,"data":[{"id":1}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	resp, err := relay.RoundTrip(context.Background(), fetchDescriptor(), Options{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", resp.StatusCode)
	}
	if string(resp.Body) != body {
		t.Fatalf("expected body untouched, got %s", resp.Body)
	}
}

func TestRelayHeaderKeepsForwardedBodyRaw(t *testing.T) {
	body := `{"error":true,"status":404,"message":"courier signals soft errors this way"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(RelayEnvelopeHeader, "0")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	resp, err := relay.RoundTrip(context.Background(), fetchDescriptor(), Options{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected marked body to pass through, got %d", resp.StatusCode)
	}
	if string(resp.Body) != body {
		t.Fatalf("expected body untouched, got %s", resp.Body)
	}
}

func TestRelayHeaderMarksEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(RelayEnvelopeHeader, "1")
		_, _ = w.Write([]byte(`{"error":true,"status":503,"message":"courier down"}`))
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	resp, err := relay.RoundTrip(context.Background(), fetchDescriptor(), Options{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped status from marked envelope, got %d", resp.StatusCode)
	}
}

func TestRelayInfrastructureFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "relay overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{Name: "relay-b", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	resp, err := relay.RoundTrip(context.Background(), fetchDescriptor(), Options{})
	if err == nil {
		t.Fatalf("expected relay failure to surface as error, got %+v", resp)
	}
	if errdef.CodeOf(err) != errdef.CodeTransport {
		t.Fatalf("expected transport code, got %s", errdef.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "relay-b") {
		t.Fatalf("expected relay name in error, got %v", err)
	}
}

func TestRelayHonorsDescriptorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	d := fetchDescriptor()
	d.Options.Timeout = 20 * time.Millisecond
	if _, err := relay.RoundTrip(context.Background(), d, Options{}); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestNewRelayRequiresEndpoint(t *testing.T) {
	if _, err := NewRelay(RelayConfig{Name: "relay-a"}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}
