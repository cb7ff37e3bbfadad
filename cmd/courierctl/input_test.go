package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chetanft/courier-integration-sub002/internal/curl"
)

func TestReadRequestTextInlineRequotes(t *testing.T) {
	args := []string{"curl", "-H", "X-API-Key: top secret", "https://api.example.com/v1"}
	text, err := readRequestText(args, "", strings.NewReader(""))
	if err != nil {
		t.Fatalf("readRequestText: %v", err)
	}
	want := "curl -H 'X-API-Key: top secret' https://api.example.com/v1"
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
}

func TestInlineArgsSurviveTokenizing(t *testing.T) {
	args := []string{
		"curl",
		"-H", "X-API-Key: it's a secret",
		"-d", `{"ref":"ORD 1"}`,
		"https://api.example.com/v1/shipments",
	}
	text, err := readRequestText(args, "", strings.NewReader(""))
	if err != nil {
		t.Fatalf("readRequestText: %v", err)
	}
	d, _, err := curl.Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, ok := d.Headers.GetFold("X-API-Key"); !ok || got != "it's a secret" {
		t.Fatalf("header = %q (ok=%v), want the original value back", got, ok)
	}
	if d.Body.Text != `{"ref":"ORD 1"}` {
		t.Fatalf("body = %q", d.Body.Text)
	}
	if d.URL != "https://api.example.com/v1/shipments" {
		t.Fatalf("url = %q", d.URL)
	}
}

func TestReadRequestTextFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.curl")
	if err := os.WriteFile(path, []byte("curl https://api.example.com/v1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	text, err := readRequestText(nil, path, strings.NewReader(""))
	if err != nil {
		t.Fatalf("readRequestText: %v", err)
	}
	if !strings.Contains(text, "curl https://api.example.com/v1") {
		t.Fatalf("text = %q", text)
	}
}

func TestReadRequestTextStdin(t *testing.T) {
	text, err := readRequestText(nil, "-", strings.NewReader("curl https://api.example.com"))
	if err != nil {
		t.Fatalf("readRequestText: %v", err)
	}
	if text != "curl https://api.example.com" {
		t.Fatalf("text = %q", text)
	}
}

func TestReadRequestTextRejectsBothSources(t *testing.T) {
	if _, err := readRequestText([]string{"curl"}, "req.curl", strings.NewReader("")); err == nil {
		t.Fatal("expected an error for inline args combined with --file")
	}
}

func TestReadRequestTextEmpty(t *testing.T) {
	if _, err := readRequestText(nil, "", strings.NewReader("")); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestLoadDescriptorJSON(t *testing.T) {
	payload := `{
		"url": "https://api.example.com/v1/track",
		"method": "POST",
		"headers": {"Accept": "application/json"},
		"body": {"awb": "123"},
		"apiIntent": "fetch_courier_data",
		"courierId": "dhl"
	}`
	path := filepath.Join(t.TempDir(), "req.json")
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := loadDescriptorJSON(path, strings.NewReader(""))
	if err != nil {
		t.Fatalf("loadDescriptorJSON: %v", err)
	}
	if d.URL != "https://api.example.com/v1/track" || d.Method != "POST" {
		t.Fatalf("descriptor = %+v", d)
	}
	if d.CourierID != "dhl" {
		t.Fatalf("courier = %q", d.CourierID)
	}
	if got, ok := d.Headers.Get("Accept"); !ok || got != "application/json" {
		t.Fatalf("accept header = %q (ok=%v)", got, ok)
	}
}

func TestLoadDescriptorJSONMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadDescriptorJSON(path, strings.NewReader("")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadTargets(t *testing.T) {
	payload := `[
		{"courier": "dhl"},
		{"courier": "fedex", "descriptor": {"url": "https://api.fedex.example/track", "method": "GET"}}
	]`
	path := filepath.Join(t.TempDir(), "targets.json")
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := loadTargets(path, strings.NewReader(""))
	if err != nil {
		t.Fatalf("loadTargets: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Courier != "dhl" || entries[0].Descriptor != nil {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Descriptor == nil || entries[1].Descriptor.URL != "https://api.fedex.example/track" {
		t.Fatalf("second entry = %+v", entries[1])
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"two words", "'two words'"},
		{`say "hi"`, `'say "hi"'`},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Fatalf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
