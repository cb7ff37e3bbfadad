package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/config"
)

func TestApplyGlobalsOverrides(t *testing.T) {
	g := &Globals{
		RelayPrimary: "https://relay.example/relay",
		Timeout:      12,
		Store:        "/tmp/courier-test.db",
		LogLevel:     "debug",
	}
	got := applyGlobals(config.DefaultSettings(), g)
	if got.Relays.Primary.URL != "https://relay.example/relay" {
		t.Fatalf("primary relay = %q", got.Relays.Primary.URL)
	}
	if got.Limits.TimeoutSeconds != 12 {
		t.Fatalf("timeout = %v", got.Limits.TimeoutSeconds)
	}
	if got.Store.Path != "/tmp/courier-test.db" {
		t.Fatalf("store = %q", got.Store.Path)
	}
	if got.Log.Level != config.LogLevelDebug {
		t.Fatalf("log level = %q", got.Log.Level)
	}
}

func TestApplyGlobalsClampsTimeout(t *testing.T) {
	got := applyGlobals(config.DefaultSettings(), &Globals{Timeout: 100000})
	if got.Limits.TimeoutSeconds != config.LimitTimeoutMax {
		t.Fatalf("timeout = %v, want clamped to %v", got.Limits.TimeoutSeconds, config.LimitTimeoutMax)
	}
}

func TestApplyGlobalsKeepsSettingsWhenUnset(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Relays.Primary.URL = "https://relay.configured/relay"
	got := applyGlobals(settings, &Globals{})
	if got.Relays.Primary.URL != "https://relay.configured/relay" {
		t.Fatalf("primary relay = %q", got.Relays.Primary.URL)
	}
	if got.Limits.TimeoutSeconds != config.LimitTimeoutDefault {
		t.Fatalf("timeout = %v", got.Limits.TimeoutSeconds)
	}
}

func TestHeaderPairsSorted(t *testing.T) {
	pairs := headerPairs(map[string]string{
		"X-Relay-Key": "k",
		"Accept":      "application/json",
	})
	if len(pairs) != 2 {
		t.Fatalf("len = %d", len(pairs))
	}
	if pairs[0].Key != "Accept" || pairs[1].Key != "X-Relay-Key" {
		t.Fatalf("order = %q, %q", pairs[0].Key, pairs[1].Key)
	}
	if headerPairs(nil) != nil {
		t.Fatal("empty map should yield nil")
	}
}

func TestSecondsDuration(t *testing.T) {
	if got := secondsDuration(1.5); got != 1500*time.Millisecond {
		t.Fatalf("1.5s = %v", got)
	}
	if got := secondsDuration(0); got != 0 {
		t.Fatalf("0s = %v", got)
	}
	if got := secondsDuration(-3); got != 0 {
		t.Fatalf("-3s = %v", got)
	}
}

func TestBuildVarsSelectsSingleEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prod.env")
	if err := os.WriteFile(path, []byte("API_HOST=api.example.com\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := &app{globals: &Globals{EnvFile: path}}
	r, err := a.buildVars()
	if err != nil {
		t.Fatalf("buildVars: %v", err)
	}
	got, ok := r.Resolve("API_HOST")
	if !ok || got != "api.example.com" {
		t.Fatalf("API_HOST = %q (ok=%v)", got, ok)
	}
}

func TestBuildVarsAmbiguousEnvironments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envs.json")
	payload := `{"dev": {"API_HOST": "dev.example.com"}, "prod": {"API_HOST": "api.example.com"}}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := &app{globals: &Globals{EnvFile: path}}
	_, err := a.buildVars()
	if err == nil || !strings.Contains(err.Error(), "--env") {
		t.Fatalf("err = %v, want a pick-one hint", err)
	}
}

func TestBuildVarsUnknownEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prod.env")
	if err := os.WriteFile(path, []byte("API_HOST=api.example.com\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := &app{globals: &Globals{EnvFile: path, Env: "staging"}}
	_, err := a.buildVars()
	if err == nil || !strings.Contains(err.Error(), "staging") {
		t.Fatalf("err = %v, want the unknown name reported", err)
	}
}

func TestBuildVarsExplicitSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envs.json")
	payload := `{"dev": {"API_HOST": "dev.example.com"}, "prod": {"API_HOST": "api.example.com"}}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := &app{globals: &Globals{EnvFile: path, Env: "prod"}}
	r, err := a.buildVars()
	if err != nil {
		t.Fatalf("buildVars: %v", err)
	}
	got, ok := r.Resolve("API_HOST")
	if !ok || got != "api.example.com" {
		t.Fatalf("API_HOST = %q (ok=%v)", got, ok)
	}
}

func TestBuildVarsFallsBackToProcessEnv(t *testing.T) {
	t.Setenv("COURIER_TEST_ONLY_VAR", "from-process")
	a := &app{globals: &Globals{}}
	r, err := a.buildVars()
	if err != nil {
		t.Fatalf("buildVars: %v", err)
	}
	got, ok := r.Resolve("COURIER_TEST_ONLY_VAR")
	if !ok || got != "from-process" {
		t.Fatalf("resolve = %q (ok=%v)", got, ok)
	}
}
