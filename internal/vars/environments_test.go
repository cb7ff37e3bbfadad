package vars

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadEnvironmentsDotEnv(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "staging.env", "base_url=https://api.staging.test\napi_key=k1\nderived=${base_url}/v1\nliteral='${base_url}'\n")
	envs, err := LoadEnvironments(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values := EnvValues(envs, "staging")
	if values == nil {
		t.Fatalf("expected staging environment, got %v", envs)
	}
	if values["base_url"] != "https://api.staging.test" {
		t.Fatalf("unexpected base_url %q", values["base_url"])
	}
	if values["derived"] != "https://api.staging.test/v1" {
		t.Fatalf("expected interpolation, got %q", values["derived"])
	}
	if values["literal"] != "${base_url}" {
		t.Fatalf("expected single quotes to stay literal, got %q", values["literal"])
	}
}

func TestLoadEnvironmentsDotEnvDeclaredName(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "anything.env", "environment=production\nbase_url=https://api.test\n")
	envs, err := LoadEnvironments(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if EnvValues(envs, "production") == nil {
		t.Fatalf("expected declared name to win, got %v", envs)
	}
}

func TestLoadEnvironmentsJSONNamed(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "envs.json", `{
  "staging": {"base_url": "https://staging.test", "retries": 3},
  "production": {"base_url": "https://prod.test", "secure": true}
}`)
	envs, err := LoadEnvironments(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 environments, got %v", envs)
	}
	staging := EnvValues(envs, "staging")
	if staging["retries"] != "3" {
		t.Fatalf("expected numeric value stringified, got %q", staging["retries"])
	}
	if EnvValues(envs, "production")["secure"] != "true" {
		t.Fatalf("expected bool value stringified")
	}
}

func TestLoadEnvironmentsJSONFlat(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "flat.json", `{"base_url": "https://api.test", "api_key": "k9"}`)
	envs, err := LoadEnvironments(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values := EnvValues(envs, "default")
	if values == nil || values["api_key"] != "k9" {
		t.Fatalf("expected flat file under default, got %v", envs)
	}
}

func TestSelectEnv(t *testing.T) {
	t.Parallel()

	envs := EnvironmentSet{
		"Staging":    {"a": "1"},
		"production": {"a": "2"},
	}
	if got := SelectEnv(envs, "staging", ""); got != "Staging" {
		t.Fatalf("expected case-insensitive override, got %q", got)
	}
	if got := SelectEnv(envs, "", "production"); got != "production" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := SelectEnv(envs, "missing", "alsomissing"); got != "" {
		t.Fatalf("expected empty selection, got %q", got)
	}

	single := EnvironmentSet{"only": {"a": "1"}}
	if got := SelectEnv(single, "", ""); got != "only" {
		t.Fatalf("expected single environment default, got %q", got)
	}
}
