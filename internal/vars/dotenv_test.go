package vars

import (
	"strings"
	"testing"
)

func parseDotenvString(t *testing.T, input string) (map[string]string, error) {
	t.Helper()
	p := &dotenvParser{path: "test.env", values: make(map[string]string)}
	err := p.run(strings.NewReader(input))
	return p.values, err
}

func TestDotenvParseValues(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"# leading comment",
		"; alt comment",
		"",
		"plain=value",
		"export exported=yes",
		"spaced =  padded value  ",
		`double="line1\nline2"`,
		`single='${host} kept'`,
		"trailing=value # dropped",
		"embedded=value#kept",
		"empty=",
	}, "\n")

	values, err := parseDotenvString(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		"plain":    "value",
		"exported": "yes",
		"spaced":   "padded value",
		"double":   "line1\nline2",
		"single":   "${host} kept",
		"trailing": "value",
		"embedded": "value#kept",
		"empty":    "",
	}
	for key, expect := range want {
		if got, ok := values[key]; !ok || got != expect {
			t.Fatalf("key %q: got %q (present %v), want %q", key, got, ok, expect)
		}
	}
}

func TestDotenvInterpolation(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"host=api.test",
		"url=https://${host}/v2",
		"short=$host/v1",
		"escaped=\\$host",
		"dollar=price$",
	}, "\n")

	values, err := parseDotenvString(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["url"] != "https://api.test/v2" {
		t.Fatalf("unexpected url %q", values["url"])
	}
	if values["short"] != "api.test/v1" {
		t.Fatalf("unexpected short %q", values["short"])
	}
	if values["escaped"] != "$host" {
		t.Fatalf("expected escaped dollar to stay, got %q", values["escaped"])
	}
	if values["dollar"] != "price$" {
		t.Fatalf("expected trailing dollar kept, got %q", values["dollar"])
	}
}

func TestDotenvInterpolationEnvFallback(t *testing.T) {
	t.Setenv("COURIER_TEST_REGION", "eu-1")

	values, err := parseDotenvString(t, "endpoint=${COURIER_TEST_REGION}.api.test\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["endpoint"] != "eu-1.api.test" {
		t.Fatalf("expected process env fallback, got %q", values["endpoint"])
	}
}

func TestDotenvErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"missing equals", "justakey\n", "expected KEY=value"},
		{"missing key", "=value\n", "missing key"},
		{"unterminated quote", `broken="no end` + "\n", "unterminated quoted value"},
		{"unfinished escape", `bad="trailing\` + "\n", "unfinished escape"},
		{"junk after quote", `q="done" extra` + "\n", "unexpected content after quoted value"},
		{"missing brace", "v=${open\n", "missing closing brace"},
		{"empty reference", "v=${ }\n", "empty variable name"},
		{"undefined reference", "v=${never_defined_anywhere}\n", "is not defined"},
		{"duplicate environment", "environment=a\nenvironment=b\n", "environment defined multiple times"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseDotenvString(t, tc.input)
			if err == nil {
				t.Fatalf("expected error for %q", tc.input)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDotenvNameDerivation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path     string
		declared string
		want     string
	}{
		{"/tmp/.env", "", "default"},
		{"/tmp/.env.staging", "", "staging"},
		{"/tmp/prod.env", "", "prod"},
		{"/tmp/vars.local.env", "", "vars.local"},
		{"/tmp/anything.env", "live", "live"},
		{"/tmp/.env.", "", "default"},
	}
	for _, tc := range cases {
		if got := dotenvName(tc.path, tc.declared); got != tc.want {
			t.Fatalf("dotenvName(%q, %q) = %q, want %q", tc.path, tc.declared, got, tc.want)
		}
	}
}

func TestIsDotEnvPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{".env", true},
		{"/abs/.env.staging", true},
		{"courier.env", true},
		{"environments.json", false},
		{"notes.txt", false},
	}
	for _, tc := range cases {
		if got := IsDotEnvPath(tc.path); got != tc.want {
			t.Fatalf("IsDotEnvPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
