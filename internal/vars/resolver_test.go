package vars

import (
	"strconv"
	"testing"
)

func TestExpandTemplatesStatic(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewMapProvider("const", map[string]string{
		"svc.http": "http://localhost:8080",
		"token":    "abc123",
	}))

	input := "{{svc.http}}/api?token={{token}}"
	expanded, err := resolver.ExpandTemplatesStatic(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "http://localhost:8080/api?token=abc123"
	if expanded != expected {
		t.Fatalf("expected %q, got %q", expected, expanded)
	}

	missing := "{{svc.http}}/api/{{missing}}"
	expandedMissing, err := resolver.ExpandTemplatesStatic(missing)
	if err == nil {
		t.Fatalf("expected error for missing variable")
	}
	if expandedMissing != "http://localhost:8080/api/{{missing}}" {
		t.Fatalf("unexpected expansion result %q", expandedMissing)
	}

	dynamicInput := "{{svc.http}}/{{ $timestamp }}"
	dynamicExpanded, err := resolver.ExpandTemplatesStatic(dynamicInput)
	if err != nil {
		t.Fatalf("unexpected error for static dynamic placeholder: %v", err)
	}
	if dynamicExpanded != "http://localhost:8080/{{ $timestamp }}" {
		t.Fatalf("expected dynamic placeholder untouched, got %q", dynamicExpanded)
	}
}

func TestExpandTemplatesWithProviderLabel(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewMapProvider("env", map[string]string{
		"id": "123",
	}))

	expanded, err := resolver.ExpandTemplates("{{env.id}}")
	if err != nil {
		t.Fatalf("unexpected error expanding namespaced variable: %v", err)
	}
	if expanded != "123" {
		t.Fatalf("expected value 123, got %q", expanded)
	}
}

func TestDynamicGuidAlias(t *testing.T) {
	t.Parallel()

	resolver := NewResolver()
	expanded, err := resolver.ExpandTemplates("{{ $guid }}")
	if err != nil {
		t.Fatalf("unexpected error expanding $guid: %v", err)
	}

	if expanded == "{{ $guid }}" {
		t.Fatalf("expected $guid to be expanded")
	}
	if len(expanded) != 36 {
		t.Fatalf("expected uuid-style length 36, got %d (%q)", len(expanded), expanded)
	}
}

func TestDynamicCanBeShadowedByProviders(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewMapProvider("const", map[string]string{
		"$timestamp": "shadowed",
	}))

	expanded, err := resolver.ExpandTemplates("{{ $timestamp }}")
	if err != nil {
		t.Fatalf("unexpected error expanding $timestamp: %v", err)
	}
	if expanded != "shadowed" {
		t.Fatalf("expected provider value, got %q", expanded)
	}
}

func TestDynamicHelpersCaseInsensitive(t *testing.T) {
	t.Parallel()

	resolver := NewResolver()
	values := map[string]string{
		"{{$UUID}}":             "",
		"{{$Guid}}":             "",
		"{{$TIMESTAMPISO8601}}": "",
		"{{$randomINT}}":        "",
	}

	for input := range values {
		out, err := resolver.ExpandTemplates(input)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", input, err)
		}
		if out == input {
			t.Fatalf("expected %s to expand, got %q", input, out)
		}
	}
}

func TestUndefinedDynamicErrors(t *testing.T) {
	t.Parallel()

	resolver := NewResolver()
	out, err := resolver.ExpandTemplates("{{ $bogus }}")
	if err == nil {
		t.Fatalf("expected error for unknown dynamic variable")
	}
	if out != "{{ $bogus }}" {
		t.Fatalf("unexpected expansion %q", out)
	}
}

func TestResolveScopedLabelStripsDetail(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewMapProvider("Staging: imported from file", map[string]string{
		"api_key": "k9",
	}))

	value, ok := resolver.Resolve("staging.api_key")
	if !ok {
		t.Fatalf("expected scoped lookup to resolve")
	}
	if value != "k9" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestDynamicTimestampIsUnixSeconds(t *testing.T) {
	t.Parallel()

	resolver := NewResolver()
	out, err := resolver.ExpandTemplates("{{$timestamp}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := strconv.ParseInt(out, 10, 64); err != nil {
		t.Fatalf("expected unix seconds, got %q", out)
	}
}
