package extract

import (
	"bytes"
	"encoding/json"
	"testing"
)

func decodePayload(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return v
}

func TestLookupNested(t *testing.T) {
	payload := decodePayload(t, `{"meta":{"pagination":{"next":"tok2"}}}`)
	value, ok := Lookup(payload, "meta.pagination.next")
	if !ok || value != "tok2" {
		t.Fatalf("expected tok2, got %v (%v)", value, ok)
	}
	if _, ok := Lookup(payload, "meta.missing"); ok {
		t.Fatalf("expected miss for absent path")
	}
}

func TestFirstArrayRuleOrder(t *testing.T) {
	payload := decodePayload(t, `{"results":[1,2],"data":{"items":[3]}}`)
	items, path, ok := FirstArray(payload, nil)
	if !ok {
		t.Fatalf("expected an array")
	}
	if path != "data.items" {
		t.Fatalf("expected data.items to win over results, got %q", path)
	}
	if len(items) != 1 {
		t.Fatalf("unexpected items %v", items)
	}
}

func TestFirstArrayTopLevel(t *testing.T) {
	payload := decodePayload(t, `[{"id":1},{"id":2}]`)
	items, path, ok := FirstArray(payload, nil)
	if !ok || path != "" || len(items) != 2 {
		t.Fatalf("expected top-level array, got %v %q %v", items, path, ok)
	}
}

func TestFirstArraySkipsNonArray(t *testing.T) {
	payload := decodePayload(t, `{"data":"scalar","couriers":[{"id":"c1"}]}`)
	items, path, ok := FirstArray(payload, nil)
	if !ok || path != "couriers" {
		t.Fatalf("expected couriers path, got %q %v", path, ok)
	}
	if len(items) != 1 {
		t.Fatalf("unexpected items %v", items)
	}
}

func TestReplacePath(t *testing.T) {
	payload := decodePayload(t, `{"data":{"items":[1,2,3]},"total":3}`)
	if !ReplacePath(payload, "data.items", []any{"x"}) {
		t.Fatalf("expected replacement to succeed")
	}
	value, _ := Lookup(payload, "data.items")
	items, ok := value.([]any)
	if !ok || len(items) != 1 || items[0] != "x" {
		t.Fatalf("unexpected replaced value %v", value)
	}
	if ReplacePath(payload, "data.absent", nil) {
		t.Fatalf("expected miss for absent key")
	}
}

func TestTruncateArray(t *testing.T) {
	items := make([]any, 250)
	for i := range items {
		items[i] = i
	}
	payload := map[string]any{"records": items}
	sample := Truncate(payload, nil, 100)
	truncated, ok := sample.([]any)
	if !ok {
		t.Fatalf("expected array sample, got %T", sample)
	}
	if len(truncated) != 100 {
		t.Fatalf("expected 100 items, got %d", len(truncated))
	}
}

func TestTruncateKeySummary(t *testing.T) {
	payload := decodePayload(t, `{"name":"acme","count":2,"nested":{"a":1},"ok":true}`)
	sample := Truncate(payload, nil, 100)
	summary, ok := sample.(map[string]string)
	if !ok {
		t.Fatalf("expected key summary, got %T", sample)
	}
	if summary["name"] != "string" || summary["count"] != "number" || summary["ok"] != "bool" {
		t.Fatalf("unexpected summary %v", summary)
	}
	if summary["nested"] != "object(a)" {
		t.Fatalf("unexpected nested kind %q", summary["nested"])
	}
}

func TestParseRulesWrapper(t *testing.T) {
	rules, err := ParseRules([]byte("rules:\n  - data.items\n  - path: results\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 2 || rules[0].Path != "data.items" || rules[1].Path != "results" {
		t.Fatalf("unexpected rules %v", rules)
	}
}

func TestParseRulesBareList(t *testing.T) {
	rules, err := ParseRules([]byte("- couriers\n- shipments\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 2 || rules[0].Path != "couriers" {
		t.Fatalf("unexpected rules %v", rules)
	}
}

func TestRulesFromPaths(t *testing.T) {
	rules := RulesFromPaths(" data.items ", "", "results")
	if len(rules) != 2 || rules[0].Path != "data.items" || rules[1].Path != "results" {
		t.Fatalf("unexpected rules %v", rules)
	}
}

func TestParseRulesEmptyDefaults(t *testing.T) {
	rules, err := ParseRules(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != len(DefaultRules()) {
		t.Fatalf("expected defaults, got %v", rules)
	}
}
