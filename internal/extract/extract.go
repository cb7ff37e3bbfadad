// Package extract locates item collections inside courier API payloads.
// Response shapes vary per courier, so discovery is a prioritized rule
// table of dot paths evaluated in order rather than hardcoded field checks.
package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Rule names one dot path that may hold the payload's item collection.
type Rule struct {
	Path string `yaml:"path" json:"path"`
}

// DefaultRules covers the shapes seen across courier integrations. Order
// matters: the first resolving path wins.
func DefaultRules() []Rule {
	return []Rule{
		{Path: "data"},
		{Path: "data.items"},
		{Path: "results"},
		{Path: "couriers"},
		{Path: "shipments"},
		{Path: "records"},
		{Path: "items"},
		{Path: "rows"},
	}
}

// Lookup walks a dot path through nested JSON maps.
func Lookup(payload any, path string) (any, bool) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return payload, payload != nil
	}
	current := payload
	for _, segment := range strings.Split(trimmed, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// FirstArray returns the first rule path resolving to an array, together
// with the path that matched. A payload that is itself an array matches with
// an empty path.
func FirstArray(payload any, rules []Rule) ([]any, string, bool) {
	if items, ok := payload.([]any); ok {
		return items, "", true
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for _, rule := range rules {
		value, ok := Lookup(payload, rule.Path)
		if !ok {
			continue
		}
		if items, ok := value.([]any); ok {
			return items, rule.Path, true
		}
	}
	return nil, "", false
}

// ReplacePath sets the value at a dot path, mutating the payload's maps in
// place. It reports false when any intermediate segment is missing or not a
// map, or when the path is empty.
func ReplacePath(payload any, path string, value any) bool {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return false
	}
	segments := strings.Split(trimmed, ".")
	current := payload
	for _, segment := range segments[:len(segments)-1] {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = m[segment]
		if !ok {
			return false
		}
	}
	m, ok := current.(map[string]any)
	if !ok {
		return false
	}
	last := segments[len(segments)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	m[last] = value
	return true
}

// Truncate produces a display-safe sample of an oversized payload: the first
// limit items of the first discovered array, or a key summary when no array
// is found.
func Truncate(payload any, rules []Rule, limit int) any {
	if limit <= 0 {
		limit = 100
	}
	if items, _, ok := FirstArray(payload, rules); ok {
		if len(items) > limit {
			items = items[:limit]
		}
		out := make([]any, len(items))
		copy(out, items)
		return out
	}
	return KeySummary(payload)
}

// KeySummary maps each top-level key to a short kind description so an
// operator can still see the payload's shape.
func KeySummary(payload any) map[string]string {
	m, ok := payload.(map[string]any)
	if !ok {
		return map[string]string{"value": kindOf(payload)}
	}
	summary := make(map[string]string, len(m))
	for key, value := range m {
		summary[key] = kindOf(value)
	}
	return summary
}

func kindOf(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("object(%s)", strings.Join(keys, ","))
	case []any:
		return fmt.Sprintf("array(%d)", len(t))
	default:
		return fmt.Sprintf("%T", v)
	}
}
