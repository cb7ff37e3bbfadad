package vars

import (
	"os"
	"strings"
)

// Provider supplies values for {{name}} placeholders. Label doubles as a
// scope prefix, so a provider labeled "staging" also answers
// {{staging.key}}.
type Provider interface {
	Resolve(name string) (string, bool)
	Label() string
}

// MapProvider serves a fixed set of values with case-insensitive keys.
type MapProvider struct {
	values map[string]string
	label  string
}

func NewMapProvider(label string, values map[string]string) Provider {
	normalized := make(map[string]string, len(values))
	for k, v := range values {
		normalized[strings.ToLower(k)] = v
	}
	return &MapProvider{values: normalized, label: label}
}

func (p *MapProvider) Resolve(name string) (string, bool) {
	value, ok := p.values[strings.ToLower(name)]
	return value, ok
}

func (p *MapProvider) Label() string {
	return p.label
}

// EnvProvider reads the process environment, trying the name as given and
// then uppercased.
type EnvProvider struct{}

func (EnvProvider) Resolve(name string) (string, bool) {
	if value, ok := os.LookupEnv(name); ok {
		return value, true
	}
	return os.LookupEnv(strings.ToUpper(name))
}

func (EnvProvider) Label() string {
	return "env"
}
