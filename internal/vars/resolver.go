package vars

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

// Resolver answers {{name}} lookups by asking its providers in order.
type Resolver struct {
	providers []Provider
}

func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// Resolve tries every provider with the name as given. When that fails and
// the name carries a dot, a provider label may scope it, so
// "production.api_key" asks the provider labeled "production" for "api_key".
func (r *Resolver) Resolve(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	for _, provider := range r.providers {
		if value, ok := provider.Resolve(trimmed); ok {
			return value, true
		}
	}
	if strings.Contains(trimmed, ".") {
		return r.resolveScoped(trimmed)
	}
	return "", false
}

func (r *Resolver) resolveScoped(name string) (string, bool) {
	lowered := strings.ToLower(name)
	for _, provider := range r.providers {
		label := providerScope(provider)
		if label == "" || !strings.HasPrefix(lowered, label+".") {
			continue
		}
		subject := strings.TrimSpace(name[len(label)+1:])
		if subject == "" {
			continue
		}
		if value, ok := provider.Resolve(subject); ok {
			return value, true
		}
	}
	return "", false
}

// providerScope normalizes a label for prefix matching. Anything after a
// colon is display detail, not scope.
func providerScope(p Provider) string {
	label := strings.ToLower(strings.TrimSpace(p.Label()))
	if idx := strings.IndexByte(label, ':'); idx >= 0 {
		label = strings.TrimSpace(label[:idx])
	}
	return label
}

var templatePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

func (r *Resolver) ExpandTemplates(input string) (string, error) {
	return r.expandTemplates(input, true)
}

// ExpandTemplatesStatic resolves provider values only. Dynamic placeholders
// such as {{$uuid}} stay untouched so previews never burn one-shot values.
func (r *Resolver) ExpandTemplatesStatic(input string) (string, error) {
	return r.expandTemplates(input, false)
}

func (r *Resolver) expandTemplates(input string, allowDynamic bool) (string, error) {
	var firstErr error
	result := templatePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		if name == "" {
			return match
		}
		value, ok, err := r.expandOne(name, allowDynamic)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if !ok {
			return match
		}
		return value
	})
	return result, firstErr
}

// expandOne resolves a single placeholder name. Providers win over the
// built-in dynamics so an environment can pin {{$timestamp}} for replays.
func (r *Resolver) expandOne(name string, allowDynamic bool) (string, bool, error) {
	if value, ok := r.Resolve(name); ok {
		return value, true, nil
	}
	if strings.HasPrefix(name, "$") {
		if !allowDynamic {
			return "", false, nil
		}
		if value, ok := dynamicValue(name); ok {
			return value, true, nil
		}
	}
	return "", false, errdef.New(errdef.CodeValidation, "undefined variable: %s", name)
}

func dynamicValue(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "$timestamp":
		return strconv.FormatInt(time.Now().Unix(), 10), true
	case "$timestampiso8601":
		return time.Now().UTC().Format(time.RFC3339), true
	case "$randomint":
		n, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
		return n.String(), true
	case "$uuid", "$guid":
		return uuid.NewString(), true
	}
	return "", false
}
