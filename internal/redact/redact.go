package redact

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// Marker replaces every secret value in logs, outcomes, and journals.
const Marker = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"apikey":        {},
	"api_key":       {},
	"secret":        {},
	"client_secret": {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
}

var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"api-key":             {},
	"x-auth-token":        {},
	"cookie":              {},
	"set-cookie":          {},
}

func sensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

func sensitiveHeader(key string) bool {
	_, ok := sensitiveHeaders[strings.ToLower(key)]
	return ok
}

// SensitiveKey reports whether a JSON or query key names a credential.
func SensitiveKey(key string) bool { return sensitiveKey(key) }

// SensitiveHeader reports whether a header conventionally carries a
// credential.
func SensitiveHeader(key string) bool { return sensitiveHeader(key) }

// Value walks decoded JSON (maps, slices, scalars) and replaces the value
// of every sensitive key at any depth.
func Value(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if sensitiveKey(k) {
				out[k] = Marker
				continue
			}
			out[k] = Value(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = Value(inner)
		}
		return out
	default:
		return v
	}
}

// JSON redacts a raw JSON document. Undecodable input comes back verbatim;
// the caller is logging it as an opaque blob either way.
func JSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return raw
	}
	redacted, err := json.Marshal(Value(decoded))
	if err != nil {
		return raw
	}
	return redacted
}

func Headers(headers reqspec.PairList) reqspec.PairList {
	out := make(reqspec.PairList, len(headers))
	for i, pair := range headers {
		if sensitiveHeader(pair.Key) && pair.Value != "" {
			out[i] = reqspec.Pair{Key: pair.Key, Value: Marker}
			continue
		}
		out[i] = pair
	}
	return out
}

func Auth(a reqspec.AuthSpec) reqspec.AuthSpec {
	out := a.Clone()
	if out.Password != "" {
		out.Password = Marker
	}
	if out.Token != "" {
		out.Token = Marker
	}
	if out.Key != "" {
		out.Key = Marker
	}
	if out.Mint != nil {
		out.Mint.Headers = Headers(out.Mint.Headers)
		if out.Mint.Body != "" {
			out.Mint.Body = mintBody(out.Mint.Body)
		}
	}
	return out
}

// mintBody redacts the payload a token mint posts. JSON keeps its shape
// with sensitive values masked, urlencoded bodies are rebuilt pair by
// pair, and any other shape is replaced outright; a mint body carries
// credentials, so unreadable means secret.
func mintBody(body string) string {
	var decoded interface{}
	if err := json.Unmarshal([]byte(body), &decoded); err == nil {
		if redacted, err := json.Marshal(Value(decoded)); err == nil {
			return string(redacted)
		}
		return Marker
	}
	if masked, ok := maskFormBody(body); ok {
		return masked
	}
	return Marker
}

// maskFormBody rebuilds a urlencoded body with the values of sensitive
// keys masked, preserving pair order. Bodies that are not strictly
// key=value segments with plain form keys report false.
func maskFormBody(body string) (string, bool) {
	var b strings.Builder
	for i, segment := range strings.Split(body, "&") {
		idx := strings.IndexByte(segment, '=')
		if idx < 0 {
			return "", false
		}
		key, ok := formKey(segment[:idx])
		if !ok {
			return "", false
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(segment[:idx])
		b.WriteByte('=')
		value := segment[idx+1:]
		if sensitiveKey(key) && value != "" {
			b.WriteString(Marker)
			continue
		}
		b.WriteString(value)
	}
	return b.String(), true
}

func formKey(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '-', c == '.', c == '%', c == '+':
		default:
			return "", false
		}
	}
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", false
	}
	return key, true
}

// URL hides the values of sensitive query keys while keeping the rest of
// the address readable in logs.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	pairs := reqspec.SplitQuery(u.RawQuery)
	var b strings.Builder
	for i, pair := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.Key))
		b.WriteByte('=')
		if sensitiveKey(pair.Key) && pair.Value != "" {
			b.WriteString(Marker)
			continue
		}
		b.WriteString(url.QueryEscape(pair.Value))
	}
	u.RawQuery = b.String()
	return u.String()
}

// Descriptor builds the secret-free request context attached to outcomes.
func Descriptor(d *reqspec.Descriptor) *reqspec.RequestContext {
	if d == nil {
		return nil
	}
	return &reqspec.RequestContext{
		URL:     URL(d.URL),
		Method:  d.Method,
		Intent:  d.Intent,
		Headers: Headers(d.Headers),
		Auth:    Auth(d.Auth),
	}
}
