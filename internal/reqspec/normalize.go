package reqspec

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

// Normalize canonicalizes a descriptor so every downstream stage sees the
// same shape regardless of whether the input came from a pasted command, a
// console form, or a relay envelope. It never mutates its argument and is
// idempotent.
func Normalize(d *Descriptor) (*Descriptor, error) {
	if d == nil {
		return nil, errdef.New(errdef.CodeValidation, "request descriptor is required")
	}
	out := d.Clone()

	out.URL = strings.TrimSpace(out.URL)
	if out.URL == "" {
		return nil, errdef.New(errdef.CodeValidation, "request URL is required")
	}
	out.URL = EnsureScheme(out.URL)
	parsed, err := url.Parse(out.URL)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeValidation, err, "invalid request URL %q", out.URL)
	}
	if parsed.Host == "" {
		return nil, errdef.New(errdef.CodeValidation, "request URL %q has no host", out.URL)
	}

	out.Method = strings.ToUpper(strings.TrimSpace(out.Method))
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	if strings.ContainsAny(out.Method, " \t") {
		return nil, errdef.New(errdef.CodeValidation, "invalid request method %q", out.Method)
	}
	if !out.Body.IsEmpty() && out.Method == http.MethodGet {
		out.Method = http.MethodPost
	}

	if out.Headers == nil {
		out.Headers = PairList{}
	}
	out.Headers = collapseAuthorization(out.Headers)
	if out.QueryParams == nil {
		out.QueryParams = PairList{}
	}
	out.QueryParams = dropEmbedded(parsed.RawQuery, out.QueryParams)

	if out.Auth.Type == "" {
		out.Auth.Type = AuthNone
	}
	if out.Intent == "" {
		out.Intent = IntentGeneric
	}
	return out, nil
}

// EnsureScheme prepends https:// to schemeless URLs. Operators paste bare
// hosts far more often than plaintext-http endpoints.
func EnsureScheme(raw string) string {
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// collapseAuthorization keeps at most one Authorization header; the last
// occurrence wins, matching the last-processed-wins rule the parser applies
// to credential flags.
func collapseAuthorization(headers PairList) PairList {
	last := -1
	for i, pair := range headers {
		if strings.EqualFold(pair.Key, "Authorization") {
			last = i
		}
	}
	if last < 0 {
		return headers
	}
	out := make(PairList, 0, len(headers))
	for i, pair := range headers {
		if i != last && strings.EqualFold(pair.Key, "Authorization") {
			continue
		}
		out = append(out, pair)
	}
	return out
}

// dropEmbedded removes query params whose key (case-sensitive) already
// appears in the URL's own query string. The embedded value wins so the
// pasted URL replays byte-for-byte.
func dropEmbedded(rawQuery string, params PairList) PairList {
	if rawQuery == "" || len(params) == 0 {
		return params
	}
	embedded := make(map[string]struct{})
	for _, pair := range SplitQuery(rawQuery) {
		embedded[pair.Key] = struct{}{}
	}
	out := make(PairList, 0, len(params))
	for _, pair := range params {
		if _, ok := embedded[pair.Key]; ok {
			continue
		}
		out = append(out, pair)
	}
	return out
}
