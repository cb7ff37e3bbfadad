package curl

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

type segState struct {
	method     string
	explicit   bool
	headers    reqspec.PairList
	body       *bodyBuilder
	url        string
	user       string
	userSet    bool
	compressed bool
	toQuery    bool
	opts       reqspec.ExecOptions
	warn       *WarningCollector
	pos        []string
}

func buildSegment(seg segment) (*reqspec.Descriptor, []string, error) {
	st := &segState{
		method: "GET",
		body:   newBodyBuilder(),
		warn:   newWarningCollector(),
	}
	st.warn.UnknownFlags(seg.unknown)

	for _, it := range seg.items {
		if it.isOpt {
			if err := applyOpt(st, it.opt); err != nil {
				return nil, nil, err
			}
			continue
		}
		st.pos = append(st.pos, it.pos)
	}

	leftover := st.pos
	if st.url == "" {
		st.url, leftover = selectURL(st.pos)
	}
	if st.url == "" {
		return nil, nil, errdef.New(errdef.CodeParse, "curl command missing URL")
	}
	st.url = reqspec.EnsureScheme(sanitizeURL(st.url))
	for _, extra := range leftover {
		if err := st.body.addRaw(extra); err != nil {
			return nil, nil, err
		}
	}

	if st.toQuery {
		if err := moveBodyToQuery(st); err != nil {
			return nil, nil, err
		}
	}
	if st.body.hasContent() && !st.explicit && strings.EqualFold(st.method, "GET") {
		st.method = "POST"
	}

	body, err := st.body.build(st)
	if err != nil {
		return nil, nil, err
	}

	if st.compressed && !st.headers.HasFold(headerAcceptEncoding) {
		st.headers.Add(headerAcceptEncoding, acceptEncodingDefault)
	}

	auth, headers := deriveAuth(st.headers)
	if st.userSet {
		auth = basicFromUser(st.user)
		headers = headers.RemoveFold(headerAuthorization)
	}

	d := &reqspec.Descriptor{
		URL:         st.url,
		Method:      st.method,
		Headers:     headers,
		QueryParams: queryParamsOf(st.url),
		Body:        body,
		Auth:        auth,
		Options:     st.opts,
	}
	return d, st.warn.List(), nil
}

func applyOpt(st *segState, opt option) error {
	def := defs[opt.key]
	if def == nil || def.fn == nil {
		return nil
	}
	return def.fn(st, opt.val)
}

// selectURL picks the request target out of the positional tokens: the
// first token carrying an explicit http(s) scheme wins, otherwise the scan
// runs from the end and takes the first token that looks like an address.
// Scanning from the end keeps stray data arguments from shadowing the URL.
func selectURL(pos []string) (string, []string) {
	pick := func(i int) (string, []string) {
		rest := make([]string, 0, len(pos)-1)
		rest = append(rest, pos[:i]...)
		rest = append(rest, pos[i+1:]...)
		return sanitizeURL(pos[i]), rest
	}
	for i, p := range pos {
		if hasHTTPScheme(sanitizeURL(p)) {
			return pick(i)
		}
	}
	for i := len(pos) - 1; i >= 0; i-- {
		trimmed := sanitizeURL(pos[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "-") {
			continue
		}
		if strings.ContainsAny(trimmed, "./") {
			return pick(i)
		}
	}
	return "", pos
}

func hasHTTPScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// moveBodyToQuery implements -G: accumulated data pairs become the query
// string and the body resets.
func moveBodyToQuery(st *segState) error {
	if !st.body.hasContent() {
		return nil
	}
	q, err := st.body.query()
	if err != nil {
		return err
	}
	st.url = addQuery(st.url, q)
	st.body = newBodyBuilder()
	return nil
}

func addQuery(raw, q string) string {
	if q == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + q
	}
	if u.RawQuery != "" {
		u.RawQuery = u.RawQuery + "&" + q
	} else {
		u.RawQuery = q
	}
	return u.String()
}

// deriveAuth lifts a parseable Authorization header into a typed auth spec
// and strips the header; the resolver re-materializes it later. Schemes it
// can't decode stay inline with auth none.
func deriveAuth(headers reqspec.PairList) (reqspec.AuthSpec, reqspec.PairList) {
	none := reqspec.AuthSpec{Type: reqspec.AuthNone}
	idx := -1
	for i, pair := range headers {
		if strings.EqualFold(pair.Key, headerAuthorization) {
			idx = i
		}
	}
	if idx < 0 {
		return none, headers
	}

	value := strings.TrimSpace(headers[idx].Value)
	var spec reqspec.AuthSpec
	switch {
	case hasAuthPrefix(value, authBasicPrefix):
		decoded, err := base64.StdEncoding.DecodeString(
			strings.TrimSpace(value[len(authBasicPrefix):]))
		if err != nil {
			return none, headers
		}
		user, pass, _ := strings.Cut(string(decoded), ":")
		spec = reqspec.AuthSpec{Type: reqspec.AuthBasic, Username: user, Password: pass}
	case hasAuthPrefix(value, authBearerPrefix):
		token := strings.TrimSpace(value[len(authBearerPrefix):])
		if token == "" {
			return none, headers
		}
		spec = reqspec.AuthSpec{Type: bearerType(token), Token: token}
	default:
		return none, headers
	}

	out := make(reqspec.PairList, 0, len(headers)-1)
	out = append(out, headers[:idx]...)
	out = append(out, headers[idx+1:]...)
	return spec, out
}

func hasAuthPrefix(value, prefix string) bool {
	return len(value) >= len(prefix) && strings.EqualFold(value[:len(prefix)], prefix)
}

// A token with exactly two dots is a structured JWT; anything else is an
// opaque bearer token.
func bearerType(token string) reqspec.AuthType {
	if strings.Count(token, ".") == 2 {
		return reqspec.AuthJWT
	}
	return reqspec.AuthBearer
}

func basicFromUser(raw string) reqspec.AuthSpec {
	user, pass, _ := strings.Cut(raw, ":")
	return reqspec.AuthSpec{Type: reqspec.AuthBasic, Username: user, Password: pass}
}

// queryParamsOf mirrors the URL's own query string into the descriptor so
// the console can display and edit individual parameters. Normalization
// dedupes the mirror against the URL, embedded values winning.
func queryParamsOf(raw string) reqspec.PairList {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return nil
	}
	return reqspec.SplitQuery(u.RawQuery)
}

func splitHeader(header string) (string, string) {
	name, value, found := strings.Cut(header, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	if !found {
		return name, ""
	}
	return name, strings.TrimSpace(value)
}

func sanitizeURL(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), urlQuoteChars)
}
