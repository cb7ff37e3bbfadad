package curl

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// Render emits the canonical curl command for a descriptor, one flag per
// continuation line. Parsing the rendered command yields the descriptor
// back: method, URL, headers, and body survive the round trip, with typed
// auth re-deriving from the flags it renders to.
func Render(d *reqspec.Descriptor) string {
	if d == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("curl")

	method := strings.ToUpper(strings.TrimSpace(d.Method))
	if method != "" && method != http.MethodGet {
		b.WriteString(" -X ")
		b.WriteString(method)
	}

	target := reqspec.AppendQuery(d.URL, d.QueryParams)
	if d.Auth.Type == reqspec.AuthAPIKey && d.Auth.Placement == reqspec.PlaceQuery {
		name := d.Auth.HeaderName
		if name == "" {
			name = defaultAPIKeyParam
		}
		target = reqspec.AppendQuery(target, reqspec.PairList{{Key: name, Value: d.Auth.Key}})
	}
	// The URL is always quoted so ? and & survive a paste into a shell.
	b.WriteString(" ")
	b.WriteString(singleQuote(target))

	for _, pair := range d.Headers {
		writeFlag(&b, "-H", pair.Key+": "+pair.Value)
	}

	switch d.Auth.Type {
	case reqspec.AuthBasic:
		writeFlag(&b, "-u", d.Auth.Username+":"+d.Auth.Password)
	case reqspec.AuthBearer, reqspec.AuthJWT:
		if !d.Headers.HasFold(headerAuthorization) {
			writeFlag(&b, "-H", headerAuthorization+": "+authBearerPrefix+d.Auth.Token)
		}
	case reqspec.AuthAPIKey:
		if d.Auth.Placement != reqspec.PlaceQuery {
			name := d.Auth.HeaderName
			if name == "" {
				name = defaultAPIKeyHeader
			}
			writeFlag(&b, "-H", name+": "+d.Auth.Key)
		}
	}

	if !d.Body.IsEmpty() {
		if d.Body.MimeType != "" && !d.Headers.HasFold(headerContentType) {
			writeFlag(&b, "-H", headerContentType+": "+d.Body.MimeType)
		}
		writeFlag(&b, "-d", d.Body.Text)
	}

	if d.Options.Insecure {
		b.WriteString(" \\\n  -k")
	}
	if d.Options.FollowRedirects {
		b.WriteString(" \\\n  -L")
	}
	if d.Options.Timeout > 0 {
		writeFlag(&b, "-m", formatSeconds(d.Options.Timeout))
	}

	return b.String()
}

func writeFlag(b *strings.Builder, flag, value string) {
	b.WriteString(" \\\n  ")
	b.WriteString(flag)
	b.WriteString(" ")
	b.WriteString(shellQuote(value))
}

// shellQuote single-quotes a value unless it is plainly safe; embedded
// single quotes use the '\'' splice.
func shellQuote(v string) string {
	if v != "" && isShellSafe(v) {
		return v
	}
	return singleQuote(v)
}

func singleQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func isShellSafe(v string) bool {
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./:=@%+,", r):
		default:
			return false
		}
	}
	return true
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
