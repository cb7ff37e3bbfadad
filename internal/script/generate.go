// Package script renders ready-to-ship integration snippets from resolved
// descriptors. The output is Node fetch-style text for the integrator to
// paste into their service; it is never executed here. Credential values are
// replaced with {{PLACEHOLDER}} markers so a generated snippet can be shared
// without leaking secrets.
package script

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"text/template"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/redact"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

const (
	placeholderUsername = "COURIER_USERNAME"
	placeholderPassword = "COURIER_PASSWORD"
	placeholderToken    = "COURIER_TOKEN"
	placeholderAPIKey   = "COURIER_API_KEY"

	defaultAPIKeyHeader = "X-API-Key"
	defaultAPIKeyParam  = "api_key"
)

type headerEntry struct {
	Key  string // JS string literal
	Expr string // JS expression producing the value
}

type mintModel struct {
	URL       string
	Method    string
	Headers   []headerEntry
	BodyExpr  string
	TokenExpr string
}

type snippetModel struct {
	Title        string
	Placeholders []string
	URL          string
	Method       string
	Headers      []headerEntry
	BodyExpr     string
	Mint         *mintModel
}

// Generate renders the integration snippet for a descriptor. The descriptor
// should already be normalised; callers typically pass the output of the
// pipeline's normalise step, not a resolved one, so minted tokens stay out
// of the snippet.
func Generate(d *reqspec.Descriptor) (string, error) {
	if d == nil {
		return "", errdef.New(errdef.CodeValidation, "cannot generate a script from a nil descriptor")
	}

	g := &generator{seen: make(map[string]struct{})}
	model := g.build(d.Clone())

	var buf bytes.Buffer
	if err := snippetTemplate.Execute(&buf, model); err != nil {
		return "", errdef.Wrap(errdef.CodeUnknown, err, "render integration snippet")
	}
	return buf.String(), nil
}

type generator struct {
	seen  map[string]struct{}
	order []string
}

// placeholder records a marker name on first use and returns the literal
// {{NAME}} text that lands in the snippet.
func (g *generator) placeholder(name string) string {
	if _, ok := g.seen[name]; !ok {
		g.seen[name] = struct{}{}
		g.order = append(g.order, name)
	}
	return "{{" + name + "}}"
}

func (g *generator) build(d *reqspec.Descriptor) snippetModel {
	model := snippetModel{
		Title:  snippetTitle(d),
		Method: jsQuote(methodOrGet(d.Method)),
	}

	query := g.scrubQuery(d.QueryParams)
	if d.Auth.Type == reqspec.AuthAPIKey && d.Auth.Placement == reqspec.PlaceQuery {
		name := d.Auth.HeaderName
		if name == "" {
			name = defaultAPIKeyParam
		}
		query = append(query, reqspec.Pair{Key: name, Value: g.placeholder(placeholderAPIKey)})
	}
	model.URL = jsQuote(unescapePlaceholders(reqspec.AppendQuery(d.URL, query)))

	for _, pair := range d.Headers {
		value := pair.Value
		if redact.SensitiveHeader(pair.Key) && value != "" {
			value = g.placeholder(headerPlaceholderName(pair.Key))
		}
		model.Headers = append(model.Headers, headerEntry{
			Key:  jsQuote(pair.Key),
			Expr: jsQuote(value),
		})
	}

	if !d.Body.IsEmpty() && d.Body.MimeType != "" && !d.Headers.HasFold("Content-Type") {
		model.Headers = append(model.Headers, headerEntry{
			Key:  jsQuote("Content-Type"),
			Expr: jsQuote(d.Body.MimeType),
		})
	}

	switch d.Auth.Type {
	case reqspec.AuthBasic:
		credentials := g.placeholder(placeholderUsername) + ":" + g.placeholder(placeholderPassword)
		model.Headers = append(model.Headers, headerEntry{
			Key:  jsQuote("Authorization"),
			Expr: `"Basic " + Buffer.from(` + jsQuote(credentials) + `).toString("base64")`,
		})
	case reqspec.AuthBearer, reqspec.AuthJWT:
		model.Headers = append(model.Headers, headerEntry{
			Key:  jsQuote("Authorization"),
			Expr: jsQuote("Bearer " + g.placeholder(placeholderToken)),
		})
	case reqspec.AuthAPIKey:
		if d.Auth.Placement != reqspec.PlaceQuery {
			name := d.Auth.HeaderName
			if name == "" {
				name = defaultAPIKeyHeader
			}
			model.Headers = append(model.Headers, headerEntry{
				Key:  jsQuote(name),
				Expr: jsQuote(g.placeholder(placeholderAPIKey)),
			})
		}
	case reqspec.AuthJWTMint:
		if d.Auth.Mint != nil {
			model.Mint = g.buildMint(d)
			model.Headers = append(model.Headers, headerEntry{
				Key:  jsQuote("Authorization"),
				Expr: "`Bearer ${token}`",
			})
		}
	}

	model.BodyExpr = g.bodyExpr(d.Body)
	model.Placeholders = append([]string(nil), g.order...)
	return model
}

func (g *generator) buildMint(d *reqspec.Descriptor) *mintModel {
	mint := d.Auth.Mint
	model := &mintModel{
		URL:       jsQuote(mint.TokenURL),
		Method:    jsQuote(methodOrDefault(mint.Method, http.MethodPost)),
		TokenExpr: tokenExpr(mint.TokenPath),
	}

	for _, pair := range mint.Headers {
		value := pair.Value
		if redact.SensitiveHeader(pair.Key) && value != "" {
			value = g.placeholder(headerPlaceholderName(pair.Key))
		}
		model.Headers = append(model.Headers, headerEntry{
			Key:  jsQuote(pair.Key),
			Expr: jsQuote(value),
		})
	}

	body := strings.TrimSpace(mint.Body)
	if body == "" {
		// Mirror the minting flow: a blank configured body turns into a
		// username/password payload.
		contentType, _ := mint.Headers.GetFold("Content-Type")
		if strings.Contains(strings.ToLower(contentType), "form-urlencoded") {
			form := "username=" + g.placeholder(placeholderUsername) +
				"&password=" + g.placeholder(placeholderPassword)
			model.BodyExpr = jsQuote(form)
		} else {
			payload := `{"username":` + jsQuote(g.placeholder(placeholderUsername)) +
				`,"password":` + jsQuote(g.placeholder(placeholderPassword)) + `}`
			model.BodyExpr = "JSON.stringify(" + payload + ")"
			if !mint.Headers.HasFold("Content-Type") {
				model.Headers = append(model.Headers, headerEntry{
					Key:  jsQuote("Content-Type"),
					Expr: jsQuote("application/json"),
				})
			}
		}
		return model
	}

	model.BodyExpr = g.bodyExpr(reqspec.BodySource{Text: body})
	return model
}

// bodyExpr renders the request body as a JS expression. JSON bodies keep
// their structure inside JSON.stringify with secret values swapped for
// placeholders; anything else becomes a quoted string.
func (g *generator) bodyExpr(body reqspec.BodySource) string {
	if body.IsEmpty() {
		return ""
	}
	if raw, ok := body.JSONValue(); ok {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			scrubbed, err := json.Marshal(g.scrubJSON(decoded))
			if err == nil {
				return "JSON.stringify(" + string(scrubbed) + ")"
			}
		}
	}
	return jsQuote(body.Text)
}

func (g *generator) scrubJSON(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if redact.SensitiveKey(k) {
				if s, ok := inner.(string); ok && s != "" {
					out[k] = g.placeholder(headerPlaceholderName(k))
					continue
				}
			}
			out[k] = g.scrubJSON(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = g.scrubJSON(inner)
		}
		return out
	default:
		return v
	}
}

func (g *generator) scrubQuery(params reqspec.PairList) reqspec.PairList {
	out := make(reqspec.PairList, len(params))
	for i, pair := range params {
		if redact.SensitiveKey(pair.Key) && pair.Value != "" {
			out[i] = reqspec.Pair{Key: pair.Key, Value: g.placeholder(headerPlaceholderName(pair.Key))}
			continue
		}
		out[i] = pair
	}
	return out
}

// unescapePlaceholders restores {{NAME}} markers that query encoding turned
// into %7B%7BNAME%7D%7D. The integrator edits these by hand, so they must
// stay readable.
func unescapePlaceholders(rawURL string) string {
	rawURL = strings.ReplaceAll(rawURL, "%7B%7B", "{{")
	return strings.ReplaceAll(rawURL, "%7D%7D", "}}")
}

// headerPlaceholderName flattens a header or field name into UPPER_SNAKE so
// "X-Api-Key" names the placeholder X_API_KEY.
func headerPlaceholderName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// tokenExpr turns a dotted token path into a payload access. With no path
// configured the usual field names are tried in the resolver's order.
func tokenExpr(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "payload.access_token ?? payload.token ?? payload.jwt ?? payload.id_token"
	}
	var b strings.Builder
	b.WriteString("payload")
	for _, segment := range strings.Split(path, ".") {
		b.WriteString("[")
		b.WriteString(jsQuote(segment))
		b.WriteString("]")
	}
	return b.String()
}

func snippetTitle(d *reqspec.Descriptor) string {
	if d.CourierID != "" {
		return "Courier integration: " + d.CourierID
	}
	if host := d.Host(); host != "" {
		return "Courier integration: " + host
	}
	return "Courier integration"
}

func methodOrGet(method string) string {
	return methodOrDefault(method, http.MethodGet)
}

func methodOrDefault(method, fallback string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return fallback
	}
	return method
}

// jsQuote emits a double-quoted JS string literal. Go's quoting rules are a
// subset of what JS accepts, so the stdlib quoter is safe here.
func jsQuote(v string) string {
	return strconv.Quote(v)
}

var snippetTemplate = template.Must(template.New("snippet").Parse(`// {{.Title}}
// Fill each placeholder before shipping.
{{- if .Placeholders}}
// Placeholders: {{range $i, $name := .Placeholders}}{{if $i}}, {{end}}{{$name}}{{end}}
{{- end}}

{{if .Mint -}}
async function mintToken() {
  const response = await fetch({{.Mint.URL}}, {
    method: {{.Mint.Method}},
{{- if .Mint.Headers}}
    headers: {
{{- range .Mint.Headers}}
      {{.Key}}: {{.Expr}},
{{- end}}
    },
{{- end}}
{{- if .Mint.BodyExpr}}
    body: {{.Mint.BodyExpr}},
{{- end}}
  });
  if (!response.ok) {
    throw new Error(` + "`token request failed: ${response.status}`" + `);
  }
  const payload = await response.json();
  return {{.Mint.TokenExpr}};
}

{{end -}}
async function callCourier() {
{{- if .Mint}}
  const token = await mintToken();
{{- end}}
  const response = await fetch({{.URL}}, {
    method: {{.Method}},
{{- if .Headers}}
    headers: {
{{- range .Headers}}
      {{.Key}}: {{.Expr}},
{{- end}}
    },
{{- end}}
{{- if .BodyExpr}}
    body: {{.BodyExpr}},
{{- end}}
  });
  if (!response.ok) {
    throw new Error(` + "`courier request failed: ${response.status} ${response.statusText}`" + `);
  }
  return response.json();
}
`))
