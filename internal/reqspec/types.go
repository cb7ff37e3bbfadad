package reqspec

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// Intent tags what the operator is trying to accomplish with a request.
// It drives logging and light branching only, never validation.
type Intent string

const (
	IntentFetchData     Intent = "fetch_courier_data"
	IntentGenerateToken Intent = "generate_auth_token"
	IntentGeneric       Intent = "generic_request"
)

type Pair struct {
	Key   string
	Value string
}

// PairList is an ordered header/query collection. Duplicate keys are legal
// and insertion order is preserved so a descriptor replays reproducibly.
type PairList []Pair

func (p PairList) Get(key string) (string, bool) {
	for _, pair := range p {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

func (p PairList) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

func (p PairList) GetFold(key string) (string, bool) {
	for _, pair := range p {
		if strings.EqualFold(pair.Key, key) {
			return pair.Value, true
		}
	}
	return "", false
}

func (p PairList) HasFold(key string) bool {
	_, ok := p.GetFold(key)
	return ok
}

func (p *PairList) Add(key, value string) {
	*p = append(*p, Pair{Key: key, Value: value})
}

// SetFold replaces every case-insensitive match of key with a single pair,
// keeping the position of the first match. Missing keys append.
func (p *PairList) SetFold(key, value string) {
	out := make(PairList, 0, len(*p)+1)
	placed := false
	for _, pair := range *p {
		if strings.EqualFold(pair.Key, key) {
			if !placed {
				out = append(out, Pair{Key: key, Value: value})
				placed = true
			}
			continue
		}
		out = append(out, pair)
	}
	if !placed {
		out = append(out, Pair{Key: key, Value: value})
	}
	*p = out
}

func (p PairList) RemoveFold(key string) PairList {
	out := make(PairList, 0, len(p))
	for _, pair := range p {
		if strings.EqualFold(pair.Key, key) {
			continue
		}
		out = append(out, pair)
	}
	return out
}

func (p PairList) Clone() PairList {
	if p == nil {
		return nil
	}
	out := make(PairList, len(p))
	copy(out, p)
	return out
}

type BodySource struct {
	Text     string
	MimeType string
}

func (b BodySource) IsEmpty() bool {
	return strings.TrimSpace(b.Text) == ""
}

// JSONValue reports the body as a raw JSON value when the text parses as
// JSON. Callers fall back to the raw string otherwise.
func (b BodySource) JSONValue() (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(b.Text)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

type AuthType string

const (
	AuthNone    AuthType = "none"
	AuthBasic   AuthType = "basic"
	AuthBearer  AuthType = "bearer"
	AuthJWT     AuthType = "jwt"
	AuthJWTMint AuthType = "jwt_auth"
	AuthAPIKey  AuthType = "apiKey"
)

type KeyPlacement string

const (
	PlaceHeader KeyPlacement = "header"
	PlaceQuery  KeyPlacement = "query"
)

// MintSpec configures the jwt_auth flow: the token endpoint to call and how
// to read the minted token out of its response.
type MintSpec struct {
	TokenURL  string
	Method    string
	Headers   PairList
	Body      string
	TokenPath string
	ExpiresIn time.Duration
}

func (m *MintSpec) Clone() *MintSpec {
	if m == nil {
		return nil
	}
	out := *m
	out.Headers = m.Headers.Clone()
	return &out
}

type AuthSpec struct {
	Type       AuthType
	Username   string
	Password   string
	Token      string
	Key        string
	HeaderName string
	Placement  KeyPlacement
	Mint       *MintSpec
}

func (a AuthSpec) Clone() AuthSpec {
	out := a
	out.Mint = a.Mint.Clone()
	return out
}

func (a AuthSpec) IsNone() bool {
	return a.Type == "" || a.Type == AuthNone
}

// ExecOptions carries transport overrides parsed from command flags. They
// never travel in the relay envelope.
type ExecOptions struct {
	Timeout         time.Duration
	Insecure        bool
	FollowRedirects bool
}

type Descriptor struct {
	URL         string
	Method      string
	Headers     PairList
	QueryParams PairList
	Body        BodySource
	Auth        AuthSpec
	Intent      Intent
	CourierID   string
	UseStored   bool
	Paginate    bool
	Options     ExecOptions
}

func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := *d
	out.Headers = d.Headers.Clone()
	out.QueryParams = d.QueryParams.Clone()
	out.Auth = d.Auth.Clone()
	return &out
}

// Host reports the hostname of the descriptor URL, empty when unparseable.
func (d *Descriptor) Host() string {
	u, err := url.Parse(d.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RequestContext is the secret-free view of a request attached to outcomes
// and log lines. Values are redacted before the context is built.
type RequestContext struct {
	URL     string   `json:"url"`
	Method  string   `json:"method"`
	Intent  Intent   `json:"apiIntent,omitempty"`
	Headers PairList `json:"headers,omitempty"`
	Auth    AuthSpec `json:"auth"`
	Via     string   `json:"via,omitempty"`
}
