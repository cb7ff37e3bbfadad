package reqspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

// Wire forms. The relay envelope is the descriptor itself serialized to
// JSON, so these shapes are a compatibility contract: headers and query
// params accept both the canonical pair-array form and the plain-object
// form console forms produce, bodies round-trip JSON values verbatim, and
// an absent body serializes as {}.

type pairWire struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p PairList) MarshalJSON() ([]byte, error) {
	wire := make([]pairWire, len(p))
	for i, pair := range p {
		wire[i] = pairWire{Key: pair.Key, Value: pair.Value}
	}
	return json.Marshal(wire)
}

func (p *PairList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		var wire []pairWire
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return errdef.Wrap(errdef.CodeValidation, err, "decode pair list")
		}
		out := make(PairList, len(wire))
		for i, w := range wire {
			out[i] = Pair{Key: w.Key, Value: w.Value}
		}
		*p = out
		return nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if _, err := dec.Token(); err != nil {
			return errdef.Wrap(errdef.CodeValidation, err, "decode pair object")
		}
		out := PairList{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return errdef.Wrap(errdef.CodeValidation, err, "decode pair object key")
			}
			key, _ := keyTok.(string)
			var val interface{}
			if err := dec.Decode(&val); err != nil {
				return errdef.Wrap(errdef.CodeValidation, err, "decode pair object value")
			}
			out = append(out, Pair{Key: key, Value: stringifyScalar(val)})
		}
		*p = out
		return nil
	}
	return errdef.New(errdef.CodeValidation, "pair list must be a JSON array or object")
}

func stringifyScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

func (b BodySource) MarshalJSON() ([]byte, error) {
	if b.IsEmpty() {
		return []byte("{}"), nil
	}
	if raw, ok := b.JSONValue(); ok {
		return raw, nil
	}
	return json.Marshal(b.Text)
}

func (b *BodySource) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0,
		bytes.Equal(trimmed, []byte("null")),
		bytes.Equal(trimmed, []byte("{}")):
		*b = BodySource{}
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*b = BodySource{Text: s}
		return nil
	}
	*b = BodySource{Text: string(trimmed), MimeType: "application/json"}
	return nil
}

type authWire struct {
	Type             string          `json:"type"`
	Username         string          `json:"username,omitempty"`
	Password         string          `json:"password,omitempty"`
	Token            string          `json:"token,omitempty"`
	Key              string          `json:"key,omitempty"`
	HeaderName       string          `json:"headerName,omitempty"`
	Location         string          `json:"location,omitempty"`
	TokenEndpoint    string          `json:"tokenEndpoint,omitempty"`
	TokenMethod      string          `json:"tokenMethod,omitempty"`
	TokenHeaders     PairList        `json:"tokenHeaders,omitempty"`
	TokenBody        json.RawMessage `json:"tokenBody,omitempty"`
	TokenPath        string          `json:"tokenPath,omitempty"`
	ExpiresInSeconds int64           `json:"expiresInSeconds,omitempty"`
}

func (a AuthSpec) MarshalJSON() ([]byte, error) {
	wire := authWire{Type: string(a.Type)}
	if a.Type == "" {
		wire.Type = string(AuthNone)
	}
	switch a.Type {
	case AuthBasic:
		wire.Username = a.Username
		wire.Password = a.Password
	case AuthBearer, AuthJWT:
		wire.Token = a.Token
	case AuthAPIKey:
		wire.Key = a.Key
		wire.HeaderName = a.HeaderName
		wire.Location = string(a.Placement)
	case AuthJWTMint:
		wire.Username = a.Username
		wire.Password = a.Password
		if m := a.Mint; m != nil {
			wire.TokenEndpoint = m.TokenURL
			wire.TokenMethod = m.Method
			wire.TokenHeaders = m.Headers
			wire.TokenBody = mintBodyWire(m.Body)
			wire.TokenPath = m.TokenPath
			wire.ExpiresInSeconds = int64(m.ExpiresIn / time.Second)
		}
	}
	return json.Marshal(wire)
}

func (a *AuthSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = AuthSpec{Type: AuthNone}
		return nil
	}
	var wire authWire
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return errdef.Wrap(errdef.CodeValidation, err, "decode auth spec")
	}
	spec := AuthSpec{
		Type:       normalizeAuthType(wire.Type),
		Username:   wire.Username,
		Password:   wire.Password,
		Token:      wire.Token,
		Key:        wire.Key,
		HeaderName: wire.HeaderName,
		Placement:  KeyPlacement(wire.Location),
	}
	if spec.Type == AuthJWTMint {
		spec.Mint = &MintSpec{
			TokenURL:  wire.TokenEndpoint,
			Method:    wire.TokenMethod,
			Headers:   wire.TokenHeaders,
			Body:      mintBodyText(wire.TokenBody),
			TokenPath: wire.TokenPath,
			ExpiresIn: time.Duration(wire.ExpiresInSeconds) * time.Second,
		}
	}
	*a = spec
	return nil
}

func normalizeAuthType(raw string) AuthType {
	switch raw {
	case "", string(AuthNone):
		return AuthNone
	case string(AuthBasic):
		return AuthBasic
	case string(AuthBearer):
		return AuthBearer
	case string(AuthJWT):
		return AuthJWT
	case string(AuthJWTMint):
		return AuthJWTMint
	case string(AuthAPIKey), "apikey", "api_key":
		return AuthAPIKey
	}
	return AuthType(raw)
}

func mintBodyWire(body string) json.RawMessage {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return raw
}

func mintBodyText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

type descriptorWire struct {
	URL         string     `json:"url"`
	Method      string     `json:"method"`
	Headers     PairList   `json:"headers"`
	QueryParams PairList   `json:"queryParams,omitempty"`
	Body        BodySource `json:"body"`
	Auth        AuthSpec   `json:"auth"`
	Intent      Intent     `json:"apiIntent,omitempty"`
	CourierID   string     `json:"courierId,omitempty"`
	UseStored   bool       `json:"useStoredCredentials,omitempty"`
	Paginate    bool       `json:"paginate,omitempty"`
}

func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorWire{
		URL:         d.URL,
		Method:      d.Method,
		Headers:     d.Headers,
		QueryParams: d.QueryParams,
		Body:        d.Body,
		Auth:        d.Auth,
		Intent:      d.Intent,
		CourierID:   d.CourierID,
		UseStored:   d.UseStored,
		Paginate:    d.Paginate,
	})
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var wire descriptorWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errdef.Wrap(errdef.CodeValidation, err, "decode request descriptor")
	}
	*d = Descriptor{
		URL:         wire.URL,
		Method:      wire.Method,
		Headers:     wire.Headers,
		QueryParams: wire.QueryParams,
		Body:        wire.Body,
		Auth:        wire.Auth,
		Intent:      wire.Intent,
		CourierID:   wire.CourierID,
		UseStored:   wire.UseStored,
		Paginate:    wire.Paginate,
	}
	return nil
}
