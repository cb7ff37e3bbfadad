package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/extract"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// Courier token endpoints rarely advertise a lifetime; 55 minutes keeps a
// healthy margin under the common one-hour issue window.
const defaultTokenTTL = 55 * time.Minute

// Paths tried in order when the mint spec names no token path.
var tokenCandidatePaths = []string{
	"access_token",
	"token",
	"jwt",
	"id_token",
	"data.token",
}

// buildMintDescriptor turns the mint spec into a standalone token request.
// An empty configured body becomes a username/password payload, form or
// JSON encoded per the configured content type.
func buildMintDescriptor(d *reqspec.Descriptor) *reqspec.Descriptor {
	mint := d.Auth.Mint

	method := strings.ToUpper(strings.TrimSpace(mint.Method))
	if method == "" {
		method = http.MethodPost
	}

	headers := mint.Headers.Clone()
	contentType, hasContentType := headers.GetFold("Content-Type")

	body := strings.TrimSpace(mint.Body)
	if body == "" {
		if strings.Contains(strings.ToLower(contentType), "form-urlencoded") {
			form := url.Values{}
			form.Set("username", d.Auth.Username)
			form.Set("password", d.Auth.Password)
			body = form.Encode()
		} else {
			raw, err := json.Marshal(map[string]string{
				"username": d.Auth.Username,
				"password": d.Auth.Password,
			})
			if err == nil {
				body = string(raw)
			}
		}
	}

	mime := ""
	if !hasContentType {
		if json.Valid([]byte(body)) {
			mime = "application/json"
		} else {
			mime = "application/x-www-form-urlencoded"
		}
	}
	if !headers.HasFold("Accept") {
		headers.Add("Accept", "application/json")
	}

	return &reqspec.Descriptor{
		URL:       mint.TokenURL,
		Method:    method,
		Headers:   headers,
		Body:      reqspec.BodySource{Text: body, MimeType: mime},
		Intent:    reqspec.IntentGenerateToken,
		CourierID: d.CourierID,
	}
}

// extractToken pulls the token string out of a mint response. An explicit
// path is strict; without one the usual field names are tried in order. The
// second return is the response's expires_in lifetime when present.
func extractToken(body []byte, path string) (string, time.Duration, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return "", 0, errdef.Wrap(errdef.CodeAuth, err, "token response is not valid JSON")
	}

	ttl := expiresIn(payload)

	if trimmed := strings.TrimSpace(path); trimmed != "" {
		value, ok := extract.Lookup(payload, trimmed)
		if !ok {
			return "", 0, errdef.New(errdef.CodeAuth, "token not found at path %s", trimmed)
		}
		token, ok := value.(string)
		if !ok || strings.TrimSpace(token) == "" {
			return "", 0, errdef.New(errdef.CodeAuth, "token not found at path %s", trimmed)
		}
		return token, ttl, nil
	}

	for _, candidate := range tokenCandidatePaths {
		value, ok := extract.Lookup(payload, candidate)
		if !ok {
			continue
		}
		if token, ok := value.(string); ok && strings.TrimSpace(token) != "" {
			return token, ttl, nil
		}
	}
	if token, ok := payload.(string); ok && strings.TrimSpace(token) != "" {
		return token, ttl, nil
	}
	return "", 0, errdef.New(errdef.CodeAuth, "token response carries no recognizable token field")
}

func expiresIn(payload any) time.Duration {
	for _, path := range []string{"expires_in", "expiresIn"} {
		value, ok := extract.Lookup(payload, path)
		if !ok {
			continue
		}
		if num, ok := value.(json.Number); ok {
			if seconds, err := num.Int64(); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return 0
}

// tokenExpiry settles the cached lifetime: the JWT's own exp claim wins,
// then the response's expires_in, then the configured lifetime, then the
// default.
func tokenExpiry(token string, responseTTL, configuredTTL time.Duration, issued time.Time) time.Time {
	if exp, ok := jwtExpiry(token); ok {
		return exp
	}
	if responseTTL > 0 {
		return issued.Add(responseTTL)
	}
	if configuredTTL > 0 {
		return issued.Add(configuredTTL)
	}
	return issued.Add(defaultTokenTTL)
}

// jwtExpiry reads the exp claim from a three-segment token without
// verifying the signature. The value only drives cache invalidation.
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		payload, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return time.Time{}, false
		}
	}
	var claims struct {
		Exp json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false
	}
	seconds, err := claims.Exp.Int64()
	if err != nil || seconds <= 0 {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}
