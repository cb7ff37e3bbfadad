package relay

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/chetanft/courier-integration-sub002/internal/redact"
)

// ErrorEnvelope is the failure shape of the relay contract. Callers decode
// any {error:true} answer into the courier status it wraps.
type ErrorEnvelope struct {
	Error      bool            `json:"error"`
	Status     int             `json:"status"`
	StatusText string          `json:"statusText"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// detailsLimit caps how much courier body rides inside an envelope. The
// classifier only scans the leading bytes anyway.
const detailsLimit = 32 * 1024

// envelopeDetails embeds the courier body in the envelope: valid JSON goes
// verbatim, everything else as a quoted string. Oversized bodies are cut at
// the limit.
func envelopeDetails(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if len(trimmed) <= detailsLimit && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	if len(trimmed) > detailsLimit {
		trimmed = trimmed[:detailsLimit]
	}
	raw, err := json.Marshal(string(trimmed))
	if err != nil {
		return nil
	}
	return raw
}

// credentialParamPattern matches credential query parameter values in URLs
// embedded in error messages.
var credentialParamPattern = regexp.MustCompile(`(?i)((?:api_?key|token|password|secret)=)[^&\s"]+`)

// sanitizeError redacts credential values from error messages that may
// contain courier URLs.
func sanitizeError(err error) string {
	return credentialParamPattern.ReplaceAllString(err.Error(), "${1}"+redact.Marker)
}
