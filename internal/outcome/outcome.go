// Package outcome classifies execution results into the tagged union the
// console renders. Past the parse and normalize stages failures are data,
// not errors: every run yields exactly one Outcome.
package outcome

import (
	"encoding/json"

	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// Kind names one classification bucket.
type Kind string

const (
	KindSuccess      Kind = "success"
	KindTooLarge     Kind = "too_large"
	KindPaginated    Kind = "paginated"
	KindAuthError    Kind = "auth_error"
	KindNetworkError Kind = "network_error"
	KindServerError  Kind = "server_error"
	KindClientError  Kind = "client_error"
	KindUnknown      Kind = "unknown_error"
)

// TruncatedPayload samples a response whose body crossed the size ceiling.
type TruncatedPayload struct {
	ApproxSize int `json:"approxSizeBytes"`
	Sample     any `json:"sample,omitempty"`
}

// PageResult reports what pagination did (merged pages) or could do (a
// next-page reference left unfetched).
type PageResult struct {
	Pages    int    `json:"pages"`
	NextPage string `json:"nextPage,omitempty"`
}

// Outcome is the classified result of one execution. The request context is
// always redacted before it is attached; no secret survives into an Outcome.
type Outcome struct {
	Kind       Kind                    `json:"kind"`
	Data       json.RawMessage         `json:"data,omitempty"`
	Status     int                     `json:"status,omitempty"`
	StatusText string                  `json:"statusText,omitempty"`
	Code       string                  `json:"code,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Truncated  *TruncatedPayload       `json:"truncated,omitempty"`
	Page       *PageResult             `json:"page,omitempty"`
	Warning    string                  `json:"warning,omitempty"`
	Suggestion string                  `json:"suggestion,omitempty"`
	Request    *reqspec.RequestContext `json:"request,omitempty"`
	DurationMS int64                   `json:"durationMs,omitempty"`
	Via        string                  `json:"via,omitempty"`
}

// OK reports whether the outcome carries usable response data.
func (o Outcome) OK() bool {
	switch o.Kind {
	case KindSuccess, KindPaginated, KindTooLarge:
		return true
	}
	return false
}
