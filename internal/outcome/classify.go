package outcome

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/redact"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
)

const (
	phraseScanLimit = 8 * 1024
	snippetLimit    = 200
)

// Bodies that say this are auth failures no matter what status rides them;
// some couriers answer 200 to bad credentials.
var authPhrases = []string{
	"unauthorized",
	"forbidden",
	"token expired",
	"invalid token",
}

// Classify turns an execution result or error into an Outcome. Pure apart
// from redaction: no network, no mutation of its inputs.
func Classify(result *transport.Result, err error, d *reqspec.Descriptor) Outcome {
	reqCtx := redact.Descriptor(d)
	if err != nil {
		return classifyError(err, d, reqCtx)
	}
	if result == nil || result.Response == nil {
		return Outcome{
			Kind:    KindUnknown,
			Message: "execution produced neither a response nor an error",
			Request: reqCtx,
		}
	}

	resp := result.Response
	out := Outcome{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Request:    reqCtx,
		DurationMS: resp.Duration.Milliseconds(),
		Via:        resp.Via,
	}
	if out.Request != nil {
		out.Request.Via = resp.Via
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden ||
		hasAuthPhrase(resp.Body):
		out.Kind = KindAuthError
		out.Message = bodyMessage(resp.Body, out.StatusText)
		out.Suggestion = "check the courier credentials"

	case result.TooLarge:
		out.Kind = KindTooLarge
		out.Truncated = &TruncatedPayload{
			ApproxSize: result.ApproxSize,
			Sample:     result.Truncated,
		}
		out.Message = fmt.Sprintf(
			"response of about %d bytes exceeds the size ceiling", result.ApproxSize,
		)
		out.Suggestion = "narrow the request or enable pagination"

	case resp.StatusCode >= 500:
		out.Kind = KindServerError
		out.Message = bodyMessage(resp.Body, out.StatusText)
		out.Suggestion = "the courier API is failing upstream; retry later"
		if resp.Via != "" && resp.Via != "direct" {
			out.Warning = "every transport got a server error; this answer came via " + resp.Via
		}

	case resp.StatusCode >= 400:
		out.Kind = KindClientError
		out.Message = bodyMessage(resp.Body, out.StatusText)
		out.Suggestion = clientSuggestion(resp.StatusCode)

	default:
		classifySuccess(result, d, &out)
	}
	return out
}

func classifySuccess(result *transport.Result, d *reqspec.Descriptor, out *Outcome) {
	resp := result.Response
	out.Kind = KindSuccess
	out.Warning = result.PageWarning

	if result.Pages > 1 || result.NextPage != "" {
		out.Page = &PageResult{Pages: result.Pages, NextPage: result.NextPage}
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return
	}
	if !json.Valid(body) {
		if encoded, err := json.Marshal(string(resp.Body)); err == nil {
			out.Data = encoded
		}
		return
	}
	out.Data = json.RawMessage(body)

	// A recognizable next-page marker on a run that never asked for
	// pagination gets its own kind so the console can offer the follow-up.
	if (d == nil || !d.Paginate) && result.Pages <= 1 && result.NextPage == "" {
		if payload, err := decodePayload(body); err == nil {
			if marker, ok := transport.NextPageMarker(payload); ok {
				out.Kind = KindPaginated
				out.Page = &PageResult{Pages: 1, NextPage: marker}
			}
		}
	}
}

func classifyError(err error, d *reqspec.Descriptor, reqCtx *reqspec.RequestContext) Outcome {
	out := Outcome{Request: reqCtx, Message: err.Error()}

	var (
		private *transport.PrivateHostError
		dnsErr  *net.DNSError
		netErr  net.Error
		certErr *tls.CertificateVerificationError
	)
	switch {
	case errors.As(err, &private):
		out.Kind = KindNetworkError
		out.Code = "private_address"
		out.Message = private.Error()
		out.Suggestion = "cannot reach private IP addresses; use a public endpoint"

	case errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()):
		out.Kind = KindNetworkError
		out.Code = "timeout"
		out.Message = hostMessage(d, "request to %s timed out", "request timed out")
		out.Suggestion = "increase the timeout or try again"

	case errors.Is(err, context.Canceled):
		out.Kind = KindNetworkError
		out.Code = "canceled"
		out.Message = "request canceled before completion"

	case errors.As(err, &dnsErr):
		out.Kind = KindNetworkError
		out.Code = "dns"
		out.Message = fmt.Sprintf("cannot resolve host %q", dnsErr.Name)
		out.Suggestion = "check the hostname for typos"

	case errors.Is(err, syscall.ECONNREFUSED) ||
		strings.Contains(err.Error(), "connection refused"):
		out.Kind = KindNetworkError
		out.Code = "connection_refused"
		out.Message = hostMessage(d, "connection refused by %s", "connection refused")
		out.Suggestion = "verify the endpoint is reachable from the internet"

	case errors.As(err, &certErr):
		out.Kind = KindNetworkError
		out.Code = "tls"
		out.Suggestion = "fix the certificate, or allow insecure mode only for endpoints you trust"

	default:
		switch code := errdef.CodeOf(err); code {
		case errdef.CodeAuth, errdef.CodeCredentials:
			out.Kind = KindAuthError
			out.Code = string(code)
			out.Suggestion = "check the courier credentials"
		case errdef.CodeParse, errdef.CodeValidation:
			out.Kind = KindClientError
			out.Code = string(code)
		case errdef.CodeTransport:
			out.Kind = KindNetworkError
			out.Code = string(code)
			out.Suggestion = "the courier API could not be reached directly or through a relay"
		default:
			out.Kind = KindUnknown
		}
	}
	return out
}

func hostMessage(d *reqspec.Descriptor, withHost, without string) string {
	if d != nil {
		if host := d.Host(); host != "" {
			return fmt.Sprintf(withHost, host)
		}
	}
	return without
}

func clientSuggestion(status int) string {
	switch status {
	case http.StatusNotFound:
		return "check the endpoint path"
	case http.StatusMethodNotAllowed:
		return "check the request method"
	case http.StatusTooManyRequests:
		return "the courier is rate limiting; reduce batch size or wait before retrying"
	}
	return ""
}

func statusText(resp *transport.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// bodyMessage prefers the message a JSON error body carries over a raw
// snippet of the payload.
func bodyMessage(body []byte, fallback string) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fallback
	}
	if trimmed[0] == '{' {
		var payload map[string]any
		if err := json.Unmarshal(trimmed, &payload); err == nil {
			for _, key := range []string{"message", "error", "error_description", "detail"} {
				if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
			if inner, ok := payload["error"].(map[string]any); ok {
				if s, ok := inner["message"].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	snippet := string(trimmed)
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit]
	}
	return snippet
}

func hasAuthPhrase(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	scan := body
	if len(scan) > phraseScanLimit {
		scan = scan[:phraseScanLimit]
	}
	text := strings.ToLower(string(scan))
	for _, phrase := range authPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func decodePayload(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
