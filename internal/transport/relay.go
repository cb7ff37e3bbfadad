package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/telemetry"
)

const defaultRelayTimeout = 45 * time.Second

// RelayEnvelopeHeader marks how a relay answered: "1" for an error
// envelope, "0" for a courier body forwarded raw. Relays that do not set
// it are judged by body shape alone.
const RelayEnvelopeHeader = "X-Relay-Envelope"

type RelayConfig struct {
	Name     string
	Endpoint string
	// Headers are sent with every relay call, typically the relay's own
	// auth key. They never reach the upstream courier API.
	Headers reqspec.PairList
	Timeout time.Duration
}

// Relay executes a descriptor by POSTing it to an intermediary that
// re-issues the call server-side. The envelope body IS the descriptor's
// JSON form; the relay answers with either the raw upstream body or an
// {error:true,...} envelope describing the upstream failure, telling the
// two apart with the X-Relay-Envelope header.
type Relay struct {
	name      string
	endpoint  string
	headers   reqspec.PairList
	client    *http.Client
	telemetry telemetry.Instrumenter
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errdef.New(errdef.CodeValidation, "relay endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errdef.Wrap(errdef.CodeValidation, err, "parse relay endpoint")
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "relay"
	}

	// The relay endpoint is fixed, so it gets a pinned transport with a
	// tighter dial timeout than ad-hoc direct calls. The custom dialer
	// disables automatic h2, re-enable it explicitly.
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "enable http2 for relay")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRelayTimeout
	}

	return &Relay{
		name:      name,
		endpoint:  endpoint,
		headers:   cfg.Headers.Clone(),
		client:    &http.Client{Transport: tr, Timeout: timeout},
		telemetry: telemetry.Noop(),
	}, nil
}

func (r *Relay) SetTelemetry(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	r.telemetry = instr
}

func (r *Relay) Name() string {
	return r.name
}

func (r *Relay) RoundTrip(
	ctx context.Context,
	d *reqspec.Descriptor,
	opts Options,
) (resp *Response, err error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "encode relay envelope")
	}

	timeout := opts.Timeout
	if d.Options.Timeout > 0 {
		timeout = d.Options.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "build relay request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for _, pair := range r.headers {
		httpReq.Header.Set(pair.Key, pair.Value)
	}

	spanCtx, requestSpan := r.telemetry.Start(httpReq.Context(), telemetry.RequestStart{
		Descriptor:  d,
		HTTPRequest: httpReq,
		Transport:   r.name,
	})
	httpReq = httpReq.WithContext(spanCtx)

	defer func() {
		if requestSpan == nil {
			return
		}
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		requestSpan.End(telemetry.RequestResult{Err: err, StatusCode: statusCode})
	}()

	start := time.Now()
	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "relay %s", r.name)
	}

	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeTransport, closeErr, "close relay response body")
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "read relay response body")
	}
	duration := time.Since(start)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, errdef.New(
			errdef.CodeTransport,
			"relay %s returned %s",
			r.name,
			httpResp.Status,
		)
	}

	if env, ok := decodeRelayEnvelope(httpResp.Header, body); ok {
		return envelopeResponse(env, httpResp, duration, r.name), nil
	}

	resp = &Response{
		Status:       httpResp.Status,
		StatusCode:   httpResp.StatusCode,
		Proto:        httpResp.Proto,
		Headers:      httpResp.Header.Clone(),
		Body:         body,
		Duration:     duration,
		EffectiveURL: d.URL,
		Via:          r.name,
	}
	return resp, nil
}

type relayErrorEnvelope struct {
	Error      bool            `json:"error"`
	Status     int             `json:"status"`
	StatusText string          `json:"statusText"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// decodeRelayEnvelope spots an error envelope in a 2xx relay answer. A
// relay that sets the marker header settles it outright: "0" means a
// courier body forwarded raw, even one that happens to look like an
// envelope. Without the header the body shape decides.
func decodeRelayEnvelope(header http.Header, body []byte) (relayErrorEnvelope, bool) {
	switch header.Get(RelayEnvelopeHeader) {
	case "", "1":
		return decodeRelayError(body)
	default:
		return relayErrorEnvelope{}, false
	}
}

func decodeRelayError(body []byte) (relayErrorEnvelope, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return relayErrorEnvelope{}, false
	}
	var env relayErrorEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return relayErrorEnvelope{}, false
	}
	return env, env.Error
}

// envelopeResponse turns the relay's error envelope into a regular
// response carrying the upstream status, so classification treats relayed
// and direct failures the same way.
func envelopeResponse(
	env relayErrorEnvelope,
	relayResp *http.Response,
	duration time.Duration,
	via string,
) *Response {
	status := env.Status
	if status <= 0 {
		status = http.StatusBadGateway
	}
	statusText := strings.TrimSpace(env.StatusText)
	if statusText == "" {
		statusText = http.StatusText(status)
	}

	payload := map[string]any{}
	if msg := strings.TrimSpace(env.Message); msg != "" {
		payload["message"] = msg
	}
	if len(env.Details) > 0 {
		payload["details"] = json.RawMessage(env.Details)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		body = nil
	}

	return &Response{
		Status:     fmt.Sprintf("%d %s", status, statusText),
		StatusCode: status,
		Proto:      relayResp.Proto,
		Headers:    relayResp.Header.Clone(),
		Body:       body,
		Duration:   duration,
		Via:        via,
	}
}
