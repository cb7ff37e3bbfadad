// Package transport executes request descriptors against courier APIs. A
// descriptor first goes out directly, then through one or two relay
// endpoints when the direct attempt fails; responses above the size ceiling
// are truncated to a sample instead of returned whole.
package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/telemetry"
)

type Options struct {
	Timeout            time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
}

const defaultTimeout = 30 * time.Second

type Client struct {
	jar         http.CookieJar
	httpFactory func(Options) (*http.Client, error)
	telemetry   telemetry.Instrumenter
}

func NewClient() *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{jar: jar, telemetry: telemetry.Noop()}
	c.httpFactory = c.buildHTTPClient
	return c
}

// SetHTTPFactory allows callers to override how http.Client instances are created.
// Passing nil restores the default factory.
func (c *Client) SetHTTPFactory(factory func(Options) (*http.Client, error)) {
	c.httpFactory = factory
}

// SetTelemetry configures the instrumenter used to emit OpenTelemetry spans. Passing nil restores the no-op implementation.
func (c *Client) SetTelemetry(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	c.telemetry = instr
}

type Response struct {
	Status       string
	StatusCode   int
	Proto        string
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	EffectiveURL string
	Via          string
}

func (c *Client) resolveHTTPFactory() func(Options) (*http.Client, error) {
	if c == nil {
		return nil
	}
	if c.httpFactory != nil {
		return c.httpFactory
	}
	return c.buildHTTPClient
}

func (c *Client) Do(
	ctx context.Context,
	d *reqspec.Descriptor,
	opts Options,
) (resp *Response, err error) {
	httpReq, err := BuildHTTPRequest(ctx, d)
	if err != nil {
		return nil, err
	}

	factory := c.resolveHTTPFactory()
	if factory == nil {
		return nil, errdef.New(errdef.CodeHTTP, "http client factory unavailable")
	}

	effectiveOpts := applyDescriptorOptions(opts, d.Options)
	client, err := factory(effectiveOpts)
	if err != nil {
		return nil, err
	}

	spanCtx, requestSpan := c.telemetry.Start(httpReq.Context(), telemetry.RequestStart{
		Descriptor:  d,
		HTTPRequest: httpReq,
		Transport:   "direct",
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
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "perform request")
	}

	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeHTTP, closeErr, "close response body")
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "read response body")
	}

	resp = &Response{
		Status:       httpResp.Status,
		StatusCode:   httpResp.StatusCode,
		Proto:        httpResp.Proto,
		Headers:      httpResp.Header.Clone(),
		Body:         body,
		Duration:     time.Since(start),
		EffectiveURL: effURL(httpReq, httpResp),
	}
	return resp, nil
}

// BuildHTTPRequest materializes a descriptor into an outbound request:
// query params merged into the URL, headers applied in order, the body
// content type derived when no explicit header names one. Auth is expected
// to be resolved into headers or query params already.
func BuildHTTPRequest(ctx context.Context, d *reqspec.Descriptor) (*http.Request, error) {
	if d == nil {
		return nil, errdef.New(errdef.CodeHTTP, "descriptor is nil")
	}

	target := strings.TrimSpace(d.URL)
	if target == "" {
		return nil, errdef.New(errdef.CodeValidation, "request url is empty")
	}
	target = reqspec.AppendQuery(target, d.QueryParams)

	method := strings.ToUpper(strings.TrimSpace(d.Method))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if !d.Body.IsEmpty() {
		bodyReader = strings.NewReader(d.Body.Text)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}

	for _, pair := range d.Headers {
		httpReq.Header.Add(pair.Key, pair.Value)
	}
	if d.Body.MimeType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", d.Body.MimeType)
	}
	return httpReq, nil
}

func applyDescriptorOptions(opts Options, exec reqspec.ExecOptions) Options {
	effective := opts
	if exec.Timeout > 0 {
		effective.Timeout = exec.Timeout
	}
	if effective.Timeout <= 0 {
		effective.Timeout = defaultTimeout
	}
	if exec.Insecure {
		effective.InsecureSkipVerify = true
	}
	if exec.FollowRedirects {
		effective.FollowRedirects = true
	}
	return effective
}

func effURL(req *http.Request, resp *http.Response) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	if req != nil && req.URL != nil {
		return req.URL.String()
	}
	return ""
}
