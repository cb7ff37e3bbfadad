package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/extract"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

const (
	// DefaultSizeCeiling bounds how many payload bytes a result may carry
	// before the body is dropped in favor of a truncated sample.
	DefaultSizeCeiling int64 = 5.5 * 1024 * 1024

	// DefaultMaxPages caps automatic pagination per execution.
	DefaultMaxPages = 5

	truncateSampleLen = 100
	rawSampleLen      = 2048
)

// Transport is one way of getting a descriptor onto the wire. Implementations
// return an error only when no upstream answer exists at all; an upstream
// failure status is still a response.
type Transport interface {
	Name() string
	RoundTrip(ctx context.Context, d *reqspec.Descriptor, opts Options) (*Response, error)
}

// Direct sends the request straight from this process.
type Direct struct {
	client *Client
}

func NewDirect(client *Client) *Direct {
	if client == nil {
		client = NewClient()
	}
	return &Direct{client: client}
}

func (t *Direct) Name() string {
	return "direct"
}

func (t *Direct) RoundTrip(
	ctx context.Context,
	d *reqspec.Descriptor,
	opts Options,
) (*Response, error) {
	resp, err := t.client.Do(ctx, d, opts)
	if resp != nil {
		resp.Via = t.Name()
	}
	return resp, err
}

// Result is the raw material handed to classification: the winning response
// plus whatever the executor had to do to it on the way.
type Result struct {
	Response *Response

	// TooLarge marks a payload that crossed the size ceiling. The body is
	// dropped; Truncated keeps a sample and ApproxSize the original length.
	TooLarge   bool
	ApproxSize int
	Truncated  any

	// Pages counts how many pages are merged into the body. NextPage names
	// the page that was not fetched, empty when the data is complete.
	Pages       int
	NextPage    string
	PageWarning string
}

// Executor runs a descriptor through an ordered transport chain. The first
// transport that produces a definitive answer wins; a server-side failure
// (5xx) or a connection error moves on to the next transport.
type Executor struct {
	transports  []Transport
	sizeCeiling int64
	maxPages    int
	rules       []extract.Rule
	logger      *slog.Logger
	base        Options
}

func NewExecutor(transports ...Transport) *Executor {
	return &Executor{
		transports:  transports,
		sizeCeiling: DefaultSizeCeiling,
		maxPages:    DefaultMaxPages,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// SetSizeCeiling overrides the payload byte ceiling. Zero or negative
// disables the check.
func (e *Executor) SetSizeCeiling(n int64) {
	e.sizeCeiling = n
}

// SetMaxPages overrides how many pages one execution may fetch.
func (e *Executor) SetMaxPages(n int) {
	if n > 0 {
		e.maxPages = n
	}
}

// SetRules overrides the record-array extraction rules used for merging
// pages and sampling oversized payloads.
func (e *Executor) SetRules(rules []extract.Rule) {
	e.rules = rules
}

func (e *Executor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetBaseOptions sets transport options applied to every execution unless
// the descriptor overrides them.
func (e *Executor) SetBaseOptions(opts Options) {
	e.base = opts
}

// Execute sends the descriptor through the transport chain and applies the
// size ceiling and pagination policies to whatever comes back.
func (e *Executor) Execute(ctx context.Context, d *reqspec.Descriptor) (*Result, error) {
	if err := CheckTargetURL(d.URL); err != nil {
		return nil, err
	}

	resp, via, err := e.roundTrip(ctx, d)
	if err != nil {
		return nil, err
	}

	result := &Result{Response: resp, Pages: 1}
	if e.capOversized(result) {
		return result, nil
	}
	if d.Paginate && resp.StatusCode < 400 {
		e.paginate(ctx, via, d, result)
	}
	return result, nil
}

// Do sends the descriptor through the chain without the payload policies.
// Token minting and other control calls go through here so they share the
// fallback behavior of data calls.
func (e *Executor) Do(ctx context.Context, d *reqspec.Descriptor) (*Response, error) {
	if err := CheckTargetURL(d.URL); err != nil {
		return nil, err
	}
	resp, _, err := e.roundTrip(ctx, d)
	return resp, err
}

func (e *Executor) roundTrip(
	ctx context.Context,
	d *reqspec.Descriptor,
) (*Response, Transport, error) {
	if len(e.transports) == 0 {
		return nil, nil, errdef.New(errdef.CodeTransport, "no transports configured")
	}

	var (
		lastResp *Response
		lastVia  Transport
		lastErr  error
	)
	for _, t := range e.transports {
		resp, err := t.RoundTrip(ctx, d, e.base)
		if err != nil {
			lastErr = err
			e.logger.Warn("transport failed",
				"transport", t.Name(),
				"url", d.URL,
				"error", err,
			)
			continue
		}
		if resp.StatusCode >= 500 {
			e.logger.Warn("transport got a server error, trying next",
				"transport", t.Name(),
				"url", d.URL,
				"status", resp.StatusCode,
			)
			lastResp = resp
			lastVia = t
			continue
		}
		return resp, t, nil
	}

	// A 5xx answer beats a connection error: the caller still gets the
	// upstream's own words about what went wrong.
	if lastResp != nil {
		return lastResp, lastVia, nil
	}
	return nil, nil, errdef.Wrap(errdef.CodeTransport, lastErr, "all transports failed")
}

// capOversized drops bodies beyond the ceiling, keeping a truncated sample.
// Reports whether the cap fired.
func (e *Executor) capOversized(result *Result) bool {
	if e.sizeCeiling <= 0 {
		return false
	}
	body := result.Response.Body
	if int64(len(body)) <= e.sizeCeiling {
		return false
	}

	result.TooLarge = true
	result.ApproxSize = len(body)
	if payload, err := decodeJSONPayload(body); err == nil {
		result.Truncated = extract.Truncate(payload, e.rules, truncateSampleLen)
	} else {
		sample := body
		if len(sample) > rawSampleLen {
			sample = sample[:rawSampleLen]
		}
		result.Truncated = string(sample)
	}
	result.Response.Body = nil

	e.logger.Warn("payload exceeds size ceiling, body dropped",
		"url", result.Response.EffectiveURL,
		"bytes", result.ApproxSize,
		"ceiling", e.sizeCeiling,
	)
	return true
}

// nextRef points at the page after the current one. Either the payload names
// it outright (link) or a boolean marker says more exist and the page counter
// drives the fetch.
type nextRef struct {
	link   string
	byPage bool
}

var (
	nextLinkPaths   = []string{"next_page_url", "pagination.next_page", "meta.pagination.next"}
	moreMarkerPaths = []string{"hasMore", "has_more"}
)

func nextPageRef(payload any) (nextRef, bool) {
	for _, path := range nextLinkPaths {
		v, ok := extract.Lookup(payload, path)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return nextRef{link: strings.TrimSpace(s)}, true
		}
	}
	for _, path := range moreMarkerPaths {
		v, ok := extract.Lookup(payload, path)
		if !ok {
			continue
		}
		if b, ok := v.(bool); ok && b {
			return nextRef{byPage: true}, true
		}
	}
	return nextRef{}, false
}

func refString(ref nextRef, page int) string {
	if ref.link != "" {
		return ref.link
	}
	return strconv.Itoa(page)
}

// NextPageMarker reports the next-page reference a decoded payload carries,
// for callers that inspect pagination without fetching. Boolean has-more
// markers read as page "2".
func NextPageMarker(payload any) (string, bool) {
	ref, ok := nextPageRef(payload)
	if !ok {
		return "", false
	}
	return refString(ref, 2), true
}

// applyNextPage rewrites the descriptor to request the referenced page. A
// full URL replaces the target outright, a path is resolved against it, and
// anything else becomes the page parameter.
func applyNextPage(d *reqspec.Descriptor, ref nextRef, page int) {
	switch {
	case ref.byPage:
		setPageParam(d, strconv.Itoa(page))
	case strings.Contains(ref.link, "://"):
		d.URL = ref.link
		d.QueryParams = nil
	case strings.HasPrefix(ref.link, "/"):
		base, baseErr := url.Parse(d.URL)
		rel, relErr := url.Parse(ref.link)
		if baseErr == nil && relErr == nil {
			d.URL = base.ResolveReference(rel).String()
			d.QueryParams = nil
			return
		}
		setPageParam(d, ref.link)
	default:
		setPageParam(d, ref.link)
	}
}

func setPageParam(d *reqspec.Descriptor, value string) {
	if u, err := url.Parse(d.URL); err == nil {
		q := u.Query()
		if _, ok := q["page"]; ok {
			q.Set("page", value)
			u.RawQuery = q.Encode()
			d.URL = u.String()
			return
		}
	}
	for i, pair := range d.QueryParams {
		if pair.Key == "page" {
			d.QueryParams[i].Value = value
			return
		}
	}
	d.QueryParams = append(d.QueryParams, reqspec.Pair{Key: "page", Value: value})
}

// paginate follows next-page markers on the same transport that answered
// page one, appending each page's record array into the first body. Links
// rewrite the target, so every page goes back through the private-host
// check before dispatch. It stops at the page cap, at the size ceiling, or
// at the first page that cannot be fetched or merged, recording why in the
// result.
func (e *Executor) paginate(
	ctx context.Context,
	via Transport,
	first *reqspec.Descriptor,
	result *Result,
) {
	payload, err := decodeJSONPayload(result.Response.Body)
	if err != nil {
		return
	}
	ref, ok := nextPageRef(payload)
	if !ok {
		return
	}
	records, path, hasRecords := extract.FirstArray(payload, e.rules)
	if !hasRecords {
		result.NextPage = refString(ref, 2)
		return
	}

	d := first.Clone()
	for page := 2; result.Pages < e.maxPages; page++ {
		applyNextPage(d, ref, page)

		if err := CheckTargetURL(d.URL); err != nil {
			result.NextPage = refString(ref, page)
			result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: %v", result.Pages, err)
			return
		}

		resp, err := via.RoundTrip(ctx, d, e.base)
		if err != nil {
			result.NextPage = refString(ref, page)
			result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: %v", result.Pages, err)
			return
		}
		if resp.StatusCode >= 400 {
			result.NextPage = refString(ref, page)
			result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: page %d returned %s", result.Pages, page, resp.Status)
			return
		}
		pagePayload, err := decodeJSONPayload(resp.Body)
		if err != nil {
			result.NextPage = refString(ref, page)
			result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: page %d is not valid JSON", result.Pages, page)
			return
		}
		pageRecords, _, ok := extract.FirstArray(pagePayload, e.rules)
		if !ok {
			result.NextPage = refString(ref, page)
			result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: page %d carries no record array", result.Pages, page)
			return
		}

		combined := make([]any, 0, len(records)+len(pageRecords))
		combined = append(combined, records...)
		combined = append(combined, pageRecords...)

		var candidate any
		if path == "" {
			candidate = combined
		} else {
			if !extract.ReplacePath(payload, path, combined) {
				result.NextPage = refString(ref, page)
				result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: merge path %q vanished", result.Pages, path)
				return
			}
			candidate = payload
		}
		merged, err := json.Marshal(candidate)
		if err != nil {
			if path != "" {
				extract.ReplacePath(payload, path, records)
			}
			result.NextPage = refString(ref, page)
			result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: %v", result.Pages, err)
			return
		}
		if e.sizeCeiling > 0 && int64(len(merged)) > e.sizeCeiling {
			if path != "" {
				extract.ReplacePath(payload, path, records)
			}
			result.NextPage = refString(ref, page)
			result.PageWarning = fmt.Sprintf("pagination stopped after %d pages: merged payload would exceed %d bytes", result.Pages, e.sizeCeiling)
			return
		}

		records = combined
		if path == "" {
			payload = candidate
		}
		result.Response.Body = merged
		result.Pages++

		ref, ok = nextPageRef(pagePayload)
		if !ok {
			return
		}
	}

	result.NextPage = refString(ref, result.Pages+1)
	result.PageWarning = fmt.Sprintf("stopped after %d pages, more data remains", result.Pages)
}

func decodeJSONPayload(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
