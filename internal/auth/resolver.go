// Package auth materializes a descriptor's auth spec into concrete request
// credentials: basic and bearer headers, api keys in headers or query
// params, and minted jwt_auth tokens with an in-process cache.
package auth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
)

const (
	headerAuthorization = "Authorization"

	defaultAPIKeyHeader = "X-API-Key"
	defaultAPIKeyParam  = "api_key"
)

// RequestFunc sends a token-minting request.
type RequestFunc func(ctx context.Context, d *reqspec.Descriptor) (*transport.Response, error)

// Doer is the executor seam: minting calls ride the same transport chain
// as data calls.
type Doer interface {
	Do(ctx context.Context, d *reqspec.Descriptor) (*transport.Response, error)
}

type Resolver struct {
	source CredentialSource
	cache  *TokenCache
	do     RequestFunc
	log    *slog.Logger
}

func NewResolver(doer Doer) *Resolver {
	r := &Resolver{
		cache: NewTokenCache(),
		log:   slog.New(slog.DiscardHandler),
	}
	if doer != nil {
		r.do = doer.Do
	}
	return r
}

// SetRequestFunc overrides how mint requests are sent. Tests use this to
// answer without a network.
func (r *Resolver) SetRequestFunc(fn RequestFunc) {
	r.do = fn
}

func (r *Resolver) SetCredentialSource(source CredentialSource) {
	r.source = source
}

func (r *Resolver) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.log = logger
	}
}

// FlushTokens drops every cached token.
func (r *Resolver) FlushTokens() {
	r.cache.Flush()
}

// Resolve returns a copy of the descriptor with authentication applied.
// A pre-existing Authorization header always wins: the resolver never
// stacks a second one, so minting is skipped entirely in that case.
func (r *Resolver) Resolve(ctx context.Context, d *reqspec.Descriptor) (*reqspec.Descriptor, error) {
	if d == nil {
		return nil, errdef.New(errdef.CodeValidation, "request descriptor is required")
	}
	out := d.Clone()
	if err := r.fillStored(ctx, out); err != nil {
		return nil, err
	}

	switch out.Auth.Type {
	case "", reqspec.AuthNone:
		return out, nil

	case reqspec.AuthBasic:
		if out.Headers.HasFold(headerAuthorization) {
			return out, nil
		}
		if strings.TrimSpace(out.Auth.Username) == "" {
			return nil, errdef.New(errdef.CodeCredentials, "basic auth requires a username")
		}
		encoded := base64.StdEncoding.EncodeToString(
			[]byte(out.Auth.Username + ":" + out.Auth.Password),
		)
		out.Headers.Add(headerAuthorization, "Basic "+encoded)
		return out, nil

	case reqspec.AuthBearer, reqspec.AuthJWT:
		if out.Headers.HasFold(headerAuthorization) {
			return out, nil
		}
		token := strings.TrimSpace(out.Auth.Token)
		if token == "" {
			return nil, errdef.New(errdef.CodeCredentials, "bearer auth requires a token")
		}
		out.Headers.Add(headerAuthorization, "Bearer "+token)
		return out, nil

	case reqspec.AuthJWTMint:
		if out.Headers.HasFold(headerAuthorization) {
			return out, nil
		}
		token, err := r.mintToken(ctx, out)
		if err != nil {
			return nil, err
		}
		out.Headers.Add(headerAuthorization, token.Type+" "+token.Token)
		return out, nil

	case reqspec.AuthAPIKey:
		return applyAPIKey(out)
	}
	return nil, errdef.New(errdef.CodeValidation, "unsupported auth type %q", out.Auth.Type)
}

func (r *Resolver) fillStored(ctx context.Context, d *reqspec.Descriptor) error {
	if !d.UseStored {
		return nil
	}
	if r.source == nil {
		return errdef.New(errdef.CodeCredentials, "no credential store configured")
	}
	courierID := strings.TrimSpace(d.CourierID)
	if courierID == "" {
		return errdef.New(errdef.CodeCredentials, "stored credentials need a courier id")
	}
	creds, found, err := r.source.Lookup(ctx, courierID)
	if err != nil {
		return errdef.Wrap(errdef.CodeCredentials, err, "load credentials for %s", courierID)
	}
	if !found {
		return errdef.New(errdef.CodeCredentials, "no stored credentials for %s", courierID)
	}
	fillFromStored(&d.Auth, creds)
	return nil
}

func applyAPIKey(d *reqspec.Descriptor) (*reqspec.Descriptor, error) {
	key := strings.TrimSpace(d.Auth.Key)
	if key == "" {
		return nil, errdef.New(errdef.CodeCredentials, "api key auth requires a key value")
	}
	name := strings.TrimSpace(d.Auth.HeaderName)

	switch d.Auth.Placement {
	case reqspec.PlaceQuery:
		if name == "" {
			name = defaultAPIKeyParam
		}
		// The key may already ride the URL or the param list; adding a
		// second copy would change what the courier receives.
		if hasQueryParam(d, name) {
			return d, nil
		}
		d.QueryParams.Add(name, key)
	default:
		if name == "" {
			name = defaultAPIKeyHeader
		}
		if d.Headers.HasFold(name) {
			return d, nil
		}
		d.Headers.Add(name, key)
	}
	return d, nil
}

func hasQueryParam(d *reqspec.Descriptor, name string) bool {
	for _, pair := range d.QueryParams {
		if strings.EqualFold(pair.Key, name) {
			return true
		}
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return false
	}
	for key := range u.Query() {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

func (r *Resolver) mintToken(ctx context.Context, d *reqspec.Descriptor) (CachedToken, error) {
	if d.Auth.Mint == nil || strings.TrimSpace(d.Auth.Mint.TokenURL) == "" {
		return CachedToken{}, errdef.New(errdef.CodeAuth, "jwt_auth requires a token endpoint")
	}
	key := cacheKey(d.CourierID, d.Auth)

	if token, ok := r.cache.get(key); ok && token.valid() {
		return token, nil
	}

	pending, owned := r.cache.claim(key)
	if !owned {
		select {
		case <-ctx.Done():
			return CachedToken{}, ctx.Err()
		case <-pending.done:
			if pending.err != nil {
				return CachedToken{}, pending.err
			}
			return pending.token, nil
		}
	}

	token, err := r.obtainToken(ctx, key, d)
	pending.token = token
	pending.err = err
	close(pending.done)
	r.cache.release(key)

	if err != nil {
		return CachedToken{}, err
	}
	return token, nil
}

func (r *Resolver) obtainToken(ctx context.Context, key string, d *reqspec.Descriptor) (CachedToken, error) {
	// Another goroutine may have minted while this one queued for the claim.
	if token, ok := r.cache.get(key); ok && token.valid() {
		return token, nil
	}
	if r.do == nil {
		return CachedToken{}, errdef.New(errdef.CodeAuth, "no transport available to mint tokens")
	}

	mintReq := buildMintDescriptor(d)
	r.log.Debug("minting token",
		"courier", d.CourierID,
		"endpoint", mintReq.URL,
	)

	resp, err := r.do(ctx, mintReq)
	if err != nil {
		return CachedToken{}, errdef.Wrap(errdef.CodeAuth, err, "mint token")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CachedToken{}, errdef.New(errdef.CodeAuth, "token request failed: %s", resp.Status)
	}

	raw, responseTTL, err := extractToken(resp.Body, d.Auth.Mint.TokenPath)
	if err != nil {
		return CachedToken{}, err
	}

	issued := time.Now()
	token := CachedToken{
		Token:     raw,
		Type:      "Bearer",
		IssuedAt:  issued,
		ExpiresAt: tokenExpiry(raw, responseTTL, d.Auth.Mint.ExpiresIn, issued),
	}
	r.cache.store(key, token)
	return token, nil
}
