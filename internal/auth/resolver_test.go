package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
)

func tokenResponse(status int, body string) *transport.Response {
	return &transport.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Headers:    http.Header{},
		Body:       []byte(body),
	}
}

func mintDescriptor() *reqspec.Descriptor {
	return &reqspec.Descriptor{
		URL:       "https://api.example.com/v1/shipments",
		Method:    http.MethodGet,
		Intent:    reqspec.IntentFetchData,
		CourierID: "courier-7",
		Auth: reqspec.AuthSpec{
			Type:     reqspec.AuthJWTMint,
			Username: "ops",
			Password: "secret",
			Mint: &reqspec.MintSpec{
				TokenURL: "https://auth.example.com/token",
			},
		},
	}
}

func makeJWT(t *testing.T, exp int64) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(fmt.Sprintf(`{"sub":"ops","exp":%d}`, exp)),
	)
	return header + "." + payload + ".sig"
}

type stubSource struct {
	creds map[string]Credentials
	err   error
}

func (s *stubSource) Lookup(_ context.Context, courierID string) (Credentials, bool, error) {
	if s.err != nil {
		return Credentials{}, false, s.err
	}
	creds, ok := s.creds[courierID]
	return creds, ok, nil
}

func TestResolveBasicAuth(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL:  "https://api.example.com",
		Auth: reqspec.AuthSpec{Type: reqspec.AuthBasic, Username: "ops", Password: "s3cret"},
	}

	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("ops:s3cret"))
	got, _ := resolved.Headers.GetFold("Authorization")
	if got != expected {
		t.Fatalf("expected basic header, got %q", got)
	}
	if len(d.Headers) != 0 {
		t.Fatalf("expected input descriptor untouched, got headers %v", d.Headers)
	}
}

func TestResolveBasicRequiresUsername(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL:  "https://api.example.com",
		Auth: reqspec.AuthSpec{Type: reqspec.AuthBasic, Password: "only-password"},
	}
	_, err := r.Resolve(context.Background(), d)
	if err == nil {
		t.Fatalf("expected error for missing username")
	}
	if errdef.CodeOf(err) != errdef.CodeCredentials {
		t.Fatalf("expected credentials code, got %s", errdef.CodeOf(err))
	}
}

func TestResolveBearerToken(t *testing.T) {
	r := NewResolver(nil)
	for _, authType := range []reqspec.AuthType{reqspec.AuthBearer, reqspec.AuthJWT} {
		d := &reqspec.Descriptor{
			URL:  "https://api.example.com",
			Auth: reqspec.AuthSpec{Type: authType, Token: "tok-123"},
		}
		resolved, err := r.Resolve(context.Background(), d)
		if err != nil {
			t.Fatalf("resolve %s: %v", authType, err)
		}
		got, _ := resolved.Headers.GetFold("Authorization")
		if got != "Bearer tok-123" {
			t.Fatalf("expected bearer header for %s, got %q", authType, got)
		}
	}
}

func TestResolveKeepsExistingAuthorization(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL:     "https://api.example.com",
		Headers: reqspec.PairList{{Key: "Authorization", Value: "Custom abc"}},
		Auth:    reqspec.AuthSpec{Type: reqspec.AuthBearer, Token: "tok-123"},
	}

	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	count := 0
	for _, pair := range resolved.Headers {
		if pair.Key == "Authorization" {
			count++
			if pair.Value != "Custom abc" {
				t.Fatalf("expected existing header to survive, got %q", pair.Value)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one Authorization header, got %d", count)
	}
}

func TestResolveAPIKeyHeader(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL:  "https://api.example.com",
		Auth: reqspec.AuthSpec{Type: reqspec.AuthAPIKey, Key: "k-123"},
	}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := resolved.Headers.GetFold("X-API-Key")
	if got != "k-123" {
		t.Fatalf("expected default api key header, got %q", got)
	}

	d.Auth.HeaderName = "X-Courier-Token"
	resolved, err = r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve custom header: %v", err)
	}
	got, _ = resolved.Headers.GetFold("X-Courier-Token")
	if got != "k-123" {
		t.Fatalf("expected custom header name, got headers %v", resolved.Headers)
	}
}

func TestResolveAPIKeyQuery(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL: "https://api.example.com/v1/shipments",
		Auth: reqspec.AuthSpec{
			Type:      reqspec.AuthAPIKey,
			Key:       "k-456",
			Placement: reqspec.PlaceQuery,
		},
	}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := resolved.QueryParams.Get("api_key")
	if got != "k-456" {
		t.Fatalf("expected api_key query param, got %v", resolved.QueryParams)
	}
}

func TestResolveAPIKeySkipsExistingHeader(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL:     "https://api.example.com",
		Headers: reqspec.PairList{{Key: "x-api-key", Value: "already"}},
		Auth:    reqspec.AuthSpec{Type: reqspec.AuthAPIKey, Key: "k-123"},
	}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved.Headers) != 1 {
		t.Fatalf("expected no duplicate key header, got %v", resolved.Headers)
	}
}

func TestResolveAPIKeySkipsEmbeddedQuery(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL: "https://api.example.com/v1/shipments?API_KEY=original",
		Auth: reqspec.AuthSpec{
			Type:      reqspec.AuthAPIKey,
			Key:       "k-789",
			Placement: reqspec.PlaceQuery,
		},
	}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved.QueryParams) != 0 {
		t.Fatalf("expected embedded key to win, got params %v", resolved.QueryParams)
	}
}

func TestResolveMintsAndCachesToken(t *testing.T) {
	var capturedMint *reqspec.Descriptor
	var callCount int
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, d *reqspec.Descriptor) (*transport.Response, error) {
		callCount++
		capturedMint = d.Clone()
		return tokenResponse(200, `{"token":"tok-minted","expires_in":3600}`), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resolved, err := r.Resolve(ctx, mintDescriptor())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := resolved.Headers.GetFold("Authorization")
	if got != "Bearer tok-minted" {
		t.Fatalf("expected minted bearer header, got %q", got)
	}

	if capturedMint.URL != "https://auth.example.com/token" {
		t.Fatalf("unexpected mint url %q", capturedMint.URL)
	}
	if capturedMint.Method != http.MethodPost {
		t.Fatalf("expected POST mint, got %s", capturedMint.Method)
	}
	if capturedMint.Intent != reqspec.IntentGenerateToken {
		t.Fatalf("expected token intent, got %s", capturedMint.Intent)
	}
	if accept, _ := capturedMint.Headers.GetFold("Accept"); accept != "application/json" {
		t.Fatalf("expected Accept header to request json, got %q", accept)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(capturedMint.Body.Text), &payload); err != nil {
		t.Fatalf("unmarshal mint body: %v", err)
	}
	if payload["username"] != "ops" || payload["password"] != "secret" {
		t.Fatalf("expected credentials in mint body, got %v", payload)
	}

	if _, err := r.Resolve(ctx, mintDescriptor()); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if callCount != 1 {
		t.Fatalf("expected cached token reuse, calls=%d", callCount)
	}
}

func TestResolveMintFormBody(t *testing.T) {
	var capturedBody string
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, d *reqspec.Descriptor) (*transport.Response, error) {
		capturedBody = d.Body.Text
		return tokenResponse(200, `{"access_token":"tok-form"}`), nil
	})

	d := mintDescriptor()
	d.Auth.Mint.Headers = reqspec.PairList{
		{Key: "Content-Type", Value: "application/x-www-form-urlencoded"},
	}
	if _, err := r.Resolve(context.Background(), d); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	values, err := url.ParseQuery(capturedBody)
	if err != nil {
		t.Fatalf("parse form body: %v", err)
	}
	if values.Get("username") != "ops" || values.Get("password") != "secret" {
		t.Fatalf("expected form credentials, got %q", capturedBody)
	}
}

func TestResolveMintCustomBodyPassesThrough(t *testing.T) {
	var capturedBody string
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, d *reqspec.Descriptor) (*transport.Response, error) {
		capturedBody = d.Body.Text
		return tokenResponse(200, `{"token":"tok-custom"}`), nil
	})

	d := mintDescriptor()
	d.Auth.Mint.Body = `{"client":"console","grant":"password"}`
	if _, err := r.Resolve(context.Background(), d); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if capturedBody != d.Auth.Mint.Body {
		t.Fatalf("expected configured body to pass through, got %q", capturedBody)
	}
}

func TestResolveMintExplicitPath(t *testing.T) {
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		return tokenResponse(200, `{"data":{"jwt":"tok-nested"},"token":"decoy"}`), nil
	})

	d := mintDescriptor()
	d.Auth.Mint.TokenPath = "data.jwt"
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := resolved.Headers.GetFold("Authorization")
	if got != "Bearer tok-nested" {
		t.Fatalf("expected token from configured path, got %q", got)
	}
}

func TestResolveMintExplicitPathMissing(t *testing.T) {
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		return tokenResponse(200, `{"access_token":"tok-present-elsewhere"}`), nil
	})

	d := mintDescriptor()
	d.Auth.Mint.TokenPath = "data.jwt"
	_, err := r.Resolve(context.Background(), d)
	if err == nil {
		t.Fatalf("expected strict path failure")
	}
	if errdef.CodeOf(err) != errdef.CodeAuth {
		t.Fatalf("expected auth code, got %s", errdef.CodeOf(err))
	}
}

func TestResolveMintFailureStatus(t *testing.T) {
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		return tokenResponse(401, `{"message":"bad credentials"}`), nil
	})

	_, err := r.Resolve(context.Background(), mintDescriptor())
	if err == nil {
		t.Fatalf("expected mint failure")
	}
	if errdef.CodeOf(err) != errdef.CodeAuth {
		t.Fatalf("expected auth code, got %s", errdef.CodeOf(err))
	}
}

func TestResolveMintExpiredTokenRemints(t *testing.T) {
	var callCount int
	r := NewResolver(nil)
	expired := makeJWT(t, time.Now().Add(-time.Minute).Unix())
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		callCount++
		return tokenResponse(200, fmt.Sprintf(`{"token":"%s"}`, expired)), nil
	})

	if _, err := r.Resolve(context.Background(), mintDescriptor()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := r.Resolve(context.Background(), mintDescriptor()); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if callCount != 2 {
		t.Fatalf("expected expired token to be reminted, calls=%d", callCount)
	}
}

func TestResolveMintJWTExpiryDrivesCache(t *testing.T) {
	var callCount int
	r := NewResolver(nil)
	fresh := makeJWT(t, time.Now().Add(2*time.Hour).Unix())
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		callCount++
		return tokenResponse(200, fmt.Sprintf(`{"token":"%s"}`, fresh)), nil
	})

	if _, err := r.Resolve(context.Background(), mintDescriptor()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := r.Resolve(context.Background(), mintDescriptor()); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if callCount != 1 {
		t.Fatalf("expected jwt expiry to keep the token cached, calls=%d", callCount)
	}
}

func TestResolveMintSkipsWithExistingHeader(t *testing.T) {
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		t.Errorf("mint should not run when Authorization already present")
		return nil, errors.New("unreachable")
	})

	d := mintDescriptor()
	d.Headers = reqspec.PairList{{Key: "Authorization", Value: "Bearer pasted"}}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := resolved.Headers.GetFold("Authorization")
	if got != "Bearer pasted" {
		t.Fatalf("expected pasted header to survive, got %q", got)
	}
}

func TestResolveMintDeduplicatesConcurrent(t *testing.T) {
	var mu sync.Mutex
	callCount := 0
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		mu.Lock()
		callCount++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return tokenResponse(200, `{"token":"shared","expires_in":600}`), nil
	})

	d := mintDescriptor()
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Resolve(context.Background(), d)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if callCount != 1 {
		t.Fatalf("expected concurrent mints to share one call, got %d", callCount)
	}
}

func TestResolveFlushTokensForcesRemint(t *testing.T) {
	var callCount int
	r := NewResolver(nil)
	r.SetRequestFunc(func(_ context.Context, _ *reqspec.Descriptor) (*transport.Response, error) {
		callCount++
		return tokenResponse(200, `{"token":"tok","expires_in":3600}`), nil
	})

	if _, err := r.Resolve(context.Background(), mintDescriptor()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	r.FlushTokens()
	if _, err := r.Resolve(context.Background(), mintDescriptor()); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if callCount != 2 {
		t.Fatalf("expected flush to force a new mint, calls=%d", callCount)
	}
}

func TestResolveStoredCredentials(t *testing.T) {
	r := NewResolver(nil)
	r.SetCredentialSource(&stubSource{creds: map[string]Credentials{
		"courier-7": {Username: "stored-user", Password: "stored-pass"},
	}})

	d := &reqspec.Descriptor{
		URL:       "https://api.example.com",
		CourierID: "courier-7",
		UseStored: true,
		Auth:      reqspec.AuthSpec{Type: reqspec.AuthBasic},
	}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("stored-user:stored-pass"))
	got, _ := resolved.Headers.GetFold("Authorization")
	if got != expected {
		t.Fatalf("expected stored credentials applied, got %q", got)
	}
}

func TestResolveStoredCredentialsInlineWins(t *testing.T) {
	r := NewResolver(nil)
	r.SetCredentialSource(&stubSource{creds: map[string]Credentials{
		"courier-7": {Username: "stored-user", Password: "stored-pass"},
	}})

	d := &reqspec.Descriptor{
		URL:       "https://api.example.com",
		CourierID: "courier-7",
		UseStored: true,
		Auth: reqspec.AuthSpec{
			Type:     reqspec.AuthBasic,
			Username: "inline-user",
		},
	}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("inline-user:stored-pass"))
	got, _ := resolved.Headers.GetFold("Authorization")
	if got != expected {
		t.Fatalf("expected inline username to win, got %q", got)
	}
}

func TestResolveStoredCredentialsMiss(t *testing.T) {
	r := NewResolver(nil)
	r.SetCredentialSource(&stubSource{})

	d := &reqspec.Descriptor{
		URL:       "https://api.example.com",
		CourierID: "courier-404",
		UseStored: true,
		Auth:      reqspec.AuthSpec{Type: reqspec.AuthBasic},
	}
	_, err := r.Resolve(context.Background(), d)
	if err == nil {
		t.Fatalf("expected miss to fail")
	}
	if errdef.CodeOf(err) != errdef.CodeCredentials {
		t.Fatalf("expected credentials code, got %s", errdef.CodeOf(err))
	}
}

func TestResolveNoneLeavesDescriptorAlone(t *testing.T) {
	r := NewResolver(nil)
	d := &reqspec.Descriptor{
		URL:     "https://api.example.com",
		Headers: reqspec.PairList{{Key: "X-Trace", Value: "t-1"}},
	}
	resolved, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved.Headers) != 1 {
		t.Fatalf("expected headers unchanged, got %v", resolved.Headers)
	}
}
