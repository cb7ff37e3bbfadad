package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

const expirySlack = 30 * time.Second

// CachedToken is one minted token held for reuse. Process-lifetime only,
// never persisted.
type CachedToken struct {
	Token     string
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Treats tokens expiring in the next 30 seconds as already expired so a
// request never goes out with a token that dies in flight.
func (t CachedToken) valid() bool {
	if t.Token == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(expirySlack).Before(t.ExpiresAt)
}

// TokenCache holds minted tokens keyed by minting recipe and deduplicates
// concurrent mints for the same key: if another goroutine is already
// fetching, callers wait on its done channel instead of hitting the token
// endpoint twice.
type TokenCache struct {
	mu       sync.Mutex
	tokens   map[string]CachedToken
	inflight map[string]*mintCall
}

type mintCall struct {
	done  chan struct{}
	token CachedToken
	err   error
}

func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens:   make(map[string]CachedToken),
		inflight: make(map[string]*mintCall),
	}
}

func (c *TokenCache) get(key string) (CachedToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.tokens[key]
	return token, ok
}

func (c *TokenCache) store(key string, token CachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		c.tokens = make(map[string]CachedToken)
	}
	c.tokens[key] = token
}

// Flush drops every cached token. Credential edits call this so stale
// tokens never outlive the secrets that minted them.
func (c *TokenCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = make(map[string]CachedToken)
}

// claim registers an in-flight mint for key. When another mint already
// holds the key, the second return is that call and the bool is false.
func (c *TokenCache) claim(key string) (*mintCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pending, ok := c.inflight[key]; ok {
		return pending, false
	}
	call := &mintCall{done: make(chan struct{})}
	if c.inflight == nil {
		c.inflight = make(map[string]*mintCall)
	}
	c.inflight[key] = call
	return call, true
}

func (c *TokenCache) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// cacheKey digests the whole minting recipe. Two requests share a token
// only when endpoint, method, headers, body and credentials all match; the
// digest keeps secrets out of map keys.
func cacheKey(courierID string, spec reqspec.AuthSpec) string {
	mint := spec.Mint
	parts := []string{
		strings.TrimSpace(courierID),
		strings.TrimSpace(mint.TokenURL),
		strings.ToUpper(strings.TrimSpace(mint.Method)),
		strings.TrimSpace(mint.TokenPath),
		strings.TrimSpace(mint.Body),
		spec.Username,
		spec.Password,
	}
	headers := make([]string, 0, len(mint.Headers))
	for _, pair := range mint.Headers {
		headers = append(headers, pair.Key+"="+pair.Value)
	}
	sort.Strings(headers)
	parts = append(parts, headers...)

	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
