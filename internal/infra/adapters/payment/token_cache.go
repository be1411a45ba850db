package payment

import (
	"context"
	"sync"
	"time"
)

// TokenStore shares an access token between replicas. Optional.
type TokenStore interface {
	GetToken(ctx context.Context) (token string, ttl time.Duration, err error)
	SetToken(ctx context.Context, token string, ttl time.Duration) error
	DelToken(ctx context.Context, token string) error
}

type tokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenCache keeps the provider bearer token until its declared expiry minus
// margin. The lock is never held while fetching, so two callers that miss at
// the same time both fetch; either token is valid and the later one is kept.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	margin time.Duration
	fetch  tokenFetcher
	shared TokenStore
	now    func() time.Time
}

func newTokenCache(fetch tokenFetcher, margin time.Duration, shared TokenStore, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{fetch: fetch, margin: margin, shared: shared, now: now}
}

// Token returns a cached token or fetches a new one.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	if c.shared != nil {
		if tok, ttl, err := c.shared.GetToken(ctx); err == nil && tok != "" && ttl > 0 {
			c.store(tok, c.now().Add(ttl))
			return tok, nil
		}
	}

	tok, ttl, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	usable := ttl - c.margin
	if usable <= 0 {
		// Too short-lived to cache; use it once.
		return tok, nil
	}
	c.store(tok, c.now().Add(usable))
	if c.shared != nil {
		_ = c.shared.SetToken(ctx, tok, usable)
	}
	return tok, nil
}

// Invalidate drops tok if it is still the cached token. A token refreshed by
// a concurrent caller in the meantime is kept.
func (c *TokenCache) Invalidate(ctx context.Context, tok string) {
	c.mu.Lock()
	if c.token == tok {
		c.token = ""
		c.expiresAt = time.Time{}
	}
	c.mu.Unlock()
	if c.shared != nil {
		_ = c.shared.DelToken(ctx, tok)
	}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) store(tok string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
	c.expiresAt = expiresAt
}
