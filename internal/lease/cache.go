// Package lease caches short-lived signed access grants to stored artifacts.
// Presigned URLs are relatively expensive to mint and expire server-side, so
// the cache reuses a grant while it is comfortably fresh and re-issues it
// before a client could be handed a URL that dies mid-playback.
//
// Every entry carries the identity it was issued for. Switching the active
// identity sweeps all entries belonging to other identities, so a long-lived
// client session can never serve one user's private-artifact lease to the
// next user.
package lease

import (
	"context"
	"sync"
	"time"
)

// Issuer mints a fresh signed URL for an object key. Implemented by the
// storage signer; narrow on purpose.
type Issuer interface {
	SignGet(key string, ttl time.Duration) (string, error)
}

// entry is one cached grant.
type entry struct {
	url      string
	issuedAt time.Time
	owner    string
}

// Cache reuses signed URLs while now - issuedAt < TTL - SafetyMargin.
// Safe for concurrent use.
type Cache struct {
	issuer Issuer

	// TTL is the server-side expiry of issued URLs.
	TTL time.Duration
	// SafetyMargin is subtracted from TTL when judging freshness, so a URL
	// is refreshed well before it actually expires.
	SafetyMargin time.Duration

	mu      sync.Mutex
	entries map[string]entry

	// now is an injected clock for tests.
	now func() time.Time
}

// New constructs a Cache over the given issuer. ttl must be positive; margin
// must be smaller than ttl (both enforced by config validation upstream).
func New(issuer Issuer, ttl, margin time.Duration) *Cache {
	return &Cache{
		issuer:       issuer,
		TTL:          ttl,
		SafetyMargin: margin,
		entries:      make(map[string]entry),
		now:          time.Now,
	}
}

// GetURL returns a signed URL for key on behalf of identity, reusing the
// cached grant while fresh. On a miss, a stale entry, or an entry owned by a
// different identity, a new URL is issued and the cache entry is overwritten
// with issuedAt = now.
func (c *Cache) GetURL(ctx context.Context, identity, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.owner == identity && c.fresh(e) {
		url := e.url
		c.mu.Unlock()
		return url, nil
	}
	c.mu.Unlock()

	// Issue outside the lock; signing may do real work.
	url, err := c.issuer.SignGet(key, c.TTL)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = entry{url: url, issuedAt: c.now(), owner: identity}
	c.mu.Unlock()
	return url, nil
}

// UseIdentity marks identity as the active one and sweeps every cached entry
// belonging to someone else. Call on login/switch in long-lived sessions.
func (c *Cache) UseIdentity(identity string) {
	c.mu.Lock()
	for k, e := range c.entries {
		if e.owner != identity {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Purge drops every cached grant.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of cached grants.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// fresh reports whether e may still be served. The boundary is exclusive:
// an entry aged exactly TTL - SafetyMargin is already stale.
func (c *Cache) fresh(e entry) bool {
	return c.now().Sub(e.issuedAt) < c.TTL-c.SafetyMargin
}
