package identity

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

// CachedProvider caches GetIdentity results for a short TTL. Writes through
// the provider invalidate the affected entry.
type CachedProvider struct {
	Provider
	cache   *expirable.LRU[string, Identity]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachedProvider wraps next with an LRU of size entries
func NewCachedProvider(next Provider, size int, ttl time.Duration, metrics *observability.Metrics) *CachedProvider {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedProvider{
		Provider: next,
		cache:    expirable.NewLRU[string, Identity](size, nil, ttl),
		metrics:  metrics,
	}
}

// GetIdentity returns a cached identity or loads it once for concurrent callers
func (c *CachedProvider) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	if cached, ok := c.cache.Get(id); ok {
		c.metrics.RecordCacheLookup("identity", true)
		return &cached, nil
	}
	c.metrics.RecordCacheLookup("identity", false)

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		ident, err := c.Provider.GetIdentity(ctx, id)
		if err != nil {
			return nil, err
		}
		c.cache.Add(id, *ident)
		return *ident, nil
	})
	if err != nil {
		return nil, err
	}
	ident := v.(Identity)
	return &ident, nil
}

// SetClaims writes through and drops the cached entry
func (c *CachedProvider) SetClaims(ctx context.Context, id string, claims Claims) error {
	defer c.cache.Remove(id)
	return c.Provider.SetClaims(ctx, id, claims)
}

// DeleteIdentity writes through and drops the cached entry
func (c *CachedProvider) DeleteIdentity(ctx context.Context, id string) error {
	defer c.cache.Remove(id)
	return c.Provider.DeleteIdentity(ctx, id)
}

// Invalidate drops a cached entry
func (c *CachedProvider) Invalidate(id string) {
	c.cache.Remove(id)
}

// Len returns the number of cached entries
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}
