package credentials

import (
	"context"
	"time"

	"apisign/internal/apisign"
	"apisign/internal/common/cache"
)

// CachingResolver remembers resolved secrets for a while so a remote store
// is not hit on every request. Failures are never cached.
type CachingResolver struct {
	next  apisign.CredentialResolver
	cache cache.Cache
	ttl   time.Duration
}

// NewCachingResolver wraps next with cache, keeping secrets for ttl.
func NewCachingResolver(next apisign.CredentialResolver, c cache.Cache, ttl time.Duration) *CachingResolver {
	return &CachingResolver{next: next, cache: c, ttl: ttl}
}

// ResolveSecret implements apisign.CredentialResolver.
func (r *CachingResolver) ResolveSecret(ctx context.Context, appID string) (string, error) {
	if v, ok := r.cache.Get(ctx, appID); ok {
		if secret, ok := v.(string); ok {
			return secret, nil
		}
	}

	secret, err := r.next.ResolveSecret(ctx, appID)
	if err != nil {
		return "", err
	}
	r.cache.Set(ctx, appID, secret, r.ttl)
	return secret, nil
}
