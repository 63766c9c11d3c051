package credentials

import (
	"context"

	"apisign/internal/apisign"
	"apisign/internal/circuitbreaker"
)

// BreakerResolver fails lookups fast while the underlying store is down.
// Unknown clients and other answers from a reachable store pass through
// without counting as failures.
type BreakerResolver struct {
	next    apisign.CredentialResolver
	breaker *circuitbreaker.Breaker
}

func NewBreakerResolver(next apisign.CredentialResolver, breaker *circuitbreaker.Breaker) *BreakerResolver {
	return &BreakerResolver{next: next, breaker: breaker}
}

// ResolveSecret implements apisign.CredentialResolver.
func (r *BreakerResolver) ResolveSecret(ctx context.Context, appID string) (string, error) {
	var secret string
	err := r.breaker.Execute(func() error {
		var err error
		secret, err = r.next.ResolveSecret(ctx, appID)
		return err
	})
	return secret, err
}
