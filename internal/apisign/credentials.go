package apisign

import (
	"context"
	"fmt"
)

// CredentialResolver maps a client id to its shared secret. Implementations
// must be safe for concurrent use; the verifier calls them from every request.
type CredentialResolver interface {
	ResolveSecret(ctx context.Context, appID string) (string, error)
}

// ResolverFunc adapts a function to CredentialResolver. Whatever it returns,
// including its errors, is passed through untouched.
type ResolverFunc func(ctx context.Context, appID string) (string, error)

// ResolveSecret calls f(ctx, appID).
func (f ResolverFunc) ResolveSecret(ctx context.Context, appID string) (string, error) {
	return f(ctx, appID)
}

// StaticResolver looks secrets up in a fixed client id to secret mapping.
// The mapping is copied on construction and never written afterwards.
type StaticResolver struct {
	secrets map[string]string
}

// NewStaticResolver builds a resolver over secrets. A nil or empty mapping is
// allowed here and reported as a configuration error on every lookup.
func NewStaticResolver(secrets map[string]string) *StaticResolver {
	if secrets == nil {
		return &StaticResolver{}
	}
	copied := make(map[string]string, len(secrets))
	for k, v := range secrets {
		copied[k] = v
	}
	return &StaticResolver{secrets: copied}
}

// NewStaticResolverFromValue accepts a loosely typed mapping, such as a
// decoded JSON document, and rejects anything that is not a string keyed
// mapping of string secrets.
func NewStaticResolverFromValue(v interface{}) (*StaticResolver, error) {
	switch m := v.(type) {
	case nil:
		return nil, ErrConfiguration.Derive("no credential mapping configured")
	case map[string]string:
		return NewStaticResolver(m), nil
	case map[string]interface{}:
		secrets := make(map[string]string, len(m))
		for appID, raw := range m {
			secret, ok := raw.(string)
			if !ok {
				return nil, ErrConfiguration.Derive(fmt.Sprintf("secret for app id %q is not a string", appID))
			}
			secrets[appID] = secret
		}
		return NewStaticResolver(secrets), nil
	default:
		return nil, ErrConfiguration.Derive("mapping is not a key-value structure")
	}
}

// ResolveSecret implements CredentialResolver.
func (r *StaticResolver) ResolveSecret(_ context.Context, appID string) (string, error) {
	if r == nil || len(r.secrets) == 0 {
		return "", ErrConfiguration.Derive("no credential mapping configured")
	}
	secret, ok := r.secrets[appID]
	if !ok || secret == "" {
		return "", ErrUnknownClient.Derive("unknown app_id: "+appID).WithContext("app_id", appID)
	}
	return secret, nil
}

// Len returns the number of configured clients.
func (r *StaticResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.secrets)
}

// SelectResolver applies the precedence rule: a custom resolver wins
// outright; otherwise the static mapping is used. With neither configured
// the returned resolver fails every lookup with a configuration error.
func SelectResolver(custom CredentialResolver, static *StaticResolver) CredentialResolver {
	if custom != nil {
		return custom
	}
	if static != nil {
		return static
	}
	return ResolverFunc(func(context.Context, string) (string, error) {
		return "", ErrConfiguration.Derive("no credential mapping configured")
	})
}
