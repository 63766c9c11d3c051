// Package credentials provides CredentialResolver implementations backed by
// shared infrastructure.
package credentials

import (
	"context"
	"time"

	"apisign/internal/apisign"
	"apisign/internal/common/errors"
)

// DefaultSecretPrefix is prepended to client ids to form Redis keys.
const DefaultSecretPrefix = "apisign:secret:"

// KeyValueStore is the subset of the Redis client the resolver needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SecretCipher protects secrets at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// RedisResolver reads client secrets from Redis, one key per client.
type RedisResolver struct {
	store  KeyValueStore
	prefix string
	cipher SecretCipher
}

// NewRedisResolver creates a resolver over store. With a non-nil cipher,
// stored values are encrypted and decrypted transparently.
func NewRedisResolver(store KeyValueStore, prefix string, cipher SecretCipher) *RedisResolver {
	if prefix == "" {
		prefix = DefaultSecretPrefix
	}
	return &RedisResolver{
		store:  store,
		prefix: prefix,
		cipher: cipher,
	}
}

func (r *RedisResolver) key(appID string) string {
	return r.prefix + appID
}

// ResolveSecret implements apisign.CredentialResolver.
func (r *RedisResolver) ResolveSecret(ctx context.Context, appID string) (string, error) {
	value, found, err := r.store.Get(ctx, r.key(appID))
	if err != nil {
		return "", err
	}
	if !found || value == "" {
		return "", apisign.ErrUnknownClient.Derive("unknown app_id: "+appID).WithContext("app_id", appID)
	}

	if r.cipher == nil {
		return value, nil
	}
	secret, err := r.cipher.Decrypt(value)
	if err != nil {
		return "", apisign.ErrConfiguration.Derive("stored secret cannot be decrypted").
			WithCause(err).
			WithContext("app_id", appID)
	}
	return secret, nil
}

// Store saves secret for appID, encrypted when a cipher is configured.
func (r *RedisResolver) Store(ctx context.Context, appID, secret string) error {
	if appID == "" || secret == "" {
		return errors.ValidationError("app id and secret are required")
	}

	value := secret
	if r.cipher != nil {
		encrypted, err := r.cipher.Encrypt(secret)
		if err != nil {
			return err
		}
		value = encrypted
	}
	return r.store.Set(ctx, r.key(appID), value, 0)
}

// Remove deletes the secret for appID.
func (r *RedisResolver) Remove(ctx context.Context, appID string) error {
	return r.store.Delete(ctx, r.key(appID))
}
