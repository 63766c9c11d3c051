// Package config loads the signing gateway configuration from environment
// variables with sensible defaults and validates it before startup.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - TLS_CERT_FILE, TLS_KEY_FILE: Serve HTTPS when both are set
//
// Request Signing:
//   - SIGN_LOCATION: query_string, headers, json or form (default: query_string)
//   - SIGN_APP_ID_NAME: Client id field (default: x-app-id)
//   - SIGN_REQUEST_ID_NAME: Request id field (default: x-request-id)
//   - SIGN_SIGNATURE_NAME: Signature field (default: x-sign)
//   - SIGN_TIMESTAMP_NAME: Timestamp field (default: timestamp)
//   - SIGN_REQUEST_DATA_NAME: Extras field (default: x-data)
//   - SIGN_ACCESS_TOKEN_NAME: Access token field (default: x-access-token)
//   - SIGN_TIMESTAMP_EXPIRATION: Freshness window in seconds (default: 30)
//   - SIGN_ALGORITHM: Digest name, only MD5 is implemented (default: MD5)
//   - SIGN_REQUIRE_SIGN: Verify signatures at all (default: true)
//   - SIGN_REQUIRE_TOKEN: Also require an access token (default: false)
//   - SIGN_ERROR_MSG_KEY: Message field of error responses (default: msg)
//   - SIGN_EXEMPT_METHODS: Comma separated methods that skip verification; set but empty exempts nothing (default: OPTIONS)
//
// Credentials:
//   - SIGN_CREDENTIAL_SOURCE: static or redis (default: static)
//   - SIGN_APP_IDS: JSON object of client id to secret, for the static source
//   - SIGN_SECRET_PREFIX: Redis key prefix (default: apisign:secret:)
//   - SIGN_SECRET_CACHE_TTL: Cache resolved secrets for this long, 0 disables (default: 0)
//   - CONFIG_ENCRYPTION_KEY: Passphrase that decrypts secrets stored in Redis
//   - ACCESS_TOKEN_SECRET: HS256 key for access tokens
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable per-client rate limiting (default: false)
//   - RATE_LIMIT_BACKEND: local or redis (default: local)
//   - RATE_LIMIT_DEFAULT: Requests per window (default: 100)
//   - RATE_LIMIT_WINDOW: Window duration (default: 60s)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
//	settings, _ := cfg.SignSettings()
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"apisign/internal/apisign"
	"apisign/internal/common/errors"
	"apisign/internal/ratelimit"
	"apisign/internal/redis"
)

// Credential sources.
const (
	SourceStatic = "static"
	SourceRedis  = "redis"
)

// Rate limit backends.
const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Config holds all configuration values. String fields keep the raw
// environment value; Validate checks they parse.
type Config struct {
	// Application settings
	Port     string
	LogLevel string
	TLSCert  string
	TLSKey   string

	// Request signing
	SignLocation            string
	SignAppIDName           string
	SignRequestIDName       string
	SignSignatureName       string
	SignTimestampName       string
	SignRequestDataName     string
	SignAccessTokenName     string
	SignTimestampExpiration string // seconds
	SignAlgorithm           string
	SignRequireSign         bool
	SignRequireToken        bool
	SignErrorMsgKey         string
	SignExemptMethods       string

	// Credentials
	CredentialSource  string
	SignAppIDs        string // JSON object
	SecretPrefix      string
	SecretCacheTTL    string
	EncryptionKey     string
	AccessTokenSecret string

	// Redis configuration
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Rate limiting configuration
	RateLimitEnabled bool
	RateLimitBackend string
	RateLimitDefault string
	RateLimitWindow  string
}

// Load creates a Config from environment variables. It does not validate.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		TLSCert:  getEnv("TLS_CERT_FILE", ""),
		TLSKey:   getEnv("TLS_KEY_FILE", ""),

		SignLocation:            getEnv("SIGN_LOCATION", string(apisign.LocationQueryString)),
		SignAppIDName:           getEnv("SIGN_APP_ID_NAME", apisign.DefaultAppIDName),
		SignRequestIDName:       getEnv("SIGN_REQUEST_ID_NAME", apisign.DefaultRequestIDName),
		SignSignatureName:       getEnv("SIGN_SIGNATURE_NAME", apisign.DefaultSignatureName),
		SignTimestampName:       getEnv("SIGN_TIMESTAMP_NAME", apisign.DefaultTimestampName),
		SignRequestDataName:     getEnv("SIGN_REQUEST_DATA_NAME", apisign.DefaultDataName),
		SignAccessTokenName:     getEnv("SIGN_ACCESS_TOKEN_NAME", apisign.DefaultAccessTokenName),
		SignTimestampExpiration: getEnv("SIGN_TIMESTAMP_EXPIRATION", "30"),
		SignAlgorithm:           getEnv("SIGN_ALGORITHM", apisign.DefaultAlgorithm),
		SignRequireSign:         getBoolEnv("SIGN_REQUIRE_SIGN", true),
		SignRequireToken:        getBoolEnv("SIGN_REQUIRE_TOKEN", false),
		SignErrorMsgKey:         getEnv("SIGN_ERROR_MSG_KEY", apisign.DefaultErrorMsgKey),
		SignExemptMethods:       getEnvAllowEmpty("SIGN_EXEMPT_METHODS", "OPTIONS"),

		CredentialSource:  getEnv("SIGN_CREDENTIAL_SOURCE", SourceStatic),
		SignAppIDs:        getEnv("SIGN_APP_IDS", ""),
		SecretPrefix:      getEnv("SIGN_SECRET_PREFIX", "apisign:secret:"),
		SecretCacheTTL:    getEnv("SIGN_SECRET_CACHE_TTL", "0"),
		EncryptionKey:     getEnv("CONFIG_ENCRYPTION_KEY", ""),
		AccessTokenSecret: getEnv("ACCESS_TOKEN_SECRET", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", false),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", BackendLocal),
		RateLimitDefault: getEnv("RATE_LIMIT_DEFAULT", "100"),
		RateLimitWindow:  getEnv("RATE_LIMIT_WINDOW", "60s"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is getEnv for variables where an explicit empty value
// means "none".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings; anything else yields defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks every value the process needs before it starts serving.
// Credential problems that would otherwise surface on the first request are
// reported here.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.ConfigError("PORT must be a valid port number between 1 and 65535")
	}

	if _, err := c.SignSettings(); err != nil {
		return err
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.ConfigError("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	switch c.CredentialSource {
	case SourceStatic:
		if c.SignRequireSign {
			secrets, err := c.AppIDs()
			if err != nil {
				return err
			}
			if len(secrets) == 0 {
				return apisign.ErrConfiguration.Derive("SIGN_APP_IDS is required for the static credential source")
			}
		}
	case SourceRedis:
		if c.RedisAddress == "" {
			return errors.ConfigError("REDIS_ADDRESS is required for the redis credential source")
		}
	default:
		return errors.ConfigError(fmt.Sprintf("SIGN_CREDENTIAL_SOURCE must be '%s' or '%s'", SourceStatic, SourceRedis))
	}

	if _, err := c.SecretCacheTTLDuration(); err != nil {
		return err
	}

	if c.SignRequireToken && c.AccessTokenSecret == "" {
		return errors.ConfigError("ACCESS_TOKEN_SECRET is required when SIGN_REQUIRE_TOKEN is enabled")
	}

	if c.usesRedis() {
		if _, err := c.RedisConfig(); err != nil {
			return err
		}
	}

	if c.RateLimitEnabled {
		if _, err := c.RateLimitConfig(); err != nil {
			return err
		}
		switch c.RateLimitBackend {
		case BackendLocal, BackendRedis:
		default:
			return errors.ConfigError(fmt.Sprintf("RATE_LIMIT_BACKEND must be '%s' or '%s'", BackendLocal, BackendRedis))
		}
	}

	return nil
}

func (c *Config) usesRedis() bool {
	return c.CredentialSource == SourceRedis || (c.RateLimitEnabled && c.RateLimitBackend == BackendRedis)
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.usesRedis()
}

// SignSettings builds the verification settings. The result is a fresh
// value every call; callers treat it as read-only.
func (c *Config) SignSettings() (*apisign.Settings, error) {
	seconds, err := strconv.Atoi(c.SignTimestampExpiration)
	if err != nil || seconds < 1 {
		return nil, errors.ConfigError("SIGN_TIMESTAMP_EXPIRATION must be a positive number of seconds")
	}

	s := &apisign.Settings{
		Location:            apisign.Location(c.SignLocation),
		AppIDName:           c.SignAppIDName,
		RequestIDName:       c.SignRequestIDName,
		SignatureName:       c.SignSignatureName,
		TimestampName:       c.SignTimestampName,
		DataName:            c.SignRequestDataName,
		AccessTokenName:     c.SignAccessTokenName,
		Algorithm:           c.SignAlgorithm,
		TimestampExpiration: time.Duration(seconds) * time.Second,
		DisableSign:         !c.SignRequireSign,
		RequireToken:        c.SignRequireToken,
		ExemptMethods:       splitMethods(c.SignExemptMethods),
		ErrorMsgKey:         c.SignErrorMsgKey,
	}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, errors.ConfigError("invalid signing settings: " + err.Error())
	}
	return s, nil
}

func splitMethods(raw string) []string {
	methods := []string{}
	for _, m := range strings.Split(raw, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			methods = append(methods, m)
		}
	}
	return methods
}

// AppIDs decodes SIGN_APP_IDS. An unset value yields an empty mapping.
func (c *Config) AppIDs() (map[string]string, error) {
	if strings.TrimSpace(c.SignAppIDs) == "" {
		return map[string]string{}, nil
	}

	var raw interface{}
	if err := json.Unmarshal([]byte(c.SignAppIDs), &raw); err != nil {
		return nil, apisign.ErrConfiguration.Derive("SIGN_APP_IDS is not valid JSON").WithCause(err)
	}

	resolver, err := apisign.NewStaticResolverFromValue(raw)
	if err != nil {
		return nil, err
	}

	secrets := raw.(map[string]interface{})
	out := make(map[string]string, resolver.Len())
	for appID, secret := range secrets {
		out[appID] = secret.(string)
	}
	return out, nil
}

// SecretCacheTTLDuration parses SIGN_SECRET_CACHE_TTL. Plain numbers are seconds.
func (c *Config) SecretCacheTTLDuration() (time.Duration, error) {
	ttl, err := parseDuration(c.SecretCacheTTL)
	if err != nil || ttl < 0 {
		return 0, errors.ConfigError("SIGN_SECRET_CACHE_TTL must be a non-negative duration (e.g., '30s', '5m')")
	}
	return ttl, nil
}

func parseDuration(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

// RedisConfig converts the Redis settings.
func (c *Config) RedisConfig() (*redis.Config, error) {
	db, err := strconv.Atoi(c.RedisDB)
	if err != nil || db < 0 || db > 15 {
		return nil, errors.ConfigError("REDIS_DB must be a number between 0 and 15")
	}
	poolSize, err := strconv.Atoi(c.RedisPoolSize)
	if err != nil || poolSize < 1 {
		return nil, errors.ConfigError("REDIS_POOL_SIZE must be a positive number")
	}

	return &redis.Config{
		Address:  c.RedisAddress,
		Password: c.RedisPassword,
		DB:       db,
		PoolSize: poolSize,
	}, nil
}

// RateLimitConfig converts the rate limit settings.
func (c *Config) RateLimitConfig() (*ratelimit.Config, error) {
	limit, err := strconv.Atoi(c.RateLimitDefault)
	if err != nil || limit < 1 {
		return nil, errors.ConfigError("RATE_LIMIT_DEFAULT must be a positive number")
	}
	window, err := parseDuration(c.RateLimitWindow)
	if err != nil || window <= 0 {
		return nil, errors.ConfigError("RATE_LIMIT_WINDOW must be a valid duration (e.g., '60s', '1m')")
	}

	return &ratelimit.Config{
		DefaultLimit:  limit,
		DefaultWindow: window,
		Enabled:       c.RateLimitEnabled,
	}, nil
}
