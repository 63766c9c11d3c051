package app

import (
	"time"

	"apisign/internal/apisign"
	"apisign/internal/circuitbreaker"
	"apisign/internal/common/cache"
	"apisign/internal/common/logging"
	"apisign/internal/config"
	"apisign/internal/credentials"
	"apisign/internal/crypto"
	"apisign/internal/ratelimit"
	"apisign/internal/redis"
)

// tokenLeeway tolerates clock skew on access token expiry.
const tokenLeeway = 5 * time.Second

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Settings    *apisign.Settings
	RedisClient *redis.Client
	Verifier    *apisign.Verifier
	Limiter     *ratelimit.Limiter
	// SecretBreaker guards Redis secret lookups; nil for static credentials.
	SecretBreaker *circuitbreaker.Breaker
	Logger        logging.Logger
}

// New creates a new application instance with all dependencies. cfg must
// already be validated.
func New(cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	app := &App{
		Config: cfg,
		Logger: logger.WithFields(logging.String("component", "app")),
	}

	settings, err := cfg.SignSettings()
	if err != nil {
		return nil, err
	}
	app.Settings = settings

	// Initialize components in order of dependency
	if err := app.initializeRedis(); err != nil {
		return nil, err
	}

	if err := app.initializeVerifier(logger); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeRateLimiter(logger); err != nil {
		app.Cleanup()
		return nil, err
	}

	return app, nil
}

func (app *App) initializeRedis() error {
	if !app.Config.UsesRedis() {
		app.Logger.Info("Redis: Not configured")
		return nil
	}

	redisConfig, err := app.Config.RedisConfig()
	if err != nil {
		return err
	}

	client, err := redis.NewClient(redisConfig)
	if err != nil {
		return err
	}

	app.RedisClient = client
	app.Logger.Info("Redis: Connected", logging.String("address", redisConfig.Address))
	return nil
}

func (app *App) resolver() (apisign.CredentialResolver, error) {
	var resolver apisign.CredentialResolver

	switch app.Config.CredentialSource {
	case config.SourceRedis:
		var cipher credentials.SecretCipher
		if app.Config.EncryptionKey != "" {
			c, err := crypto.NewSecretCipher(app.Config.EncryptionKey)
			if err != nil {
				return nil, err
			}
			cipher = c
		}
		app.SecretBreaker = circuitbreaker.New("secret-store", circuitbreaker.DefaultConfig(), app.Logger)
		resolver = credentials.NewBreakerResolver(
			credentials.NewRedisResolver(app.RedisClient, app.Config.SecretPrefix, cipher),
			app.SecretBreaker,
		)
		app.Logger.Info("Credentials: Redis",
			logging.String("prefix", app.Config.SecretPrefix),
			logging.Bool("encrypted", cipher != nil),
		)
	default:
		secrets, err := app.Config.AppIDs()
		if err != nil {
			return nil, err
		}
		resolver = apisign.NewStaticResolver(secrets)
		app.Logger.Info("Credentials: static mapping", logging.Int("clients", len(secrets)))
	}

	ttl, err := app.Config.SecretCacheTTLDuration()
	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		resolver = credentials.NewCachingResolver(resolver, cache.NewLocalCache(ttl, 2*ttl), ttl)
		app.Logger.Info("Credentials: caching enabled", logging.Duration("ttl", ttl))
	}

	return resolver, nil
}

func (app *App) initializeVerifier(logger logging.Logger) error {
	resolver, err := app.resolver()
	if err != nil {
		return err
	}

	var opts []apisign.Option
	if app.Config.AccessTokenSecret != "" {
		validator, err := apisign.NewJWTTokenValidator([]byte(app.Config.AccessTokenSecret), tokenLeeway)
		if err != nil {
			return err
		}
		opts = append(opts, apisign.WithTokenValidator(validator))
	}

	verifier, err := apisign.NewVerifier(app.Settings, resolver,
		logger.WithFields(logging.String("component", "apisign")), opts...)
	if err != nil {
		return err
	}
	app.Verifier = verifier

	app.Logger.Info("Request signing configured",
		logging.String("location", string(app.Settings.Location)),
		logging.Duration("timestamp_expiration", app.Settings.TimestampExpiration),
		logging.Bool("require_sign", !app.Settings.DisableSign),
		logging.Bool("require_token", app.Settings.RequireToken),
	)
	return nil
}

func (app *App) initializeRateLimiter(logger logging.Logger) error {
	if !app.Config.RateLimitEnabled {
		return nil
	}

	rlConfig, err := app.Config.RateLimitConfig()
	if err != nil {
		return err
	}

	var backend ratelimit.Backend
	if app.Config.RateLimitBackend == config.BackendRedis {
		backend = ratelimit.NewRedisBackend(app.RedisClient)
	} else {
		backend = ratelimit.NewLocalBackend(0)
	}

	app.Limiter = ratelimit.NewLimiter(backend, rlConfig, logger.WithFields(logging.String("component", "ratelimit")))
	app.Logger.Info("Rate limiting enabled",
		logging.String("backend", app.Config.RateLimitBackend),
		logging.Int("limit", rlConfig.DefaultLimit),
		logging.Duration("window", rlConfig.DefaultWindow),
	)
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Error closing Redis client", logging.Err(err))
		}
		app.RedisClient = nil
	}
}
