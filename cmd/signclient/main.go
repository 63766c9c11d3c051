// Command signclient builds signed requests for the gateway and manages
// client secrets.
//
// Usage:
//
//	signclient -app-id c1 -secret s3cr3t -url http://localhost:8080/api/whoami
//	signclient -app-id c1 -secret s3cr3t -method POST -data order-7 -send
//	signclient -encrypt s3cr3t
//	signclient -store -app-id c1 -secret s3cr3t
//	signclient -remove -app-id c1
//	signclient -issue-token 1h -app-id c1
//
// Field names, location and keys come from the same environment variables
// the server reads, so a .env file shared with the server keeps both sides
// in agreement.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"apisign/internal/apisign"
	"apisign/internal/config"
	"apisign/internal/credentials"
	"apisign/internal/crypto"
	"apisign/internal/redis"
)

type options struct {
	appID       string
	secret      string
	location    string
	method      string
	url         string
	data        string
	requestID   string
	accessToken string
	send        bool

	encrypt    string
	store      bool
	remove     bool
	issueToken time.Duration
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("signclient", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.appID, "app-id", "", "client id")
	fs.StringVar(&o.secret, "secret", "", "client secret")
	fs.StringVar(&o.location, "location", "", "override SIGN_LOCATION")
	fs.StringVar(&o.method, "method", http.MethodGet, "HTTP method")
	fs.StringVar(&o.url, "url", "http://localhost:8080/api/whoami", "target URL")
	fs.StringVar(&o.data, "data", "", "optional signed extras")
	fs.StringVar(&o.requestID, "request-id", "", "request id (default: random UUID)")
	fs.StringVar(&o.accessToken, "token", "", "access token to send")
	fs.BoolVar(&o.send, "send", false, "send the request and print the response")
	fs.StringVar(&o.encrypt, "encrypt", "", "print the secret encrypted with CONFIG_ENCRYPTION_KEY")
	fs.BoolVar(&o.store, "store", false, "store -secret for -app-id in Redis")
	fs.BoolVar(&o.remove, "remove", false, "delete the stored secret of -app-id from Redis")
	fs.DurationVar(&o.issueToken, "issue-token", 0, "print an access token for -app-id valid this long")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.requestID == "" {
		o.requestID = uuid.NewString()
	}
	return o, nil
}

func main() {
	_ = godotenv.Load()

	o, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := run(context.Background(), config.Load(), o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "signclient:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, o *options, out io.Writer) error {
	switch {
	case o.encrypt != "":
		return encryptSecret(cfg, o.encrypt, out)
	case o.store:
		return storeSecret(ctx, cfg, o)
	case o.remove:
		return removeSecret(ctx, cfg, o)
	case o.issueToken > 0:
		return issueToken(cfg, o, out)
	}

	if o.location != "" {
		cfg.SignLocation = o.location
	}
	settings, err := cfg.SignSettings()
	if err != nil {
		return err
	}

	r, err := buildRequest(settings, o, time.Now())
	if err != nil {
		return err
	}

	if !o.send {
		curl, err := renderCurl(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, curl)
		return nil
	}

	resp, err := http.DefaultClient.Do(r.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Fprintln(out, resp.Status)
	_, err = io.Copy(out, resp.Body)
	return err
}

// buildRequest returns a request carrying a fresh signature for o.appID.
func buildRequest(s *apisign.Settings, o *options, now time.Time) (*http.Request, error) {
	if o.appID == "" || o.secret == "" {
		return nil, fmt.Errorf("-app-id and -secret are required")
	}

	r, err := http.NewRequest(o.method, o.url, nil)
	if err != nil {
		return nil, err
	}

	sr := apisign.NewSignedRequest(o.appID, o.requestID, now)
	sr.Data = o.data
	sr.AccessToken = o.accessToken
	apisign.Sign(s, sr, o.secret)

	if err := sr.Apply(r, s); err != nil {
		return nil, err
	}
	return r, nil
}

func encryptSecret(cfg *config.Config, secret string, out io.Writer) error {
	cipher, err := crypto.NewSecretCipher(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	encrypted, err := cipher.Encrypt(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, encrypted)
	return nil
}

// openSecretStore connects to Redis and returns the resolver used to manage
// stored secrets. The caller closes the client.
func openSecretStore(cfg *config.Config) (*credentials.RedisResolver, *redis.Client, error) {
	redisConfig, err := cfg.RedisConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := redis.NewClient(redisConfig)
	if err != nil {
		return nil, nil, err
	}

	var cipher credentials.SecretCipher
	if cfg.EncryptionKey != "" {
		c, err := crypto.NewSecretCipher(cfg.EncryptionKey)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		cipher = c
	}
	return credentials.NewRedisResolver(client, cfg.SecretPrefix, cipher), client, nil
}

func storeSecret(ctx context.Context, cfg *config.Config, o *options) error {
	store, client, err := openSecretStore(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return store.Store(ctx, o.appID, o.secret)
}

// removeSecret revokes a client. Servers with SIGN_SECRET_CACHE_TTL set keep
// accepting it until their cached copy expires.
func removeSecret(ctx context.Context, cfg *config.Config, o *options) error {
	if o.appID == "" {
		return fmt.Errorf("-app-id is required")
	}
	store, client, err := openSecretStore(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return store.Remove(ctx, o.appID)
}

func issueToken(cfg *config.Config, o *options, out io.Writer) error {
	if o.appID == "" {
		return fmt.Errorf("-app-id is required")
	}
	if cfg.AccessTokenSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is not set")
	}
	token, err := apisign.IssueAccessToken([]byte(cfg.AccessTokenSecret), o.appID, time.Now(), o.issueToken)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
