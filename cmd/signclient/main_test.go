package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apisign/internal/apisign"
	"apisign/internal/common/logging"
	"apisign/internal/config"
	"apisign/internal/credentials"
	"apisign/internal/crypto"
	"apisign/internal/redis"
)

var fixedNow = time.Unix(1700000000, 0)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-app-id", "c1", "-secret", "s", "-method", "POST", "-data", "d"})
	require.NoError(t, err)

	assert.Equal(t, "c1", o.appID)
	assert.Equal(t, http.MethodPost, o.method)
	assert.Equal(t, "d", o.data)
	assert.NotEmpty(t, o.requestID)

	_, err = parseFlags([]string{"-unknown"})
	assert.Error(t, err)
}

func TestBuildRequest_Verifies(t *testing.T) {
	for _, loc := range []apisign.Location{apisign.LocationQueryString, apisign.LocationHeaders, apisign.LocationJSON, apisign.LocationForm} {
		t.Run(string(loc), func(t *testing.T) {
			s := apisign.DefaultSettings()
			s.Location = loc

			o := &options{appID: "c1", secret: "s3cr3t", method: http.MethodPost, url: "http://gw/api/echo", requestID: "r1", data: "d"}
			r, err := buildRequest(s, o, fixedNow)
			require.NoError(t, err)

			v, err := apisign.NewVerifier(s, apisign.NewStaticResolver(map[string]string{"c1": "s3cr3t"}),
				logging.NewNopLogger(), apisign.WithClock(func() time.Time { return fixedNow }))
			require.NoError(t, err)
			assert.NoError(t, v.Verify(r))
		})
	}
}

func TestBuildRequest_RequiresCredentials(t *testing.T) {
	_, err := buildRequest(apisign.DefaultSettings(), &options{appID: "c1", method: http.MethodGet, url: "http://gw"}, fixedNow)
	assert.Error(t, err)
}

func TestRenderCurl(t *testing.T) {
	s := apisign.DefaultSettings()
	s.Location = apisign.LocationJSON

	r, err := buildRequest(s, &options{appID: "c1", secret: "s3cr3t", method: http.MethodPost, url: "http://gw/api/echo", requestID: "r1"}, fixedNow)
	require.NoError(t, err)

	curl, err := renderCurl(r)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(curl, "curl -X POST -H 'Content-Type: application/json'"), curl)
	assert.Contains(t, curl, `"x-sign":"3058522A4E2855280FBFC23984A3E873"`)
	assert.True(t, strings.HasSuffix(curl, "'http://gw/api/echo'"), curl)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestRun_Encrypt(t *testing.T) {
	cfg := config.Load()
	cfg.EncryptionKey = "passphrase"

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &options{encrypt: "s3cr3t"}, &out))

	c, err := crypto.NewSecretCipher("passphrase")
	require.NoError(t, err)
	plain, err := c.Decrypt(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", plain)
}

func TestRun_EncryptWithoutKey(t *testing.T) {
	cfg := config.Load()
	cfg.EncryptionKey = ""

	assert.Error(t, run(context.Background(), cfg, &options{encrypt: "s3cr3t"}, &bytes.Buffer{}))
}

func TestRun_Store(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Load()
	cfg.RedisAddress = mr.Addr()
	cfg.RedisDB = "0"
	cfg.RedisPoolSize = "2"
	cfg.EncryptionKey = ""
	cfg.SecretPrefix = credentials.DefaultSecretPrefix

	require.NoError(t, run(context.Background(), cfg, &options{store: true, appID: "c1", secret: "s3cr3t"}, &bytes.Buffer{}))

	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	secret, err := credentials.NewRedisResolver(client, "", nil).ResolveSecret(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", secret)
}

func TestRun_Remove(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Load()
	cfg.RedisAddress = mr.Addr()
	cfg.RedisDB = "0"
	cfg.RedisPoolSize = "2"
	cfg.EncryptionKey = ""
	cfg.SecretPrefix = credentials.DefaultSecretPrefix

	require.NoError(t, run(context.Background(), cfg, &options{store: true, appID: "c1", secret: "s3cr3t"}, &bytes.Buffer{}))
	assert.True(t, mr.Exists(credentials.DefaultSecretPrefix+"c1"))

	require.NoError(t, run(context.Background(), cfg, &options{remove: true, appID: "c1"}, &bytes.Buffer{}))
	assert.False(t, mr.Exists(credentials.DefaultSecretPrefix+"c1"))

	assert.Error(t, run(context.Background(), cfg, &options{remove: true}, &bytes.Buffer{}))
}

func TestRun_IssueToken(t *testing.T) {
	cfg := config.Load()
	cfg.AccessTokenSecret = "token-key"

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &options{issueToken: time.Hour, appID: "c1"}, &out))

	validator, err := apisign.NewJWTTokenValidator([]byte("token-key"), 0)
	require.NoError(t, err)
	assert.NoError(t, validator.ValidateToken(context.Background(), "c1", strings.TrimSpace(out.String())))

	cfg.AccessTokenSecret = ""
	assert.Error(t, run(context.Background(), cfg, &options{issueToken: time.Hour, appID: "c1"}, &bytes.Buffer{}))
}

func TestRun_PrintsCurl(t *testing.T) {
	cfg := config.Load()

	var out bytes.Buffer
	o := &options{appID: "c1", secret: "s", method: http.MethodGet, url: "http://gw/api/whoami", requestID: "r1", location: "headers"}
	require.NoError(t, run(context.Background(), cfg, o, &out))

	assert.Contains(t, out.String(), "-H 'X-Sign: ")
	assert.Contains(t, out.String(), "-H 'X-App-Id: c1'")
}
