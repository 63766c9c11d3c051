package apisign

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Digester turns a canonical signing string into a signature.
type Digester interface {
	Digest(data []byte) string
}

// DigesterFunc adapts a plain function to Digester.
type DigesterFunc func(data []byte) string

// Digest calls f(data).
func (f DigesterFunc) Digest(data []byte) string {
	return f(data)
}

// MD5Digester renders the MD5 of its input as 32 uppercase hex characters.
type MD5Digester struct{}

// Digest implements Digester.
func (MD5Digester) Digest(data []byte) string {
	sum := md5.Sum(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// DigesterFor returns the digester for a configured algorithm name and
// whether the name is one that is actually implemented. Every name currently
// resolves to MD5; callers should warn when known is false.
func DigesterFor(algorithm string) (d Digester, known bool) {
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "MD5", "":
		return MD5Digester{}, true
	default:
		return MD5Digester{}, false
	}
}

// CanonicalString builds the signing input: every pair as key=value&, keys in
// byte order, followed directly by the secret.
func CanonicalString(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	b.WriteString(secret)
	return b.String()
}

// ComputeSignature digests the canonical string of params and secret. A nil
// digester means MD5.
func ComputeSignature(params map[string]string, secret string, d Digester) string {
	if d == nil {
		d = MD5Digester{}
	}
	return d.Digest([]byte(CanonicalString(params, secret)))
}
