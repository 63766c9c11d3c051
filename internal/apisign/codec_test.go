package apisign

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalString(t *testing.T) {
	params := map[string]string{
		"x-request-id": "r1",
		"timestamp":    "1700000000",
		"x-app-id":     "c1",
	}

	assert.Equal(t, "timestamp=1700000000&x-app-id=c1&x-request-id=r1&s3cr3t", CanonicalString(params, "s3cr3t"))
}

func TestCanonicalString_ByteOrder(t *testing.T) {
	params := map[string]string{"b": "2", "B": "1", "a": "3"}

	assert.Equal(t, "B=1&a=3&b=2&", CanonicalString(params, ""))
}

func TestComputeSignature_KnownVector(t *testing.T) {
	params := map[string]string{
		"x-app-id":     "c1",
		"x-request-id": "r1",
		"timestamp":    "1700000000",
	}

	sum := md5.Sum([]byte("timestamp=1700000000&x-app-id=c1&x-request-id=r1&s3cr3t"))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))

	got := ComputeSignature(params, "s3cr3t", nil)
	assert.Equal(t, want, got)
	assert.Equal(t, "3058522A4E2855280FBFC23984A3E873", got)
	assert.Len(t, got, 32)
}

func TestComputeSignature_WithData(t *testing.T) {
	params := map[string]string{
		"x-app-id":     "c1",
		"x-request-id": "r1",
		"timestamp":    "1700000000",
		"x-data":       `{"a":1}`,
	}

	assert.Equal(t, "C30125FB18B832C56FBE0055D6227742", ComputeSignature(params, "s3cr3t", MD5Digester{}))
}

func TestComputeSignature_Deterministic(t *testing.T) {
	params := map[string]string{"x-app-id": "c1", "x-request-id": "r1", "timestamp": "1700000000"}

	first := ComputeSignature(params, "secret", nil)
	second := ComputeSignature(params, "secret", nil)
	assert.Equal(t, first, second)
}

func TestComputeSignature_InsertionOrderIndependent(t *testing.T) {
	keys := []string{"x-app-id", "x-request-id", "timestamp", "x-data"}
	values := map[string]string{"x-app-id": "c1", "x-request-id": "r1", "timestamp": "1700000000", "x-data": "payload"}

	build := func(order []int) map[string]string {
		m := make(map[string]string, len(order))
		for _, i := range order {
			m[keys[i]] = values[keys[i]]
		}
		return m
	}

	want := ComputeSignature(build([]int{0, 1, 2, 3}), "secret", nil)
	for _, order := range [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}} {
		assert.Equal(t, want, ComputeSignature(build(order), "secret", nil))
	}
}

func TestComputeSignature_SecretMatters(t *testing.T) {
	params := map[string]string{"x-app-id": "c1"}

	assert.NotEqual(t, ComputeSignature(params, "a", nil), ComputeSignature(params, "b", nil))
}

func TestDigesterFor(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		known     bool
	}{
		{"default", "MD5", true},
		{"lower case", "md5", true},
		{"empty", "", true},
		{"unsupported", "SHA256", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, known := DigesterFor(tt.algorithm)
			assert.Equal(t, tt.known, known)
			assert.IsType(t, MD5Digester{}, d)
		})
	}
}

func TestDigesterFunc(t *testing.T) {
	d := DigesterFunc(func(data []byte) string { return "len:" + string(rune('0'+len(data))) })

	assert.Equal(t, "len:3", ComputeSignature(map[string]string{"a": ""}, "", d))
}
