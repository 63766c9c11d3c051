package main

import (
	"io"
	"net/http"
	"sort"
	"strings"
)

// renderCurl prints r as a curl command line. The request body is consumed
// and restored.
func renderCurl(r *http.Request) (string, error) {
	parts := []string{"curl", "-X", r.Method}

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range r.Header[name] {
			parts = append(parts, "-H", shellQuote(name+": "+v))
		}
	}

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		parts = append(parts, "--data-raw", shellQuote(string(body)))
	}

	parts = append(parts, shellQuote(r.URL.String()))
	return strings.Join(parts, " "), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
