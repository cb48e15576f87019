package pagekit

import (
	"os"
	"strings"
)

// FilterEmpty removes empty/whitespace-only strings from a slice and trims the rest.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// firstHeaderValue returns the first entry of a comma-separated header,
// as proxies append to X-Forwarded-* rather than replace them.
func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
