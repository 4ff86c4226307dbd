package domain

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", &ValidationError{Field: "url", Reason: err.Error()}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &ValidationError{Field: "url", Reason: "only http and https are supported"}
	}
	if parsed.Host == "" {
		return "", &ValidationError{Field: "url", Reason: "host is missing"}
	}
	return trimmed, nil
}

// HashURL fingerprints a URL ignoring case and surrounding whitespace.
func HashURL(raw string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(raw))))
	return hex.EncodeToString(sum[:])
}
