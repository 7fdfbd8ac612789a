// Package logger provides structured logging for tokenkeeper.
package logger

import (
	"log/slog"
	"strings"
)

// Value prefixes of plaintext credentials. Values carrying them are
// partially masked wherever they appear.
var sensitiveValuePrefixes = []string{
	"tks_",
}

// Key fragments that mark an attribute as sensitive.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"credential",
	"encryption_key",
	"dsn",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks credential values and fully redacts attributes
// whose key looks sensitive. Value prefixes win over key patterns.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if masked, ok := maskKnownPrefix(v); ok {
			return slog.String(a.Key, masked)
		}
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

func maskKnownPrefix(v string) (string, bool) {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(v, prefix) {
			return maskValue(v, prefix), true
		}
	}
	return "", false
}

// maskValue keeps prefix + first 3 + "..." + last 3 of a value.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks a credential before it is logged by other means.
func RedactString(value string) string {
	if masked, ok := maskKnownPrefix(value); ok {
		return masked
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue checks if a value carries a credential prefix.
func IsSensitiveValue(value string) bool {
	_, ok := maskKnownPrefix(value)
	return ok
}
