package config

import (
	"net/url"
	"strings"
)

// Sanitize returns a copy of the config with credentials masked, for
// logging and config show.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Storage.Badger.EncryptionKey != "" {
		sanitized.Storage.Badger.EncryptionKey = maskSecret(sanitized.Storage.Badger.EncryptionKey)
	}
	if sanitized.Storage.Redis.Password != "" {
		sanitized.Storage.Redis.Password = maskSecret(sanitized.Storage.Redis.Password)
	}
	if sanitized.Storage.Postgres.DSN != "" {
		sanitized.Storage.Postgres.DSN = maskDSN(sanitized.Storage.Postgres.DSN)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// maskDSN hides the password of a URL DSN (postgres://u:p@host/db) or of
// a key/value DSN (host=... password=...).
func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}

	fields := strings.Fields(dsn)
	for i, f := range fields {
		if k, _, ok := strings.Cut(f, "="); ok && strings.EqualFold(k, "password") {
			fields[i] = k + "=****"
		}
	}
	return strings.Join(fields, " ")
}
