package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
	"github.com/yndnr/tokenkeeper/pkg/crypto/adaptive"
)

// Verify validates the configuration. Every problem found is reported,
// not just the first.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyStorage(&cfg.Storage),
		verifyToken(&cfg.Token),
		verifyCleaner(&cfg.Cleaner),
		verifyMetrics(&cfg.Metrics),
		verifyLog(&cfg.Log),
		positive("shutdown_timeout", cfg.ShutdownTimeout),
	)
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		if cfg.Memory.Shards < 0 {
			return errors.New("storage.memory.shards must not be negative")
		}
	case "badger":
		var errs []error
		if cfg.Badger.Dir == "" {
			errs = append(errs, errors.New("storage.badger.dir is required"))
		}
		if cfg.Badger.GCThreshold <= 0 || cfg.Badger.GCThreshold >= 1 {
			errs = append(errs, errors.New("storage.badger.gc_threshold must be in (0, 1)"))
		}
		errs = append(errs, positive("storage.badger.gc_interval", cfg.Badger.GCInterval))
		if cfg.Badger.EncryptionKey != "" {
			key, err := adaptive.ParseKey(cfg.Badger.EncryptionKey)
			if err == nil {
				_, err = adaptive.New(key)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("storage.badger.encryption_key: %w", err))
			}
		}
		return errors.Join(errs...)
	case "redis":
		var errs []error
		if cfg.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required"))
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, errors.New("storage.redis.db must not be negative"))
		}
		if cfg.Redis.Retention < 0 {
			errs = append(errs, errors.New("storage.redis.retention must not be negative"))
		}
		if t := cfg.Redis.TLS; t.Enabled && (t.CertFile == "") != (t.KeyFile == "") {
			errs = append(errs, errors.New("storage.redis.tls.cert_file and key_file must be set together"))
		}
		return errors.Join(errs...)
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, badger, redis, postgres", cfg.Backend)
	}
	return nil
}

func verifyToken(cfg *TokenSection) error {
	var errs []error
	errs = append(errs, positive("token.default_ttl", cfg.DefaultTTL))
	if cfg.MaxTTL < 0 {
		errs = append(errs, errors.New("token.max_ttl must not be negative"))
	}
	if cfg.MaxTTL > 0 && cfg.DefaultTTL > cfg.MaxTTL {
		errs = append(errs, fmt.Errorf("token.default_ttl %s exceeds token.max_ttl %s", cfg.DefaultTTL, cfg.MaxTTL))
	}
	if cfg.MaxIssueAttempts < 1 {
		errs = append(errs, errors.New("token.max_issue_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

func verifyCleaner(cfg *CleanerSection) error {
	var errs []error
	// The interval is checked even when disabled: a hot reload may enable it.
	errs = append(errs, positive("cleaner.interval", cfg.Interval))
	if cfg.DeleteRate < 0 {
		errs = append(errs, errors.New("cleaner.delete_rate must not be negative"))
	}
	if cfg.DeleteBurst < 0 {
		errs = append(errs, errors.New("cleaner.delete_burst must not be negative"))
	}
	if cfg.SweepTimeout < 0 {
		errs = append(errs, errors.New("cleaner.sweep_timeout must not be negative"))
	}
	if cfg.BatchSize < 1 {
		errs = append(errs, errors.New("cleaner.batch_size must be at least 1"))
	}
	return errors.Join(errs...)
}

func verifyMetrics(cfg *MetricsSection) error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if cfg.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", cfg.Path))
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		errs = append(errs, errors.New("metrics.tls_cert_file and tls_key_file must be set together"))
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch cfg.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", cfg.Format))
	}
	return errors.Join(errs...)
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}
