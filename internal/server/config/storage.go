package config

import (
	"github.com/yndnr/tokenkeeper/internal/core/service"
	"github.com/yndnr/tokenkeeper/internal/storage"
	"github.com/yndnr/tokenkeeper/internal/storage/postgres"
)

// StorageConfig maps the storage section onto storage.Config. The cleaner
// batch size sets the listing page size of every paged backend.
func (c *ServerConfig) StorageConfig() storage.Config {
	s := c.Storage
	badger := storage.DefaultBadgerConfig(s.Badger.Dir)
	badger.GCInterval = s.Badger.GCInterval
	badger.GCThreshold = s.Badger.GCThreshold
	badger.SyncWrites = s.Badger.SyncWrites
	badger.EncryptionKey = s.Badger.EncryptionKey
	badger.PageSize = c.Cleaner.BatchSize

	return storage.Config{
		Backend:      s.Backend,
		MemoryShards: s.Memory.Shards,
		Badger:       badger,
		Redis: storage.RedisConfig{
			Addr:        s.Redis.Addr,
			Username:    s.Redis.Username,
			Password:    s.Redis.Password,
			DB:          s.Redis.DB,
			KeyPrefix:   s.Redis.KeyPrefix,
			Retention:   s.Redis.Retention,
			DialTimeout: s.Redis.DialTimeout,
			PageSize:    c.Cleaner.BatchSize,
			TLS: storage.RedisTLS{
				Enabled:    s.Redis.TLS.Enabled,
				CAFile:     s.Redis.TLS.CAFile,
				CertFile:   s.Redis.TLS.CertFile,
				KeyFile:    s.Redis.TLS.KeyFile,
				ServerName: s.Redis.TLS.ServerName,
			},
		},
		Postgres: postgres.Config{
			DSN:          s.Postgres.DSN,
			MaxOpenConns: s.Postgres.MaxOpenConns,
			MaxIdleConns: s.Postgres.MaxIdleConns,
			Migrate:      s.Postgres.Migrate,
			PageSize:     c.Cleaner.BatchSize,
		},
	}
}

// TokenServiceConfig maps the token section.
func (c *ServerConfig) TokenServiceConfig() *service.TokenServiceConfig {
	return &service.TokenServiceConfig{
		DefaultTTL:       c.Token.DefaultTTL,
		MaxTTL:           c.Token.MaxTTL,
		MaxIssueAttempts: c.Token.MaxIssueAttempts,
	}
}

// CleanerConfig maps the cleaner section.
func (c *ServerConfig) CleanerConfig() *service.CleanerConfig {
	return &service.CleanerConfig{
		DeleteRate:   c.Cleaner.DeleteRate,
		DeleteBurst:  c.Cleaner.DeleteBurst,
		SweepTimeout: c.Cleaner.SweepTimeout,
	}
}
