package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/yndnr/tokenkeeper/internal/core/service"
	"github.com/yndnr/tokenkeeper/internal/infra/tlsroots"
	"github.com/yndnr/tokenkeeper/internal/storage/memory"
	"github.com/yndnr/tokenkeeper/internal/storage/postgres"
	"github.com/yndnr/tokenkeeper/internal/storage/redisstore"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend string

	MemoryShards int
	Badger       BadgerConfig
	Redis        RedisConfig
	Postgres     postgres.Config
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	KeyPrefix   string
	Retention   time.Duration
	DialTimeout time.Duration
	PageSize    int

	// TLS is used when TLS.Enabled is set.
	TLS RedisTLS
}

// RedisTLS locates the PEM files for a TLS connection to redis.
type RedisTLS struct {
	Enabled    bool
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
}

// Open opens the configured backend. The caller owns the returned store
// and must Close it after stopping every user.
func Open(ctx context.Context, cfg Config, log logger.Logger) (service.TokenStore, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		var opts []memory.Option
		if cfg.MemoryShards > 0 {
			opts = append(opts, memory.WithShards(cfg.MemoryShards))
		}
		return memory.New(opts...), nil

	case BackendBadger:
		s, err := OpenBadger(cfg.Badger, log)
		if err != nil {
			return nil, err
		}
		return s, nil

	case BackendRedis:
		var tlsConfig *tls.Config
		if cfg.Redis.TLS.Enabled {
			c, err := tlsroots.NewClientConfig(tlsroots.ClientOptions{
				CAFile:     cfg.Redis.TLS.CAFile,
				CertFile:   cfg.Redis.TLS.CertFile,
				KeyFile:    cfg.Redis.TLS.KeyFile,
				ServerName: cfg.Redis.TLS.ServerName,
			})
			if err != nil {
				return nil, fmt.Errorf("redis tls: %w", err)
			}
			tlsConfig = c
		}
		s, err := redisstore.Dial(ctx,
			redisstore.DialOptions{
				Addr:        cfg.Redis.Addr,
				Username:    cfg.Redis.Username,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
				TLSConfig:   tlsConfig,
			},
			redisstore.Config{
				KeyPrefix: cfg.Redis.KeyPrefix,
				Retention: cfg.Redis.Retention,
				PageSize:  cfg.Redis.PageSize,
			},
			log)
		if err != nil {
			return nil, err
		}
		return s, nil

	case BackendPostgres:
		s, err := postgres.Open(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Durable reports whether records survive a process restart.
func Durable(backend string) bool {
	return backend != BackendMemory && backend != ""
}
