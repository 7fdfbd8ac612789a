package config

import "time"

// Default configuration values.
const (
	DefaultBackend     = "memory"
	DefaultMemoryShard = 32
	DefaultBadgerDir   = "/var/lib/tokenkeeper/badger"

	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultRedisKeyPrefix = "tokenkeeper:"
	DefaultRedisRetention = 24 * time.Hour

	DefaultTokenTTL         = time.Hour
	DefaultMaxTokenTTL      = 30 * 24 * time.Hour
	DefaultMaxIssueAttempts = 5

	DefaultCleanerInterval = time.Minute
	DefaultSweepTimeout    = 30 * time.Second
	DefaultBatchSize       = 256

	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultShutdownTimeout = 30 * time.Second
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Storage: StorageSection{
			Backend: DefaultBackend,
			Memory: MemoryConfig{
				Shards: DefaultMemoryShard,
			},
			Badger: BadgerConfig{
				Dir:         DefaultBadgerDir,
				GCInterval:  10 * time.Minute,
				GCThreshold: 0.5,
				SyncWrites:  true,
			},
			Redis: RedisConfig{
				Addr:        DefaultRedisAddr,
				KeyPrefix:   DefaultRedisKeyPrefix,
				Retention:   DefaultRedisRetention,
				DialTimeout: 5 * time.Second,
			},
			Postgres: PostgresConfig{
				MaxOpenConns: 10,
				MaxIdleConns: 5,
				Migrate:      true,
			},
		},
		Token: TokenSection{
			DefaultTTL:       DefaultTokenTTL,
			MaxTTL:           DefaultMaxTokenTTL,
			MaxIssueAttempts: DefaultMaxIssueAttempts,
		},
		Cleaner: CleanerSection{
			Enabled:      true,
			Interval:     DefaultCleanerInterval,
			SweepTimeout: DefaultSweepTimeout,
			BatchSize:    DefaultBatchSize,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
			Path:    DefaultMetricsPath,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}
