package config

import "time"

// ServerConfig is the root configuration for tokenkeeper.
type ServerConfig struct {
	Storage StorageSection `koanf:"storage" yaml:"storage"`
	Token   TokenSection   `koanf:"token" yaml:"token"`
	Cleaner CleanerSection `koanf:"cleaner" yaml:"cleaner"`
	Metrics MetricsSection `koanf:"metrics" yaml:"metrics"`
	Log     LogSection     `koanf:"log" yaml:"log"`

	// ShutdownTimeout bounds the shutdown hooks as a whole.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageSection selects and configures the token store.
type StorageSection struct {
	// Backend is one of memory, badger, redis, postgres.
	Backend  string         `koanf:"backend" yaml:"backend"`
	Memory   MemoryConfig   `koanf:"memory" yaml:"memory"`
	Badger   BadgerConfig   `koanf:"badger" yaml:"badger"`
	Redis    RedisConfig    `koanf:"redis" yaml:"redis"`
	Postgres PostgresConfig `koanf:"postgres" yaml:"postgres"`
}

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	Shards int `koanf:"shards" yaml:"shards"`
}

// BadgerConfig configures the embedded badger store.
type BadgerConfig struct {
	Dir         string        `koanf:"dir" yaml:"dir"`
	GCInterval  time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold" yaml:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes" yaml:"sync_writes"`

	// EncryptionKey is a hex AES-256 or ChaCha20 key. Empty stores records
	// unsealed.
	EncryptionKey string `koanf:"encryption_key" yaml:"encryption_key"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr        string        `koanf:"addr" yaml:"addr"`
	Username    string        `koanf:"username" yaml:"username"`
	Password    string        `koanf:"password" yaml:"password"`
	DB          int           `koanf:"db" yaml:"db"`
	KeyPrefix   string        `koanf:"key_prefix" yaml:"key_prefix"`
	Retention   time.Duration `koanf:"retention" yaml:"retention"`
	DialTimeout time.Duration `koanf:"dial_timeout" yaml:"dial_timeout"`

	TLS RedisTLSConfig `koanf:"tls" yaml:"tls"`
}

// RedisTLSConfig enables TLS to redis. An empty CAFile trusts the system
// roots. CertFile and KeyFile present a client certificate.
type RedisTLSConfig struct {
	Enabled    bool   `koanf:"enabled" yaml:"enabled"`
	CAFile     string `koanf:"ca_file" yaml:"ca_file"`
	CertFile   string `koanf:"cert_file" yaml:"cert_file"`
	KeyFile    string `koanf:"key_file" yaml:"key_file"`
	ServerName string `koanf:"server_name" yaml:"server_name"`
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN          string `koanf:"dsn" yaml:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns" yaml:"max_idle_conns"`
	Migrate      bool   `koanf:"migrate" yaml:"migrate"`
}

// TokenSection configures issuance.
type TokenSection struct {
	DefaultTTL       time.Duration `koanf:"default_ttl" yaml:"default_ttl"`
	MaxTTL           time.Duration `koanf:"max_ttl" yaml:"max_ttl"`
	MaxIssueAttempts int           `koanf:"max_issue_attempts" yaml:"max_issue_attempts"`
}

// CleanerSection configures the background sweep.
type CleanerSection struct {
	Enabled      bool          `koanf:"enabled" yaml:"enabled"`
	Interval     time.Duration `koanf:"interval" yaml:"interval"`
	DeleteRate   float64       `koanf:"delete_rate" yaml:"delete_rate"`
	DeleteBurst  int           `koanf:"delete_burst" yaml:"delete_burst"`
	SweepTimeout time.Duration `koanf:"sweep_timeout" yaml:"sweep_timeout"`

	// BatchSize is how many records a backend reads per listing page.
	BatchSize int `koanf:"batch_size" yaml:"batch_size"`
}

// MetricsSection configures the operations listener that serves metrics,
// health and cleaner status.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
	Path    string `koanf:"path" yaml:"path"`

	// TLSCertFile and TLSKeyFile switch the listener to HTTPS. The pair is
	// reloaded when either file changes.
	TLSCertFile string `koanf:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file" yaml:"tls_key_file"`
}

// TLSEnabled reports whether the listener serves HTTPS.
func (m MetricsSection) TLSEnabled() bool {
	return m.TLSCertFile != ""
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
