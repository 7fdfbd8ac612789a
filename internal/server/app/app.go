// Package app assembles a running tokenkeeper process from its
// configuration: store, token service, cleaner, metrics listener, config
// watcher and shutdown hooks.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/core/service"
	"github.com/yndnr/tokenkeeper/internal/infra/buildinfo"
	"github.com/yndnr/tokenkeeper/internal/infra/confloader"
	"github.com/yndnr/tokenkeeper/internal/infra/shutdown"
	"github.com/yndnr/tokenkeeper/internal/server/config"
	"github.com/yndnr/tokenkeeper/internal/server/httpserver"
	"github.com/yndnr/tokenkeeper/internal/storage"
	"github.com/yndnr/tokenkeeper/internal/storage/memory"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
	"github.com/yndnr/tokenkeeper/internal/telemetry/metric"
)

// readinessHash is looked up by the readiness check. It is well formed and
// never issued, so a healthy store answers ErrTokenNotFound.
var readinessHash = domain.HashSecret("tokenkeeper-readiness-check")

// Option configures a Server.
type Option func(*Server)

// WithConfigFile enables hot reload of the given file.
func WithConfigFile(path string) Option {
	return func(s *Server) {
		s.configPath = path
	}
}

// WithServiceOptions appends options to the token service.
func WithServiceOptions(opts ...service.TokenServiceOption) Option {
	return func(s *Server) {
		s.serviceOpts = append(s.serviceOpts, opts...)
	}
}

// WithCleanerOptions appends options to the cleaner.
func WithCleanerOptions(opts ...service.CleanerOption) Option {
	return func(s *Server) {
		s.cleanerOpts = append(s.cleanerOpts, opts...)
	}
}

// Server is one tokenkeeper process.
type Server struct {
	log        logger.Logger
	configPath string

	serviceOpts []service.TokenServiceOption
	cleanerOpts []service.CleanerOption

	store   service.TokenStore
	metrics *metric.Registry
	tokens  *service.TokenService
	cleaner *service.TokenCleaner
	ops     *httpserver.Server
	hooks   *shutdown.Handler

	// mu guards cfg and stopping across reloads.
	mu       sync.Mutex
	cfg      *config.ServerConfig
	stopping bool
}

// New opens the store and builds the service and cleaner. Nothing runs
// until Start. If New fails, everything it opened is closed.
func New(ctx context.Context, cfg *config.ServerConfig, log logger.Logger, opts ...Option) (*Server, error) {
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		log:     log,
		cfg:     cfg,
		metrics: metric.NewRegistry(),
		hooks:   shutdown.NewHandler(cfg.ShutdownTimeout, log),
	}
	for _, opt := range opts {
		opt(s)
	}

	store, err := storage.Open(ctx, cfg.StorageConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	s.store = store

	if err := s.registerStoreMetrics(); err != nil {
		_ = store.Close()
		return nil, err
	}

	s.tokens = service.NewTokenService(store, cfg.TokenServiceConfig(),
		append([]service.TokenServiceOption{
			service.WithLogger(log),
			service.WithMetrics(s.metrics),
		}, s.serviceOpts...)...)
	s.cleaner = service.NewTokenCleaner(store, cfg.CleanerConfig(),
		append([]service.CleanerOption{
			service.WithCleanerLogger(log),
			service.WithCleanerMetrics(s.metrics),
		}, s.cleanerOpts...)...)

	return s, nil
}

func (s *Server) registerStoreMetrics() error {
	switch st := s.store.(type) {
	case *storage.BadgerStore:
		if err := st.RegisterMetrics(s.metrics.Prometheus()); err != nil {
			return fmt.Errorf("register badger metrics: %w", err)
		}
	case *memory.Store:
		if err := s.metrics.Prometheus().Register(metric.NewCollector(storage.BackendMemory, st)); err != nil {
			return fmt.Errorf("register store metrics: %w", err)
		}
	}
	return nil
}

// Tokens returns the token service.
func (s *Server) Tokens() *service.TokenService { return s.tokens }

// Cleaner returns the cleaner.
func (s *Server) Cleaner() *service.TokenCleaner { return s.cleaner }

// Metrics returns the metrics registry.
func (s *Server) Metrics() *metric.Registry { return s.metrics }

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (s *Server) MetricsAddr() string {
	if s.ops == nil {
		return ""
	}
	return s.ops.Addr()
}

// Config returns the active configuration.
func (s *Server) Config() *config.ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start starts the metrics listener, the cleaner and the config watcher.
//
// Hooks are registered so that shutdown stops the watcher first, then the
// cleaner, and closes the store last. The store close hook is registered even if Start
// fails, so Shutdown always releases it.
func (s *Server) Start() error {
	cfg := s.Config()

	s.hooks.OnShutdown("store", func(context.Context) error {
		return s.store.Close()
	})

	if cfg.Metrics.Enabled {
		s.ops = httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(&httpserver.RouterConfig{
			Metrics:     s.metrics.Handler(),
			MetricsPath: cfg.Metrics.Path,
			Ready:       s.ready,
			Cleaner:     s.cleaner.Status,
			Logger:      s.log,
		}), s.log)
		start := s.ops.Start
		if cfg.Metrics.TLSEnabled() {
			start = func() error {
				return s.ops.StartTLS(cfg.Metrics.TLSCertFile, cfg.Metrics.TLSKeyFile)
			}
		}
		if err := start(); err != nil {
			s.ops = nil
			return fmt.Errorf("start metrics listener: %w", err)
		}
		s.hooks.OnShutdown("metrics", s.ops.Shutdown)
	}

	if cfg.Cleaner.Enabled {
		if err := s.cleaner.Start(cfg.Cleaner.Interval); err != nil {
			return fmt.Errorf("start cleaner: %w", err)
		}
	}
	s.hooks.OnShutdownFunc("cleaner", s.stopCleaner)

	// Registered after the cleaner so the watcher stops first.
	if s.configPath != "" {
		if err := s.watch(); err != nil {
			return err
		}
	}

	info := buildinfo.Get()
	s.log.Info("tokenkeeper started",
		"version", info.Version,
		"backend", cfg.Storage.Backend,
		"cleaner_enabled", cfg.Cleaner.Enabled,
		"cleaner_interval", cfg.Cleaner.Interval,
		"metrics_addr", s.MetricsAddr(),
		"metrics_tls", cfg.Metrics.TLSEnabled())
	return nil
}

func (s *Server) watch() error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(s.log))
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := w.Watch(s.configPath); err != nil {
		_ = w.Stop()
		return fmt.Errorf("watch config: %w", err)
	}
	w.OnChange(func(path string) {
		if err := s.ReloadFile(path); err != nil {
			s.log.Error("configuration reload failed", "path", path, "error", err)
		}
	})
	w.StartAsync()
	s.hooks.OnShutdown("config_watcher", func(context.Context) error {
		return w.Stop()
	})
	return nil
}

// stopCleaner stops the cleaner for good. Reloads after it are refused, so
// a late file change cannot restart the cleaner over a closing store.
func (s *Server) stopCleaner() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.cleaner.Stop()
}

// Run starts the server and blocks until a signal or ctx cancellation,
// then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return errors.Join(err, s.hooks.Shutdown())
	}
	return s.hooks.Wait(ctx)
}

// Shutdown runs the shutdown hooks. It is safe to call more than once.
func (s *Server) Shutdown() error {
	return s.hooks.Shutdown()
}

// ready reports whether the store answers lookups.
func (s *Server) ready(ctx context.Context) error {
	_, err := s.store.Get(ctx, readinessHash)
	if err == nil || errors.Is(err, domain.ErrTokenNotFound) {
		return nil
	}
	return err
}
