package app

import (
	"errors"
	"fmt"

	"github.com/yndnr/tokenkeeper/internal/infra/confloader"
	"github.com/yndnr/tokenkeeper/internal/server/config"
)

// ErrShuttingDown is returned by Reload once shutdown has begun.
var ErrShuttingDown = errors.New("server is shutting down")

// ReloadFile reads path over the defaults and environment, then applies
// the result with Reload.
func (s *Server) ReloadFile(path string) error {
	cfg := config.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return s.Reload(cfg)
}

// Reload applies a new configuration to the running server.
//
// The log level and the cleaner schedule take effect immediately. Other
// settings need a restart and are only reported.
func (s *Server) Reload(next *config.ServerConfig) error {
	if err := config.Verify(next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return ErrShuttingDown
	}
	prev := s.cfg

	if next.Log.Level != prev.Log.Level {
		if err := s.log.SetLevel(next.Log.Level); err != nil {
			return err
		}
		s.log.Info("log level changed", "from", prev.Log.Level, "to", next.Log.Level)
	}

	if next.Cleaner.Enabled != prev.Cleaner.Enabled || next.Cleaner.Interval != prev.Cleaner.Interval {
		s.cleaner.Stop()
		if next.Cleaner.Enabled {
			if err := s.cleaner.Start(next.Cleaner.Interval); err != nil {
				return err
			}
		}
		s.log.Info("cleaner schedule changed",
			"enabled", next.Cleaner.Enabled,
			"interval", next.Cleaner.Interval)
	}

	if restart := restartRequired(prev, next); len(restart) > 0 {
		s.log.Warn("configuration changes need a restart", "sections", restart)
	}

	applied := *next
	// Sections that were not applied keep their running values.
	applied.Storage = prev.Storage
	applied.Token = prev.Token
	applied.Metrics = prev.Metrics
	applied.Log.Format = prev.Log.Format
	applied.ShutdownTimeout = prev.ShutdownTimeout
	applied.Cleaner.DeleteRate = prev.Cleaner.DeleteRate
	applied.Cleaner.DeleteBurst = prev.Cleaner.DeleteBurst
	applied.Cleaner.SweepTimeout = prev.Cleaner.SweepTimeout
	applied.Cleaner.BatchSize = prev.Cleaner.BatchSize
	s.cfg = &applied
	return nil
}

func restartRequired(prev, next *config.ServerConfig) []string {
	var out []string
	if prev.Storage != next.Storage {
		out = append(out, "storage")
	}
	if prev.Token != next.Token {
		out = append(out, "token")
	}
	if prev.Metrics != next.Metrics {
		out = append(out, "metrics")
	}
	if prev.Log.Format != next.Log.Format {
		out = append(out, "log.format")
	}
	if prev.ShutdownTimeout != next.ShutdownTimeout {
		out = append(out, "shutdown_timeout")
	}
	pc, nc := prev.Cleaner, next.Cleaner
	if pc.DeleteRate != nc.DeleteRate || pc.DeleteBurst != nc.DeleteBurst ||
		pc.SweepTimeout != nc.SweepTimeout || pc.BatchSize != nc.BatchSize {
		out = append(out, "cleaner")
	}
	return out
}
