// Package logger provides structured logging for tokenkeeper.
//
// It wraps log/slog:
//
//   - logger.go: handler selection, per-logger dynamic level
//   - context.go: context propagation of loggers and request IDs
//   - redact.go: masking of secrets and sensitive attributes
//
// Components derive a child logger tagged with their name:
//
//	log := logger.Component(base, "token_cleaner")
//	log.Info("sweep finished", "deleted", n)
package logger
