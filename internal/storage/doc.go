// Package storage opens the configured token store backend.
//
// Four backends implement service.TokenStore:
//
//   - memory: sharded in-process maps (package memory)
//   - badger: embedded durable KV with optional sealing at rest (this package)
//   - redis: shared store with per-key safety TTLs (package redisstore)
//   - postgres: relational store with goose migrations (package postgres)
//
// Every backend lists purgeable records in bounded batches and holds no
// lock or transaction while yielding, so the cleaner can delete as it goes.
package storage
