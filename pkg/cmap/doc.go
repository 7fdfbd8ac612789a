// Package cmap provides a concurrent map implementation for tokenkeeper.
//
// The map is split into a power-of-two number of shards, each guarded by
// its own RWMutex, so that contention is scoped to a fraction of the keys:
//
//   - Sharding: murmur3 distributes keys across shards
//   - Fine-grained Locking: per-shard RWMutex, never a map-wide lock
//   - Atomic per-key updates: SetIfAbsent, Compute, DeleteIf, Pop
//   - Lazy scans: KeysWhere snapshots one shard at a time and yields
//     outside the lock, so callers may mutate the map while scanning
//
// Usage:
//
//	m := cmap.New[string, *domain.Token]()
//	m.Set(id, tok)
//	tok, ok := m.Get(id)
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete, Compute) use Lock.
package cmap
