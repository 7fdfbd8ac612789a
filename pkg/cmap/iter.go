// Package cmap provides a concurrent-safe sharded map.
package cmap

import "iter"

// Range iterates over all key-value pairs.
//
// The callback returns false to stop iteration. Each shard's read lock is
// held while its entries are visited, so fn must not write to the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	m.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// KeysWhere returns a lazy sequence of the keys whose values satisfy match.
//
// Shards are visited one at a time: matching keys of a shard are copied
// under its read lock and yielded after the lock is released. The consumer
// may therefore call Set, Delete or Compute while iterating, and a writer
// waits at most for one shard scan. Keys added to an already visited shard
// are not observed. The sequence can be iterated any number of times.
func (m *Map[K, V]) KeysWhere(match func(key K, value V) bool) iter.Seq[K] {
	return func(yield func(K) bool) {
		var batch []K
		for _, s := range m.shards {
			batch = batch[:0]
			s.mu.RLock()
			for k, v := range s.items {
				if match(k, v) {
					batch = append(batch, k)
				}
			}
			s.mu.RUnlock()

			for _, k := range batch {
				if !yield(k) {
					return
				}
			}
		}
	}
}
