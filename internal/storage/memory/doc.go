// Package memory provides in-memory token storage.
//
// The store keeps two sharded maps from pkg/cmap:
//
//   - records: token ID -> record
//   - secrets: secret hash -> token ID
//
// Every operation locks at most one shard of one map at a time; there is no
// store-wide lock. Stored records are never mutated in place: revocation
// replaces the record with an updated copy, so readers always see either
// the old or the new version.
//
// Contents are lost on restart. Use it for tests, single-process
// deployments that accept that, or as a reference for the other backends.
package memory
