// Package token provides secret generation and hashing primitives.
//
// Secrets are random byte strings encoded as Base64 RawURL. The caller
// decides the prefix and the random source; production code passes nil to
// use crypto/rand, tests pass a deterministic io.Reader.
//
// Hashing:
//
//   - SHA-256, hex encoded (64 characters)
//   - Verify uses constant-time comparison
//   - Only hashes are persisted, never the secret itself
package token
