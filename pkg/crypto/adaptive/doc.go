// Package adaptive provides authenticated encryption for records at rest.
//
// A Cipher seals a plaintext together with additional data (typically the
// storage key of the record) so that a sealed value cannot be moved to a
// different key without Open failing.
//
// Supported Algorithms:
//
//   - AES-256-GCM: preferred where the CPU has AES instructions
//   - ChaCha20-Poly1305: fallback for everything else
//
// Sealed layout: nonce || ciphertext || tag.
//
// Keys come from configuration as hex or Base64 strings; see ParseKey.
package adaptive
