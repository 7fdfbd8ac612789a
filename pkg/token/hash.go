// Package token provides secret generation and hashing utilities.
package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash computes the hex encoded SHA-256 of s.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Verify reports whether s hashes to expectedHash.
//
// Uses constant-time comparison to prevent timing attacks.
func Verify(s, expectedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(s)), []byte(expectedHash)) == 1
}
