// Package token provides secret generation and hashing utilities.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// DefaultLength is the default secret length in bytes.
const DefaultLength = 32

// ErrInvalidLength is returned for a non-positive length.
var ErrInvalidLength = errors.New("token: length must be positive")

// Generate reads DefaultLength bytes from r and returns them Base64 RawURL
// encoded. A nil r means crypto/rand.
func Generate(r io.Reader) (string, error) {
	return GenerateWithLength(r, DefaultLength)
}

// GenerateWithLength generates an encoded secret of length random bytes.
func GenerateWithLength(r io.Reader, length int) (string, error) {
	b, err := GenerateBytes(r, length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateBytes reads exactly length bytes from r.
func GenerateBytes(r io.Reader, length int) ([]byte, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodedLength returns the Base64 RawURL length of n random bytes.
func EncodedLength(n int) int {
	return base64.RawURLEncoding.EncodedLen(n)
}
