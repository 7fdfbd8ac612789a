// Package domain defines the core domain models for tokenkeeper.
package domain

import (
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/tokenkeeper/pkg/token"
)

// Secret and identifier formats.
const (
	// SecretPrefix marks a plaintext secret (sensitive, uses underscore).
	SecretPrefix = "tks_"

	// SecretHashPrefix marks the stored hash of a secret.
	SecretHashPrefix = "tksh_"

	// TokenIDPrefix marks a token record ID (non-sensitive, uses hyphen).
	TokenIDPrefix = "tktk-"

	// SecretBytesLength is the number of random bytes in a secret.
	SecretBytesLength = token.DefaultLength

	// SecretBodyLength is the Base64 RawURL encoded length (32 bytes -> 43 chars).
	SecretBodyLength = 43

	// SecretLength is the total secret length (prefix + body).
	SecretLength = len(SecretPrefix) + SecretBodyLength // 47

	// SecretHashLength is the total hash length (prefix + hex SHA-256).
	SecretHashLength = len(SecretHashPrefix) + 64 // 69

	// TokenIDLength is the prefix plus a 26 character ULID.
	TokenIDLength = len(TokenIDPrefix) + 26 // 31

	// MaxSubjectIDLength bounds the principal identifier in bytes.
	MaxSubjectIDLength = 128
)

// Token is an issued credential record.
//
// The plaintext secret is never part of the record; only SecretHash is
// stored and used as the lookup key.
type Token struct {
	// ID is the record identifier, format tktk-{ulid_lowercase}.
	ID string `json:"id"`

	// SecretHash is the hash of the secret, format tksh_{hex_sha256}.
	SecretHash string `json:"secret_hash"`

	// SubjectID identifies the principal the token was issued to.
	SubjectID string `json:"subject_id"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Revoked never reverts once set.
	Revoked   bool      `json:"revoked"`
	RevokedAt time.Time `json:"revoked_at,omitzero"`
}

// NewToken builds a record for a freshly generated secret hash.
func NewToken(id, secretHash, subjectID string, issuedAt time.Time, ttl time.Duration) *Token {
	return &Token{
		ID:         id,
		SecretHash: secretHash,
		SubjectID:  subjectID,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(ttl),
	}
}

// Clone returns an independent copy.
func (t *Token) Clone() *Token {
	c := *t
	return &c
}

// IsExpired reports whether the token has expired at now.
// Expiry is inclusive: a token is expired at exactly ExpiresAt.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsValid reports whether the token authenticates at now.
func (t *Token) IsValid(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}

// IsPurgeable reports whether the cleaner may delete the record at now.
func (t *Token) IsPurgeable(now time.Time) bool {
	return t.Revoked || t.IsExpired(now)
}

// Revoke marks the token revoked at the given instant.
// Calling it again keeps the first RevokedAt.
func (t *Token) Revoke(at time.Time) {
	if t.Revoked {
		return
	}
	t.Revoked = true
	t.RevokedAt = at
}

// Check verifies a record is well formed before it is stored.
func (t *Token) Check() error {
	switch {
	case !ValidateTokenID(t.ID):
		return ErrInvalidArgument.WithDetails("malformed token id")
	case !ValidateSecretHashFormat(t.SecretHash):
		return ErrInvalidArgument.WithDetails("malformed secret hash")
	case !t.ExpiresAt.After(t.IssuedAt):
		return ErrInvalidArgument.WithDetails("expires_at must be after issued_at")
	}
	return ValidateSubjectID(t.SubjectID)
}

// ValidateSubjectID checks the principal identifier bounds.
func ValidateSubjectID(subjectID string) error {
	if subjectID == "" {
		return ErrInvalidArgument.WithDetails("subject id is required")
	}
	if len(subjectID) > MaxSubjectIDLength {
		return ErrInvalidArgument.WithDetails("subject id exceeds 128 bytes")
	}
	if !utf8.ValidString(subjectID) {
		return ErrInvalidArgument.WithDetails("subject id is not valid utf-8")
	}
	return nil
}

// GenerateSecret generates a secret from r (nil means crypto/rand).
// Returns the plaintext secret (tks_...) and its hash (tksh_...).
//
// The plaintext is handed to the client once at issuance. Never store or
// log it.
func GenerateSecret(r io.Reader) (secret string, hash string, err error) {
	body, err := token.Generate(r)
	if err != nil {
		return "", "", ErrInternal.WithCause(err)
	}
	secret = SecretPrefix + body
	return secret, HashSecret(secret), nil
}

// HashSecret returns tksh_{hex_sha256} of the full secret string.
func HashSecret(secret string) string {
	return SecretHashPrefix + token.Hash(secret)
}

// ValidateSecretFormat checks the prefix, length and Base64 RawURL body.
func ValidateSecretFormat(secret string) bool {
	if len(secret) != SecretLength || !strings.HasPrefix(secret, SecretPrefix) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(secret[len(SecretPrefix):])
	return err == nil
}

// ValidateSecretHashFormat checks the prefix, length and lowercase hex body.
func ValidateSecretHashFormat(hash string) bool {
	if len(hash) != SecretHashLength || !strings.HasPrefix(hash, SecretHashPrefix) {
		return false
	}
	body := hash[len(SecretHashPrefix):]
	if strings.ToLower(body) != body {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// GenerateTokenID returns a new tktk-{ulid} identifier timestamped at now.
func GenerateTokenID(now time.Time, entropy io.Reader) (string, error) {
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
	}
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return TokenIDPrefix + strings.ToLower(id.String()), nil
}

// ValidateTokenID checks the tktk-{ulid} format.
func ValidateTokenID(id string) bool {
	if len(id) != TokenIDLength || !strings.HasPrefix(id, TokenIDPrefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id[len(TokenIDPrefix):]))
	return err == nil
}

// MaskSecret masks a secret for safe logging.
// Example: tks_ABC...xyz
func MaskSecret(secret string) string {
	if !strings.HasPrefix(secret, SecretPrefix) {
		return "***REDACTED***"
	}
	body := secret[len(SecretPrefix):]
	if len(body) <= 6 {
		return SecretPrefix + "***"
	}
	return SecretPrefix + body[:3] + "..." + body[len(body)-3:]
}
