package service

import (
	"context"
	"iter"
	"time"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
)

// TokenStore is durable keyed storage for token records.
//
// Records are addressed by secret hash for reads and revocation, and by
// ID for deletion. Implementations must be safe for concurrent use and must
// never lock more than one record, shard or page at a time.
//
// Errors:
//   - domain.ErrTokenNotFound when no record matches
//   - domain.ErrDuplicateSecret from Put when the secret hash is taken
//   - domain.ErrStoreUnavailable wrapping any persistence failure
type TokenStore interface {
	// Put inserts a new record. It never overwrites.
	Put(ctx context.Context, tok *domain.Token) error

	// Get returns a copy of the record stored under secretHash.
	Get(ctx context.Context, secretHash string) (*domain.Token, error)

	// MarkRevoked atomically sets Revoked and RevokedAt on one record and
	// returns the updated copy. Revoking twice keeps the first RevokedAt.
	MarkRevoked(ctx context.Context, secretHash string, at time.Time) (*domain.Token, error)

	// Delete removes the record with the given ID. removed is false when no
	// record had that ID; that is not an error.
	Delete(ctx context.Context, id string) (removed bool, err error)

	// ListExpiredOrRevoked lazily yields IDs of records that are revoked or
	// have ExpiresAt <= now. Matches are gathered in bounded batches and
	// yielded with no lock or transaction held, so the consumer may Delete
	// inside the loop. A non-nil error ends the sequence.
	ListExpiredOrRevoked(ctx context.Context, now time.Time) iter.Seq2[string, error]

	// Close releases the store's resources.
	Close() error
}
