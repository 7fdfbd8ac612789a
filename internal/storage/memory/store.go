package memory

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/pkg/cmap"
)

// Store is an in-memory TokenStore.
type Store struct {
	records *cmap.Map[string, *domain.Token]
	secrets *cmap.Map[string, string]

	shards int
	closed atomic.Bool
}

// Option configures the Store.
type Option func(*Store)

// WithShards sets the shard count of both maps. Must be a power of two.
func WithShards(n int) Option {
	return func(s *Store) {
		s.shards = n
	}
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{shards: cmap.DefaultShardCount}
	for _, opt := range opts {
		opt(s)
	}

	s.records = cmap.NewWithShards[string, *domain.Token](s.shards)
	s.secrets = cmap.NewWithShards[string, string](s.shards)
	return s
}

// Put stores a new record.
//
// The secret hash is claimed first; the record becomes visible only after
// the claim succeeds, so two concurrent Puts of one secret cannot both win.
func (s *Store) Put(_ context.Context, tok *domain.Token) error {
	if err := s.check(); err != nil {
		return err
	}
	if tok == nil {
		return domain.ErrInvalidArgument.WithDetails("token is nil")
	}

	rec := tok.Clone()
	if !s.secrets.SetIfAbsent(rec.SecretHash, rec.ID) {
		return domain.ErrDuplicateSecret
	}
	if !s.records.SetIfAbsent(rec.ID, rec) {
		// Release the claim so the hash is not orphaned.
		s.secrets.DeleteIf(rec.SecretHash, func(id string) bool { return id == rec.ID })
		return domain.ErrDuplicateSecret.WithDetails("token id already exists")
	}
	return nil
}

// Get retrieves a record by secret hash.
func (s *Store) Get(_ context.Context, secretHash string) (*domain.Token, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	id, ok := s.secrets.Get(secretHash)
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	rec, ok := s.records.Get(id)
	if !ok {
		// Claimed by an in-flight Put or released by a concurrent Delete.
		return nil, domain.ErrTokenNotFound
	}
	return rec.Clone(), nil
}

// MarkRevoked revokes the record under secretHash in one shard update.
func (s *Store) MarkRevoked(_ context.Context, secretHash string, at time.Time) (*domain.Token, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	id, ok := s.secrets.Get(secretHash)
	if !ok {
		return nil, domain.ErrTokenNotFound
	}

	updated, ok := s.records.Compute(id, func(cur *domain.Token, exists bool) (*domain.Token, bool) {
		if !exists {
			return nil, false
		}
		if cur.Revoked {
			return cur, true
		}
		next := cur.Clone()
		next.Revoke(at)
		return next, true
	})
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return updated.Clone(), nil
}

// Delete removes a record by ID. Deleting a missing ID is a no-op.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	rec, ok := s.records.Pop(id)
	if !ok {
		return false, nil
	}
	s.secrets.DeleteIf(rec.SecretHash, func(owner string) bool { return owner == id })
	return true, nil
}

// ListExpiredOrRevoked yields purgeable IDs one shard at a time.
func (s *Store) ListExpiredOrRevoked(ctx context.Context, now time.Time) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := s.check(); err != nil {
			yield("", err)
			return
		}

		purgeable := s.records.KeysWhere(func(_ string, t *domain.Token) bool {
			return t.IsPurgeable(now)
		})
		for id := range purgeable {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return s.records.Count()
}

// Close drops all records. Later calls fail with ErrStoreUnavailable.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.records.Clear()
	s.secrets.Clear()
	return nil
}

func (s *Store) check() error {
	if s.closed.Load() {
		return domain.ErrStoreUnavailable.WithDetails("memory store closed")
	}
	return nil
}
