// Package storetest is a conformance suite for service.TokenStore
// implementations. Each backend's tests call Run with a constructor.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/core/service"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) service.TokenStore

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("DuplicateSecret", func(t *testing.T) { testDuplicateSecret(t, newStore(t)) })
	t.Run("ConcurrentPutSameSecret", func(t *testing.T) { testConcurrentPutSameSecret(t, newStore(t)) })
	t.Run("ReturnsCopies", func(t *testing.T) { testReturnsCopies(t, newStore(t)) })
	t.Run("MarkRevoked", func(t *testing.T) { testMarkRevoked(t, newStore(t)) })
	t.Run("MarkRevokedMissing", func(t *testing.T) { testMarkRevokedMissing(t, newStore(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, newStore(t)) })
	t.Run("SecretReusableAfterDelete", func(t *testing.T) { testSecretReusableAfterDelete(t, newStore(t)) })
	t.Run("ListExpiredOrRevoked", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ListDeleteInsideLoop", func(t *testing.T) { testListDeleteInsideLoop(t, newStore(t)) })
	t.Run("ListEarlyBreak", func(t *testing.T) { testListEarlyBreak(t, newStore(t)) })
	t.Run("ListEmpty", func(t *testing.T) { testListEmpty(t, newStore(t)) })
	t.Run("ConcurrentAccessDuringList", func(t *testing.T) { testConcurrentAccessDuringList(t, newStore(t)) })
}

// Base is a reference instant close to wall time, truncated so every
// backend round-trips it exactly.
func Base() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewToken builds a well-formed record issued at issued for ttl.
func NewToken(t testing.TB, subject string, issued time.Time, ttl time.Duration) *domain.Token {
	t.Helper()
	id, err := domain.GenerateTokenID(issued, nil)
	require.NoError(t, err)
	_, hash, err := domain.GenerateSecret(nil)
	require.NoError(t, err)
	return domain.NewToken(id, hash, subject, issued, ttl)
}

func assertSameToken(t *testing.T, want, got *domain.Token) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.SecretHash, got.SecretHash)
	assert.Equal(t, want.SubjectID, got.SubjectID)
	assert.WithinDuration(t, want.IssuedAt, got.IssuedAt, 0)
	assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, 0)
	assert.Equal(t, want.Revoked, got.Revoked)
}

func collect(t *testing.T, s service.TokenStore, now time.Time) []string {
	t.Helper()
	var ids []string
	for id, err := range s.ListExpiredOrRevoked(context.Background(), now) {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func testPutGet(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	tok := NewToken(t, "user-1", Base(), time.Hour)

	require.NoError(t, s.Put(ctx, tok))

	got, err := s.Get(ctx, tok.SecretHash)
	require.NoError(t, err)
	assertSameToken(t, tok, got)
}

func testGetMissing(t *testing.T, s service.TokenStore) {
	_, hash, err := domain.GenerateSecret(nil)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), hash)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func testDuplicateSecret(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	first := NewToken(t, "user-1", Base(), time.Hour)
	require.NoError(t, s.Put(ctx, first))

	second := NewToken(t, "user-2", Base(), time.Hour)
	second.SecretHash = first.SecretHash
	assert.ErrorIs(t, s.Put(ctx, second), domain.ErrDuplicateSecret)

	// The original record is untouched.
	got, err := s.Get(ctx, first.SecretHash)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "user-1", got.SubjectID)
}

func testConcurrentPutSameSecret(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	_, hash, err := domain.GenerateSecret(nil)
	require.NoError(t, err)

	const writers = 16
	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		unknown atomic.Int32
	)
	tokens := make([]*domain.Token, writers)
	for i := range tokens {
		tokens[i] = NewToken(t, fmt.Sprintf("user-%d", i), Base(), time.Hour)
		tokens[i].SecretHash = hash
	}
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok *domain.Token) {
			defer wg.Done()
			switch err := s.Put(ctx, tok); {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrDuplicateSecret):
			default:
				unknown.Add(1)
			}
		}(tok)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one writer must own the secret")
	assert.Zero(t, unknown.Load())
}

func testReturnsCopies(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	tok := NewToken(t, "user-1", Base(), time.Hour)
	require.NoError(t, s.Put(ctx, tok))

	// Mutating the caller's value after Put must not leak into the store.
	tok.SubjectID = "mutated"

	got, err := s.Get(ctx, tok.SecretHash)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.SubjectID)

	got.Revoked = true
	again, err := s.Get(ctx, tok.SecretHash)
	require.NoError(t, err)
	assert.False(t, again.Revoked)
}

func testMarkRevoked(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	base := Base()
	tok := NewToken(t, "user-1", base, time.Hour)
	require.NoError(t, s.Put(ctx, tok))

	first := base.Add(time.Minute)
	rec, err := s.MarkRevoked(ctx, tok.SecretHash, first)
	require.NoError(t, err)
	assert.True(t, rec.Revoked)
	assert.WithinDuration(t, first, rec.RevokedAt, 0)

	// Second revocation keeps the original instant.
	rec, err = s.MarkRevoked(ctx, tok.SecretHash, first.Add(time.Minute))
	require.NoError(t, err)
	assert.WithinDuration(t, first, rec.RevokedAt, 0)

	got, err := s.Get(ctx, tok.SecretHash)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.WithinDuration(t, first, got.RevokedAt, 0)
}

func testMarkRevokedMissing(t *testing.T, s service.TokenStore) {
	_, hash, err := domain.GenerateSecret(nil)
	require.NoError(t, err)

	_, err = s.MarkRevoked(context.Background(), hash, Base())
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func testDeleteIdempotent(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	tok := NewToken(t, "user-1", Base(), time.Hour)
	require.NoError(t, s.Put(ctx, tok))

	removed, err := s.Delete(ctx, tok.ID)
	require.NoError(t, err)
	assert.True(t, removed, "first delete removes the record")

	removed, err = s.Delete(ctx, tok.ID)
	require.NoError(t, err)
	assert.False(t, removed, "second delete finds nothing")

	removed, err = s.Delete(ctx, "tktk-01hqz7x3k5m8n9p0q1r2s3t4v5")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Get(ctx, tok.SecretHash)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func testSecretReusableAfterDelete(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	tok := NewToken(t, "user-1", Base(), time.Hour)
	require.NoError(t, s.Put(ctx, tok))
	_, err := s.Delete(ctx, tok.ID)
	require.NoError(t, err)

	again := NewToken(t, "user-2", Base(), time.Hour)
	again.SecretHash = tok.SecretHash
	require.NoError(t, s.Put(ctx, again))

	got, err := s.Get(ctx, tok.SecretHash)
	require.NoError(t, err)
	assert.Equal(t, again.ID, got.ID)
}

func testList(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	base := Base()

	var want []string
	// Expired: ExpiresAt before now.
	for i := 0; i < 5; i++ {
		tok := NewToken(t, "expired", base.Add(-2*time.Hour), time.Hour)
		require.NoError(t, s.Put(ctx, tok))
		want = append(want, tok.ID)
	}
	// Expiring exactly now counts as expired.
	edge := NewToken(t, "edge", base.Add(-time.Minute), time.Minute)
	require.NoError(t, s.Put(ctx, edge))
	want = append(want, edge.ID)

	// Revoked but otherwise live.
	for i := 0; i < 3; i++ {
		tok := NewToken(t, "revoked", base, time.Hour)
		require.NoError(t, s.Put(ctx, tok))
		_, err := s.MarkRevoked(ctx, tok.SecretHash, base)
		require.NoError(t, err)
		want = append(want, tok.ID)
	}
	// Live.
	for i := 0; i < 7; i++ {
		require.NoError(t, s.Put(ctx, NewToken(t, "live", base, time.Hour)))
	}

	sort.Strings(want)
	assert.Equal(t, want, collect(t, s, base))

	// Restartable: a second pass yields the same set.
	assert.Equal(t, want, collect(t, s, base))
}

func testListDeleteInsideLoop(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	base := Base()

	const expired, live = 40, 10
	for i := 0; i < expired; i++ {
		require.NoError(t, s.Put(ctx, NewToken(t, "expired", base.Add(-time.Hour), time.Minute)))
	}
	liveTokens := make([]*domain.Token, 0, live)
	for i := 0; i < live; i++ {
		tok := NewToken(t, "live", base, time.Hour)
		require.NoError(t, s.Put(ctx, tok))
		liveTokens = append(liveTokens, tok)
	}

	deleted := 0
	for id, err := range s.ListExpiredOrRevoked(ctx, base) {
		require.NoError(t, err)
		removed, err := s.Delete(ctx, id)
		require.NoError(t, err)
		if removed {
			deleted++
		}
	}

	assert.Equal(t, expired, deleted)
	assert.Empty(t, collect(t, s, base))
	for _, tok := range liveTokens {
		_, err := s.Get(ctx, tok.SecretHash)
		assert.NoError(t, err)
	}
}

func testListEarlyBreak(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	base := Base()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(ctx, NewToken(t, "expired", base.Add(-time.Hour), time.Minute)))
	}

	n := 0
	for _, err := range s.ListExpiredOrRevoked(ctx, base) {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func testListEmpty(t *testing.T, s service.TokenStore) {
	assert.Empty(t, collect(t, s, Base()))
}

func testConcurrentAccessDuringList(t *testing.T, s service.TokenStore) {
	ctx := context.Background()
	base := Base()
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Put(ctx, NewToken(t, "expired", base.Add(-time.Hour), time.Minute)))
	}
	live := NewToken(t, "live", base, time.Hour)
	require.NoError(t, s.Put(ctx, live))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := s.Get(ctx, live.SecretHash); !assert.NoError(t, err, "Get during sweep") {
				return
			}
			id, _ := domain.GenerateTokenID(base, nil)
			_, hash, _ := domain.GenerateSecret(nil)
			if err := s.Put(ctx, domain.NewToken(id, hash, "during", base, time.Hour)); !assert.NoError(t, err, "Put during sweep") {
				return
			}
		}
	}()

	for id, err := range s.ListExpiredOrRevoked(ctx, base) {
		require.NoError(t, err)
		_, err = s.Delete(ctx, id)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Empty(t, collect(t, s, base))
}
