package service

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/storage/memory"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFakeClock() *testingclock.FakeClock {
	return testingclock.NewFakeClock(epoch)
}

func newTestService(t *testing.T, store TokenStore, fc *testingclock.FakeClock, opts ...TokenServiceOption) *TokenService {
	t.Helper()
	opts = append([]TokenServiceOption{WithClock(fc), WithLogger(logger.NewNop())}, opts...)
	return NewTokenService(store, nil, opts...)
}

func newTestCleaner(t *testing.T, store TokenStore, fc *testingclock.FakeClock, cfg *CleanerConfig, opts ...CleanerOption) *TokenCleaner {
	t.Helper()
	opts = append([]CleanerOption{WithCleanerClock(fc), WithCleanerLogger(logger.NewNop())}, opts...)
	c := NewTokenCleaner(store, cfg, opts...)
	t.Cleanup(c.Stop)
	return c
}

func newMemoryStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitCycles blocks until the cleaner has completed at least n cycles.
func waitCycles(t *testing.T, c *TokenCleaner, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status().Cycles >= n
	}, 2*time.Second, time.Millisecond, "cleaner did not complete %d cycles", n)
}

// faultyStore wraps a TokenStore and injects failures.
type faultyStore struct {
	TokenStore

	getErr    error
	putErr    error
	listErr   error
	failIDs   map[string]bool
	listCalls atomic.Int32

	// deleteGate, when set, blocks every Delete until it is closed.
	deleteGate    chan struct{}
	deleteEntered chan struct{}
	enterOnce     sync.Once
}

func (f *faultyStore) Get(ctx context.Context, hash string) (*domain.Token, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.TokenStore.Get(ctx, hash)
}

func (f *faultyStore) Put(ctx context.Context, tok *domain.Token) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.TokenStore.Put(ctx, tok)
}

func (f *faultyStore) Delete(ctx context.Context, id string) (bool, error) {
	if f.deleteGate != nil {
		f.enterOnce.Do(func() { close(f.deleteEntered) })
		<-f.deleteGate
	}
	if f.failIDs[id] {
		return false, domain.ErrStoreUnavailable.WithDetails("injected delete failure")
	}
	return f.TokenStore.Delete(ctx, id)
}

func (f *faultyStore) ListExpiredOrRevoked(ctx context.Context, now time.Time) iter.Seq2[string, error] {
	f.listCalls.Add(1)
	if f.listErr != nil {
		return func(yield func(string, error) bool) {
			yield("", f.listErr)
		}
	}
	return f.TokenStore.ListExpiredOrRevoked(ctx, now)
}

// repeatReader yields the same block forever, forcing identical secrets.
type repeatReader struct {
	block []byte
}

func (r repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.block[i%len(r.block)]
	}
	return len(p), nil
}
