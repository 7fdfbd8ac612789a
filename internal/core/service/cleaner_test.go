package service

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/telemetry/metric"
)

func seed(t *testing.T, svc *TokenService, n int, ttl time.Duration) []*IssueResult {
	t.Helper()
	out := make([]*IssueResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := svc.Issue(context.Background(), "user", ttl)
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func TestTokenCleaner_StartInvalidInterval(t *testing.T) {
	c := newTestCleaner(t, newMemoryStore(t), newFakeClock(), nil)

	for _, d := range []time.Duration{0, -time.Second} {
		assert.ErrorIs(t, c.Start(d), domain.ErrInvalidArgument)
	}
	assert.False(t, c.Running())
	assert.Equal(t, CleanerStopped, c.Status().State)
}

func TestTokenCleaner_SweepRemovesExactlyExpired(t *testing.T) {
	fc := newFakeClock()
	store := newMemoryStore(t)
	svc := newTestService(t, store, fc)
	c := newTestCleaner(t, store, fc, nil)

	const expired, live = 30, 12
	seed(t, svc, expired, time.Minute)
	liveTokens := seed(t, svc, live, time.Hour)
	fc.Step(time.Minute)

	res, err := c.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expired, res.Deleted)
	assert.Zero(t, res.Failed)
	assert.Equal(t, live, store.Len())

	for _, tok := range liveTokens {
		_, err := svc.Validate(context.Background(), tok.SecretValue)
		assert.NoError(t, err)
	}
}

func TestTokenCleaner_SweepRemovesRevoked(t *testing.T) {
	fc := newFakeClock()
	store := newMemoryStore(t)
	svc := newTestService(t, store, fc)
	c := newTestCleaner(t, store, fc, nil)

	tokens := seed(t, svc, 3, time.Hour)
	require.NoError(t, svc.Revoke(context.Background(), tokens[0].SecretValue))

	res, err := c.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	_, err = svc.Validate(context.Background(), tokens[0].SecretValue)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestTokenCleaner_OneSecondTTLScenario(t *testing.T) {
	fc := newFakeClock()
	store := newMemoryStore(t)
	svc := newTestService(t, store, fc)
	c := newTestCleaner(t, store, fc, nil)
	ctx := context.Background()

	res, err := svc.Issue(ctx, "user-1", time.Second)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, res.SecretValue)
	require.NoError(t, err)

	require.NoError(t, c.Start(time.Second))

	fc.Step(time.Second)
	waitCycles(t, c, 1)

	_, err = svc.Validate(ctx, res.SecretValue)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	assert.Equal(t, 1, c.Status().LastDeleted)
}

func TestTokenCleaner_StartTwiceDoesNotDoubleSchedule(t *testing.T) {
	fc := newFakeClock()
	store := &faultyStore{TokenStore: newMemoryStore(t)}
	c := newTestCleaner(t, store, fc, nil)

	require.NoError(t, c.Start(time.Second))
	require.NoError(t, c.Start(time.Second))
	require.NoError(t, c.Start(5*time.Second), "start while running is a no-op")
	assert.Equal(t, time.Second, c.Status().Interval)

	fc.Step(time.Second)
	waitCycles(t, c, 1)
	c.Stop()

	assert.Equal(t, int32(1), store.listCalls.Load(), "one tick must run one sweep")
	assert.Equal(t, uint64(1), c.Status().Cycles)
}

func TestTokenCleaner_StopStart(t *testing.T) {
	fc := newFakeClock()
	store := &faultyStore{TokenStore: newMemoryStore(t)}
	c := newTestCleaner(t, store, fc, nil)

	require.NoError(t, c.Start(time.Second))
	assert.Equal(t, CleanerRunning, c.Status().State)
	assert.Equal(t, epoch.Add(time.Second), c.Status().NextRun)

	c.Stop()
	c.Stop()
	assert.False(t, c.Running())
	assert.Equal(t, CleanerStopped, c.Status().State)

	// No cycle runs while stopped.
	fc.Step(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, store.listCalls.Load())

	require.NoError(t, c.Start(2*time.Second))
	fc.Step(2 * time.Second)
	waitCycles(t, c, 1)
	c.Stop()

	assert.Equal(t, int32(1), store.listCalls.Load())
	assert.Equal(t, 2*time.Second, c.Status().Interval)
}

func TestTokenCleaner_DeleteFailureContinues(t *testing.T) {
	fc := newFakeClock()
	base := newMemoryStore(t)
	store := &faultyStore{TokenStore: base, failIDs: map[string]bool{}}
	svc := newTestService(t, base, fc)
	reg := metric.NewRegistry()
	c := newTestCleaner(t, store, fc, nil, WithCleanerMetrics(reg))

	tokens := seed(t, svc, 5, time.Minute)
	store.failIDs[tokens[2].TokenID] = true
	fc.Step(time.Minute)

	res, err := c.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Deleted)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, SweepPartial, c.Status().LastResult)
	assert.Equal(t, 1, base.Len())

	assert.Equal(t, 4.0, testutil.ToFloat64(reg.SweepDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.SweepFailures))

	// The failed record is picked up by the next cycle.
	delete(store.failIDs, tokens[2].TokenID)
	res, err = c.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Zero(t, base.Len())
}

func TestTokenCleaner_ListFailureAbandonsCycle(t *testing.T) {
	fc := newFakeClock()
	store := &faultyStore{TokenStore: newMemoryStore(t), listErr: domain.ErrStoreUnavailable.WithDetails("injected")}
	c := newTestCleaner(t, store, fc, nil)

	res, err := c.SweepOnce(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, SweepAbandoned, c.Status().LastResult)

	// A scheduled cycle that fails does not stop the loop.
	require.NoError(t, c.Start(time.Second))
	fc.Step(time.Second)
	waitCycles(t, c, 2)
	store.listErr = nil
	fc.Step(time.Second)
	waitCycles(t, c, 3)

	assert.True(t, c.Running())
	assert.Equal(t, SweepOK, c.Status().LastResult)
}

func TestTokenCleaner_StopWaitsForInflightSweep(t *testing.T) {
	fc := newFakeClock()
	base := newMemoryStore(t)
	store := &faultyStore{
		TokenStore:    base,
		deleteGate:    make(chan struct{}),
		deleteEntered: make(chan struct{}),
	}
	svc := newTestService(t, base, fc)
	c := newTestCleaner(t, store, fc, nil)

	seed(t, svc, 3, time.Second)
	require.NoError(t, c.Start(time.Second))
	fc.Step(time.Second)

	select {
	case <-store.deleteEntered:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "sweep never reached Delete")
	}

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		require.FailNow(t, "Stop returned while a sweep was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.deleteGate)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Stop did not return after the sweep finished")
	}

	// The in-flight cycle ran to completion despite the stop signal.
	assert.Zero(t, base.Len())
	assert.Equal(t, uint64(1), c.Status().Cycles)
}

func TestTokenCleaner_RateLimited(t *testing.T) {
	fc := newFakeClock()
	store := newMemoryStore(t)
	svc := newTestService(t, store, fc)
	c := newTestCleaner(t, store, fc, &CleanerConfig{DeleteRate: 1000, DeleteBurst: 5})

	seed(t, svc, 20, time.Minute)
	fc.Step(time.Minute)

	res, err := c.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, res.Deleted)
}

func TestTokenCleaner_RateLimitedHonorsContext(t *testing.T) {
	fc := newFakeClock()
	store := newMemoryStore(t)
	svc := newTestService(t, store, fc)
	c := newTestCleaner(t, store, fc, &CleanerConfig{DeleteRate: 0.001, DeleteBurst: 1})

	seed(t, svc, 3, time.Minute)
	fc.Step(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := c.SweepOnce(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, res.Deleted, "only the burst is spent before the deadline")
	assert.Equal(t, SweepAbandoned, c.Status().LastResult)
}

func TestTokenCleaner_Metrics(t *testing.T) {
	fc := newFakeClock()
	store := newMemoryStore(t)
	svc := newTestService(t, store, fc)
	reg := metric.NewRegistry()
	c := newTestCleaner(t, store, fc, nil, WithCleanerMetrics(reg))

	seed(t, svc, 4, time.Minute)
	fc.Step(time.Minute)

	_, err := c.SweepOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4.0, testutil.ToFloat64(reg.SweepDeleted))
	assert.Equal(t, float64(fc.Now().Unix()), testutil.ToFloat64(reg.SweepLastSuccess))
}

// repeatingStore lists every purgeable ID twice, as a redis SCAN may.
type repeatingStore struct {
	TokenStore
}

func (r repeatingStore) ListExpiredOrRevoked(ctx context.Context, now time.Time) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for id, err := range r.TokenStore.ListExpiredOrRevoked(ctx, now) {
			if !yield(id, err) || err != nil {
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

func TestTokenCleaner_CountsOnlyRemovedRecords(t *testing.T) {
	fc := newFakeClock()
	store := newMemoryStore(t)
	svc := newTestService(t, store, fc)
	reg := metric.NewRegistry()
	c := newTestCleaner(t, repeatingStore{store}, fc, nil, WithCleanerMetrics(reg))

	seed(t, svc, 5, time.Minute)
	seed(t, svc, 2, time.Hour)
	fc.Step(time.Minute)

	res, err := c.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Deleted)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 5.0, testutil.ToFloat64(reg.SweepDeleted))
	assert.Equal(t, 2, store.Len())
}
