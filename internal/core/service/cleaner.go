package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

// DefaultCleanerInterval is the default sweep cadence.
//
// A record that outlives its expiry costs storage only: validation checks
// expiry at read time. One minute bounds the backlog of dead records to
// about a minute's worth of expirations, small next to typical lifetimes
// of 15m to 24h, while keeping sweep overhead negligible.
const DefaultCleanerInterval = time.Minute

// CleanerState is the lifecycle state of a TokenCleaner.
type CleanerState string

const (
	CleanerStopped CleanerState = "stopped"
	CleanerRunning CleanerState = "running"
)

// Outcome of the most recent sweep cycle.
const (
	SweepOK        = "ok"
	SweepPartial   = "partial"
	SweepAbandoned = "abandoned"
)

// CleanerConfig holds configuration for TokenCleaner.
type CleanerConfig struct {
	// DeleteRate caps deletions per second. Zero means unlimited.
	DeleteRate float64

	// DeleteBurst is the limiter burst (default: 100 when DeleteRate is set).
	DeleteBurst int

	// SweepTimeout bounds one cycle. Zero means no bound.
	SweepTimeout time.Duration
}

// DefaultCleanerConfig returns default configuration.
func DefaultCleanerConfig() *CleanerConfig {
	return &CleanerConfig{
		SweepTimeout: 30 * time.Second,
	}
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	StartedAt time.Time
	Duration  time.Duration
	Deleted   int
	Failed    int
}

// CleanerStatus is a point-in-time view of the cleaner.
type CleanerStatus struct {
	State       CleanerState
	Interval    time.Duration
	LastRun     time.Time
	LastResult  string
	LastDeleted int
	NextRun     time.Time
	Cycles      uint64
}

// CleanerOption configures a TokenCleaner.
type CleanerOption func(*TokenCleaner)

// WithCleanerClock sets the time source and ticker factory.
func WithCleanerClock(c clock.WithTicker) CleanerOption {
	return func(tc *TokenCleaner) {
		tc.clock = c
	}
}

// WithCleanerLogger sets the cleaner logger.
func WithCleanerLogger(l logger.Logger) CleanerOption {
	return func(tc *TokenCleaner) {
		tc.logger = logger.Component(l, "token_cleaner")
	}
}

// WithCleanerMetrics sets the metrics sink.
func WithCleanerMetrics(m Metrics) CleanerOption {
	return func(tc *TokenCleaner) {
		tc.metrics = m
	}
}

// TokenCleaner periodically deletes expired and revoked records.
//
// It is an owned handle: the caller creates it, starts it once the store
// is open and stops it before closing the store. Stop waits for the loop
// goroutine, so no sweep touches the store after Stop returns.
type TokenCleaner struct {
	store   TokenStore
	cfg     CleanerConfig
	clock   clock.WithTicker
	logger  logger.Logger
	metrics Metrics
	limiter *rate.Limiter

	// mu serializes Start and Stop.
	mu       sync.Mutex
	running  bool
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	// sweepMu ensures cycles never overlap.
	sweepMu sync.Mutex

	statMu sync.RWMutex
	status CleanerStatus
}

// NewTokenCleaner creates a stopped cleaner over store.
func NewTokenCleaner(store TokenStore, config *CleanerConfig, opts ...CleanerOption) *TokenCleaner {
	if config == nil {
		config = DefaultCleanerConfig()
	}

	c := &TokenCleaner{
		store:   store,
		cfg:     *config,
		clock:   clock.RealClock{},
		logger:  logger.Component(logger.Default(), "token_cleaner"),
		metrics: nopMetrics{},
		status:  CleanerStatus{State: CleanerStopped},
	}
	if c.cfg.DeleteRate > 0 {
		burst := c.cfg.DeleteBurst
		if burst <= 0 {
			burst = 100
		}
		c.limiter = rate.NewLimiter(rate.Limit(c.cfg.DeleteRate), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins sweeping every interval. Starting a running cleaner is a
// no-op, even with a different interval; use Stop then Start to change it.
func (c *TokenCleaner) Start(interval time.Duration) error {
	if interval <= 0 {
		return domain.ErrInvalidArgument.WithDetails("cleaner interval must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	c.running = true
	c.interval = interval
	c.cancel = cancel
	c.done = done

	c.statMu.Lock()
	c.status.State = CleanerRunning
	c.status.Interval = interval
	c.status.NextRun = c.clock.Now().Add(interval)
	c.statMu.Unlock()

	go c.loop(ctx, ticker, interval, done)

	c.logger.Info("token cleaner started", "interval", interval)
	return nil
}

// Stop halts the schedule and waits for the loop to exit. A sweep already
// in progress runs to completion. Stopping a stopped cleaner is a no-op.
func (c *TokenCleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.cancel()
	<-c.done

	c.running = false
	c.cancel = nil
	c.done = nil

	c.statMu.Lock()
	c.status.State = CleanerStopped
	c.status.NextRun = time.Time{}
	c.statMu.Unlock()

	c.logger.Info("token cleaner stopped")
}

// Running reports whether the schedule is active.
func (c *TokenCleaner) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns a snapshot of the cleaner's state and last cycle.
func (c *TokenCleaner) Status() CleanerStatus {
	c.statMu.RLock()
	defer c.statMu.RUnlock()
	return c.status
}

func (c *TokenCleaner) loop(ctx context.Context, ticker clock.Ticker, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			// A tick and a stop can be ready together.
			if ctx.Err() != nil {
				return
			}
			c.runCycle(ctx)

			c.statMu.Lock()
			c.status.NextRun = c.clock.Now().Add(interval)
			c.statMu.Unlock()
		}
	}
}

// runCycle runs one scheduled sweep. Store calls use a context detached
// from the stop signal so Stop lets the cycle finish; SweepTimeout bounds it.
func (c *TokenCleaner) runCycle(ctx context.Context) {
	sweepCtx := context.WithoutCancel(ctx)
	if c.cfg.SweepTimeout > 0 {
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(sweepCtx, c.cfg.SweepTimeout)
		defer cancel()
	}
	// Failures are logged and recorded by SweepOnce; the next tick retries.
	_, _ = c.SweepOnce(sweepCtx)
}

// SweepOnce runs a single sweep cycle now.
//
// Every record listed as expired or revoked is deleted. A failed delete is
// logged and skipped. If listing fails the cycle is abandoned and the
// error returned alongside the partial result.
func (c *TokenCleaner) SweepOnce(ctx context.Context) (SweepResult, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	start := c.clock.Now()
	res := SweepResult{StartedAt: start}

	var listErr error
	for id, err := range c.store.ListExpiredOrRevoked(ctx, start) {
		if err != nil {
			listErr = err
			break
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				listErr = err
				break
			}
		}
		removed, err := c.store.Delete(ctx, id)
		if err != nil {
			res.Failed++
			c.logger.Warn("failed to delete token", "token_id", id, "error", err)
			continue
		}
		if removed {
			res.Deleted++
		}
	}
	res.Duration = c.clock.Since(start)

	c.metrics.SweepFinished(res.Deleted, res.Failed, res.Duration, listErr == nil, start)
	c.record(res, listErr)

	if listErr != nil {
		c.logger.Warn("sweep abandoned", "deleted", res.Deleted, "failed", res.Failed, "error", listErr)
		return res, listErr
	}
	if res.Deleted > 0 || res.Failed > 0 {
		c.logger.Info("sweep finished", "deleted", res.Deleted, "failed", res.Failed, "duration", res.Duration)
	} else {
		c.logger.Debug("sweep finished, nothing to delete", "duration", res.Duration)
	}
	return res, nil
}

func (c *TokenCleaner) record(res SweepResult, listErr error) {
	outcome := SweepOK
	switch {
	case listErr != nil:
		outcome = SweepAbandoned
	case res.Failed > 0:
		outcome = SweepPartial
	}

	c.statMu.Lock()
	defer c.statMu.Unlock()
	c.status.LastRun = res.StartedAt
	c.status.LastResult = outcome
	c.status.LastDeleted = res.Deleted
	c.status.Cycles++
}
