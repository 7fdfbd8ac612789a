package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

// conflictRetries bounds how often a transaction is replayed after a
// badger.ErrConflict before the write is reported as failed.
const conflictRetries = 3

// BadgerStore is a durable TokenStore on Badger v3.
//
// Each operation is one transaction touching one record and its secret
// index entry. Conflict detection is on, so two writers racing on the same
// secret hash cannot both commit: the loser replays, sees the winner's
// entry and reports ErrDuplicateSecret.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	codec  recordCodec
	logger logger.Logger

	lastGCTime  atomic.Int64 // Unix milliseconds
	gcReclaimed atomic.Uint64

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// BadgerStats describes on-disk usage.
type BadgerStats struct {
	LSMSize          uint64
	ValueLogSize     uint64
	TotalSize        uint64
	LastGCTime       int64
	GCBytesReclaimed uint64
}

// OpenBadger opens (or creates) a badger store in cfg.Dir.
func OpenBadger(cfg BadgerConfig, log logger.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if log == nil {
		log = logger.Default()
	}
	log = logger.Component(log, "storage").With("backend", BackendBadger)

	defaults := DefaultBadgerConfig(cfg.Dir)
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = defaults.GCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = defaults.GCThreshold
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}

	codec, err := newRecordCodec(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("badger: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(&badgerLogger{logger: log.Slog()}).
		WithSyncWrites(cfg.SyncWrites).
		WithDetectConflicts(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		codec:  codec,
		logger: log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	log.Info("badger store opened",
		"dir", cfg.Dir,
		"gc_interval", cfg.GCInterval,
		"sync_writes", cfg.SyncWrites,
		"sealed", codec.sealed())

	return s, nil
}

// Put inserts a record and claims its secret hash.
func (s *BadgerStore) Put(ctx context.Context, tok *domain.Token) error {
	if tok == nil {
		return domain.ErrInvalidArgument.WithDetails("token is nil")
	}
	rk := recordKey(tok.ID)
	value, err := s.codec.encode(rk, tok)
	if err != nil {
		return domain.ErrInternal.WithCause(err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		sk := secretKey(tok.SecretHash)
		if _, err := txn.Get(sk); err == nil {
			return domain.ErrDuplicateSecret
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get(rk); err == nil {
			return domain.ErrDuplicateSecret.WithDetails("token id already exists")
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(sk, []byte(tok.ID)); err != nil {
			return err
		}
		return txn.Set(rk, value)
	})
}

// Get retrieves a record by secret hash.
func (s *BadgerStore) Get(ctx context.Context, secretHash string) (*domain.Token, error) {
	var tok *domain.Token
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		tok, err = s.lookup(txn, secretHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// MarkRevoked revokes the record under secretHash in one transaction.
func (s *BadgerStore) MarkRevoked(ctx context.Context, secretHash string, at time.Time) (*domain.Token, error) {
	var out *domain.Token
	err := s.update(ctx, func(txn *badger.Txn) error {
		tok, err := s.lookup(txn, secretHash)
		if err != nil {
			return err
		}
		if !tok.Revoked {
			tok.Revoke(at)
			rk := recordKey(tok.ID)
			value, err := s.codec.encode(rk, tok)
			if err != nil {
				return domain.ErrInternal.WithCause(err)
			}
			if err := txn.Set(rk, value); err != nil {
				return err
			}
		}
		out = tok
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a record and its secret index entry. Missing IDs are a no-op.
func (s *BadgerStore) Delete(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		removed = false
		rk := recordKey(id)
		item, err := txn.Get(rk)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		removed = true
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		tok, err := s.codec.decode(rk, value)
		if err != nil {
			// An unreadable record is still removable by ID.
			s.logger.Warn("deleting undecodable record", "token_id", id, "error", err)
			return txn.Delete(rk)
		}

		sk := secretKey(tok.SecretHash)
		if owner, err := txn.Get(sk); err == nil {
			ownerID, err := owner.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(ownerID) == id {
				if err := txn.Delete(sk); err != nil {
					return err
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(rk)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// ListExpiredOrRevoked scans record keys in pages of cfg.PageSize. Each
// page is read in its own read transaction and yielded after it closes.
func (s *BadgerStore) ListExpiredOrRevoked(ctx context.Context, now time.Time) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var after []byte
		for {
			ids, next, err := s.scanPage(ctx, after, now)
			if err != nil {
				yield("", err)
				return
			}
			for _, id := range ids {
				if !yield(id, nil) {
					return
				}
			}
			if next == nil {
				return
			}
			after = next
		}
	}
}

// scanPage reads up to PageSize record keys strictly after the given key
// and returns the purgeable IDs among them. next is nil at the end.
func (s *BadgerStore) scanPage(ctx context.Context, after []byte, now time.Time) (ids []string, next []byte, err error) {
	err = s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		opts.PrefetchSize = s.cfg.PageSize
		it := txn.NewIterator(opts)
		defer it.Close()

		start := opts.Prefix
		if after != nil {
			start = after
		}

		scanned := 0
		for it.Seek(start); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if after != nil && string(key) == string(after) {
				continue
			}
			if scanned == s.cfg.PageSize {
				return nil
			}
			scanned++
			next = key

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			tok, err := s.codec.decode(key, value)
			if err != nil {
				// Left in place. Under a wrong encryption key every record
				// fails here.
				s.logger.Warn("skipping undecodable record", "key", string(key), "error", err)
				continue
			}
			if tok.IsPurgeable(now) {
				ids = append(ids, tok.ID)
			}
		}
		// Iterator exhausted.
		next = nil
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, next, nil
}

func (s *BadgerStore) lookup(txn *badger.Txn, secretHash string) (*domain.Token, error) {
	item, err := txn.Get(secretKey(secretHash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	rk := recordKey(string(id))
	item, err = txn.Get(rk)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return s.codec.decode(rk, value)
}

// update runs fn in a read-write transaction, replaying it on conflict.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var err error
	for range conflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return s.wrap(err)
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.wrap(s.db.View(fn))
}

// wrap passes domain errors through and reports everything else as the
// store being unavailable.
func (s *BadgerStore) wrap(err error) error {
	if err == nil || domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStoreUnavailable.WithCause(err)
}

func (s *BadgerStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrStoreUnavailable.WithDetails("badger store closed")
	}
	return ctx.Err()
}

// GC runs value log garbage collection until nothing more is rewritten.
// Returns the approximate number of bytes reclaimed.
func (s *BadgerStore) GC(ctx context.Context) (uint64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	startTime := time.Now()
	_, before := s.db.Size()

	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("gc: %w", err)
		}
	}

	_, after := s.db.Size()
	var reclaimed uint64
	if before > after {
		reclaimed = uint64(before - after)
	}
	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcReclaimed.Add(reclaimed)

	s.logger.Debug("gc completed",
		"bytes_reclaimed", reclaimed,
		"elapsed", time.Since(startTime))

	return reclaimed, nil
}

// Stats returns storage statistics.
func (s *BadgerStore) Stats() BadgerStats {
	lsm, vlog := s.db.Size()
	return BadgerStats{
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		TotalSize:        uint64(lsm + vlog),
		LastGCTime:       s.lastGCTime.Load(),
		GCBytesReclaimed: s.gcReclaimed.Load(),
	}
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	s.logger.Info("badger store closed")
	return nil
}

// RegisterMetrics registers on-disk size gauges. Values are read from the
// database at scrape time.
func (s *BadgerStore) RegisterMetrics(registry prometheus.Registerer) error {
	gauge := func(name, help string, fn func(BadgerStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "tokenkeeper",
			Subsystem: "badger",
			Name:      name,
			Help:      help,
		}, func() float64 {
			if s.closed.Load() {
				return 0
			}
			return fn(s.Stats())
		})
	}

	collectors := []prometheus.Collector{
		gauge("lsm_size_bytes", "Badger LSM tree size in bytes",
			func(st BadgerStats) float64 { return float64(st.LSMSize) }),
		gauge("value_log_size_bytes", "Badger value log size in bytes",
			func(st BadgerStats) float64 { return float64(st.ValueLogSize) }),
		gauge("total_size_bytes", "Badger total storage size in bytes (LSM + value log)",
			func(st BadgerStats) float64 { return float64(st.TotalSize) }),
		gauge("last_gc_timestamp_seconds", "Unix timestamp of the last Badger GC run",
			func(st BadgerStats) float64 { return float64(st.LastGCTime) / 1000 }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "tokenkeeper",
			Subsystem: "badger",
			Name:      "gc_bytes_reclaimed_total",
			Help:      "Total bytes reclaimed by Badger garbage collection",
		}, func() float64 { return float64(s.gcReclaimed.Load()) }),
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("register badger metrics: %w", err)
		}
	}
	return nil
}

// gcLoop runs periodic garbage collection.
func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
