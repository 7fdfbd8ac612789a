package redisstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

const (
	// DefaultKeyPrefix namespaces every key written by the store.
	DefaultKeyPrefix = "tokenkeeper:"

	// DefaultRetention is how long a record may outlive its expiry before
	// Redis evicts it on its own.
	DefaultRetention = 24 * time.Hour

	// DefaultPageSize is the SCAN COUNT hint used when listing.
	DefaultPageSize = 256

	minKeyTTL      = time.Second
	revokeAttempts = 5
)

// putScript claims the secret index and writes the record in one step.
// Returns 0 on success, 1 if the secret is taken, 2 if the ID is taken.
const putScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 0
`

// deleteScript removes a record and its index entry if the entry still
// points at the record.
const deleteScript = `
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return redis.call("DEL", KEYS[1])
`

var (
	putLua    = redis.NewScript(putScript)
	deleteLua = redis.NewScript(deleteScript)
)

const (
	putStored      int64 = 0
	putSecretTaken int64 = 1
	putIDTaken     int64 = 2
)

// Config configures the store.
type Config struct {
	// KeyPrefix namespaces keys (default "tokenkeeper:").
	KeyPrefix string

	// Retention is added to a record's expiry to form its key TTL.
	Retention time.Duration

	// PageSize is the SCAN COUNT hint per listing batch.
	PageSize int
}

// Store is a Redis-backed TokenStore.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	pageSize  int64
	owned     bool
	logger    logger.Logger
}

// NewStore creates a Store over an existing client. The caller keeps
// ownership of the client.
func NewStore(client redis.UniversalClient, cfg Config, log logger.Logger) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if log == nil {
		log = logger.Default()
	}
	return &Store{
		redis:     client,
		prefix:    cfg.KeyPrefix,
		retention: cfg.Retention,
		pageSize:  int64(cfg.PageSize),
		logger:    logger.Component(log, "storage").With("backend", "redis"),
	}
}

// DialOptions configures Dial.
type DialOptions struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration

	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config
}

// Dial connects to Redis, verifies the connection and returns a Store
// that closes the client on Close.
func Dial(ctx context.Context, opts DialOptions, cfg Config, log logger.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
		TLSConfig:   opts.TLSConfig,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	s := NewStore(client, cfg, log)
	s.owned = true
	s.logger.Info("redis store connected", "addr", opts.Addr, "db", opts.DB, "tls", opts.TLSConfig != nil, "key_prefix", s.prefix)
	return s, nil
}

func (s *Store) recordKey(id string) string {
	return s.prefix + "t:" + id
}

func (s *Store) secretKey(hash string) string {
	return s.prefix + "s:" + hash
}

// keyTTL is the Redis expiry for a record: its remaining lifetime plus the
// retention window, never below one second.
func (s *Store) keyTTL(tok *domain.Token) time.Duration {
	ttl := time.Until(tok.ExpiresAt) + s.retention
	if ttl < minKeyTTL {
		ttl = minKeyTTL
	}
	return ttl
}

// Put stores a new record.
func (s *Store) Put(ctx context.Context, tok *domain.Token) error {
	if tok == nil {
		return domain.ErrInvalidArgument.WithDetails("token is nil")
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return domain.ErrInternal.WithCause(err)
	}

	keys := []string{s.secretKey(tok.SecretHash), s.recordKey(tok.ID)}
	status, err := putLua.Run(ctx, s.redis, keys, tok.ID, data, s.keyTTL(tok).Milliseconds()).Int64()
	if err != nil {
		return unavailable(err)
	}

	switch status {
	case putStored:
		return nil
	case putSecretTaken:
		return domain.ErrDuplicateSecret
	case putIDTaken:
		return domain.ErrDuplicateSecret.WithDetails("token id already exists")
	default:
		return domain.ErrInternal.WithDetails(fmt.Sprintf("unexpected put status %d", status))
	}
}

// Get retrieves a record by secret hash.
func (s *Store) Get(ctx context.Context, secretHash string) (*domain.Token, error) {
	id, err := s.resolve(ctx, secretHash)
	if err != nil {
		return nil, err
	}
	tok, err := s.load(ctx, s.redis, s.recordKey(id))
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// MarkRevoked revokes the record under secretHash. The record key is
// watched, so a concurrent writer forces a replay instead of a lost update.
func (s *Store) MarkRevoked(ctx context.Context, secretHash string, at time.Time) (*domain.Token, error) {
	id, err := s.resolve(ctx, secretHash)
	if err != nil {
		return nil, err
	}
	rk := s.recordKey(id)

	var out *domain.Token
	txf := func(tx *redis.Tx) error {
		tok, err := s.load(ctx, tx, rk)
		if err != nil {
			return err
		}
		if tok.Revoked {
			out = tok
			return nil
		}
		tok.Revoke(at)
		data, err := json.Marshal(tok)
		if err != nil {
			return domain.ErrInternal.WithCause(err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, rk, data, redis.SetArgs{KeepTTL: true, Mode: "XX"})
			return nil
		})
		if err != nil {
			return err
		}
		out = tok
		return nil
	}

	for range revokeAttempts {
		err = s.redis.Watch(ctx, txf, rk)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, unavailable(err)
	}
	return out, nil
}

// Delete removes a record by ID. Missing IDs are a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	rk := s.recordKey(id)
	tok, err := s.load(ctx, s.redis, rk)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil && !errors.Is(err, errCorrupt) {
		return false, err
	}

	sk := ""
	if tok != nil {
		sk = s.secretKey(tok.SecretHash)
	}
	// The script returns the number of record keys it removed, which is 0
	// when another deleter won since the load.
	n, err := deleteLua.Run(ctx, s.redis, []string{rk, sk}, id).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// ListExpiredOrRevoked walks record keys with SCAN. Each cursor page is
// fetched with one MGET and its purgeable IDs yielded before the next page
// is requested.
func (s *Store) ListExpiredOrRevoked(ctx context.Context, now time.Time) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		match := s.recordKey("*")
		var cursor uint64
		for {
			keys, next, err := s.redis.Scan(ctx, cursor, match, s.pageSize).Result()
			if err != nil {
				yield("", unavailable(err))
				return
			}

			ids, err := s.purgeable(ctx, keys, now)
			if err != nil {
				yield("", err)
				return
			}
			for _, id := range ids {
				if !yield(id, nil) {
					return
				}
			}

			if next == 0 {
				return
			}
			cursor = next
		}
	}
}

func (s *Store) purgeable(ctx context.Context, keys []string, now time.Time) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	var ids []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Evicted or deleted since SCAN returned it.
			continue
		}
		var tok domain.Token
		if err := json.Unmarshal([]byte(raw), &tok); err != nil {
			s.logger.Warn("skipping undecodable record", "key", keys[i], "error", err)
			continue
		}
		if tok.IsPurgeable(now) {
			ids = append(ids, tok.ID)
		}
	}
	return ids, nil
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.redis.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	s.logger.Info("redis store closed")
	return nil
}

var errCorrupt = errors.New("corrupt record")

func (s *Store) resolve(ctx context.Context, secretHash string) (string, error) {
	id, err := s.redis.Get(ctx, s.secretKey(secretHash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrTokenNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return id, nil
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, key string) (*domain.Token, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var tok domain.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(fmt.Errorf("%w %s: %v", errCorrupt, key, err))
	}
	return &tok, nil
}

func unavailable(err error) error {
	if domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStoreUnavailable.WithCause(err)
}
