package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

// DefaultPageSize is the number of IDs fetched per listing query.
const DefaultPageSize = 500

const (
	insertQuery = `
		INSERT INTO tokens (id, secret_hash, subject_id, issued_at, expires_at, revoked, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`
	selectQuery = `
		SELECT id, secret_hash, subject_id, issued_at, expires_at, revoked, revoked_at
		FROM tokens
		WHERE secret_hash = $1
	`
	revokeQuery = `
		UPDATE tokens
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2)
		WHERE secret_hash = $1
		RETURNING id, secret_hash, subject_id, issued_at, expires_at, revoked, revoked_at
	`
	deleteQuery = `
		DELETE FROM tokens
		WHERE id = $1
	`
	listQuery = `
		SELECT id
		FROM tokens
		WHERE id > $1 AND (revoked OR expires_at <= $2)
		ORDER BY id
		LIMIT $3
	`
)

// Config configures Open.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int

	// Migrate applies pending migrations on open.
	Migrate bool

	// PageSize is the listing batch size.
	PageSize int
}

// Store is a PostgreSQL-backed TokenStore.
type Store struct {
	db       *sql.DB
	pageSize int
	owned    bool
	logger   logger.Logger
}

// NewStore creates a Store over an open database. The caller keeps
// ownership of db.
func NewStore(db *sql.DB, pageSize int, log logger.Logger) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = logger.Default()
	}
	return &Store{
		db:       db,
		pageSize: pageSize,
		logger:   logger.Component(log, "storage").With("backend", "postgres"),
	}
}

// Open connects with the pgx driver, optionally migrates, and returns a
// Store that closes the pool on Close.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if cfg.Migrate {
		if err := RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
	}

	s := NewStore(db, cfg.PageSize, log)
	s.owned = true
	s.logger.Info("postgres store connected", "migrated", cfg.Migrate, "page_size", s.pageSize)
	return s, nil
}

// Put inserts a record. A clash on either the ID or the secret hash
// inserts nothing and reports ErrDuplicateSecret.
func (s *Store) Put(ctx context.Context, tok *domain.Token) error {
	if tok == nil {
		return domain.ErrInvalidArgument.WithDetails("token is nil")
	}
	var revokedAt sql.NullTime
	if tok.Revoked {
		revokedAt = sql.NullTime{Time: tok.RevokedAt.UTC(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, insertQuery,
		tok.ID, tok.SecretHash, tok.SubjectID,
		tok.IssuedAt.UTC(), tok.ExpiresAt.UTC(),
		tok.Revoked, revokedAt)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return domain.ErrDuplicateSecret
	}
	return nil
}

// Get retrieves a record by secret hash.
func (s *Store) Get(ctx context.Context, secretHash string) (*domain.Token, error) {
	return scanToken(s.db.QueryRowContext(ctx, selectQuery, secretHash))
}

// MarkRevoked revokes the record in a single UPDATE. The first revocation
// time is kept.
func (s *Store) MarkRevoked(ctx context.Context, secretHash string, at time.Time) (*domain.Token, error) {
	return scanToken(s.db.QueryRowContext(ctx, revokeQuery, secretHash, at.UTC()))
}

// Delete removes a record by ID. Missing IDs are a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, deleteQuery, id)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// ListExpiredOrRevoked pages through purgeable IDs in ID order. Each page
// is one query whose rows are closed before any ID is yielded.
func (s *Store) ListExpiredOrRevoked(ctx context.Context, now time.Time) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		after := ""
		for {
			ids, err := s.listPage(ctx, after, now)
			if err != nil {
				yield("", err)
				return
			}
			for _, id := range ids {
				if !yield(id, nil) {
					return
				}
			}
			if len(ids) < s.pageSize {
				return
			}
			after = ids[len(ids)-1]
		}
	}
}

func (s *Store) listPage(ctx context.Context, after string, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listQuery, after, now.UTC(), s.pageSize)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	ids := make([]string, 0, s.pageSize)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the pool if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	s.logger.Info("postgres store closed")
	return nil
}

func scanToken(row *sql.Row) (*domain.Token, error) {
	var (
		tok       domain.Token
		revokedAt sql.NullTime
	)
	err := row.Scan(&tok.ID, &tok.SecretHash, &tok.SubjectID, &tok.IssuedAt, &tok.ExpiresAt, &tok.Revoked, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if revokedAt.Valid {
		tok.RevokedAt = revokedAt.Time
	}
	return &tok, nil
}

func unavailable(err error) error {
	return domain.ErrStoreUnavailable.WithCause(err)
}
