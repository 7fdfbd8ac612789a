package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/core/service"
	"github.com/yndnr/tokenkeeper/internal/storage/storetest"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

var _ service.TokenStore = (*Store)(nil)

var columns = []string{"id", "secret_hash", "subject_id", "issued_at", "expires_at", "revoked", "revoked_at"}

const (
	insertRe = `(?s)^\s*INSERT\s+INTO\s+tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*ON\s+CONFLICT\s+DO\s+NOTHING\s*$`
	selectRe = `(?s)^\s*SELECT\s+id,\s*secret_hash.*FROM\s+tokens\s+WHERE\s+secret_hash\s*=\s*\$1\s*$`
	revokeRe = `(?s)^\s*UPDATE\s+tokens\s+SET\s+revoked\s*=\s*TRUE,\s*revoked_at\s*=\s*COALESCE\(revoked_at,\s*\$2\).*RETURNING\b`
	deleteRe = `(?s)^\s*DELETE\s+FROM\s+tokens\s+WHERE\s+id\s*=\s*\$1\s*$`
	listRe   = `(?s)^\s*SELECT\s+id\s+FROM\s+tokens\s+WHERE\s+id\s*>\s*\$1\s+AND\s+\(revoked\s+OR\s+expires_at\s*<=\s*\$2\)\s+ORDER\s+BY\s+id\s+LIMIT\s+\$3\s*$`
)

func newStoreWithMock(t *testing.T, pageSize int) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewStore(db, pageSize, logger.NewNop()), mock
}

func tokenRow(tok *domain.Token) *sqlmock.Rows {
	var revokedAt any
	if tok.Revoked {
		revokedAt = tok.RevokedAt
	}
	return sqlmock.NewRows(columns).AddRow(
		tok.ID, tok.SecretHash, tok.SubjectID, tok.IssuedAt, tok.ExpiresAt, tok.Revoked, revokedAt)
}

func TestPut_Success(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)
	tok := storetest.NewToken(t, "user-1", storetest.Base(), time.Hour)

	mock.ExpectExec(insertRe).
		WithArgs(tok.ID, tok.SecretHash, "user-1", tok.IssuedAt.UTC(), tok.ExpiresAt.UTC(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Put(context.Background(), tok))
}

func TestPut_Conflict(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)
	tok := storetest.NewToken(t, "user-1", storetest.Base(), time.Hour)

	mock.ExpectExec(insertRe).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Put(context.Background(), tok), domain.ErrDuplicateSecret)
}

func TestPut_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)
	tok := storetest.NewToken(t, "user-1", storetest.Base(), time.Hour)

	mock.ExpectExec(insertRe).WillReturnError(errors.New("db down"))

	err := s.Put(context.Background(), tok)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "db down")
}

func TestPut_Nil(t *testing.T) {
	s, _ := newStoreWithMock(t, 0)
	assert.ErrorIs(t, s.Put(context.Background(), nil), domain.ErrInvalidArgument)
}

func TestGet_Found(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)
	tok := storetest.NewToken(t, "user-1", storetest.Base(), time.Hour)

	mock.ExpectQuery(selectRe).WithArgs(tok.SecretHash).WillReturnRows(tokenRow(tok))

	got, err := s.Get(context.Background(), tok.SecretHash)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, "user-1", got.SubjectID)
	assert.True(t, got.ExpiresAt.Equal(tok.ExpiresAt))
	assert.False(t, got.Revoked)
	assert.True(t, got.RevokedAt.IsZero())
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)

	mock.ExpectQuery(selectRe).WithArgs("tksh_missing").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "tksh_missing")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestGet_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)

	mock.ExpectQuery(selectRe).WillReturnError(errors.New("connection reset"))

	_, err := s.Get(context.Background(), "tksh_x")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestMarkRevoked(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)
	base := storetest.Base()
	tok := storetest.NewToken(t, "user-1", base, time.Hour)
	at := base.Add(time.Minute)

	revoked := tok.Clone()
	revoked.Revoke(at)
	mock.ExpectQuery(revokeRe).WithArgs(tok.SecretHash, at.UTC()).WillReturnRows(tokenRow(revoked))

	got, err := s.MarkRevoked(context.Background(), tok.SecretHash, at)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.True(t, got.RevokedAt.Equal(at))
}

func TestMarkRevoked_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)

	mock.ExpectQuery(revokeRe).WillReturnRows(sqlmock.NewRows(columns))

	_, err := s.MarkRevoked(context.Background(), "tksh_missing", storetest.Base())
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestDelete(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)

	mock.ExpectExec(deleteRe).WithArgs("tktk-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteRe).WithArgs("tktk-a").WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := s.Delete(context.Background(), "tktk-a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(context.Background(), "tktk-a")
	require.NoError(t, err, "deleting a missing id is a no-op")
	assert.False(t, removed)
}

func TestDelete_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t, 0)

	mock.ExpectExec(deleteRe).WillReturnError(errors.New("db down"))

	_, err := s.Delete(context.Background(), "tktk-a")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestList_Paginates(t *testing.T) {
	s, mock := newStoreWithMock(t, 2)
	now := storetest.Base()

	mock.ExpectQuery(listRe).WithArgs("", now.UTC(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tktk-a").AddRow("tktk-b"))
	mock.ExpectQuery(listRe).WithArgs("tktk-b", now.UTC(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tktk-c"))

	var ids []string
	for id, err := range s.ListExpiredOrRevoked(context.Background(), now) {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"tktk-a", "tktk-b", "tktk-c"}, ids)
}

func TestList_FullLastPage(t *testing.T) {
	s, mock := newStoreWithMock(t, 2)
	now := storetest.Base()

	mock.ExpectQuery(listRe).WithArgs("", now.UTC(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tktk-a").AddRow("tktk-b"))
	mock.ExpectQuery(listRe).WithArgs("tktk-b", now.UTC(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	n := 0
	for _, err := range s.ListExpiredOrRevoked(context.Background(), now) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 2, n)
}

func TestList_EarlyBreakStopsPaging(t *testing.T) {
	s, mock := newStoreWithMock(t, 2)
	now := storetest.Base()

	mock.ExpectQuery(listRe).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tktk-a").AddRow("tktk-b"))

	for range s.ListExpiredOrRevoked(context.Background(), now) {
		break
	}
}

func TestList_DeleteInsideLoop(t *testing.T) {
	s, mock := newStoreWithMock(t, 10)
	now := storetest.Base()

	mock.ExpectQuery(listRe).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tktk-a").AddRow("tktk-b"))
	mock.ExpectExec(deleteRe).WithArgs("tktk-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteRe).WithArgs("tktk-b").WillReturnResult(sqlmock.NewResult(0, 1))

	for id, err := range s.ListExpiredOrRevoked(context.Background(), now) {
		require.NoError(t, err)
		_, err = s.Delete(context.Background(), id)
		require.NoError(t, err)
	}
}

func TestList_QueryError(t *testing.T) {
	s, mock := newStoreWithMock(t, 2)

	mock.ExpectQuery(listRe).WillReturnError(errors.New("db down"))

	var errs []error
	for _, err := range s.ListExpiredOrRevoked(context.Background(), storetest.Base()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrStoreUnavailable)
}

func TestList_RowError(t *testing.T) {
	s, mock := newStoreWithMock(t, 5)

	mock.ExpectQuery(listRe).WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow("tktk-a").AddRow("tktk-b").RowError(1, errors.New("broken pipe")))

	var (
		ids  []string
		last error
	)
	for id, err := range s.ListExpiredOrRevoked(context.Background(), storetest.Base()) {
		if err != nil {
			last = err
			continue
		}
		ids = append(ids, id)
	}
	assert.Empty(t, ids, "a failed page yields nothing")
	assert.ErrorIs(t, last, domain.ErrStoreUnavailable)
}

func TestClose_Borrowed(t *testing.T) {
	s, _ := newStoreWithMock(t, 0)
	require.NoError(t, s.Close(), "a borrowed pool is left open")
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{}, logger.NewNop())
	assert.Error(t, err)
}

func TestRunMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(_ context.Context, got *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		assert.Same(t, db, got)
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.ErrorContains(t, RunMigrations(context.Background(), db), "boom")
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(Migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	data, err := fs.ReadFile(Migrations, files[0])
	require.NoError(t, err)
	body := string(data)
	assert.True(t, strings.Contains(body, "-- +goose Up"))
	assert.True(t, strings.Contains(body, "-- +goose Down"))
	assert.Contains(t, body, "secret_hash TEXT        NOT NULL UNIQUE")
}
