package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db, DialectPostgres)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2")).
		WithArgs("users", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "created_at", "updated_at"}).
			AddRow([]byte(`{"role":"admin"}`), now, now))

	doc, err := s.Get(context.Background(), CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "admin", doc.String("role"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT data").
		WithArgs("users", "ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), CollectionUsers, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3::jsonb, $4, $5)")).
		WithArgs("system", "bootstrap", `{"uid":"u1"}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Create(context.Background(), CollectionSystem, "bootstrap", map[string]interface{}{"uid": "u1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET data = (data || $1::jsonb) - $2::text[], updated_at = $3 WHERE collection = $4 AND id = $5")).
		WithArgs(`{"role":"lead"}`, sqlmock.AnyArg(), sqlmock.AnyArg(), "users", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Update(context.Background(), CollectionUsers, "u1", map[string]interface{}{"role": "lead", "teamId": nil})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Update(context.Background(), CollectionUsers, "ghost", map[string]interface{}{"role": "lead"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE collection = $1 AND data->$2::text = $3::jsonb AND data->$4::text = $5::jsonb ORDER BY id")).
		WithArgs("users", "organizationId", `"o1"`, "teamId", `"t1"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
			AddRow("a", []byte(`{"teamId":"t1"}`), now, now).
			AddRow("b", []byte(`{"teamId":"t1"}`), now, now))

	docs, err := s.Query(context.Background(), CollectionUsers, Eq("organizationId", "o1"), Eq("teamId", "t1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, docIDs(docs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIncrement(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("RETURNING (data->>$3::text)::bigint")).
		WithArgs("teams", "t1", "memberCount", int64(-1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(4)))

	v, err := s.Increment(context.Background(), CollectionTeams, "t1", "memberCount", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIncrementMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("UPDATE documents").WillReturnError(sql.ErrNoRows)

	_, err := s.Increment(context.Background(), CollectionTeams, "ghost", "memberCount", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresBackendErrorIsWrapped(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	boom := errors.New("connection reset")

	mock.ExpectExec("DELETE FROM documents").WillReturnError(boom)

	err := s.Delete(context.Background(), CollectionTeams, "t1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}
