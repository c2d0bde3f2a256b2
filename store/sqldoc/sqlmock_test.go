package sqldoc_test

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
	"github.com/mickamy/docmap/store/sqldoc"
)

func newMockStore(t *testing.T, d sqldoc.Dialect) (*sqldoc.Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqldoc.NewStore(sqldoc.New(raw, d)), mock
}

func TestStore_FindDecodesRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, sqldoc.PostgreSQL)
	rows := sqlmock.NewRows([]string{"id", "doc"}).
		AddRow("u1", []byte(`{"login":"alice","rank":3}`)).
		AddRow("u2", []byte(`{"login":"bob","rank":2.5}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "doc" FROM "users" WHERE "doc"->>'account_id' = $1 ORDER BY "seq"`)).
		WithArgs("a1").
		WillReturnRows(rows)

	recs, err := s.Find(t.Context(), "users", scope.Build(scope.Where("account_id", "a1")))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "u1", recs[0][odm.IDKey])
	assert.Equal(t, "alice", recs[0]["login"])
	assert.Equal(t, "3", recs[0]["rank"].(interface{ String() string }).String())
	assert.Equal(t, "u2", recs[1][odm.IDKey])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindBadDocument(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, sqldoc.MySQL)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "doc"}).AddRow("u1", []byte(`{`)))

	_, err := s.Find(t.Context(), "users", scope.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode users u1")
}

func TestStore_Count(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, sqldoc.MySQL)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.Count(t.Context(), "users", scope.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateAndDeleteMissing(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, sqldoc.MySQL)
	mock.ExpectExec("UPDATE `users`").WithArgs(`{"login":"x"}`, "gone").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `users`").WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, s.Update(t.Context(), "users", "gone", odm.Record{"login": "x"}), odm.ErrNotFound)
	require.ErrorIs(t, s.Delete(t.Context(), "users", "gone"), odm.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ExecError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, sqldoc.PostgreSQL)
	mock.ExpectExec("INSERT INTO").WillReturnError(assert.AnError)

	err := s.Insert(t.Context(), "users", odm.Record{odm.IDKey: "u1"})
	require.ErrorIs(t, err, assert.AnError)
}

func TestStore_Close(t *testing.T) {
	t.Parallel()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	require.NoError(t, sqldoc.NewStore(sqldoc.New(raw, sqldoc.SQLite)).Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
