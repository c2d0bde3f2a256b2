package odm_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
	"github.com/mickamy/docmap/store/memory"
)

func TestCollection_Finders(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	var ids []string
	for _, login := range []string{"c", "a", "b"} {
		ids = append(ids, f.user(t, login).ID())
	}

	first, err := f.users.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", first.String("login"))

	last, err := f.users.Last(ctx, scope.OrderBy("login"))
	require.NoError(t, err)
	assert.Equal(t, "c", last.String("login"))

	n, err := f.users.Count(ctx, scope.Limit(1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "count ignores limit")

	got, err := f.users.FindByIDs(ctx, ids[2], ids[0], ids[2])
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.users.FindByIDs(ctx, ids[0], "missing")
	require.ErrorIs(t, err, odm.ErrNotFound)

	_, err = f.users.First(ctx, scope.Where("login", "zzz"))
	require.ErrorIs(t, err, odm.ErrNotFound)
	_, err = f.users.Last(ctx, scope.Where("login", "zzz"))
	require.ErrorIs(t, err, odm.ErrNotFound)
}

func TestCollection_Paginate(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	for _, login := range []string{"a", "b", "c"} {
		f.user(t, login)
	}

	tests := []struct {
		name      string
		page, per int
		want      []string
		number    int
		perPage   int
		pages     int
	}{
		{name: "first page", page: 1, per: 2, want: []string{"a", "b"}, number: 1, perPage: 2, pages: 2},
		{name: "last page", page: 2, per: 2, want: []string{"c"}, number: 2, perPage: 2, pages: 2},
		{name: "past the end", page: 5, per: 2, want: []string{}, number: 5, perPage: 2, pages: 2},
		{name: "defaults", page: 0, per: 0, want: []string{"a", "b", "c"}, number: 1, perPage: odm.DefaultPerPage, pages: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg, err := f.users.Paginate(ctx, tt.page, tt.per, scope.OrderBy("login"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, logins(pg.Items))
			assert.Equal(t, tt.number, pg.Number)
			assert.Equal(t, tt.perPage, pg.PerPage)
			assert.Equal(t, int64(3), pg.TotalEntries)
			assert.Equal(t, tt.pages, pg.TotalPages)
		})
	}
}

func TestDB_DebugLogging(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	var buf bytes.Buffer
	db := f.db.Debug(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	users, err := db.Collection("AccountUser")
	require.NoError(t, err)

	_, err = users.Count(ctx, scope.Where("login", "foo"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "odm count")
	assert.Contains(t, buf.String(), "collection=account_users")
	assert.Contains(t, buf.String(), "login = foo")

	buf.Reset()
	_, err = f.users.Count(ctx)
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "original DB is not modified")
}

func TestDB_EnsureCollections(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	db := odm.New(mem, accountSchema(t))
	require.NoError(t, db.EnsureCollections(t.Context()))
	assert.Zero(t, mem.Len("account_memberships"))

	// A store without an Initializer is left alone.
	require.NoError(t, newFixture(t).db.EnsureCollections(t.Context()))
	require.NoError(t, db.Close())
}

