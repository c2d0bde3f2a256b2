package sqldoc_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
	"github.com/mickamy/docmap/store/sqldoc"
)

func openSQLite(t *testing.T) *sqldoc.DB {
	t.Helper()
	db, err := sqldoc.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func schema(t *testing.T) *odm.Schema {
	t.Helper()
	reg := odm.NewRegistry()
	reg.Define("Account", func(m *odm.ModelDef) {
		m.Key("name", odm.String)
		m.HasMany("account_memberships")
		m.HasManyThrough("users", "account_memberships", odm.Target("AccountUser"))
	})
	reg.Define("AccountUser", func(m *odm.ModelDef) {
		m.Key("login", odm.String)
		m.Key("active", odm.Bool, odm.Default(true))
	})
	reg.Define("AccountMembership", func(m *odm.ModelDef) {
		m.Key("position", odm.Int)
		m.BelongsTo("account")
		m.BelongsTo("account_user")
	})
	s, err := reg.Build()
	require.NoError(t, err)
	return s
}

func TestSQLite_RecordRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := sqldoc.NewStore(openSQLite(t))
	require.NoError(t, s.EnsureCollection(ctx, "things", []string{"owner_id"}))
	require.NoError(t, s.EnsureCollection(ctx, "things", []string{"owner_id"}), "idempotent")

	for _, r := range []odm.Record{
		{odm.IDKey: "t1", "owner_id": "o1", "n": 3, "ok": true},
		{odm.IDKey: "t2", "owner_id": "o1", "n": 1.5, "ok": false},
		{odm.IDKey: "t3", "owner_id": "o2", "n": 2},
	} {
		require.NoError(t, s.Insert(ctx, "things", r))
	}

	tests := []struct {
		name   string
		scopes []scope.Scope
		want   []string
	}{
		{name: "insertion order", want: []string{"t1", "t2", "t3"}},
		{name: "string eq", scopes: []scope.Scope{scope.Where("owner_id", "o1")}, want: []string{"t1", "t2"}},
		{name: "int eq", scopes: []scope.Scope{scope.Where("n", 2)}, want: []string{"t3"}},
		{name: "bool eq", scopes: []scope.Scope{scope.Where("ok", false)}, want: []string{"t2"}},
		{name: "missing is null", scopes: []scope.Scope{scope.Where("ok", nil)}, want: []string{"t3"}},
		{name: "identity in", scopes: []scope.Scope{scope.In("_id", []string{"t3", "t1"})}, want: []string{"t1", "t3"}},
		{name: "numeric order", scopes: []scope.Scope{scope.OrderBy("n desc")}, want: []string{"t1", "t3", "t2"}},
		{name: "offset", scopes: []scope.Scope{scope.Offset(1)}, want: []string{"t2", "t3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.Find(ctx, "things", scope.Build(tt.scopes...))
			require.NoError(t, err)
			got := make([]string, len(recs))
			for i, r := range recs {
				got[i] = r[odm.IDKey].(string)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	n, err := s.Count(ctx, "things", scope.Build(scope.Where("owner_id", "o1"), scope.Limit(1)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Update(ctx, "things", "t3", odm.Record{"owner_id": "o1"}))
	n, err = s.Count(ctx, "things", scope.Build(scope.Where("owner_id", "o1")))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.Delete(ctx, "things", "t1"))
	require.ErrorIs(t, s.Delete(ctx, "things", "t1"), odm.ErrNotFound)
}

func TestSQLite_ThroughAssociation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	raw := openSQLite(t).Debug(sqldoc.SlogLogger(logger))
	db := odm.New(sqldoc.NewStore(raw), schema(t))

	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ctx := odm.WithClock(t.Context(), odm.ClockFunc(func() time.Time { return at }))
	require.NoError(t, db.EnsureCollections(ctx))

	accounts, err := db.Collection("Account")
	require.NoError(t, err)

	a := accounts.New(odm.Attrs{"name": "acme"})
	users, err := a.Many("users")
	require.NoError(t, err)
	for _, login := range []string{"foo", "bar", "baz"} {
		_, err := users.Build(odm.Attrs{"login": login})
		require.NoError(t, err)
	}
	require.NoError(t, a.Save(ctx))

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = users.Count(ctx, scope.Where("login", "foo"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := users.All(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "foo", got[0].String("login"))
	assert.Equal(t, true, got[0].Get("active"))
	assert.Equal(t, at, got[0].Time(odm.CreatedAtKey))

	_, err = users.FindByIDs(ctx, got[0].ID(), "not-joined")
	require.ErrorIs(t, err, odm.ErrNotFound)

	assert.Contains(t, buf.String(), "sqldoc query")
}

