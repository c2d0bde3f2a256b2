package odm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
)

func TestDirectProxy_ScopedReads(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.account(t, "acme")
	b := f.account(t, "other")
	projects := many(t, a, "projects")
	var mine []*odm.Document
	for _, title := range []string{"p1", "p2", "p3"} {
		p, err := projects.Create(ctx, odm.Attrs{"title": title})
		require.NoError(t, err)
		assert.Equal(t, a.ID(), p.String("account_id"))
		mine = append(mine, p)
	}
	theirs, err := many(t, b, "projects").Create(ctx, odm.Attrs{"title": "p1"})
	require.NoError(t, err)

	n, err := projects.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = projects.Count(ctx, scope.Where("title", "p1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := projects.All(ctx, scope.OrderBy("title desc"))
	require.NoError(t, err)
	assert.Equal(t, []string{mine[2].ID(), mine[1].ID(), mine[0].ID()}, idsOf(all))

	last, err := projects.Last(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(mine[2]))

	got, err := projects.FindByIDs(ctx, mine[0].ID(), mine[2].ID())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = projects.FindByIDs(ctx, mine[0].ID(), theirs.ID())
	require.ErrorIs(t, err, odm.ErrNotFound)
	_, err = projects.FindByID(ctx, theirs.ID())
	require.ErrorIs(t, err, odm.ErrNotFound)

	pg, err := projects.Paginate(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, pg.Items, 2)
	assert.Equal(t, int64(3), pg.TotalEntries)
	assert.Equal(t, 2, pg.TotalPages)
}

func TestDirectProxy_UnscopedAccess(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.account(t, "acme")
	projects := many(t, a, "projects")

	f.store.reset()
	_, err := projects.Count(ctx, scope.Where("account_id", "someone-else"))
	require.ErrorIs(t, err, odm.ErrUnscopedAccess)
	_, err = projects.All(ctx, scope.In("account_id", []string{a.ID(), "someone-else"}))
	require.ErrorIs(t, err, odm.ErrUnscopedAccess)
	assert.Zero(t, f.store.reads)

	_, err = projects.Build(odm.Attrs{"account_id": "someone-else"})
	require.ErrorIs(t, err, odm.ErrUnscopedAccess)

	n, err := projects.Count(ctx, scope.Where("account_id", a.ID()))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDirectProxy_DefersUntilOwnerIsSaved(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.accounts.New(odm.Attrs{"name": "acme"})
	projects := many(t, a, "projects")
	p1 := f.projects.New(odm.Attrs{"title": "p1"})
	require.NoError(t, projects.Append(ctx, p1))
	p2, err := projects.Build(odm.Attrs{"title": "p2"})
	require.NoError(t, err)

	assert.Nil(t, p1.Get("account_id"))
	assert.Zero(t, f.store.writes)

	size, err := projects.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	loaded, err := projects.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	require.NoError(t, a.Save(ctx))
	assert.Empty(t, projects.(*odm.DirectProxy).Pending())
	assert.Equal(t, a.ID(), p1.String("account_id"))
	assert.Equal(t, a.ID(), p2.String("account_id"))

	all, err := projects.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{p1.ID(), p2.ID()}, idsOf(all))
}

func TestDirectProxy_CreateOnNewOwner(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.accounts.New(nil)
	p, err := many(t, a, "projects").Create(ctx, odm.Attrs{"title": "early"})
	require.NoError(t, err)
	assert.False(t, p.IsNew())
	assert.Nil(t, p.Get("account_id"))

	require.NoError(t, a.Save(ctx))
	require.NoError(t, p.Reload(ctx))
	assert.Equal(t, a.ID(), p.String("account_id"))
}

func TestDirectProxy_PersistError(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.accounts.New(nil)
	projects := many(t, a, "projects")
	docs := []*odm.Document{
		f.projects.New(odm.Attrs{"title": "ok"}),
		f.projects.New(odm.Attrs{"title": "bad"}),
		f.projects.New(odm.Attrs{"title": "after"}),
	}
	require.NoError(t, projects.Append(ctx, docs...))

	boom := errors.New("boom")
	f.store.fail = func(op, coll string, rec odm.Record) error {
		if coll == "projects" && rec["title"] == "bad" {
			return boom
		}
		return nil
	}
	err := a.Save(ctx)
	require.ErrorIs(t, err, odm.ErrPersist)
	require.ErrorIs(t, err, boom)
	assert.Len(t, projects.(*odm.DirectProxy).Pending(), 2)
	assert.Equal(t, 1, f.mem.Len("projects"))

	f.store.fail = nil
	require.NoError(t, a.Save(ctx))
	n, err := projects.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDirectProxy_ReplaceIsAdditive(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.account(t, "acme")
	projects := many(t, a, "projects")
	old, err := projects.Create(ctx, odm.Attrs{"title": "old"})
	require.NoError(t, err)

	require.NoError(t, projects.Replace(ctx, []*odm.Document{f.projects.New(odm.Attrs{"title": "new"})}))

	n, err := projects.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = projects.FindByID(ctx, old.ID())
	require.NoError(t, err)
}

func TestDirectProxy_LoadIsInvalidatedByWrites(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.account(t, "acme")
	projects := many(t, a, "projects")
	_, err := projects.Create(ctx, odm.Attrs{"title": "p1"})
	require.NoError(t, err)

	loaded, err := projects.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, projects.Append(ctx, f.projects.New(odm.Attrs{"title": "p2"})))
	loaded, err = projects.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	// Writes made behind the proxy's back are only seen after Reset.
	_, err = f.projects.Create(ctx, odm.Attrs{"title": "p3", "account_id": a.ID()})
	require.NoError(t, err)
	loaded, err = projects.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	projects.Reset()
	loaded, err = projects.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestDirectProxy_NewOwnerCountsZero(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	_, err := f.projects.Create(ctx, odm.Attrs{"title": "orphan"})
	require.NoError(t, err)

	projects := many(t, f.accounts.New(nil), "projects")
	f.store.reset()

	n, err := projects.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	all, err := projects.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = projects.First(ctx)
	require.ErrorIs(t, err, odm.ErrNotFound)
	assert.Zero(t, f.store.reads)
}

func TestDirectProxy_AppendWrongModel(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)

	a := f.account(t, "acme")
	err := many(t, a, "projects").Append(ctx, f.users.New(nil))
	require.ErrorIs(t, err, odm.ErrTargetMismatch)
}
