package odm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
	"github.com/mickamy/docmap/store/memory"
)

// recordingStore counts round trips, keeps the queries it was asked to
// find, and can fail selected writes.
type recordingStore struct {
	odm.Store
	reads  int
	writes int
	finds  map[string][]scope.Query
	fail   func(op, collection string, rec odm.Record) error
}

func (s *recordingStore) Find(ctx context.Context, coll string, q scope.Query) ([]odm.Record, error) {
	s.reads++
	if s.finds == nil {
		s.finds = make(map[string][]scope.Query)
	}
	s.finds[coll] = append(s.finds[coll], q)
	return s.Store.Find(ctx, coll, q)
}

func (s *recordingStore) Count(ctx context.Context, coll string, q scope.Query) (int64, error) {
	s.reads++
	return s.Store.Count(ctx, coll, q)
}

func (s *recordingStore) Insert(ctx context.Context, coll string, rec odm.Record) error {
	if err := s.check("insert", coll, rec); err != nil {
		return err
	}
	s.writes++
	return s.Store.Insert(ctx, coll, rec)
}

func (s *recordingStore) Update(ctx context.Context, coll string, id string, rec odm.Record) error {
	if err := s.check("update", coll, rec); err != nil {
		return err
	}
	s.writes++
	return s.Store.Update(ctx, coll, id, rec)
}

func (s *recordingStore) Delete(ctx context.Context, coll string, id string) error {
	if err := s.check("delete", coll, odm.Record{odm.IDKey: id}); err != nil {
		return err
	}
	s.writes++
	return s.Store.Delete(ctx, coll, id)
}

func (s *recordingStore) check(op, coll string, rec odm.Record) error {
	if s.fail == nil {
		return nil
	}
	return s.fail(op, coll, rec)
}

func (s *recordingStore) reset() { s.reads, s.writes, s.finds = 0, 0, nil }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// accountSchema is the account / user / membership graph used across the
// tests:
//
//	Account     has_many account_memberships, has_many users through them
//	AccountUser has_many account_memberships, has_many accounts through them
//	Project     belongs_to account
//	Account     has_one profile
func accountSchema(t *testing.T) *odm.Schema {
	t.Helper()
	reg := odm.NewRegistry()
	reg.Define("Account", func(m *odm.ModelDef) {
		m.Key("name", odm.String)
		m.HasMany("account_memberships")
		m.HasManyThrough("users", "account_memberships", odm.Target("AccountUser"))
		m.HasMany("projects")
		m.HasOne("profile")
	})
	reg.Define("AccountUser", func(m *odm.ModelDef) {
		m.Key("login", odm.String)
		m.HasMany("account_memberships")
		m.HasManyThrough("accounts", "account_memberships")
	})
	reg.Define("AccountMembership", func(m *odm.ModelDef) {
		m.Key("role", odm.String, odm.Default("member"))
		m.Key("position", odm.Int)
		m.BelongsTo("account")
		m.BelongsTo("account_user")
	})
	reg.Define("Project", func(m *odm.ModelDef) {
		m.Key("title", odm.String)
		m.BelongsTo("account")
	})
	reg.Define("Profile", func(m *odm.ModelDef) {
		m.Key("bio", odm.String)
	})
	s, err := reg.Build()
	require.NoError(t, err)
	return s
}

type fixture struct {
	db    *odm.DB
	mem   *memory.Store
	store *recordingStore

	accounts    *odm.Collection
	users       *odm.Collection
	memberships *odm.Collection
	projects    *odm.Collection
	profiles    *odm.Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	rs := &recordingStore{Store: mem}
	db := odm.New(rs, accountSchema(t))
	f := &fixture{db: db, mem: mem, store: rs}
	f.accounts = collection(t, db, "Account")
	f.users = collection(t, db, "AccountUser")
	f.memberships = collection(t, db, "AccountMembership")
	f.projects = collection(t, db, "Project")
	f.profiles = collection(t, db, "Profile")
	return f
}

func collection(t *testing.T, db *odm.DB, name string) *odm.Collection {
	t.Helper()
	c, err := db.Collection(name)
	require.NoError(t, err)
	return c
}

func (f *fixture) account(t *testing.T, name string) *odm.Document {
	t.Helper()
	a, err := f.accounts.Create(t.Context(), odm.Attrs{"name": name})
	require.NoError(t, err)
	return a
}

func (f *fixture) user(t *testing.T, login string) *odm.Document {
	t.Helper()
	u, err := f.users.Create(t.Context(), odm.Attrs{"login": login})
	require.NoError(t, err)
	return u
}

func many(t *testing.T, d *odm.Document, name string) odm.Many {
	t.Helper()
	p, err := d.Many(name)
	require.NoError(t, err)
	return p
}

func one(t *testing.T, d *odm.Document, name string) *odm.OneProxy {
	t.Helper()
	p, err := d.One(name)
	require.NoError(t, err)
	return p
}

func idsOf(docs []*odm.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID()
	}
	return out
}

func logins(docs []*odm.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.String("login")
	}
	return out
}
