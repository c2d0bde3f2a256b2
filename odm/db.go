package odm

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mickamy/docmap/scope"
)

// DB binds a Schema to a Store. Documents created or loaded through a DB
// keep a reference to it for saving and for their association proxies.
type DB struct {
	store  Store
	schema *Schema
	logger *slog.Logger
	newID  func() string
}

// Option configures a DB.
type Option func(*DB)

// WithLogger logs every store round trip at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// WithIDGenerator replaces the identity generator. The default generates
// time-ordered UUIDv7 strings.
func WithIDGenerator(fn func() string) Option {
	return func(db *DB) { db.newID = fn }
}

// New returns a DB over store using the models of schema.
func New(store Store, schema *Schema, opts ...Option) *DB {
	db := &DB{store: store, schema: schema, newID: newUUID}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Debug returns a new *DB that logs every store round trip using l.
// The original DB is not modified.
func (db *DB) Debug(l *slog.Logger) *DB {
	db2 := *db
	db2.logger = l
	return &db2
}

// Schema returns the schema the DB was built with.
func (db *DB) Schema() *Schema { return db.schema }

// Store returns the underlying store.
func (db *DB) Store() Store { return db.store }

// Collection returns the finder for the named model.
func (db *DB) Collection(model string) (*Collection, error) {
	m, ok := db.schema.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return db.collection(m), nil
}

// New builds a new, unsaved document of the named model.
func (db *DB) New(model string, attrs Attrs) (*Document, error) {
	c, err := db.Collection(model)
	if err != nil {
		return nil, err
	}
	return c.New(attrs), nil
}

// EnsureCollections prepares every model's collection when the store
// implements Initializer. Foreign keys are passed as index candidates.
func (db *DB) EnsureCollections(ctx context.Context) error {
	ini, ok := db.store.(Initializer)
	if !ok {
		return nil
	}
	for _, m := range db.schema.models {
		if err := ini.EnsureCollection(ctx, m.collection, m.foreignKeys()); err != nil {
			return fmt.Errorf("odm: ensure collection %s: %w", m.collection, err)
		}
	}
	return nil
}

// Close closes the store if it holds resources.
func (db *DB) Close() error {
	if c, ok := db.store.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck // thin wrapper
	}
	return nil
}

func (db *DB) collection(m *Model) *Collection {
	return &Collection{db: db, model: m}
}

func (db *DB) log(ctx context.Context, op string, m *Model, args ...any) {
	if db.logger == nil {
		return
	}
	db.logger.DebugContext(ctx, "odm "+op, append([]any{slog.String("collection", m.collection)}, args...)...)
}

func (db *DB) find(ctx context.Context, m *Model, q scope.Query) ([]*Document, error) {
	db.log(ctx, "find", m, slog.String("query", q.String()))
	recs, err := db.store.Find(ctx, m.collection, q)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	docs := make([]*Document, len(recs))
	for i, rec := range recs {
		docs[i] = loadDocument(db, m, rec)
	}
	return docs, nil
}

func (db *DB) count(ctx context.Context, m *Model, q scope.Query) (int64, error) {
	db.log(ctx, "count", m, slog.String("query", q.String()))
	return db.store.Count(ctx, m.collection, q) //nolint:wrapcheck // pass through
}

func (db *DB) insert(ctx context.Context, m *Model, rec Record) error {
	db.log(ctx, "insert", m, slog.Any("id", rec[IDKey]))
	return db.store.Insert(ctx, m.collection, rec) //nolint:wrapcheck // pass through
}

func (db *DB) update(ctx context.Context, m *Model, id string, rec Record) error {
	db.log(ctx, "update", m, slog.String("id", id))
	return db.store.Update(ctx, m.collection, id, rec) //nolint:wrapcheck // pass through
}

func (db *DB) delete(ctx context.Context, m *Model, id string) error {
	db.log(ctx, "delete", m, slog.String("id", id))
	return db.store.Delete(ctx, m.collection, id) //nolint:wrapcheck // pass through
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
