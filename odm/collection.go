package odm

import (
	"context"
	"fmt"

	"github.com/mickamy/docmap/scope"
)

// DefaultPerPage is used by Paginate when perPage is not positive.
const DefaultPerPage = 25

// Page is one page of a paginated result. TotalEntries and TotalPages
// describe the whole scoped result, not just this page.
type Page struct {
	Items        []*Document
	Number       int
	PerPage      int
	TotalEntries int64
	TotalPages   int
}

func newPage(items []*Document, number, perPage int, total int64) *Page {
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return &Page{Items: items, Number: number, PerPage: perPage, TotalEntries: total, TotalPages: pages}
}

func pageBounds(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	return page, perPage
}

// Collection is the finder for one model. Every method issues a single
// round trip to the store unless documented otherwise.
type Collection struct {
	db    *DB
	model *Model
}

// Model returns the model the collection finds.
func (c *Collection) Model() *Model { return c.model }

// New builds an unsaved document.
func (c *Collection) New(attrs Attrs) *Document {
	return newDocument(c.db, c.model, attrs)
}

// Create builds and saves a document.
func (c *Collection) Create(ctx context.Context, attrs Attrs) (*Document, error) {
	d := c.New(attrs)
	if err := d.Save(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// All returns every document matching scopes.
func (c *Collection) All(ctx context.Context, scopes ...scope.Scope) ([]*Document, error) {
	return c.all(ctx, scope.Build(scopes...))
}

// First returns the first document matching scopes, or ErrNotFound.
func (c *Collection) First(ctx context.Context, scopes ...scope.Scope) (*Document, error) {
	return c.first(ctx, scope.Build(scopes...))
}

// Last returns the last document matching scopes, or ErrNotFound.
// It counts first, then fetches the final row.
func (c *Collection) Last(ctx context.Context, scopes ...scope.Scope) (*Document, error) {
	return c.last(ctx, scope.Build(scopes...))
}

// FindByID returns the document with the given identity, or ErrNotFound.
func (c *Collection) FindByID(ctx context.Context, id string) (*Document, error) {
	return c.findByID(ctx, scope.Query{}, id)
}

// FindByIDs returns the documents with the given identities. If any of
// them does not exist the result is ErrNotFound, never a shorter slice.
func (c *Collection) FindByIDs(ctx context.Context, ids ...string) ([]*Document, error) {
	return c.findByIDs(ctx, scope.Query{}, ids)
}

// Count returns the number of documents matching scopes.
func (c *Collection) Count(ctx context.Context, scopes ...scope.Scope) (int64, error) {
	return c.count(ctx, scope.Build(scopes...))
}

// Paginate returns the given 1-based page. It counts, then fetches.
func (c *Collection) Paginate(ctx context.Context, page, perPage int, scopes ...scope.Scope) (*Page, error) {
	return c.paginate(ctx, scope.Build(scopes...), page, perPage)
}

// --- scoped primitives shared with the association proxies ---

func (c *Collection) all(ctx context.Context, q scope.Query) ([]*Document, error) {
	return c.db.find(ctx, c.model, q)
}

func (c *Collection) first(ctx context.Context, q scope.Query) (*Document, error) {
	docs, err := c.all(ctx, q.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (c *Collection) last(ctx context.Context, q scope.Query) (*Document, error) {
	q = q.WithoutPaging()
	n, err := c.count(ctx, q)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return c.first(ctx, q.WithOffset(int(n-1)))
}

func (c *Collection) count(ctx context.Context, q scope.Query) (int64, error) {
	return c.db.count(ctx, c.model, q.WithoutPaging())
}

func (c *Collection) findByID(ctx context.Context, q scope.Query, id string) (*Document, error) {
	d, err := c.first(ctx, q.Where(scope.Eq(IDKey, id)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s", err, c.model.name, id)
	}
	return d, nil
}

func (c *Collection) findByIDs(ctx context.Context, q scope.Query, ids []string) ([]*Document, error) {
	want := uniqueStrings(ids)
	docs, err := c.all(ctx, q.Where(inCondition(IDKey, want)))
	if err != nil {
		return nil, err
	}
	if len(docs) < len(want) {
		return nil, fmt.Errorf("%w: %s: found %d of %d ids", ErrNotFound, c.model.name, len(docs), len(want))
	}
	return docs, nil
}

func (c *Collection) paginate(ctx context.Context, q scope.Query, page, perPage int) (*Page, error) {
	page, perPage = pageBounds(page, perPage)
	total, err := c.count(ctx, q)
	if err != nil {
		return nil, err
	}
	items, err := c.all(ctx, q.WithLimit(perPage).WithOffset((page-1)*perPage))
	if err != nil {
		return nil, err
	}
	return newPage(items, page, perPage, total), nil
}

func inCondition(field string, values []string) scope.Condition {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return scope.Condition{Field: field, Op: scope.OpIn, Values: args}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
