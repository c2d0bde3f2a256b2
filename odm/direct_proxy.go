package odm

import (
	"context"
	"fmt"

	"github.com/mickamy/docmap/scope"
)

// DirectProxy is the proxy of a has_many association: every related
// document stores the owner's identity in the association's foreign key.
type DirectProxy struct {
	owner  *Document
	assoc  *Association
	target *Collection

	loaded   []*Document
	isLoaded bool

	// unsaved holds documents added while the owner had no identity.
	// Their foreign key is filled in when the owner is saved.
	unsaved []*Document
}

func newDirectProxy(owner *Document, a *Association) *DirectProxy {
	return &DirectProxy{owner: owner, assoc: a, target: owner.db.collection(a.target)}
}

func (p *DirectProxy) many() {}

// Association returns the association the proxy is bound to.
func (p *DirectProxy) Association() *Association { return p.assoc }

func (p *DirectProxy) implicit() []scope.Condition {
	return []scope.Condition{scope.Eq(p.assoc.foreignKey, p.owner.id)}
}

// scoped merges the owner condition into q. A contradiction is reported
// even when the owner is new, before any store call.
func (p *DirectProxy) scoped(q scope.Query) (scope.Query, error) {
	return scope.Merge(p.implicit(), q)
}

func (p *DirectProxy) All(ctx context.Context, scopes ...scope.Scope) ([]*Document, error) {
	return p.all(ctx, scope.Build(scopes...))
}

func (p *DirectProxy) First(ctx context.Context, scopes ...scope.Scope) (*Document, error) {
	return p.first(ctx, scope.Build(scopes...))
}

func (p *DirectProxy) Last(ctx context.Context, scopes ...scope.Scope) (*Document, error) {
	return p.last(ctx, scope.Build(scopes...))
}

// FindByID returns the related document with the given identity. An
// identity that exists outside the owner's scope is ErrNotFound.
func (p *DirectProxy) FindByID(ctx context.Context, id string) (*Document, error) {
	return p.findByID(ctx, scope.Query{}, id)
}

// FindByIDs returns the related documents with the given identities, or
// ErrNotFound if any of them is missing from the owner's scope.
func (p *DirectProxy) FindByIDs(ctx context.Context, ids ...string) ([]*Document, error) {
	return p.findByIDs(ctx, scope.Query{}, ids)
}

func (p *DirectProxy) Count(ctx context.Context, scopes ...scope.Scope) (int64, error) {
	return p.count(ctx, scope.Build(scopes...))
}

// Paginate returns one page; the totals are computed from the scoped count.
func (p *DirectProxy) Paginate(ctx context.Context, page, perPage int, scopes ...scope.Scope) (*Page, error) {
	return p.paginate(ctx, scope.Build(scopes...), page, perPage)
}

func (p *DirectProxy) Load(ctx context.Context) ([]*Document, error) {
	if !p.isLoaded {
		docs, err := p.all(ctx, scope.Query{})
		if err != nil {
			return nil, err
		}
		p.loaded, p.isLoaded = docs, true
	}
	out := make([]*Document, 0, len(p.loaded)+len(p.unsaved))
	out = append(out, p.loaded...)
	return append(out, p.unsaved...), nil
}

func (p *DirectProxy) Size(ctx context.Context) (int64, error) {
	n, err := p.Count(ctx)
	if err != nil {
		return 0, err
	}
	return n + int64(len(p.unsaved)), nil
}

// Build returns an unsaved related document with the foreign key set to
// the owner. While the owner is new the key is nil and the document is
// kept for the owner's next save.
func (p *DirectProxy) Build(attrs Attrs) (*Document, error) {
	if v, ok := attrs[p.assoc.foreignKey]; ok && v != nil && v != p.owner.id {
		return nil, fmt.Errorf("%w: %s = %v", ErrUnscopedAccess, p.assoc.foreignKey, v)
	}
	d := p.target.New(attrs)
	p.bind(d)
	p.Reset()
	return d, nil
}

// Create builds and saves a related document.
func (p *DirectProxy) Create(ctx context.Context, attrs Attrs) (*Document, error) {
	d, err := p.Build(attrs)
	if err != nil {
		return nil, err
	}
	if err := d.Save(ctx); err != nil {
		p.forget(d)
		return nil, err
	}
	return d, nil
}

// Append adds documents to the association, saving each one right away
// when the owner has an identity.
func (p *DirectProxy) Append(ctx context.Context, docs ...*Document) error {
	if err := checkTarget(p.assoc, docs); err != nil {
		return err
	}
	p.Reset()
	for _, d := range docs {
		p.bind(d)
		if p.owner.IsNew() {
			continue
		}
		if err := d.Save(ctx); err != nil {
			return fmt.Errorf("odm: append to %s.%s: %w", p.owner.model.name, p.assoc.name, err)
		}
	}
	return nil
}

// Replace adds every document in docs. It is additive; see Many.
func (p *DirectProxy) Replace(ctx context.Context, docs []*Document) error {
	return p.Append(ctx, docs...)
}

// Reset drops the cached documents.
func (p *DirectProxy) Reset() {
	p.loaded, p.isLoaded = nil, false
}

// Pending returns the documents waiting for the owner's identity.
func (p *DirectProxy) Pending() []*Document {
	return append([]*Document(nil), p.unsaved...)
}

// bind points d at the owner, or queues it while the owner is new.
func (p *DirectProxy) bind(d *Document) {
	if p.owner.IsNew() {
		d.Set(p.assoc.foreignKey, nil)
		p.unsaved = append(p.unsaved, d)
		return
	}
	d.Set(p.assoc.foreignKey, p.owner.id)
}

func (p *DirectProxy) forget(d *Document) {
	for i, u := range p.unsaved {
		if u == d {
			p.unsaved = append(p.unsaved[:i], p.unsaved[i+1:]...)
			return
		}
	}
}

// flush saves the queued documents in insertion order once the owner has
// an identity. On failure the failed document and the ones after it stay
// queued.
func (p *DirectProxy) flush(ctx context.Context) error {
	if p.owner.IsNew() || len(p.unsaved) == 0 {
		return nil
	}
	n := 0
	defer func() { logFlush(ctx, p.owner, p.assoc, n) }()
	for len(p.unsaved) > 0 {
		d := p.unsaved[0]
		d.Set(p.assoc.foreignKey, p.owner.id)
		if err := d.Save(ctx); err != nil {
			return &PersistError{Model: p.owner.model.name, Association: p.assoc.name, Remaining: len(p.unsaved), Err: err}
		}
		p.unsaved = p.unsaved[1:]
		n++
	}
	p.unsaved = nil
	p.Reset()
	return nil
}

// --- scoped reads shared with ThroughProxy ---

func (p *DirectProxy) all(ctx context.Context, q scope.Query) ([]*Document, error) {
	sq, err := p.scoped(q)
	if err != nil {
		return nil, err
	}
	if p.owner.IsNew() {
		return nil, nil
	}
	return p.target.all(ctx, sq)
}

func (p *DirectProxy) first(ctx context.Context, q scope.Query) (*Document, error) {
	sq, err := p.scoped(q)
	if err != nil {
		return nil, err
	}
	if p.owner.IsNew() {
		return nil, ErrNotFound
	}
	return p.target.first(ctx, sq)
}

func (p *DirectProxy) last(ctx context.Context, q scope.Query) (*Document, error) {
	sq, err := p.scoped(q)
	if err != nil {
		return nil, err
	}
	if p.owner.IsNew() {
		return nil, ErrNotFound
	}
	return p.target.last(ctx, sq)
}

func (p *DirectProxy) count(ctx context.Context, q scope.Query) (int64, error) {
	sq, err := p.scoped(q)
	if err != nil {
		return 0, err
	}
	if p.owner.IsNew() {
		return 0, nil
	}
	return p.target.count(ctx, sq)
}

func (p *DirectProxy) findByID(ctx context.Context, q scope.Query, id string) (*Document, error) {
	sq, err := p.scoped(q)
	if err != nil {
		return nil, err
	}
	if p.owner.IsNew() {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, p.target.model.name, id)
	}
	return p.target.findByID(ctx, sq, id)
}

func (p *DirectProxy) findByIDs(ctx context.Context, q scope.Query, ids []string) ([]*Document, error) {
	sq, err := p.scoped(q)
	if err != nil {
		return nil, err
	}
	if p.owner.IsNew() {
		if len(ids) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: owner is new", ErrNotFound, p.target.model.name)
	}
	return p.target.findByIDs(ctx, sq, ids)
}

func (p *DirectProxy) paginate(ctx context.Context, q scope.Query, page, perPage int) (*Page, error) {
	sq, err := p.scoped(q)
	if err != nil {
		return nil, err
	}
	if p.owner.IsNew() {
		page, perPage = pageBounds(page, perPage)
		return newPage(nil, page, perPage, 0), nil
	}
	return p.target.paginate(ctx, sq, page, perPage)
}
