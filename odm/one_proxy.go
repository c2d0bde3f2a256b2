package odm

import (
	"context"
	"errors"
	"fmt"

	"github.com/mickamy/docmap/scope"
)

// OneProxy is the proxy of a belongs_to or has_one association.
//
// A belongs_to target that is still new is saved right before its owner,
// so the owner can store the target's identity. A has_one target set on a
// new owner is saved with the owner's identity after the owner is saved.
type OneProxy struct {
	owner  *Document
	assoc  *Association
	target *Collection

	cached   *Document
	isLoaded bool
	pending  *Document
}

func newOneProxy(owner *Document, a *Association) *OneProxy {
	return &OneProxy{owner: owner, assoc: a, target: owner.db.collection(a.target)}
}

// Association returns the association the proxy is bound to.
func (p *OneProxy) Association() *Association { return p.assoc }

// Get returns the related document, or ErrNotFound.
func (p *OneProxy) Get(ctx context.Context) (*Document, error) {
	if p.pending != nil {
		return p.pending, nil
	}
	if p.isLoaded {
		if p.cached == nil {
			return nil, ErrNotFound
		}
		return p.cached, nil
	}

	var (
		d   *Document
		err error
	)
	switch p.assoc.kind {
	case BelongsTo:
		id, _ := p.owner.Get(p.assoc.foreignKey).(string)
		if id == "" {
			return nil, ErrNotFound
		}
		d, err = p.target.FindByID(ctx, id)
	default:
		if p.owner.IsNew() {
			return nil, ErrNotFound
		}
		d, err = p.target.first(ctx, scope.Query{Conditions: []scope.Condition{scope.Eq(p.assoc.foreignKey, p.owner.id)}})
	}
	if errors.Is(err, ErrNotFound) {
		p.cached, p.isLoaded = nil, true
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	p.cached, p.isLoaded = d, true
	return d, nil
}

// Set relates target to the owner. For has_one with a persisted owner the
// target is saved immediately.
func (p *OneProxy) Set(ctx context.Context, target *Document) error {
	if err := checkTarget(p.assoc, []*Document{target}); err != nil {
		return err
	}
	p.Reset()
	p.pending = nil
	switch p.assoc.kind {
	case BelongsTo:
		if target.IsNew() {
			p.owner.Set(p.assoc.foreignKey, nil)
			p.pending = target
			return nil
		}
		p.owner.Set(p.assoc.foreignKey, target.id)
	default:
		if p.owner.IsNew() {
			target.Set(p.assoc.foreignKey, nil)
			p.pending = target
			return nil
		}
		target.Set(p.assoc.foreignKey, p.owner.id)
		if err := target.Save(ctx); err != nil {
			return fmt.Errorf("odm: set %s.%s: %w", p.owner.model.name, p.assoc.name, err)
		}
	}
	p.cached, p.isLoaded = target, true
	return nil
}

// Build returns an unsaved target related to the owner. It is saved
// together with the owner.
func (p *OneProxy) Build(attrs Attrs) *Document {
	d := p.target.New(attrs)
	p.Reset()
	if p.assoc.kind == BelongsTo {
		p.owner.Set(p.assoc.foreignKey, nil)
	} else if !p.owner.IsNew() {
		d.Set(p.assoc.foreignKey, p.owner.id)
	}
	p.pending = d
	return d
}

// Create builds and saves a target. For belongs_to the owner's foreign key
// is updated in memory; save the owner to store it.
func (p *OneProxy) Create(ctx context.Context, attrs Attrs) (*Document, error) {
	d := p.target.New(attrs)
	if p.assoc.kind != BelongsTo && !p.owner.IsNew() {
		d.Set(p.assoc.foreignKey, p.owner.id)
	}
	if err := d.Save(ctx); err != nil {
		return nil, err
	}
	p.Reset()
	p.pending = nil
	switch {
	case p.assoc.kind == BelongsTo:
		p.owner.Set(p.assoc.foreignKey, d.id)
	case p.owner.IsNew():
		p.pending = d
		return d, nil
	}
	p.cached, p.isLoaded = d, true
	return d, nil
}

// Reset drops the cached target.
func (p *OneProxy) Reset() {
	p.cached, p.isLoaded = nil, false
}

func (p *OneProxy) prepare(ctx context.Context) error {
	if p.assoc.kind != BelongsTo || p.pending == nil {
		return nil
	}
	d := p.pending
	if d.IsNew() {
		if err := d.Save(ctx); err != nil {
			return &PersistError{Model: p.owner.model.name, Association: p.assoc.name, Remaining: 1, Err: err}
		}
	}
	p.owner.Set(p.assoc.foreignKey, d.id)
	p.pending = nil
	p.cached, p.isLoaded = d, true
	return nil
}

func (p *OneProxy) flush(ctx context.Context) error {
	if p.assoc.kind == BelongsTo || p.pending == nil || p.owner.IsNew() {
		return nil
	}
	d := p.pending
	d.Set(p.assoc.foreignKey, p.owner.id)
	if err := d.Save(ctx); err != nil {
		return &PersistError{Model: p.owner.model.name, Association: p.assoc.name, Remaining: 1, Err: err}
	}
	p.pending = nil
	p.cached, p.isLoaded = d, true
	logFlush(ctx, p.owner, p.assoc, 1)
	return nil
}
