package odm

import (
	"context"
	"fmt"
	"maps"
	"time"
)

// Attrs is a set of field values used to build a document.
type Attrs map[string]any

// Document is an instance of a Model. A document without an identity is
// new; it gets one on its first successful Save.
//
// A Document and the association proxies it hands out are not safe for
// concurrent use.
type Document struct {
	db      *DB
	model   *Model
	id      string
	attrs   map[string]any
	proxies map[string]any

	// persisted callbacks registered by through associations of other
	// owners that this document was added to while one side had no
	// identity. Each one is told when this document is saved.
	callbacks []persistCallback
}

// persistCallback is notified after the document it is attached to has
// been written.
type persistCallback interface {
	targetPersisted(ctx context.Context, target *Document) error
}

// flusher is implemented by proxies that hold writes until their owner is
// persisted.
type flusher interface {
	flush(ctx context.Context) error
}

// preparer is implemented by proxies that must write something before
// their owner can be persisted.
type preparer interface {
	prepare(ctx context.Context) error
}

func newDocument(db *DB, m *Model, attrs Attrs) *Document {
	d := &Document{db: db, model: m, attrs: make(map[string]any, len(attrs))}
	for _, k := range m.keys {
		if k.HasDefault {
			d.attrs[k.Name] = k.Default
		}
	}
	for k, v := range attrs {
		d.Set(k, v)
	}
	return d
}

func loadDocument(db *DB, m *Model, rec Record) *Document {
	d := &Document{db: db, model: m, attrs: make(map[string]any, len(rec))}
	for k, v := range rec {
		if k == IDKey {
			d.id = fmt.Sprint(v)
			continue
		}
		if key, ok := m.Key(k); ok {
			v = coerce(key.Type, v)
		}
		d.attrs[k] = v
	}
	return d
}

// Model returns the document's model.
func (d *Document) Model() *Model { return d.model }

// ID returns the identity, or "" for a new document.
func (d *Document) ID() string { return d.id }

// IsNew reports whether the document has no identity yet.
func (d *Document) IsNew() bool { return d.id == "" }

// Get returns the value of field, or nil.
func (d *Document) Get(field string) any {
	if field == IDKey {
		if d.id == "" {
			return nil
		}
		return d.id
	}
	return d.attrs[field]
}

// String returns the field as a string, or "" if it is not one.
func (d *Document) String(field string) string {
	s, _ := d.Get(field).(string)
	return s
}

// Int returns the field as an int64, or 0 if it is not one.
func (d *Document) Int(field string) int64 {
	n, _ := coerce(Int, d.Get(field)).(int64)
	return n
}

// Time returns the field as a time.Time, or the zero time.
func (d *Document) Time(field string) time.Time {
	t, _ := coerce(Time, d.Get(field)).(time.Time)
	return t
}

// Set assigns a field. Setting IDKey assigns the identity.
func (d *Document) Set(field string, v any) {
	if field == IDKey {
		if v == nil {
			d.id = ""
		} else {
			d.id = fmt.Sprint(v)
		}
		return
	}
	d.attrs[field] = v
}

// Attributes returns a copy of the field values, without the identity.
func (d *Document) Attributes() map[string]any {
	return maps.Clone(d.attrs)
}

// Equal reports whether both documents have the same identity and model.
// A new document is equal only to itself.
func (d *Document) Equal(o *Document) bool {
	if d == nil || o == nil {
		return false
	}
	if d == o {
		return true
	}
	if d.id == "" {
		return false
	}
	return d.id == o.id && d.model == o.model
}

func (d *Document) record() Record {
	rec := make(Record, len(d.attrs)+1)
	maps.Copy(rec, d.attrs)
	rec[IDKey] = d.id
	return rec
}

// Save inserts a new document or updates an existing one. Afterwards the
// model's AfterSave hooks run, then every association proxy of this
// document flushes its buffered writes, and finally through associations
// of other owners waiting on this document are notified.
func (d *Document) Save(ctx context.Context) error {
	for _, h := range d.model.beforeSave {
		if err := h(ctx, d); err != nil {
			return err
		}
	}
	if err := d.eachProxy(func(p any) error {
		if pr, ok := p.(preparer); ok {
			return pr.prepare(ctx)
		}
		return nil
	}); err != nil {
		return err
	}

	ts := now(ctx)
	d.attrs[UpdatedAtKey] = ts
	if d.IsNew() {
		if _, ok := d.attrs[CreatedAtKey]; !ok {
			d.attrs[CreatedAtKey] = ts
		}
		id := d.db.newID()
		d.id = id
		if err := d.db.insert(ctx, d.model, d.record()); err != nil {
			d.id = ""
			return fmt.Errorf("odm: insert %s: %w", d.model.name, err)
		}
	} else if err := d.db.update(ctx, d.model, d.id, d.record()); err != nil {
		return fmt.Errorf("odm: update %s %s: %w", d.model.name, d.id, err)
	}

	return d.persisted(ctx)
}

// persisted runs the "was persisted" side of Save.
func (d *Document) persisted(ctx context.Context) error {
	for _, h := range d.model.afterSave {
		if err := h(ctx, d); err != nil {
			return err
		}
	}
	if err := d.eachProxy(func(p any) error {
		if f, ok := p.(flusher); ok {
			return f.flush(ctx)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, cb := range append([]persistCallback(nil), d.callbacks...) {
		if err := cb.targetPersisted(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Destroy deletes the document. Related documents are left in place.
func (d *Document) Destroy(ctx context.Context) error {
	if d.IsNew() {
		return nil
	}
	if err := d.db.delete(ctx, d.model, d.id); err != nil {
		return fmt.Errorf("odm: delete %s %s: %w", d.model.name, d.id, err)
	}
	d.id = ""
	return nil
}

// Reload replaces the field values with the stored ones and drops cached
// association results.
func (d *Document) Reload(ctx context.Context) error {
	if d.IsNew() {
		return ErrNotFound
	}
	fresh, err := d.db.collection(d.model).FindByID(ctx, d.id)
	if err != nil {
		return err
	}
	d.attrs = fresh.attrs
	for _, p := range d.proxies {
		if r, ok := p.(interface{ Reset() }); ok {
			r.Reset()
		}
	}
	return nil
}

// Many returns the proxy of a has_many or has_many_through association.
// The proxy is created on first use and cached on the document.
func (d *Document) Many(name string) (Many, error) {
	a, err := d.association(name)
	if err != nil {
		return nil, err
	}
	if a.kind.Cardinality() != CardinalityMany {
		return nil, fmt.Errorf("%w: %s.%s is %s", ErrUnknownAssociation, d.model.name, name, a.kind)
	}
	return d.proxy(a).(Many), nil
}

// One returns the proxy of a belongs_to or has_one association.
func (d *Document) One(name string) (*OneProxy, error) {
	a, err := d.association(name)
	if err != nil {
		return nil, err
	}
	if a.kind.Cardinality() != CardinalityOne {
		return nil, fmt.Errorf("%w: %s.%s is %s", ErrUnknownAssociation, d.model.name, name, a.kind)
	}
	return d.proxy(a).(*OneProxy), nil
}

func (d *Document) association(name string) (*Association, error) {
	a, ok := d.model.Association(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAssociation, d.model.name, name)
	}
	return a, nil
}

func (d *Document) proxy(a *Association) any {
	if p, ok := d.proxies[a.name]; ok {
		return p
	}
	if d.proxies == nil {
		d.proxies = make(map[string]any)
	}
	var p any
	switch a.kind {
	case HasMany:
		p = newDirectProxy(d, a)
	case HasManyThrough:
		p = newThroughProxy(d, a, d.proxy(a.mediator).(*DirectProxy))
	default:
		p = newOneProxy(d, a)
	}
	d.proxies[a.name] = p
	return p
}

// eachProxy visits instantiated proxies in association declaration order.
func (d *Document) eachProxy(fn func(p any) error) error {
	if len(d.proxies) == 0 {
		return nil
	}
	for _, a := range d.model.assocs {
		p, ok := d.proxies[a.name]
		if !ok {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) attach(cb persistCallback) {
	for _, c := range d.callbacks {
		if c == cb {
			return
		}
	}
	d.callbacks = append(d.callbacks, cb)
}

func (d *Document) detach(cb persistCallback) {
	for i, c := range d.callbacks {
		if c == cb {
			d.callbacks = append(d.callbacks[:i], d.callbacks[i+1:]...)
			return
		}
	}
}

// PendingCallbacks returns how many through associations are waiting for
// this document to be saved.
func (d *Document) PendingCallbacks() int { return len(d.callbacks) }
