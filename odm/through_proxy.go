package odm

import (
	"context"
	"errors"
	"fmt"

	"github.com/mickamy/docmap/scope"
)

// ThroughProxy is the proxy of a has_many_through association. Targets
// are reached through join documents owned by the mediator association:
// every query runs against the join collection under the owner's scope and
// the resulting join documents are projected onto their targets.
//
// Additions that cannot be written yet, because the owner or the target
// has no identity, are buffered as pending join entries. They are written
// in insertion order when the owner is saved, or when a target is saved
// while the owner already has an identity. A target save writes entries up
// to the first one whose target is still new, so a later entry never
// overtakes an earlier one.
type ThroughProxy struct {
	owner    *Document
	assoc    *Association
	mediator *DirectProxy
	join     *Collection
	target   *Collection

	pending  []pendingJoin
	flushing bool

	loaded   []*Document
	isLoaded bool
}

type pendingJoin struct {
	join   *Document
	target *Document
}

func newThroughProxy(owner *Document, a *Association, mediator *DirectProxy) *ThroughProxy {
	return &ThroughProxy{
		owner:    owner,
		assoc:    a,
		mediator: mediator,
		join:     owner.db.collection(a.mediator.target),
		target:   owner.db.collection(a.target),
	}
}

func (p *ThroughProxy) many() {}

// Association returns the association the proxy is bound to.
func (p *ThroughProxy) Association() *Association { return p.assoc }

// All returns the targets of the owner's join documents in join order.
//
// Conditions on join fields filter the join documents. Conditions on
// fields only the target declares cost two extra queries: the owner's
// matching join documents, then their targets. Orderings must name join
// fields.
func (p *ThroughProxy) All(ctx context.Context, scopes ...scope.Scope) ([]*Document, error) {
	q, ok, err := p.route(ctx, scope.Build(scopes...))
	if err != nil || !ok {
		return nil, err
	}
	joins, err := p.mediator.all(ctx, q)
	if err != nil {
		return nil, err
	}
	return p.project(ctx, joins)
}

func (p *ThroughProxy) First(ctx context.Context, scopes ...scope.Scope) (*Document, error) {
	return p.one(ctx, scope.Build(scopes...), p.mediator.first)
}

func (p *ThroughProxy) Last(ctx context.Context, scopes ...scope.Scope) (*Document, error) {
	return p.one(ctx, scope.Build(scopes...), p.mediator.last)
}

// FindByID returns the target with the given identity if the owner is
// joined to it. A target that exists but is joined only to other owners is
// ErrNotFound.
func (p *ThroughProxy) FindByID(ctx context.Context, id string) (*Document, error) {
	d, err := p.one(ctx, scope.Query{Conditions: []scope.Condition{scope.Eq(p.assoc.foreignKey, id)}}, p.mediator.first)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s", err, p.assoc.target.name, id)
	}
	return d, err
}

// FindByIDs returns the joined targets with the given identities, or
// ErrNotFound if the owner is not joined to every one of them.
func (p *ThroughProxy) FindByIDs(ctx context.Context, ids ...string) ([]*Document, error) {
	want := uniqueStrings(ids)
	if p.owner.IsNew() {
		if len(want) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: owner is new", ErrNotFound, p.assoc.target.name)
	}
	joins, err := p.mediator.all(ctx, scope.Query{Conditions: []scope.Condition{inCondition(p.assoc.foreignKey, want)}})
	if err != nil {
		return nil, err
	}
	pairs, err := joinPairs(p.assoc.name, joins, p.assoc.foreignKey)
	if err != nil {
		return nil, err
	}
	if found := UniqueTargets(pairs); len(found) < len(want) {
		return nil, fmt.Errorf("%w: %s: found %d of %d ids", ErrNotFound, p.assoc.target.name, len(found), len(want))
	}
	return p.projectPairs(ctx, pairs)
}

// Count returns the number of the owner's join documents that match.
// Targets joined more than once are counted once per join.
func (p *ThroughProxy) Count(ctx context.Context, scopes ...scope.Scope) (int64, error) {
	q, ok, err := p.route(ctx, scope.Build(scopes...))
	if err != nil || !ok {
		return 0, err
	}
	return p.mediator.count(ctx, q)
}

// Paginate pages over the owner's join documents and projects the page.
func (p *ThroughProxy) Paginate(ctx context.Context, page, perPage int, scopes ...scope.Scope) (*Page, error) {
	q, ok, err := p.route(ctx, scope.Build(scopes...))
	if err != nil {
		return nil, err
	}
	if !ok {
		page, perPage = pageBounds(page, perPage)
		return newPage(nil, page, perPage, 0), nil
	}
	pg, err := p.mediator.paginate(ctx, q, page, perPage)
	if err != nil {
		return nil, err
	}
	if pg.Items, err = p.project(ctx, pg.Items); err != nil {
		return nil, err
	}
	return pg, nil
}

func (p *ThroughProxy) Load(ctx context.Context) ([]*Document, error) {
	if !p.isLoaded {
		docs, err := p.All(ctx)
		if err != nil {
			return nil, err
		}
		p.loaded, p.isLoaded = docs, true
	}
	out := make([]*Document, 0, len(p.loaded)+len(p.pending))
	out = append(out, p.loaded...)
	for _, e := range p.pending {
		out = append(out, e.target)
	}
	return out, nil
}

func (p *ThroughProxy) Size(ctx context.Context) (int64, error) {
	n, err := p.Count(ctx)
	if err != nil {
		return 0, err
	}
	return n + int64(len(p.pending)), nil
}

// Build returns an unsaved target with a pending join entry. The entry is
// written when both sides have an identity.
func (p *ThroughProxy) Build(attrs Attrs) (*Document, error) {
	d := p.target.New(attrs)
	p.enqueue(d)
	return d, nil
}

// Create builds and saves a target. When the owner has an identity the
// join document is written by the same call, unless an earlier entry is
// still waiting on an unsaved target.
func (p *ThroughProxy) Create(ctx context.Context, attrs Attrs) (*Document, error) {
	d, _ := p.Build(attrs)
	if err := d.Save(ctx); err != nil {
		if d.IsNew() {
			p.discard(d)
		}
		return nil, err
	}
	return d, nil
}

// Append adds targets to the association. Each one gets a join entry; the
// entries are flushed right away when the owner has an identity.
func (p *ThroughProxy) Append(ctx context.Context, docs ...*Document) error {
	if err := checkTarget(p.assoc, docs); err != nil {
		return err
	}
	for _, d := range docs {
		p.enqueue(d)
	}
	return p.flush(ctx)
}

// Replace adds every document in docs. It is additive; see Many.
func (p *ThroughProxy) Replace(ctx context.Context, docs []*Document) error {
	return p.Append(ctx, docs...)
}

// Reset drops the cached targets. Pending entries are kept.
func (p *ThroughProxy) Reset() {
	p.loaded, p.isLoaded = nil, false
}

// Pending returns the number of join entries not written yet.
func (p *ThroughProxy) Pending() int { return len(p.pending) }

// enqueue creates the join entry for target and registers the proxy to
// hear about the target's first save.
func (p *ThroughProxy) enqueue(target *Document) {
	j := p.join.New(nil)
	if !target.IsNew() {
		j.Set(p.assoc.foreignKey, target.id)
	}
	if !p.owner.IsNew() {
		j.Set(p.assoc.mediator.foreignKey, p.owner.id)
	}
	p.pending = append(p.pending, pendingJoin{join: j, target: target})
	target.attach(p)
	p.Reset()
}

func (p *ThroughProxy) discard(target *Document) {
	kept := p.pending[:0]
	for _, e := range p.pending {
		if e.target != target {
			kept = append(kept, e)
		}
	}
	p.pending = kept
	target.detach(p)
}

// flush writes every pending entry, saving new targets on the way.
func (p *ThroughProxy) flush(ctx context.Context) error {
	return p.flushEntries(ctx, true)
}

// targetPersisted writes the pending prefix whose targets have an
// identity. It never saves a sibling target.
func (p *ThroughProxy) targetPersisted(ctx context.Context, _ *Document) error {
	return p.flushEntries(ctx, false)
}

// flushEntries writes pending entries in insertion order. Without
// saveTargets it stops at the first entry whose target is new. Saving a new
// target notifies this proxy again; the flushing flag turns that nested
// call into a no-op.
//
// On failure the failed entry and every entry after it stay pending, so a
// later flush retries them in the same order.
func (p *ThroughProxy) flushEntries(ctx context.Context, saveTargets bool) error {
	if p.owner.IsNew() || len(p.pending) == 0 || p.flushing {
		return nil
	}
	p.flushing = true
	defer func() { p.flushing = false }()

	var written []*Document
	defer func() {
		p.release(written)
		if len(written) > 0 {
			p.Reset()
			p.mediator.Reset()
		}
		logFlush(ctx, p.owner, p.assoc, len(written))
	}()
	for i, e := range p.pending {
		if !saveTargets && e.target.IsNew() {
			p.pending = p.pending[i:]
			return nil
		}
		if err := p.write(ctx, e); err != nil {
			p.pending = p.pending[i:]
			return &PersistError{Model: p.owner.model.name, Association: p.assoc.name, Remaining: len(p.pending), Err: err}
		}
		written = append(written, e.target)
	}
	p.pending = nil
	return nil
}

func (p *ThroughProxy) write(ctx context.Context, e pendingJoin) error {
	if e.target.IsNew() {
		if err := e.target.Save(ctx); err != nil {
			return err
		}
	}
	e.join.Set(p.assoc.foreignKey, e.target.id)
	e.join.Set(p.assoc.mediator.foreignKey, p.owner.id)
	return e.join.Save(ctx)
}

// release detaches the proxy from written targets that have no pending
// entry left.
func (p *ThroughProxy) release(written []*Document) {
	for _, t := range written {
		waiting := false
		for _, e := range p.pending {
			if e.target == t {
				waiting = true
				break
			}
		}
		if !waiting {
			t.detach(p)
		}
	}
}

// route turns a caller query into a query on the join collection. ok is
// false when the owner is new or the target conditions match nothing, in
// which case the result is empty without touching the join collection.
func (p *ThroughProxy) route(ctx context.Context, q scope.Query) (scope.Query, bool, error) {
	jq, tconds, err := p.split(q)
	if err != nil {
		return scope.Query{}, false, err
	}
	if _, err := p.mediator.scoped(jq); err != nil {
		return scope.Query{}, false, err
	}
	if p.owner.IsNew() {
		return scope.Query{}, false, nil
	}
	if len(tconds) == 0 {
		return jq, true, nil
	}

	// Target conditions are checked only against the owner's joined
	// targets, never the whole target collection.
	joins, err := p.mediator.all(ctx, scope.Query{Conditions: jq.Conditions})
	if err != nil {
		return scope.Query{}, false, err
	}
	if len(joins) == 0 {
		return scope.Query{}, false, nil
	}
	pairs, err := joinPairs(p.assoc.name, joins, p.assoc.foreignKey)
	if err != nil {
		return scope.Query{}, false, err
	}
	tq := scope.Query{Conditions: append([]scope.Condition{inCondition(IDKey, UniqueTargets(pairs))}, tconds...)}
	targets, err := p.target.all(ctx, tq)
	if err != nil {
		return scope.Query{}, false, err
	}
	if len(targets) == 0 {
		return scope.Query{}, false, nil
	}
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.id
	}
	return jq.Where(inCondition(p.assoc.foreignKey, ids)), true, nil
}

// split sorts caller conditions into join conditions and target
// conditions. The target identity maps onto the join's foreign key.
func (p *ThroughProxy) split(q scope.Query) (scope.Query, []scope.Condition, error) {
	jm, tm := p.assoc.mediator.target, p.assoc.target
	jq := scope.Query{Limit: q.Limit, Offset: q.Offset}
	var tconds []scope.Condition
	for _, c := range q.Conditions {
		switch {
		case c.Field == IDKey:
			c.Field = p.assoc.foreignKey
			jq.Conditions = append(jq.Conditions, c)
		case jm.HasKey(c.Field):
			jq.Conditions = append(jq.Conditions, c)
		case tm.HasKey(c.Field):
			tconds = append(tconds, c)
		default:
			return scope.Query{}, nil, &ProjectionError{
				Association: p.assoc.name,
				Field:       c.Field,
				Reason:      fmt.Sprintf("is not a field of %s or %s", jm.name, tm.name),
			}
		}
	}
	for _, s := range q.Sorts {
		if !jm.HasKey(s.Field) {
			return scope.Query{}, nil, &ProjectionError{
				Association: p.assoc.name,
				Field:       s.Field,
				Reason:      "cannot order by a field that is not on " + jm.name,
			}
		}
		jq.Sorts = append(jq.Sorts, s)
	}
	return jq, tconds, nil
}

type joinFinder func(ctx context.Context, q scope.Query) (*Document, error)

func (p *ThroughProxy) one(ctx context.Context, q scope.Query, find joinFinder) (*Document, error) {
	jq, ok, err := p.route(ctx, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	j, err := find(ctx, jq)
	if err != nil {
		return nil, err
	}
	docs, err := p.project(ctx, []*Document{j})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// project loads the targets of joins in one batch and returns them in join
// order.
func (p *ThroughProxy) project(ctx context.Context, joins []*Document) ([]*Document, error) {
	if len(joins) == 0 {
		return nil, nil
	}
	pairs, err := joinPairs(p.assoc.name, joins, p.assoc.foreignKey)
	if err != nil {
		return nil, err
	}
	return p.projectPairs(ctx, pairs)
}

func (p *ThroughProxy) projectPairs(ctx context.Context, pairs []JoinPair[string, string]) ([]*Document, error) {
	ids := UniqueTargets(pairs)
	targets, err := p.target.all(ctx, scope.Query{Conditions: []scope.Condition{inCondition(IDKey, ids)}})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Document, len(targets))
	for _, t := range targets {
		byID[t.id] = t
	}
	out := make([]*Document, len(pairs))
	for i, pr := range pairs {
		t, ok := byID[pr.Target]
		if !ok {
			return nil, &ProjectionError{
				Association: p.assoc.name,
				Field:       p.assoc.foreignKey,
				Reason:      fmt.Sprintf("join document %s references missing %s %s", pr.Source, p.assoc.target.name, pr.Target),
			}
		}
		out[i] = t
	}
	return out, nil
}
