package odm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/inflection"

	"github.com/mickamy/docmap/internal/naming"
)

// KeyType is the declared type of a model key. Values read back from a
// store are coerced to the Go type of their key.
type KeyType int

const (
	Any    KeyType = iota
	String         // string
	Int            // int64
	Float          // float64
	Bool           // bool
	Time           // time.Time
	ID             // string identity of another document
)

func (t KeyType) String() string {
	switch t {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case ID:
		return "id"
	default:
		return "any"
	}
}

// Key is a declared document field.
type Key struct {
	Name       string
	Type       KeyType
	Default    any
	HasDefault bool
}

// KeyOption configures a Key.
type KeyOption func(*Key)

// Default sets the value a new document gets when the key is not given.
func Default(v any) KeyOption {
	return func(k *Key) {
		k.Default = v
		k.HasDefault = true
	}
}

// Kind is the kind of an association.
type Kind int

const (
	// BelongsTo stores the target's identity on the owner.
	BelongsTo Kind = iota + 1
	// HasOne stores the owner's identity on a single target.
	HasOne
	// HasMany stores the owner's identity on many targets.
	HasMany
	// HasManyThrough reaches many targets through a join model.
	HasManyThrough
)

func (k Kind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case HasManyThrough:
		return "has_many_through"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Cardinality is how many targets an association yields.
type Cardinality int

const (
	CardinalityOne Cardinality = iota + 1
	CardinalityMany
)

// Mechanism is how an association reaches its targets.
type Mechanism int

const (
	MechanismDirect Mechanism = iota + 1
	MechanismThrough
)

// Cardinality reports whether the kind yields one or many targets.
func (k Kind) Cardinality() Cardinality {
	if k == HasMany || k == HasManyThrough {
		return CardinalityMany
	}
	return CardinalityOne
}

// Mechanism reports whether the kind is resolved by a single scoped query
// or through a join model.
func (k Kind) Mechanism() Mechanism {
	if k == HasManyThrough {
		return MechanismThrough
	}
	return MechanismDirect
}

// Association is the resolved definition of one named relation.
// Associations are immutable once Registry.Build returns.
type Association struct {
	name       string
	kind       Kind
	owner      *Model
	target     *Model
	foreignKey string
	mediator   *Association
	source     *Association
}

func (a *Association) Name() string   { return a.name }
func (a *Association) Kind() Kind     { return a.kind }
func (a *Association) Owner() *Model  { return a.owner }
func (a *Association) Target() *Model { return a.target }

// ForeignKey is the field holding the linking identity. For BelongsTo it
// lives on the owner; for HasOne and HasMany on the target; for
// HasManyThrough it is the join model's field pointing at the target.
func (a *Association) ForeignKey() string { return a.foreignKey }

// Mediator is the HasMany association from the owner to the join model.
// Nil unless Kind is HasManyThrough.
func (a *Association) Mediator() *Association { return a.mediator }

// Source is the BelongsTo association on the join model that yields the
// target. Nil unless Kind is HasManyThrough.
func (a *Association) Source() *Association { return a.source }

// Hook is a model lifecycle callback.
type Hook func(ctx context.Context, d *Document) error

// Model is a registered entity type.
type Model struct {
	name       string
	collection string
	keys       []Key
	keyIndex   map[string]int
	assocs     []*Association
	assocIndex map[string]*Association
	beforeSave []Hook
	afterSave  []Hook
}

func (m *Model) Name() string       { return m.name }
func (m *Model) Collection() string { return m.collection }
func (m *Model) String() string     { return m.name }

// Keys returns the declared keys in declaration order.
func (m *Model) Keys() []Key {
	return append([]Key(nil), m.keys...)
}

// Key returns the declared key with the given name.
func (m *Model) Key(name string) (Key, bool) {
	i, ok := m.keyIndex[name]
	if !ok {
		return Key{}, false
	}
	return m.keys[i], true
}

// HasKey reports whether name is a field of the model: its identity, a
// declared key, a timestamp or a foreign key.
func (m *Model) HasKey(name string) bool {
	if name == IDKey {
		return true
	}
	_, ok := m.keyIndex[name]
	return ok
}

// Associations returns the associations in declaration order.
func (m *Model) Associations() []*Association {
	return append([]*Association(nil), m.assocs...)
}

// Association returns the association with the given name.
func (m *Model) Association(name string) (*Association, bool) {
	a, ok := m.assocIndex[name]
	return a, ok
}

// foreignKeys lists the ID keys of the model, which stores index.
func (m *Model) foreignKeys() []string {
	var fks []string
	for _, k := range m.keys {
		if k.Type == ID {
			fks = append(fks, k.Name)
		}
	}
	return fks
}

func (m *Model) addKey(k Key) {
	if _, ok := m.keyIndex[k.Name]; ok {
		return
	}
	m.keyIndex[k.Name] = len(m.keys)
	m.keys = append(m.keys, k)
}

// Schema is the immutable set of models produced by Registry.Build.
type Schema struct {
	models []*Model
	byName map[string]*Model
}

// Model returns the model with the given name.
func (s *Schema) Model(name string) (*Model, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// Models returns every model in registration order.
func (s *Schema) Models() []*Model {
	return append([]*Model(nil), s.models...)
}

// Registry collects model definitions. Nothing is resolved until Build,
// so models may refer to each other in any order.
type Registry struct {
	defs []*ModelDef
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Define registers a model and lets fn declare its keys, associations and
// hooks.
//
//	reg.Define("Account", func(m *odm.ModelDef) {
//	    m.Key("name", odm.String)
//	    m.HasMany("account_memberships")
//	    m.HasManyThrough("users", "account_memberships", odm.Target("AccountUser"))
//	})
func (r *Registry) Define(name string, fn func(m *ModelDef)) *Registry {
	def := &ModelDef{name: name}
	if fn != nil {
		fn(def)
	}
	r.defs = append(r.defs, def)
	return r
}

// ModelDef is the declaration of one model.
type ModelDef struct {
	name       string
	collection string
	keys       []Key
	assocs     []assocDef
	beforeSave []Hook
	afterSave  []Hook
}

type assocDef struct {
	name       string
	kind       Kind
	target     string
	foreignKey string
	through    string
	source     string
}

// AssocOption configures an association declaration.
type AssocOption func(*assocDef)

// Target overrides the target model name.
func Target(model string) AssocOption {
	return func(a *assocDef) { a.target = model }
}

// ForeignKey overrides the foreign key field.
func ForeignKey(field string) AssocOption {
	return func(a *assocDef) { a.foreignKey = field }
}

// Source overrides the BelongsTo association on the join model that a
// HasManyThrough association projects through.
func Source(name string) AssocOption {
	return func(a *assocDef) { a.source = name }
}

// Collection overrides the default collection name.
func (d *ModelDef) Collection(name string) *ModelDef {
	d.collection = name
	return d
}

// Key declares a field.
func (d *ModelDef) Key(name string, t KeyType, opts ...KeyOption) *ModelDef {
	k := Key{Name: name, Type: t}
	for _, opt := range opts {
		opt(&k)
	}
	d.keys = append(d.keys, k)
	return d
}

// BelongsTo declares that the model stores the identity of one target.
// Defaults: target = SnakeToCamel(name), foreign key = name + "_id".
func (d *ModelDef) BelongsTo(name string, opts ...AssocOption) *ModelDef {
	return d.assoc(name, BelongsTo, opts)
}

// HasOne declares a single target that stores this model's identity.
// Defaults: target = SnakeToCamel(name), foreign key = owner_model_id.
func (d *ModelDef) HasOne(name string, opts ...AssocOption) *ModelDef {
	return d.assoc(name, HasOne, opts)
}

// HasMany declares many targets that store this model's identity.
// Defaults: target = singular CamelCase name, foreign key = owner_model_id.
func (d *ModelDef) HasMany(name string, opts ...AssocOption) *ModelDef {
	return d.assoc(name, HasMany, opts)
}

// HasManyThrough declares many targets reached through the join model of
// the HasMany association named through. The source defaults to the
// snake_case target name when Target is given, otherwise to the singular
// of name.
func (d *ModelDef) HasManyThrough(name, through string, opts ...AssocOption) *ModelDef {
	return d.assoc(name, HasManyThrough, append([]AssocOption{func(a *assocDef) { a.through = through }}, opts...))
}

// BeforeSave registers a hook run before the document is written.
func (d *ModelDef) BeforeSave(h Hook) *ModelDef {
	d.beforeSave = append(d.beforeSave, h)
	return d
}

// AfterSave registers a hook run after the document is written and before
// its associations are flushed.
func (d *ModelDef) AfterSave(h Hook) *ModelDef {
	d.afterSave = append(d.afterSave, h)
	return d
}

func (d *ModelDef) assoc(name string, kind Kind, opts []AssocOption) *ModelDef {
	a := assocDef{name: name, kind: kind}
	for _, opt := range opts {
		opt(&a)
	}
	d.assocs = append(d.assocs, a)
	return d
}

// Build resolves every definition into a Schema. Resolution runs in
// passes: models and keys first, then direct associations (which add
// their foreign keys to the model holding them), then through
// associations, whose mediator must already be a resolved HasMany. A
// through association can therefore never depend on another through
// association, and the mediator graph is acyclic by construction.
// All problems found are returned joined.
func (r *Registry) Build() (*Schema, error) {
	s := &Schema{byName: make(map[string]*Model, len(r.defs))}
	var errs []error

	for _, def := range r.defs {
		if _, dup := s.byName[def.name]; dup {
			errs = append(errs, &SchemaError{Model: def.name, Reason: "registered twice"})
			continue
		}
		m := &Model{
			name:       def.name,
			collection: def.collection,
			keyIndex:   make(map[string]int),
			assocIndex: make(map[string]*Association),
			beforeSave: def.beforeSave,
			afterSave:  def.afterSave,
		}
		if m.collection == "" {
			m.collection = naming.Tableize(def.name)
		}
		for _, k := range def.keys {
			m.addKey(k)
		}
		m.addKey(Key{Name: CreatedAtKey, Type: Time})
		m.addKey(Key{Name: UpdatedAtKey, Type: Time})
		s.models = append(s.models, m)
		s.byName[m.name] = m
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	defs := make(map[*Model]*ModelDef, len(r.defs))
	for i, def := range r.defs {
		defs[s.models[i]] = def
	}

	for _, m := range s.models {
		for _, ad := range defs[m].assocs {
			if _, dup := m.assocIndex[ad.name]; dup {
				errs = append(errs, &SchemaError{Model: m.name, Association: ad.name, Reason: "declared twice"})
				continue
			}
			a := &Association{name: ad.name, kind: ad.kind, owner: m}
			m.assocs = append(m.assocs, a)
			m.assocIndex[ad.name] = a
			if ad.kind == HasManyThrough {
				continue
			}
			if err := s.resolveDirect(a, ad); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, m := range s.models {
		for _, ad := range defs[m].assocs {
			if ad.kind != HasManyThrough {
				continue
			}
			if err := s.resolveThrough(m.assocIndex[ad.name], ad); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func (s *Schema) resolveDirect(a *Association, ad assocDef) error {
	targetName := ad.target
	if targetName == "" {
		if ad.kind == HasMany {
			targetName = naming.Classify(ad.name)
		} else {
			targetName = naming.SnakeToCamel(ad.name)
		}
	}
	target, ok := s.byName[targetName]
	if !ok {
		return &SchemaError{Model: a.owner.name, Association: a.name, Reason: fmt.Sprintf("unknown target model %q", targetName)}
	}
	a.target = target

	a.foreignKey = ad.foreignKey
	switch ad.kind {
	case BelongsTo:
		if a.foreignKey == "" {
			a.foreignKey = a.name + "_id"
		}
		a.owner.addKey(Key{Name: a.foreignKey, Type: ID})
	default:
		if a.foreignKey == "" {
			a.foreignKey = naming.ForeignKey(a.owner.name)
		}
		target.addKey(Key{Name: a.foreignKey, Type: ID})
	}
	return nil
}

func (s *Schema) resolveThrough(a *Association, ad assocDef) error {
	fail := func(reason string) error {
		return &SchemaError{Model: a.owner.name, Association: a.name, Reason: reason}
	}

	mediator, ok := a.owner.assocIndex[ad.through]
	if !ok {
		return fail(fmt.Sprintf("mediator %q is not declared", ad.through))
	}
	if mediator.kind != HasMany {
		return fail(fmt.Sprintf("mediator %q must be has_many, got %s", ad.through, mediator.kind))
	}
	if mediator.target == nil {
		return fail(fmt.Sprintf("mediator %q is unresolved", ad.through))
	}
	join := mediator.target

	sourceName := ad.source
	switch {
	case sourceName != "":
	case ad.target != "":
		sourceName = naming.CamelToSnake(ad.target)
	default:
		sourceName = inflection.Singular(ad.name)
	}
	source, ok := join.assocIndex[sourceName]
	if !ok {
		return fail(fmt.Sprintf("join model %s has no association %q", join.name, sourceName))
	}
	if source.kind != BelongsTo {
		return fail(fmt.Sprintf("source %s.%s must be belongs_to, got %s", join.name, sourceName, source.kind))
	}
	if source.target == nil {
		return fail(fmt.Sprintf("source %s.%s is unresolved", join.name, sourceName))
	}
	if ad.target != "" && source.target.name != ad.target {
		return fail(fmt.Sprintf("source %s.%s targets %s, not %s", join.name, sourceName, source.target.name, ad.target))
	}
	if source.foreignKey == mediator.foreignKey {
		return fail(fmt.Sprintf("join model %s uses %q for both sides", join.name, source.foreignKey))
	}

	a.mediator = mediator
	a.source = source
	a.target = source.target
	a.foreignKey = source.foreignKey
	return nil
}
