package scope

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrUnscopedAccess is returned when caller conditions try to leave the
// subset of documents an association is bound to.
var ErrUnscopedAccess = errors.New("scope: condition escapes association scope")

// Op is a condition operator.
type Op int

const (
	OpEq Op = iota
	OpIn
)

// Condition is a single field predicate. Conditions in a Query are ANDed.
type Condition struct {
	Field  string
	Op     Op
	Value  any   // OpEq
	Values []any // OpIn
}

// Eq returns an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

func (c Condition) String() string {
	if c.Op == OpIn {
		parts := make([]string, len(c.Values))
		for i, v := range c.Values {
			parts[i] = fmt.Sprint(v)
		}
		return fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s = %v", c.Field, c.Value)
}

// Sort is one ordering key.
type Sort struct {
	Field string
	Desc  bool
}

// Query is the resolved form of a set of scopes: conditions plus options.
type Query struct {
	Conditions []Condition
	Sorts      []Sort
	Limit      *int
	Offset     *int
}

// Build applies scopes in order to an empty Query.
func Build(scopes ...Scope) Query {
	var q Query
	for _, s := range scopes {
		s.Apply(&q)
	}
	return q
}

func (q *Query) ApplyWhere(c Condition) { q.Conditions = append(q.Conditions, c) }
func (q *Query) ApplyOrderBy(s Sort)    { q.Sorts = append(q.Sorts, s) }
func (q *Query) ApplyLimit(n int)       { q.Limit = &n }
func (q *Query) ApplyOffset(n int)      { q.Offset = &n }

var _ Applier = (*Query)(nil)

// clone returns a copy with slices copied to avoid aliasing.
func (q Query) clone() Query {
	q2 := q
	q2.Conditions = append([]Condition(nil), q.Conditions...)
	q2.Sorts = append([]Sort(nil), q.Sorts...)
	return q2
}

// Where returns a copy of q with the conditions appended.
func (q Query) Where(conds ...Condition) Query {
	q2 := q.clone()
	q2.Conditions = append(q2.Conditions, conds...)
	return q2
}

// WithLimit returns a copy of q with the limit set.
func (q Query) WithLimit(n int) Query {
	q2 := q.clone()
	q2.Limit = &n
	return q2
}

// WithOffset returns a copy of q with the offset set.
func (q Query) WithOffset(n int) Query {
	q2 := q.clone()
	q2.Offset = &n
	return q2
}

// WithoutPaging returns a copy of q with limit and offset cleared.
func (q Query) WithoutPaging() Query {
	q2 := q.clone()
	q2.Limit = nil
	q2.Offset = nil
	return q2
}

// Lookup returns the first condition on field.
func (q Query) Lookup(field string) (Condition, bool) {
	for _, c := range q.Conditions {
		if c.Field == field {
			return c, true
		}
	}
	return Condition{}, false
}

func (q Query) String() string {
	var b strings.Builder
	for i, c := range q.Conditions {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(c.String())
	}
	if len(q.Sorts) > 0 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("ORDER BY ")
		for i, s := range q.Sorts {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.Field)
			if s.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if q.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.Limit)
	}
	if q.Offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.Offset)
	}
	return strings.TrimSpace(b.String())
}

// Merge ANDs the implicit conditions of an association with a caller query.
// Implicit conditions always come first and are never overridden: a caller
// condition on an implicit field is accepted only when it is an equality on
// the same value, in which case it is dropped as redundant. Anything else
// fails with ErrUnscopedAccess.
func Merge(implicit []Condition, caller Query) (Query, error) {
	out := caller.clone()
	out.Conditions = append([]Condition(nil), implicit...)

	for _, c := range caller.Conditions {
		bound, ok := Query{Conditions: implicit}.Lookup(c.Field)
		if !ok {
			out.Conditions = append(out.Conditions, c)
			continue
		}
		if c.Op == OpEq && bound.Op == OpEq && reflect.DeepEqual(c.Value, bound.Value) {
			continue
		}
		return Query{}, fmt.Errorf("%w: %s", ErrUnscopedAccess, c)
	}
	return out, nil
}
