package scope

import "strings"

// Applier is implemented by query values to receive scope fragments.
// This interface lives in the scope package so that odm and the store
// backends can import scope without creating circular dependencies.
type Applier interface {
	ApplyWhere(c Condition)
	ApplyOrderBy(s Sort)
	ApplyLimit(n int)
	ApplyOffset(n int)
}

type scopeKind int

const (
	kindWhere scopeKind = iota
	kindOrderBy
	kindLimit
	kindOffset
	kindPage
)

// Scope represents a single query fragment.
// Scopes are immutable and safe to reuse across queries.
type Scope struct {
	kind  scopeKind
	cond  Condition
	sorts []Sort
	n     int
	m     int
}

// Apply dispatches this Scope to the given Applier.
func (s Scope) Apply(a Applier) {
	switch s.kind {
	case kindWhere:
		a.ApplyWhere(s.cond)
	case kindOrderBy:
		for _, o := range s.sorts {
			a.ApplyOrderBy(o)
		}
	case kindLimit:
		a.ApplyLimit(s.n)
	case kindOffset:
		a.ApplyOffset(s.n)
	case kindPage:
		a.ApplyLimit(s.m)
		a.ApplyOffset((s.n - 1) * s.m)
	}
}

// Where returns a Scope that requires field to equal value.
// A nil value matches documents where the field is absent or null.
//
//	scope.Where("login", "dcu")
func Where(field string, value any) Scope {
	return Scope{kind: kindWhere, cond: Condition{Field: field, Op: OpEq, Value: value}}
}

// OrderBy returns a Scope that appends sort keys. The clause is a comma
// separated list of fields, each optionally followed by asc or desc.
//
//	scope.OrderBy("created_at desc")
//	scope.OrderBy("position, login DESC")
func OrderBy(clause string) Scope {
	return Scope{kind: kindOrderBy, sorts: ParseSort(clause)}
}

// Limit returns a Scope that sets the maximum number of results.
func Limit(n int) Scope {
	return Scope{kind: kindLimit, n: n}
}

// Offset returns a Scope that skips the first n results.
func Offset(n int) Scope {
	return Scope{kind: kindOffset, n: n}
}

// Page returns a Scope that selects the given 1-based page.
// Page numbers below 1 are treated as 1.
func Page(page, perPage int) Scope {
	if page < 1 {
		page = 1
	}
	return Scope{kind: kindPage, n: page, m: perPage}
}

// In returns a Scope that requires field to equal one of values. An empty
// slice matches nothing. No reflection is used; generics handle the
// conversion to []any.
//
//	scope.In("_id", []string{a, b})
func In[T any](field string, values []T) Scope {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return Scope{kind: kindWhere, cond: Condition{Field: field, Op: OpIn, Values: args}}
}

// Scopes is a named slice of Scope, useful for conditionally building
// up a set of scopes.
//
//	var s scope.Scopes
//	if onlyAdmins {
//	    s = s.Append(scope.Where("role", "admin"))
//	}
//	s = s.Append(scope.Page(page, 20))
//	account.Many("users").All(ctx, s...)
type Scopes []Scope

// Append adds scopes and returns a new Scopes. The receiver is not modified.
func (ss Scopes) Append(scopes ...Scope) Scopes {
	return append(append(Scopes(nil), ss...), scopes...)
}

// Merge concatenates two Scopes and returns a new Scopes.
// Neither receiver nor argument is modified.
func (ss Scopes) Merge(other Scopes) Scopes {
	return append(append(Scopes(nil), ss...), other...)
}

// Combine creates a Scopes from the given scopes.
//
//	scope.Combine(scope.Limit(10), scope.Offset(20))
func Combine(scopes ...Scope) Scopes {
	return Scopes(scopes)
}

// ParseSort parses "field [asc|desc], ..." into sort keys.
func ParseSort(clause string) []Sort {
	var sorts []Sort
	for _, part := range strings.Split(clause, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		s := Sort{Field: fields[0]}
		if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
			s.Desc = true
		}
		sorts = append(sorts, s)
	}
	return sorts
}
