// Package memory is an in-process odm.Store. Records are kept in
// insertion order per collection and copied on the way in and out.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
)

// ErrDuplicateID is returned by Insert when the identity is already taken.
var ErrDuplicateID = errors.New("memory: duplicate id")

// Store is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	order []string
	docs  map[string]odm.Record
}

var (
	_ odm.Store       = (*Store)(nil)
	_ odm.Initializer = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Find(_ context.Context, coll string, q scope.Query) ([]odm.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.match(coll, q.Conditions)
	if len(q.Sorts) > 0 {
		slices.SortStableFunc(recs, func(a, b odm.Record) int {
			for _, srt := range q.Sorts {
				c := compare(a[srt.Field], b[srt.Field])
				if srt.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	// Negative paging clamps to zero.
	if q.Offset != nil {
		recs = recs[min(max(*q.Offset, 0), len(recs)):]
	}
	if q.Limit != nil {
		recs = recs[:min(max(*q.Limit, 0), len(recs))]
	}

	out := make([]odm.Record, len(recs))
	for i, r := range recs {
		out[i] = maps.Clone(r)
	}
	return out, nil
}

func (s *Store) Count(_ context.Context, coll string, q scope.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.match(coll, q.Conditions))), nil
}

func (s *Store) Insert(_ context.Context, coll string, rec odm.Record) error {
	id, err := identity(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(coll)
	if _, ok := c.docs[id]; ok {
		return fmt.Errorf("%w: %s %s", ErrDuplicateID, coll, id)
	}
	c.docs[id] = maps.Clone(rec)
	c.order = append(c.order, id)
	return nil
}

func (s *Store) Update(_ context.Context, coll string, id string, rec odm.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[coll]
	if !ok {
		return fmt.Errorf("%w: %s %s", odm.ErrNotFound, coll, id)
	}
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s %s", odm.ErrNotFound, coll, id)
	}
	r := maps.Clone(rec)
	r[odm.IDKey] = id
	c.docs[id] = r
	return nil
}

func (s *Store) Delete(_ context.Context, coll string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[coll]
	if !ok {
		return fmt.Errorf("%w: %s %s", odm.ErrNotFound, coll, id)
	}
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s %s", odm.ErrNotFound, coll, id)
	}
	delete(c.docs, id)
	c.order = slices.DeleteFunc(c.order, func(x string) bool { return x == id })
	return nil
}

// EnsureCollection creates an empty collection. Indexes are ignored.
func (s *Store) EnsureCollection(_ context.Context, coll string, _ []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(coll)
	return nil
}

// Len returns the number of records in coll.
func (s *Store) Len(coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[coll]; ok {
		return len(c.docs)
	}
	return 0
}

// collection must be called with the write lock held.
func (s *Store) collection(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]odm.Record)}
		s.collections[name] = c
	}
	return c
}

// match returns the records of coll satisfying every condition, in
// insertion order. The records are not copied.
func (s *Store) match(coll string, conds []scope.Condition) []odm.Record {
	c, ok := s.collections[coll]
	if !ok {
		return nil
	}
	var out []odm.Record
	for _, id := range c.order {
		r := c.docs[id]
		if matches(r, conds) {
			out = append(out, r)
		}
	}
	return out
}

func identity(rec odm.Record) (string, error) {
	id, _ := rec[odm.IDKey].(string)
	if id == "" {
		return "", fmt.Errorf("memory: record has no %s", odm.IDKey)
	}
	return id, nil
}
