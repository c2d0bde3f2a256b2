// Package sqldoc stores documents as JSON rows, one table per collection,
// on MySQL, PostgreSQL or SQLite.
package sqldoc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
)

const (
	seqColumn = "seq"
	idColumn  = "id"
	docColumn = "doc"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidField is returned for field or collection names that cannot be
// embedded in a statement.
var ErrInvalidField = errors.New("sqldoc: invalid field name")

// Store is an odm.Store over a SQL database.
type Store struct {
	db Querier
}

var (
	_ odm.Store       = (*Store)(nil)
	_ odm.Initializer = (*Store)(nil)
	_ io.Closer       = (*Store)(nil)
)

// NewStore returns a Store using db.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

func (s *Store) Find(ctx context.Context, coll string, q scope.Query) ([]odm.Record, error) {
	query, args, err := s.buildSelect(coll, q)
	if err != nil {
		return nil, err
	}
	query, args = s.rewrite(query, args)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var result []odm.Record
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		rec, err := decode(doc)
		if err != nil {
			return nil, fmt.Errorf("sqldoc: decode %s %s: %w", coll, id, err)
		}
		rec[odm.IDKey] = id
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return result, nil
}

func (s *Store) Count(ctx context.Context, coll string, q scope.Query) (int64, error) {
	query, args, err := s.buildCount(coll, q)
	if err != nil {
		return 0, err
	}
	query, args = s.rewrite(query, args)

	var count int64
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, errors.New("sqldoc: COUNT returned no rows")
	}
	if err := rows.Scan(&count); err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return count, rows.Err() //nolint:wrapcheck // pass through
}

func (s *Store) Insert(ctx context.Context, coll string, rec odm.Record) error {
	if err := checkName(coll); err != nil {
		return err
	}
	id, _ := rec[odm.IDKey].(string)
	if id == "" {
		return fmt.Errorf("sqldoc: record has no %s", odm.IDKey)
	}
	doc, err := encode(rec)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", s.qi(coll), s.qi(idColumn), s.qi(docColumn))
	query, args := s.rewrite(query, []any{id, doc})
	_, err = s.db.ExecContext(ctx, query, args...)
	return err //nolint:wrapcheck // pass through
}

// Update replaces the stored body of id. A missing row is odm.ErrNotFound.
func (s *Store) Update(ctx context.Context, coll string, id string, rec odm.Record) error {
	if err := checkName(coll); err != nil {
		return err
	}
	doc, err := encode(rec)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", s.qi(coll), s.qi(docColumn), s.qi(idColumn))
	query, args := s.rewrite(query, []any{doc, id})
	return s.execOne(ctx, coll, id, query, args)
}

// Delete removes id. A missing row is odm.ErrNotFound.
func (s *Store) Delete(ctx context.Context, coll string, id string) error {
	if err := checkName(coll); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", s.qi(coll), s.qi(idColumn))
	query, args := s.rewrite(query, []any{id})
	return s.execOne(ctx, coll, id, query, args)
}

// EnsureCollection creates the collection table and, where the dialect
// supports it, an index per field in indexes.
func (s *Store) EnsureCollection(ctx context.Context, coll string, indexes []string) error {
	if err := checkName(coll); err != nil {
		return err
	}
	d := s.db.dialect()
	stmts := []string{d.CreateTable(coll)}
	for _, field := range indexes {
		if err := checkName(field); err != nil {
			return err
		}
		if stmt := d.CreateIndex(coll, field); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqldoc: %s: %w", d.Name(), err)
		}
	}
	return nil
}

// Close closes the database if the Querier owns one.
func (s *Store) Close() error {
	if c, ok := s.db.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck // thin wrapper
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, coll, id, query string, args []any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", odm.ErrNotFound, coll, id)
	}
	return nil
}

// --- SQL building ---

// qi quotes an identifier (table/column name) using the dialect.
func (s *Store) qi(name string) string {
	return s.db.dialect().QuoteIdent(name)
}

func (s *Store) buildSelect(coll string, q scope.Query) (string, []any, error) {
	if err := checkName(coll); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, %s FROM %s", s.qi(idColumn), s.qi(docColumn), s.qi(coll))

	args, err := s.appendWhere(&b, q.Conditions)
	if err != nil {
		return "", nil, err
	}

	orders := make([]string, 0, len(q.Sorts)+1)
	for _, srt := range q.Sorts {
		expr, err := s.sortExpr(srt.Field)
		if err != nil {
			return "", nil, err
		}
		if srt.Desc {
			expr += " DESC"
		}
		orders = append(orders, expr)
	}
	orders = append(orders, s.qi(seqColumn))
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(orders, ", "))

	if q.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.Limit)
	}
	if q.Offset != nil {
		if q.Limit == nil {
			b.WriteString(s.db.dialect().NoLimit())
		}
		fmt.Fprintf(&b, " OFFSET %d", *q.Offset)
	}

	return b.String(), args, nil
}

func (s *Store) buildCount(coll string, q scope.Query) (string, []any, error) {
	if err := checkName(coll); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(s.qi(coll))
	args, err := s.appendWhere(&b, q.Conditions)
	if err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func (s *Store) appendWhere(b *strings.Builder, conds []scope.Condition) ([]any, error) {
	if len(conds) == 0 {
		return nil, nil
	}

	var args []any
	b.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			b.WriteString(" AND ")
		}
		clause, cargs, err := s.condition(c)
		if err != nil {
			return nil, err
		}
		b.WriteString(clause)
		args = append(args, cargs...)
	}
	return args, nil
}

func (s *Store) condition(c scope.Condition) (string, []any, error) {
	if err := checkName(c.Field); err != nil {
		return "", nil, err
	}
	d := s.db.dialect()
	expr, arg := d.Field(docColumn, c.Field), d.Arg
	if c.Field == odm.IDKey {
		expr, arg = s.qi(idColumn), func(v any) any { return fmt.Sprint(v) }
	}

	switch c.Op {
	case scope.OpEq:
		if c.Value == nil {
			if c.Field == odm.IDKey {
				return "1 = 0", nil, nil
			}
			return d.IsNull(docColumn, c.Field), nil, nil
		}
		return expr + " = ?", []any{arg(c.Value)}, nil
	case scope.OpIn:
		if len(c.Values) == 0 {
			return "1 = 0", nil, nil
		}
		ph := make([]string, len(c.Values))
		args := make([]any, len(c.Values))
		for i, v := range c.Values {
			ph[i] = "?"
			args[i] = arg(v)
		}
		return fmt.Sprintf("%s IN (%s)", expr, strings.Join(ph, ", ")), args, nil
	default:
		return "", nil, fmt.Errorf("sqldoc: unsupported operator in %s", c)
	}
}

func (s *Store) sortExpr(field string) (string, error) {
	if err := checkName(field); err != nil {
		return "", err
	}
	if field == odm.IDKey {
		return s.qi(idColumn), nil
	}
	return s.db.dialect().SortField(docColumn, field), nil
}

// rewrite converts ? placeholders to dialect-specific placeholders.
// For MySQL and SQLite this is a no-op. For PostgreSQL, ? becomes $1, $2,
// etc.
func (s *Store) rewrite(query string, args []any) (string, []any) {
	d := s.db.dialect()
	if d.Placeholder(2) == "?" {
		return query, args
	}

	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := range len(query) {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String(), args
}

func checkName(name string) error {
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidField, name)
	}
	return nil
}

func encode(rec odm.Record) (string, error) {
	body := make(map[string]any, len(rec))
	for k, v := range rec {
		if k != odm.IDKey {
			body[k] = v
		}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("sqldoc: encode: %w", err)
	}
	return string(b), nil
}

func decode(doc []byte) (odm.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var rec odm.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	if rec == nil {
		rec = odm.Record{}
	}
	return rec, nil
}
