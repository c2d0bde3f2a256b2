package sqldoc

import (
	"encoding/json"
	"fmt"
	"time"
)

// Dialect abstracts SQL differences between database engines. Every
// collection is a table with an insertion sequence, the document identity
// and the document body as JSON; fields are addressed inside the body.
type Dialect interface {
	// Name is the driver family, for error messages.
	Name() string

	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and
	// SQLite use double quotes.
	QuoteIdent(name string) string

	// Field returns an expression yielding field of the JSON column in the
	// form Arg converts condition values to.
	Field(column, field string) string

	// SortField returns an expression that orders field by its JSON type,
	// numbers numerically and strings lexically.
	SortField(column, field string) string

	// IsNull returns a predicate matching a missing or null field.
	IsNull(column, field string) string

	// Arg converts a condition value for comparison with Field.
	Arg(v any) any

	// NoLimit is the LIMIT clause required before a bare OFFSET, or "".
	NoLimit() string

	// CreateTable returns the statement creating a collection table.
	CreateTable(table string) string

	// CreateIndex returns the statement indexing field of a collection
	// table, or "" when the engine cannot create it idempotently.
	CreateIndex(table, field string) string
}

// MySQL is the Dialect for MySQL 8 / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL. Documents are stored as JSONB.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite with the JSON1 functions.
var SQLite Dialect = sqliteDialect{}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                  { return "mysql" }
func (mysqlDialect) Placeholder(_ int) string      { return "?" }
func (mysqlDialect) QuoteIdent(name string) string { return "`" + name + "`" }
func (d mysqlDialect) Field(column, field string) string {
	return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s, '$.%s'))", d.QuoteIdent(column), field)
}
func (d mysqlDialect) SortField(column, field string) string {
	return fmt.Sprintf("JSON_EXTRACT(%s, '$.%s')", d.QuoteIdent(column), field)
}
func (d mysqlDialect) IsNull(column, field string) string {
	return fmt.Sprintf("COALESCE(JSON_TYPE(JSON_EXTRACT(%s, '$.%s')), 'NULL') = 'NULL'", d.QuoteIdent(column), field)
}
func (mysqlDialect) Arg(v any) any    { return textArg(v) }
func (mysqlDialect) NoLimit() string { return " LIMIT 18446744073709551615" }
func (d mysqlDialect) CreateTable(table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s BIGINT AUTO_INCREMENT PRIMARY KEY, %s VARCHAR(64) NOT NULL UNIQUE, %s JSON NOT NULL)",
		d.QuoteIdent(table), d.QuoteIdent(seqColumn), d.QuoteIdent(idColumn), d.QuoteIdent(docColumn),
	)
}
func (mysqlDialect) CreateIndex(_, _ string) string { return "" }

type postgresDialect struct{}

func (postgresDialect) Name() string                  { return "postgres" }
func (postgresDialect) Placeholder(index int) string  { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string { return `"` + name + `"` }
func (d postgresDialect) Field(column, field string) string {
	return fmt.Sprintf("%s->>'%s'", d.QuoteIdent(column), field)
}
func (d postgresDialect) SortField(column, field string) string {
	return fmt.Sprintf("%s->'%s'", d.QuoteIdent(column), field)
}
func (d postgresDialect) IsNull(column, field string) string {
	return d.Field(column, field) + " IS NULL"
}
func (postgresDialect) Arg(v any) any    { return textArg(v) }
func (postgresDialect) NoLimit() string { return "" }
func (d postgresDialect) CreateTable(table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s BIGSERIAL PRIMARY KEY, %s VARCHAR(64) NOT NULL UNIQUE, %s JSONB NOT NULL)",
		d.QuoteIdent(table), d.QuoteIdent(seqColumn), d.QuoteIdent(idColumn), d.QuoteIdent(docColumn),
	)
}
func (d postgresDialect) CreateIndex(table, field string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((%s))",
		d.QuoteIdent(table+"_"+field+"_idx"), d.QuoteIdent(table), d.Field(docColumn, field))
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string                  { return "sqlite" }
func (sqliteDialect) Placeholder(_ int) string      { return "?" }
func (sqliteDialect) QuoteIdent(name string) string { return `"` + name + `"` }
func (d sqliteDialect) Field(column, field string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", d.QuoteIdent(column), field)
}
func (d sqliteDialect) SortField(column, field string) string { return d.Field(column, field) }
func (d sqliteDialect) IsNull(column, field string) string {
	return d.Field(column, field) + " IS NULL"
}
func (sqliteDialect) Arg(v any) any    { return nativeArg(v) }
func (sqliteDialect) NoLimit() string { return " LIMIT -1" }
func (d sqliteDialect) CreateTable(table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY AUTOINCREMENT, %s TEXT NOT NULL UNIQUE, %s TEXT NOT NULL)",
		d.QuoteIdent(table), d.QuoteIdent(seqColumn), d.QuoteIdent(idColumn), d.QuoteIdent(docColumn),
	)
}
func (d sqliteDialect) CreateIndex(table, field string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		d.QuoteIdent(table+"_"+field+"_idx"), d.QuoteIdent(table), d.Field(docColumn, field))
}

// textArg renders v the way ->> and JSON_UNQUOTE render a stored JSON
// value: strings as is, everything else as its JSON text.
func textArg(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// nativeArg matches the SQL values json_extract returns: integers, reals,
// text, and 1/0 for booleans.
func nativeArg(v any) any {
	switch x := v.(type) {
	case nil, string, int64, float64:
		return x
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return textArg(v)
	}
}
