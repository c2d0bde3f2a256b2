package sqldoc

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// Querier is what Store needs from a database handle.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	dialect() Dialect
}

// Logger is the interface for query logging.
type Logger interface {
	Log(ctx context.Context, query string, args ...any)
}

// SlogLogger logs every statement at debug level.
func SlogLogger(l *slog.Logger) Logger {
	return slogLogger{l: l}
}

type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Log(ctx context.Context, query string, args ...any) {
	s.l.DebugContext(ctx, "sqldoc query", slog.String("sql", query), slog.Any("args", args))
}

// DB wraps *sql.DB with a Dialect and satisfies Querier.
type DB struct {
	raw    *sql.DB
	d      Dialect
	logger Logger
}

// New wraps a *sql.DB with the given Dialect.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{raw: db, d: d}
}

// Open opens a database for one of the supported drivers: "mysql",
// "pgx" (alias "postgres") or "sqlite".
//
// MySQL connections report found rows instead of changed rows, so an
// update that rewrites identical content is not mistaken for a missing
// document. SQLite is limited to one connection so in-memory databases
// are shared by every statement.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("sqldoc: parse mysql dsn: %w", err)
		}
		cfg.ClientFoundRows = true
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("sqldoc: mysql connector: %w", err)
		}
		return New(sql.OpenDB(connector), MySQL), nil
	case "pgx", "postgres":
		raw, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqldoc: open postgres: %w", err)
		}
		return New(raw, PostgreSQL), nil
	case "sqlite":
		raw, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqldoc: open sqlite: %w", err)
		}
		raw.SetMaxOpenConns(1)
		return New(raw, SQLite), nil
	default:
		return nil, fmt.Errorf("sqldoc: unsupported driver %q", driver)
	}
}

// Debug returns a new *DB that logs every query using the given Logger.
// The original DB is not modified.
func (db *DB) Debug(l Logger) *DB {
	return &DB{raw: db.raw, d: db.d, logger: l}
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if db.logger != nil {
		db.logger.Log(ctx, query, args...)
	}
	return db.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if db.logger != nil {
		db.logger.Log(ctx, query, args...)
	}
	return db.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

// PingContext verifies the connection.
func (db *DB) PingContext(ctx context.Context) error { return db.raw.PingContext(ctx) } //nolint:wrapcheck // thin wrapper

// Close closes the underlying *sql.DB.
func (db *DB) Close() error { return db.raw.Close() } //nolint:wrapcheck // thin wrapper

func (db *DB) dialect() Dialect { return db.d }
