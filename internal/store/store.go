// Package store persists users and tasks in Postgres or SQLite. Every task
// query is scoped by owner id; no method returns or mutates a task through
// an unscoped predicate.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"taskmanagement-api/internal/apperr"
	"taskmanagement-api/internal/config"
)

const tracerName = "taskmanagement-api/internal/store"

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Store implements user and task persistence over a sqlx handle.
type Store struct {
	db      *sqlx.DB
	builder squirrel.StatementBuilderType
	now     func() time.Time
	tracer  trace.Tracer
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now, used for creation timestamps and the default
// due date.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open handle. The placeholder format follows db.DriverName().
func New(db *sqlx.DB, opts ...Option) *Store {
	format := squirrel.PlaceholderFormat(squirrel.Question)
	if db.DriverName() == config.DriverPostgres {
		format = squirrel.Dollar
	}
	s := &Store{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(format),
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	source := strings.TrimSpace(cfg.Source)
	if source == "" {
		return nil, errors.New("database source is required")
	}

	switch cfg.Driver {
	case config.DriverPostgres:
	case config.DriverSQLite:
		source = withSQLitePragmas(source)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Driver, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// One connection: serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Driver, err)
	}

	return New(db, opts...), nil
}

func withSQLitePragmas(source string) string {
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	return source + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside one transaction, rolling back when fn fails.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorage, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeStorage, "commit transaction", err)
	}
	return nil
}

func (s *Store) isPostgres() bool {
	return s.db.DriverName() == config.DriverPostgres
}

func (s *Store) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+name, opts...)
}

// endSpan records err on span unless it is an expected not-found result.
func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
