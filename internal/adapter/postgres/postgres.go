// Package postgres persists star-schema tables to PostgreSQL and serves the
// read-side queries over them.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// NormalizeDSN accepts SQLAlchemy-style URLs such as postgresql+psycopg2://.
func NormalizeDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme := dsn[:i]
		if base, _, ok := strings.Cut(scheme, "+"); ok && (base == "postgresql" || base == "postgres") {
			return "postgres" + dsn[i:]
		}
	}
	return dsn
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", NormalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// TableWriter replaces whole tables: each write drops the table, recreates it
// and inserts every row in chunks, all in one transaction.
type TableWriter struct {
	db        *sqlx.DB
	chunkSize int
	logger    *slog.Logger
}

// NewTableWriter creates a TableWriter inserting chunkSize rows per statement.
func NewTableWriter(db *sqlx.DB, chunkSize int, logger *slog.Logger) *TableWriter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &TableWriter{db: db, chunkSize: chunkSize, logger: logger}
}

func (w *TableWriter) Name() string { return "postgres" }

// WriteTable replaces the table named t.Name() with the rows of t.
func (w *TableWriter) WriteTable(ctx context.Context, t domain.Table) error {
	start := time.Now()
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, dropTableSQL(t.Name())); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(t)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	width := len(t.Columns())
	for lo := 0; lo < t.Len(); lo += w.chunkSize {
		hi := min(lo+w.chunkSize, t.Len())
		args := make([]any, 0, (hi-lo)*width)
		for i := lo; i < hi; i++ {
			args = append(args, t.Row(i)...)
		}
		if _, err := tx.ExecContext(ctx, insertSQL(t, hi-lo), args...); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", lo+1, hi, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	w.logger.Debug("postgres table replaced", "table", t.Name(), "rows", t.Len(), "duration", time.Since(start))
	return nil
}

// CheckReadiness pings the database.
func (w *TableWriter) CheckReadiness(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := w.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
