package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpen      int
	MaxIdle      int
	ConnLifetime time.Duration
}

type DB struct {
	*sql.DB
	driver string
}

// Open connects with the given driver ("postgres" or "sqlite"), verifies the
// connection and applies migrations.
func Open(ctx context.Context, driver, dsn string, opts Options) (*DB, error) {
	var sqlDB *sql.DB
	var err error
	switch driver {
	case "postgres":
		sqlDB, err = sql.Open("postgres", dsn)
	case "sqlite":
		sqlDB, err = sql.Open("sqlite", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "sqlite" {
		// Writers serialize on the file lock anyway.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpen > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpen)
		}
		if opts.MaxIdle > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdle)
		}
	}
	if opts.ConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: driver}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	id := "BIGSERIAL PRIMARY KEY"
	if db.driver == "sqlite" {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id ` + id + `,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS employees (
			id ` + id + `,
			owner_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			object_key TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			job_title TEXT NOT NULL DEFAULT '',
			badges TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_employees_owner_id ON employees(owner_id)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// q rewrites $N placeholders for drivers that only understand ?.
func (db *DB) q(query string) string {
	if db.driver != "sqlite" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				b.WriteString("?" + query[i+1:j])
				i = j - 1
				continue
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
