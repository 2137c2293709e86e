// Package pg is the PostgreSQL persistence adapter. It implements the case
// store, the plan version store, the audit sink and the user directory over
// a single connection pool.
package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps the shared connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with pool settings tuned for the API's
// request concurrency.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool. Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }
