// Package store is the data access layer for the discovery pipeline.
//
// It receives an already-opened *sql.DB (see dbopen) and owns schema
// application plus every entity mutation. All writes are single-statement
// or single-transaction; the snapshot claim and the snapshot-completion /
// last_scraped_at pair are the only multi-row transactions.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Store wraps the discovery database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Init applies the schema. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, Schema)
	return err
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}
