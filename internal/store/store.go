// Package store provides PostgreSQL persistence for scheduled messages
// and dead letters.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Store wraps the database handle shared by the repositories.
type Store struct {
	Messages    *MessageStore
	DeadLetters *DeadLetterStore

	db *sql.DB
}

// New creates a Store on top of an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		Messages:    &MessageStore{db: db},
		DeadLetters: &DeadLetterStore{db: db},
		db:          db,
	}
}

// Ready verifies database connectivity for readiness probes.
func (s *Store) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
