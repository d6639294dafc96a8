// Package persistence implements the relational store backing every
// component of the core: agents, tasks and their decompositions,
// performance samples, alerts, workers, queue stats, scaling
// decisions, and leader election. One SQLite database (pure-Go driver,
// no cgo) holds everything; structured fields that don't earn their
// own column are kept as JSON in a TEXT column.
package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

//go:embed schema/schema.sql
var schemaSQL string

// Store is the relational persistence adapter shared by the registry,
// orchestrator, queue service, and performance monitor.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer under WAL

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[persistence] WAL mode unavailable: %v", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		log.Printf("[persistence] foreign_keys pragma failed: %v", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("persistence: apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components that need a transaction
// spanning more than one of this package's methods (leader election
// CAS, in particular).
func (s *Store) DB() *sql.DB {
	return s.db
}

func nullIfEmpty(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func logClose(ctx context.Context, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		log.Printf("[persistence] close: %v", err)
	}
}
