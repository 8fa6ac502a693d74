// Package store provides the data access layer for the curation pipeline.
//
// One SQLite database holds three tables: scrape (page cache metadata),
// collect (link-extraction work queue) and classify (classification work
// queue). The collect and classify tables are status-driven queues keyed
// by URL; all claim/mark operations are single statements so concurrent
// runners never double-process a record.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/curator/dbopen"
)

// Store wraps the pipeline database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
// The schema must have been applied by the caller.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Open opens (creating if needed) the pipeline database at path and
// applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	opts = append(opts, dbopen.WithMkdirAll())
	db, err := dbopen.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}
