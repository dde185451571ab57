// Package store provides the SQLite persistence layer for the auction
// pipeline: the canonical auctions table, the per-job staging area, the
// ingestion job tracker and the scoring config registry.
package store

import (
	"database/sql"

	"github.com/hazyhaar/domdrop/dbopen"
)

// Store is the auction pipeline database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the pipeline SQLite database at path, applies the
// domdrop pragmas and the pipeline schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// NewStore wraps an already-opened database connection. The caller is
// responsible for having applied Schema.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
