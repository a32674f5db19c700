package corpus

// This file implements the SQLite-backed corpus source. The driver is the
// pure-Go modernc.org/sqlite, so deployments need no cgo toolchain. Writes
// only happen through the seeding helpers; serving reads the table once per
// setup/reload.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteSource reads artists from a SQLite database file.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. The connection pool is
// capped at one connection: the driver serializes writers anyway, and setup
// reads are one-shot scans.
func OpenSQLite(path string) (*SQLiteSource, error) {
	if path == "" {
		return nil, errors.New("corpus: sqlite path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteSource{db: db}, nil
}

// Load reads the whole artist table in ID order.
func (s *SQLiteSource) Load(ctx context.Context) ([]Artist, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM artist ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("corpus: query artists: %w", err)
	}
	defer rows.Close()

	var artists []Artist
	for rows.Next() {
		var a Artist
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("corpus: scan artist row: %w", err)
		}
		artists = append(artists, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: read artist rows: %w", err)
	}
	return artists, nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the artist table if it does not exist yet.
func (s *SQLiteSource) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS artist (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("corpus: create artist table: %w", err)
	}
	return nil
}

// InsertArtists upserts the given artists in one transaction. Used by the
// demo seeder and tests.
func (s *SQLiteSource) InsertArtists(ctx context.Context, artists []Artist) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("corpus: begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO artist (id, name) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("corpus: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artists {
		if _, err := stmt.ExecContext(ctx, a.ID, a.Name); err != nil {
			return fmt.Errorf("corpus: insert artist %d: %w", a.ID, err)
		}
	}
	return tx.Commit()
}
