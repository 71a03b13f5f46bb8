// Package storage provides SQLite-backed persistence for assets, buyback rates,
// reprocessing recipes, and contracts.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/buybackd/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "buybackd", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			item_id         INTEGER PRIMARY KEY,
			type_id         INTEGER NOT NULL,
			quantity        INTEGER NOT NULL,
			location_id     INTEGER NOT NULL,
			location_flag   TEXT,
			location_name   TEXT NOT NULL,
			type_name       TEXT NOT NULL,
			volume          REAL NOT NULL DEFAULT 0,
			price           REAL NOT NULL DEFAULT 0,
			snapshot_id     TEXT NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_location ON assets(location_name)`,
		`CREATE TABLE IF NOT EXISTS buyback_rates (
			type_id         INTEGER PRIMARY KEY,
			type_name       TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL,
			rate            REAL NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rates_category ON buyback_rates(category)`,
		`CREATE TABLE IF NOT EXISTS type_ingredients (
			type_id               INTEGER PRIMARY KEY,
			quantity_to_reprocess INTEGER NOT NULL,
			ingredients           TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS contracts (
			id                    INTEGER PRIMARY KEY,
			status                TEXT NOT NULL,
			appraisal_link        TEXT,
			price                 REAL NOT NULL DEFAULT 0,
			ore_value             REAL,
			other_value           REAL,
			price_correction_sent INTEGER NOT NULL DEFAULT 0,
			issued_at             INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_pending ON contracts(status, issued_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
