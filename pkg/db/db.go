// Package db persists model artifacts, run records and word-frequency
// reports in SQLite.
package db

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const migrationsSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP,
	status       TEXT NOT NULL DEFAULT 'running',
	error        TEXT,
	docs         INTEGER NOT NULL DEFAULT 0,
	correct      INTEGER NOT NULL DEFAULT 0,
	accuracy     REAL,
	drift_tokens INTEGER NOT NULL DEFAULT 0,
	meta         TEXT
);

CREATE TABLE IF NOT EXISTS word_frequencies (
	run_id TEXT NOT NULL REFERENCES runs(id),
	rank   INTEGER NOT NULL,
	word   TEXT NOT NULL,
	count  INTEGER NOT NULL,
	PRIMARY KEY (run_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind, started_at)
`

// Open opens the SQLite database at path and runs the migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
