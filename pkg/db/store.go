package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrArtifactNotFound is returned by LoadArtifact for an unknown name.
var ErrArtifactNotFound = errors.New("db: artifact not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// SaveArtifact stores data under name, replacing any previous version.
func SaveArtifact(db DBExecutor, name string, data []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("artifact name must be non-empty")
	}
	_, err := db.Exec(`INSERT INTO artifacts (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, data, time.Now())
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", name, err)
	}
	return nil
}

// LoadArtifact returns the data stored under name.
func LoadArtifact(db DBExecutor, name string) ([]byte, error) {
	var data []byte
	err := db.QueryRow(`SELECT data FROM artifacts WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", name, err)
	}
	return data, nil
}

// CreateRun inserts a new run of the given kind and returns its id.
func CreateRun(db DBExecutor, kind, meta string) (string, error) {
	if strings.TrimSpace(kind) == "" {
		return "", fmt.Errorf("run kind must be non-empty")
	}
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO runs (id, kind, started_at, meta) VALUES (?, ?, ?, ?)`,
		id, kind, time.Now(), meta)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a run and closes it.
func FinishRun(db DBExecutor, id string, out RunOutcome) error {
	status := StatusOK
	var msg sql.NullString
	if out.Err != nil {
		status = StatusFailed
		msg = sql.NullString{String: out.Err.Error(), Valid: true}
	}
	res, err := db.Exec(`UPDATE runs SET finished_at = ?, status = ?, error = ?, docs = ?, correct = ?, accuracy = ?, drift_tokens = ? WHERE id = ?`,
		time.Now(), status, msg, out.Docs, out.Correct, out.Accuracy, out.DriftTokens, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %s", id)
	}
	return nil
}

// GetRun returns the run with the given id.
func GetRun(db DBExecutor, id string) (Run, error) {
	var r Run
	var finished sql.NullTime
	var acc sql.NullFloat64
	var meta, msg sql.NullString
	err := db.QueryRow(`SELECT id, kind, started_at, finished_at, status, error, docs, correct, accuracy, drift_tokens, meta FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Kind, &r.StartedAt, &finished, &r.Status, &msg, &r.Docs, &r.Correct, &acc, &r.DriftTokens, &meta)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	if acc.Valid {
		r.Accuracy = acc.Float64
	}
	if meta.Valid {
		r.Meta = meta.String
	}
	if msg.Valid {
		r.Error = msg.String
	}
	return r, nil
}

// SaveWordFrequencies stores a ranked report for runID through a
// BatchWriter, one transaction per batchSize rows. If any batch fails, the
// rows already committed for runID are removed so no partial report remains.
func SaveWordFrequencies(conn *sql.DB, runID string, words []WordFrequency, batchSize int) error {
	bw := NewBatchWriter(conn, batchSize, 0)
	var err error
	for _, w := range words {
		w := w
		err = bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO word_frequencies (run_id, rank, word, count) VALUES (?, ?, ?, ?)`,
				runID, w.Rank, w.Word, w.Count)
			if err != nil {
				return fmt.Errorf("insert word %q: %w", w.Word, err)
			}
			return nil
		})
		if err != nil {
			break
		}
	}
	if cerr := bw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		return nil
	}
	if bw.Committed() > 0 {
		if _, derr := conn.Exec(`DELETE FROM word_frequencies WHERE run_id = ?`, runID); derr != nil {
			return fmt.Errorf("%w (cleanup: %v)", err, derr)
		}
	}
	return err
}

// GetWordFrequencies returns the stored report of runID ordered by rank.
func GetWordFrequencies(db DBExecutor, runID string) ([]WordFrequency, error) {
	rows, err := db.Query(`SELECT rank, word, count FROM word_frequencies WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WordFrequency
	for rows.Next() {
		var w WordFrequency
		if err := rows.Scan(&w.Rank, &w.Word, &w.Count); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
