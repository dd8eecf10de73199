package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestInitDBIsRepeatable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	if err := InitDB(db); err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}
	for _, table := range []string{"artifacts", "runs", "word_frequencies"} {
		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestArtifacts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := LoadArtifact(db, ArtifactModel); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if err := SaveArtifact(db, ArtifactModel, []byte("v1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveArtifact(db, ArtifactModel, []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := LoadArtifact(db, ArtifactModel)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected v2, got %q", got)
	}
	if err := SaveArtifact(db, " ", nil); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id, err := CreateRun(db, RunTest, `{"splits":["test"]}`)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if r, err := GetRun(db, id); err != nil || r.Status != StatusRunning {
		t.Fatalf("new run = %+v, %v; want status %q", r, err, StatusRunning)
	}
	if err := FinishRun(db, id, RunOutcome{Docs: 10, Correct: 7, Accuracy: 0.7, DriftTokens: 2}); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	r, err := GetRun(db, id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if r.Kind != RunTest || r.Status != StatusOK || r.Error != "" || r.Docs != 10 || r.Correct != 7 || r.Accuracy != 0.7 || r.DriftTokens != 2 {
		t.Fatalf("unexpected run: %+v", r)
	}
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", r)
	}
	if err := FinishRun(db, "missing", RunOutcome{}); err == nil {
		t.Fatal("expected error for unknown run")
	}
	if _, err := CreateRun(db, "", ""); err == nil {
		t.Fatal("expected error for empty kind")
	}
}

func TestFinishRunFailed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id, err := CreateRun(db, RunTest, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := FinishRun(db, id, RunOutcome{Docs: 3, DriftTokens: 4, Err: errors.New("drift in batch 0")}); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	r, err := GetRun(db, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusFailed || r.Error != "drift in batch 0" || r.DriftTokens != 4 || r.FinishedAt.IsZero() {
		t.Fatalf("unexpected failed run: %+v", r)
	}
}

func TestWordFrequenciesRemovedOnFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id, err := CreateRun(db, RunAnalyze, "")
	if err != nil {
		t.Fatal(err)
	}
	// The second batch repeats rank 1 and violates the primary key.
	words := []WordFrequency{
		{Rank: 1, Word: "a", Count: 9},
		{Rank: 2, Word: "b", Count: 8},
		{Rank: 3, Word: "c", Count: 7},
		{Rank: 1, Word: "d", Count: 6},
	}
	if err := SaveWordFrequencies(db, id, words, 2); err == nil {
		t.Fatal("expected error for duplicate rank")
	}
	got, err := GetWordFrequencies(db, id)
	if err != nil {
		t.Fatalf("get frequencies: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows after a failed save, got %+v", got)
	}
}

func TestWordFrequencies(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id, err := CreateRun(db, RunAnalyze, "")
	if err != nil {
		t.Fatal(err)
	}
	var words []WordFrequency
	for i := 0; i < 25; i++ {
		words = append(words, WordFrequency{Rank: i + 1, Word: fmt.Sprintf("w%02d", i), Count: 100 - i})
	}
	if err := SaveWordFrequencies(db, id, words, 4); err != nil {
		t.Fatalf("save frequencies: %v", err)
	}
	got, err := GetWordFrequencies(db, id)
	if err != nil {
		t.Fatalf("get frequencies: %v", err)
	}
	if len(got) != len(words) {
		t.Fatalf("expected %d rows, got %d", len(words), len(got))
	}
	for i := range words {
		if got[i] != words[i] {
			t.Fatalf("row %d = %+v; want %+v", i, got[i], words[i])
		}
	}

	// duplicate ranks violate the primary key and surface from Close
	if err := SaveWordFrequencies(db, id, words[:1], 4); err == nil {
		t.Fatal("expected constraint error")
	}
}
