package db

import "time"

// Run kinds.
const (
	RunTrain   = "train"
	RunTest    = "test"
	RunAnalyze = "analyze"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Artifact names.
const (
	ArtifactEncoder = "encoder"
	ArtifactModel   = "model"
	ArtifactMeta    = "meta"
)

// Run records one invocation of a pipeline stage.
type Run struct {
	ID          string
	Kind        string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	Error       string
	Docs        int
	Correct     int
	Accuracy    float64
	DriftTokens int
	Meta        string
}

// RunOutcome is what FinishRun records. A non-nil Err marks the run failed;
// the counts are kept either way.
type RunOutcome struct {
	Docs        int
	Correct     int
	Accuracy    float64
	DriftTokens int
	Err         error
}

// WordFrequency is one row of a stored frequency report.
type WordFrequency struct {
	Rank  int
	Word  string
	Count int
}
