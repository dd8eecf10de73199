package pipeline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/codeclass/pkg/classifier"
	"github.com/japaniel/codeclass/pkg/db"
	"github.com/japaniel/codeclass/pkg/encoder"
	"github.com/japaniel/codeclass/pkg/labels"
	"github.com/japaniel/codeclass/pkg/normalize"
	"github.com/japaniel/codeclass/pkg/segment"
	"github.com/japaniel/codeclass/pkg/vocab"
)

// ErrLabelMismatch is returned when the configured language map differs from
// the one a model was trained with.
var ErrLabelMismatch = errors.New("pipeline: language map differs from the trained model")

// Model is a fitted encoder and classifier plus what is needed to prepare
// text for them.
type Model struct {
	Labels     *labels.Map
	Encoder    *encoder.TermFrequency
	Classifier *classifier.Softmax
	Unknown    string
	// ChunkLength is the chunk length the training corpus was segmented with.
	ChunkLength int
}

type modelMeta struct {
	Unknown     string `json:"unknown"`
	Labels      string `json:"labels"`
	ChunkLength int    `json:"chunk_length"`
}

// Filter normalizes a chunk and rewrites it against the encoder dictionary,
// so encoding it never adds a feature column.
func (m *Model) Filter() segment.Filter {
	return func(s string) string {
		return vocab.Rewrite(normalize.Text(s), m.Encoder, m.Unknown, vocab.SplitSpace)
	}
}

// LabelProbability is the probability of one language for a snippet.
type LabelProbability struct {
	Language    string
	Index       int
	Probability float64
}

// PredictDistribution returns the probability of every language for text,
// in class-index order.
func (m *Model) PredictDistribution(text string) ([]LabelProbability, error) {
	doc := m.Filter()(text)
	x, err := m.Encoder.Encode([]string{doc}, encoder.Tokenizer(vocab.SplitSpace))
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	probs, err := m.Classifier.Probabilities(x)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	out := make([]LabelProbability, 0, m.Labels.Len())
	for _, e := range m.Labels.Entries() {
		out = append(out, LabelProbability{Language: e.Language, Index: e.Index, Probability: probs.At(0, e.Index)})
	}
	return out, nil
}

// PredictLabel returns the most probable language for text.
func (m *Model) PredictLabel(text string) (string, error) {
	dist, err := m.PredictDistribution(text)
	if err != nil {
		return "", err
	}
	best := dist[0]
	for _, d := range dist[1:] {
		if d.Probability > best.Probability {
			best = d
		}
	}
	return best.Language, nil
}

// Save stores the model artifacts in one transaction.
func (m *Model) Save(conn *sql.DB) error {
	enc, err := json.Marshal(m.Encoder)
	if err != nil {
		return fmt.Errorf("encode encoder artifact: %w", err)
	}
	clf, err := json.Marshal(m.Classifier)
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}
	meta, err := json.Marshal(modelMeta{Unknown: m.Unknown, Labels: m.Labels.String(), ChunkLength: m.ChunkLength})
	if err != nil {
		return fmt.Errorf("encode meta artifact: %w", err)
	}

	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()
	for name, data := range map[string][]byte{
		db.ArtifactEncoder: enc,
		db.ArtifactModel:   clf,
		db.ArtifactMeta:    meta,
	} {
		if err := db.SaveArtifact(tx, name, data); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadModel reads the artifacts written by Save. If want is non-nil it must
// match the language map the model was trained with.
func LoadModel(conn db.DBExecutor, want *labels.Map) (*Model, error) {
	raw, err := db.LoadArtifact(conn, db.ArtifactMeta)
	if err != nil {
		return nil, err
	}
	var meta modelMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode meta artifact: %w", err)
	}
	trained, err := labels.Parse(strings.NewReader(meta.Labels))
	if err != nil {
		return nil, fmt.Errorf("decode meta artifact: %w", err)
	}
	if want != nil {
		if err := sameLabels(trained, want); err != nil {
			return nil, err
		}
	}

	m := &Model{
		Labels:      trained,
		Encoder:     encoder.New(),
		Classifier:  &classifier.Softmax{},
		Unknown:     meta.Unknown,
		ChunkLength: meta.ChunkLength,
	}
	if raw, err = db.LoadArtifact(conn, db.ArtifactEncoder); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, m.Encoder); err != nil {
		return nil, err
	}
	if raw, err = db.LoadArtifact(conn, db.ArtifactModel); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, m.Classifier); err != nil {
		return nil, err
	}
	if m.Classifier.Classes() != trained.Len() {
		return nil, fmt.Errorf("%w: model has %d classes, language map %d", ErrLabelMismatch, m.Classifier.Classes(), trained.Len())
	}
	if m.Classifier.Dims() != m.Encoder.Size() {
		return nil, fmt.Errorf("pipeline: model expects %d features, encoder has %d", m.Classifier.Dims(), m.Encoder.Size())
	}
	return m, nil
}

// sameLabels reports the first language whose index or extension differs
// between the trained and the configured map.
func sameLabels(trained, want *labels.Map) error {
	if trained.Len() != want.Len() {
		return fmt.Errorf("%w: trained with %d languages, configured %d", ErrLabelMismatch, trained.Len(), want.Len())
	}
	for _, e := range trained.Entries() {
		idx, ok := want.Index(e.Language)
		if !ok || idx != e.Index {
			return fmt.Errorf("%w: %s has index %d in the trained map", ErrLabelMismatch, e.Language, e.Index)
		}
		if ext, _ := want.Extension(e.Language); ext != e.Extension {
			return fmt.Errorf("%w: %s uses %s in the trained map, %s configured", ErrLabelMismatch, e.Language, e.Extension, ext)
		}
	}
	return nil
}
