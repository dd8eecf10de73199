// Package pipeline ties the stages together into the train, test, predict
// and analyze flows.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/japaniel/codeclass/pkg/classifier"
	"github.com/japaniel/codeclass/pkg/config"
	"github.com/japaniel/codeclass/pkg/corpus"
	"github.com/japaniel/codeclass/pkg/db"
	"github.com/japaniel/codeclass/pkg/encoder"
	"github.com/japaniel/codeclass/pkg/evaluate"
	"github.com/japaniel/codeclass/pkg/labels"
	"github.com/japaniel/codeclass/pkg/logging"
	"github.com/japaniel/codeclass/pkg/metrics"
	"github.com/japaniel/codeclass/pkg/segment"
	"github.com/japaniel/codeclass/pkg/vocab"
)

// ErrNoDocuments is returned when the scanned splits yield no chunks.
var ErrNoDocuments = errors.New("pipeline: no documents found")

type Pipeline struct {
	Config  config.Config
	Labels  *labels.Map
	DB      *sql.DB
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

func New(cfg config.Config, m *labels.Map, conn *sql.DB) *Pipeline {
	return &Pipeline{Config: cfg, Labels: m, DB: conn, Logger: logging.Discard()}
}

// TrainResult summarizes a training run.
type TrainResult struct {
	RunID          string
	Docs           int
	VocabularySize int
	DictionarySize int
	Accuracy       float64
	Model          *Model
}

func (p *Pipeline) scanner(filter segment.Filter) *corpus.Scanner {
	s := corpus.NewScanner(p.Labels, filter)
	s.ChunkLength = p.Config.Chunk.Length
	s.Workers = p.Config.Scan.Workers
	s.Strict = p.Config.Scan.Strict
	s.Logger = p.Logger
	s.Metrics = p.Metrics
	return s
}

func (p *Pipeline) load(ctx context.Context, splits []string, filter segment.Filter) (*corpus.Corpus, error) {
	start := time.Now()
	c, err := p.scanner(filter).Scan(ctx, p.Config.Paths.Dataset, splits)
	if err != nil {
		return nil, err
	}
	p.Logger.WithFields(logrus.Fields{
		"splits": strings.Join(splits, ","),
		"docs":   c.Len(),
	}).Infof("Data loading took %s", time.Since(start).Round(time.Millisecond))
	if c.Len() == 0 {
		return nil, fmt.Errorf("%w in %s for splits %v", ErrNoDocuments, p.Config.Paths.Dataset, splits)
	}
	return c, nil
}

// finish closes run id with out, recording runErr when it is non-nil. A
// failure to record a failed run is logged and runErr is returned.
func (p *Pipeline) finish(id string, out db.RunOutcome, runErr error) error {
	out.Err = runErr
	if err := db.FinishRun(p.DB, id, out); err != nil {
		if runErr != nil {
			p.Logger.WithError(err).WithField("run", id).Warn("could not record failed run")
			return runErr
		}
		return err
	}
	return runErr
}

// Train scans the training splits, builds the vocabulary from them, fits the
// encoder and classifier and stores the resulting model.
func (p *Pipeline) Train(ctx context.Context) (res TrainResult, err error) {
	p.Logger.Infof("Language map:\n%s", p.Labels)

	runID, err := db.CreateRun(p.DB, db.RunTrain, strings.Join(p.Config.Data.TrainSplits, ","))
	if err != nil {
		return res, err
	}
	res.RunID = runID
	var out db.RunOutcome
	defer func() { err = p.finish(runID, out, err) }()

	c, err := p.load(ctx, p.Config.Data.TrainSplits, segment.Normalize)
	if err != nil {
		return res, err
	}
	res.Docs = c.Len()
	out.Docs = res.Docs
	p.logCounts(c, "training")

	v := vocab.Build(c.Docs, p.Config.Vocab.Size, p.Config.Vocab.Unknown)
	c.Docs = v.ApplyAll(c.Docs, vocab.SplitSpace)
	res.VocabularySize = v.Len()
	p.Metrics.SetVocabularySize(v.Len())
	p.Logger.WithField("size", v.Len()).Info("Vocabulary built")

	c.Shuffle(p.Config.Train.Seed)

	enc := encoder.New()
	enc.Reserve(p.Config.Vocab.Unknown)
	x, err := enc.Encode(c.Docs, encoder.Tokenizer(vocab.SplitSpace))
	if err != nil {
		return res, fmt.Errorf("encode training data: %w", err)
	}
	res.DictionarySize = enc.Size()
	p.Metrics.SetDictionarySize(enc.Size())
	p.Logger.WithField("size", enc.Size()).Info("Encoder fitted")

	start := time.Now()
	clf := classifier.NewSoftmax(enc.Size(), p.Labels.Len())
	opts := classifier.Options{
		Epochs:       p.Config.Train.Epochs,
		LearningRate: p.Config.Train.LearningRate,
		L2:           p.Config.Train.L2,
	}
	if err := clf.Train(x, c.Labels, opts); err != nil {
		return res, fmt.Errorf("train classifier: %w", err)
	}
	p.Logger.Infof("Training took %s", time.Since(start).Round(time.Millisecond))

	pred, err := clf.Classify(x)
	if err != nil {
		return res, err
	}
	for i, y := range pred {
		if y == c.Labels[i] {
			out.Correct++
		}
	}
	res.Accuracy = float64(out.Correct) / float64(len(pred))
	out.Accuracy = res.Accuracy
	p.Logger.Infof("Training accuracy: %.2f%%", res.Accuracy*100)

	res.Model = &Model{
		Labels:      p.Labels,
		Encoder:     enc,
		Classifier:  clf,
		Unknown:     p.Config.Vocab.Unknown,
		ChunkLength: p.Config.Chunk.Length,
	}
	if err := res.Model.Save(p.DB); err != nil {
		return res, fmt.Errorf("save model: %w", err)
	}
	return res, nil
}

// logCounts logs the number of documents per language in class order.
func (p *Pipeline) logCounts(c *corpus.Corpus, what string) {
	counts := c.Counts()
	for idx := 0; idx < p.Labels.Len(); idx++ {
		lang, _ := p.Labels.Language(idx)
		p.Logger.WithFields(logrus.Fields{
			"language": lang,
			"index":    idx,
		}).Infof("%d %s documents", counts[idx], what)
	}
}

// TestResult summarizes an evaluation run.
type TestResult struct {
	RunID string
	evaluate.Result
}

// Test scores the stored model on the test splits. Chunks are rewritten
// against the encoder dictionary before encoding. The run is recorded even
// when it fails; a drift failure keeps the drift count of the partial result.
func (p *Pipeline) Test(ctx context.Context) (res TestResult, err error) {
	m, err := LoadModel(p.DB, p.Labels)
	if err != nil {
		return res, err
	}
	if m.ChunkLength != p.Config.Chunk.Length {
		p.Logger.WithFields(logrus.Fields{
			"trained":    m.ChunkLength,
			"configured": p.Config.Chunk.Length,
		}).Warn("chunk length differs from the one the model was trained with")
	}

	runID, err := db.CreateRun(p.DB, db.RunTest, strings.Join(p.Config.Data.TestSplits, ","))
	if err != nil {
		return res, err
	}
	res.RunID = runID
	defer func() {
		err = p.finish(runID, db.RunOutcome{
			Docs:        res.Total,
			Correct:     res.Correct,
			Accuracy:    res.Accuracy(),
			DriftTokens: res.DriftTokens(),
		}, err)
	}()

	c, err := p.load(ctx, p.Config.Data.TestSplits, m.Filter())
	if err != nil {
		return res, err
	}
	p.logCounts(c, "test")

	res.Result, err = evaluate.Run(c.Docs, c.Labels, m.Classifier, m.Encoder, evaluate.Options{
		BatchSize:  p.Config.Eval.BatchSize,
		Tokenizer:  encoder.Tokenizer(vocab.SplitSpace),
		AllowDrift: p.Config.Eval.AllowDrift,
		Logger:     p.Logger,
		Metrics:    p.Metrics,
	})
	return res, err
}

// Predict loads the stored model for single-snippet classification.
func (p *Pipeline) Predict() (*Model, error) {
	return LoadModel(p.DB, p.Labels)
}

// Analyze reports the most frequent words of the normalized training splits
// and records them under a new run.
func (p *Pipeline) Analyze(ctx context.Context) (runID string, top []vocab.WordCount, err error) {
	runID, err = db.CreateRun(p.DB, db.RunAnalyze, strings.Join(p.Config.Data.TrainSplits, ","))
	if err != nil {
		return "", nil, err
	}
	var out db.RunOutcome
	defer func() { err = p.finish(runID, out, err) }()

	c, err := p.load(ctx, p.Config.Data.TrainSplits, segment.Normalize)
	if err != nil {
		return runID, nil, err
	}
	out.Docs = c.Len()
	top = vocab.TopN(c.Docs, p.Config.Vocab.ReportSize)

	words := make([]db.WordFrequency, len(top))
	for i, wc := range top {
		words[i] = db.WordFrequency{Rank: i + 1, Word: wc.Word, Count: wc.Count}
	}
	if err := db.SaveWordFrequencies(p.DB, runID, words, 100); err != nil {
		return runID, top, err
	}
	return runID, top, nil
}
