// Package evaluate measures classifier accuracy over a corpus in batches and
// guards the encoder's dictionary against growth while it does so.
package evaluate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/japaniel/codeclass/pkg/corpus"
	"github.com/japaniel/codeclass/pkg/encoder"
	"github.com/japaniel/codeclass/pkg/logging"
	"github.com/japaniel/codeclass/pkg/metrics"
)

// DefaultBatchSize is the number of documents encoded per batch.
const DefaultBatchSize = 1000

var (
	// ErrInvalidBatchSize is returned for a batch size below one.
	ErrInvalidBatchSize = errors.New("evaluate: batch size must be positive")
	// ErrNoPredictions is returned when nothing was evaluated, so accuracy
	// is undefined.
	ErrNoPredictions = errors.New("evaluate: no predictions to score")
	// ErrLengthMismatch is returned when documents, labels and predictions
	// disagree in length.
	ErrLengthMismatch = errors.New("evaluate: length mismatch")
)

// Encoder turns documents into feature rows and exposes its dictionary.
// Encoding may add tokens to the dictionary.
type Encoder interface {
	Encode(docs []string, tokenize encoder.Tokenizer) (*mat.Dense, error)
	Mapping() map[string]int
}

// Classifier predicts one class index per feature row.
type Classifier interface {
	Classify(features mat.Matrix) ([]int, error)
}

// DriftError reports tokens the encoder learned while encoding a batch.
type DriftError struct {
	Batch  int
	Tokens []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("evaluate: vocabulary drift in batch %d: %d new tokens (%s)",
		e.Batch, len(e.Tokens), strings.Join(e.Tokens, ", "))
}

// Drift returns the tokens present in after but not in before, sorted.
func Drift(before, after map[string]int) []string {
	var out []string
	for t := range after {
		if _, ok := before[t]; !ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Options control Run.
type Options struct {
	BatchSize int
	Tokenizer encoder.Tokenizer
	// AllowDrift logs drift and keeps going instead of failing the run.
	AllowDrift bool
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// BatchResult summarizes one batch.
type BatchResult struct {
	Index      int
	Size       int
	Correct    int
	DictBefore int
	DictAfter  int
	NewTokens  []string
}

// Result is the outcome of Run.
type Result struct {
	Correct int
	Total   int
	Batches []BatchResult
}

// Accuracy is Correct/Total.
func (r Result) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

// DriftTokens counts the tokens learned across all batches.
func (r Result) DriftTokens() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.NewTokens)
	}
	return n
}

// Run encodes and classifies docs in consecutive batches of at most
// opts.BatchSize and compares the predictions with labels. Encoder and
// classifier errors abort the run. Drift fails the run with a *DriftError
// unless opts.AllowDrift is set. The partial Result is returned with every
// error.
func Run(docs []string, labels []int, clf Classifier, enc Encoder, opts Options) (Result, error) {
	var res Result
	if opts.BatchSize <= 0 {
		return res, ErrInvalidBatchSize
	}
	if len(docs) != len(labels) {
		return res, fmt.Errorf("%w: %d documents, %d labels", ErrLengthMismatch, len(docs), len(labels))
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	all := corpus.Corpus{Docs: docs, Labels: labels}
	for b := 0; ; b++ {
		window := all.Batch(b, opts.BatchSize)
		if window.Len() == 0 {
			break
		}
		batch := BatchResult{Index: b, Size: window.Len()}

		before := enc.Mapping()
		features, err := enc.Encode(window.Docs, opts.Tokenizer)
		if err != nil {
			return res, fmt.Errorf("encode batch %d: %w", b, err)
		}
		after := enc.Mapping()
		batch.DictBefore, batch.DictAfter = len(before), len(after)
		batch.NewTokens = Drift(before, after)

		blog := log.WithFields(logrus.Fields{
			"batch":       b,
			"dict_before": batch.DictBefore,
			"dict_after":  batch.DictAfter,
		})
		if n := len(batch.NewTokens); n > 0 {
			opts.Metrics.AddDrift(n)
			blog.WithField("new_tokens", batch.NewTokens).Warn("vocabulary drift")
			if !opts.AllowDrift {
				res.Batches = append(res.Batches, batch)
				return res, &DriftError{Batch: b, Tokens: batch.NewTokens}
			}
		}

		preds, err := clf.Classify(features)
		if err != nil {
			return res, fmt.Errorf("classify batch %d: %w", b, err)
		}
		if len(preds) != batch.Size {
			return res, fmt.Errorf("%w: batch %d has %d documents, %d predictions", ErrLengthMismatch, b, batch.Size, len(preds))
		}
		for i, p := range preds {
			if p == window.Labels[i] {
				batch.Correct++
			}
		}
		res.Correct += batch.Correct
		res.Total += batch.Size
		res.Batches = append(res.Batches, batch)
		opts.Metrics.BatchDone()
		blog.WithField("correct", batch.Correct).Debug("batch evaluated")
	}

	if res.Total == 0 {
		return res, ErrNoPredictions
	}
	opts.Metrics.SetAccuracy(res.Accuracy())
	log.WithFields(logrus.Fields{
		"correct": res.Correct,
		"total":   res.Total,
	}).Infof("Accuracy: %.2f%%", res.Accuracy()*100)
	return res, nil
}

// Accuracy runs the evaluation loop and returns only the accuracy.
func Accuracy(docs []string, labels []int, clf Classifier, enc Encoder, batchSize int) (float64, error) {
	res, err := Run(docs, labels, clf, enc, Options{BatchSize: batchSize})
	if err != nil {
		return 0, err
	}
	return res.Accuracy(), nil
}
