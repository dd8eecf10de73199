package evaluate

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/japaniel/codeclass/pkg/encoder"
	"github.com/japaniel/codeclass/pkg/vocab"
)

// digitEncoder puts the integer value of each document in column 0 and
// learns every document it sees.
type digitEncoder struct {
	dict  map[string]int
	learn bool
	calls int
}

func newDigitEncoder(known ...string) *digitEncoder {
	e := &digitEncoder{dict: map[string]int{}}
	for _, k := range known {
		e.dict[k] = len(e.dict)
	}
	return e
}

func (e *digitEncoder) Encode(docs []string, _ encoder.Tokenizer) (*mat.Dense, error) {
	e.calls++
	m := mat.NewDense(len(docs), 1, nil)
	for i, d := range docs {
		if e.learn {
			if _, ok := e.dict[d]; !ok {
				e.dict[d] = len(e.dict)
			}
		}
		v, err := strconv.Atoi(d)
		if err != nil {
			return nil, err
		}
		m.Set(i, 0, float64(v))
	}
	return m, nil
}

func (e *digitEncoder) Mapping() map[string]int {
	out := make(map[string]int, len(e.dict))
	for k, v := range e.dict {
		out[k] = v
	}
	return out
}

// echoClassifier predicts the feature value itself.
type echoClassifier struct{ short bool }

func (c echoClassifier) Classify(x mat.Matrix) ([]int, error) {
	n, _ := x.Dims()
	if c.short {
		n--
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(x.At(i, 0))
	}
	return out, nil
}

func docsFor(values ...int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return out
}

func TestRunPerfectAndZeroAccuracy(t *testing.T) {
	docs := docsFor(0, 1, 2, 0, 1, 2, 0)
	res, err := Run(docs, []int{0, 1, 2, 0, 1, 2, 0}, echoClassifier{}, newDigitEncoder(), Options{BatchSize: 3})
	require.NoError(t, err)
	require.Equal(t, 1.0, res.Accuracy())
	require.Len(t, res.Batches, 3)
	require.Equal(t, 1, res.Batches[2].Size)

	acc, err := Accuracy(docs, []int{1, 2, 0, 1, 2, 0, 1}, echoClassifier{}, newDigitEncoder(), 2)
	require.NoError(t, err)
	require.Equal(t, 0.0, acc)
}

func TestRunAggregatesAcrossBatches(t *testing.T) {
	docs := docsFor(0, 0, 0, 0, 0)
	labels := []int{0, 1, 0, 1, 1}
	for _, size := range []int{1, 2, 3, 5, 100} {
		res, err := Run(docs, labels, echoClassifier{}, newDigitEncoder(), Options{BatchSize: size})
		require.NoError(t, err)
		require.Equal(t, 2, res.Correct, "batch size %d", size)
		require.Equal(t, 5, res.Total)
		require.InDelta(t, 0.4, res.Accuracy(), 1e-12)
	}
}

func TestRunErrors(t *testing.T) {
	enc := newDigitEncoder()
	_, err := Run(docsFor(1), []int{1}, echoClassifier{}, enc, Options{BatchSize: 0})
	require.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = Run(docsFor(1, 2), []int{1}, echoClassifier{}, enc, Options{BatchSize: 1})
	require.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Run(nil, nil, echoClassifier{}, enc, Options{BatchSize: 4})
	require.ErrorIs(t, err, ErrNoPredictions)

	_, err = Run(docsFor(1, 2), []int{1, 2}, echoClassifier{short: true}, enc, Options{BatchSize: 4})
	require.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Run([]string{"x"}, []int{0}, echoClassifier{}, enc, Options{BatchSize: 4})
	require.Error(t, err)
}

func TestRunDetectsDrift(t *testing.T) {
	enc := newDigitEncoder("0", "1")
	enc.learn = true
	docs := docsFor(0, 1, 0, 7)
	labels := []int{0, 1, 0, 7}

	res, err := Run(docs, labels, echoClassifier{}, enc, Options{BatchSize: 2})
	var drift *DriftError
	require.True(t, errors.As(err, &drift), "expected DriftError, got %v", err)
	require.Equal(t, 1, drift.Batch)
	require.Equal(t, []string{"7"}, drift.Tokens)
	require.Equal(t, 2, res.Total, "first batch is still scored")

	enc = newDigitEncoder("0", "1")
	enc.learn = true
	res, err = Run(docs, labels, echoClassifier{}, enc, Options{BatchSize: 2, AllowDrift: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.DriftTokens())
	require.Equal(t, 2, res.Batches[1].DictBefore)
	require.Equal(t, 3, res.Batches[1].DictAfter)
}

func TestDrift(t *testing.T) {
	require.Empty(t, Drift(map[string]int{"a": 0}, map[string]int{"a": 0}))
	require.Equal(t, []string{"b", "c"}, Drift(map[string]int{"a": 0}, map[string]int{"c": 2, "a": 0, "b": 1}))
}

func TestFrozenVocabularyPreventsDrift(t *testing.T) {
	train := []string{"def foo ( ) : return", "int main ( ) { return 0 ; }"}
	v := vocab.Build(train, 3, "")
	enc := encoder.New()
	enc.Reserve(v.Unknown())
	_, err := enc.Encode(v.ApplyAll(append([]string(nil), train...), vocab.SplitSpace), encoder.Tokenizer(vocab.SplitSpace))
	require.NoError(t, err)

	clf := constClassifier{}
	test := []string{"fn main ( ) { println ! ( ) ; }", "class foo : pass"}
	labels := []int{0, 0}

	_, err = Run(test, labels, clf, enc, Options{BatchSize: 1, Tokenizer: encoder.Tokenizer(vocab.SplitSpace)})
	var drift *DriftError
	require.True(t, errors.As(err, &drift), "unfiltered text must drift")

	filtered := make([]string, len(test))
	for i, d := range test {
		filtered[i] = vocab.Rewrite(d, enc, v.Unknown(), vocab.SplitSpace)
	}
	res, err := Run(filtered, labels, clf, enc, Options{BatchSize: 1, Tokenizer: encoder.Tokenizer(vocab.SplitSpace)})
	require.NoError(t, err)
	require.Zero(t, res.DriftTokens())
	require.Equal(t, 1.0, res.Accuracy())
}

type constClassifier struct{}

func (constClassifier) Classify(x mat.Matrix) ([]int, error) {
	n, _ := x.Dims()
	return make([]int, n), nil
}
