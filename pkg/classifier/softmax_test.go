package classifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func separable() (*mat.Dense, []int) {
	x := mat.NewDense(6, 3, []float64{
		1, 0, 0,
		0.9, 0.1, 0,
		0, 1, 0,
		0.1, 0.9, 0,
		0, 0, 1,
		0, 0.2, 0.8,
	})
	return x, []int{0, 0, 1, 1, 2, 2}
}

func TestTrainAndClassify(t *testing.T) {
	x, y := separable()
	m := NewSoftmax(3, 3)
	require.NoError(t, m.Train(x, y, Options{Epochs: 300, LearningRate: 1}))

	got, err := m.Classify(x)
	require.NoError(t, err)
	require.Equal(t, y, got)

	probs, err := m.Probabilities(x)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.InDelta(t, 1.0, mat.Sum(probs.RowView(i)), 1e-9)
	}
}

func TestExtraColumnsAreIgnored(t *testing.T) {
	x, y := separable()
	m := NewSoftmax(3, 3)
	require.NoError(t, m.Train(x, y, Options{Epochs: 300, LearningRate: 1}))

	wide := mat.NewDense(1, 5, []float64{0, 1, 0, 7, 7})
	got, err := m.Classify(wide)
	require.NoError(t, err)
	require.Equal(t, []int{1}, got)

	narrow := mat.NewDense(1, 2, []float64{1, 0})
	_, err = m.Classify(narrow)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTrainValidation(t *testing.T) {
	x, _ := separable()
	m := NewSoftmax(3, 3)
	require.ErrorIs(t, m.Train(x, []int{0}, DefaultOptions()), ErrDimensionMismatch)
	require.Error(t, m.Train(x, []int{0, 0, 1, 1, 2, 3}, DefaultOptions()))

	_, err := NewSoftmax(3, 3).Classify(x)
	require.ErrorIs(t, err, ErrNotTrained)
}

func TestJSONRoundTrip(t *testing.T) {
	x, y := separable()
	m := NewSoftmax(3, 3)
	require.NoError(t, m.Train(x, y, DefaultOptions()))

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	var got Softmax
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, 3, got.Dims())
	require.Equal(t, 3, got.Classes())

	want, err := m.Probabilities(x)
	require.NoError(t, err)
	have, err := got.Probabilities(x)
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(want, have, 1e-12))

	require.Error(t, json.Unmarshal([]byte(`{"dims":2,"classes":2,"weights":[1],"bias":[0,0]}`), &got))
}
