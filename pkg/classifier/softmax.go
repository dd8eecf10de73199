// Package classifier provides a multinomial logistic regression model over
// dense feature rows.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch is returned when features have fewer columns than
	// the model was trained with, or labels do not match the feature rows.
	ErrDimensionMismatch = errors.New("classifier: dimension mismatch")
	// ErrNotTrained is returned when a model without weights is used.
	ErrNotTrained = errors.New("classifier: model is not trained")
)

// Options control Train.
type Options struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

// DefaultOptions returns the training options used by the CLI.
func DefaultOptions() Options {
	return Options{Epochs: 50, LearningRate: 0.5, L2: 1e-4}
}

// Softmax is a linear model with one weight column per class.
type Softmax struct {
	dims    int
	classes int
	weights *mat.Dense // dims x classes
	bias    []float64
}

// NewSoftmax returns an untrained model.
func NewSoftmax(dims, classes int) *Softmax {
	return &Softmax{dims: dims, classes: classes}
}

// Dims is the number of feature columns the model reads.
func (s *Softmax) Dims() int { return s.dims }

// Classes is the number of output classes.
func (s *Softmax) Classes() int { return s.classes }

// Train fits the model on features (one row per document) with full-batch
// gradient descent.
func (s *Softmax) Train(features mat.Matrix, labels []int, opts Options) error {
	n, d := features.Dims()
	if n != len(labels) || d != s.dims {
		return fmt.Errorf("%w: features %dx%d, labels %d, dims %d", ErrDimensionMismatch, n, d, len(labels), s.dims)
	}
	if s.classes <= 0 || n == 0 {
		return fmt.Errorf("%w: %d classes, %d rows", ErrDimensionMismatch, s.classes, n)
	}
	for _, l := range labels {
		if l < 0 || l >= s.classes {
			return fmt.Errorf("classifier: label %d out of range [0,%d)", l, s.classes)
		}
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultOptions().Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultOptions().LearningRate
	}

	s.weights = mat.NewDense(d, s.classes, nil)
	s.bias = make([]float64, s.classes)
	probs := mat.NewDense(n, s.classes, nil)
	grad := mat.NewDense(d, s.classes, nil)
	scale := 1 / float64(n)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		s.forward(features, probs)
		// probs becomes (P - Y)
		for i, l := range labels {
			probs.Set(i, l, probs.At(i, l)-1)
		}
		grad.Mul(features.T(), probs)
		grad.Scale(scale, grad)
		if opts.L2 > 0 {
			grad.Add(grad, scaled(opts.L2, s.weights))
		}
		s.weights.Sub(s.weights, scaled(opts.LearningRate, grad))
		for k := 0; k < s.classes; k++ {
			col := mat.Col(nil, k, probs)
			var sum float64
			for _, v := range col {
				sum += v
			}
			s.bias[k] -= opts.LearningRate * sum * scale
		}
	}
	return nil
}

func scaled(f float64, m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}

// forward writes the class probabilities of features into dst.
func (s *Softmax) forward(features mat.Matrix, dst *mat.Dense) {
	dst.Mul(features, s.weights)
	n, _ := dst.Dims()
	row := make([]float64, s.classes)
	for i := 0; i < n; i++ {
		mat.Row(row, i, dst)
		maxv := math.Inf(-1)
		for k := range row {
			row[k] += s.bias[k]
			if row[k] > maxv {
				maxv = row[k]
			}
		}
		var sum float64
		for k := range row {
			row[k] = math.Exp(row[k] - maxv)
			sum += row[k]
		}
		for k := range row {
			row[k] /= sum
		}
		dst.SetRow(i, row)
	}
}

// view drops feature columns past Dims. Those columns belong to tokens the
// model never saw, which is the same as a zero weight.
func (s *Softmax) view(features mat.Matrix) (mat.Matrix, error) {
	if s.weights == nil {
		return nil, ErrNotTrained
	}
	n, d := features.Dims()
	if d < s.dims {
		return nil, fmt.Errorf("%w: got %d feature columns, want %d", ErrDimensionMismatch, d, s.dims)
	}
	if d == s.dims {
		return features, nil
	}
	if dense, ok := features.(*mat.Dense); ok {
		return dense.Slice(0, n, 0, s.dims), nil
	}
	out := mat.NewDense(n, s.dims, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < s.dims; j++ {
			out.Set(i, j, features.At(i, j))
		}
	}
	return out, nil
}

// Probabilities returns an n x Classes matrix of class probabilities.
func (s *Softmax) Probabilities(features mat.Matrix) (*mat.Dense, error) {
	x, err := s.view(features)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	out := mat.NewDense(n, s.classes, nil)
	s.forward(x, out)
	return out, nil
}

// Classify returns the most probable class of every feature row.
func (s *Softmax) Classify(features mat.Matrix) ([]int, error) {
	probs, err := s.Probabilities(features)
	if err != nil {
		return nil, err
	}
	n, _ := probs.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		best := 0
		for k := 1; k < s.classes; k++ {
			if probs.At(i, k) > probs.At(i, best) {
				best = k
			}
		}
		out[i] = best
	}
	return out, nil
}

type wireFormat struct {
	Dims    int       `json:"dims"`
	Classes int       `json:"classes"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

// MarshalJSON stores the weights in row-major order.
func (s *Softmax) MarshalJSON() ([]byte, error) {
	w := wireFormat{Dims: s.dims, Classes: s.classes, Bias: s.bias}
	if s.weights != nil {
		w.Weights = mat.DenseCopyOf(s.weights).RawMatrix().Data
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a model written by MarshalJSON.
func (s *Softmax) UnmarshalJSON(b []byte) error {
	var w wireFormat
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode classifier: %w", err)
	}
	s.dims, s.classes, s.weights, s.bias = w.Dims, w.Classes, nil, nil
	if len(w.Weights) == 0 {
		return nil
	}
	if w.Dims <= 0 || w.Classes <= 0 || len(w.Weights) != w.Dims*w.Classes || len(w.Bias) != w.Classes {
		return fmt.Errorf("decode classifier: %w", ErrDimensionMismatch)
	}
	s.weights = mat.NewDense(w.Dims, w.Classes, w.Weights)
	s.bias = w.Bias
	return nil
}
