// Package metrics exposes pipeline counters through Prometheus collectors.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "codeclass"

// Metrics groups the collectors updated by the pipeline stages.
type Metrics struct {
	chunks       *prometheus.CounterVec
	filesSkipped prometheus.Counter
	vocabSize    prometheus.Gauge
	dictSize     prometheus.Gauge
	driftTokens  prometheus.Counter
	evalBatches  prometheus.Counter
	accuracy     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Documents emitted by the segmenter.",
		}, []string{"split", "language"}),
		filesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Source files skipped because they could not be read.",
		}),
		vocabSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vocabulary_size",
			Help:      "Tokens in the frozen vocabulary.",
		}),
		dictSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "encoder_dictionary_size",
			Help:      "Tokens known to the feature encoder.",
		}),
		driftTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_tokens_total",
			Help:      "Tokens the encoder learned during evaluation.",
		}),
		evalBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eval_batches_total",
			Help:      "Evaluation batches processed.",
		}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accuracy_ratio",
			Help:      "Accuracy of the last evaluation run.",
		}),
	}
	for _, c := range []prometheus.Collector{m.chunks, m.filesSkipped, m.vocabSize, m.dictSize, m.driftTokens, m.evalBatches, m.accuracy} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) AddChunks(split, language string, n int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(split, language).Add(float64(n))
}

func (m *Metrics) FileSkipped() {
	if m == nil {
		return
	}
	m.filesSkipped.Inc()
}

func (m *Metrics) SetVocabularySize(n int) {
	if m == nil {
		return
	}
	m.vocabSize.Set(float64(n))
}

func (m *Metrics) SetDictionarySize(n int) {
	if m == nil {
		return
	}
	m.dictSize.Set(float64(n))
}

func (m *Metrics) AddDrift(n int) {
	if m == nil {
		return
	}
	m.driftTokens.Add(float64(n))
}

func (m *Metrics) BatchDone() {
	if m == nil {
		return
	}
	m.evalBatches.Inc()
}

func (m *Metrics) SetAccuracy(v float64) {
	if m == nil {
		return
	}
	m.accuracy.Set(v)
}

// WriteTextfile writes everything g gathers to path in the Prometheus text
// exposition format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
