// Package corpus scans a dataset directory into labelled, segmented
// documents.
package corpus

import (
	"math/rand"

	"github.com/japaniel/codeclass/pkg/segment"
)

// Corpus holds documents and their class indices. Docs and Labels always
// have the same length; Append is the only way to grow them.
type Corpus struct {
	Docs   []string
	Labels []int
}

// Append adds chunks, keeping documents and labels aligned.
func (c *Corpus) Append(chunks ...segment.Chunk) {
	for _, ch := range chunks {
		c.Docs = append(c.Docs, ch.Text)
		c.Labels = append(c.Labels, ch.Label)
	}
}

// Len returns the number of documents.
func (c *Corpus) Len() int { return len(c.Docs) }

// Batch returns the i-th window of at most size documents. The result
// shares storage with c; it is empty once i runs past the end.
func (c *Corpus) Batch(i, size int) Corpus {
	if size <= 0 || i < 0 {
		return Corpus{}
	}
	start := i * size
	if start >= len(c.Docs) {
		return Corpus{}
	}
	end := min(start+size, len(c.Docs))
	return Corpus{Docs: c.Docs[start:end], Labels: c.Labels[start:end]}
}

// Shuffle permutes documents and labels together, deterministically for a
// given seed.
func (c *Corpus) Shuffle(seed int64) {
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(c.Docs), func(i, j int) {
		c.Docs[i], c.Docs[j] = c.Docs[j], c.Docs[i]
		c.Labels[i], c.Labels[j] = c.Labels[j], c.Labels[i]
	})
}

// Counts returns how many documents carry each label.
func (c *Corpus) Counts() map[int]int {
	out := make(map[int]int)
	for _, l := range c.Labels {
		out[l]++
	}
	return out
}
