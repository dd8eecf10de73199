// Package segment splits source files into fixed-length chunks that end on a
// word boundary.
package segment

import (
	"errors"
	"strings"

	"github.com/japaniel/codeclass/pkg/normalize"
)

const (
	// DefaultChunkLength is the chunk length of the primary pipeline.
	DefaultChunkLength = 4096
	// LegacyChunkLength is the chunk length of the older whole-file pipeline.
	LegacyChunkLength = 1024
)

// ErrInvalidChunkLength is returned for a chunk length below one.
var ErrInvalidChunkLength = errors.New("segment: chunk length must be positive")

// Filter rewrites a raw chunk before it is emitted. Chunks the filter maps to
// the empty string are dropped.
type Filter func(string) string

// Normalize is the training-mode filter.
var Normalize Filter = normalize.Text

// Chunk is one emitted document and its class index.
type Chunk struct {
	Text  string
	Label int
}

// Span is the raw byte range [Start, End) a chunk was cut from.
type Span struct {
	Start, End int
}

// Spans returns the raw chunk boundaries of content. Consecutive spans are
// contiguous and together cover all of content.
func Spans(content string, chunkLength int) ([]Span, error) {
	if chunkLength <= 0 {
		return nil, ErrInvalidChunkLength
	}
	var spans []Span
	pos := 0
	for pos+chunkLength <= len(content) {
		cursor := pos + chunkLength
		end := cursor
		if i := strings.IndexByte(content[cursor:], ' '); i >= 0 {
			end = cursor + i + 1
		}
		spans = append(spans, Span{Start: pos, End: end})
		pos = end
	}
	if pos < len(content) {
		spans = append(spans, Span{Start: pos, End: len(content)})
	}
	return spans, nil
}

// Segment cuts content into chunks of chunkLength bytes, each extended up to
// and including the next space, runs filter over every chunk and pairs the
// non-empty results with label. A nil filter keeps chunks verbatim.
func Segment(content string, label, chunkLength int, filter Filter) ([]Chunk, error) {
	spans, err := Spans(content, chunkLength)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, 0, len(spans))
	for _, sp := range spans {
		text := content[sp.Start:sp.End]
		if filter != nil {
			text = filter(text)
		}
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{Text: text, Label: label})
	}
	return chunks, nil
}
