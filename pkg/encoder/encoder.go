// Package encoder turns token sequences into term-frequency feature rows.
//
// The dictionary grows whenever Encode meets a token it has not seen. That is
// what makes a frozen vocabulary necessary at inference time: every new token
// widens the feature space past what the classifier was trained on.
package encoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyBatch is returned when Encode is called without documents.
	ErrEmptyBatch = errors.New("encoder: no documents to encode")
	// ErrEmptyDictionary is returned when no document produced a token.
	ErrEmptyDictionary = errors.New("encoder: dictionary is empty")
)

// Tokenizer splits a document into tokens.
type Tokenizer func(string) []string

// TermFrequency maps tokens to feature columns in first-seen order.
type TermFrequency struct {
	index  map[string]int
	tokens []string
}

// New returns an encoder with an empty dictionary.
func New() *TermFrequency {
	return &TermFrequency{index: make(map[string]int)}
}

// Reserve adds tokens to the dictionary without encoding anything.
func (e *TermFrequency) Reserve(tokens ...string) {
	for _, t := range tokens {
		e.add(t)
	}
}

func (e *TermFrequency) add(t string) int {
	if i, ok := e.index[t]; ok {
		return i
	}
	i := len(e.tokens)
	e.index[t] = i
	e.tokens = append(e.tokens, t)
	return i
}

// Encode returns a len(docs) x Size() matrix whose row i holds the token
// frequencies of docs[i], each count divided by the document's token count.
// Unseen tokens are added to the dictionary first.
func (e *TermFrequency) Encode(docs []string, tokenize Tokenizer) (*mat.Dense, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyBatch
	}
	if tokenize == nil {
		tokenize = strings.Fields
	}
	rows := make([][]int, len(docs))
	for i, d := range docs {
		toks := tokenize(d)
		cols := make([]int, len(toks))
		for j, t := range toks {
			cols[j] = e.add(t)
		}
		rows[i] = cols
	}
	if len(e.tokens) == 0 {
		return nil, ErrEmptyDictionary
	}
	out := mat.NewDense(len(docs), len(e.tokens), nil)
	for i, cols := range rows {
		if len(cols) == 0 {
			continue
		}
		w := 1 / float64(len(cols))
		for _, c := range cols {
			out.Set(i, c, out.At(i, c)+w)
		}
	}
	return out, nil
}

// HasToken reports whether token has a feature column.
func (e *TermFrequency) HasToken(token string) bool {
	_, ok := e.index[token]
	return ok
}

// Size is the number of feature columns.
func (e *TermFrequency) Size() int { return len(e.tokens) }

// Mapping returns a copy of the token to column mapping.
func (e *TermFrequency) Mapping() map[string]int {
	out := make(map[string]int, len(e.index))
	for k, v := range e.index {
		out[k] = v
	}
	return out
}

type wireFormat struct {
	Tokens []string `json:"tokens"`
}

// MarshalJSON stores the tokens in column order.
func (e *TermFrequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFormat{Tokens: e.tokens})
}

// UnmarshalJSON restores a dictionary written by MarshalJSON.
func (e *TermFrequency) UnmarshalJSON(b []byte) error {
	var w wireFormat
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode encoder: %w", err)
	}
	e.index = make(map[string]int, len(w.Tokens))
	e.tokens = e.tokens[:0]
	for _, t := range w.Tokens {
		if _, dup := e.index[t]; dup {
			return fmt.Errorf("decode encoder: duplicate token %q", t)
		}
		e.add(t)
	}
	return nil
}
