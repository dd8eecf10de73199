// Package vocab builds the frozen token vocabulary used to keep the feature
// space of the encoder stable between training and inference.
package vocab

import (
	"sort"
	"strings"
)

const (
	// DefaultSize is the number of words kept when building a vocabulary.
	DefaultSize = 1000
	// DefaultReportSize is the length of the diagnostic word-frequency report.
	DefaultReportSize = 500
	// Unknown is the default marker substituted for out-of-vocabulary tokens.
	// It is uppercase so it never collides with normalized text.
	Unknown = "UNK"
)

// Tokenizer splits a document into tokens.
type Tokenizer func(string) []string

// SplitSpace splits on single spaces and drops empty tokens.
func SplitSpace(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' })
}

// Lexicon reports token membership. Both Vocabulary and a fitted encoder
// dictionary satisfy it.
type Lexicon interface {
	HasToken(token string) bool
}

// Vocabulary is an immutable token set with a reserved unknown marker.
type Vocabulary struct {
	tokens  map[string]struct{}
	unknown string
}

// New freezes tokens into a Vocabulary. An empty unknown uses Unknown.
func New(tokens []string, unknown string) *Vocabulary {
	if unknown == "" {
		unknown = Unknown
	}
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return &Vocabulary{tokens: set, unknown: unknown}
}

// Build selects the n most frequent words of corpus as a Vocabulary.
func Build(corpus []string, n int, unknown string) *Vocabulary {
	top := TopN(corpus, n)
	words := make([]string, len(top))
	for i, wc := range top {
		words[i] = wc.Word
	}
	return New(words, unknown)
}

// HasToken reports whether token is a member.
func (v *Vocabulary) HasToken(token string) bool {
	_, ok := v.tokens[token]
	return ok
}

// Len is the number of member tokens, not counting the unknown marker.
func (v *Vocabulary) Len() int { return len(v.tokens) }

// Unknown returns the marker substituted for non-members.
func (v *Vocabulary) Unknown() string { return v.unknown }

// Tokens returns the members in lexical order.
func (v *Vocabulary) Tokens() []string {
	out := make([]string, 0, len(v.tokens))
	for t := range v.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Apply rewrites doc against v. See Rewrite.
func (v *Vocabulary) Apply(doc string, tokenize Tokenizer) string {
	return Rewrite(doc, v, v.unknown, tokenize)
}

// ApplyAll rewrites every document of docs in place and returns it.
func (v *Vocabulary) ApplyAll(docs []string, tokenize Tokenizer) []string {
	for i, d := range docs {
		docs[i] = v.Apply(d, tokenize)
	}
	return docs
}

// Rewrite tokenizes doc and joins the tokens with single spaces, replacing
// every token lex does not know with unknown. The output always has as many
// tokens as the input.
func Rewrite(doc string, lex Lexicon, unknown string, tokenize Tokenizer) string {
	if tokenize == nil {
		tokenize = SplitSpace
	}
	tokens := tokenize(doc)
	var b strings.Builder
	b.Grow(len(doc))
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		if lex.HasToken(t) {
			b.WriteString(t)
		} else {
			b.WriteString(unknown)
		}
	}
	return b.String()
}
