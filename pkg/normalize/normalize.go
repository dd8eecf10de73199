// Package normalize turns identifier-heavy source text into a uniform,
// space-separated, lowercase token stream.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Step is a single text transform. Every step is total: it accepts any
// input, including the empty string.
type Step func(string) string

// Steps is the canonical chain, applied in order by Text.
var Steps = []Step{
	SplitSnake,
	SplitCamel,
	SpacePunctuation,
	CollapseSpace,
	Lower,
}

var (
	rePunct = regexp.MustCompile(`[()\[\]{}+\-:;*/?]`)
	reSpace = regexp.MustCompile(`\s+`)
)

// Text applies Steps to s. It is deterministic but not idempotent: a second
// pass can split differently than the first.
func Text(s string) string {
	for _, step := range Steps {
		s = step(s)
	}
	return s
}

// SplitSnake replaces every underscore with a single space.
func SplitSnake(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// SplitCamel inserts a space before every uppercase letter except one at
// the very start of s. Invalid UTF-8 bytes are copied unchanged.
func SplitCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if i != 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

// SpacePunctuation surrounds each of ( ) [ ] { } + - : ; * / ? with spaces.
func SpacePunctuation(s string) string {
	return rePunct.ReplaceAllString(s, " $0 ")
}

// CollapseSpace replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return reSpace.ReplaceAllString(s, " ")
}

// Lower lowercases s. Invalid UTF-8 bytes are copied unchanged.
func Lower(s string) string {
	if utf8.ValidString(s) {
		return strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteByte(s[i])
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		i += size
	}
	return b.String()
}
