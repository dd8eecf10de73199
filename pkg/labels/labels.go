// Package labels loads the language map: which file extension belongs to
// which language, and the stable class index of every language.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrMalformedLine is returned for a non-blank line without both a
	// language and an extension.
	ErrMalformedLine = errors.New("labels: malformed language map line")
	// ErrEmpty is returned when the map defines no language.
	ErrEmpty = errors.New("labels: language map is empty")
)

// Entry pairs a language with its extension and class index.
type Entry struct {
	Language  string
	Extension string
	Index     int
}

// Map is an immutable language map. Indices follow first appearance.
type Map struct {
	entries []Entry
	byName  map[string]int
}

// Load reads a language map file.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open language map: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse reads whitespace-separated "language extension" pairs, one per line.
// A repeated language keeps the index and extension of its first line.
func Parse(r io.Reader) (*Map, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %w", line, ErrMalformedLine)
		}
		entries = append(entries, Entry{Language: fields[0], Extension: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read language map: %w", err)
	}
	return New(entries)
}

// New builds a Map from entries in order; Index fields are reassigned.
func New(entries []Entry) (*Map, error) {
	m := &Map{byName: make(map[string]int)}
	for _, e := range entries {
		if _, dup := m.byName[e.Language]; dup {
			continue
		}
		ext := e.Extension
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		idx := len(m.entries)
		m.byName[e.Language] = idx
		m.entries = append(m.entries, Entry{Language: e.Language, Extension: ext, Index: idx})
	}
	if len(m.entries) == 0 {
		return nil, ErrEmpty
	}
	return m, nil
}

// Len is the number of classes.
func (m *Map) Len() int { return len(m.entries) }

// Entries returns a copy of the entries in index order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Languages returns the language names in index order.
func (m *Map) Languages() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Language
	}
	return out
}

// Index returns the class index of lang.
func (m *Map) Index(lang string) (int, bool) {
	i, ok := m.byName[lang]
	return i, ok
}

// Extension returns the extension of lang including the leading dot.
func (m *Map) Extension(lang string) (string, bool) {
	i, ok := m.byName[lang]
	if !ok {
		return "", false
	}
	return m.entries[i].Extension, true
}

// Language returns the language with class index idx.
func (m *Map) Language(idx int) (string, bool) {
	if idx < 0 || idx >= len(m.entries) {
		return "", false
	}
	return m.entries[idx].Language, true
}

// String renders the map in the file format accepted by Parse.
func (m *Map) String() string {
	var b strings.Builder
	for _, e := range m.entries {
		fmt.Fprintf(&b, "%s %s\n", e.Language, strings.TrimPrefix(e.Extension, "."))
	}
	return b.String()
}
