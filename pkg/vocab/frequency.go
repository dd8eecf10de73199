package vocab

import (
	"sort"
	"unicode"
)

// WordCount is one ranked entry of a frequency table.
type WordCount struct {
	Word  string
	Count int
}

// FrequencyTable counts word occurrences. A word is a maximal run of letters
// and hyphens; every other character only ends the current word.
type FrequencyTable map[string]int

// CountWords builds a FrequencyTable over all docs.
func CountWords(docs []string) FrequencyTable {
	ft := make(FrequencyTable)
	for _, d := range docs {
		ft.Add(d)
	}
	return ft
}

// Add scans doc and accumulates its words.
func (ft FrequencyTable) Add(doc string) {
	start := -1
	for i, r := range doc {
		if unicode.IsLetter(r) || r == '-' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			ft[doc[start:i]]++
			start = -1
		}
	}
	if start >= 0 {
		ft[doc[start:]]++
	}
}

// Ranked returns every entry ordered by descending count, ties broken by
// ascending word so the order is reproducible.
func (ft FrequencyTable) Ranked() []WordCount {
	out := make([]WordCount, 0, len(ft))
	for w, c := range ft {
		out = append(out, WordCount{Word: w, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out
}

// TopN returns the n most frequent words of docs. n <= 0 yields nothing.
func TopN(docs []string, n int) []WordCount {
	if n <= 0 {
		return nil
	}
	ranked := CountWords(docs).Ranked()
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
