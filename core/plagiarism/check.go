// Package plagiarism scores how much of a text overlaps a corpus of prior texts.
//
// A text is cut into sliding windows of ChunkSize lower-cased words. Every window found
// verbatim (case-insensitive) inside any corpus text counts as a match.
// The package is pure: it holds no state and does no I/O.
package plagiarism

import (
	"math"
	"strings"
)

const (
	// ChunkSize is the number of words compared at once.
	ChunkSize = 5

	exactShare   = 0.3
	partialShare = 0.7
)

// MatchReport summarizes a similarity check.
type MatchReport struct {
	// PlagiarisedPercent is the share of chunks found in the corpus, rounded to 2 decimals.
	PlagiarisedPercent float64 `json:"plagiarised_percent"`
	// ExactMatchPercent & PartialMatchPercent are fixed, truncated fractions (30% / 70%) of the
	// unrounded plagiarised percentage. They are not measured independently.
	ExactMatchPercent   int `json:"exact_match_percent"`
	PartialMatchPercent int `json:"partial_match_percent"`
	// MatchingChunks holds the unique words of all matched chunks, in first-seen order.
	MatchingChunks []string `json:"matching_chunks"`
}

// Check compares candidate against corpus and reports the overlap.
// It never fails: empty candidates and empty corpora give a zero report.
// Inputs are not modified.
func Check(candidate string, corpus []string) MatchReport {
	words := Tokenize(candidate)
	total := TotalChunks(len(words))
	texts := lowerCorpus(corpus)

	var matches int
	matched := newWordSet()
	for i := 0; i < total; i++ {
		chunk := chunkAt(words, i)
		// A blank candidate has no words to find. Joined it would be "", which
		// strings.Contains finds in any text, so it would score 100% instead of 0.
		if len(chunk) == 0 {
			continue
		}
		if containedIn(strings.Join(chunk, " "), texts) {
			matches++
			matched.add(chunk...)
		}
	}

	percent := float64(matches) / float64(total) * 100
	return MatchReport{
		PlagiarisedPercent:  round2(percent),
		ExactMatchPercent:   int(math.Floor(percent * exactShare)),
		PartialMatchPercent: int(math.Floor(percent * partialShare)),
		MatchingChunks:      matched.words,
	}
}

// Tokenize lowers text and splits it on runs of whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// TotalChunks returns the number of chunk positions for a text of n words.
// Texts shorter than ChunkSize still count as a single (short) chunk.
func TotalChunks(n int) int {
	if total := n - (ChunkSize - 1); total > 1 {
		return total
	}
	return 1
}

// chunkAt returns up to ChunkSize words starting at i.
func chunkAt(words []string, i int) []string {
	end := i + ChunkSize
	if end > len(words) {
		end = len(words)
	}
	if i >= end {
		return nil
	}
	return words[i:end]
}

func lowerCorpus(corpus []string) []string {
	texts := make([]string, 0, len(corpus))
	for _, text := range corpus {
		texts = append(texts, strings.ToLower(text))
	}
	return texts
}

// containedIn reports whether chunk occurs in any of texts; stops at the first hit.
func containedIn(chunk string, texts []string) bool {
	for _, text := range texts {
		if strings.Contains(text, chunk) {
			return true
		}
	}
	return false
}

// round2 rounds half away from zero to 2 decimals.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// wordSet is an insertion-ordered set of words.
type wordSet struct {
	seen  map[string]struct{}
	words []string
}

func newWordSet() *wordSet {
	return &wordSet{seen: make(map[string]struct{}), words: []string{}}
}

func (ws *wordSet) add(words ...string) {
	for _, w := range words {
		if _, ok := ws.seen[w]; ok {
			continue
		}
		ws.seen[w] = struct{}{}
		ws.words = append(ws.words, w)
	}
}
