// Package reading implements the read-aloud engine: it tokenizes a reference
// passage into words with byte offsets, aligns a growing speech transcript
// against those words to produce a score, and maps synthesizer boundary offsets
// back to word indices for live highlighting.
//
// Every type in this package is a plain value holder without internal
// locking. Callers drive it from a single goroutine.
package reading

import "strings"

// NoWord is the word index reported when no word is current.
const NoWord = -1

// Word is one whitespace-separated token of a reference text.
type Word struct {
	// Text is the token exactly as it appears in the reference, punctuation
	// included.
	Text string

	// Start is the byte offset of the token in the reference text.
	Start int

	// Index is the position of the word in the reference.
	Index int
}

// Index is the word boundary table of a reference text. It is immutable after
// construction.
type Index struct {
	text  string
	words []Word
}

// NewIndex tokenizes text on runs of whitespace and resolves each token's
// start offset by searching forward from the end of the previous token, so
// repeated words resolve to their own occurrence.
func NewIndex(text string) *Index {
	fields := strings.Fields(text)
	words := make([]Word, len(fields))
	cursor := 0
	for i, f := range fields {
		start := cursor
		if j := strings.Index(text[cursor:], f); j >= 0 {
			start = cursor + j
		}
		words[i] = Word{Text: f, Start: start, Index: i}
		cursor = start + len(f)
	}
	return &Index{text: text, words: words}
}

// Text returns the reference text.
func (x *Index) Text() string { return x.text }

// Len returns the number of words.
func (x *Index) Len() int { return len(x.words) }

// Words returns a copy of the boundary table.
func (x *Index) Words() []Word {
	out := make([]Word, len(x.words))
	copy(out, x.words)
	return out
}

// Word returns the i-th word.
func (x *Index) Word(i int) Word { return x.words[i] }

// WordAt returns the index of the last word whose start offset is at or before
// offset, or NoWord when offset precedes the first word. Boundary events
// usually land near the end of the table, so the scan runs backwards.
func (x *Index) WordAt(offset int) int {
	for i := len(x.words) - 1; i >= 0; i-- {
		if x.words[i].Start <= offset {
			return i
		}
	}
	return NoWord
}
