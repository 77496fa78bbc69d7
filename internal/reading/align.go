package reading

import (
	"slices"
	"strings"
)

// Comparer decides whether a spoken token matches a reference token. Both
// arguments are already normalized with Normalize.
type Comparer interface {
	Equal(spoken, reference string) bool
}

// ExactComparer matches tokens that are identical after normalization.
type ExactComparer struct{}

// Equal implements Comparer.
func (ExactComparer) Equal(spoken, reference string) bool { return spoken == reference }

var _ Comparer = ExactComparer{}

// Normalize lowercases token and strips the punctuation marks . , ! and ?.
// Other punctuation (quotes, dashes, apostrophes) is kept.
func Normalize(token string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?':
			return -1
		}
		return r
	}, strings.ToLower(token))
}

// Align performs monotonic token matching of transcript against the reference
// words of x and returns the matched reference indices in ascending order.
//
// Each spoken token is searched for strictly after the last matched reference
// index; the first equal word is matched and becomes the new search anchor.
// Tokens without a match are skipped and leave the anchor unchanged.
func Align(x *Index, transcript string, cmp Comparer) []int {
	if cmp == nil {
		cmp = ExactComparer{}
	}
	ref := make([]string, len(x.words))
	for i, w := range x.words {
		ref[i] = Normalize(w.Text)
	}

	var matched []int
	last := -1
	for _, tok := range strings.Fields(transcript) {
		spoken := Normalize(tok)
		for i := last + 1; i < len(ref); i++ {
			if cmp.Equal(spoken, ref[i]) {
				matched = append(matched, i)
				last = i
				break
			}
		}
	}
	return matched
}

// matchSet is an ascending set of reference indices.
type matchSet []int

// union merges idx into s, keeping it sorted and free of duplicates.
func (s matchSet) union(idx []int) matchSet {
	for _, i := range idx {
		if pos, found := slices.BinarySearch(s, i); !found {
			s = slices.Insert(s, pos, i)
		}
	}
	return s
}

func (s matchSet) has(i int) bool {
	_, found := slices.BinarySearch(s, i)
	return found
}
