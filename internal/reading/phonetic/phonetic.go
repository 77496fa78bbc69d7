// Package phonetic implements a lenient [reading.Comparer] for accented or
// imperfect speech, using Double Metaphone phonetic encoding combined with
// Jaro-Winkler string similarity.
//
// A spoken token matches a reference token when:
//
//  1. both normalize to the same string, or
//  2. their Double Metaphone codes overlap and their Jaro-Winkler similarity
//     reaches the phonetic threshold (default 0.70), or
//  3. their codes do not overlap but the Jaro-Winkler similarity reaches the
//     higher fuzzy threshold (default 0.90).
//
// Tokens shorter than the minimum length (default 3 runes) only match
// exactly; short function words are too easy to confuse phonetically.
package phonetic

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/lingotutor/internal/reading"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.90
	defaultMinLength         = 3
)

// Option is a functional option for configuring a [Comparer].
type Option func(*Comparer)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched token. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Comparer) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when the
// phonetic codes do not overlap. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Comparer) {
		c.fuzzyThreshold = threshold
	}
}

// WithMinLength sets the rune length below which tokens must match exactly.
func WithMinLength(n int) Option {
	return func(c *Comparer) {
		c.minLength = n
	}
}

// Comparer is a phonetic token comparer. It is read-only after construction
// and safe for concurrent use.
type Comparer struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int
}

// New returns a Comparer configured with the supplied options.
func New(opts ...Option) *Comparer {
	c := &Comparer{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Equal implements reading.Comparer.
func (c *Comparer) Equal(spoken, reference string) bool {
	if spoken == reference {
		return true
	}
	if spoken == "" || reference == "" {
		return false
	}
	if utf8.RuneCountInString(spoken) < c.minLength || utf8.RuneCountInString(reference) < c.minLength {
		return false
	}
	score := matchr.JaroWinkler(spoken, reference, false)
	if codesOverlap(codes(spoken), codes(reference)) {
		return score >= c.phoneticThreshold
	}
	return score >= c.fuzzyThreshold
}

var _ reading.Comparer = (*Comparer)(nil)

// codes returns the non-empty Double Metaphone codes of token.
func codes(token string) []string {
	p, s := matchr.DoubleMetaphone(token)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func codesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
