package reading

import (
	"fmt"
	"math"
)

// Strategy names a scoring strategy.
type Strategy string

const (
	// StrategyMonotonic scores the share of reference words matched in order.
	StrategyMonotonic Strategy = "monotonic"

	// StrategyConfidence scores the mean recognizer confidence.
	StrategyConfidence Strategy = "confidence"
)

// ParseStrategy converts a configuration value to a Strategy. The empty string
// selects StrategyMonotonic.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyMonotonic:
		return StrategyMonotonic, nil
	case StrategyConfidence:
		return StrategyConfidence, nil
	}
	return "", fmt.Errorf("reading: unknown scoring strategy %q", s)
}

// Transcript is the recognizer state of the current listening session.
type Transcript struct {
	// Text is the concatenation of every final and interim result.
	Text string

	// Confidences holds one value per final result, in order.
	Confidences []float64
}

// Outcome is the result of one listening session.
type Outcome struct {
	Strategy Strategy

	// Score is in [0, 100].
	Score int

	// Matched lists the matched reference indices. Empty for
	// StrategyConfidence.
	Matched []int

	// Total is the number of reference words.
	Total int

	// MeanConfidence is the mean of the recorded confidences, 0 when none.
	MeanConfidence float64

	// Completeness is the transcript length relative to the reference.
	Completeness float64

	Level       string
	Suggestions []string
}

// Scorer turns transcript updates of one listening session into an Outcome.
type Scorer interface {
	// Strategy reports which strategy the scorer implements.
	Strategy() Strategy

	// Observe records the latest transcript state.
	Observe(t Transcript)

	// Matched returns the reference indices judged spoken so far, ascending.
	Matched() []int

	// IsMatched reports whether reference word i is matched.
	IsMatched(i int) bool

	// Finalize derives the session outcome, or nil when nothing was recorded.
	Finalize() *Outcome

	// Reset clears all session state.
	Reset()
}

// Option configures a Scorer.
type Option func(*scorerConfig)

type scorerConfig struct {
	cmp Comparer
}

// WithComparer sets the token comparer used by the monotonic scorer.
// Defaults to ExactComparer.
func WithComparer(c Comparer) Option {
	return func(cfg *scorerConfig) { cfg.cmp = c }
}

// NewScorer returns the scorer for strategy over the words of x.
func NewScorer(strategy Strategy, x *Index, opts ...Option) (Scorer, error) {
	cfg := scorerConfig{cmp: ExactComparer{}}
	for _, o := range opts {
		o(&cfg)
	}
	switch strategy {
	case StrategyMonotonic, "":
		return NewMonotonic(x, cfg.cmp), nil
	case StrategyConfidence:
		return NewConfidence(x), nil
	}
	return nil, fmt.Errorf("reading: unknown scoring strategy %q", strategy)
}

// ---- monotonic ----

// Monotonic scores by in-order token matching. The matched set only grows
// during a session, even when an interim result is later revised.
type Monotonic struct {
	x   *Index
	cmp Comparer

	last    Transcript
	matched matchSet
}

// NewMonotonic returns a monotonic scorer using cmp for token equality.
func NewMonotonic(x *Index, cmp Comparer) *Monotonic {
	if cmp == nil {
		cmp = ExactComparer{}
	}
	return &Monotonic{x: x, cmp: cmp}
}

// Strategy implements Scorer.
func (m *Monotonic) Strategy() Strategy { return StrategyMonotonic }

// Observe implements Scorer.
func (m *Monotonic) Observe(t Transcript) {
	m.last = t
	m.matched = m.matched.union(Align(m.x, t.Text, m.cmp))
}

// Matched implements Scorer.
func (m *Monotonic) Matched() []int { return append([]int(nil), m.matched...) }

// IsMatched implements Scorer.
func (m *Monotonic) IsMatched(i int) bool { return m.matched.has(i) }

// Score returns the current score.
func (m *Monotonic) Score() int {
	return percent(float64(len(m.matched)), float64(m.x.Len()))
}

// Finalize implements Scorer. A session without any transcript character has
// no outcome.
func (m *Monotonic) Finalize() *Outcome {
	if len(m.last.Text) == 0 {
		return nil
	}
	return newOutcome(StrategyMonotonic, m.Score(), m.Matched(), m.x, m.last)
}

// Reset implements Scorer.
func (m *Monotonic) Reset() {
	m.last = Transcript{}
	m.matched = nil
}

// ---- confidence ----

// Confidence scores by the mean confidence of the final results.
type Confidence struct {
	x    *Index
	last Transcript
}

// NewConfidence returns a confidence scorer.
func NewConfidence(x *Index) *Confidence { return &Confidence{x: x} }

// Strategy implements Scorer.
func (c *Confidence) Strategy() Strategy { return StrategyConfidence }

// Observe implements Scorer.
func (c *Confidence) Observe(t Transcript) { c.last = t }

// Matched implements Scorer.
func (c *Confidence) Matched() []int { return nil }

// IsMatched implements Scorer.
func (c *Confidence) IsMatched(int) bool { return false }

// Finalize implements Scorer. A session without any confidence value has no
// outcome.
func (c *Confidence) Finalize() *Outcome {
	if len(c.last.Confidences) == 0 {
		return nil
	}
	score := percent(mean(c.last.Confidences), 1)
	return newOutcome(StrategyConfidence, score, nil, c.x, c.last)
}

// Reset implements Scorer.
func (c *Confidence) Reset() { c.last = Transcript{} }

var (
	_ Scorer = (*Monotonic)(nil)
	_ Scorer = (*Confidence)(nil)
)

func newOutcome(s Strategy, score int, matched []int, x *Index, t Transcript) *Outcome {
	return &Outcome{
		Strategy:       s,
		Score:          score,
		Matched:        matched,
		Total:          x.Len(),
		MeanConfidence: mean(t.Confidences),
		Completeness:   Completeness(t.Text, x.Text()),
		Level:          LevelFor(score),
		Suggestions:    Suggestions(score, t.Confidences, t.Text, x.Text()),
	}
}

// percent returns round(n/d*100) clamped to [0, 100]; 0 when d is 0.
func percent(n, d float64) int {
	if d <= 0 {
		return 0
	}
	p := int(math.Round(n / d * 100))
	return min(max(p, 0), 100)
}
