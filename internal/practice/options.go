package practice

import (
	evbus "github.com/asaskevich/EventBus"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/reading"
)

// Defaults applied by [New].
const (
	DefaultLanguage = "en-US"
)

// DefaultVoiceHints prefer the voices the reading screen has always used.
var DefaultVoiceHints = []string{"female", "zira", "samantha"}

// Option is a functional option for configuring a [Reader].
type Option func(*Reader)

// WithStrategy selects the scoring strategy. Defaults to
// [reading.StrategyMonotonic].
func WithStrategy(s reading.Strategy) Option {
	return func(r *Reader) {
		r.strategy = s
	}
}

// WithComparer sets the token comparer used by monotonic scoring.
func WithComparer(c reading.Comparer) Option {
	return func(r *Reader) {
		r.cmp = c
	}
}

// WithLanguage sets the BCP-47 language for recognition and synthesis.
func WithLanguage(lang string) Option {
	return func(r *Reader) {
		r.language = lang
	}
}

// WithRate sets the synthesis speaking rate.
func WithRate(rate float64) Option {
	return func(r *Reader) {
		r.rate = rate
	}
}

// WithVoiceHints sets the substrings preferred when picking a voice.
func WithVoiceHints(hints ...string) Option {
	return func(r *Reader) {
		r.hints = hints
	}
}

// WithBus publishes snapshots on bus instead of a private one.
func WithBus(bus evbus.Bus) Option {
	return func(r *Reader) {
		r.bus = bus
	}
}

// WithMetrics records reading metrics on m. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}
