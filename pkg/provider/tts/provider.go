// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs streaming,
// a paced terminal printer, a scripted test double) and exposes it as a
// Synthesizer that speaks one utterance at a time. Playback progress is
// reported asynchronously on a single event channel: a Start, zero or more
// Boundary events carrying the byte offset of the word being spoken, and a
// terminal End or Error.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Provider.NewSynthesizer when the host has no
// speech synthesis capability.
var ErrUnsupported = errors.New("tts: speech synthesis is not supported")

// DefaultRate is the slowed-down speaking rate used for reading practice.
const DefaultRate = 0.85

// Voice describes a synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP-47 tag the voice speaks (e.g., "en-US").
	Language string

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

// Options configures one utterance.
type Options struct {
	// Voice is the Voice.ID to speak with. Empty selects the provider default.
	Voice string

	// Rate is the speaking rate multiplier; 1.0 is normal speed. Zero means 1.0.
	Rate float64

	// Language is the BCP-47 language of the text.
	Language string
}

// Synthesizer speaks utterances and reports playback progress.
//
// Callers must call Close when the synthesizer is no longer needed.
type Synthesizer interface {
	// Speak cancels any utterance in progress and begins speaking text. It
	// returns the id that tags every event of the new utterance. Speak never
	// delivers events synchronously, and late events of the cancelled
	// utterance may still follow.
	Speak(ctx context.Context, text string, opts Options) (int, error)

	// Cancel stops the utterance in progress, which then ends with an EventEnd.
	// Cancel with nothing playing is a no-op.
	Cancel()

	// Voices lists the voices available for synthesis.
	Voices(ctx context.Context) ([]Voice, error)

	// Events returns the channel on which all utterance events are delivered.
	// The channel is closed by Close.
	Events() <-chan Event

	// Close cancels playback and releases all resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// NewSynthesizer creates a synthesizer handle.
	NewSynthesizer() (Synthesizer, error)
}
