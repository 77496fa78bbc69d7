// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a recognition service (e.g., Deepgram streaming, a
// terminal line reader, a scripted test double) and exposes it as a Recognizer
// with an explicit lifecycle: create, Start a session, Stop it, Close the
// recognizer. Results are delivered asynchronously on a single event channel
// that lives as long as the Recognizer; no event is ever delivered
// synchronously with the call that triggered it.
//
// Every result event carries the full ordered list of results recognised so far
// in the current session, mirroring the browser recognition model: earlier
// final results stay in the list, the last entry may be an interim guess that
// a later event replaces.
package stt

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Provider.NewRecognizer when the host has no
// speech recognition capability (missing credentials, no audio source, ...).
var ErrUnsupported = errors.New("stt: speech recognition is not supported")

// Config describes a recognizer's recognition behaviour.
type Config struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en-US", "ur-PK").
	Language string

	// Continuous keeps the session open across pauses until Stop is called.
	// When false the session ends after the first final result.
	Continuous bool

	// InterimResults enables low-latency non-final results.
	InterimResults bool
}

// Recognizer is a single speech recognition handle.
//
// Callers must call Close when the recognizer is no longer needed. Start and
// Stop may be called repeatedly; each Start begins a new numbered session.
// All methods must be safe for concurrent use.
type Recognizer interface {
	// Start begins a new recognition session. Events of the session are tagged
	// with its session number. Calling Start while a session is active returns
	// an error.
	Start(ctx context.Context) error

	// Stop asks the active session to finish. The session emits its remaining
	// results followed by an EventEnd. Stop on an inactive recognizer is a no-op.
	Stop()

	// Events returns the channel on which all session events are delivered.
	// The channel is closed by Close.
	Events() <-chan Event

	// Close stops any active session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// NewRecognizer creates a recognizer configured by cfg. It returns an
	// error wrapping ErrUnsupported when the capability is not available.
	NewRecognizer(cfg Config) (Recognizer, error)
}
