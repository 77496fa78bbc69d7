// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller creates recognizers with the expected
// Config. Use Recognizer to script session events and inspect lifecycle calls.
//
// Example:
//
//	rec := mock.NewRecognizer()
//	p := &mock.Provider{Recognizer: rec}
//	r, _ := p.NewRecognizer(cfg)
//	_ = r.Start(ctx)
//	rec.EmitResults(stt.Result{IsFinal: true, Alternatives: []stt.Alternative{{Transcript: "the cat", Confidence: 0.9}}})
//	rec.EmitEnd()
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/lingotutor/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Recognizer is returned by NewRecognizer. If nil, a fresh Recognizer is
	// created on every call.
	Recognizer *Recognizer

	// NewRecognizerErr, if non-nil, is returned as the error from NewRecognizer.
	NewRecognizerErr error

	// Configs records the Config of every NewRecognizer call.
	Configs []stt.Config
}

// NewRecognizer records the call and returns Recognizer, NewRecognizerErr.
func (p *Provider) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.NewRecognizerErr != nil {
		return nil, p.NewRecognizerErr
	}
	if p.Recognizer != nil {
		return p.Recognizer, nil
	}
	return NewRecognizer(), nil
}

var _ stt.Provider = (*Provider)(nil)

// Recognizer is a scripted stt.Recognizer. Events are only delivered when the
// test emits them; Stop does not end the session by itself unless AutoEnd is
// set.
type Recognizer struct {
	mu sync.Mutex

	events  chan stt.Event
	session int
	active  bool
	closed  bool

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// AutoEnd makes Stop emit an EventEnd for the active session.
	AutoEnd bool

	// StartCalls, StopCalls and CloseCalls count lifecycle invocations.
	StartCalls int
	StopCalls  int
	CloseCalls int
}

// NewRecognizer returns a Recognizer with a buffered event channel.
func NewRecognizer() *Recognizer {
	return &Recognizer{events: make(chan stt.Event, 64)}
}

// Start begins a new numbered session.
func (r *Recognizer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCalls++
	if r.closed {
		return errors.New("mock: recognizer closed")
	}
	if r.StartErr != nil {
		return r.StartErr
	}
	if r.active {
		return errors.New("mock: session already active")
	}
	r.session++
	r.active = true
	return nil
}

// Stop records the call and, with AutoEnd, ends the active session.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	r.StopCalls++
	end := r.AutoEnd && r.active
	r.mu.Unlock()
	if end {
		r.EmitEnd()
	}
}

// Events returns the event channel.
func (r *Recognizer) Events() <-chan stt.Event { return r.events }

// Close records the call and closes the event channel once.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCalls++
	if !r.closed {
		r.closed = true
		r.active = false
		close(r.events)
	}
	return nil
}

// Session returns the current session number.
func (r *Recognizer) Session() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Active reports whether a session is running.
func (r *Recognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Emit delivers ev verbatim. Emitting on a closed recognizer is a no-op.
func (r *Recognizer) Emit(ev stt.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if ev.Kind == stt.EventEnd && ev.Session == r.session {
		r.active = false
	}
	r.events <- ev
}

// EmitResults delivers an EventResult for the current session.
func (r *Recognizer) EmitResults(results ...stt.Result) {
	r.Emit(stt.Event{Kind: stt.EventResult, Session: r.Session(), Results: results})
}

// EmitError delivers an EventError for the current session.
func (r *Recognizer) EmitError(code string) {
	r.Emit(stt.Event{Kind: stt.EventError, Session: r.Session(), Err: stt.NewError(code, nil)})
}

// EmitEnd delivers an EventEnd for the current session.
func (r *Recognizer) EmitEnd() {
	r.Emit(stt.Event{Kind: stt.EventEnd, Session: r.Session()})
}

var _ stt.Recognizer = (*Recognizer)(nil)

// Final is a convenience constructor for a final single-alternative result.
func Final(transcript string, confidence float64) stt.Result {
	return stt.Result{IsFinal: true, Alternatives: []stt.Alternative{{Transcript: transcript, Confidence: confidence}}}
}

// Interim is a convenience constructor for an interim single-alternative result.
func Interim(transcript string) stt.Result {
	return stt.Result{Alternatives: []stt.Alternative{{Transcript: transcript}}}
}
