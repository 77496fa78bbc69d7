// Package mock provides a test double for the tts.Provider interface.
//
// Synthesizer records every Speak call and lets tests drive playback by hand:
//
//	s := mock.NewSynthesizer()
//	p := &mock.Provider{Synthesizer: s}
//	id, _ := s.Speak(ctx, "the cat", tts.Options{})
//	s.EmitBoundary(id, 4)
//	s.EmitEnd(id)
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/lingotutor/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Synthesizer is returned by NewSynthesizer. A fresh one is created when nil.
	Synthesizer *Synthesizer

	// NewSynthesizerErr, if non-nil, is returned by NewSynthesizer.
	NewSynthesizerErr error
}

// NewSynthesizer implements tts.Provider.
func (p *Provider) NewSynthesizer() (tts.Synthesizer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NewSynthesizerErr != nil {
		return nil, p.NewSynthesizerErr
	}
	if p.Synthesizer == nil {
		p.Synthesizer = NewSynthesizer()
	}
	return p.Synthesizer, nil
}

var _ tts.Provider = (*Provider)(nil)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	// ID is the utterance id returned to the caller.
	ID int
	// Text is the text passed to Speak.
	Text string
	// Options are the options passed to Speak.
	Options tts.Options
}

// Synthesizer is a scripted tts.Synthesizer. Nothing is emitted unless the
// test calls one of the Emit helpers or sets AutoEnd.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// SpeakErr, if non-nil, is returned by Speak.
	SpeakErr error

	// VoiceList is returned by Voices.
	VoiceList []tts.Voice

	// VoicesErr, if non-nil, is returned by Voices.
	VoicesErr error

	// AutoEnd makes Speak emit Start, a Boundary per word and End.
	AutoEnd bool

	// --- Call records ---

	// SpeakCalls records every successful call to Speak in order.
	SpeakCalls []SpeakCall

	// CancelCalls counts calls to Cancel.
	CancelCalls int

	// CloseCalls counts calls to Close.
	CloseCalls int

	seq     int
	current int
	events  chan tts.Event
	closed  bool
}

// NewSynthesizer returns a Synthesizer with a buffered event channel.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{events: make(chan tts.Event, 256)}
}

// Speak implements tts.Synthesizer. Any utterance in progress ends first.
func (s *Synthesizer) Speak(_ context.Context, text string, opts tts.Options) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("mock: synthesizer closed")
	}
	if s.SpeakErr != nil {
		return 0, s.SpeakErr
	}
	if s.current != 0 {
		s.events <- tts.Event{Kind: tts.EventEnd, Utterance: s.current}
	}
	s.seq++
	s.current = s.seq
	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{ID: s.seq, Text: text, Options: opts})

	if s.AutoEnd {
		s.events <- tts.Event{Kind: tts.EventStart, Utterance: s.seq}
		for _, off := range tts.WordStarts(text) {
			s.events <- tts.Event{Kind: tts.EventBoundary, Utterance: s.seq, CharIndex: off}
		}
		s.events <- tts.Event{Kind: tts.EventEnd, Utterance: s.seq}
		s.current = 0
	}
	return s.seq, nil
}

// Cancel implements tts.Synthesizer.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelCalls++
	if s.current != 0 && !s.closed {
		s.events <- tts.Event{Kind: tts.EventEnd, Utterance: s.current}
		s.current = 0
	}
}

// Voices implements tts.Synthesizer.
func (s *Synthesizer) Voices(context.Context) ([]tts.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.VoicesErr != nil {
		return nil, s.VoicesErr
	}
	return append([]tts.Voice(nil), s.VoiceList...), nil
}

// Events implements tts.Synthesizer.
func (s *Synthesizer) Events() <-chan tts.Event { return s.events }

// Close implements tts.Synthesizer.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Current returns the id of the utterance in progress, or 0.
func (s *Synthesizer) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Calls returns a copy of the recorded Speak calls.
func (s *Synthesizer) Calls() []SpeakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpeakCall(nil), s.SpeakCalls...)
}

// Emit sends an arbitrary event.
func (s *Synthesizer) Emit(ev tts.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- ev
	}
}

// EmitStart sends an EventStart for utterance id.
func (s *Synthesizer) EmitStart(id int) {
	s.Emit(tts.Event{Kind: tts.EventStart, Utterance: id})
}

// EmitBoundary sends an EventBoundary at byte offset charIndex.
func (s *Synthesizer) EmitBoundary(id, charIndex int) {
	s.Emit(tts.Event{Kind: tts.EventBoundary, Utterance: id, CharIndex: charIndex})
}

// EmitEnd ends utterance id.
func (s *Synthesizer) EmitEnd(id int) {
	s.finish(id)
	s.Emit(tts.Event{Kind: tts.EventEnd, Utterance: id})
}

// EmitError fails utterance id with err.
func (s *Synthesizer) EmitError(id int, err error) {
	s.finish(id)
	s.Emit(tts.Event{Kind: tts.EventError, Utterance: id, Err: err})
}

func (s *Synthesizer) finish(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == id {
		s.current = 0
	}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
