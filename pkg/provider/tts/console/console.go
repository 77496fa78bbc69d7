// Package console provides a terminal-backed TTS provider that "speaks" by
// printing the text word by word at a reading pace, emitting a boundary event
// as each word appears.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/lingotutor/pkg/provider/tts"
)

const defaultWordsPerMinute = 150

// Voices offered by the console synthesizer.
var consoleVoices = []tts.Voice{
	{ID: "console-samantha", Name: "Samantha (female)", Language: "en-US", Metadata: map[string]string{"gender": "female"}},
	{ID: "console-daniel", Name: "Daniel", Language: "en-GB", Metadata: map[string]string{"gender": "male"}},
	{ID: "console-ayesha", Name: "Ayesha (female)", Language: "ur-PK", Metadata: map[string]string{"gender": "female"}},
}

// Option is a functional option for configuring the console Provider.
type Option func(*Provider)

// WithOutput sets where spoken words are printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(p *Provider) { p.out = w }
}

// WithWordsPerMinute sets the speaking pace at rate 1.0.
func WithWordsPerMinute(wpm int) Option {
	return func(p *Provider) { p.wpm = wpm }
}

// Provider implements tts.Provider by printing to a writer.
type Provider struct {
	out io.Writer
	wpm int

	// mu serialises writes from concurrent synthesizers sharing out.
	mu sync.Mutex
}

// New creates a console Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{out: os.Stdout, wpm: defaultWordsPerMinute}
	for _, o := range opts {
		o(p)
	}
	if p.wpm <= 0 {
		return nil, errors.New("console: words per minute must be positive")
	}
	return p, nil
}

// NewSynthesizer implements tts.Provider.
func (p *Provider) NewSynthesizer() (tts.Synthesizer, error) {
	return &synthesizer{p: p, runner: tts.NewRunner(64)}, nil
}

var _ tts.Provider = (*Provider)(nil)

type synthesizer struct {
	p      *Provider
	runner *tts.Runner
}

func (s *synthesizer) Speak(ctx context.Context, text string, opts tts.Options) (int, error) {
	rate := opts.Rate
	if rate <= 0 {
		rate = 1
	}
	perWord := time.Duration(float64(time.Minute) / (float64(s.p.wpm) * rate))
	starts := tts.WordStarts(text)

	return s.runner.Play(ctx, func(ctx context.Context, _ int, emit func(tts.Event)) error {
		emit(tts.Event{Kind: tts.EventStart})
		t := time.NewTicker(perWord)
		defer t.Stop()
		for i, start := range starts {
			end := len(text)
			if i+1 < len(starts) {
				end = starts[i+1]
			}
			emit(tts.Event{Kind: tts.EventBoundary, CharIndex: start})
			s.p.mu.Lock()
			_, err := fmt.Fprint(s.p.out, text[start:end])
			s.p.mu.Unlock()
			if err != nil {
				return fmt.Errorf("console: write: %w", err)
			}
			select {
			case <-t.C:
			case <-ctx.Done():
				s.newline()
				return nil
			}
		}
		s.newline()
		return nil
	})
}

func (s *synthesizer) newline() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	_, _ = fmt.Fprintln(s.p.out)
}

func (s *synthesizer) Cancel() { s.runner.Cancel() }

func (s *synthesizer) Voices(context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(consoleVoices))
	copy(out, consoleVoices)
	return out, nil
}

func (s *synthesizer) Events() <-chan tts.Event { return s.runner.Events() }

func (s *synthesizer) Close() error { return s.runner.Close() }

var _ tts.Synthesizer = (*synthesizer)(nil)
