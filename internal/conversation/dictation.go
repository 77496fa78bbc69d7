package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
)

// Dictation turns continuous speech into chat input. While listening it
// reports the final text so far followed by the current interim guess; when
// the session ends with non-empty final text, that text is submitted.
type Dictation struct {
	rec      stt.Recognizer
	onText   func(string)
	onSubmit func(string)
	metrics  *observe.Metrics

	mu sync.Mutex
	// starts counts successful Start calls; recognizers number sessions
	// from one in Start order, so it is the current session number.
	starts    int
	listening bool
	text      string
	final     string
}

// DictationOption is a functional option for configuring a [Dictation].
type DictationOption func(*Dictation)

// OnText sets the callback receiving the live input text.
func OnText(fn func(text string)) DictationOption {
	return func(d *Dictation) {
		d.onText = fn
	}
}

// OnSubmit sets the callback receiving the final text when a session ends.
func OnSubmit(fn func(text string)) DictationOption {
	return func(d *Dictation) {
		d.onSubmit = fn
	}
}

// WithDictationMetrics records recognition errors on m. Defaults to
// [observe.DefaultMetrics].
func WithDictationMetrics(m *observe.Metrics) DictationOption {
	return func(d *Dictation) {
		d.metrics = m
	}
}

// NewDictation creates a continuous, interim-reporting recognizer for
// language.
func NewDictation(p stt.Provider, language string, opts ...DictationOption) (*Dictation, error) {
	rec, err := p.NewRecognizer(stt.Config{Language: language, Continuous: true, InterimResults: true})
	if err != nil {
		return nil, fmt.Errorf("conversation: dictation: %w", err)
	}
	d := &Dictation{
		rec:      rec,
		onText:   func(string) {},
		onSubmit: func(string) {},
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d, nil
}

// Start clears the input and begins listening.
func (d *Dictation) Start(ctx context.Context) error {
	d.onText("")
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.rec.Start(ctx); err != nil {
		return fmt.Errorf("conversation: dictation start: %w", err)
	}
	d.starts++
	d.text, d.final = "", ""
	d.listening = true
	return nil
}

// Stop asks the recognizer to finish; submission happens when it reports the
// end of the session.
func (d *Dictation) Stop() { d.rec.Stop() }

// Listening reports whether a session is in progress.
func (d *Dictation) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

// Text returns the live input text.
func (d *Dictation) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Run consumes recognizer events until ctx is done or the recognizer is
// closed.
func (d *Dictation) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.rec.Events():
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

// Close releases the recognizer.
func (d *Dictation) Close() error {
	return d.rec.Close()
}

func (d *Dictation) handle(ctx context.Context, ev stt.Event) {
	d.mu.Lock()
	if ev.Session != d.starts {
		d.mu.Unlock()
		return
	}

	switch ev.Kind {
	case stt.EventResult:
		var finals, interims []stt.Result
		for _, r := range ev.Results {
			if r.IsFinal {
				finals = append(finals, r)
			} else {
				interims = append(interims, r)
			}
		}
		d.final = stt.Transcript(finals)
		d.text = stt.Transcript(append(finals, interims...))
		text := d.text
		d.mu.Unlock()
		d.onText(text)

	case stt.EventError:
		d.mu.Unlock()
		if ev.Err != nil {
			d.metrics.RecordRecognitionError(ctx, ev.Err.Kind.String())
			observe.Logger(ctx).Debug("conversation: dictation error", "err", ev.Err)
		}

	case stt.EventEnd:
		final := strings.TrimSpace(d.final)
		d.listening = false
		d.final = ""
		d.mu.Unlock()
		if final != "" {
			d.onSubmit(final)
		}

	default:
		d.mu.Unlock()
	}
}
