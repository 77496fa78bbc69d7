package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
)

const translateHelp = "Type an Urdu sentence to translate it. Commands: /mic, /stop, /quit"

// translator is the state of the translate screen.
type translator struct {
	app *App
	rec stt.Recognizer
	spk *speaker

	session   int
	listening bool
	heard     string
	final     string
}

// runTranslate translates typed or spoken Urdu sentences to English until the
// learner quits.
func (a *App) runTranslate(ctx context.Context, lines <-chan string) error {
	t := &translator{app: a}

	rec, err := a.providers.STT.NewRecognizer(stt.Config{
		Language:       a.config().Translate.SourceLanguage,
		InterimResults: true,
	})
	switch {
	case errors.Is(err, stt.ErrUnsupported):
		observe.Logger(ctx).Info("app: speech recognition unavailable", "err", err)
	case err != nil:
		return fmt.Errorf("app: translate: %w", err)
	default:
		t.rec = rec
		a.closers = append(a.closers, rec.Close)
	}

	if a.config().Translate.Speak {
		if t.spk, err = a.newSpeaker(ctx, "en-US", 1); err != nil {
			return fmt.Errorf("app: translate: %w", err)
		}
	}

	a.println(translateHelp)

	var events <-chan stt.Event
	if t.rec != nil {
		events = t.rec.Events()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			t.onRecognition(ctx, ev)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := t.onLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (t *translator) onLine(ctx context.Context, line string) (quit bool) {
	a := t.app
	name, _, isCmd := command(line)
	if !isCmd {
		switch {
		case strings.TrimSpace(line) == "":
		case t.listening:
			if !a.forwardSpeech(line) {
				a.println("Speak into the microphone.")
			}
		default:
			t.translate(ctx, line)
		}
		return false
	}

	switch name {
	case "mic", "m":
		t.listen(ctx)
	case "stop", "s":
		if t.listening {
			t.rec.Stop()
		}
	case "quit", "q":
		return true
	default:
		a.println(translateHelp)
	}
	return false
}

func (t *translator) listen(ctx context.Context) {
	a := t.app
	if t.rec == nil {
		a.println("Speech recognition is not available.")
		return
	}
	if t.listening {
		return
	}
	if err := t.rec.Start(ctx); err != nil {
		a.printf("Error: %v\n", err)
		return
	}
	t.session++
	t.listening = true
	t.heard, t.final = "", ""
	a.println("Listening... say one sentence.")
}

func (t *translator) onRecognition(ctx context.Context, ev stt.Event) {
	if !t.listening || ev.Session != t.session {
		return
	}
	a := t.app
	switch ev.Kind {
	case stt.EventResult:
		var finals []stt.Result
		for _, r := range ev.Results {
			if r.IsFinal {
				finals = append(finals, r)
			}
		}
		t.final = stt.Transcript(finals)
		if heard := stt.Transcript(ev.Results); heard != t.heard {
			t.heard = heard
			a.printf("Heard: %s\n", heard)
		}
	case stt.EventError:
		if ev.Err != nil {
			a.metrics.RecordRecognitionError(ctx, ev.Err.Kind.String())
			a.printf("Recognition error: %s\n", ev.Err.Message())
			if rem := ev.Err.Remediation(); rem != "" {
				a.println(rem)
			}
		}
	case stt.EventEnd:
		t.listening = false
		if final := strings.TrimSpace(t.final); final != "" {
			t.translate(ctx, final)
		}
	}
}

func (t *translator) translate(ctx context.Context, text string) {
	a := t.app
	out, err := a.tutor.Translate(ctx, text)
	if err != nil {
		observe.Logger(ctx).Warn("app: translate failed", "err", err)
		a.println("Translation failed. Please try again.")
		return
	}
	a.printf("English: %s\n", out)
	t.spk.say(ctx, out)
}
