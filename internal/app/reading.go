package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/practice"
	"github.com/MrWong99/lingotutor/internal/reading"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	"github.com/MrWong99/lingotutor/pkg/provider/tts"
	"github.com/MrWong99/lingotutor/pkg/types"
)

const (
	readingHelp = "Commands: /listen, /stop, /speak, /reset, /back, /quit"
	retryHelp   = "Type /retry to try again or /quit to leave."
)

// runReading shows the story picker and the practice screen until the
// learner quits.
func (a *App) runReading(ctx context.Context, lines <-chan string) error {
	for {
		story, err := a.pickStory(ctx, lines)
		if err != nil || story == nil {
			return err
		}
		back, err := a.practise(ctx, lines, *story)
		if err != nil {
			return err
		}
		if !back || a.story != nil {
			return nil
		}
	}
}

// pickStory returns the configured story or lets the learner choose one of
// the generated stories. A nil story means the learner quit.
func (a *App) pickStory(ctx context.Context, lines <-chan string) (*types.Story, error) {
	if a.story != nil {
		return a.story, nil
	}
	var stories []types.Story
	for {
		a.println("Generating stories...")
		var err error
		stories, err = a.tutor.GenerateStories(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		observe.Logger(ctx).Warn("app: generate stories", "err", err)
		a.printf("Could not load stories: %v\n%s\n", err, retryHelp)
		if !a.awaitRetry(ctx, lines) {
			return nil, nil
		}
	}
	a.println("Choose a story:")
	for i, st := range stories {
		a.printf("  %d. %s\n", i+1, st.Title)
	}
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case line, ok := <-lines:
			if !ok {
				return nil, nil
			}
			if name, _, isCmd := command(line); isCmd && name == "quit" {
				return nil, nil
			}
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || n < 1 || n > len(stories) {
				a.printf("Enter a number between 1 and %d.\n", len(stories))
				continue
			}
			return &stories[n-1], nil
		}
	}
}

// awaitRetry waits for /retry or an empty line. It returns false when the
// learner quits or input ends.
func (a *App) awaitRetry(ctx context.Context, lines <-chan string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			name, _, isCmd := command(line)
			switch {
			case isCmd && (name == "quit" || name == "q"):
				return false
			case isCmd && (name == "retry" || name == "r"), strings.TrimSpace(line) == "":
				return true
			}
			a.println(retryHelp)
		}
	}
}

// practise runs the read-aloud screen for story. back reports whether the
// learner asked for another story.
func (a *App) practise(ctx context.Context, lines <-chan string, story types.Story) (back bool, err error) {
	rc := a.config().Reading
	opts := []practice.Option{
		practice.WithStrategy(rc.Strategy()),
		practice.WithLanguage(rc.Language),
		practice.WithRate(rc.Rate),
		practice.WithVoiceHints(rc.VoiceHints...),
		practice.WithMetrics(a.metrics),
	}
	if a.comparer != nil {
		opts = append(opts, practice.WithComparer(a.comparer))
	}
	r, err := practice.New(story, a.providers.STT, a.providers.TTS, opts...)
	if err != nil {
		return false, fmt.Errorf("app: reading: %w", err)
	}

	v := &readingView{app: a, lastWord: reading.NoWord}
	if err := r.Bus().Subscribe(practice.TopicState, v.render); err != nil {
		return false, fmt.Errorf("app: reading: subscribe: %w", err)
	}
	defer func() { _ = r.Bus().Unsubscribe(practice.TopicState, v.render) }()

	a.printf("\n%s\n\n%s\n\n%s\n", story.Title, story.Content, readingHelp)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return r.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		var err error
		back, err = a.readingCommands(gctx, r, v, lines)
		return err
	})
	return back, g.Wait()
}

// readingCommands handles input for the practice screen until the learner
// leaves it.
func (a *App) readingCommands(ctx context.Context, r *practice.Reader, v *readingView, lines <-chan string) (back bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-r.Done():
			return false, nil
		case line, ok := <-lines:
			if !ok {
				return false, nil
			}
			name, _, isCmd := command(line)
			if !isCmd {
				if strings.TrimSpace(line) == "" {
					continue
				}
				if !v.isListening() {
					a.println("Type /listen before reading aloud.")
				} else if !a.forwardSpeech(line) {
					a.println("Speak into the microphone.")
				}
				continue
			}
			switch name {
			case "listen", "l":
				err = r.StartListening(ctx)
			case "stop", "s":
				if err = r.StopListening(ctx); err == nil {
					err = r.StopSpeaking(ctx)
				}
			case "speak", "p":
				err = r.Speak(ctx)
			case "reset":
				err = r.Reset(ctx)
			case "back":
				return true, nil
			case "quit", "q":
				return false, nil
			default:
				a.println(readingHelp)
				continue
			}
			switch {
			case errors.Is(err, stt.ErrUnsupported):
				a.println("Speech recognition is not available.")
			case errors.Is(err, tts.ErrUnsupported):
				a.println("Speech synthesis is not available.")
			case errors.Is(err, practice.ErrClosed):
				return false, nil
			case err != nil:
				a.printf("Error: %v\n", err)
			}
		}
	}
}

// readingView renders practice snapshots as they change. render runs on the
// reader's loop goroutine.
type readingView struct {
	app *App

	mu         sync.Mutex
	listening  bool
	speaking   bool
	lastWord   int
	transcript string
	outcome    *reading.Outcome
	recErr     *stt.RecognitionError
}

func (v *readingView) isListening() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listening
}

func (v *readingView) render(s practice.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a := v.app

	if s.Listening && !v.listening {
		a.println("Listening... read the story aloud, then type /stop.")
	}
	if s.Speaking && !v.speaking {
		a.println("Speaking...")
	}
	v.listening, v.speaking = s.Listening, s.Speaking

	word := reading.NoWord
	if s.Playback.Active {
		word = s.Playback.Word
	}
	if word != v.lastWord && word != reading.NoWord {
		a.println(highlight(s.Words, word))
	}
	v.lastWord = word

	if s.Transcript != v.transcript {
		v.transcript = s.Transcript
		if s.Transcript != "" {
			live := ""
			if s.Strategy == reading.StrategyMonotonic {
				live = fmt.Sprintf(" (%d%%)", s.LiveScore)
			}
			a.printf("You read: %s%s\n", s.Transcript, live)
		}
	}

	if s.RecognitionError != nil && s.RecognitionError != v.recErr {
		a.printf("Recognition error: %s\n", s.RecognitionError.Message())
		if rem := s.RecognitionError.Remediation(); rem != "" {
			a.println(rem)
		}
	}
	v.recErr = s.RecognitionError

	if s.Outcome != nil && s.Outcome != v.outcome {
		a.println(formatOutcome(s.Outcome))
	}
	v.outcome = s.Outcome
}

// highlight renders words with the word at index in brackets.
func highlight(words []reading.Word, index int) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		if w.Index == index {
			b.WriteString("[" + w.Text + "]")
			continue
		}
		b.WriteString(w.Text)
	}
	return b.String()
}

func formatOutcome(o *reading.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d%%", o.Score)
	if o.Level != "" {
		fmt.Fprintf(&b, " (%s)", o.Level)
	}
	if o.Strategy == reading.StrategyMonotonic {
		fmt.Fprintf(&b, ", %d of %d words", len(o.Matched), o.Total)
	}
	for _, s := range o.Suggestions {
		b.WriteString("\n  - " + s)
	}
	return b.String()
}
