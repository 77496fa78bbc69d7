// Package app wires the lingotutor subsystems into a terminal host.
//
// The App struct owns the full lifecycle: New connects the tutor service and
// the speech providers, Run drives one interactive mode until the learner
// quits, and Shutdown releases everything registered along the way.
//
// The host is the only reader of its input. Lines starting with "/" are
// commands; other lines are either typed text for the current screen or, while
// a recognizer session is active, forwarded to the speech input set with
// [WithSpeechInput] so a console recognizer can consume them.
//
// For testing, inject doubles via functional options ([WithInput],
// [WithOutput], [WithTutor], ...). When an option is not provided, New builds
// the real implementation from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/lingotutor/internal/config"
	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/reading"
	"github.com/MrWong99/lingotutor/internal/reading/phonetic"
	"github.com/MrWong99/lingotutor/internal/tutor"
	"github.com/MrWong99/lingotutor/pkg/provider/llm"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	"github.com/MrWong99/lingotutor/pkg/provider/tts"
	"github.com/MrWong99/lingotutor/pkg/types"
)

// Mode selects the screen Run drives.
type Mode string

const (
	ModeReading   Mode = "reading"
	ModeTranslate Mode = "translate"
	ModeChat      Mode = "chat"
)

// ErrUnknownMode is returned by [ParseMode] and [App.Run] for an unrecognised
// mode.
var ErrUnknownMode = errors.New("app: unknown mode")

// ParseMode maps a command-line mode name to a [Mode]. The empty string means
// [ModeReading].
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeReading, nil
	case ModeReading, ModeTranslate, ModeChat:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q; valid values: reading, translate, chat", ErrUnknownMode, s)
}

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry. LLM, STT and TTS are all required; a host without
// speech support passes providers whose constructors return ErrUnsupported.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns the terminal session and all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	tutor    *tutor.Service
	metrics  *observe.Metrics
	comparer reading.Comparer
	story    *types.Story

	in      io.Reader
	out     io.Writer
	speech  io.Writer
	speechq chan string

	cfgMu sync.RWMutex
	outMu sync.Mutex

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithInput sets the command input. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets where screens are rendered. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithSpeechInput forwards non-command lines to w while a recognizer session
// is active. Used with the console recognizer.
func WithSpeechInput(w io.Writer) Option {
	return func(a *App) { a.speech = w }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTutor injects a tutor service instead of creating one from the LLM
// provider.
func WithTutor(s *tutor.Service) Option {
	return func(a *App) { a.tutor = s }
}

// WithStory practises story instead of asking the model for stories.
func WithStory(story types.Story) Option {
	return func(a *App) { a.story = &story }
}

// WithComparer overrides the word comparer of the reading screen. By default
// reading.phonetic in the config selects the phonetic comparer.
func WithComparer(c reading.Comparer) Option {
	return func(a *App) { a.comparer = c }
}

// New creates an App from cfg and providers. Use Option functions to inject
// test doubles.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: llm provider is required")
	}
	if providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: stt and tts providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.tutor == nil {
		a.tutor = tutor.New(providers.LLM, tutor.WithMetrics(a.metrics))
	}
	if a.comparer == nil && cfg.Reading.Phonetic {
		a.comparer = phonetic.New()
	}
	return a, nil
}

// ApplyConfig takes over the screen settings of cfg (reading, translate and
// chat). They apply from the next screen on; providers are not rebuilt.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	next := *a.cfg
	next.Reading, next.Translate, next.Chat = cfg.Reading, cfg.Translate, cfg.Chat
	a.cfg = &next
	slog.Info("app: settings updated")
}

// config returns the current settings.
func (a *App) config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Run drives mode until the learner quits, the input ends or ctx is
// cancelled. A cancelled context is not an error.
func (a *App) Run(ctx context.Context, mode Mode) error {
	ctx, span := observe.StartSpan(ctx, "app.run")
	defer span.End()
	span.SetAttributes(attribute.String("mode", string(mode)))

	slog.Info("app: starting", "mode", mode)
	lines := a.readLines(ctx)
	a.startSpeech(ctx)

	var err error
	switch mode {
	case ModeReading:
		err = a.runReading(ctx, lines)
	case ModeTranslate:
		err = a.runTranslate(ctx, lines)
	case ModeChat:
		err = a.runChat(ctx, lines)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Shutdown runs the registered closers in order. It respects the context
// deadline: if ctx expires before all closers finish, the remaining ones are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// readLines scans the input on its own goroutine. The channel is closed at
// end of input. A blocked read cannot be interrupted, so the goroutine is not
// joined; it exits with the next line or EOF.
func (a *App) readLines(ctx context.Context) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case ch <- strings.TrimRight(sc.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Debug("app: input closed", "err", err)
		}
	}()
	return ch
}

// startSpeech starts the writer feeding the speech input. Lines are queued
// so the input loop never blocks on a recognizer that is not reading.
func (a *App) startSpeech(ctx context.Context) {
	if a.speech == nil {
		return
	}
	a.speechq = make(chan string, 16)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case line := <-a.speechq:
				if _, err := io.WriteString(a.speech, line+"\n"); err != nil {
					slog.Debug("app: speech input closed", "err", err)
					return
				}
			}
		}
	}()
}

// forwardSpeech hands a spoken line to the speech input. It reports false
// when no speech input is configured.
func (a *App) forwardSpeech(line string) bool {
	if a.speechq == nil {
		return false
	}
	select {
	case a.speechq <- line:
	default:
		slog.Warn("app: speech input is not being read, dropping line")
	}
	return true
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(s string) {
	a.printf("%s\n", s)
}

// command splits a "/name arg" line. ok is false for plain text.
func command(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}
