// Package practice runs the read-aloud screen: the learner either listens to
// the story being read with live word highlighting, or reads it aloud while
// the recognizer transcript is scored against the text.
//
// A [Reader] owns one event loop ([Reader.Run]). User actions are queued onto
// that loop and recognizer and synthesizer events are consumed by it, so the
// screen state has a single writer and needs no locks. Listening and speaking
// are mutually exclusive; starting one stops the other first.
//
// Every state change is published as a [Snapshot] on the reader's event bus
// under [TopicState].
package practice

import (
	"context"
	"errors"
	"fmt"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/reading"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	"github.com/MrWong99/lingotutor/pkg/provider/tts"
	"github.com/MrWong99/lingotutor/pkg/types"
)

// TopicState is the bus topic on which [Snapshot] values are published.
const TopicState = "practice:state"

// ErrClosed is returned by actions issued after [Reader.Run] has returned.
var ErrClosed = errors.New("practice: reader closed")

// Snapshot is the screen state after one change.
type Snapshot struct {
	Story    types.Story
	Words    []reading.Word
	Strategy reading.Strategy

	// RecognitionSupported is false when no recognizer could be created; the
	// screen then only offers playback.
	RecognitionSupported bool
	SynthesisSupported   bool

	Listening bool
	Speaking  bool
	Playback  reading.Playback

	// Transcript is the live recognizer text of the current session.
	Transcript string

	// Matched lists the reference words spoken so far, ascending.
	Matched []int

	// LiveScore is the running monotonic score. It stays 0 under
	// confidence scoring, which is only known at the end.
	LiveScore int

	// Outcome is the result of the last finished session, or nil.
	Outcome *reading.Outcome

	// RecognitionError is the last recognizer error of the session, or nil.
	RecognitionError *stt.RecognitionError
}

// liveScorer is implemented by scorers that can score mid-session.
type liveScorer interface {
	Score() int
}

// Reader is the controller of one reading screen. Create it with [New], run
// [Reader.Run] in its own goroutine and issue actions from anywhere.
type Reader struct {
	id       string
	story    types.Story
	x        *reading.Index
	stt      stt.Provider
	tts      tts.Provider
	strategy reading.Strategy
	cmp      reading.Comparer
	language string
	rate     float64
	hints    []string
	bus      evbus.Bus
	metrics  *observe.Metrics

	actions chan func(context.Context)
	done    chan struct{}

	// Owned by the loop goroutine.
	scorer     reading.Scorer
	hl         *reading.Highlighter
	rec        stt.Recognizer
	syn        tts.Synthesizer
	voice      string
	session    int
	utterance  int
	listening  bool
	speaking   bool
	transcript reading.Transcript
	outcome    *reading.Outcome
	recErr     *stt.RecognitionError
}

// New prepares a reader for story. Providers are only asked for a recognizer
// and synthesizer once [Reader.Run] starts.
func New(story types.Story, sp stt.Provider, tp tts.Provider, opts ...Option) (*Reader, error) {
	r := &Reader{
		id:       uuid.NewString(),
		story:    story,
		x:        reading.NewIndex(story.Content),
		stt:      sp,
		tts:      tp,
		strategy: reading.StrategyMonotonic,
		cmp:      reading.ExactComparer{},
		language: DefaultLanguage,
		rate:     tts.DefaultRate,
		hints:    DefaultVoiceHints,
		actions:  make(chan func(context.Context)),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	if r.bus == nil {
		r.bus = evbus.New()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}

	scorer, err := reading.NewScorer(r.strategy, r.x, reading.WithComparer(r.cmp))
	if err != nil {
		return nil, fmt.Errorf("practice: %w", err)
	}
	r.scorer = scorer
	r.hl = reading.NewHighlighter(r.x)
	return r, nil
}

// Bus returns the bus snapshots are published on. Subscribers run on the
// loop goroutine and must not call back into the Reader.
func (r *Reader) Bus() evbus.Bus { return r.bus }

// ID returns the identifier used in logs and spans.
func (r *Reader) ID() string { return r.id }

// Done is closed when Run returns.
func (r *Reader) Done() <-chan struct{} { return r.done }

// Run acquires the recognizer and synthesizer, then processes actions and
// events until ctx is cancelled. Both handles are released on every exit
// path. Run must be called exactly once.
func (r *Reader) Run(ctx context.Context) error {
	defer close(r.done)

	ctx, span := observe.StartSpan(ctx, "practice.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("reader.id", r.id),
		attribute.String("story", r.story.Title),
		attribute.String("strategy", string(r.strategy)),
	)
	log := observe.Logger(ctx).With("reader", r.id)

	rec, err := r.stt.NewRecognizer(stt.Config{Language: r.language, Continuous: true, InterimResults: true})
	switch {
	case errors.Is(err, stt.ErrUnsupported):
		log.Info("practice: speech recognition unavailable", "err", err)
	case err != nil:
		return fmt.Errorf("practice: recognizer: %w", err)
	default:
		r.rec = rec
	}

	syn, err := r.tts.NewSynthesizer()
	switch {
	case errors.Is(err, tts.ErrUnsupported):
		log.Info("practice: speech synthesis unavailable", "err", err)
	case err != nil:
		if r.rec != nil {
			_ = r.rec.Close()
		}
		return fmt.Errorf("practice: synthesizer: %w", err)
	default:
		r.syn = syn
	}
	defer r.release(ctx)

	if r.syn != nil {
		r.voice = r.pickVoice(ctx)
	}

	bg := context.WithoutCancel(ctx)
	r.metrics.ActiveReaders.Add(bg, 1)
	defer r.metrics.ActiveReaders.Add(bg, -1)

	var recEvents <-chan stt.Event
	if r.rec != nil {
		recEvents = r.rec.Events()
	}
	var synEvents <-chan tts.Event
	if r.syn != nil {
		synEvents = r.syn.Events()
	}

	r.publish()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-r.actions:
			fn(ctx)
		case ev, ok := <-recEvents:
			if !ok {
				recEvents = nil
				continue
			}
			r.onRecognition(ctx, ev)
		case ev, ok := <-synEvents:
			if !ok {
				synEvents = nil
				continue
			}
			r.onSynthesis(ctx, ev)
		}
	}
}

// StartListening stops playback if needed and begins a new scored session.
// It is a no-op while already listening.
func (r *Reader) StartListening(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		if r.rec == nil {
			return fmt.Errorf("practice: start listening: %w", stt.ErrUnsupported)
		}
		if r.listening {
			return nil
		}
		if r.speaking {
			r.stopSpeaking(ctx)
			r.publish()
		}
		if err := r.rec.Start(ctx); err != nil {
			return fmt.Errorf("practice: start listening: %w", err)
		}
		r.session++
		r.scorer.Reset()
		r.transcript = reading.Transcript{}
		r.outcome = nil
		r.recErr = nil
		r.listening = true
		r.publish()
		return nil
	})
}

// StopListening ends the session and scores it. Stopping while not listening
// is a no-op.
func (r *Reader) StopListening(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		if r.listening {
			r.stopListening(ctx)
			r.publish()
		}
		return nil
	})
}

// Speak stops listening if needed and reads the story aloud. It is a no-op
// while already speaking.
func (r *Reader) Speak(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		if r.syn == nil {
			return fmt.Errorf("practice: speak: %w", tts.ErrUnsupported)
		}
		if r.speaking {
			return nil
		}
		if r.listening {
			r.stopListening(ctx)
			r.publish()
		}
		id, err := r.syn.Speak(ctx, r.story.Content, tts.Options{
			Voice:    r.voice,
			Rate:     r.rate,
			Language: r.language,
		})
		if err != nil {
			return fmt.Errorf("practice: speak: %w", err)
		}
		r.utterance = id
		r.speaking = true
		r.hl.Start()
		r.publish()
		return nil
	})
}

// StopSpeaking cancels playback. Stopping while silent is a no-op.
func (r *Reader) StopSpeaking(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		if r.speaking {
			r.stopSpeaking(ctx)
			r.publish()
		}
		return nil
	})
}

// Reset stops any activity and discards the transcript and outcome.
func (r *Reader) Reset(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		if r.speaking {
			r.stopSpeaking(ctx)
		}
		if r.listening {
			r.rec.Stop()
			r.listening = false
		}
		r.scorer.Reset()
		r.transcript = reading.Transcript{}
		r.outcome = nil
		r.recErr = nil
		r.publish()
		return nil
	})
}

// Snapshot returns the current state.
func (r *Reader) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.do(ctx, func(context.Context) error {
		snap = r.snapshot()
		return nil
	})
	return snap, err
}

// do runs fn on the loop and returns its result.
func (r *Reader) do(ctx context.Context, fn func(context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case r.actions <- func(lctx context.Context) { errc <- fn(lctx) }:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// The loop runs fn as soon as it receives it.
	return <-errc
}

func (r *Reader) onRecognition(ctx context.Context, ev stt.Event) {
	if !r.listening || ev.Session != r.session {
		return
	}
	switch ev.Kind {
	case stt.EventResult:
		r.transcript = reading.Transcript{
			Text:        stt.Transcript(ev.Results),
			Confidences: stt.FinalConfidences(ev.Results),
		}
		r.scorer.Observe(r.transcript)
	case stt.EventError:
		if ev.Err == nil {
			return
		}
		r.recErr = ev.Err
		r.metrics.RecordRecognitionError(ctx, ev.Err.Kind.String())
		observe.Logger(ctx).Warn("practice: recognition error", "kind", ev.Err.Kind.String(), "err", ev.Err)
	case stt.EventEnd:
		r.finish(ctx)
	default:
		return
	}
	r.publish()
}

func (r *Reader) onSynthesis(ctx context.Context, ev tts.Event) {
	if !r.speaking || ev.Utterance != r.utterance {
		return
	}
	switch ev.Kind {
	case tts.EventStart:
		r.hl.Start()
	case tts.EventBoundary:
		r.hl.Boundary(ev.CharIndex)
	case tts.EventEnd:
		r.endSpeaking(ctx, "end")
	case tts.EventError:
		// Synthesis failures only stop playback.
		observe.Logger(ctx).Debug("practice: synthesis error", "err", ev.Err)
		r.endSpeaking(ctx, "error")
	default:
		return
	}
	r.publish()
}

func (r *Reader) stopListening(ctx context.Context) {
	r.rec.Stop()
	r.finish(ctx)
}

// finish closes the session and derives its outcome exactly once.
func (r *Reader) finish(ctx context.Context) {
	r.listening = false
	r.outcome = r.scorer.Finalize()
	scored := r.outcome != nil
	score := 0
	if scored {
		score = r.outcome.Score
	}
	r.metrics.RecordReadingSession(ctx, string(r.strategy), scored, score)
	observe.Logger(ctx).Debug("practice: session finished",
		"session", r.session,
		"scored", scored,
		"score", score,
	)
}

func (r *Reader) stopSpeaking(ctx context.Context) {
	r.syn.Cancel()
	r.endSpeaking(ctx, "end")
}

func (r *Reader) endSpeaking(ctx context.Context, outcome string) {
	r.speaking = false
	r.hl.Stop()
	r.metrics.RecordUtterance(ctx, outcome)
}

func (r *Reader) pickVoice(ctx context.Context) string {
	voices, err := r.syn.Voices(ctx)
	if err != nil {
		observe.Logger(ctx).Debug("practice: listing voices failed", "err", err)
		return ""
	}
	v, ok := tts.PickVoice(voices, r.language, r.hints)
	if !ok {
		return ""
	}
	observe.Logger(ctx).Debug("practice: voice selected", "voice", v.Name, "language", v.Language)
	return v.ID
}

// release stops activity and closes both handles.
func (r *Reader) release(ctx context.Context) {
	if r.syn != nil {
		if r.speaking {
			r.syn.Cancel()
			r.speaking = false
			r.hl.Stop()
		}
		if err := r.syn.Close(); err != nil {
			observe.Logger(ctx).Debug("practice: closing synthesizer", "err", err)
		}
	}
	if r.rec != nil {
		if r.listening {
			r.rec.Stop()
			r.listening = false
		}
		if err := r.rec.Close(); err != nil {
			observe.Logger(ctx).Debug("practice: closing recognizer", "err", err)
		}
	}
}

func (r *Reader) publish() {
	r.bus.Publish(TopicState, r.snapshot())
}

func (r *Reader) snapshot() Snapshot {
	s := Snapshot{
		Story:                r.story,
		Words:                r.x.Words(),
		Strategy:             r.strategy,
		RecognitionSupported: r.rec != nil,
		SynthesisSupported:   r.syn != nil,
		Listening:            r.listening,
		Speaking:             r.speaking,
		Playback:             r.hl.State(),
		Transcript:           r.transcript.Text,
		Matched:              r.scorer.Matched(),
		Outcome:              r.outcome,
		RecognitionError:     r.recErr,
	}
	if ls, ok := r.scorer.(liveScorer); ok {
		s.LiveScore = ls.Score()
	}
	return s
}
