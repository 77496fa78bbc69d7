package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/pkg/provider/tts"
)

// speaker reads tutor output aloud. A new utterance replaces the one in
// progress.
type speaker struct {
	syn      tts.Synthesizer
	metrics  *observe.Metrics
	language string
	voice    string
	rate     float64

	done chan struct{}
}

// newSpeaker creates a synthesizer for language. It returns nil without an
// error when the provider has no synthesis support. The speaker is closed by
// Shutdown.
func (a *App) newSpeaker(ctx context.Context, language string, rate float64) (*speaker, error) {
	syn, err := a.providers.TTS.NewSynthesizer()
	if errors.Is(err, tts.ErrUnsupported) {
		observe.Logger(ctx).Info("app: speech synthesis unavailable", "err", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("app: synthesizer: %w", err)
	}
	s := &speaker{
		syn:      syn,
		metrics:  a.metrics,
		language: language,
		rate:     rate,
		done:     make(chan struct{}),
	}
	if voices, err := syn.Voices(ctx); err == nil {
		if v, ok := tts.PickVoice(voices, language, a.config().Reading.VoiceHints); ok {
			s.voice = v.ID
		}
	} else {
		observe.Logger(ctx).Debug("app: list voices", "err", err)
	}
	go s.drain(context.WithoutCancel(ctx))
	a.closers = append(a.closers, s.close)
	return s, nil
}

// say starts speaking text. Failures are logged; chat and translation go on
// without audio.
func (s *speaker) say(ctx context.Context, text string) {
	if s == nil || text == "" {
		return
	}
	s.syn.Cancel()
	if _, err := s.syn.Speak(ctx, text, tts.Options{Voice: s.voice, Rate: s.rate, Language: s.language}); err != nil {
		observe.Logger(ctx).Warn("app: speak failed", "err", err)
		s.metrics.RecordUtterance(ctx, "error")
	}
}

// drain consumes synthesizer events until the synthesizer closes its
// channel.
func (s *speaker) drain(ctx context.Context) {
	defer close(s.done)
	for ev := range s.syn.Events() {
		switch ev.Kind {
		case tts.EventEnd:
			s.metrics.RecordUtterance(ctx, "end")
		case tts.EventError:
			observe.Logger(ctx).Debug("app: synthesis error", "utterance", ev.Utterance, "err", ev.Err)
			s.metrics.RecordUtterance(ctx, "error")
		}
	}
}

func (s *speaker) close() error {
	s.syn.Cancel()
	err := s.syn.Close()
	<-s.done
	return err
}
