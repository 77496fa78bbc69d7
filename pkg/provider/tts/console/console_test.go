package console_test

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingotutor/pkg/provider/tts"
	"github.com/MrWong99/lingotutor/pkg/provider/tts/console"
)

func drain(t *testing.T, ch <-chan tts.Event, utterance int) []tts.Event {
	t.Helper()
	var out []tts.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Utterance != utterance {
				continue
			}
			out = append(out, ev)
			if ev.Kind == tts.EventEnd || ev.Kind == tts.EventError {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out; events so far: %+v", out)
		}
	}
}

func TestSynthesizer_BoundariesAndOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, err := console.New(console.WithOutput(&buf), console.WithWordsPerMinute(600_000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, _ := p.NewSynthesizer()
	defer s.Close()

	text := "the cat  the dog"
	id, err := s.Speak(context.Background(), text, tts.Options{Rate: tts.DefaultRate})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	events := drain(t, s.Events(), id)

	if events[0].Kind != tts.EventStart {
		t.Fatalf("first event = %v, want start", events[0].Kind)
	}
	var offsets []int
	for _, ev := range events {
		if ev.Kind == tts.EventBoundary {
			offsets = append(offsets, ev.CharIndex)
		}
	}
	if want := []int{0, 4, 9, 13}; !reflect.DeepEqual(offsets, want) {
		t.Errorf("boundary offsets = %v, want %v", offsets, want)
	}
	if events[len(events)-1].Kind != tts.EventEnd {
		t.Errorf("last event = %v, want end", events[len(events)-1].Kind)
	}
	if got := strings.TrimSpace(buf.String()); got != text {
		t.Errorf("printed %q, want %q", got, text)
	}
}

func TestSynthesizer_CancelEndsUtterance(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, _ := console.New(console.WithOutput(&buf), console.WithWordsPerMinute(1))
	s, _ := p.NewSynthesizer()
	defer s.Close()

	id, err := s.Speak(context.Background(), "a very slow sentence", tts.Options{})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	s.Cancel()
	s.Cancel()

	events := drain(t, s.Events(), id)
	if last := events[len(events)-1]; last.Kind != tts.EventEnd {
		t.Errorf("last event = %v, want end", last.Kind)
	}
}

func TestSynthesizer_SpeakCancelsPrevious(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, _ := console.New(console.WithOutput(&buf), console.WithWordsPerMinute(1))
	s, _ := p.NewSynthesizer()
	defer s.Close()

	first, _ := s.Speak(context.Background(), "first utterance", tts.Options{})
	second, _ := s.Speak(context.Background(), "second", tts.Options{})
	if second == first {
		t.Fatal("utterance ids must differ")
	}
	if evs := drain(t, s.Events(), first); evs[len(evs)-1].Kind != tts.EventEnd {
		t.Error("first utterance should end when the second starts")
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()

	p, _ := console.New()
	s, _ := p.NewSynthesizer()
	defer s.Close()

	voices, err := s.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	v, ok := tts.PickVoice(voices, "en-US", []string{"female", "zira", "samantha"})
	if !ok || v.ID != "console-samantha" {
		t.Errorf("PickVoice = %+v, %v", v, ok)
	}
}

func TestNew_RejectsZeroPace(t *testing.T) {
	t.Parallel()

	if _, err := console.New(console.WithWordsPerMinute(0)); err == nil {
		t.Fatal("expected error")
	}
}
