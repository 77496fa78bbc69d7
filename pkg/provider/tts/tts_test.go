package tts_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/lingotutor/pkg/provider/tts"
)

func TestWordStarts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want []int
	}{
		{"", nil},
		{"   ", nil},
		{"the cat the dog", []int{0, 4, 8, 12}},
		{"  Hello,\tworld!\n", []int{2, 9}},
		{"café au lait", []int{0, 6, 9}},
	}
	for _, tt := range tests {
		if got := tts.WordStarts(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("WordStarts(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestPickVoice(t *testing.T) {
	t.Parallel()

	voices := []tts.Voice{
		{ID: "de", Name: "Katja (female)", Language: "de-DE"},
		{ID: "david", Name: "Microsoft David", Language: "en-US"},
		{ID: "zira", Name: "Microsoft Zira", Language: "en-US"},
		{ID: "rachel", Name: "Rachel", Language: "en", Metadata: map[string]string{"gender": "female"}},
	}
	hints := []string{"female", "zira", "samantha"}

	tests := []struct {
		name   string
		voices []tts.Voice
		lang   string
		hints  []string
		wantID string
		wantOK bool
	}{
		{"hint by name", voices, "en-US", hints, "zira", true},
		{"hint by metadata", voices[3:], "en-US", hints, "rachel", true},
		{"language fallback", voices[:2], "en-US", hints, "david", true},
		{"no hints", voices, "en-GB", nil, "david", true},
		{"other language ignored", voices, "de-DE", []string{"zira"}, "de", true},
		{"none for language", voices, "ur-PK", hints, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tts.PickVoice(tt.voices, tt.lang, tt.hints)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Errorf("PickVoice() = (%q, %v), want (%q, %v)", got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func waitTerminal(t *testing.T, r *tts.Runner, id int) tts.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.Events():
			if ev.Utterance == id && (ev.Kind == tts.EventEnd || ev.Kind == tts.EventError) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out")
		}
	}
}

func TestRunner_ErrorIsTerminal(t *testing.T) {
	t.Parallel()

	r := tts.NewRunner(8)
	defer r.Close()

	boom := errors.New("boom")
	id, err := r.Play(context.Background(), func(context.Context, int, func(tts.Event)) error { return boom })
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	ev := waitTerminal(t, r, id)
	if ev.Kind != tts.EventError || !errors.Is(ev.Err, boom) {
		t.Errorf("terminal = %+v, want error boom", ev)
	}
}

func TestRunner_CancelledPlayEnds(t *testing.T) {
	t.Parallel()

	r := tts.NewRunner(8)
	defer r.Close()

	id, _ := r.Play(context.Background(), func(ctx context.Context, _ int, emit func(tts.Event)) error {
		emit(tts.Event{Kind: tts.EventStart})
		<-ctx.Done()
		return ctx.Err()
	})
	r.Cancel()
	r.Cancel()
	if ev := waitTerminal(t, r, id); ev.Kind != tts.EventEnd {
		t.Errorf("terminal = %v, want end", ev.Kind)
	}
}

func TestRunner_CloseStopsPlay(t *testing.T) {
	t.Parallel()

	r := tts.NewRunner(0)
	_, _ = r.Play(context.Background(), func(ctx context.Context, _ int, emit func(tts.Event)) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
				emit(tts.Event{Kind: tts.EventBoundary})
			}
		}
	})
	done := make(chan struct{})
	go func() {
		_ = r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked with an unread event channel")
	}
	if _, err := r.Play(context.Background(), nil); err == nil {
		t.Error("Play after Close should fail")
	}
}
