package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/lingotutor/internal/conversation"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingotutor/pkg/provider/stt/mock"
)

type dictationHarness struct {
	d      *conversation.Dictation
	rec    *sttmock.Recognizer
	p      *sttmock.Provider
	texts  chan string
	submit chan string
}

func newDictation(t *testing.T) *dictationHarness {
	t.Helper()
	h := &dictationHarness{
		rec:    sttmock.NewRecognizer(),
		texts:  make(chan string, 32),
		submit: make(chan string, 4),
	}
	h.p = &sttmock.Provider{Recognizer: h.rec}
	d, err := conversation.NewDictation(h.p, "en-US",
		conversation.OnText(func(s string) { h.texts <- s }),
		conversation.OnSubmit(func(s string) { h.submit <- s }),
		conversation.WithDictationMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("NewDictation: %v", err)
	}
	h.d = d

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = d.Close()
	})
	return h
}

func next(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
		return ""
	}
}

func TestDictation_ConfiguresContinuousRecognizer(t *testing.T) {
	t.Parallel()

	h := newDictation(t)
	want := stt.Config{Language: "en-US", Continuous: true, InterimResults: true}
	if len(h.p.Configs) != 1 || h.p.Configs[0] != want {
		t.Fatalf("configs = %+v, want [%+v]", h.p.Configs, want)
	}
}

func TestDictation_InterimThenSubmit(t *testing.T) {
	t.Parallel()

	h := newDictation(t)
	if err := h.d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := next(t, h.texts); got != "" {
		t.Fatalf("start text = %q, want empty", got)
	}

	h.rec.EmitResults(sttmock.Interim("I like"))
	if got := next(t, h.texts); got != "I like" {
		t.Errorf("text = %q, want %q", got, "I like")
	}
	h.rec.EmitResults(sttmock.Final("I like tea", 0.9), sttmock.Interim("and"))
	if got := next(t, h.texts); got != "I like tea and" {
		t.Errorf("text = %q, want %q", got, "I like tea and")
	}
	if !h.d.Listening() {
		t.Error("expected Listening during the session")
	}

	h.rec.EmitEnd()
	if got := next(t, h.submit); got != "I like tea" {
		t.Errorf("submitted %q, want %q", got, "I like tea")
	}
	if h.d.Listening() {
		t.Error("expected Listening=false after the session ended")
	}
}

func TestDictation_NoSubmitWithoutFinalText(t *testing.T) {
	t.Parallel()

	h := newDictation(t)
	_ = h.d.Start(context.Background())
	next(t, h.texts)

	h.rec.EmitResults(sttmock.Interim("um"))
	next(t, h.texts)
	h.rec.EmitError("no-speech")
	h.rec.EmitEnd()

	// A second session proves the first ended without submitting.
	_ = h.d.Start(context.Background())
	next(t, h.texts)
	h.rec.EmitResults(sttmock.Final("hello", 0.8))
	next(t, h.texts)
	h.rec.EmitEnd()
	if got := next(t, h.submit); got != "hello" {
		t.Errorf("submitted %q, want hello", got)
	}
}

func TestDictation_IgnoresStaleSession(t *testing.T) {
	t.Parallel()

	h := newDictation(t)
	_ = h.d.Start(context.Background())
	next(t, h.texts)
	h.rec.EmitEnd()
	_ = h.d.Start(context.Background())
	next(t, h.texts)

	h.rec.Emit(stt.Event{Kind: stt.EventResult, Session: 1, Results: []stt.Result{sttmock.Final("old", 1)}})
	h.rec.EmitResults(sttmock.Final("new", 1))
	if got := next(t, h.texts); got != "new" {
		t.Errorf("text = %q, want new (stale result must be dropped)", got)
	}
}

func TestDictation_StartError(t *testing.T) {
	t.Parallel()

	h := newDictation(t)
	h.rec.StartErr = errors.New("mic busy")
	if err := h.d.Start(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if h.d.Listening() {
		t.Error("Listening after a failed start")
	}
}

func TestNewDictation_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := conversation.NewDictation(&sttmock.Provider{NewRecognizerErr: stt.ErrUnsupported}, "en-US")
	if !errors.Is(err, stt.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}
