package deepgram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lingotutor/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Config{InterimResults: true})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en-US", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Custom(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithModel("nova-2"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(stt.Config{Language: "ur-PK"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q, _ := url.ParseQuery(strings.SplitN(rawURL, "?", 2)[1])
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "ur-PK", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("key", WithSampleRate(0)); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestNewRecognizer_NoSourceUnsupported(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	_, err := p.NewRecognizer(stt.Config{})
	if !errors.Is(err, stt.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantFinal bool
		wantText  string
		wantConf  float64
		wantAlts  int
	}{
		{
			name:      "final",
			raw:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Hello world","confidence":0.95}]}}`,
			wantOK:    true,
			wantFinal: true,
			wantText:  "Hello world",
			wantConf:  0.95,
			wantAlts:  1,
		},
		{
			name:     "interim with two alternatives",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello","confidence":0.7},{"transcript":"Hallo","confidence":0.2}]}}`,
			wantOK:   true,
			wantText: "Hello",
			wantConf: 0.7,
			wantAlts: 2,
		},
		{name: "metadata ignored", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if res.IsFinal != tt.wantFinal {
				t.Errorf("IsFinal = %v, want %v", res.IsFinal, tt.wantFinal)
			}
			assertEqual(t, "transcript", tt.wantText, res.Best().Transcript)
			if res.Best().Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", res.Best().Confidence, tt.wantConf)
			}
			if len(res.Alternatives) != tt.wantAlts {
				t.Errorf("alternatives = %d, want %d", len(res.Alternatives), tt.wantAlts)
			}
		})
	}
}

// ---- accumulator ----

func TestAccumulator_InterimReplacedByFinal(t *testing.T) {
	t.Parallel()

	var a accumulator
	mk := func(s string, final bool) stt.Result {
		return stt.Result{IsFinal: final, Alternatives: []stt.Alternative{{Transcript: s, Confidence: 0.9}}}
	}

	steps := []struct {
		in          stt.Result
		wantChanged bool
		want        string
	}{
		{mk("the", false), true, "the"},
		{mk("the cat", false), true, "the cat"},
		{mk("the cat sat", true), true, "the cat sat"},
		{mk("on", false), true, "the cat sat on"},
		{mk("", true), true, "the cat sat"},
		{mk("", true), false, "the cat sat"},
	}
	for i, s := range steps {
		if changed := a.apply(s.in); changed != s.wantChanged {
			t.Errorf("step %d: changed = %v, want %v", i, changed, s.wantChanged)
		}
		if got := stt.Transcript(a.snapshot()); got != s.want {
			t.Errorf("step %d: transcript = %q, want %q", i, got, s.want)
		}
	}
	if a.finals() != 1 {
		t.Errorf("finals = %d, want 1", a.finals())
	}
}

// ---- end-to-end against a fake Deepgram ----

func fakeDeepgram(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		sent := false
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary && !sent {
				sent = true
				for _, m := range messages {
					if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
						return
					}
				}
			}
			if typ == websocket.MessageText && bytes.Contains(data, []byte("CloseStream")) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pcmSource(n int) AudioSource {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(make([]byte, n))), nil
	}
}

func collect(t *testing.T, rec stt.Recognizer) []stt.Event {
	t.Helper()
	var out []stt.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-rec.Events():
			out = append(out, ev)
			if ev.Kind == stt.EventEnd {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out; events so far: %+v", out)
		}
	}
}

func TestRecognizer_StreamsResults(t *testing.T) {
	t.Parallel()

	srv := fakeDeepgram(t, []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"the cat","confidence":0.5}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"the cat sat","confidence":0.92}]}}`,
	})
	p, err := New("test-key",
		WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")),
		WithAudioSource(pcmSource(6400)),
		WithRealtime(false),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec, err := p.NewRecognizer(stt.Config{Continuous: true, InterimResults: true})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer rec.Close()

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, rec)

	var last []stt.Result
	for _, ev := range events {
		if ev.Session != 1 {
			t.Errorf("event %v has session %d, want 1", ev.Kind, ev.Session)
		}
		if ev.Kind == stt.EventError {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
		if ev.Kind == stt.EventResult {
			last = ev.Results
		}
	}
	assertEqual(t, "transcript", "the cat sat", stt.Transcript(last))
	if c := stt.FinalConfidences(last); len(c) != 1 || c[0] != 0.92 {
		t.Errorf("confidences = %v", c)
	}
}

func TestRecognizer_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := fakeDeepgram(t, nil)
	p, _ := New("wrong-key",
		WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")),
		WithAudioSource(pcmSource(3200)),
		WithRealtime(false),
	)
	rec, _ := p.NewRecognizer(stt.Config{})
	defer rec.Close()

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, rec)
	if len(events) != 2 || events[0].Kind != stt.EventError {
		t.Fatalf("events = %+v, want error then end", events)
	}
	if events[0].Err.Kind != stt.ErrorPermissionDenied {
		t.Errorf("error kind = %v, want permission-denied", events[0].Err.Kind)
	}
}

func TestRecognizer_StopIdempotent(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithAudioSource(pcmSource(0)))
	rec, _ := p.NewRecognizer(stt.Config{})
	rec.Stop()
	rec.Stop()
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
