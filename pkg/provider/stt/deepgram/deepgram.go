// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Audio is pulled from an [AudioSource] (a capture device wrapper, a recorded
// PCM file, ...) for the duration of each recognition session and streamed to
// Deepgram as linear16 mono frames.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lingotutor/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
	chunkDuration     = 100 * time.Millisecond
	closeGrace        = 5 * time.Second
)

// AudioSource opens a fresh stream of 16-bit little-endian mono PCM for one
// recognition session. The stream is closed when the session ends.
type AudioSource func(ctx context.Context) (io.ReadCloser, error)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate sets the audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithAudioSource sets the PCM source. Without one the provider reports
// stt.ErrUnsupported.
func WithAudioSource(src AudioSource) Option {
	return func(p *Provider) {
		p.source = src
	}
}

// WithRealtime paces audio upload at playback speed, which is required for
// recorded files to produce interim results the way a live microphone does.
func WithRealtime(enabled bool) Option {
	return func(p *Provider) {
		p.realtime = enabled
	}
}

// WithEndpoint overrides the streaming endpoint (used by tests).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	sampleRate int
	endpoint   string
	realtime   bool
	source     AudioSource
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		endpoint:   deepgramEndpoint,
		realtime:   true,
	}
	for _, o := range opts {
		o(p)
	}
	if p.sampleRate <= 0 {
		return nil, errors.New("deepgram: sample rate must be positive")
	}
	return p, nil
}

// NewRecognizer implements stt.Provider.
func (p *Provider) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	if p.source == nil {
		return nil, fmt.Errorf("deepgram: no audio source: %w", stt.ErrUnsupported)
	}
	return &recognizer{
		p:      p,
		cfg:    cfg,
		events: make(chan stt.Event, 64),
		done:   make(chan struct{}),
	}, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.Config) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = defaultLanguage
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	q.Set("channels", "1")

	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ stt.Provider = (*Provider)(nil)

// ---- recognizer ----

type recognizer struct {
	p   *Provider
	cfg stt.Config

	mu      sync.Mutex
	session int
	stop    chan struct{}
	wg      sync.WaitGroup

	events    chan stt.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (r *recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return errors.New("deepgram: recognizer closed")
	default:
	}
	if r.stop != nil {
		return errors.New("deepgram: session already active")
	}
	r.session++
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(ctx, r.session, r.stop)
	return nil
}

func (r *recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

func (r *recognizer) Events() <-chan stt.Event { return r.events }

func (r *recognizer) Close() error {
	r.closeOnce.Do(func() {
		r.Stop()
		close(r.done)
		r.wg.Wait()
		close(r.events)
	})
	return nil
}

func (r *recognizer) emit(ev stt.Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// endSession clears the active session if it is still current.
func (r *recognizer) endSession(session int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil && r.session == session {
		close(r.stop)
		r.stop = nil
	}
}

// run drives one session: it dials Deepgram, streams audio from the source and
// turns Results messages into cumulative stt events.
func (r *recognizer) run(ctx context.Context, session int, stop chan struct{}) {
	defer r.wg.Done()
	defer r.emit(stt.Event{Kind: stt.EventEnd, Session: session})
	defer r.endSession(session)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	fail := func(code string, err error) {
		slog.Debug("deepgram: session failed", "session", session, "code", code, "err", err)
		r.emit(stt.Event{Kind: stt.EventError, Session: session, Err: stt.NewError(code, err)})
	}

	wsURL, err := r.p.buildURL(r.cfg)
	if err != nil {
		fail("bad-grammar", err)
		return
	}

	audio, err := r.p.source(ctx)
	if err != nil {
		fail("audio-capture", err)
		return
	}
	closeAudio := sync.OnceFunc(func() { _ = audio.Close() })
	defer closeAudio()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.p.apiKey)
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		code := "network"
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			code = "not-allowed"
		}
		fail(code, err)
		return
	}
	defer conn.CloseNow()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		r.writeLoop(ctx, conn, audio, stop)
	}()
	go func() {
		// Deepgram closes the socket once it has flushed the final results;
		// give up waiting after closeGrace.
		select {
		case <-stop:
		case <-ctx.Done():
			return
		}
		select {
		case <-time.After(closeGrace):
			cancel()
		case <-ctx.Done():
		}
	}()

	var acc accumulator
	stopped := false
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-stop:
				stopped = true
			default:
			}
			if !stopped && ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				fail("network", err)
			}
			break
		}

		res, ok := parseDeepgramResponse(msg)
		if !ok || !acc.apply(res) {
			continue
		}
		r.emit(stt.Event{Kind: stt.EventResult, Session: session, Results: acc.snapshot()})

		if !r.cfg.Continuous && res.IsFinal && res.Best().Transcript != "" {
			r.endSession(session)
		}
	}

	if !r.cfg.Continuous && acc.finals() == 0 && ctx.Err() == nil && !stopped {
		fail("no-speech", nil)
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
	closeAudio()
	<-writeDone
}

// writeLoop streams audio frames until the source is exhausted or the session
// is stopped, then asks Deepgram to flush and close the stream.
func (r *recognizer) writeLoop(ctx context.Context, conn *websocket.Conn, audio io.Reader, stop <-chan struct{}) {
	frame := make([]byte, r.p.sampleRate*2*int(chunkDuration/time.Millisecond)/1000)

	var tick <-chan time.Time
	if r.p.realtime {
		t := time.NewTicker(chunkDuration)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-stop:
			r.closeStream(ctx, conn)
			return
		case <-ctx.Done():
			return
		default:
		}

		n, err := io.ReadFull(audio, frame)
		if n > 0 {
			if werr := conn.Write(ctx, websocket.MessageBinary, frame[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			r.closeStream(ctx, conn)
			return
		}

		if tick != nil {
			select {
			case <-tick:
			case <-stop:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *recognizer) closeStream(ctx context.Context, conn *websocket.Conn) {
	wctx, cancel := context.WithTimeout(ctx, closeGrace)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

var _ stt.Recognizer = (*recognizer)(nil)

// ---- result handling ----

// accumulator keeps the session's results in browser order: committed finals
// followed by at most one pending interim.
type accumulator struct {
	results []stt.Result
}

// apply merges r into the list and reports whether the list changed.
func (a *accumulator) apply(r stt.Result) bool {
	changed := false
	if n := len(a.results); n > 0 && !a.results[n-1].IsFinal {
		a.results = a.results[:n-1]
		changed = true
	}
	if r.Best().Transcript == "" {
		return changed
	}
	a.results = append(a.results, r)
	return true
}

func (a *accumulator) snapshot() []stt.Result {
	out := make([]stt.Result, len(a.results))
	copy(out, a.results)
	return out
}

func (a *accumulator) finals() int {
	n := 0
	for _, r := range a.results {
		if r.IsFinal {
			n++
		}
	}
	return n
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a Result.
// Returns (Result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (stt.Result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Result{}, false
	}
	if resp.Type != "Results" {
		return stt.Result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return stt.Result{}, false
	}

	out := stt.Result{IsFinal: resp.IsFinal}
	for _, alt := range resp.Channel.Alternatives {
		out.Alternatives = append(out.Alternatives, stt.Alternative{
			Transcript: alt.Transcript,
			Confidence: alt.Confidence,
		})
	}
	return out, true
}
