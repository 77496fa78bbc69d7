// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// Word boundaries are derived from the character alignment ElevenLabs returns
// alongside each audio chunk and are released on a playback clock that starts
// with the first chunk, so highlights follow the audio rather than the network.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/coder/websocket"

	"github.com/MrWong99/lingotutor/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	defaultVoice     = "21m00Tcm4TlvDq8ikWAM"
	defaultLanguage  = "en"

	minSpeed = 0.7
	maxSpeed = 1.2

	clockTick = 10 * time.Millisecond
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithDefaultVoice sets the voice used when tts.Options.Voice is empty.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) {
		p.defaultVoice = id
	}
}

// WithSink sets the writer that receives the decoded PCM audio, typically an
// audio device or a player process. Defaults to io.Discard.
func WithSink(w io.Writer) Option {
	return func(p *Provider) {
		p.sink = w
	}
}

// WithBaseURL overrides the API base URL. The streaming endpoint is derived
// from it by switching the scheme to ws/wss.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	defaultVoice string
	baseURL      string
	httpClient   *http.Client
	sink         io.Writer

	// bytesPerMs is derived from outputFormat.
	bytesPerMs float64

	// sinkMu serialises writes from concurrent utterances.
	sinkMu sync.Mutex
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		defaultVoice: defaultVoice,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		sink:         io.Discard,
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmSampleRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.bytesPerMs = float64(rate) * 2 / 1000
	return p, nil
}

// NewSynthesizer implements tts.Provider.
func (p *Provider) NewSynthesizer() (tts.Synthesizer, error) {
	return &synthesizer{p: p, runner: tts.NewRunner(64)}, nil
}

var _ tts.Provider = (*Provider)(nil)

// pcmSampleRate extracts the sample rate from a "pcm_<rate>" format name.
func pcmSampleRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q: only pcm formats are supported", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q: bad sample rate", format)
	}
	return rate, nil
}

// streamURL constructs the WebSocket URL for a given voice.
func (p *Provider) streamURL(voiceID string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	q.Set("sync_alignment", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// clampSpeed maps a speaking rate onto the range ElevenLabs accepts.
func clampSpeed(rate float64) float64 {
	if rate <= 0 {
		return 1
	}
	return min(max(rate, minSpeed), maxSpeed)
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

// alignment is the per-chunk character timing. Times are relative to the
// start of the chunk.
type alignment struct {
	Chars            []string `json:"chars"`
	CharStartTimesMs []int    `json:"charStartTimesMs"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio     string     `json:"audio"`
	IsFinal   bool       `json:"isFinal"`
	Alignment *alignment `json:"alignment"`
	Message   string     `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ---- synthesizer ----

type synthesizer struct {
	p      *Provider
	runner *tts.Runner
}

func (s *synthesizer) Speak(ctx context.Context, text string, opts tts.Options) (int, error) {
	voice := opts.Voice
	if voice == "" {
		voice = s.p.defaultVoice
	}
	wsURL, err := s.p.streamURL(voice)
	if err != nil {
		return 0, err
	}
	speed := clampSpeed(opts.Rate)
	return s.runner.Play(ctx, func(ctx context.Context, _ int, emit func(tts.Event)) error {
		return s.play(ctx, wsURL, text, speed, emit)
	})
}

func (s *synthesizer) Cancel() { s.runner.Cancel() }

func (s *synthesizer) Voices(ctx context.Context) ([]tts.Voice, error) {
	return s.p.listVoices(ctx)
}

func (s *synthesizer) Events() <-chan tts.Event { return s.runner.Events() }

func (s *synthesizer) Close() error { return s.runner.Close() }

var _ tts.Synthesizer = (*synthesizer)(nil)

// chunk is one decoded audio message.
type chunk struct {
	pcm   []byte
	align *alignment
}

// play streams one utterance and blocks until its audio has finished playing.
func (s *synthesizer) play(ctx context.Context, wsURL, text string, speed float64, emit func(tts.Event)) error {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()

	msgs := []textMessage{
		{
			// ElevenLabs requires a non-empty first text value.
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: speed},
			XiAPIKey:      s.p.apiKey,
		},
		{Text: text + " "},
		{Text: ""},
	}
	for _, m := range msgs {
		data, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	chunks := make(chan chunk, 16)
	var readErr error
	go func() {
		defer close(chunks)
		readErr = readChunks(ctx, conn, chunks)
	}()

	sched := newScheduler(tts.WordStarts(text))
	clock := time.NewTicker(clockTick)
	defer clock.Stop()

	var (
		started   time.Time
		audioMs   float64
		streaming = true
	)
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				streaming = false
				chunks = nil
				if readErr != nil {
					return readErr
				}
				if started.IsZero() {
					return errors.New("elevenlabs: stream ended without audio")
				}
				break
			}
			if started.IsZero() {
				started = time.Now()
				emit(tts.Event{Kind: tts.EventStart})
			}
			if c.align != nil {
				sched.add(audioMs, c.align)
			}
			audioMs += float64(len(c.pcm)) / s.p.bytesPerMs
			s.p.sinkMu.Lock()
			_, err := s.p.sink.Write(c.pcm)
			s.p.sinkMu.Unlock()
			if err != nil {
				return fmt.Errorf("elevenlabs: sink: %w", err)
			}
		case <-clock.C:
		case <-ctx.Done():
			return ctx.Err()
		}

		if started.IsZero() {
			continue
		}
		elapsed := float64(time.Since(started)) / float64(time.Millisecond)
		for _, off := range sched.due(elapsed) {
			emit(tts.Event{Kind: tts.EventBoundary, CharIndex: off})
		}
		if !streaming && elapsed >= audioMs {
			for _, off := range sched.due(audioMs + 1) {
				emit(tts.Event{Kind: tts.EventBoundary, CharIndex: off})
			}
			return nil
		}
	}
}

// readChunks forwards decoded audio messages until the final message arrives.
func readChunks(ctx context.Context, conn *websocket.Conn, out chan<- chunk) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Debug("elevenlabs: skipping malformed message", "err", err)
			continue
		}
		if resp.Error != "" {
			return fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			select {
			case out <- chunk{pcm: pcm, align: resp.Alignment}:
			case <-ctx.Done():
				return nil
			}
		}
		if resp.IsFinal {
			return nil
		}
	}
}

// ---- boundary scheduling ----

type boundary struct {
	atMs   float64
	offset int
}

// scheduler turns alignment character timings into word boundaries. The k-th
// word start seen in the alignment stream maps to the k-th word of the text.
type scheduler struct {
	starts  []int
	word    int
	inWord  bool
	pending []boundary
}

func newScheduler(starts []int) *scheduler {
	return &scheduler{starts: starts}
}

// add records the word starts in a, whose chunk begins baseMs into playback.
func (s *scheduler) add(baseMs float64, a *alignment) {
	for i, ch := range a.Chars {
		space := strings.TrimFunc(ch, unicode.IsSpace) == ""
		if !space && !s.inWord && s.word < len(s.starts) && i < len(a.CharStartTimesMs) {
			s.pending = append(s.pending, boundary{
				atMs:   baseMs + float64(a.CharStartTimesMs[i]),
				offset: s.starts[s.word],
			})
			s.word++
		}
		s.inWord = !space
	}
}

// due removes and returns the offsets of all boundaries at or before nowMs.
func (s *scheduler) due(nowMs float64) []int {
	n := 0
	for n < len(s.pending) && s.pending[n].atMs <= nowMs {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range n {
		out[i] = s.pending[i].offset
	}
	s.pending = s.pending[n:]
	return out
}

// ---- voices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// listVoices returns all voices available for the configured API key.
func (p *Provider) listVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	return parseVoicesResponse(data)
}

// parseVoicesResponse converts a /v1/voices body into tts voices. Voices
// without a language label are assumed to speak English.
func parseVoicesResponse(data []byte) ([]tts.Voice, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		lang := v.Labels["language"]
		if lang == "" {
			lang = defaultLanguage
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Language: lang,
			Metadata: meta,
		})
	}
	return voices, nil
}
