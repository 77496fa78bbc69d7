// Package console provides a terminal-backed STT provider: every line of text
// read from the input while a session is active counts as one spoken, final
// recognition result. Lines read while no session is listening are dropped,
// as are lines read during a session that ended before consuming them.
//
// It stands in for a microphone when no streaming recognition service is
// configured, and makes reading practice usable from a plain terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/lingotutor/pkg/provider/stt"
)

const defaultConfidence = 0.9

// Option is a functional option for configuring the console Provider.
type Option func(*Provider)

// WithInput sets the line source. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(p *Provider) { p.input = r }
}

// WithConfidence sets the confidence reported for every result.
func WithConfidence(c float64) Option {
	return func(p *Provider) { p.confidence = c }
}

// Provider implements stt.Provider over a line-oriented reader. The input is
// read by a single goroutine shared by all recognizers of the provider; only
// the most recently started session receives lines.
type Provider struct {
	input      io.Reader
	confidence float64

	once      sync.Once
	lines     chan line
	listener  atomic.Uint64 // token of the listening session, 0 when none
	lastToken atomic.Uint64
}

// line is one input line stamped with the session listening when it was read.
type line struct {
	text  string
	token uint64
}

// New creates a console Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{input: os.Stdin, confidence: defaultConfidence}
	for _, o := range opts {
		o(p)
	}
	if p.confidence < 0 || p.confidence > 1 {
		return nil, errors.New("console: confidence must be within [0,1]")
	}
	return p, nil
}

// NewRecognizer implements stt.Provider.
func (p *Provider) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	p.once.Do(p.startReader)
	return &recognizer{
		p:      p,
		cfg:    cfg,
		events: make(chan stt.Event, 32),
		done:   make(chan struct{}),
	}, nil
}

func (p *Provider) startReader() {
	p.lines = make(chan line)
	go func() {
		defer close(p.lines)
		sc := bufio.NewScanner(p.input)
		for sc.Scan() {
			tok := p.listener.Load()
			if tok == 0 {
				continue
			}
			p.lines <- line{text: sc.Text(), token: tok}
		}
	}()
}

// listen makes a new session the receiver of input lines.
func (p *Provider) listen() uint64 {
	tok := p.lastToken.Add(1)
	p.listener.Store(tok)
	return tok
}

// unlisten stops routing lines to tok unless a newer session took over.
func (p *Provider) unlisten(tok uint64) {
	p.listener.CompareAndSwap(tok, 0)
}

var _ stt.Provider = (*Provider)(nil)

// recognizer turns input lines into final results for the active session.
type recognizer struct {
	p   *Provider
	cfg stt.Config

	mu      sync.Mutex
	session int
	token   uint64
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
		return errors.New("console: recognizer closed")
	default:
	}
	if r.stop != nil {
		return errors.New("console: session already active")
	}
	r.session++
	r.token = r.p.listen()
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(ctx, r.session, r.token, r.stop)
	return nil
}

func (r *recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
		r.p.unlisten(r.token)
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

func (r *recognizer) run(ctx context.Context, session int, token uint64, stop <-chan struct{}) {
	defer r.wg.Done()
	defer r.finish(session, token, stop)

	var results []stt.Result
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case in, ok := <-r.p.lines:
			if !ok {
				if len(results) == 0 {
					r.emit(stt.Event{Kind: stt.EventError, Session: session, Err: stt.NewError("no-speech", io.EOF)})
				}
				return
			}
			if in.token != token {
				continue
			}
			text := strings.TrimSpace(in.text)
			if text == "" {
				continue
			}
			if r.cfg.InterimResults {
				words := strings.Fields(text)
				for i := 1; i < len(words); i++ {
					partial := stt.Result{Alternatives: []stt.Alternative{{Transcript: strings.Join(words[:i], " ")}}}
					r.emit(stt.Event{Kind: stt.EventResult, Session: session, Results: appendCopy(results, partial)})
				}
			}
			results = append(results, stt.Result{
				IsFinal:      true,
				Alternatives: []stt.Alternative{{Transcript: text, Confidence: r.p.confidence}},
			})
			r.emit(stt.Event{Kind: stt.EventResult, Session: session, Results: appendCopy(results)})
			if !r.cfg.Continuous {
				return
			}
		}
	}
}

// finish clears the active session if it is still the one that ended and
// emits its terminal event.
func (r *recognizer) finish(session int, token uint64, stop <-chan struct{}) {
	r.p.unlisten(token)
	r.mu.Lock()
	if r.stop != nil && r.session == session {
		select {
		case <-stop:
		default:
			close(r.stop)
		}
		r.stop = nil
	}
	r.mu.Unlock()
	r.emit(stt.Event{Kind: stt.EventEnd, Session: session})
}

func (r *recognizer) emit(ev stt.Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func appendCopy(results []stt.Result, extra ...stt.Result) []stt.Result {
	out := make([]stt.Result, 0, len(results)+len(extra))
	out = append(out, results...)
	return append(out, extra...)
}

var _ stt.Recognizer = (*recognizer)(nil)
