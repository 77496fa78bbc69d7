package tts

import (
	"context"
	"errors"
	"sync"
)

// PlayFunc performs one utterance. It reports playback progress through emit
// (EventStart and EventBoundary only) and returns when playback finished,
// failed or ctx was cancelled.
type PlayFunc func(ctx context.Context, id int, emit func(Event)) error

// Runner serialises utterances for Synthesizer implementations: starting an
// utterance cancels the previous one. Events of a cancelled utterance may
// still arrive after the next utterance started; consumers tell them apart by
// Event.Utterance.
type Runner struct {
	mu     sync.Mutex
	seq    int
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewRunner creates a Runner whose event channel has the given buffer size.
func NewRunner(buffer int) *Runner {
	return &Runner{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Play cancels the current utterance and starts play in a new goroutine.
func (r *Runner) Play(ctx context.Context, play PlayFunc) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return 0, errors.New("tts: synthesizer closed")
	default:
	}
	if r.cancel != nil {
		r.cancel()
	}

	r.seq++
	id := r.seq
	uctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		err := play(uctx, id, func(ev Event) {
			ev.Utterance = id
			r.emit(ev)
		})
		if err != nil && uctx.Err() == nil {
			r.emit(Event{Kind: EventError, Utterance: id, Err: err})
			return
		}
		r.emit(Event{Kind: EventEnd, Utterance: id})
	}()
	return id, nil
}

// Cancel stops the current utterance. It is a no-op when nothing is playing.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Events returns the event channel.
func (r *Runner) Events() <-chan Event { return r.events }

// Close cancels playback, waits for it to unwind and closes the event channel.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		close(r.done)
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		r.mu.Unlock()
		r.wg.Wait()
		close(r.events)
	})
	return nil
}

func (r *Runner) emit(ev Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}
