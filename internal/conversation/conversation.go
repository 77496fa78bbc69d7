// Package conversation drives the tutoring chat screen: choose a category,
// choose an exercise, chat with the tutor and finally receive feedback.
//
// A [Session] holds the screen state and publishes a [State] snapshot on its
// event bus (topic [TopicState]) after every change. Model calls are made
// without holding the state lock; a busy flag rejects overlapping actions.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/tutor"
	"github.com/MrWong99/lingotutor/pkg/types"
)

// TopicState is the bus topic on which [State] snapshots are published.
const TopicState = "conversation:state"

// Messages shown in the chat when the tutor cannot answer.
const (
	StartErrorText = "Sorry, I couldn't start the exercise. Please go back and try again."
	SendErrorText  = "Sorry, something went wrong. Please try again."
	openingLine    = "Let's begin."
	feedbackLine   = "Here is your feedback."
)

// endKeywords end a Conversation-category chat when contained in a message.
var endKeywords = []string{"i'm done", "give me feedback", "end chat", "that's all", "end conversation", "stop now"}

var (
	// ErrBusy is returned when an action is attempted while a model call is
	// in flight.
	ErrBusy = errors.New("conversation: busy")

	// ErrWrongStage is returned for an action that the current stage does not
	// accept, e.g. sending a message before an exercise is chosen.
	ErrWrongStage = errors.New("conversation: action not available")
)

// Stage is the screen currently shown.
type Stage int

const (
	StageCategory Stage = iota
	StageExercises
	StageChat
	StageFeedback
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageCategory:
		return "category"
	case StageExercises:
		return "exercises"
	case StageChat:
		return "chat"
	case StageFeedback:
		return "feedback"
	}
	return "unknown"
}

// State is an immutable snapshot of a [Session].
type State struct {
	Stage     Stage
	Category  types.ExerciseCategory
	Exercises []types.ExerciseListItem

	// Exercise is set from StageChat on.
	Exercise *types.Exercise

	// Messages are the chat bubbles in display order.
	Messages []types.ChatMessage

	// Feedback is set in StageFeedback.
	Feedback *types.Feedback

	// Busy is true while a model call is in flight.
	Busy bool

	// Err is an inline error for the selection screens.
	Err string
}

// IsEndRequest reports whether text asks to finish a free conversation.
func IsEndRequest(text string) bool {
	lower := strings.ToLower(text)
	return slices.ContainsFunc(endKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	})
}

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithBus publishes state snapshots on bus instead of a private one.
func WithBus(bus evbus.Bus) Option {
	return func(s *Session) {
		s.bus = bus
	}
}

// WithSpeaker calls speak with every tutor reply and the feedback
// announcement. The terminal host uses it to read replies aloud.
func WithSpeaker(speak func(text string)) Option {
	return func(s *Session) {
		s.speak = speak
	}
}

// Session is the state machine behind the chat screen.
// It is safe for concurrent use.
type Session struct {
	svc   *tutor.Service
	bus   evbus.Bus
	speak func(string)

	mu    sync.Mutex
	state State
	chat  *tutor.Chat

	// gen is bumped by Back so results of abandoned calls are dropped.
	gen int
}

// New returns a Session at the category stage.
func New(svc *tutor.Service, opts ...Option) *Session {
	s := &Session{svc: svc}
	for _, o := range opts {
		o(s)
	}
	if s.bus == nil {
		s.bus = evbus.New()
	}
	if s.speak == nil {
		s.speak = func(string) {}
	}
	return s
}

// Bus returns the bus state snapshots are published on.
func (s *Session) Bus() evbus.Bus { return s.bus }

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SelectCategory loads the exercise list of category. On failure the session
// stays on the category stage with Err set.
func (s *Session) SelectCategory(ctx context.Context, category types.ExerciseCategory) error {
	gen, err := s.begin(StageCategory)
	if err != nil {
		return err
	}
	items, err := s.svc.GenerateExerciseList(ctx, category)

	s.update(gen, func(st *State) {
		st.Busy = false
		if err != nil {
			st.Stage = StageCategory
			st.Err = "Could not fetch exercises. Please try again."
			return
		}
		st.Stage = StageExercises
		st.Category = category
		st.Exercises = items
		st.Err = ""
	})
	if err != nil {
		return fmt.Errorf("conversation: select category: %w", err)
	}
	return nil
}

// SelectExercise opens the chat for the i-th listed exercise and asks the
// tutor for its opening turn. A failed opening is shown as a chat message
// and does not return an error.
func (s *Session) SelectExercise(ctx context.Context, i int) error {
	s.mu.Lock()
	if s.state.Stage != StageExercises || s.state.Busy {
		err := s.stageErr(StageExercises)
		s.mu.Unlock()
		return err
	}
	if i < 0 || i >= len(s.state.Exercises) {
		s.mu.Unlock()
		return fmt.Errorf("conversation: select exercise: index %d out of range", i)
	}
	item, category, gen := s.state.Exercises[i], s.state.Category, s.gen
	s.state.Busy = true
	s.state.Err = ""
	s.publishLocked()
	s.mu.Unlock()

	ex, err := s.svc.ExerciseDetails(ctx, item, category)
	if err != nil {
		s.update(gen, func(st *State) {
			st.Busy = false
			st.Err = "Could not load the exercise. Please try again."
		})
		return fmt.Errorf("conversation: select exercise: %w", err)
	}

	chat := s.svc.NewChat(ex)
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.chat = chat
	s.state.Stage = StageChat
	s.state.Exercise = &ex
	s.state.Messages = nil
	s.state.Feedback = nil
	s.publishLocked()
	s.mu.Unlock()

	reply, err := chat.Send(ctx, openingLine)
	if err != nil {
		observe.Logger(ctx).Warn("conversation: opening turn failed", "err", err)
		reply = types.ChatMessage{ID: "error-start", Role: types.RoleAssistant, Text: StartErrorText}
	} else {
		s.speak(reply.Text)
	}
	s.update(gen, func(st *State) {
		st.Busy = false
		st.Messages = []types.ChatMessage{reply}
	})
	return nil
}

// Send submits a learner message. In a Conversation-category chat, a
// message containing an end keyword finishes the chat instead and ended is
// true. A failed reply is shown as a chat message and does not return an
// error. Blank text is ignored.
func (s *Session) Send(ctx context.Context, text string) (ended bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	s.mu.Lock()
	if s.state.Stage != StageChat || s.state.Busy {
		err := s.stageErr(StageChat)
		s.mu.Unlock()
		return false, err
	}
	if s.state.Exercise.Category == types.CategoryConversation && IsEndRequest(text) {
		s.mu.Unlock()
		return true, s.End(ctx)
	}
	chat, gen := s.chat, s.gen
	s.state.Messages = append(slices.Clip(s.state.Messages), types.ChatMessage{
		ID:   uuid.NewString(),
		Role: types.RoleUser,
		Text: text,
	})
	s.state.Busy = true
	s.publishLocked()
	s.mu.Unlock()

	reply, err := chat.Send(ctx, text)
	if err != nil {
		observe.Logger(ctx).Warn("conversation: send failed", "err", err)
		reply = types.ChatMessage{ID: "error-send", Role: types.RoleAssistant, Text: SendErrorText}
	} else {
		s.speak(reply.Text)
	}
	s.update(gen, func(st *State) {
		st.Busy = false
		st.Messages = append(slices.Clip(st.Messages), reply)
	})
	return false, nil
}

// End finishes the chat. Without any learner message the session returns to
// the category stage; otherwise the tutor's feedback is fetched and shown.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Stage != StageChat || s.state.Busy {
		err := s.stageErr(StageChat)
		s.mu.Unlock()
		return err
	}
	spoke := slices.ContainsFunc(s.state.Messages, func(m types.ChatMessage) bool {
		return m.Role == types.RoleUser
	})
	if !spoke {
		s.mu.Unlock()
		s.Back()
		return nil
	}
	history, gen := slices.Clone(s.state.Messages), s.gen
	s.state.Busy = true
	s.publishLocked()
	s.mu.Unlock()

	fb := s.svc.Feedback(ctx, history)
	if s.update(gen, func(st *State) {
		st.Busy = false
		st.Stage = StageFeedback
		st.Feedback = &fb
	}) {
		s.speak(feedbackLine)
	}
	return nil
}

// Back returns to the category stage and drops the chat. A model call still
// in flight is abandoned and its result discarded.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.chat = nil
	s.state = State{Stage: StageCategory}
	s.publishLocked()
}

// begin marks the session busy if it is idle at stage want.
func (s *Session) begin(want Stage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Stage != want || s.state.Busy {
		return 0, s.stageErr(want)
	}
	s.state.Busy = true
	s.state.Err = ""
	s.publishLocked()
	return s.gen, nil
}

// stageErr must be called with mu held.
func (s *Session) stageErr(want Stage) error {
	if s.state.Busy {
		return ErrBusy
	}
	return fmt.Errorf("%w: at stage %s, want %s", ErrWrongStage, s.state.Stage, want)
}

// update applies fn and publishes unless Back was called since gen was read.
func (s *Session) update(gen int, fn func(*State)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	fn(&s.state)
	s.publishLocked()
	return true
}

// publishLocked publishes the current snapshot. Subscribers run on the
// publishing goroutine and must not call back into the Session.
func (s *Session) publishLocked() {
	s.bus.Publish(TopicState, s.snapshotLocked())
}

func (s *Session) snapshotLocked() State {
	st := s.state
	st.Exercises = slices.Clone(st.Exercises)
	st.Messages = slices.Clone(st.Messages)
	return st
}
