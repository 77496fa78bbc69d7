package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingotutor/internal/conversation"
	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	"github.com/MrWong99/lingotutor/pkg/types"
)

var categories = []types.ExerciseCategory{
	types.CategoryGrammar,
	types.CategoryVocabulary,
	types.CategoryConversation,
}

const chatHelp = "Type a message to reply. Commands: /mic, /stop, /end, /back, /quit"

// runChat drives the tutoring chat until the learner quits.
func (a *App) runChat(ctx context.Context, lines <-chan string) error {
	var sessOpts []conversation.Option
	if a.config().Chat.Speak {
		spk, err := a.newSpeaker(ctx, a.config().Chat.Language, 1)
		if err != nil {
			return fmt.Errorf("app: chat: %w", err)
		}
		sessOpts = append(sessOpts, conversation.WithSpeaker(func(text string) { spk.say(ctx, text) }))
	}
	sess := conversation.New(a.tutor, sessOpts...)

	v := &chatView{app: a}
	if err := sess.Bus().Subscribe(conversation.TopicState, v.render); err != nil {
		return fmt.Errorf("app: chat: subscribe: %w", err)
	}
	defer func() { _ = sess.Bus().Unsubscribe(conversation.TopicState, v.render) }()

	submit := make(chan string, 1)
	dict, err := conversation.NewDictation(a.providers.STT, a.config().Chat.Language,
		conversation.OnText(func(text string) {
			if text != "" {
				a.printf("... %s\n", text)
			}
		}),
		conversation.OnSubmit(func(text string) {
			select {
			case submit <- text:
			case <-ctx.Done():
			}
		}),
		conversation.WithDictationMetrics(a.metrics),
	)
	switch {
	case errors.Is(err, stt.ErrUnsupported):
		observe.Logger(ctx).Info("app: dictation unavailable", "err", err)
		dict = nil
	case err != nil:
		return fmt.Errorf("app: chat: %w", err)
	default:
		a.closers = append(a.closers, dict.Close)
	}

	v.render(sess.State())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	if dict != nil {
		g.Go(func() error {
			dict.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		c := &chatInput{app: a, sess: sess, dict: dict}
		return c.loop(gctx, lines, submit)
	})
	return g.Wait()
}

// chatInput routes input lines and dictated text to the session.
type chatInput struct {
	app  *App
	sess *conversation.Session
	dict *conversation.Dictation
}

func (c *chatInput) loop(ctx context.Context, lines <-chan string, submit <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-submit:
			c.send(ctx, text)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.onLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *chatInput) onLine(ctx context.Context, line string) (quit bool) {
	a := c.app
	name, _, isCmd := command(line)
	if isCmd {
		switch name {
		case "quit", "q":
			return true
		case "back", "b":
			c.stopDictation()
			c.sess.Back()
		case "end":
			c.stopDictation()
			c.report(c.sess.End(ctx))
		case "mic", "m":
			c.startDictation(ctx)
		case "stop", "s":
			c.stopDictation()
		default:
			a.println(chatHelp)
		}
		return false
	}

	text := strings.TrimSpace(line)
	st := c.sess.State()
	switch st.Stage {
	case conversation.StageCategory:
		cat, ok := parseCategory(text)
		if !ok {
			a.println("Enter 1, 2 or 3.")
			return false
		}
		c.report(c.sess.SelectCategory(ctx, cat))
	case conversation.StageExercises:
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > len(st.Exercises) {
			a.printf("Enter a number between 1 and %d, or /back.\n", len(st.Exercises))
			return false
		}
		c.report(c.sess.SelectExercise(ctx, n-1))
	case conversation.StageChat:
		if c.dict != nil && c.dict.Listening() {
			if text != "" && !a.forwardSpeech(text) {
				a.println("Speak into the microphone.")
			}
			return false
		}
		c.send(ctx, text)
	case conversation.StageFeedback:
		c.sess.Back()
	}
	return false
}

func (c *chatInput) send(ctx context.Context, text string) {
	_, err := c.sess.Send(ctx, text)
	c.report(err)
}

func (c *chatInput) startDictation(ctx context.Context) {
	a := c.app
	if c.dict == nil {
		a.println("Speech recognition is not available.")
		return
	}
	if c.sess.State().Stage != conversation.StageChat || c.dict.Listening() {
		return
	}
	if err := c.dict.Start(ctx); err != nil {
		a.printf("Error: %v\n", err)
		return
	}
	a.println("Listening... type /stop to send.")
}

func (c *chatInput) stopDictation() {
	if c.dict != nil && c.dict.Listening() {
		c.dict.Stop()
	}
}

func (c *chatInput) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrBusy):
		c.app.println("The tutor is still thinking.")
	case errors.Is(err, conversation.ErrWrongStage):
		c.app.println("That is not available here.")
	default:
		c.app.printf("Error: %v\n", err)
	}
}

// parseCategory accepts a list number or a category name.
func parseCategory(s string) (types.ExerciseCategory, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(categories) {
			return "", false
		}
		return categories[n-1], true
	}
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// chatView renders conversation states as they change.
type chatView struct {
	app *App

	mu       sync.Mutex
	rendered bool
	stage    conversation.Stage
	busy     bool
	shown    int
	err      string
}

func (v *chatView) render(s conversation.State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a := v.app

	if !v.rendered || s.Stage != v.stage {
		v.rendered, v.stage, v.shown = true, s.Stage, 0
		switch s.Stage {
		case conversation.StageCategory:
			a.println("\nChoose a category:")
			for i, c := range categories {
				a.printf("  %d. %s\n", i+1, c)
			}
		case conversation.StageExercises:
			a.printf("\n%s exercises:\n", s.Category)
			for i, ex := range s.Exercises {
				a.printf("  %d. %s - %s\n", i+1, ex.Title, ex.Description)
			}
		case conversation.StageChat:
			if s.Exercise != nil {
				a.printf("\n%s\n%s\n", s.Exercise.Title, s.Exercise.Description)
				if s.Exercise.Example != "" {
					a.printf("Example: %s\n", s.Exercise.Example)
				}
			}
			a.println(chatHelp)
		case conversation.StageFeedback:
			if fb := s.Feedback; fb != nil {
				a.printf("\nFeedback: %d/100\n  Grammar: %s\n  Vocabulary: %s\n  Fluency: %s\n", fb.Score, fb.Grammar, fb.Vocabulary, fb.Fluency)
			}
			a.println("Press Enter to start again.")
		}
	}

	if s.Stage == conversation.StageChat {
		for _, m := range s.Messages[min(v.shown, len(s.Messages)):] {
			if m.Role == types.RoleUser {
				a.printf("You: %s\n", m.Text)
			} else {
				a.printf("Tutor: %s\n", m.Text)
			}
		}
		v.shown = len(s.Messages)
	}

	if s.Busy && !v.busy {
		a.println("(thinking...)")
	}
	v.busy = s.Busy

	if s.Err != "" && s.Err != v.err {
		a.println(s.Err)
	}
	v.err = s.Err
}
