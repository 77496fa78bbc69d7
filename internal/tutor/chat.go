package tutor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/lingotutor/pkg/provider/llm"
	"github.com/MrWong99/lingotutor/pkg/types"
)

// Chat is a tutoring conversation about one exercise. It keeps the full
// history sent to the model. Sends are serialised so replies stay in order.
type Chat struct {
	svc      *Service
	exercise types.Exercise
	system   string

	mu      sync.Mutex
	history []types.ChatMessage
}

// NewChat starts an empty chat about ex.
func (s *Service) NewChat(ex types.Exercise) *Chat {
	return &Chat{
		svc:      s,
		exercise: ex,
		system:   SystemPrompt(ex),
	}
}

// Exercise returns the exercise the chat is about.
func (c *Chat) Exercise() types.Exercise { return c.exercise }

// Send appends text as a user turn, asks the model for the next tutor turn and
// returns it. When the request fails the user turn is withdrawn so the same
// text can be sent again.
func (c *Chat) Send(ctx context.Context, text string) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ChatMessage{}, fmt.Errorf("tutor: chat send: %w", ErrEmptyText)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, types.ChatMessage{
		ID:   uuid.NewString(),
		Role: types.RoleUser,
		Text: text,
	})
	msgs := make([]types.Message, len(c.history))
	for i, m := range c.history {
		msgs[i] = types.Message{Role: m.Role, Content: m.Text}
	}

	content, err := c.svc.complete(ctx, "chat", llm.CompletionRequest{
		SystemPrompt: c.system,
		Messages:     msgs,
	})
	if err != nil {
		c.history = c.history[:len(c.history)-1]
		return types.ChatMessage{}, fmt.Errorf("tutor: chat send: %w", err)
	}

	reply := types.ChatMessage{
		ID:   uuid.NewString(),
		Role: types.RoleAssistant,
		Text: strings.TrimSpace(content),
	}
	c.history = append(c.history, reply)
	return reply, nil
}

// History returns a copy of every turn exchanged so far.
func (c *Chat) History() []types.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ChatMessage, len(c.history))
	copy(out, c.history)
	return out
}
