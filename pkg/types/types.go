// Package types defines the shared types used across lingotutor packages.
//
// These types form the lingua franca between providers, the reading engine,
// the tutor service and the terminal host. Each package defines its own domain
// types; cross-cutting data structures live here to avoid circular imports.
package types

// Story is a short reference passage the learner reads aloud.
// A Story is immutable once loaded.
type Story struct {
	// Title is the display title of the story.
	Title string `json:"title"`

	// Content is the full passage text.
	Content string `json:"content"`
}

// ExerciseCategory groups tutoring exercises.
type ExerciseCategory string

const (
	CategoryGrammar      ExerciseCategory = "Grammar"
	CategoryVocabulary   ExerciseCategory = "Vocabulary"
	CategoryConversation ExerciseCategory = "Conversation"
)

// IsValid reports whether c is a recognised exercise category.
func (c ExerciseCategory) IsValid() bool {
	switch c {
	case CategoryGrammar, CategoryVocabulary, CategoryConversation:
		return true
	}
	return false
}

// ExerciseListItem is a short exercise summary shown in a selection list.
type ExerciseListItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Exercise is the fleshed-out version of an [ExerciseListItem] that drives a
// tutoring chat.
type Exercise struct {
	Category    ExerciseCategory `json:"category"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Example     string           `json:"example"`
}

// Feedback is the tutor's evaluation of a finished conversation.
type Feedback struct {
	// Score is the overall performance score in [0, 100].
	Score int `json:"score"`

	Grammar    string `json:"grammar"`
	Vocabulary string `json:"vocabulary"`
	Fluency    string `json:"fluency"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry in a tutoring chat transcript.
type ChatMessage struct {
	// ID uniquely identifies the message within a chat.
	ID string

	Role Role
	Text string
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role Role

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the model can be constrained to emit a JSON object.
	SupportsJSONMode bool
}
