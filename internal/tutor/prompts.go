package tutor

import (
	"fmt"
	"strings"

	"github.com/MrWong99/lingotutor/pkg/types"
)

const storiesSystemPrompt = "You are an English teacher creating short stories for intermediate learners. " +
	"Always respond with valid JSON containing an array of stories."

const storiesPrompt = "Generate exactly 3 short stories for intermediate English learners. " +
	"Each story should be 50-70 words. Return as JSON array with 'title' and 'content' fields."

const exercisesSystemPrompt = "You are an English teacher creating exercises. " +
	"Always respond with valid JSON containing an array of exercises."

const feedbackSystemPrompt = "You are an English teacher evaluating a student's conversation. " +
	"You must respond with valid JSON containing exactly these fields: " +
	"score (number 0-100), grammar (string), vocabulary (string), fluency (string)."

func translatePrompt(text string) string {
	return fmt.Sprintf("Translate the following sentence from Urdu to English: %q. "+
		"Reply with the English translation only.", text)
}

func exerciseListPrompt(category types.ExerciseCategory) string {
	if category == types.CategoryConversation {
		return "Generate a list of 4 engaging and open-ended conversation topics for an intermediate English learner. " +
			"Ensure the topics are varied and different from what you might have provided before. " +
			"For each, provide a title and a one-sentence description."
	}
	return fmt.Sprintf("Generate a list of 4 simple English learning exercise ideas for an intermediate learner in the %q category. "+
		"Ensure the exercises are varied and different from what you might have provided before. "+
		"For each, provide a title and a one-sentence description.", category)
}

func exerciseDetailsPrompt(item types.ExerciseListItem, category types.ExerciseCategory) string {
	return fmt.Sprintf(`Flesh out this English learning exercise:
- Category: %q
- Title: %q
- Task: %q

Provide a detailed description of the task and a clear example for the user to follow.
Return a JSON object with the fields "category", "title", "description" and "example".
The category in your response must be exactly %q.`, category, item.Title, item.Description, category)
}

// SystemPrompt returns the chat instruction for ex. Conversation topics get a
// chat partner that never corrects the learner; other exercises get a tutor
// that corrects gently by modelling the right form.
func SystemPrompt(ex types.Exercise) string {
	if ex.Category == types.CategoryConversation {
		return fmt.Sprintf("You are a friendly and engaging conversational partner. "+
			"The user wants to practice speaking about: %q. "+
			"Your goal is to have a natural, flowing conversation. Ask questions, share your own 'thoughts' (as an AI), "+
			"and encourage the user to elaborate. Do NOT correct their grammar or vocabulary during the conversation. "+
			"Just be a good chat buddy. Keep your responses friendly and concise.", ex.Title)
	}
	return fmt.Sprintf(`You are a friendly and patient English tutor. The user has selected the following exercise:
- Category: %s
- Title: %q
- Task: %q

Your role is to guide the user through this exercise. Start the conversation by introducing the exercise. `+
		`Have a natural conversation related to the exercise. Keep your responses concise and encouraging. `+
		`If the user makes a mistake relevant to the exercise, gently correct them by modeling the correct form in your response. `+
		`When you feel the exercise is complete, you can say something like "Great job! Feel free to go back and try another exercise."`,
		ex.Category, ex.Title, ex.Description)
}

func feedbackPrompt(history []types.ChatMessage) string {
	var b strings.Builder
	b.WriteString(`Analyze the following chat history and provide feedback. Return ONLY valid JSON with these exact fields:
{
  "score": <number between 0-100>,
  "grammar": "<brief feedback on grammar>",
  "vocabulary": "<brief feedback on vocabulary>",
  "fluency": "<brief feedback on fluency>"
}

Chat History:
`)
	for _, m := range history {
		speaker := "Tutor"
		if m.Role == types.RoleUser {
			speaker = "Student"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
