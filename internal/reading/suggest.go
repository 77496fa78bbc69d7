package reading

import "unicode/utf8"

// MaxSuggestions caps the number of suggestions in an Outcome.
const MaxSuggestions = 4

const (
	micThreshold          = 0.5
	completenessThreshold = 0.3
)

// Score bands, lowest first. Each band contributes its suggestions in order.
var bandSuggestions = []struct {
	below int
	tips  []string
}{
	{60, []string{
		"Speak clearly and a little slower, giving each word its full sound.",
		"Practice difficult words on their own before reading the whole sentence.",
	}},
	{75, []string{
		"Project your voice so every word is heard at a steady volume.",
		"Stress the important syllables and finish the ending sounds of each word.",
	}},
	{90, []string{
		"Work on intonation: let your voice rise and fall with the meaning of the sentence.",
		"Read with expression, pausing naturally at commas and full stops.",
	}},
	{101, []string{
		"Excellent pronunciation! Keep up the great work.",
		"Try a longer or more challenging story next.",
	}},
}

const (
	micTip          = "Check your microphone and reduce background noise; the recognizer was unsure of much of what it heard."
	completenessTip = "Try to read the whole passage from beginning to end."
)

// Suggestions returns the practice tips for a finished session, at most
// MaxSuggestions of them: two for the score band, a microphone tip when
// confidences were recorded and their mean is below 0.5, and a completeness
// tip when the transcript is shorter than 30% of the reference.
func Suggestions(score int, confidences []float64, transcript, reference string) []string {
	var out []string
	for _, b := range bandSuggestions {
		if score < b.below {
			out = append(out, b.tips...)
			break
		}
	}
	if len(confidences) > 0 && mean(confidences) < micThreshold {
		out = append(out, micTip)
	}
	if Completeness(transcript, reference) < completenessThreshold {
		out = append(out, completenessTip)
	}
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

// Completeness is the length of transcript relative to reference, in
// characters. It is 1 for an empty reference.
func Completeness(transcript, reference string) float64 {
	n := utf8.RuneCountInString(reference)
	if n == 0 {
		return 1
	}
	return float64(utf8.RuneCountInString(transcript)) / float64(n)
}

// LevelFor returns the speaking level label shown next to a score.
func LevelFor(score int) string {
	switch {
	case score >= 90:
		return "Excellent!"
	case score >= 75:
		return "Great!"
	case score >= 60:
		return "Good"
	default:
		return "Keep Practicing"
	}
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
