package tts

import (
	"strings"
	"unicode"
)

// EventKind discriminates the events emitted by a Synthesizer.
type EventKind int

const (
	// EventStart marks the beginning of audible playback.
	EventStart EventKind = iota

	// EventBoundary marks the start of a spoken word.
	EventBoundary

	// EventEnd is the terminal event of a completed or cancelled utterance.
	EventEnd

	// EventError is the terminal event of a failed utterance.
	EventError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventBoundary:
		return "boundary"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a single synthesizer notification.
type Event struct {
	Kind EventKind

	// Utterance is the id returned by the Speak call that produced the event.
	Utterance int

	// CharIndex is the byte offset into the spoken text of the word that
	// begins at this boundary. Only set for EventBoundary.
	CharIndex int

	// Err is set for EventError.
	Err error
}

// WordStarts returns the byte offset of every whitespace-separated word of text.
func WordStarts(text string) []int {
	var starts []int
	inWord := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && !inWord {
			starts = append(starts, i)
		}
		inWord = !space
	}
	return starts
}

// PickVoice returns the first voice whose language shares lang's primary
// subtag and whose name or metadata contains any of hints, falling back to the
// first voice of that language. ok is false when no voice speaks the language.
func PickVoice(voices []Voice, lang string, hints []string) (v Voice, ok bool) {
	primary := strings.ToLower(lang)
	if i := strings.IndexAny(primary, "-_"); i >= 0 {
		primary = primary[:i]
	}

	var fallback *Voice
	for i := range voices {
		cand := &voices[i]
		if !strings.HasPrefix(strings.ToLower(cand.Language), primary) {
			continue
		}
		if fallback == nil {
			fallback = cand
		}
		if matchesHint(cand, hints) {
			return *cand, true
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Voice{}, false
}

func matchesHint(v *Voice, hints []string) bool {
	name := strings.ToLower(v.Name)
	for _, h := range hints {
		h = strings.ToLower(h)
		if h == "" {
			continue
		}
		if strings.Contains(name, h) {
			return true
		}
		for _, val := range v.Metadata {
			if strings.EqualFold(val, h) {
				return true
			}
		}
	}
	return false
}
