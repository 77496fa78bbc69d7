package stt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EventKind discriminates the events emitted by a Recognizer.
type EventKind int

const (
	// EventResult carries the current list of results of the session.
	EventResult EventKind = iota

	// EventEnd is the terminal event of a session.
	EventEnd

	// EventError reports a recognition failure. An EventEnd follows it.
	EventError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Alternative is one candidate transcription of a result.
type Alternative struct {
	Transcript string

	// Confidence is the recogniser's confidence in [0,1]. Zero when the backend
	// does not report confidence.
	Confidence float64
}

// Result is one recognised segment. Alternatives are ordered most likely first.
type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Best returns the most likely alternative, or the zero Alternative when the
// result has none.
func (r Result) Best() Alternative {
	if len(r.Alternatives) == 0 {
		return Alternative{}
	}
	return r.Alternatives[0]
}

// Event is a single recognizer notification.
type Event struct {
	Kind EventKind

	// Session is the number of the session that produced the event.
	Session int

	// Results is set for EventResult: every result of the session so far.
	Results []Result

	// Err is set for EventError.
	Err *RecognitionError
}

// Transcript concatenates the best alternative of every result, inserting a
// single space where two segments would otherwise run together.
func Transcript(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		t := r.Best().Transcript
		if t == "" {
			continue
		}
		if b.Len() > 0 && !endsWithSpace(b.String()) && !startsWithSpace(t) {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	return b.String()
}

// FinalConfidences returns the best-alternative confidence of every final result.
func FinalConfidences(results []Result) []float64 {
	var out []float64
	for _, r := range results {
		if r.IsFinal {
			out = append(out, r.Best().Confidence)
		}
	}
	return out
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}
