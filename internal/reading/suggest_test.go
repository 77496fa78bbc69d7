package reading_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/lingotutor/internal/reading"
)

func TestSuggestions(t *testing.T) {
	t.Parallel()

	ref := strings.Repeat("word ", 20) // 100 characters
	full := ref
	short := "word word" // 9%

	tests := []struct {
		name        string
		score       int
		confidences []float64
		transcript  string
		wantN       int
		wantMic     bool
		wantWhole   bool
		wantFirst   string
	}{
		{"low band", 40, nil, full, 2, false, false, "Speak clearly"},
		{"mid band", 60, nil, full, 2, false, false, "Project your voice"},
		{"upper band", 89, nil, full, 2, false, false, "Work on intonation"},
		{"top band", 90, nil, full, 2, false, false, "Excellent pronunciation"},
		{"mic tip", 30, []float64{0.3, 0.4}, full, 3, true, false, "Speak clearly"},
		{"no mic tip without confidences", 30, nil, full, 2, false, false, "Speak clearly"},
		{"completeness tip", 95, nil, short, 3, false, true, "Excellent pronunciation"},
		{"capped at four", 20, []float64{0.1}, short, 4, true, true, "Speak clearly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := reading.Suggestions(tt.score, tt.confidences, tt.transcript, ref)
			if len(got) != tt.wantN {
				t.Fatalf("got %d suggestions %v, want %d", len(got), got, tt.wantN)
			}
			if !strings.HasPrefix(got[0], tt.wantFirst) {
				t.Errorf("first = %q, want prefix %q", got[0], tt.wantFirst)
			}
			hasMic := slices.ContainsFunc(got, func(s string) bool { return strings.Contains(s, "microphone") })
			hasWhole := slices.ContainsFunc(got, func(s string) bool { return strings.Contains(s, "whole passage") })
			if hasMic != tt.wantMic || hasWhole != tt.wantWhole {
				t.Errorf("mic=%v whole=%v, want mic=%v whole=%v", hasMic, hasWhole, tt.wantMic, tt.wantWhole)
			}
			if hasMic && hasWhole && slices.IndexFunc(got, func(s string) bool { return strings.Contains(s, "microphone") }) > slices.IndexFunc(got, func(s string) bool { return strings.Contains(s, "whole passage") }) {
				t.Error("microphone tip must precede the completeness tip")
			}
		})
	}
}

func TestLevelFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  string
	}{
		{100, "Excellent!"},
		{90, "Excellent!"},
		{89, "Great!"},
		{75, "Great!"},
		{74, "Good"},
		{60, "Good"},
		{59, "Keep Practicing"},
		{0, "Keep Practicing"},
	}
	for _, tt := range tests {
		if got := reading.LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestCompleteness(t *testing.T) {
	t.Parallel()

	if got := reading.Completeness("abc", ""); got != 1 {
		t.Errorf("empty reference = %v, want 1", got)
	}
	if got := reading.Completeness("ab", "abcd"); got != 0.5 {
		t.Errorf("Completeness = %v, want 0.5", got)
	}
}
