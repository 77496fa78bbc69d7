package reading

// Playback is the synthesizer state as rendered by the reading screen.
type Playback struct {
	Active bool

	// Word is the index of the word being spoken, or NoWord.
	Word int
}

// Highlighter tracks which reference word the synthesizer is speaking.
type Highlighter struct {
	x     *Index
	state Playback
}

// NewHighlighter returns an inactive highlighter over x.
func NewHighlighter(x *Index) *Highlighter {
	return &Highlighter{x: x, state: Playback{Word: NoWord}}
}

// Start marks playback active and clears the current word.
func (h *Highlighter) Start() {
	h.state = Playback{Active: true, Word: NoWord}
}

// Boundary moves the highlight to the word containing byte offset and returns
// its index.
func (h *Highlighter) Boundary(offset int) int {
	h.state.Word = h.x.WordAt(offset)
	return h.state.Word
}

// Stop marks playback inactive and clears the current word. It covers normal
// completion, cancellation and synthesis errors alike.
func (h *Highlighter) Stop() {
	h.state = Playback{Word: NoWord}
}

// State returns the current playback state.
func (h *Highlighter) State() Playback { return h.state }
