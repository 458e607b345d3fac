package transcript

import (
	"sync"

	"VoiceChat/internal/session"
)

// Renderer displays transcript entries. Render is called once per turn in
// arrival order.
type Renderer interface {
	Reset()
	Render(turn session.Turn)
	ScrollToLatest()
}

// Transcript is the ordered list of turns shown for the active session.
// It never reorders or deduplicates.
type Transcript struct {
	mu       sync.Mutex
	turns    []session.Turn
	renderer Renderer
}

// New creates an empty transcript. A nil renderer discards output.
func New(r Renderer) *Transcript {
	if r == nil {
		r = nopRenderer{}
	}
	return &Transcript{renderer: r}
}

// Reset clears all turns and the rendered view.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
	t.renderer.Reset()
}

// Append adds turn to the end and renders only that entry.
func (t *Transcript) Append(turn session.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
	t.renderer.Render(turn)
	t.renderer.ScrollToLatest()
}

// LoadAll replaces the whole transcript.
func (t *Transcript) LoadAll(turns []session.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append([]session.Turn(nil), turns...)
	t.renderer.Reset()
	for _, turn := range t.turns {
		t.renderer.Render(turn)
	}
	t.renderer.ScrollToLatest()
}

// Turns returns a copy of the current turns.
func (t *Transcript) Turns() []session.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]session.Turn(nil), t.turns...)
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}

type nopRenderer struct{}

func (nopRenderer) Reset()              {}
func (nopRenderer) Render(session.Turn) {}
func (nopRenderer) ScrollToLatest()     {}
