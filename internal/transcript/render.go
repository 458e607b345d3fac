package transcript

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"VoiceChat/internal/session"
)

var (
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9C27B0"))
)

// Label returns the speaker label shown in front of a turn.
func Label(role session.Role) string {
	if role == session.RoleUser {
		return "You"
	}
	return "AI"
}

// FormatTurn renders a turn as one styled line.
func FormatTurn(turn session.Turn) string {
	style := assistantLabelStyle
	if turn.Role == session.RoleUser {
		style = userLabelStyle
	}
	return fmt.Sprintf("%s %s", style.Render(Label(turn.Role)+":"), turn.Content)
}

// WriterRenderer prints each turn on its own line. A terminal scrolls by
// itself, so ScrollToLatest is a no-op.
type WriterRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterRenderer(w io.Writer) *WriterRenderer {
	return &WriterRenderer{w: w}
}

func (r *WriterRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, "--- conversation cleared ---")
}

func (r *WriterRenderer) Render(turn session.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, FormatTurn(turn))
}

func (r *WriterRenderer) ScrollToLatest() {}
