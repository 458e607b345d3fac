package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"VoiceChat/internal/agent"
	"VoiceChat/internal/session"
)

// LockedWriter serializes writes from the controller goroutine and the
// command loop.
type LockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewLockedWriter(w io.Writer) *LockedWriter {
	return &LockedWriter{w: w}
}

func (l *LockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// LineView prints controller updates as plain lines, for terminals where the
// full-screen UI is unavailable. Controls are printed only when they change.
type LineView struct {
	out  io.Writer
	mu   sync.Mutex
	last agent.Controls
	seen bool
}

func NewLineView(out io.Writer) *LineView {
	return &LineView{out: out}
}

func (v *LineView) SetStatus(s agent.Status) {
	prefix := ""
	switch s.Kind {
	case agent.StatusError:
		prefix = "Error: "
	case agent.StatusWarning:
		prefix = "Warning: "
	}
	fmt.Fprintf(v.out, "* %s%s\n", prefix, s.Message)
}

func (v *LineView) SetControls(c agent.Controls) {
	v.mu.Lock()
	changed := !v.seen || c != v.last
	v.last, v.seen = c, true
	v.mu.Unlock()
	if !changed {
		return
	}
	auto := "off"
	if c.AutoRecording {
		auto = "on"
	}
	fmt.Fprintf(v.out, "  [%s] start:%t stop:%t auto:%s\n", c.Phase, c.StartEnabled, c.StopEnabled, auto)
}

func (v *LineView) SetSession(id session.ID, link string) {
	fmt.Fprintf(v.out, "Session: %s\n", id)
	if link != "" {
		fmt.Fprintf(v.out, "Share this link to resume: %s\n", link)
	}
}

func (v *LineView) NowPlaying(source string) {
	fmt.Fprintf(v.out, "  playing %s\n", source)
}

// LineMode is the /command loop over a plain reader and writer.
type LineMode struct {
	dispatch func(agent.Action)
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger
}

func NewLineMode(dispatch func(agent.Action), in io.Reader, out io.Writer, logger *slog.Logger) *LineMode {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineMode{dispatch: dispatch, in: in, out: out, logger: logger}
}

var lineCommands = map[string]agent.Action{
	"/start":       agent.ActionStart,
	"/stop":        agent.ActionStop,
	"/cancel":      agent.ActionCancel,
	"/auto":        agent.ActionToggleAuto,
	"/new-session": agent.ActionNewSession,
	"/clear":       agent.ActionClearHistory,
	"/reload":      agent.ActionReloadHistory,
}

// handleCommand handles one input line. An empty line toggles recording
// through start and stop so a single key drives a conversation.
func (l *LineMode) handleCommand(input string, recording bool) (bool, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		if recording {
			l.dispatch(agent.ActionStop)
		} else {
			l.dispatch(agent.ActionStart)
		}
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(l.out, "Available commands:")
		fmt.Fprintln(l.out, "  <enter>        - Start recording, or stop and send")
		fmt.Fprintln(l.out, "  /start         - Start recording")
		fmt.Fprintln(l.out, "  /stop          - Stop recording and send, or stop playback")
		fmt.Fprintln(l.out, "  /cancel        - Discard the current recording")
		fmt.Fprintln(l.out, "  /auto          - Toggle auto recording")
		fmt.Fprintln(l.out, "  /new-session   - Start a new conversation")
		fmt.Fprintln(l.out, "  /clear         - Clear the conversation history")
		fmt.Fprintln(l.out, "  /reload        - Reload the conversation history")
		fmt.Fprintln(l.out, "  /quit, /exit   - Exit")
		return false, nil
	}

	action, ok := lineCommands[parts[0]]
	if !ok {
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
	l.dispatch(action)
	return false, nil
}

// Run reads commands until /quit, end of input or ctx cancellation. view
// reports whether a capture is active so a bare enter can stop it.
func (l *LineMode) Run(ctx context.Context, view *LineView) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(l.out, "=== Voice Chat ===")
	fmt.Fprintln(l.out, "Press enter to talk, enter again to send. Type /help for commands, /quit to exit")
	fmt.Fprintln(l.out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(l.in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case input, ok := <-lines:
			if !ok {
				return nil
			}
			shouldQuit, err := l.handleCommand(input, view.recording())
			if err != nil {
				fmt.Fprintf(l.out, "Error: %v\n", err)
				l.logger.Warn("command error", "error", err)
			}
			if shouldQuit {
				fmt.Fprintln(l.out, "Goodbye!")
				return nil
			}
		}
	}
}

func (v *LineView) recording() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last.StopEnabled && v.last.Phase != agent.PhaseScheduled
}

// RunLine runs the controller behind the /command loop until the user quits.
func RunLine(ctx context.Context, ctl *agent.Controller, view *LineView, in io.Reader, out io.Writer, logger *slog.Logger) error {
	ctlCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctlCtx) }()

	err := NewLineMode(ctl.Dispatch, in, out, logger).Run(ctx, view)
	cancel()
	<-done
	return err
}
