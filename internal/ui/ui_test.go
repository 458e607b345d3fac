package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceChat/internal/agent"
	"VoiceChat/internal/session"
)

type dispatched struct {
	mu      sync.Mutex
	actions []agent.Action
}

func (d *dispatched) dispatch(a agent.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, a)
}

func (d *dispatched) all() []agent.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]agent.Action(nil), d.actions...)
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func sized(t *testing.T, d *dispatched) Model {
	m := NewModel(d.dispatch)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func TestModelKeysFollowControls(t *testing.T) {
	d := &dispatched{}
	m := sized(t, d)

	// nothing is enabled before the controller publishes controls
	_, cmd := update(t, m, keyMsg("r"))
	assert.Nil(t, cmd)

	m, _ = update(t, m, controlsMsg(agent.Controls{Phase: agent.PhaseIdle, StartEnabled: true}))
	_, cmd = update(t, m, keyMsg("r"))
	require.NotNil(t, cmd)
	cmd()
	_, cmd = update(t, m, keyMsg("s"))
	assert.Nil(t, cmd, "stop is disabled while idle")

	m, _ = update(t, m, controlsMsg(agent.Controls{Phase: agent.PhaseRecording, StopEnabled: true}))
	_, cmd = update(t, m, keyMsg("enter"))
	require.NotNil(t, cmd)
	cmd()
	_, cmd = update(t, m, keyMsg("esc"))
	require.NotNil(t, cmd)
	cmd()

	for _, k := range []string{"a", "n", "x", "l"} {
		_, cmd = update(t, m, keyMsg(k))
		require.NotNil(t, cmd, k)
		cmd()
	}

	assert.Equal(t, []agent.Action{
		agent.ActionStart,
		agent.ActionStop,
		agent.ActionCancel,
		agent.ActionToggleAuto,
		agent.ActionNewSession,
		agent.ActionClearHistory,
		agent.ActionReloadHistory,
	}, d.all())
}

func TestModelRendersTranscriptInOrder(t *testing.T) {
	m := sized(t, &dispatched{})
	m, _ = update(t, m, sessionMsg{id: "session_1_abcdefghi", link: "http://127.0.0.1:8000/?session_id=session_1_abcdefghi"})
	m, _ = update(t, m, turnMsg(session.Turn{Role: session.RoleUser, Content: "first"}))
	m, _ = update(t, m, turnMsg(session.Turn{Role: session.RoleAssistant, Content: "second"}))
	m, _ = update(t, m, scrollMsg{})
	m, _ = update(t, m, statusMsg(agent.Status{Kind: agent.StatusSuccess, Message: "AI responded! (2 messages)"}))

	view := m.View()
	assert.Contains(t, view, "session_1_abcdefghi")
	assert.Contains(t, view, "AI responded! (2 messages)")
	first, second := strings.Index(view, "first"), strings.Index(view, "second")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)

	m, _ = update(t, m, resetMsg{})
	assert.NotContains(t, m.View(), "first")
	assert.Contains(t, m.View(), "No messages yet")
}

func TestModelQuit(t *testing.T) {
	m := sized(t, &dispatched{})
	_, cmd := update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestBridgeForwardsUpdates(t *testing.T) {
	var got []tea.Msg
	b := &Bridge{send: func(msg tea.Msg) { got = append(got, msg) }}
	b.SetStatus(agent.Status{Message: "Ready"})
	b.SetControls(agent.Controls{StartEnabled: true})
	b.SetSession("session_1_abcdefghi", "")
	b.NowPlaying("/a.mp3")
	b.Reset()
	b.Render(session.Turn{Role: session.RoleUser, Content: "hi"})
	b.ScrollToLatest()

	require.Len(t, got, 7)
	assert.Equal(t, statusMsg(agent.Status{Message: "Ready"}), got[0])
	assert.Equal(t, playingMsg("/a.mp3"), got[3])
	assert.Equal(t, turnMsg(session.Turn{Role: session.RoleUser, Content: "hi"}), got[5])

	// an unattached bridge drops updates
	assert.NotPanics(t, func() { NewBridge().SetStatus(agent.Status{}) })
}

func TestLineModeCommands(t *testing.T) {
	d := &dispatched{}
	var out bytes.Buffer
	view := NewLineView(&out)
	in := strings.NewReader("/start\n\n/auto\n/bogus\n/help\n/quit\n/stop\n")

	err := NewLineMode(d.dispatch, in, &out, nil).Run(context.Background(), view)
	require.NoError(t, err)

	// the bare line is a start because the view never reported a capture
	assert.Equal(t, []agent.Action{agent.ActionStart, agent.ActionStart, agent.ActionToggleAuto}, d.all())
	assert.Contains(t, out.String(), "unknown command: /bogus")
	assert.Contains(t, out.String(), "/new-session")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestLineModeEnterStopsActiveCapture(t *testing.T) {
	d := &dispatched{}
	var out bytes.Buffer
	view := NewLineView(&out)
	view.SetControls(agent.Controls{Phase: agent.PhaseRecording, StopEnabled: true})

	err := NewLineMode(d.dispatch, strings.NewReader("\n"), &out, nil).Run(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, []agent.Action{agent.ActionStop}, d.all())
}

func TestLineModeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan error, 1)
	go func() {
		done <- NewLineMode(func(agent.Action) {}, pr, &bytes.Buffer{}, nil).Run(ctx, NewLineView(&bytes.Buffer{}))
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("line mode did not stop")
	}
}

func TestLineViewPrintsControlChangesOnce(t *testing.T) {
	var out bytes.Buffer
	v := NewLineView(NewLockedWriter(&out))
	c := agent.Controls{Phase: agent.PhaseIdle, StartEnabled: true}
	v.SetControls(c)
	v.SetControls(c)
	v.SetStatus(agent.Status{Kind: agent.StatusError, Message: "Microphone access denied"})
	v.SetSession("session_1_abcdefghi", "http://h/?session_id=session_1_abcdefghi")

	assert.Equal(t, 1, strings.Count(out.String(), "start:true"))
	assert.Contains(t, out.String(), "* Error: Microphone access denied")
	assert.Contains(t, out.String(), "Share this link to resume: http://h/?session_id=session_1_abcdefghi")
}
