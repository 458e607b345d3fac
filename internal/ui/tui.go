package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"VoiceChat/internal/agent"
	"VoiceChat/internal/session"
	"VoiceChat/internal/transcript"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#4CAF50")).Padding(0, 1)
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	enabledBtn   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	disabledBtn  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyles = map[agent.StatusKind]lipgloss.Style{
		agent.StatusInfo:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		agent.StatusRecording:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F44336")),
		agent.StatusProcessing: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF9800")),
		agent.StatusSuccess:    lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		agent.StatusWarning:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
		agent.StatusError:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F44336")),
	}
)

// Messages forwarded from the controller goroutine into the program.
type (
	statusMsg   agent.Status
	controlsMsg agent.Controls
	playingMsg  string
	resetMsg    struct{}
	turnMsg     session.Turn
	scrollMsg   struct{}
)

type sessionMsg struct {
	id   session.ID
	link string
}

// Bridge forwards controller and transcript updates into a running bubbletea
// program. It implements both agent.View and transcript.Renderer. Updates
// sent before RunTUI attaches a program are dropped.
type Bridge struct {
	send func(tea.Msg)
}

func NewBridge() *Bridge {
	return &Bridge{send: func(tea.Msg) {}}
}

func (b *Bridge) SetStatus(s agent.Status)              { b.send(statusMsg(s)) }
func (b *Bridge) SetControls(c agent.Controls)          { b.send(controlsMsg(c)) }
func (b *Bridge) SetSession(id session.ID, link string) { b.send(sessionMsg{id: id, link: link}) }
func (b *Bridge) NowPlaying(source string)              { b.send(playingMsg(source)) }
func (b *Bridge) Reset()                                { b.send(resetMsg{}) }
func (b *Bridge) Render(turn session.Turn)              { b.send(turnMsg(turn)) }
func (b *Bridge) ScrollToLatest()                       { b.send(scrollMsg{}) }

var (
	_ agent.View          = (*Bridge)(nil)
	_ transcript.Renderer = (*Bridge)(nil)
)

// Model is the interactive conversation screen.
type Model struct {
	dispatch func(agent.Action)
	keys     keyMap
	help     help.Model
	viewport viewport.Model

	lines    []string
	status   agent.Status
	controls agent.Controls
	id       session.ID
	link     string
	playing  string

	width, height int
	ready         bool
}

// NewModel creates the screen. dispatch is called off the UI goroutine.
func NewModel(dispatch func(agent.Action)) Model {
	keys := newKeyMap()
	keys.sync(agent.Controls{})
	return Model{
		dispatch: dispatch,
		keys:     keys,
		help:     help.New(),
		status:   agent.Status{Kind: agent.StatusInfo, Message: "Connecting..."},
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) act(a agent.Action) tea.Cmd {
	return func() tea.Msg {
		m.dispatch(a)
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
			return m, nil
		case key.Matches(msg, m.keys.Start):
			return m, m.act(agent.ActionStart)
		case key.Matches(msg, m.keys.Stop):
			return m, m.act(agent.ActionStop)
		case key.Matches(msg, m.keys.Cancel):
			return m, m.act(agent.ActionCancel)
		case key.Matches(msg, m.keys.ToggleAuto):
			return m, m.act(agent.ActionToggleAuto)
		case key.Matches(msg, m.keys.NewSession):
			return m, m.act(agent.ActionNewSession)
		case key.Matches(msg, m.keys.Clear):
			return m, m.act(agent.ActionClearHistory)
		case key.Matches(msg, m.keys.Reload):
			return m, m.act(agent.ActionReloadHistory)
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case statusMsg:
		m.status = agent.Status(msg)
	case controlsMsg:
		m.controls = agent.Controls(msg)
		m.keys.sync(m.controls)
		if m.controls.Phase != agent.PhasePlaying {
			m.playing = ""
		}
	case sessionMsg:
		m.id, m.link = msg.id, msg.link
	case playingMsg:
		m.playing = string(msg)
	case resetMsg:
		m.lines = nil
		m.refresh()
	case turnMsg:
		m.lines = append(m.lines, transcript.FormatTurn(session.Turn(msg)))
		m.refresh()
	case scrollMsg:
		m.viewport.GotoBottom()

	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *Model) resize() {
	reserved := lipgloss.Height(m.header()) + lipgloss.Height(m.footer()) + 2
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	w := m.width - 2
	if w < 10 {
		w = 10
	}
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width, m.viewport.Height = w, h
	}
	m.help.Width = m.width
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	if len(m.lines) == 0 {
		m.viewport.SetContent(linkStyle.Render("No messages yet. Press r to talk."))
		return
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(strings.Join(m.lines, "\n\n")))
}

func (m Model) header() string {
	title := titleStyle.Render("Voice Chat")
	id := string(m.id)
	if id == "" {
		id = "(resolving session)"
	}
	lines := []string{title + " " + id}
	if m.link != "" {
		lines = append(lines, linkStyle.Render("Share: "+m.link))
	}
	return strings.Join(lines, "\n")
}

func button(label string, enabled bool) string {
	if enabled {
		return enabledBtn.Render("[" + label + "]")
	}
	return disabledBtn.Render("[" + label + "]")
}

func (m Model) footer() string {
	auto := "OFF"
	if m.controls.AutoRecording {
		auto = "ON"
	}
	controls := fmt.Sprintf("%s %s  Auto Recording: %s  (%s)",
		button("Start", m.controls.StartEnabled),
		button("Stop", m.controls.StopEnabled),
		auto,
		m.controls.Phase,
	)
	style, ok := statusStyles[m.status.Kind]
	if !ok {
		style = statusStyles[agent.StatusInfo]
	}
	lines := []string{style.Render(m.status.Message), controls}
	if m.playing != "" {
		lines = append(lines, linkStyle.Render("Playing "+m.playing))
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}

func (m Model) View() string {
	if !m.ready {
		return m.header() + "\n\nLoading...\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		frameStyle.Render(m.viewport.View()),
		m.footer(),
	)
}

// RunTUI runs the interactive screen until the user quits or ctx ends. ctl
// must not be running yet; RunTUI starts it on its own goroutine.
func RunTUI(ctx context.Context, ctl *agent.Controller, bridge *Bridge, opts ...tea.ProgramOption) error {
	model := NewModel(ctl.Dispatch)
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(model, opts...)
	bridge.send = p.Send

	ctlCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctlCtx) }()

	_, err := p.Run()
	cancel()
	<-done
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running voice chat TUI: %w", err)
	}
	return nil
}
