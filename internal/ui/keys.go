package ui

import (
	"github.com/charmbracelet/bubbles/key"

	"VoiceChat/internal/agent"
)

type keyMap struct {
	Start      key.Binding
	Stop       key.Binding
	Cancel     key.Binding
	ToggleAuto key.Binding
	NewSession key.Binding
	Clear      key.Binding
	Reload     key.Binding
	Up         key.Binding
	Down       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Start: key.NewBinding(
			key.WithKeys("r", " "),
			key.WithHelp("r/space", "record"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s", "enter"),
			key.WithHelp("s/enter", "stop"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c", "esc"),
			key.WithHelp("c/esc", "cancel"),
		),
		ToggleAuto: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "auto recording"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new conversation"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "clear history"),
		),
		Reload: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "reload history"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k", "pgup"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j", "pgdown"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// sync enables only the bindings the controller currently accepts, so the
// help line never advertises a disabled control.
func (k *keyMap) sync(c agent.Controls) {
	k.Start.SetEnabled(c.StartEnabled)
	k.Stop.SetEnabled(c.StopEnabled)
	k.Cancel.SetEnabled(c.StopEnabled)
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Cancel, k.ToggleAuto, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop, k.Cancel, k.ToggleAuto},
		{k.NewSession, k.Clear, k.Reload},
		{k.Up, k.Down, k.Help, k.Quit},
	}
}
