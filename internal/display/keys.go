package display

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the popup key bindings. It implements help.KeyMap.
type keyMap struct {
	Toggle  key.Binding
	Pause   key.Binding
	Stop    key.Binding
	Next    key.Binding
	Prev    key.Binding
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Restart key.Binding
	Faster  key.Binding
	Slower  key.Binding
	Test    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "space", "p"),
			key.WithHelp("space", "play/pause"),
		),
		Pause: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "pause/resume"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s", "x"),
			key.WithHelp("s", "stop"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "n", "l"),
			key.WithHelp("→/n", "next"),
		),
		Prev: key.NewBinding(
			key.WithKeys("left", "b", "h"),
			key.WithHelp("←/b", "previous"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "select earlier"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "select later"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "read from selected"),
		),
		Restart: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "from start"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "slower"),
		),
		Test: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "test voice"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "close"),
		),
	}
}

// ShortHelp is shown under the progress bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Stop, k.Prev, k.Next, k.Help, k.Quit}
}

// FullHelp is shown after pressing "?".
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Pause, k.Stop},
		{k.Prev, k.Next, k.Restart},
		{k.Up, k.Down, k.Select},
		{k.Faster, k.Slower, k.Test},
		{k.Help, k.Quit},
	}
}
