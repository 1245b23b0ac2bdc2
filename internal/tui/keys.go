package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit       key.Binding
	Rescan     key.Binding
	Go         key.Binding
	Force      key.Binding
	HideSynced key.Binding
	Open       key.Binding
	Back       key.Binding
	Filters    key.Binding
	Toggle     key.Binding
	Reset      key.Binding
	Log        key.Binding
	Up         key.Binding
	Down       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Rescan:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Go:         key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "sync")),
		Force:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "force")),
		HideSynced: key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hide synced")),
		Open:       key.NewBinding(key.WithKeys("enter", "right"), key.WithHelp("enter", "files")),
		Back:       key.NewBinding(key.WithKeys("esc", "left", "backspace"), key.WithHelp("esc", "back")),
		Filters:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "filters")),
		Toggle:     key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "toggle")),
		Reset:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reset filters")),
		Log:        key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "log")),
		Up:         key.NewBinding(key.WithKeys("up", "k")),
		Down:       key.NewBinding(key.WithKeys("down", "j")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Go, k.Rescan, k.Force, k.HideSynced, k.Filters, k.Log, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Go, k.Rescan, k.Force, k.HideSynced},
		{k.Open, k.Back, k.Filters, k.Toggle, k.Reset},
		{k.Log, k.Quit},
	}
}
