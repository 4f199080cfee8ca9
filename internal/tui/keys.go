package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	Submit   key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	Helpful   key.Binding
	Neutral   key.Binding
	Unhelpful key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("esc", "leave the office"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Helpful: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "helpful"),
		),
		Neutral: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "neutral"),
		),
		Unhelpful: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "not helpful"),
		),
	}
}
