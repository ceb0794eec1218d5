package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	enter    key.Binding
	back     key.Binding
	play     key.Binding
	favorite key.Binding
	next     key.Binding
	pause    key.Binding
	search   key.Binding
	resume   key.Binding
	queue    key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		play:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play")),
		favorite: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
		next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		pause:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause")),
		search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		resume:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		queue:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "queue")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.play, k.favorite, k.next, k.pause},
		{k.search, k.resume, k.queue, k.quit},
	}
}
