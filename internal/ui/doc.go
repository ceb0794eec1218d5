// Package ui implements an interactive terminal browser using bubbletea's Elm architecture.
//
// The TUI is a thin host over a DashTune session:
//  1. [BrowseView] : Walk the library tree, one listing per level
//  2. [SearchView] : Type a query and list grouped results
//  3. [QueueView] : Show the resolved play queue and step through it
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates from the session flow through a channel and show up in the status line.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, p, f, n, /, q) with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
