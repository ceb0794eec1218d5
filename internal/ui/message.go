package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgListingLoaded MsgKind = iota
	MsgPlaylistResolved
	MsgRated
	MsgTransitioned
	MsgProgressUpdate
	MsgProgressClosed
	MsgTick
)

type listingData struct {
	frame frame
	err   error
}

type resolvedData struct {
	res *tasks.Resolution
	err error
}

type ratedData struct {
	node models.Node
	err  error
}

type transitionData struct {
	index      int
	prefetched []int
	err        error
}

// listingLoadedMsg is the constructor for [MsgListingLoaded]
func listingLoadedMsg(f frame, err error) Msg {
	return Msg{kind: MsgListingLoaded, data: listingData{f, err}}
}

// playlistResolvedMsg is the constructor for [MsgPlaylistResolved]
func playlistResolvedMsg(res *tasks.Resolution, err error) Msg {
	return Msg{kind: MsgPlaylistResolved, data: resolvedData{res, err}}
}

// ratedMsg is the constructor for [MsgRated]. node carries the requested favourite state.
func ratedMsg(node models.Node, err error) Msg {
	return Msg{kind: MsgRated, data: ratedData{node, err}}
}

// transitionedMsg is the constructor for [MsgTransitioned]
func transitionedMsg(index int, prefetched []int, err error) Msg {
	return Msg{kind: MsgTransitioned, data: transitionData{index, prefetched, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}
