package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/dashtune/internal/formatter"
	"github.com/desertthunder/dashtune/internal/models"
)

var (
	_ list.Item = nodeItem{}
	_ list.Item = queueItem{}
)

// nodeItem wraps a browse listing entry to implement [list.Item].
type nodeItem struct {
	node models.Node
}

func (i nodeItem) FilterValue() string { return i.node.Title }
func (i nodeItem) Title() string {
	if i.node.Track != nil && i.node.Track.Favorite {
		return i.node.Title + " ♥"
	}
	return i.node.Title
}

func (i nodeItem) Description() string {
	desc := i.node.Kind.String()
	if i.node.GroupLabel != "" {
		desc = i.node.GroupLabel
	}
	if i.node.Subtitle != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.node.Subtitle)
	}
	if i.node.Track != nil {
		desc = fmt.Sprintf("%s • %s", desc, formatter.FormatDuration(i.node.Track.DurationMs))
	}
	return desc
}

// queueItem is one play queue entry.
type queueItem struct {
	index   int
	node    models.Node
	playing bool
}

func (i queueItem) FilterValue() string { return i.node.Title }
func (i queueItem) Title() string {
	title := fmt.Sprintf("%d. %s", i.index+1, i.node.Title)
	if i.playing {
		return styles.playing.Render("▶ " + title)
	}
	return title
}

func (i queueItem) Description() string {
	return fmt.Sprintf("%s • %s", i.node.Subtitle, formatter.FormatDuration(i.node.DurationMs()))
}

func nodeItems(nodes []models.Node) []list.Item {
	items := make([]list.Item, len(nodes))
	for i, n := range nodes {
		items[i] = nodeItem{node: n}
	}
	return items
}

func queueItems(tracks []models.Node, playing int) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, n := range tracks {
		items[i] = queueItem{index: i, node: n, playing: i == playing}
	}
	return items
}
