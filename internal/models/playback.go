package models

import (
	"fmt"
	"slices"
	"strings"
)

// PlaybackState is the persisted "last playlist" record.
type PlaybackState struct {
	IDs        []string `json:"ids"`
	Index      int      `json:"index"`
	PositionMs int64    `json:"position_ms"`
}

// Empty reports whether no playlist was ever saved.
func (s PlaybackState) Empty() bool {
	return len(s.IDs) == 0
}

// RepeatMode mirrors the host player's repeat setting.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return fmt.Sprintf("RepeatMode(%d)", int(m))
	}
}

// ParseRepeatMode accepts "off", "one" and "all".
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return RepeatOff, nil
	case "one":
		return RepeatOne, nil
	case "all":
		return RepeatAll, nil
	}
	return RepeatOff, fmt.Errorf("unknown repeat mode %q", s)
}

func (m RepeatMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *RepeatMode) UnmarshalText(b []byte) error {
	parsed, err := ParseRepeatMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Next cycles off → all → one → off, the order the host's repeat button uses.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// TimelineItem is a playable entry of the host's queue.
type TimelineItem struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// Timeline is the host's current queue and play-order settings.
//
// ShuffleOrder lists item indices in the order they play while Shuffle is set.
// A ShuffleOrder that is not a permutation of the items is ignored.
type Timeline struct {
	Items        []TimelineItem `json:"items"`
	ShuffleOrder []int          `json:"shuffle_order,omitempty"`
	Shuffle      bool           `json:"shuffle"`
	Repeat       RepeatMode     `json:"repeat"`
}

// NewTimeline builds a linear timeline over tracks.
func NewTimeline(tracks []Node) Timeline {
	items := make([]TimelineItem, 0, len(tracks))
	for _, t := range tracks {
		item := TimelineItem{ID: t.ID}
		if t.Track != nil {
			item.URI = t.Track.PlaybackURI
		}
		items = append(items, item)
	}
	return Timeline{Items: items}
}

// Next returns the index that plays after i in the effective play order.
//
// Repeat-one never yields a successor: a single-item loop has nothing to look ahead to.
func (t Timeline) Next(i int) (int, bool) {
	n := len(t.Items)
	if i < 0 || i >= n || t.Repeat == RepeatOne {
		return 0, false
	}

	order := t.order()
	pos := slices.Index(order, i)
	if pos < 0 {
		return 0, false
	}

	switch {
	case pos+1 < n:
		return order[pos+1], true
	case t.Repeat == RepeatAll:
		return order[0], true
	default:
		return 0, false
	}
}

func (t Timeline) order() []int {
	n := len(t.Items)
	if t.Shuffle && isPermutation(t.ShuffleOrder, n) {
		return t.ShuffleOrder
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range order {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// StartPosition is where playback of a resolved list begins.
type StartPosition struct {
	Index      int   `json:"index"`
	PositionMs int64 `json:"position_ms"`
}
