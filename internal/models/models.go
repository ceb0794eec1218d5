package models

import (
	"fmt"
	"strings"
)

// Synthetic node IDs. Everything else is a remote catalog identifier.
const (
	RootID       = "ROOT_ID"
	LatestID     = "LATEST_ALBUMS_ID"
	RandomID     = "RANDOM_ALBUMS_ID"
	FavouritesID = "FAVOURITES_ID"
	PlaylistsID  = "PLAYLISTS_ID"
)

// IsSynthetic reports whether id names a locally built grouping node.
func IsSynthetic(id string) bool {
	switch id {
	case RootID, LatestID, RandomID, FavouritesID, PlaylistsID:
		return true
	}
	return false
}

// Kind is the closed set of node kinds.
type Kind int

const (
	KindFolder Kind = iota
	KindArtist
	KindAlbum
	KindPlaylist
	KindTrack
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindArtist:
		return "artist"
	case KindAlbum:
		return "album"
	case KindPlaylist:
		return "playlist"
	case KindTrack:
		return "track"
	default:
		panic(fmt.Sprintf("models: unknown kind %d", int(k)))
	}
}

// ParseKind is the inverse of [Kind.String].
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "folder":
		return KindFolder, nil
	case "artist":
		return KindArtist, nil
	case "album":
		return KindAlbum, nil
	case "playlist":
		return KindPlaylist, nil
	case "track":
		return KindTrack, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Playability is a tri-state: albums and playlists are playable only by expansion.
type Playability int

const (
	NotPlayable Playability = iota
	LeafPlayable
	ExpandablePlayable
)

func (p Playability) String() string {
	switch p {
	case NotPlayable:
		return "not_playable"
	case LeafPlayable:
		return "leaf"
	case ExpandablePlayable:
		return "expandable"
	default:
		panic(fmt.Sprintf("models: unknown playability %d", int(p)))
	}
}

// TrackInfo is the track-only payload of a [Node].
type TrackInfo struct {
	DurationMs  int64  `json:"duration_ms"`
	PlaybackURI string `json:"playback_uri"`
	AlbumID     string `json:"album_id,omitempty"`
	Favorite    bool   `json:"favorite"`
}

// Node is one browsable or playable catalog entity.
//
// Track is non-nil exactly when Kind is [KindTrack].
type Node struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"kind"`
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle,omitempty"`
	ArtworkHandle string     `json:"artwork_handle,omitempty"`
	GroupLabel    string     `json:"group_label,omitempty"`
	ParentRef     string     `json:"parent_ref,omitempty"`
	Track         *TrackInfo `json:"track,omitempty"`
}

// Browsable reports whether the node can be listed as a parent.
func (n Node) Browsable() bool {
	switch n.Kind {
	case KindFolder, KindArtist, KindAlbum, KindPlaylist:
		return true
	case KindTrack:
		return false
	default:
		panic(fmt.Sprintf("models: unknown kind %d", int(n.Kind)))
	}
}

// Playability derives the tri-state from the node's kind.
func (n Node) Playability() Playability {
	switch n.Kind {
	case KindFolder, KindArtist:
		return NotPlayable
	case KindAlbum, KindPlaylist:
		return ExpandablePlayable
	case KindTrack:
		return LeafPlayable
	default:
		panic(fmt.Sprintf("models: unknown kind %d", int(n.Kind)))
	}
}

// Playable is true for both leaf and expandable nodes.
func (n Node) Playable() bool {
	return n.Playability() != NotPlayable
}

// DurationMs is zero for anything that is not a track.
func (n Node) DurationMs() int64 {
	if n.Track == nil {
		return 0
	}
	return n.Track.DurationMs
}

// WithParent returns a copy of n materialized under the listing parent.
func (n Node) WithParent(parent string) Node {
	n.ParentRef = parent
	return n
}

// WithGroup returns a copy of n carrying a display group label.
func (n Node) WithGroup(label string) Node {
	n.GroupLabel = label
	return n
}

// Validate checks the kind/payload pairing.
func (n Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node has no id")
	}
	if n.Kind < KindFolder || n.Kind > KindTrack {
		return fmt.Errorf("node %s: unknown kind %d", n.ID, int(n.Kind))
	}
	if (n.Kind == KindTrack) != (n.Track != nil) {
		return fmt.Errorf("node %s: track payload does not match kind %s", n.ID, n.Kind)
	}
	return nil
}

// Equal compares two nodes field by field, including the track payload.
func (n Node) Equal(o Node) bool {
	if n.ID != o.ID || n.Kind != o.Kind || n.Title != o.Title || n.Subtitle != o.Subtitle ||
		n.ArtworkHandle != o.ArtworkHandle || n.GroupLabel != o.GroupLabel || n.ParentRef != o.ParentRef {
		return false
	}
	if n.Track == nil || o.Track == nil {
		return n.Track == o.Track
	}
	return *n.Track == *o.Track
}

// IDs returns the node IDs in order.
func IDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
