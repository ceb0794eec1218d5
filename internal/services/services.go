package services

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// Catalog is the remote catalog protocol consumed by the node cache, the resolver and the session.
//
// Every method that touches the network takes a context and reports failures as
// [shared.ErrRemoteUnavailable], [shared.ErrNotFound] or [shared.ErrNotAuthenticated].
type Catalog interface {
	// GetItem fetches a single item by ID.
	GetItem(ctx context.Context, id string) (*Item, error)

	// Latest returns the most recently added albums in server order.
	Latest(ctx context.Context, limit int) ([]Item, error)

	// Items runs a filtered, sorted listing.
	Items(ctx context.Context, q ItemsQuery) ([]Item, error)

	// AlbumArtists searches album artists by name.
	AlbumArtists(ctx context.Context, search string, limit int) ([]Item, error)

	// SetFavorite marks or unmarks an item as a favourite of the current user.
	SetFavorite(ctx context.Context, id string, favorite bool) error

	// ReportPlaybackStart and ReportPlaybackStopped keep the server's play history current.
	ReportPlaybackStart(ctx context.Context, id string, positionMs int64) error
	ReportPlaybackStopped(ctx context.Context, id string, positionMs int64) error

	// ImageURL is the primary artwork URL for an item.
	ImageURL(id string) string

	// AudioStreamURL is the playback URI for a track.
	AudioStreamURL(id string) string
}

// Item types as reported by the server.
const (
	TypeAudio            = "Audio"
	TypeMusicAlbum       = "MusicAlbum"
	TypeMusicArtist      = "MusicArtist"
	TypePlaylist         = "Playlist"
	TypeFolder           = "Folder"
	TypeCollectionFolder = "CollectionFolder"
	TypeUserView         = "UserView"
	TypeMusicGenre       = "MusicGenre"
)

// Sort keys.
const (
	SortRandom            = "Random"
	SortDateCreated       = "DateCreated"
	SortParentIndexNumber = "ParentIndexNumber"
	SortIndexNumber       = "IndexNumber"
	SortSortName          = "SortName"

	SortAscending  = "Ascending"
	SortDescending = "Descending"
)

// FilterIsFavorite restricts a listing to favourites.
const FilterIsFavorite = "IsFavorite"

// DiscTrackName sorts by disc, then track, then sort name.
var DiscTrackName = []string{SortParentIndexNumber, SortIndexNumber, SortSortName}

// Item is the subset of the server's item representation used by this client.
type Item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	IsFolder          bool              `json:"IsFolder"`
	AlbumID           string            `json:"AlbumId,omitempty"`
	Album             string            `json:"Album,omitempty"`
	AlbumArtist       string            `json:"AlbumArtist,omitempty"`
	Artists           []string          `json:"Artists,omitempty"`
	RunTimeTicks      int64             `json:"RunTimeTicks,omitempty"`
	IndexNumber       int               `json:"IndexNumber,omitempty"`
	ParentIndexNumber int               `json:"ParentIndexNumber,omitempty"`
	ChildCount        int               `json:"ChildCount,omitempty"`
	ProductionYear    int               `json:"ProductionYear,omitempty"`
	ImageTags         map[string]string `json:"ImageTags,omitempty"`
	UserData          *UserData         `json:"UserData,omitempty"`
}

// UserData holds per-user item state.
type UserData struct {
	IsFavorite bool `json:"IsFavorite"`
	PlayCount  int  `json:"PlayCount,omitempty"`
}

// Favorite reports whether the current user favourited the item.
func (i Item) Favorite() bool {
	return i.UserData != nil && i.UserData.IsFavorite
}

// DurationMs converts the server's 100ns ticks to milliseconds.
func (i Item) DurationMs() int64 {
	return i.RunTimeTicks / 10_000
}

// HasPrimaryImage reports whether the server advertised a primary image.
func (i Item) HasPrimaryImage() bool {
	_, ok := i.ImageTags["Primary"]
	return ok
}

// ItemsResult is the envelope of list responses.
type ItemsResult struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// ItemsQuery describes a listing request.
type ItemsQuery struct {
	ParentID       string
	IncludeTypes   []string
	Recursive      bool
	SortBy         []string
	SortOrder      string
	Filters        []string
	AlbumArtistIDs []string
	SearchTerm     string
	Limit          int
}

// Values encodes the query as URL parameters. Empty fields are omitted.
func (q ItemsQuery) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}

	set("ParentId", q.ParentID)
	set("IncludeItemTypes", strings.Join(q.IncludeTypes, ","))
	set("SortBy", strings.Join(q.SortBy, ","))
	set("SortOrder", q.SortOrder)
	set("Filters", strings.Join(q.Filters, ","))
	set("AlbumArtistIds", strings.Join(q.AlbumArtistIDs, ","))
	set("SearchTerm", q.SearchTerm)
	if q.Recursive {
		v.Set("Recursive", "true")
	}
	if q.Limit > 0 {
		v.Set("Limit", strconv.Itoa(q.Limit))
	}
	v.Set("Fields", "ChildCount,ParentId")
	v.Set("EnableUserData", "true")
	return v
}

// AuthResult is returned by a successful sign-in.
type AuthResult struct {
	UserID      string
	Username    string
	AccessToken string
	ServerID    string
}
