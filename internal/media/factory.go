package media

import (
	"fmt"

	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/services"
	"github.com/desertthunder/dashtune/internal/shared"
)

// Display titles of the synthetic nodes and group labels.
const (
	TitleRoot       = "Root"
	TitleLatest     = "Latest"
	TitleRandom     = "Random"
	TitleFavourites = "Favourites"
	TitlePlaylists  = "Playlists"

	GroupArtists   = "Artists"
	GroupAlbums    = "Albums"
	GroupPlaylists = "Playlists"
	GroupTracks    = "Tracks"
)

// ArtworkMapper turns a remote artwork URL into a local asset handle.
type ArtworkMapper interface {
	MapToHandle(remoteURI string) string
}

// Factory converts catalog items into [models.Node] values.
type Factory struct {
	catalog services.Catalog
	art     ArtworkMapper
}

// NewFactory creates a factory. art may be nil, in which case nodes carry no artwork handle.
func NewFactory(catalog services.Catalog, art ArtworkMapper) *Factory {
	return &Factory{catalog: catalog, art: art}
}

// KindOf maps a server item type onto a node kind.
func KindOf(itemType string) (models.Kind, error) {
	switch itemType {
	case services.TypeAudio:
		return models.KindTrack, nil
	case services.TypeMusicAlbum:
		return models.KindAlbum, nil
	case services.TypeMusicArtist:
		return models.KindArtist, nil
	case services.TypePlaylist:
		return models.KindPlaylist, nil
	case services.TypeFolder, services.TypeCollectionFolder, services.TypeUserView, services.TypeMusicGenre:
		return models.KindFolder, nil
	default:
		return 0, fmt.Errorf("%w: %q", shared.ErrUnsupportedKind, itemType)
	}
}

// Synthetic builds one of the locally defined grouping nodes.
func (f *Factory) Synthetic(id string) (models.Node, bool) {
	title := ""
	switch id {
	case models.RootID:
		title = TitleRoot
	case models.LatestID:
		title = TitleLatest
	case models.RandomID:
		title = TitleRandom
	case models.FavouritesID:
		title = TitleFavourites
	case models.PlaylistsID:
		title = TitlePlaylists
	default:
		return models.Node{}, false
	}
	return models.Node{ID: id, Kind: models.KindFolder, Title: title}, true
}

// Node converts a catalog item. Tracks take their artwork from the album when known.
func (f *Factory) Node(item services.Item) (models.Node, error) {
	kind, err := KindOf(item.Type)
	if err != nil {
		return models.Node{}, fmt.Errorf("item %s: %w", item.ID, err)
	}

	n := models.Node{
		ID:       item.ID,
		Kind:     kind,
		Title:    item.Name,
		Subtitle: item.AlbumArtist,
	}

	artID := item.ID
	if kind == models.KindTrack {
		if item.AlbumID != "" {
			artID = item.AlbumID
		}
		n.Track = &models.TrackInfo{
			DurationMs:  item.DurationMs(),
			PlaybackURI: f.catalog.AudioStreamURL(item.ID),
			AlbumID:     item.AlbumID,
			Favorite:    item.Favorite(),
		}
	}
	if f.art != nil && kind != models.KindFolder {
		n.ArtworkHandle = f.art.MapToHandle(f.catalog.ImageURL(artID))
	}
	return n, nil
}

// FavouriteGroup labels a favourited item by its kind.
func FavouriteGroup(kind models.Kind) string {
	switch kind {
	case models.KindAlbum:
		return GroupAlbums
	case models.KindArtist:
		return GroupArtists
	default:
		return GroupTracks
	}
}
