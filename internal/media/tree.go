// Package media implements the node cache: a bounded, lazily populated mirror of the remote catalog
// plus the synthetic top-level groupings (Latest, Random, Favourites, Playlists).
//
// # Caching
//
// [Tree.Get] builds and caches a node on a miss. Concurrent misses for the same id share one
// remote call, and a caller that gives up does not fail the others. [Tree.Children] and [Tree.Search] never cache the listing itself, but every node
// they return is written to the cache, replacing any older node with the same id.
//
// # Failures
//
// Remote errors are returned unchanged and leave the cache untouched. Nothing is retried here.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/services"
	"github.com/desertthunder/dashtune/internal/shared"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxItems bounds the synthetic album and playlist listings.
	MaxItems        = 120
	defaultCapacity = 1000
	buildTimeout    = time.Minute

	searchArtistLimit   = 10
	searchAlbumLimit    = 10
	searchPlaylistLimit = 10
	searchTrackLimit    = 20
)

// TreeOpts configures a [Tree].
type TreeOpts struct {
	Catalog  services.Catalog
	Artwork  ArtworkMapper
	Capacity int
	Logger   *log.Logger
}

// Tree is the node cache.
type Tree struct {
	catalog services.Catalog
	factory *Factory
	nodes   *lru.Cache[string, models.Node]
	group   singleflight.Group
	logger  *log.Logger
}

// NewTree creates an empty node cache.
func NewTree(opts TreeOpts) (*Tree, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog", shared.ErrMissingArgument)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	nodes, err := lru.New[string, models.Node](opts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}

	return &Tree{
		catalog: opts.Catalog,
		factory: NewFactory(opts.Catalog, opts.Artwork),
		nodes:   nodes,
		logger:  shared.WithLogger(opts.Logger, "component", "tree"),
	}, nil
}

// Get returns the node for id, constructing and caching it on a miss.
func (t *Tree) Get(ctx context.Context, id string) (models.Node, error) {
	if n, ok := t.nodes.Get(id); ok {
		return n, nil
	}

	// The shared build outlives any one caller, so it runs detached and each caller
	// gives up on its own context only.
	ch := t.group.DoChan(id, func() (any, error) {
		if n, ok := t.nodes.Get(id); ok {
			return n, nil
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		n, err := t.build(bctx, id)
		if err != nil {
			return nil, err
		}
		t.nodes.Add(id, n)
		return n, nil
	})

	select {
	case <-ctx.Done():
		return models.Node{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Node{}, res.Err
		}
		return res.Val.(models.Node), nil
	}
}

func (t *Tree) build(ctx context.Context, id string) (models.Node, error) {
	if n, ok := t.factory.Synthetic(id); ok {
		return n, nil
	}

	item, err := t.catalog.GetItem(ctx, id)
	if err != nil {
		return models.Node{}, err
	}
	return t.factory.Node(*item)
}

// Peek returns a cached node without touching recency or the network.
func (t *Tree) Peek(id string) (models.Node, bool) {
	return t.nodes.Peek(id)
}

// Children lists the children of id. See the package documentation for caching behaviour.
func (t *Tree) Children(ctx context.Context, id string) ([]models.Node, error) {
	switch id {
	case models.RootID:
		return t.root(ctx)
	case models.LatestID:
		items, err := t.catalog.Latest(ctx, MaxItems)
		return t.store(items, err, nil)
	case models.RandomID:
		items, err := t.catalog.Items(ctx, services.ItemsQuery{
			IncludeTypes: []string{services.TypeMusicAlbum},
			Recursive:    true,
			SortBy:       []string{services.SortRandom},
			Limit:        MaxItems,
		})
		return t.store(items, err, nil)
	case models.PlaylistsID:
		items, err := t.catalog.Items(ctx, services.ItemsQuery{
			IncludeTypes: []string{services.TypePlaylist},
			Recursive:    true,
			SortBy:       []string{services.SortDateCreated},
			SortOrder:    services.SortDescending,
			Limit:        MaxItems,
		})
		return t.store(items, err, nil)
	case models.FavouritesID:
		items, err := t.catalog.Items(ctx, services.ItemsQuery{
			IncludeTypes: []string{services.TypeAudio, services.TypeMusicAlbum, services.TypeMusicArtist},
			Recursive:    true,
			Filters:      []string{services.FilterIsFavorite},
		})
		return t.store(items, err, func(n models.Node) models.Node {
			return inContext(n, models.FavouritesID).WithGroup(FavouriteGroup(n.Kind))
		})
	}

	parent, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch parent.Kind {
	case models.KindArtist:
		items, err := t.catalog.Items(ctx, services.ItemsQuery{
			IncludeTypes:   []string{services.TypeMusicAlbum},
			Recursive:      true,
			AlbumArtistIDs: []string{id},
			SortBy:         services.DiscTrackName,
		})
		return t.store(items, err, nil)
	case models.KindPlaylist:
		items, err := t.catalog.Items(ctx, services.ItemsQuery{ParentID: id})
		return t.store(items, err, func(n models.Node) models.Node { return inContext(n, id) })
	case models.KindFolder, models.KindAlbum:
		items, err := t.catalog.Items(ctx, services.ItemsQuery{ParentID: id, SortBy: services.DiscTrackName})
		return t.store(items, err, func(n models.Node) models.Node { return inContext(n, id) })
	case models.KindTrack:
		return []models.Node{}, nil
	default:
		panic(fmt.Sprintf("media: unknown kind %d", int(parent.Kind)))
	}
}

// inContext records the listing a track was materialized under so it can be played in place.
// Containers keep no back-reference: selecting one plays its own contents.
func inContext(n models.Node, parent string) models.Node {
	if n.Kind != models.KindTrack {
		return n
	}
	return n.WithParent(parent)
}

func (t *Tree) root(ctx context.Context) ([]models.Node, error) {
	ids := []string{models.LatestID, models.RandomID, models.FavouritesID, models.PlaylistsID}
	out := make([]models.Node, 0, len(ids))
	for _, id := range ids {
		n, err := t.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// store converts a listing, applies decorate to each node and caches the results.
// Items of unsupported kinds are skipped. Nothing is cached when err is set.
func (t *Tree) store(items []services.Item, err error, decorate func(models.Node) models.Node) ([]models.Node, error) {
	if err != nil {
		return nil, err
	}

	out := make([]models.Node, 0, len(items))
	for _, item := range items {
		n, err := t.factory.Node(item)
		if err != nil {
			if errors.Is(err, shared.ErrUnsupportedKind) {
				t.logger.Warn("skipping item", "id", item.ID, "type", item.Type)
				continue
			}
			return nil, err
		}
		if decorate != nil {
			n = decorate(n)
		}
		out = append(out, n)
	}

	for _, n := range out {
		t.nodes.Add(n.ID, n)
	}
	return out, nil
}

type labelled struct {
	label string
	items []services.Item
}

// Search queries artists, albums, playlists and tracks, in that order, labelling each group.
// Results are not deduplicated across groups.
func (t *Tree) Search(ctx context.Context, query string) ([]models.Node, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Node{}, nil
	}

	artists, err := t.catalog.AlbumArtists(ctx, query, searchArtistLimit)
	if err != nil {
		return nil, err
	}

	groups := []labelled{{GroupArtists, artists}}
	for _, q := range []struct {
		label    string
		itemType string
		limit    int
	}{
		{GroupAlbums, services.TypeMusicAlbum, searchAlbumLimit},
		{GroupPlaylists, services.TypePlaylist, searchPlaylistLimit},
		{GroupTracks, services.TypeAudio, searchTrackLimit},
	} {
		items, err := t.catalog.Items(ctx, services.ItemsQuery{
			IncludeTypes: []string{q.itemType},
			Recursive:    true,
			SearchTerm:   query,
			Limit:        q.limit,
		})
		if err != nil {
			return nil, err
		}
		groups = append(groups, labelled{q.label, items})
	}

	out := []models.Node{}
	for _, g := range groups {
		label := g.label
		nodes, err := t.store(g.items, nil, func(n models.Node) models.Node { return n.WithGroup(label) })
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

// Purge drops every cached node.
func (t *Tree) Purge() {
	t.nodes.Purge()
	t.logger.Debug("node cache purged")
}

// Len reports how many nodes are cached.
func (t *Tree) Len() int {
	return t.nodes.Len()
}
