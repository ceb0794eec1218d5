package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
)

// NodeSource is the part of the node cache the resolver walks.
type NodeSource interface {
	Get(ctx context.Context, id string) (models.Node, error)
	Children(ctx context.Context, id string) ([]models.Node, error)
}

// PlaybackStore persists the "last playlist" record.
type PlaybackStore interface {
	Save(ids []string, index int, positionMs int64) error
	SaveIndex(index int) error
	SavePosition(positionMs int64) error
	Load() (models.PlaybackState, error)
}

// Diagnostic records a selected node that contributed no tracks.
type Diagnostic struct {
	ID    string
	Kind  models.Kind
	Title string
	Err   error
}

// Resolution is a flattened, playable selection.
type Resolution struct {
	Tracks          []models.Node
	StartIndex      int
	StartPositionMs int64
	Diagnostics     []Diagnostic
}

// IDs returns the track ids in play order.
func (r *Resolution) IDs() []string {
	return models.IDs(r.Tracks)
}

// Resolver flattens selections into track lists and records the result as the last playlist.
type Resolver struct {
	nodes  NodeSource
	store  PlaybackStore
	logger *log.Logger
}

// NewResolver creates a resolver over the node cache.
func NewResolver(nodes NodeSource, store PlaybackStore, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Resolver{
		nodes:  nodes,
		store:  store,
		logger: shared.WithLogger(logger, "component", "resolver"),
	}
}

// Resolve expands refs depth-first into tracks.
//
// Albums and playlists are replaced by their children in listing order, tracks are kept and
// anything else is skipped with a diagnostic. The first remote error aborts the call and nothing
// is persisted.
func (r *Resolver) Resolve(ctx context.Context, refs []string, start models.StartPosition) (*Resolution, error) {
	res := &Resolution{Tracks: []models.Node{}}
	for _, ref := range refs {
		n, err := r.nodes.Get(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", ref, err)
		}
		if err := r.flatten(ctx, n, res); err != nil {
			return nil, err
		}
	}

	res.StartIndex = clampIndex(start.Index, len(res.Tracks))
	res.StartPositionMs = max(start.PositionMs, 0)
	if err := r.persist(res); err != nil {
		return nil, err
	}

	r.logger.Info("resolved selection", "refs", len(refs), "tracks", len(res.Tracks), "skipped", len(res.Diagnostics))
	return res, nil
}

// ExpandInContext plays ref within the listing it was browsed from.
//
// The parent's whole listing is resolved and the start index points at ref. An id that appears
// more than once in the flattened list is rejected with [shared.ErrAmbiguousPosition].
func (r *Resolver) ExpandInContext(ctx context.Context, ref string, positionMs int64) (*Resolution, error) {
	n, err := r.nodes.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	if n.ParentRef == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoParent, ref)
	}

	children, err := r.nodes.Children(ctx, n.ParentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", n.ParentRef, err)
	}

	res := &Resolution{Tracks: []models.Node{}}
	for _, child := range children {
		if err := r.flatten(ctx, child, res); err != nil {
			return nil, err
		}
	}

	index := -1
	for i, t := range res.Tracks {
		if t.ID != ref {
			continue
		}
		if index >= 0 {
			return nil, fmt.Errorf("%w: %s occurs more than once in %s", shared.ErrAmbiguousPosition, ref, n.ParentRef)
		}
		index = i
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: %s in %s", shared.ErrNotFound, ref, n.ParentRef)
	}

	res.StartIndex = index
	res.StartPositionMs = max(positionMs, 0)
	if err := r.persist(res); err != nil {
		return nil, err
	}

	r.logger.Info("expanded in context", "id", ref, "parent", n.ParentRef, "index", index, "tracks", len(res.Tracks))
	return res, nil
}

func (r *Resolver) flatten(ctx context.Context, n models.Node, res *Resolution) error {
	switch n.Playability() {
	case models.LeafPlayable:
		res.Tracks = append(res.Tracks, n)
	case models.ExpandablePlayable:
		children, err := r.nodes.Children(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", n.ID, err)
		}
		for _, child := range children {
			if err := r.flatten(ctx, child, res); err != nil {
				return err
			}
		}
	case models.NotPlayable:
		err := fmt.Errorf("%w: %s %s", shared.ErrUnplayable, n.Kind, n.ID)
		res.Diagnostics = append(res.Diagnostics, Diagnostic{ID: n.ID, Kind: n.Kind, Title: n.Title, Err: err})
		r.logger.Warn("skipping unplayable item", "id", n.ID, "kind", n.Kind, "title", n.Title)
	}
	return nil
}

func (r *Resolver) persist(res *Resolution) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(res.IDs(), res.StartIndex, res.StartPositionMs); err != nil {
		return fmt.Errorf("failed to save playlist: %w", err)
	}
	return nil
}

// clampIndex keeps i inside a list of n elements; an empty list always starts at 0.
func clampIndex(i, n int) int {
	if i < 0 || n == 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
