package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/services"
	"github.com/desertthunder/dashtune/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	restoreConcurrency = 8
	reportTimeout      = 10 * time.Second
)

// Library is the node cache as seen by a session.
type Library interface {
	NodeSource
	Peek(id string) (models.Node, bool)
	Search(ctx context.Context, query string) ([]models.Node, error)
	Purge()
}

// Authenticator signs a user in against the catalog server.
type Authenticator interface {
	AuthenticateByName(ctx context.Context, username, password string) (*services.AuthResult, error)
	BaseURL() string
}

// CredentialStore persists signed-in accounts.
type CredentialStore interface {
	Save(c *models.Credential) error
	DeviceID() (string, error)
}

// SessionOpts configures a [Session].
type SessionOpts struct {
	Library     Library
	Catalog     services.Catalog
	Store       PlaybackStore
	Prefetcher  *Prefetcher // optional
	Auth        Authenticator
	Credentials CredentialStore
	UserID      string // account the cache was populated for, if any
	Logger      *log.Logger
	Progress    chan<- ProgressUpdate // optional, never blocks
}

// Session is the data side of a browse and playback host: listings, playlist resolution,
// resumption, ratings and playback transitions.
type Session struct {
	library     Library
	catalog     services.Catalog
	store       PlaybackStore
	resolver    *Resolver
	prefetcher  *Prefetcher
	auth        Authenticator
	credentials CredentialStore
	logger      *log.Logger
	progress    chan<- ProgressUpdate

	mu         sync.Mutex
	userID     string
	current    string
	positionMs int64
	lastReport chan struct{} // closed when the latest report batch is sent

	reports sync.WaitGroup
}

// NewSession wires a session together.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Library == nil {
		return nil, fmt.Errorf("%w: library", shared.ErrMissingArgument)
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog", shared.ErrMissingArgument)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: playback store", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Session{
		library:     opts.Library,
		catalog:     opts.Catalog,
		store:       opts.Store,
		resolver:    NewResolver(opts.Library, opts.Store, opts.Logger),
		prefetcher:  opts.Prefetcher,
		auth:        opts.Auth,
		credentials: opts.Credentials,
		logger:      shared.WithLogger(opts.Logger, "component", "session"),
		progress:    opts.Progress,
		userID:      opts.UserID,
	}, nil
}

// Root returns the top of the browse tree.
func (s *Session) Root(ctx context.Context) (models.Node, error) {
	return s.library.Get(ctx, models.RootID)
}

// Item returns a single node.
func (s *Session) Item(ctx context.Context, id string) (models.Node, error) {
	if id == "" {
		return models.Node{}, fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	return s.library.Get(ctx, id)
}

// Children lists one page of a node's children. A negative page or non-positive page size
// returns the whole listing.
func (s *Session) Children(ctx context.Context, parentID string, page, pageSize int) ([]models.Node, error) {
	if parentID == "" {
		return nil, fmt.Errorf("%w: parent id", shared.ErrMissingArgument)
	}
	nodes, err := s.library.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return Paginate(nodes, page, pageSize), nil
}

// Search runs a grouped search and returns one page of it.
func (s *Session) Search(ctx context.Context, query string, page, pageSize int) ([]models.Node, error) {
	nodes, err := s.library.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return Paginate(nodes, page, pageSize), nil
}

// Paginate returns page (zero based) of nodes.
func Paginate(nodes []models.Node, page, pageSize int) []models.Node {
	if page < 0 || pageSize <= 0 {
		return nodes
	}
	// page*pageSize may overflow, so bound page first.
	if len(nodes) == 0 || page > (len(nodes)-1)/pageSize {
		return []models.Node{}
	}
	start := page * pageSize
	return nodes[start : start+min(pageSize, len(nodes)-start)]
}

// SetPlaylist turns a host selection into the play queue.
//
// A single item that was browsed inside a listing plays in that listing's context. Anything
// else is resolved as given.
func (s *Session) SetPlaylist(ctx context.Context, refs []string, start models.StartPosition) (*Resolution, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no items selected", shared.ErrMissingArgument)
	}

	if len(refs) == 1 {
		if n, ok := s.library.Peek(refs[0]); ok && n.ParentRef != "" {
			res, err := s.resolver.ExpandInContext(ctx, refs[0], start.PositionMs)
			if err != nil {
				return nil, err
			}
			sendProgress(s.progress, expandedUpdate(n.ParentRef, res))
			return res, nil
		}
	}

	res, err := s.resolver.Resolve(ctx, refs, start)
	if err != nil {
		return nil, err
	}
	sendProgress(s.progress, resolvedUpdate(res))
	return res, nil
}

// Resumable rebuilds the last saved playlist.
//
// Ids that can no longer be fetched are dropped with a warning. The start index follows the
// saved track when it survived, and otherwise the next surviving one.
func (s *Session) Resumable(ctx context.Context) (*Resolution, error) {
	state, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load playback state: %w", err)
	}

	total := len(state.IDs)
	nodes := make([]models.Node, total)
	ok := make([]bool, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)
	for i, id := range state.IDs {
		g.Go(func() error {
			n, err := s.library.Get(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("dropping unavailable track", "id", id, "error", err)
				sendProgress(s.progress, restoreFailedUpdate(i+1, total, id, err))
				return nil
			}
			nodes[i], ok[i] = n, true
			sendProgress(s.progress, restoredUpdate(i+1, total, n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Resolution{Tracks: make([]models.Node, 0, total), StartPositionMs: state.PositionMs}
	index := -1
	for i, n := range nodes {
		if !ok[i] {
			continue
		}
		if index < 0 && i >= state.Index {
			index = len(res.Tracks)
		}
		res.Tracks = append(res.Tracks, n)
	}
	if index < 0 {
		index = len(res.Tracks) - 1
	}
	res.StartIndex = clampIndex(index, len(res.Tracks))

	s.logger.Info("restored playlist", "saved", total, "restored", len(res.Tracks), "index", res.StartIndex)
	return res, nil
}

// SetRating marks or unmarks a favourite on the server.
func (s *Session) SetRating(ctx context.Context, id string, favorite bool) error {
	if id == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	if err := s.catalog.SetFavorite(ctx, id, favorite); err != nil {
		return fmt.Errorf("failed to set rating for %s: %w", id, err)
	}
	s.logger.Info("rating updated", "id", id, "favorite", favorite)
	return nil
}

// OnTransition records that playback moved to tl.Items[index], reports it to the server and
// prefetches what plays next.
//
// Reports are sent in the background, in transition order, so a slow server never delays
// prefetching. Report failures are logged only.
func (s *Session) OnTransition(ctx context.Context, tl models.Timeline, index int) ([]int, error) {
	if index < 0 || index >= len(tl.Items) {
		return nil, fmt.Errorf("%w: index %d outside %d items", shared.ErrInvalidArgument, index, len(tl.Items))
	}
	if err := s.store.SaveIndex(index); err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}

	id := tl.Items[index].ID
	done := make(chan struct{})
	s.mu.Lock()
	prev, position := s.current, s.positionMs
	s.current, s.positionMs = id, 0
	after := s.lastReport
	s.lastReport = done
	s.mu.Unlock()

	s.reports.Add(1)
	go func() {
		defer s.reports.Done()
		defer close(done)
		if after != nil {
			<-after
		}
		s.report(context.WithoutCancel(ctx), prev, position, id)
	}()

	if s.prefetcher == nil {
		return []int{}, nil
	}
	return s.prefetcher.OnTransition(ctx, tl, index), nil
}

func (s *Session) report(ctx context.Context, prev string, position int64, id string) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	if prev != "" {
		if err := s.catalog.ReportPlaybackStopped(ctx, prev, position); err != nil {
			s.logger.Warn("failed to report playback stop", "id", prev, "error", err)
		}
	}
	if err := s.catalog.ReportPlaybackStart(ctx, id, 0); err != nil {
		s.logger.Warn("failed to report playback start", "id", id, "error", err)
	}
}

// WaitReports blocks until every playback report sent so far has finished.
func (s *Session) WaitReports() {
	s.reports.Wait()
}

// SavePosition records the playback position inside the current track.
func (s *Session) SavePosition(positionMs int64) error {
	if err := s.store.SavePosition(positionMs); err != nil {
		return err
	}
	s.mu.Lock()
	s.positionMs = positionMs
	s.mu.Unlock()
	return nil
}

// State returns the saved playback record.
func (s *Session) State() (models.PlaybackState, error) {
	return s.store.Load()
}

// Login signs in and stores the credential. Cached nodes are purged when the account changes.
func (s *Session) Login(ctx context.Context, username, password string) (*models.Credential, error) {
	if s.auth == nil || s.credentials == nil {
		return nil, fmt.Errorf("%w: session has no authenticator", shared.ErrMissingConfig)
	}

	result, err := s.auth.AuthenticateByName(ctx, username, password)
	if err != nil {
		return nil, err
	}

	deviceID, err := s.credentials.DeviceID()
	if err != nil {
		return nil, err
	}
	cred := &models.Credential{
		ServerURL:   s.auth.BaseURL(),
		UserID:      result.UserID,
		Username:    result.Username,
		AccessToken: result.AccessToken,
		DeviceID:    deviceID,
	}
	if err := s.credentials.Save(cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	s.mu.Lock()
	prev := s.userID
	s.userID = result.UserID
	s.mu.Unlock()

	if prev != "" && prev != result.UserID {
		s.library.Purge()
		s.logger.Info("account changed, node cache purged", "previous", prev, "user", result.UserID)
	}
	s.logger.Info("signed in", "user", result.Username, "server", cred.ServerURL)
	return cred, nil
}
