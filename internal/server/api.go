package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/desertthunder/dashtune/internal/tasks"
)

const maxBodyBytes = 1 << 20

// Session is the host-facing surface of [tasks.Session].
type Session interface {
	Root(ctx context.Context) (models.Node, error)
	Item(ctx context.Context, id string) (models.Node, error)
	Children(ctx context.Context, parentID string, page, pageSize int) ([]models.Node, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]models.Node, error)
	SetPlaylist(ctx context.Context, refs []string, start models.StartPosition) (*tasks.Resolution, error)
	Resumable(ctx context.Context) (*tasks.Resolution, error)
	SetRating(ctx context.Context, id string, favorite bool) error
	OnTransition(ctx context.Context, tl models.Timeline, index int) ([]int, error)
	SavePosition(positionMs int64) error
}

var _ Session = (*tasks.Session)(nil)

// API serves the JSON session endpoints.
type API struct {
	session Session
	logger  *log.Logger
}

// NewAPI creates the JSON API.
func NewAPI(session Session, logger *log.Logger) *API {
	return &API{session: session, logger: logger}
}

// Register adds every API route to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/api/root", http.HandlerFunc(a.root))
	r.Handle(http.MethodGet, "/api/items/{id}", http.HandlerFunc(a.item))
	r.Handle(http.MethodGet, "/api/items/{id}/children", http.HandlerFunc(a.children))
	r.Handle(http.MethodPost, "/api/items/{id}/rating", http.HandlerFunc(a.rating))
	r.Handle(http.MethodGet, "/api/search", http.HandlerFunc(a.search))
	r.Handle(http.MethodPost, "/api/playlist", http.HandlerFunc(a.setPlaylist))
	r.Handle(http.MethodGet, "/api/playlist/resume", http.HandlerFunc(a.resume))
	r.Handle(http.MethodPost, "/api/playback/transition", http.HandlerFunc(a.transition))
	r.Handle(http.MethodPost, "/api/playback/position", http.HandlerFunc(a.position))
}

// Diagnostic is a skipped selection entry in a playlist response.
type Diagnostic struct {
	ID    string      `json:"id"`
	Kind  models.Kind `json:"kind"`
	Title string      `json:"title,omitempty"`
	Error string      `json:"error"`
}

// PlaylistResponse is the JSON form of a [tasks.Resolution].
type PlaylistResponse struct {
	Tracks          []models.Node `json:"tracks"`
	StartIndex      int           `json:"start_index"`
	StartPositionMs int64         `json:"start_position_ms"`
	Skipped         []Diagnostic  `json:"skipped,omitempty"`
}

// NewPlaylistResponse converts a resolution.
func NewPlaylistResponse(res *tasks.Resolution) PlaylistResponse {
	out := PlaylistResponse{Tracks: res.Tracks, StartIndex: res.StartIndex, StartPositionMs: res.StartPositionMs}
	if out.Tracks == nil {
		out.Tracks = []models.Node{}
	}
	for _, d := range res.Diagnostics {
		out.Skipped = append(out.Skipped, Diagnostic{ID: d.ID, Kind: d.Kind, Title: d.Title, Error: d.Err.Error()})
	}
	return out
}

// PlaylistRequest selects items to play.
type PlaylistRequest struct {
	IDs             []string `json:"ids"`
	StartIndex      int      `json:"start_index"`
	StartPositionMs int64    `json:"start_position_ms"`
}

// RatingRequest sets or clears a favourite.
type RatingRequest struct {
	Favorite bool `json:"favorite"`
}

// TransitionRequest reports that playback moved to Index of Timeline.
type TransitionRequest struct {
	Timeline models.Timeline `json:"timeline"`
	Index    int             `json:"index"`
}

// TransitionResponse lists the timeline indices queued for download.
type TransitionResponse struct {
	Prefetched []int `json:"prefetched"`
}

// PositionRequest reports the playback position inside the current track.
type PositionRequest struct {
	PositionMs int64 `json:"position_ms"`
}

func (a *API) root(w http.ResponseWriter, r *http.Request) {
	n, err := a.session.Root(r.Context())
	a.respond(w, r, n, err)
}

func (a *API) item(w http.ResponseWriter, r *http.Request) {
	n, err := a.session.Item(r.Context(), r.PathValue("id"))
	a.respond(w, r, n, err)
}

func (a *API) children(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	nodes, err := a.session.Children(r.Context(), r.PathValue("id"), page, pageSize)
	a.respond(w, r, nodes, err)
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	nodes, err := a.session.Search(r.Context(), r.URL.Query().Get("q"), page, pageSize)
	a.respond(w, r, nodes, err)
}

func (a *API) rating(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.session.SetRating(r.Context(), r.PathValue("id"), req.Favorite); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setPlaylist(w http.ResponseWriter, r *http.Request) {
	var req PlaylistRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.session.SetPlaylist(r.Context(), req.IDs, models.StartPosition{Index: req.StartIndex, PositionMs: req.StartPositionMs})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPlaylistResponse(res))
}

func (a *API) resume(w http.ResponseWriter, r *http.Request) {
	res, err := a.session.Resumable(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPlaylistResponse(res))
}

func (a *API) transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	prefetched, err := a.session.OnTransition(r.Context(), req.Timeline, req.Index)
	a.respond(w, r, TransitionResponse{Prefetched: prefetched}, err)
}

func (a *API) position(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.session.SavePosition(req.PositionMs); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		a.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrAmbiguousPosition):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, shared.ErrRemoteUnavailable), errors.Is(err, shared.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrNoParent),
		errors.Is(err, shared.ErrUnplayable),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func pagination(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()
	page, pageSize = -1, 0
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: page %q", shared.ErrInvalidArgument, v)
		}
	}
	if v := q.Get("pageSize"); v != "" {
		if pageSize, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: pageSize %q", shared.ErrInvalidArgument, v)
		}
	}
	return page, pageSize, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
