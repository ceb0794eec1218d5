package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/desertthunder/dashtune/internal/tasks"
)

type mockSession struct {
	nodes      map[string]models.Node
	children   map[string][]models.Node
	err        error
	refs       []string
	start      models.StartPosition
	rating     map[string]bool
	transition *models.Timeline
	index      int
	positionMs int64
	page       [2]int
}

func newMockSession() *mockSession {
	track := func(id string) models.Node {
		return models.Node{ID: id, Kind: models.KindTrack, Title: "Track " + id, Track: &models.TrackInfo{DurationMs: 1000}}
	}
	return &mockSession{
		nodes: map[string]models.Node{
			models.RootID: {ID: models.RootID, Kind: models.KindFolder, Title: "Root"},
			"al1":         {ID: "al1", Kind: models.KindAlbum, Title: "Album"},
			"t1":          track("t1"),
		},
		children: map[string][]models.Node{
			"al1": {track("t1"), track("t2")},
		},
		rating: map[string]bool{},
	}
}

func (m *mockSession) Root(ctx context.Context) (models.Node, error) {
	return m.Item(ctx, models.RootID)
}

func (m *mockSession) Item(ctx context.Context, id string) (models.Node, error) {
	if m.err != nil {
		return models.Node{}, m.err
	}
	n, ok := m.nodes[id]
	if !ok {
		return models.Node{}, fmt.Errorf("%w: %s", shared.ErrNotFound, id)
	}
	return n, nil
}

func (m *mockSession) Children(ctx context.Context, parentID string, page, pageSize int) ([]models.Node, error) {
	m.page = [2]int{page, pageSize}
	if m.err != nil {
		return nil, m.err
	}
	return tasks.Paginate(m.children[parentID], page, pageSize), nil
}

func (m *mockSession) Search(ctx context.Context, query string, page, pageSize int) ([]models.Node, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Node{}
	for _, id := range []string{"al1", "t1"} {
		if strings.Contains(strings.ToLower(m.nodes[id].Title), strings.ToLower(query)) {
			out = append(out, m.nodes[id])
		}
	}
	return out, nil
}

func (m *mockSession) SetPlaylist(ctx context.Context, refs []string, start models.StartPosition) (*tasks.Resolution, error) {
	m.refs, m.start = refs, start
	if m.err != nil {
		return nil, m.err
	}
	return &tasks.Resolution{
		Tracks:          m.children["al1"],
		StartIndex:      start.Index,
		StartPositionMs: start.PositionMs,
		Diagnostics: []tasks.Diagnostic{
			{ID: "ar1", Kind: models.KindArtist, Title: "Artist", Err: shared.ErrUnplayable},
		},
	}, nil
}

func (m *mockSession) Resumable(ctx context.Context) (*tasks.Resolution, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &tasks.Resolution{Tracks: m.children["al1"], StartIndex: 1, StartPositionMs: 500}, nil
}

func (m *mockSession) SetRating(ctx context.Context, id string, favorite bool) error {
	if m.err != nil {
		return m.err
	}
	m.rating[id] = favorite
	return nil
}

func (m *mockSession) OnTransition(ctx context.Context, tl models.Timeline, index int) ([]int, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.transition, m.index = &tl, index
	return []int{index + 1}, nil
}

func (m *mockSession) SavePosition(positionMs int64) error {
	m.positionMs = positionMs
	return m.err
}

type dirStore struct {
	dir string
	err error
}

func (d *dirStore) Open(ctx context.Context, handle string) (*os.File, error) {
	if d.err != nil {
		return nil, d.err
	}
	f, err := os.Open(filepath.Join(d.dir, handle))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, handle)
	}
	return f, nil
}

func newTestServer(t *testing.T, session Session, art ArtworkStore) *httptest.Server {
	t.Helper()
	srv, err := New(Options{Session: session, Art: art})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrRemoteUnavailable, http.StatusBadGateway},
		{shared.ErrFetchFailed, http.StatusBadGateway},
		{shared.ErrTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{shared.ErrAmbiguousPosition, http.StatusConflict},
		{shared.ErrNotAuthenticated, http.StatusUnauthorized},
		{shared.ErrNoParent, http.StatusBadRequest},
		{shared.ErrInvalidArgument, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestAPI(t *testing.T) {
	t.Run("root and item", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{})

		resp, body := do(t, http.MethodGet, ts.URL+"/api/root", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
		}
		var n models.Node
		if err := json.Unmarshal(body, &n); err != nil {
			t.Fatal(err)
		}
		if n.ID != models.RootID || n.Kind != models.KindFolder {
			t.Errorf("unexpected root %+v", n)
		}

		resp, body = do(t, http.MethodGet, ts.URL+"/api/items/t1", "")
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"kind":"track"`) {
			t.Errorf("unexpected item response %d: %s", resp.StatusCode, body)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{})
		resp, body := do(t, http.MethodGet, ts.URL+"/api/items/missing", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
		var e map[string]string
		if err := json.Unmarshal(body, &e); err != nil || !strings.Contains(e["error"], "missing") {
			t.Errorf("unexpected error body %s", body)
		}
	})

	t.Run("children paging", func(t *testing.T) {
		session := newMockSession()
		ts := newTestServer(t, session, &dirStore{})

		resp, body := do(t, http.MethodGet, ts.URL+"/api/items/al1/children?page=1&pageSize=1", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
		}
		var nodes []models.Node
		if err := json.Unmarshal(body, &nodes); err != nil {
			t.Fatal(err)
		}
		if len(nodes) != 1 || nodes[0].ID != "t2" {
			t.Errorf("unexpected page %+v", nodes)
		}

		do(t, http.MethodGet, ts.URL+"/api/items/al1/children", "")
		if session.page != [2]int{-1, 0} {
			t.Errorf("expected whole listing, got %v", session.page)
		}

		resp, body = do(t, http.MethodGet, ts.URL+"/api/items/al1/children?page=4611686018427387904&pageSize=2", "")
		if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
			t.Errorf("expected an empty page past the end, got %d: %s", resp.StatusCode, body)
		}

		resp, _ = do(t, http.MethodGet, ts.URL+"/api/items/al1/children?page=x", "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for bad page, got %d", resp.StatusCode)
		}
	})

	t.Run("search", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{})
		_, body := do(t, http.MethodGet, ts.URL+"/api/search?q=album", "")
		var nodes []models.Node
		if err := json.Unmarshal(body, &nodes); err != nil {
			t.Fatal(err)
		}
		if len(nodes) != 1 || nodes[0].ID != "al1" {
			t.Errorf("unexpected results %+v", nodes)
		}
	})

	t.Run("set playlist", func(t *testing.T) {
		session := newMockSession()
		ts := newTestServer(t, session, &dirStore{})

		resp, body := do(t, http.MethodPost, ts.URL+"/api/playlist", `{"ids":["al1","ar1"],"start_index":1,"start_position_ms":250}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
		}
		if !slices.Equal(session.refs, []string{"al1", "ar1"}) || session.start.Index != 1 || session.start.PositionMs != 250 {
			t.Errorf("unexpected call %v %+v", session.refs, session.start)
		}

		var out PlaylistResponse
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatal(err)
		}
		if len(out.Tracks) != 2 || out.StartIndex != 1 || out.StartPositionMs != 250 {
			t.Errorf("unexpected response %+v", out)
		}
		if len(out.Skipped) != 1 || out.Skipped[0].ID != "ar1" || out.Skipped[0].Kind != models.KindArtist {
			t.Errorf("unexpected skipped %+v", out.Skipped)
		}
	})

	t.Run("bad body", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{})
		for _, body := range []string{`{`, `{"nope":1}`} {
			resp, _ := do(t, http.MethodPost, ts.URL+"/api/playlist", body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
			}
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		session := newMockSession()
		session.err = shared.ErrAmbiguousPosition
		ts := newTestServer(t, session, &dirStore{})

		resp, _ := do(t, http.MethodPost, ts.URL+"/api/playlist", `{"ids":["t1"]}`)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409, got %d", resp.StatusCode)
		}

		session.err = shared.ErrRemoteUnavailable
		resp, _ = do(t, http.MethodGet, ts.URL+"/api/playlist/resume", "")
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
	})

	t.Run("resume", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{})
		_, body := do(t, http.MethodGet, ts.URL+"/api/playlist/resume", "")
		var out PlaylistResponse
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatal(err)
		}
		if len(out.Tracks) != 2 || out.StartIndex != 1 || out.StartPositionMs != 500 {
			t.Errorf("unexpected response %+v", out)
		}
	})

	t.Run("rating", func(t *testing.T) {
		session := newMockSession()
		ts := newTestServer(t, session, &dirStore{})
		resp, _ := do(t, http.MethodPost, ts.URL+"/api/items/t1/rating", `{"favorite":true}`)
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204, got %d", resp.StatusCode)
		}
		if !session.rating["t1"] {
			t.Error("expected t1 to be rated")
		}
	})

	t.Run("transition and position", func(t *testing.T) {
		session := newMockSession()
		ts := newTestServer(t, session, &dirStore{})

		body := `{"timeline":{"items":[{"id":"t1","uri":"http://jf/a"},{"id":"t2","uri":"http://jf/b"}],"shuffle":false,"repeat":"all"},"index":0}`
		resp, data := do(t, http.MethodPost, ts.URL+"/api/playback/transition", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", resp.StatusCode, data)
		}
		var out TransitionResponse
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(out.Prefetched, []int{1}) {
			t.Errorf("unexpected prefetched %v", out.Prefetched)
		}
		if session.transition == nil || len(session.transition.Items) != 2 || session.transition.Repeat != models.RepeatAll {
			t.Errorf("unexpected timeline %+v", session.transition)
		}

		resp, _ = do(t, http.MethodPost, ts.URL+"/api/playback/position", `{"position_ms":9000}`)
		if resp.StatusCode != http.StatusNoContent || session.positionMs != 9000 {
			t.Errorf("unexpected position response %d, saved %d", resp.StatusCode, session.positionMs)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{})
		resp, _ := do(t, http.MethodDelete, ts.URL+"/api/root", "")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
	})
}

func TestArtHandler(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("P", 1024)
	if err := os.WriteFile(filepath.Join(dir, "abc"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("serves the file", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{dir: dir})
		resp, body := do(t, http.MethodGet, ts.URL+"/art/abc", "")
		if resp.StatusCode != http.StatusOK || string(body) != content {
			t.Errorf("unexpected response %d (%d bytes)", resp.StatusCode, len(body))
		}
		if resp.Header.Get("Last-Modified") == "" {
			t.Error("expected Last-Modified header")
		}
	})

	t.Run("range request", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{dir: dir})
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/art/abc", nil)
		req.Header.Set("Range", "bytes=0-9")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusPartialContent || len(body) != 10 {
			t.Errorf("unexpected range response %d (%d bytes)", resp.StatusCode, len(body))
		}
	})

	t.Run("unknown handle", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{dir: dir})
		resp, _ := do(t, http.MethodGet, ts.URL+"/art/nope", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("fetch timeout", func(t *testing.T) {
		ts := newTestServer(t, newMockSession(), &dirStore{dir: dir, err: shared.ErrTimeout})
		resp, _ := do(t, http.MethodGet, ts.URL+"/art/abc", "")
		if resp.StatusCode != http.StatusGatewayTimeout {
			t.Errorf("expected 504, got %d", resp.StatusCode)
		}
	})
}

func TestBasicRouterMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewBasicRouter()
	router.Use(mark("first"), mark("second"))
	router.HandleFunc(http.MethodGet, "/x", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if !slices.Equal(order, []string{"first", "second", "handler"}) {
		t.Errorf("unexpected order %v", order)
	}
}

func TestRecoverer(t *testing.T) {
	router := NewBasicRouter()
	router.Use(Recoverer(shared.NewLogger(io.Discard)))
	router.HandleFunc(http.MethodGet, "/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestServerRun(t *testing.T) {
	srv, err := New(Options{Addr: "127.0.0.1:0", Session: newMockSession(), Art: &dirStore{}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	if _, err := New(Options{Art: &dirStore{}}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
}
