package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/tasks"
)

type fakeSession struct {
	children    map[string][]models.Node
	searched    []string
	played      [][]string
	rated       map[string]bool
	transitions []int
	resumeErr   error
}

func newFakeSession() *fakeSession {
	track := func(id, title string) models.Node {
		return models.Node{ID: id, Kind: models.KindTrack, Title: title, Subtitle: "Artist", Track: &models.TrackInfo{DurationMs: 200_000}}
	}
	return &fakeSession{
		children: map[string][]models.Node{
			models.RootID: {
				{ID: "al1", Kind: models.KindAlbum, Title: "Album One"},
				track("t9", "Loose Track"),
			},
			"al1": {track("t1", "One"), track("t2", "Two"), track("t3", "Three")},
		},
		rated: map[string]bool{},
	}
}

func (f *fakeSession) Root(ctx context.Context) (models.Node, error) {
	return models.Node{ID: models.RootID, Kind: models.KindFolder}, nil
}

func (f *fakeSession) Children(ctx context.Context, parentID string, page, pageSize int) ([]models.Node, error) {
	nodes, ok := f.children[parentID]
	if !ok {
		return nil, errors.New("not found")
	}
	return nodes, nil
}

func (f *fakeSession) Search(ctx context.Context, query string, page, pageSize int) ([]models.Node, error) {
	f.searched = append(f.searched, query)
	return f.children["al1"][:1], nil
}

func (f *fakeSession) SetPlaylist(ctx context.Context, refs []string, start models.StartPosition) (*tasks.Resolution, error) {
	f.played = append(f.played, refs)
	if refs[0] == "al1" {
		return &tasks.Resolution{Tracks: f.children["al1"]}, nil
	}
	return &tasks.Resolution{Tracks: f.children["al1"], StartIndex: 1}, nil
}

func (f *fakeSession) Resumable(ctx context.Context) (*tasks.Resolution, error) {
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	return &tasks.Resolution{}, nil
}

func (f *fakeSession) SetRating(ctx context.Context, id string, favorite bool) error {
	f.rated[id] = favorite
	return nil
}

func (f *fakeSession) OnTransition(ctx context.Context, tl models.Timeline, index int) ([]int, error) {
	f.transitions = append(f.transitions, index)
	return []int{index + 1}, nil
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// exec runs cmd and feeds its message back into the model.
func exec(t *testing.T, m *Model, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	_, next := m.Update(cmd())
	return next
}

func newTestModel(t *testing.T) (*Model, *fakeSession) {
	t.Helper()
	session := newFakeSession()
	m := NewModel(context.Background(), session, nil)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	exec(t, m, m.fetchRoot())
	return m, session
}

func TestBrowse(t *testing.T) {
	m, _ := newTestModel(t)

	if len(m.stack) != 1 || len(m.browser.Items()) != 2 {
		t.Fatalf("expected root listing with 2 items, got %d frames", len(m.stack))
	}
	if m.browser.Title != "Library" {
		t.Errorf("expected Library title, got %q", m.browser.Title)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	exec(t, m, cmd)
	if len(m.stack) != 2 || m.browser.Title != "Album One" {
		t.Fatalf("expected album listing, got %q", m.browser.Title)
	}
	if got := len(m.browser.Items()); got != 3 {
		t.Errorf("expected 3 tracks, got %d", got)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if len(m.stack) != 1 {
		t.Errorf("esc should pop back to root, got %d frames", len(m.stack))
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if len(m.stack) != 1 {
		t.Error("esc at the root should be a no-op")
	}

	if !strings.Contains(m.View(), "Album One") {
		t.Errorf("view missing listing:\n%s", m.View())
	}
}

func TestPlayAndTransition(t *testing.T) {
	m, session := newTestModel(t)

	_, cmd := m.Update(runes("p"))
	next := exec(t, m, cmd)

	if m.view != QueueView {
		t.Fatalf("expected queue view, got %v", m.view)
	}
	if len(session.played) != 1 || session.played[0][0] != "al1" {
		t.Errorf("unexpected SetPlaylist calls %v", session.played)
	}
	if len(m.timeline.Items) != 3 {
		t.Errorf("expected 3 timeline items, got %d", len(m.timeline.Items))
	}

	exec(t, m, next)
	if m.playing != 0 || len(session.transitions) != 1 {
		t.Fatalf("expected playback at 0, got %d (%v)", m.playing, session.transitions)
	}
	if !strings.Contains(m.status, "One") {
		t.Errorf("unexpected status %q", m.status)
	}
	if !m.Clock().Playing() || m.Clock().DurationMs() != 200_000 {
		t.Error("transition should start the playback clock")
	}

	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	if m.Clock().Playing() || m.status != "Paused" {
		t.Errorf("space should pause, status %q", m.status)
	}
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	if !m.Clock().Playing() {
		t.Error("space should resume")
	}

	_, cmd = m.Update(runes("n"))
	exec(t, m, cmd)
	if m.playing != 1 {
		t.Errorf("expected next track, got %d", m.playing)
	}

	m.playing = 2
	if _, cmd := m.Update(runes("n")); cmd != nil {
		t.Error("no transition past the end of the queue")
	}
	if m.status != "End of queue" {
		t.Errorf("unexpected status %q", m.status)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.view != BrowseView {
		t.Error("tab should return to the browser")
	}
}

func TestEnterOnTrackPlaysInContext(t *testing.T) {
	m, session := newTestModel(t)
	m.browser.Select(1)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	exec(t, m, cmd)

	if len(session.played) != 1 || session.played[0][0] != "t9" {
		t.Fatalf("unexpected SetPlaylist calls %v", session.played)
	}
	if m.queue.Index() != 1 {
		t.Errorf("queue should select the start index, got %d", m.queue.Index())
	}
}

func TestFavoriteToggle(t *testing.T) {
	m, session := newTestModel(t)
	m.browser.Select(1)

	_, cmd := m.Update(runes("f"))
	exec(t, m, cmd)

	if fav, ok := session.rated["t9"]; !ok || !fav {
		t.Fatalf("expected t9 favourited, got %v", session.rated)
	}
	n, _ := m.selected()
	if !n.Track.Favorite {
		t.Error("listing should reflect the new rating")
	}
	if !strings.Contains(m.status, "♥") {
		t.Errorf("unexpected status %q", m.status)
	}

	m.browser.Select(0)
	if _, cmd := m.Update(runes("f")); cmd != nil {
		t.Error("albums cannot be rated")
	}
}

func TestSearch(t *testing.T) {
	m, session := newTestModel(t)

	m.Update(runes("/"))
	if m.view != SearchView {
		t.Fatalf("expected search view, got %v", m.view)
	}
	m.Update(runes("q"))
	if m.view != SearchView {
		t.Fatal("typing q in the search box must not quit")
	}
	m.Update(runes("ueen"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	exec(t, m, cmd)

	if len(session.searched) != 1 || session.searched[0] != "queen" {
		t.Errorf("unexpected searches %v", session.searched)
	}
	if m.view != BrowseView || m.browser.Title != "Search: queen" {
		t.Errorf("expected results listing, got %q", m.browser.Title)
	}
}

func TestErrors(t *testing.T) {
	m, session := newTestModel(t)
	session.resumeErr = errors.New("boom")

	_, cmd := m.Update(runes("r"))
	exec(t, m, cmd)

	if m.err == nil || !strings.Contains(m.View(), "Error: boom") {
		t.Errorf("expected inline error, got:\n%s", m.View())
	}
	if m.view != BrowseView {
		t.Error("a failed resume keeps the browser open")
	}
}

func TestEmptyResolution(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(playlistResolvedMsg(&tasks.Resolution{Diagnostics: []tasks.Diagnostic{{ID: "x"}}}, nil))
	if cmd != nil || m.view != BrowseView {
		t.Error("an empty resolution must not open the queue")
	}
	if m.status != "Nothing playable (1 skipped)" {
		t.Errorf("unexpected status %q", m.status)
	}
}

func TestProgressUpdates(t *testing.T) {
	progress := make(chan tasks.ProgressUpdate, 1)
	m := NewModel(context.Background(), newFakeSession(), progress)

	progress <- tasks.ProgressUpdate{Message: "Resolved 3 tracks"}
	next := exec(t, m, m.waitForProgress())
	if m.status != "Resolved 3 tracks" {
		t.Errorf("unexpected status %q", m.status)
	}

	close(progress)
	exec(t, m, next)
	if m.progress != nil || m.waitForProgress() != nil {
		t.Error("closed progress channel should stop polling")
	}
}
