// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/dashtune/internal/services"
	"github.com/desertthunder/dashtune/internal/shared"
)

// FakeCatalog is an in-memory [services.Catalog].
//
// Items are returned in the order they were added. Children of a parent (album tracks, playlist
// entries, folder contents, or an artist's albums) are registered with [FakeCatalog.SetChildren]
// and returned in that order; the fake never sorts, so tests assert on the recorded queries.
type FakeCatalog struct {
	mu       sync.Mutex
	order    []string
	items    map[string]services.Item
	children map[string][]string
	calls    map[string]int
	queries  []services.ItemsQuery
	errs     map[string]error
	reports  []PlaybackReport

	// Err is returned by every network method when set.
	Err error

	// Gate, when set, blocks GetItem and playback reports until it is closed.
	Gate chan struct{}
}

// PlaybackReport records a start or stop report.
type PlaybackReport struct {
	Event      string
	ID         string
	PositionMs int64
}

var _ services.Catalog = (*FakeCatalog)(nil)

// NewFakeCatalog creates an empty fake.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		items:    make(map[string]services.Item),
		children: make(map[string][]string),
		calls:    make(map[string]int),
		errs:     make(map[string]error),
	}
}

// Add registers items. Re-adding an id replaces it in place.
func (f *FakeCatalog) Add(items ...services.Item) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		if _, ok := f.items[it.ID]; !ok {
			f.order = append(f.order, it.ID)
		}
		f.items[it.ID] = it
	}
	return f
}

// SetChildren registers the listing of parent.
func (f *FakeCatalog) SetChildren(parent string, ids ...string) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[parent] = ids
	return f
}

// FailID makes GetItem for id, and listings under id, fail with err.
func (f *FakeCatalog) FailID(id string, err error) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
	return f
}

// Calls returns how many times the named method ran.
func (f *FakeCatalog) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Queries returns every [services.ItemsQuery] seen by Items.
func (f *FakeCatalog) Queries() []services.ItemsQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queries)
}

// Reports returns every playback report.
func (f *FakeCatalog) Reports() []PlaybackReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.reports)
}

// Item returns the stored item.
func (f *FakeCatalog) Item(id string) (services.Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	return it, ok
}

func (f *FakeCatalog) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.Err
}

func (f *FakeCatalog) GetItem(ctx context.Context, id string) (*services.Item, error) {
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	it, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &it, nil
}

func (f *FakeCatalog) Latest(ctx context.Context, limit int) ([]services.Item, error) {
	if err := f.enter("Latest"); err != nil {
		return nil, err
	}
	return f.filter(func(it services.Item) bool { return it.Type == services.TypeMusicAlbum }, limit), nil
}

func (f *FakeCatalog) Items(ctx context.Context, q services.ItemsQuery) ([]services.Item, error) {
	if err := f.enter("Items"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.queries = append(f.queries, q)
	parent := q.ParentID
	if len(q.AlbumArtistIDs) > 0 {
		parent = q.AlbumArtistIDs[0]
	}
	if err := f.errs[parent]; parent != "" && err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	if parent != "" {
		return f.listing(parent, q.Limit), nil
	}

	favorites := slices.Contains(q.Filters, services.FilterIsFavorite)
	term := strings.ToLower(q.SearchTerm)
	return f.filter(func(it services.Item) bool {
		if len(q.IncludeTypes) > 0 && !slices.Contains(q.IncludeTypes, it.Type) {
			return false
		}
		if favorites && !it.Favorite() {
			return false
		}
		return term == "" || strings.Contains(strings.ToLower(it.Name), term)
	}, q.Limit), nil
}

func (f *FakeCatalog) AlbumArtists(ctx context.Context, search string, limit int) ([]services.Item, error) {
	if err := f.enter("AlbumArtists"); err != nil {
		return nil, err
	}
	term := strings.ToLower(search)
	return f.filter(func(it services.Item) bool {
		return it.Type == services.TypeMusicArtist && strings.Contains(strings.ToLower(it.Name), term)
	}, limit), nil
}

func (f *FakeCatalog) SetFavorite(ctx context.Context, id string, favorite bool) error {
	if err := f.enter("SetFavorite"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	it.UserData = &services.UserData{IsFavorite: favorite}
	f.items[id] = it
	return nil
}

func (f *FakeCatalog) ReportPlaybackStart(ctx context.Context, id string, positionMs int64) error {
	return f.report(ctx, "start", id, positionMs)
}

func (f *FakeCatalog) ReportPlaybackStopped(ctx context.Context, id string, positionMs int64) error {
	return f.report(ctx, "stop", id, positionMs)
}

func (f *FakeCatalog) report(ctx context.Context, event, id string, positionMs int64) error {
	if err := f.enter("Report"); err != nil {
		return err
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, PlaybackReport{Event: event, ID: id, PositionMs: positionMs})
	return nil
}

func (f *FakeCatalog) ImageURL(id string) string {
	return "http://fake/Items/" + id + "/Images/Primary"
}

func (f *FakeCatalog) AudioStreamURL(id string) string {
	return "http://fake/Audio/" + id + "/universal"
}

func (f *FakeCatalog) filter(keep func(services.Item) bool, limit int) []services.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []services.Item{}
	for _, id := range f.order {
		if it := f.items[id]; keep(it) {
			out = append(out, it)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (f *FakeCatalog) listing(parent string, limit int) []services.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []services.Item{}
	for _, id := range f.children[parent] {
		if it, ok := f.items[id]; ok {
			out = append(out, it)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Track builds an audio item.
func Track(id, name, albumID string, durationMs int64) services.Item {
	return services.Item{ID: id, Name: name, Type: services.TypeAudio, AlbumID: albumID, RunTimeTicks: durationMs * 10_000}
}

// Album builds an album item.
func Album(id, name, artist string) services.Item {
	return services.Item{ID: id, Name: name, Type: services.TypeMusicAlbum, IsFolder: true, AlbumArtist: artist}
}

// Artist builds an album artist item.
func Artist(id, name string) services.Item {
	return services.Item{ID: id, Name: name, Type: services.TypeMusicArtist, IsFolder: true}
}

// Playlist builds a playlist item.
func Playlist(id, name string) services.Item {
	return services.Item{ID: id, Name: name, Type: services.TypePlaylist, IsFolder: true}
}

// Folder builds a plain folder item.
func Folder(id, name string) services.Item {
	return services.Item{ID: id, Name: name, Type: services.TypeFolder, IsFolder: true}
}

// Favorite marks an item as favourited.
func Favorite(it services.Item) services.Item {
	it.UserData = &services.UserData{IsFavorite: true}
	return it
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// RoundTripFunc adapts a function into an [http.RoundTripper].
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// MustOpenDatabase opens a migrated in-memory database that is closed with the test.
func MustOpenDatabase(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
