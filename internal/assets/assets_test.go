package assets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/dashtune/internal/shared"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readAll(t *testing.T, f *os.File) string {
	t.Helper()
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	return string(data)
}

func TestHandles(t *testing.T) {
	c := newTestCache(t, Options{})

	a := c.MapToHandle("http://jf/Items/1/Images/Primary")
	b := c.MapToHandle("http://jf/Items/1/Images/Primary")
	other := c.MapToHandle("http://jf/Items/2/Images/Primary")

	if a != b {
		t.Errorf("same uri produced different handles: %s, %s", a, b)
	}
	if a == other {
		t.Error("different uris produced the same handle")
	}
	if !ValidHandle(a) || a != HandleFor("http://jf/Items/1/Images/Primary") {
		t.Errorf("unexpected handle %q", a)
	}
	if c.Stats().Registered != 2 {
		t.Errorf("expected 2 registered handles, got %d", c.Stats().Registered)
	}

	for _, bad := range []string{"", "../etc/passwd", "ABCDEF0123456789ABCDEF0123456789", a + "0"} {
		if ValidHandle(bad) {
			t.Errorf("ValidHandle(%q) = true", bad)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered handle", func(t *testing.T) {
		c := newTestCache(t, Options{})
		_, err := c.Open(ctx, HandleFor("http://never/registered"))
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		_, err = c.Open(ctx, "../../secret")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for malformed handle, got %v", err)
		}
	})

	t.Run("existing file is served without network", func(t *testing.T) {
		var calls atomic.Int32
		client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("network disabled")
		})}
		c := newTestCache(t, Options{Client: client})

		h := c.MapToHandle("http://jf/art/1")
		if err := os.WriteFile(c.Path(h), []byte("cached"), 0644); err != nil {
			t.Fatalf("seed file: %v", err)
		}

		f, err := c.Open(ctx, h)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if got := readAll(t, f); got != "cached" {
			t.Errorf("unexpected contents %q", got)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no network calls, got %d", calls.Load())
		}
	})

	t.Run("evicted handle still served from disk", func(t *testing.T) {
		c := newTestCache(t, Options{RegistryCapacity: 1})

		h := c.MapToHandle("http://jf/art/old")
		if err := os.WriteFile(c.Path(h), []byte("old"), 0644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
		c.MapToHandle("http://jf/art/new")

		f, err := c.Open(ctx, h)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		f.Close()
	})

	t.Run("concurrent opens share one transfer", func(t *testing.T) {
		const n = 8
		var hits atomic.Int32
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			<-release
			w.Write([]byte("jpeg-bytes"))
		}))
		defer server.Close()

		c := newTestCache(t, Options{})
		h := c.MapToHandle(server.URL + "/Items/1/Images/Primary")

		var wg sync.WaitGroup
		names := make([]string, n)
		contents := make([]string, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f, err := c.Open(ctx, h)
				if err != nil {
					errs[i] = err
					return
				}
				names[i] = f.Name()
				data, err := io.ReadAll(f)
				f.Close()
				errs[i] = err
				contents[i] = string(data)
			}(i)
		}

		waitFor(t, func() bool { return hits.Load() == 1 && c.waiting.Load() == n-1 })
		close(release)
		wg.Wait()

		if hits.Load() != 1 {
			t.Errorf("expected exactly one transfer, got %d", hits.Load())
		}
		for i := 0; i < n; i++ {
			if errs[i] != nil {
				t.Errorf("caller %d: unexpected error %v", i, errs[i])
				continue
			}
			if names[i] != c.Path(h) || contents[i] != "jpeg-bytes" {
				t.Errorf("caller %d: got %s %q", i, names[i], contents[i])
			}
		}
		if s := c.Stats(); s.Fetches != 1 || s.InFlight != 0 || s.Bytes != int64(len("jpeg-bytes")) {
			t.Errorf("unexpected stats %+v", s)
		}
	})

	t.Run("cancelled first caller does not fail waiters", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.Write([]byte("jpeg-bytes"))
		}))
		defer server.Close()

		c := newTestCache(t, Options{})
		h := c.MapToHandle(server.URL + "/Items/2/Images/Primary")

		firstCtx, cancel := context.WithCancel(ctx)
		first := make(chan error, 1)
		go func() {
			f, err := c.Open(firstCtx, h)
			if f != nil {
				f.Close()
			}
			first <- err
		}()
		waitFor(t, func() bool { return c.Stats().InFlight == 1 })

		waiter := make(chan string, 1)
		go func() {
			f, err := c.Open(ctx, h)
			if err != nil {
				waiter <- "error: " + err.Error()
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			waiter <- string(data)
		}()
		waitFor(t, func() bool { return c.waiting.Load() == 1 })

		cancel()
		if err := <-first; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled for the first caller, got %v", err)
		}

		close(release)
		if got := <-waiter; got != "jpeg-bytes" {
			t.Errorf("waiter got %q", got)
		}
		if s := c.Stats(); s.Fetches != 1 || s.Failures != 0 {
			t.Errorf("unexpected stats %+v", s)
		}
	})

	t.Run("transfer is bounded by the cache timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		c := newTestCache(t, Options{Timeout: 20 * time.Millisecond})
		h := c.MapToHandle(server.URL + "/stuck")

		if _, err := c.Open(ctx, h); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if _, err := os.Stat(c.Path(h)); !os.IsNotExist(err) {
			t.Error("timed out transfer left a cache file")
		}
	})

	t.Run("failed transfer reaches every caller and leaves no file", func(t *testing.T) {
		const n = 5
		var hits atomic.Int32
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			<-release
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		dir := t.TempDir()
		c := newTestCache(t, Options{Dir: dir})
		h := c.MapToHandle(server.URL + "/broken")

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f, err := c.Open(ctx, h)
				if f != nil {
					f.Close()
				}
				errs[i] = err
			}(i)
		}

		waitFor(t, func() bool { return hits.Load() == 1 && c.waiting.Load() == n-1 })
		close(release)
		wg.Wait()

		for i, err := range errs {
			if !errors.Is(err, shared.ErrFetchFailed) {
				t.Errorf("caller %d: expected ErrFetchFailed, got %v", i, err)
			}
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("expected no files after failure, found %d", len(entries))
		}
		if hits.Load() != 1 {
			t.Errorf("expected exactly one transfer, got %d", hits.Load())
		}
	})

	t.Run("empty body is a fetch failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		dir := t.TempDir()
		c := newTestCache(t, Options{Dir: dir})
		h := c.MapToHandle(server.URL + "/empty")

		if _, err := c.Open(ctx, h); !errors.Is(err, shared.ErrFetchFailed) {
			t.Errorf("expected ErrFetchFailed, got %v", err)
		}
		if entries, _ := os.ReadDir(dir); len(entries) != 0 {
			t.Errorf("expected no files after failure, found %d", len(entries))
		}
	})

	t.Run("waiter times out then winner finishes", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.Write([]byte("late"))
		}))
		defer server.Close()

		c := newTestCache(t, Options{Wait: 20 * time.Millisecond})
		h := c.MapToHandle(server.URL + "/slow")

		winner := make(chan error, 1)
		go func() {
			f, err := c.Open(ctx, h)
			if f != nil {
				f.Close()
			}
			winner <- err
		}()
		waitFor(t, func() bool { return c.Stats().InFlight == 1 })

		if _, err := c.Open(ctx, h); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}

		close(release)
		if err := <-winner; err != nil {
			t.Fatalf("winner error = %v", err)
		}

		f, err := c.Open(ctx, h)
		if err != nil {
			t.Fatalf("Open() after completion error = %v", err)
		}
		if got := readAll(t, f); got != "late" {
			t.Errorf("unexpected contents %q", got)
		}
	})
}
