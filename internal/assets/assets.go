// Package assets implements a request-coalescing, disk-backed cache for remote binary assets such as album art.
//
// A remote URI is mapped to a deterministic handle with [Cache.MapToHandle]. [Cache.Open] returns the
// cached file for a handle, fetching it on first use. Concurrent opens of the same remote resource
// share a single network transfer: the first caller fetches, the rest wait on a one-shot gate.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	handleLen       = 32
	defaultWait     = 15 * time.Second
	defaultTimeout  = 2 * time.Minute
	defaultCapacity = 4096
)

// Options configures a [Cache].
type Options struct {
	Dir              string
	Client           *http.Client
	RegistryCapacity int
	Wait             time.Duration
	Timeout          time.Duration // bounds one transfer, independent of any caller
	Logger           *log.Logger
}

// fetch is the in-progress registration for one remote URI.
// err is written by the winner before done is closed.
type fetch struct {
	done chan struct{}
	err  error
}

// Cache maps handles to remote URIs and serves their bytes from disk.
type Cache struct {
	dir    string
	client  *http.Client
	wait    time.Duration
	timeout time.Duration
	logger  *log.Logger

	registry *lru.Cache[string, string]

	mu       sync.Mutex
	inflight map[string]*fetch

	waiting  atomic.Int32
	fetches  atomic.Int64
	failures atomic.Int64
	bytes    atomic.Int64
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Registered int
	InFlight   int
	Fetches    int64
	Failures   int64
	Bytes      int64
}

// New creates the cache directory and an empty registry.
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: asset cache dir", shared.ErrMissingArgument)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.RegistryCapacity <= 0 {
		opts.RegistryCapacity = defaultCapacity
	}
	if opts.Wait <= 0 {
		opts.Wait = defaultWait
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset cache dir: %w", err)
	}

	registry, err := lru.New[string, string](opts.RegistryCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset registry: %w", err)
	}

	return &Cache{
		dir:      opts.Dir,
		client:   opts.Client,
		wait:     opts.Wait,
		timeout:  opts.Timeout,
		logger:   shared.WithLogger(opts.Logger, "component", "assets"),
		registry: registry,
		inflight: make(map[string]*fetch),
	}, nil
}

// HandleFor derives the handle of a remote URI without registering it.
func HandleFor(remoteURI string) string {
	sum := sha256.Sum256([]byte(remoteURI))
	return hex.EncodeToString(sum[:])[:handleLen]
}

// ValidHandle reports whether s has the shape of a handle.
func ValidHandle(s string) bool {
	if len(s) != handleLen {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// MapToHandle registers remoteURI and returns its handle. The same URI always yields the same handle.
func (c *Cache) MapToHandle(remoteURI string) string {
	h := HandleFor(remoteURI)
	c.registry.Add(h, remoteURI)
	return h
}

// Path is where the file for handle lives once fetched.
func (c *Cache) Path(handle string) string {
	return filepath.Join(c.dir, handle)
}

// Open returns the cached file for handle, fetching it if needed.
//
// Errors: [shared.ErrNotFound] for an unknown handle, [shared.ErrFetchFailed] for a bad response,
// [shared.ErrTimeout] when a concurrent fetch does not finish within the wait bound,
// [shared.ErrRemoteUnavailable] for transport failures.
// The caller must close the returned file.
func (c *Cache) Open(ctx context.Context, handle string) (*os.File, error) {
	if !ValidHandle(handle) {
		return nil, fmt.Errorf("%w: asset handle %q", shared.ErrNotFound, handle)
	}

	path := c.Path(handle)
	if f, err := os.Open(path); err == nil {
		return f, nil
	}

	uri, ok := c.registry.Get(handle)
	if !ok {
		return nil, fmt.Errorf("%w: asset handle %s is not registered", shared.ErrNotFound, handle)
	}

	c.mu.Lock()
	if fl, ok := c.inflight[uri]; ok {
		c.mu.Unlock()
		return c.await(ctx, fl, path)
	}
	// A fetch may have completed between the first open and taking the lock.
	if f, err := os.Open(path); err == nil {
		c.mu.Unlock()
		return f, nil
	}
	fl := &fetch{done: make(chan struct{})}
	c.inflight[uri] = fl
	c.mu.Unlock()

	go c.transfer(ctx, uri, path, fl)

	select {
	case <-fl.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fl.err != nil {
		return nil, fl.err
	}
	return os.Open(path)
}

// transfer runs the shared download. Waiters depend on it, so it is detached from the
// caller that started it and bounded by the cache timeout instead.
func (c *Cache) transfer(ctx context.Context, uri, path string, fl *fetch) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	err := c.download(tctx, uri, path)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: transfer exceeded %s: %w", shared.ErrTimeout, c.timeout, err)
	}
	fl.err = err

	c.mu.Lock()
	delete(c.inflight, uri)
	c.mu.Unlock()
	close(fl.done)
}

func (c *Cache) await(ctx context.Context, fl *fetch, path string) (*os.File, error) {
	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	timer := time.NewTimer(c.wait)
	defer timer.Stop()

	var waitErr error
	select {
	case <-fl.done:
	case <-timer.C:
		waitErr = fmt.Errorf("%w: waited %s for asset fetch", shared.ErrTimeout, c.wait)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	// The winner may have finished after the wait gave up.
	if f, err := os.Open(path); err == nil {
		return f, nil
	}
	if waitErr != nil {
		return nil, waitErr
	}
	if fl.err != nil {
		return nil, fl.err
	}
	return nil, fmt.Errorf("%w: cache file missing after fetch", shared.ErrFetchFailed)
}

// download streams uri into a temp file next to path and renames it into place on success.
func (c *Cache) download(ctx context.Context, uri, path string) (err error) {
	c.fetches.Add(1)
	start := time.Now()
	defer func() {
		if err != nil {
			c.failures.Add(1)
			c.logger.Warn("asset fetch failed", "uri", uri, "error", err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrFetchFailed, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: empty body", shared.ErrFetchFailed)
	}

	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move asset into place: %w", err)
	}

	c.bytes.Add(n)
	c.logger.Debug("asset cached", "path", path, "size", humanize.Bytes(uint64(n)), "took", time.Since(start))
	return nil
}

// Stats returns counters for the cache.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	inflight := len(c.inflight)
	c.mu.Unlock()

	return Stats{
		Registered: c.registry.Len(),
		InFlight:   inflight,
		Fetches:    c.fetches.Load(),
		Failures:   c.failures.Load(),
		Bytes:      c.bytes.Load(),
	}
}
