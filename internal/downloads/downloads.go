// Package downloads implements the background download subsystem used for track prefetch.
//
// A [Manager] owns a fixed pool of worker goroutines fed by a bounded queue. Independently of the
// pool size, a weighted semaphore caps how many transfers use the network at once. Finished files
// live in a single directory that is pruned, least recently used first, to a size cap.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"
)

const (
	defaultWorkers     = 6
	defaultMaxParallel = 3
	defaultQueueSize   = 64
	tmpSuffix          = ".part"
)

// State is the lifecycle of one download.
type State int

const (
	Queued State = iota
	Downloading
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Downloading:
		return "downloading"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Request asks for the resource at URI to be stored under ID.
type Request struct {
	ID  string
	URI string
}

// Validate rejects ids that are not plain file names and URIs that are not absolute http(s) URLs.
func (r Request) Validate() error {
	if !validID(r.ID) {
		return fmt.Errorf("%w: id %q", shared.ErrInvalidRequest, r.ID)
	}
	u, err := url.Parse(r.URI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: uri %q", shared.ErrInvalidRequest, r.URI)
	}
	return nil
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`) && !strings.HasSuffix(id, tmpSuffix)
}

// Event reports a state change of a download.
type Event struct {
	JobID string
	ID    string
	State State
	Bytes int64
	Err   error
	At    time.Time
}

// Options configures a [Manager].
type Options struct {
	Dir         string
	Client      *http.Client
	Workers     int
	MaxParallel int
	QueueSize   int
	MaxBytes    int64 // 0 disables pruning
	Logger      *log.Logger
}

type job struct {
	id    string
	req   Request
	queue time.Time
	ready chan struct{} // closed once Queued has been reported
}

// Manager runs downloads on a bounded worker pool.
type Manager struct {
	dir      string
	client   *http.Client
	maxBytes int64
	logger   *log.Logger

	jobs   chan job
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	states    map[string]State
	listeners []func(Event)
	closed    bool
	pruneMu   sync.Mutex
}

// Stats counts downloads by state.
type Stats struct {
	Queued      int
	Downloading int
	Completed   int
}

// NewManager creates the media directory and starts the workers.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: download dir", shared.ErrMissingArgument)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dir:      opts.Dir,
		client:   opts.Client,
		maxBytes: opts.MaxBytes,
		logger:   shared.WithLogger(opts.Logger, "component", "downloads"),
		jobs:     make(chan job, opts.QueueSize),
		sem:      semaphore.NewWeighted(int64(opts.MaxParallel)),
		ctx:      ctx,
		cancel:   cancel,
		states:   make(map[string]State),
	}

	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m, nil
}

// Subscribe registers fn for every event. fn runs on a worker goroutine and must not block.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Submit queues req without waiting for it to run.
//
// Requests for an id that is already queued, in flight or on disk are accepted and ignored.
// A full queue returns [shared.ErrQueueFull].
func (m *Manager) Submit(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return shared.ErrClosed
	}
	if _, ok := m.states[req.ID]; ok {
		m.mu.Unlock()
		return nil
	}
	if _, err := os.Stat(m.path(req.ID)); err == nil {
		m.states[req.ID] = Completed
		m.mu.Unlock()
		return nil
	}

	j := job{id: shared.GenerateID(), req: req, queue: time.Now(), ready: make(chan struct{})}
	select {
	case m.jobs <- j:
		m.states[req.ID] = Queued
	default:
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", shared.ErrQueueFull, req.ID)
	}
	m.mu.Unlock()

	m.emit(Event{JobID: j.id, ID: req.ID, State: Queued})
	close(j.ready)
	return nil
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for j := range m.jobs {
		<-j.ready
		if err := m.sem.Acquire(m.ctx, 1); err != nil {
			m.finish(j, 0, err)
			continue
		}

		m.setState(j.req.ID, Downloading)
		m.emit(Event{JobID: j.id, ID: j.req.ID, State: Downloading})

		n, err := m.fetch(m.ctx, j.req)
		m.sem.Release(1)
		m.finish(j, n, err)
	}
}

func (m *Manager) finish(j job, n int64, err error) {
	if err != nil {
		m.mu.Lock()
		delete(m.states, j.req.ID)
		m.mu.Unlock()
		m.emit(Event{JobID: j.id, ID: j.req.ID, State: Failed, Err: err})
		return
	}

	m.setState(j.req.ID, Completed)
	m.emit(Event{JobID: j.id, ID: j.req.ID, State: Completed, Bytes: n})
	m.logger.Debug("download completed", "id", j.req.ID, "size", humanize.Bytes(uint64(n)), "queued", humanize.Time(j.queue))
	m.prune(j.req.ID)
}

// fetch streams uri to a temp file and renames it into place once the body is complete.
func (m *Manager) fetch(ctx context.Context, req Request) (n int64, err error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URI, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	}

	resp, err := m.client.Do(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", shared.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: status %d", shared.ErrFetchFailed, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(m.dir, req.ID+".*"+tmpSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	n, err = io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", shared.ErrFetchFailed, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty body", shared.ErrFetchFailed)
	}

	if err = os.Rename(tmp.Name(), m.path(req.ID)); err != nil {
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}
	return n, nil
}

// prune removes the least recently used files until the directory fits the size cap.
// keep is never removed.
func (m *Manager) prune(keep string) {
	if m.maxBytes <= 0 {
		return
	}
	m.pruneMu.Lock()
	defer m.pruneMu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn("failed to list download dir", "error", err)
		return
	}

	type file struct {
		name string
		size int64
		mod  time.Time
	}
	var files []file
	var total int64
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{e.Name(), info.Size(), info.ModTime()})
		total += info.Size()
	}
	if total <= m.maxBytes {
		return
	}

	slices.SortFunc(files, func(a, b file) int { return a.mod.Compare(b.mod) })
	for _, f := range files {
		if total <= m.maxBytes {
			break
		}
		if f.name == keep {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, f.name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("failed to evict download", "file", f.name, "error", err)
			continue
		}
		total -= f.size

		m.mu.Lock()
		if m.states[f.name] == Completed {
			delete(m.states, f.name)
		}
		m.mu.Unlock()
		m.logger.Debug("evicted download", "id", f.name, "size", humanize.Bytes(uint64(f.size)))
	}
}

// Path returns the local file for id when it has been downloaded, and marks it as recently used.
func (m *Manager) Path(id string) (string, bool) {
	if !validID(id) {
		return "", false
	}
	p := m.path(id)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return p, true
}

// State reports the known state of id.
func (m *Manager) State(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	return s, ok
}

// Stats counts tracked downloads by state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, st := range m.states {
		switch st {
		case Queued:
			s.Queued++
		case Downloading:
			s.Downloading++
		case Completed:
			s.Completed++
		}
	}
	return s
}

// Close stops accepting work, aborts transfers in flight and waits for the workers to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id)
}

func (m *Manager) setState(id string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = s
}

func (m *Manager) emit(e Event) {
	e.At = time.Now()

	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}
