package tasks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/downloads"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/dustin/go-humanize"
)

// DefaultPrefetchCount is how many upcoming tracks are queued after each transition.
const DefaultPrefetchCount = 5

// Submitter accepts fire-and-forget download requests.
type Submitter interface {
	Submit(req downloads.Request) error
}

// PrefetcherOpts configures a [Prefetcher].
type PrefetcherOpts struct {
	Downloads Submitter
	Count     int
	Logger    *log.Logger
	Progress  chan<- ProgressUpdate // optional, never blocks
}

// Prefetcher queues the tracks that will play next.
type Prefetcher struct {
	downloads Submitter
	count     int
	logger    *log.Logger
	progress  chan<- ProgressUpdate
}

// NewPrefetcher creates a prefetcher.
func NewPrefetcher(opts PrefetcherOpts) *Prefetcher {
	if opts.Count <= 0 {
		opts.Count = DefaultPrefetchCount
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Prefetcher{
		downloads: opts.Downloads,
		count:     opts.Count,
		logger:    shared.WithLogger(opts.Logger, "component", "prefetch"),
		progress:  opts.Progress,
	}
}

// Upcoming walks the effective play order forward from current, at most n steps.
//
// The walk stops at the end of the order, or when it would come back to current.
func Upcoming(tl models.Timeline, current, n int) []int {
	out := []int{}
	i := current
	for len(out) < n {
		next, ok := tl.Next(i)
		if !ok || next == current {
			break
		}
		out = append(out, next)
		i = next
	}
	return out
}

// OnTransition submits downloads for the tracks after current and returns the indices submitted.
//
// Submission errors are logged and skipped; they never stop the walk.
func (p *Prefetcher) OnTransition(ctx context.Context, tl models.Timeline, current int) []int {
	upcoming := Upcoming(tl, current, p.count)
	submitted := make([]int, 0, len(upcoming))

	for step, i := range upcoming {
		if ctx.Err() != nil {
			break
		}

		item := tl.Items[i]
		if err := p.downloads.Submit(downloads.Request{ID: item.ID, URI: item.URI}); err != nil {
			p.logger.Warn("prefetch submission failed", "id", item.ID, "index", i, "error", err)
			continue
		}
		submitted = append(submitted, i)
		sendProgress(p.progress, submittedUpdate(step+1, len(upcoming), item))
	}

	p.logger.Debug("prefetch scheduled", "current", current, "indices", submitted, "shuffle", tl.Shuffle, "repeat", tl.Repeat)
	return submitted
}

// Observe logs download events. Register it with [downloads.Manager.Subscribe].
func (p *Prefetcher) Observe(e downloads.Event) {
	switch e.State {
	case downloads.Completed:
		p.logger.Info("track cached", "id", e.ID, "size", humanize.Bytes(uint64(e.Bytes)))
	case downloads.Failed:
		p.logger.Warn("track download failed", "id", e.ID, "error", e.Err)
	default:
		p.logger.Debug("track download", "id", e.ID, "state", e.State, "job", e.JobID)
	}
	sendProgress(p.progress, downloadUpdate(e))
}
