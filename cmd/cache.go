package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/dashtune/internal/downloads"
	"github.com/desertthunder/dashtune/internal/formatter"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/urfave/cli/v3"
)

const downloadPollInterval = 250 * time.Millisecond

// Prefetch downloads the tracks that play after the current one in the saved playlist.
func (r *Runner) Prefetch(ctx context.Context, cmd *cli.Command) error {
	repeat, err := models.ParseRepeatMode(cmd.String("repeat"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	if err := r.open(); err != nil {
		return err
	}

	res, err := r.session.Resumable(ctx)
	if err != nil {
		return err
	}
	if len(res.Tracks) == 0 {
		return r.writePlain("No saved playlist\n")
	}

	index := res.StartIndex
	if cmd.IsSet("index") {
		index = int(cmd.Int("index"))
	}
	if index < 0 || index >= len(res.Tracks) {
		return fmt.Errorf("%w: index %d outside %d tracks", shared.ErrInvalidArgument, index, len(res.Tracks))
	}

	tl := models.NewTimeline(res.Tracks)
	tl.Repeat = repeat
	if cmd.Bool("shuffle") {
		tl.Shuffle = true
		tl.ShuffleOrder = shuffleOrder(index, len(res.Tracks))
	}

	submitted := r.prefetcher.OnTransition(ctx, tl, index)
	if len(submitted) == 0 {
		return r.writePlain("Nothing to prefetch\n")
	}

	ids := make([]string, len(submitted))
	for i, idx := range submitted {
		ids[i] = tl.Items[idx].ID
	}
	if err := r.waitForDownloads(ctx, ids); err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Prefetched after %d. %s", index+1, res.Tracks[index].Title))
	for _, idx := range submitted {
		n := res.Tracks[idx]
		if path, ok := r.downloads.Path(n.ID); ok {
			r.writePlain("✓ %d. %s → %s\n", idx+1, n.Title, path)
		} else {
			r.writePlain("✗ %d. %s\n", idx+1, n.Title)
		}
	}
	return nil
}

// waitForDownloads blocks until none of ids is queued or in flight.
func (r *Runner) waitForDownloads(ctx context.Context, ids []string) error {
	ticker := time.NewTicker(downloadPollInterval)
	defer ticker.Stop()

	for {
		pending := 0
		for _, id := range ids {
			if state, ok := r.downloads.State(id); ok && (state == downloads.Queued || state == downloads.Downloading) {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}
		r.logger.Debug("waiting for downloads", "pending", pending)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// shuffleOrder is a random play order over n items that starts at current.
func shuffleOrder(current, n int) []int {
	order := rand.Perm(n)
	for i, v := range order {
		if v == current {
			order[0], order[i] = order[i], order[0]
			break
		}
	}
	return order
}

// Art fetches artwork into the asset cache. The argument is a remote image URL or an item id.
func (r *Runner) Art(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("ref")
	if ref == "" {
		return fmt.Errorf("%w: image URL or item id", shared.ErrMissingArgument)
	}

	if err := r.open(); err != nil {
		return err
	}

	var handle string
	if strings.Contains(ref, "://") {
		handle = r.art.MapToHandle(ref)
	} else {
		n, err := r.session.Item(ctx, ref)
		if err != nil {
			return err
		}
		if n.ArtworkHandle == "" {
			return fmt.Errorf("%w: %s has no artwork", shared.ErrNotFound, ref)
		}
		handle = n.ArtworkHandle
	}

	f, err := r.art.Open(ctx, handle)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artwork: %w", err)
	}

	dest := f.Name()
	if out := cmd.String("output"); out != "" {
		if err := copyTo(out, f); err != nil {
			return err
		}
		dest = out
	}

	if cmd.Bool("open") {
		if err := shared.OpenInViewer(dest); err != nil {
			r.logger.Warn("could not open artwork", "path", dest, "error", err)
		}
	}

	return r.writePlain("✓ %s → %s (%s)\n", handle, dest, formatter.Bytes(info.Size()))
}

func copyTo(path string, src io.Reader) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}
