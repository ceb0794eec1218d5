package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/dashtune/internal/formatter"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/server"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/desertthunder/dashtune/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Play resolves a selection into a play queue and saves it as the last playlist.
//
// With --in, the parent listing is loaded first so a single track plays in the context of its album or playlist.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one item id", shared.ErrMissingArgument)
	}

	if err := r.open(); err != nil {
		return err
	}

	if parent := cmd.String("in"); parent != "" {
		if _, err := r.session.Children(ctx, parent, -1, 0); err != nil {
			return fmt.Errorf("failed to load %s: %w", parent, err)
		}
	}

	start := models.StartPosition{Index: int(cmd.Int("start")), PositionMs: int64(cmd.Int("position"))}
	res, err := r.session.SetPlaylist(ctx, ids, start)
	if err != nil {
		return err
	}

	title := "Play queue"
	if len(ids) == 1 {
		if n, err := r.session.Item(ctx, ids[0]); err == nil {
			title = n.Title
		}
	}
	return r.writeResolution(cmd, title, res)
}

// Resume rebuilds the last saved playlist.
func (r *Runner) Resume(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	res, err := r.session.Resumable(ctx)
	if err != nil {
		return err
	}
	if len(res.Tracks) == 0 && !cmd.Bool("json") {
		return r.writePlain("No saved playlist\n")
	}
	return r.writeResolution(cmd, "Resumed playlist", res)
}

func (r *Runner) writeResolution(cmd *cli.Command, title string, res *tasks.Resolution) error {
	if path := cmd.String("output"); path != "" {
		format, err := formatter.WriteExport(path, title, res.Tracks, res.StartIndex)
		if err != nil {
			return err
		}
		r.logger.Info("playlist exported", "path", path, "format", format)
		return r.writePlain("✓ Saved %s tracks to %s\n", formatter.Count(len(res.Tracks)), path)
	}

	if cmd.Bool("json") {
		return r.writeJSON(server.NewPlaylistResponse(res), cmd.Bool("pretty"))
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	data, err := formatter.Export(format, title, res.Tracks, res.StartIndex)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if format == formatter.FormatText && len(res.Tracks) > 0 {
		r.writePlainln("Starting at %d (%s)", res.StartIndex+1, formatter.FormatDuration(res.StartPositionMs))
	}
	if len(res.Diagnostics) > 0 {
		r.writePlainln("Skipped %d:", len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			r.writePlain("  ✗ %s [%s]: %v\n", d.ID, d.Kind, d.Err)
		}
	}
	return nil
}
