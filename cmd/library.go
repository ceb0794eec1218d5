package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/dashtune/internal/formatter"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/urfave/cli/v3"
)

// Browse lists the children of an item, or of the root when no id is given.
func (r *Runner) Browse(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	id := cmd.StringArg("id")
	if id == "" {
		root, err := r.session.Root(ctx)
		if err != nil {
			return err
		}
		id = root.ID
	}

	r.logger.Debug("browsing", "id", id)

	nodes, err := r.session.Children(ctx, id, int(cmd.Int("page")), int(cmd.Int("page-size")))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", id, err)
	}
	return r.writeNodes(cmd, nodes)
}

// Search runs a grouped search across artists, albums, playlists and tracks.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	if err := r.open(); err != nil {
		return err
	}

	nodes, err := r.session.Search(ctx, query, int(cmd.Int("page")), int(cmd.Int("page-size")))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return r.writeNodes(cmd, nodes)
}

// Favorite marks an item as a favourite, or clears the mark with --off.
func (r *Runner) Favorite(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: item id", shared.ErrMissingArgument)
	}
	favorite := !cmd.Bool("off")

	if err := r.open(); err != nil {
		return err
	}
	if err := r.session.SetRating(ctx, id, favorite); err != nil {
		return err
	}

	if favorite {
		return r.writePlain("✓ ♥ %s\n", id)
	}
	return r.writePlain("✓ Removed %s from favorites\n", id)
}

func (r *Runner) writeNodes(cmd *cli.Command, nodes []models.Node) error {
	if cmd.Bool("json") {
		return r.writeJSON(nodes, cmd.Bool("pretty"))
	}
	if len(nodes) == 0 {
		return r.writePlain("No items\n")
	}
	if _, err := r.output.Write(formatter.ExportToText(nodes)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
