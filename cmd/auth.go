package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/dashtune/internal/assets"
	"github.com/desertthunder/dashtune/internal/downloads"
	"github.com/desertthunder/dashtune/internal/formatter"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/urfave/cli/v3"
)

// Login signs in to the configured server and stores the access token.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	username := cmd.String("username")
	if username == "" {
		username = r.config.Server.Username
	}
	if username == "" {
		return fmt.Errorf("%w: --username or server.username is required", shared.ErrMissingArgument)
	}

	if err := r.open(); err != nil {
		return err
	}

	r.logger.Info("signing in", "server", r.serverURL(), "user", username)

	cred, err := r.session.Login(ctx, username, cmd.String("password"))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	r.writePlain("✓ Signed in as %s\n", cred.Username)
	r.writePlain("Server: %s\n", cred.ServerURL)
	return nil
}

// Logout forgets the stored credential for the configured server.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	server := r.serverURL()
	if err := r.credentials.Delete(server); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return r.writePlain("Not signed in to %s\n", server)
		}
		return err
	}
	r.creds.Clear()

	r.logger.Info("signed out", "server", server)
	return r.writePlain("✓ Signed out of %s\n", server)
}

// StatusReport summarizes the connection, saved playback and cache occupancy.
type StatusReport struct {
	Server    string               `json:"server"`
	UserID    string               `json:"user_id,omitempty"`
	Reachable bool                 `json:"reachable"`
	LatencyMs int64                `json:"latency_ms,omitempty"`
	Error     string               `json:"error,omitempty"`
	Playback  models.PlaybackState `json:"playback"`
	Nodes     int                  `json:"cached_nodes"`
	Art       assets.Stats         `json:"artwork"`
	Downloads downloads.Stats      `json:"downloads"`
}

// Status checks the server and reports local state.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	report := StatusReport{
		Server:    r.serverURL(),
		UserID:    r.creds.UserID(),
		Nodes:     r.tree.Len(),
		Art:       r.art.Stats(),
		Downloads: r.downloads.Stats(),
	}

	if r.jellyfin != nil {
		latency, err := r.jellyfin.Ping(ctx)
		if err != nil {
			r.logger.Warn("server unreachable", "server", report.Server, "error", err)
			report.Error = err.Error()
		} else {
			report.Reachable = true
			report.LatencyMs = latency.Milliseconds()
		}
	}

	state, err := r.session.State()
	if err != nil {
		return fmt.Errorf("failed to load playback state: %w", err)
	}
	report.Playback = state

	if cmd.Bool("json") {
		return r.writeJSON(report, cmd.Bool("pretty"))
	}

	r.writePlainHeader("DashTune status")
	if report.Reachable {
		r.writePlain("Server: %s ✓ (%dms)\n", report.Server, report.LatencyMs)
	} else {
		r.writePlain("Server: %s ✗ %s\n", report.Server, report.Error)
	}
	if report.UserID != "" {
		r.writePlain("Signed in: %s\n", report.UserID)
	} else {
		r.writePlain("Signed in: no\n")
	}
	if state.Empty() {
		r.writePlain("Last playlist: none\n")
	} else {
		r.writePlain("Last playlist: %s tracks, at %d (%s)\n",
			formatter.Count(len(state.IDs)), state.Index+1, formatter.FormatDuration(state.PositionMs))
	}
	r.writePlain("Cached nodes: %s\n", formatter.Count(report.Nodes))
	r.writePlain("Artwork: %s fetched (%s), %d failed\n",
		formatter.Count(int(report.Art.Fetches)), formatter.Bytes(report.Art.Bytes), report.Art.Failures)
	r.writePlain("Downloads: %d queued, %d downloading, %d completed\n",
		report.Downloads.Queued, report.Downloads.Downloading, report.Downloads.Completed)
	return nil
}
