package main

import (
	"context"

	"github.com/desertthunder/dashtune/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve exposes the session API and cached artwork over HTTP until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Addr()
	}

	srv, err := server.New(server.Options{
		Addr:    addr,
		Session: r.session,
		Art:     r.art,
		Logger:  r.logger,
	})
	if err != nil {
		return err
	}

	r.writePlain("Serving %s on http://%s\n", r.serverURL(), addr)
	return srv.Run(ctx)
}
