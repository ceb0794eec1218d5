// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "Zero-based page to show (negative shows everything)",
			Value: -1,
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Items per page",
			Value: 0,
		},
	}
}

func playlistFlags() []cli.Flag {
	return append(outputFlags(),
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, markdown, csv or json",
			Value:   "text",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the queue to a file; the format follows the extension",
		},
	)
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create a config file, initialize the database and run migrations",
		Action: r.Setup,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in to the Jellyfin server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Account name (defaults to server.username)",
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Account password",
				Sources: cli.EnvVars("DASHTUNE_PASSWORD"),
			},
		},
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the stored credential for the server",
		Action: r.Logout,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Check the server and show local cache and playback state",
		Flags:  outputFlags(),
		Action: r.Status,
	}
}

func browseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "browse",
		Aliases: []string{"ls"},
		Usage:   "List the children of an item (the root when no id is given)",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "id",
			},
		},
		Flags:  append(outputFlags(), pageFlags()...),
		Action: r.Browse,
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search artists, albums, playlists and tracks",
		ArgsUsage: "<query>",
		Flags:     append(outputFlags(), pageFlags()...),
		Action:    r.Search,
	}
}

func favoriteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "favorite",
		Aliases: []string{"fav"},
		Usage:   "Mark an item as a favourite",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "id",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "off",
				Usage: "Remove the favourite mark instead",
			},
		},
		Action: r.Favorite,
	}
}

func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Resolve items into a play queue and save it as the last playlist",
		ArgsUsage: "<id> [id...]",
		Flags: append(playlistFlags(),
			&cli.StringFlag{
				Name:  "in",
				Usage: "Parent listing the item was picked from; a single track then plays in that context",
			},
			&cli.IntFlag{
				Name:  "start",
				Usage: "Index to start playback at",
			},
			&cli.IntFlag{
				Name:  "position",
				Usage: "Position in milliseconds inside the start track",
			},
		),
		Action: r.Play,
	}
}

func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "resume",
		Usage:  "Rebuild the last saved playlist",
		Flags:  playlistFlags(),
		Action: r.Resume,
	}
}

func prefetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "prefetch",
		Usage: "Download the tracks that play next in the saved playlist",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "index",
				Usage: "Current track index (defaults to the saved one)",
			},
			&cli.BoolFlag{
				Name:  "shuffle",
				Usage: "Prefetch in a shuffled order starting at the current track",
			},
			&cli.StringFlag{
				Name:  "repeat",
				Usage: "Repeat mode: off, one or all",
				Value: "off",
			},
		},
		Action: r.Prefetch,
	}
}

func artCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "art",
		Usage: "Fetch artwork into the local cache",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:      "ref",
				UsageText: "image URL or item id",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Also copy the image to this path",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the image in the default viewer",
			},
		},
		Action: r.Art,
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session API and cached artwork over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to http.host:http.port)",
			},
		},
		Action: r.Serve,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse the library in an interactive terminal UI",
		Action: r.TUI,
	}
}
