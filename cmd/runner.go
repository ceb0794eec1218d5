package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/assets"
	"github.com/desertthunder/dashtune/internal/downloads"
	"github.com/desertthunder/dashtune/internal/media"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/repositories"
	"github.com/desertthunder/dashtune/internal/services"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/desertthunder/dashtune/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The catalog client, caches and session are built on first use by [Runner.open], so commands
// that only touch configuration never open the database.
type Runner struct {
	configPath string
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	catalog     services.Catalog
	jellyfin    *services.JellyfinService
	creds       *services.CredentialSource
	db          *sql.DB
	credentials *repositories.CredentialRepository
	playback    *repositories.PlaybackStateRepository
	art         *assets.Cache
	tree        *media.Tree
	downloads   *downloads.Manager
	prefetcher  *tasks.Prefetcher
	session     *tasks.Session
	progress    chan tasks.ProgressUpdate
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	ConfigPath string
	Config     *shared.Config
	HTTPClient *http.Client
	Catalog    services.Catalog // replaces the Jellyfin client when set
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		configPath: opts.ConfigPath,
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		catalog:    opts.Catalog,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   r.configPath,
			Sources: cli.EnvVars("DASHTUNE_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Override the configured log level (debug, info, warn, error)",
		},
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, loginCommand, logoutCommand, statusCommand,
		browseCommand, searchCommand, favoriteCommand,
		playCommand, resumeCommand, prefetchCommand, artCommand,
		serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the configuration and applies the log settings.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.config == nil {
		config, err := shared.ResolveConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if r.config.Log.File != "" {
		fileLogger, err := shared.NewFileLogger(r.config.Log.File)
		if err != nil {
			return ctx, fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	level := r.config.Log.Level
	if v := cmd.String("log-level"); v != "" {
		level = v
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(level))
	return ctx, nil
}

func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// SetLogger replaces the logger used by the runner and everything it builds afterwards.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// open builds the catalog client, caches and session. It is safe to call more than once.
func (r *Runner) open() error {
	if r.session != nil {
		return nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	cfg := r.config

	db, err := shared.OpenDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	r.credentials = repositories.NewCredentialRepository(db)
	r.playback = repositories.NewPlaybackStateRepository(db)

	deviceID, err := r.credentials.DeviceID()
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}
	if err := r.loadCredential(); err != nil {
		return err
	}

	info := services.ClientInfo{
		Client:   shared.AppName,
		Device:   cfg.Server.DeviceName,
		DeviceID: deviceID,
		Version:  services.Version,
	}
	apiClient := services.NewAuthClient(r.httpClient.Transport, info, r.creds)
	apiClient.Timeout = cfg.RequestTimeout()
	// Transfers are bounded by their context, not a client timeout.
	transferClient := services.NewAuthClient(r.httpClient.Transport, info, r.creds)

	if r.catalog == nil {
		r.jellyfin = services.NewJellyfinService(services.JellyfinOpts{
			BaseURL:           cfg.Server.URL,
			HTTPClient:        apiClient,
			Credentials:       r.creds,
			DeviceID:          deviceID,
			RequestsPerSecond: cfg.Server.RequestsPerSecond,
			Burst:             cfg.Server.Burst,
			Bitrate:           cfg.Playback.Bitrate,
			ArtSize:           cfg.Playback.ArtSize,
		})
		r.catalog = r.jellyfin
	}

	if r.art, err = assets.New(assets.Options{
		Dir:              cfg.ArtDir(),
		Client:           transferClient,
		RegistryCapacity: cfg.Cache.ArtRegistryCapacity,
		Wait:             cfg.ArtWait(),
		Logger:           r.logger,
	}); err != nil {
		return err
	}

	if r.tree, err = media.NewTree(media.TreeOpts{
		Catalog:  r.catalog,
		Artwork:  r.art,
		Capacity: cfg.Cache.NodeCapacity,
		Logger:   r.logger,
	}); err != nil {
		return err
	}

	if r.downloads, err = downloads.NewManager(downloads.Options{
		Dir:         cfg.MediaDir(),
		Client:      transferClient,
		Workers:     cfg.Playback.DownloadWorkers,
		MaxParallel: cfg.Playback.MaxParallelDownloads,
		QueueSize:   cfg.Playback.QueueSize,
		MaxBytes:    cfg.CacheSizeBytes(),
		Logger:      r.logger,
	}); err != nil {
		return err
	}

	r.prefetcher = tasks.NewPrefetcher(tasks.PrefetcherOpts{
		Downloads: r.downloads,
		Count:     cfg.Playback.PrefetchCount,
		Logger:    r.logger,
		Progress:  r.progress,
	})
	r.downloads.Subscribe(r.prefetcher.Observe)

	opts := tasks.SessionOpts{
		Library:     r.tree,
		Catalog:     r.catalog,
		Store:       r.playback,
		Prefetcher:  r.prefetcher,
		Credentials: r.credentials,
		UserID:      r.creds.UserID(),
		Logger:      r.logger,
		Progress:    r.progress,
	}
	if r.jellyfin != nil {
		opts.Auth = r.jellyfin
	}
	if r.session, err = tasks.NewSession(opts); err != nil {
		return err
	}

	r.logger.Debug("session ready", "server", r.serverURL(), "user", r.creds.UserID(), "db", cfg.Database.Path)
	return nil
}

// loadCredential restores the stored sign-in for the configured server, or the most recent one.
func (r *Runner) loadCredential() error {
	r.creds = services.NewCredentialSource("", "")

	var (
		cred *models.Credential
		err  error
	)
	if url := r.config.Server.URL; url != "" {
		cred, err = r.credentials.Get(url)
	} else {
		cred, err = r.credentials.Latest()
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		r.logger.Debug("no stored credential")
		return nil
	case err != nil:
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if r.config.Server.URL == "" {
		r.config.Server.URL = cred.ServerURL
	}
	r.creds.Set(cred.UserID, cred.AccessToken)
	return nil
}

func (r *Runner) serverURL() string {
	if r.jellyfin != nil {
		return r.jellyfin.BaseURL()
	}
	return r.config.Server.URL
}

// Close waits for pending playback reports, stops the download workers and closes the database.
func (r *Runner) Close() error {
	if r.session != nil {
		r.session.WaitReports()
	}
	var errs []error
	if r.downloads != nil {
		errs = append(errs, r.downloads.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
