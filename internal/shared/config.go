package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	gap "github.com/muesli/go-app-paths"
)

//go:embed config.example.toml
var exampleConf []byte

// AppName is used for the default data and cache directories.
const AppName = "dashtune"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Playback PlaybackConfig `toml:"playback"`
	HTTP     HTTPConfig     `toml:"http"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig describes the remote catalog.
type ServerConfig struct {
	URL               string  `toml:"url"`
	Username          string  `toml:"username"`
	DeviceName        string  `toml:"device_name"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig bounds the node cache, the artwork registry and the on-disk media cache.
type CacheConfig struct {
	Dir                 string `toml:"dir"`
	NodeCapacity        int    `toml:"node_capacity"`
	ArtRegistryCapacity int    `toml:"art_registry_capacity"`
	ArtWaitSeconds      int    `toml:"art_wait_seconds"`
	SizeMB              int    `toml:"size_mb"`
}

// PlaybackConfig contains stream, artwork and prefetch settings.
type PlaybackConfig struct {
	Bitrate              int `toml:"bitrate"`
	ArtSize              int `toml:"art_size"`
	PrefetchCount        int `toml:"prefetch_count"`
	DownloadWorkers      int `toml:"download_workers"`
	MaxParallelDownloads int `toml:"max_parallel_downloads"`
	QueueSize            int `toml:"queue_size"`
}

// HTTPConfig contains settings for the host-facing HTTP API.
type HTTPConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains log level and destination.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Environment overrides are applied after parsing, then defaults fill any value left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	applyEnvOverrides(&config)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyDefaults()
	return &config
}

// ResolveConfig loads the file at path when it exists and otherwise falls back to [DefaultConfig] with environment overrides.
func ResolveConfig(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, ErrMissingConfig) {
		return nil, err
	}

	config = DefaultConfig()
	applyEnvOverrides(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports the first invalid value as an [ErrInvalidConfig].
func (c *Config) Validate() error {
	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: server.url must be an http(s) URL, got %q", ErrInvalidConfig, c.Server.URL)
		}
	}
	if c.Server.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: server.requests_per_second must not be negative", ErrInvalidConfig)
	}
	if c.Playback.Bitrate < 0 {
		return fmt.Errorf("%w: playback.bitrate must not be negative", ErrInvalidConfig)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http.port out of range: %d", ErrInvalidConfig, c.HTTP.Port)
	}
	return nil
}

// ArtWait is the bounded wait applied to artwork fetch waiters.
func (c *Config) ArtWait() time.Duration {
	return time.Duration(c.Cache.ArtWaitSeconds) * time.Second
}

// RequestTimeout is the per-request timeout for the catalog client.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// CacheSizeBytes is the media cache cap in bytes.
func (c *Config) CacheSizeBytes() int64 {
	return int64(c.Cache.SizeMB) * 1024 * 1024
}

// ArtDir is where fetched artwork is stored.
func (c *Config) ArtDir() string {
	return filepath.Join(c.Cache.Dir, "art")
}

// MediaDir is where prefetched tracks are stored.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Cache.Dir, "media")
}

// Addr is the listen address of the HTTP API.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func (c *Config) applyDefaults() {
	scope := gap.NewScope(gap.User, AppName)

	if c.Cache.Dir == "" {
		if dir, err := scope.CacheDir(); err == nil {
			c.Cache.Dir = dir
		} else {
			c.Cache.Dir = filepath.Join(os.TempDir(), AppName)
		}
	}
	if c.Database.Path == "" {
		if p, err := scope.DataPath(AppName + ".db"); err == nil {
			c.Database.Path = p
		} else {
			c.Database.Path = "./" + AppName + ".db"
		}
	}

	setDefault(&c.Database.MaxOpenConns, 1)
	setDefault(&c.Database.MaxIdleConns, 1)
	setDefault(&c.Server.Burst, 5)
	setDefault(&c.Server.TimeoutSeconds, 30)
	setDefault(&c.Cache.NodeCapacity, 1000)
	setDefault(&c.Cache.ArtRegistryCapacity, 4096)
	setDefault(&c.Cache.ArtWaitSeconds, 15)
	setDefault(&c.Cache.SizeMB, 200)
	setDefault(&c.Playback.ArtSize, 512)
	setDefault(&c.Playback.PrefetchCount, 5)
	setDefault(&c.Playback.DownloadWorkers, 6)
	setDefault(&c.Playback.MaxParallelDownloads, 3)
	setDefault(&c.Playback.QueueSize, 64)
	setDefault(&c.HTTP.Port, 8080)

	if c.Server.RequestsPerSecond == 0 {
		c.Server.RequestsPerSecond = 10
	}
	if c.Server.DeviceName == "" {
		c.Server.DeviceName = AppName
	}
	if c.HTTP.Host == "" {
		c.HTTP.Host = "127.0.0.1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("DASHTUNE_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("DASHTUNE_SERVER_USERNAME"); v != "" {
		cfg.Server.Username = v
	}
	if v := os.Getenv("DASHTUNE_SERVER_DEVICE_NAME"); v != "" {
		cfg.Server.DeviceName = v
	}
	if v := os.Getenv("DASHTUNE_SERVER_REQUESTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RequestsPerSecond = f
		}
	}

	// Storage
	if v := os.Getenv("DASHTUNE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DASHTUNE_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("DASHTUNE_CACHE_SIZE_MB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Cache.SizeMB = i
		}
	}

	// Playback
	if v := os.Getenv("DASHTUNE_PLAYBACK_BITRATE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Playback.Bitrate = i
		}
	}
	if v := os.Getenv("DASHTUNE_PLAYBACK_PREFETCH_COUNT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Playback.PrefetchCount = i
		}
	}

	// HTTP
	if v := os.Getenv("DASHTUNE_HTTP_HOST"); v != "" {
		cfg.HTTP.Host = v
	}
	if v := os.Getenv("DASHTUNE_HTTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = i
		}
	}

	// Log
	if v := os.Getenv("DASHTUNE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DASHTUNE_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}
