// Package config loads and validates the canvas indexer's TOML
// configuration, layered with environment variable overrides.
package config

import "github.com/pubky-canvas/indexer/errors"

// Config is the fully resolved, validated configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Canvas   CanvasConfig   `mapstructure:"canvas"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Meta     MetaConfig     `mapstructure:"config"`
}

// MetaConfig holds settings about configuration handling itself.
type MetaConfig struct {
	HotReload bool `mapstructure:"hot_reload"`
}

type ServerConfig struct {
	Listen            string `mapstructure:"listen"`
	ShutdownTimeoutMS int    `mapstructure:"shutdown_timeout_ms"`
}

type WatcherConfig struct {
	PollIntervalMS             int `mapstructure:"poll_interval_ms"`
	EventsLimit                int `mapstructure:"events_limit"`
	HomeserverRequestTimeoutMS int `mapstructure:"homeserver_request_timeout_ms"`
	StoreWriteTimeoutMS        int `mapstructure:"store_write_timeout_ms"`
}

type CanvasConfig struct {
	InitialSize         int `mapstructure:"initial_size"`
	MaxCredits          int `mapstructure:"max_credits"`
	CreditRegenSeconds  int `mapstructure:"credit_regen_seconds"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

type ResolverConfig struct {
	StaticMap map[string]string `mapstructure:"static_map"`
}

// Defaults returns a Config populated with the service's built-in defaults,
// the base layer of the defaults < project config.toml < explicit config
// file < env precedence chain.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen:            ":8080",
			ShutdownTimeoutMS: 10_000,
		},
		Watcher: WatcherConfig{
			PollIntervalMS:             2_000,
			EventsLimit:                100,
			HomeserverRequestTimeoutMS: 10_000,
			StoreWriteTimeoutMS:        5_000,
		},
		Canvas: CanvasConfig{
			InitialSize:        16,
			MaxCredits:         10,
			CreditRegenSeconds: 600,
		},
		Database: DatabaseConfig{
			Path: "canvas-indexer.db",
		},
		Logging: LoggingConfig{
			JSON:  false,
			Level: "info",
		},
		Meta: MetaConfig{
			HotReload: false,
		},
	}
}

// HotReloadEnabled reports whether the fsnotify-based config watcher should
// be started for watcher.* keys.
func (c Config) HotReloadEnabled() bool {
	return c.Meta.HotReload
}

// Validate checks the invariants named in the external interface contract:
// listen address present, positive intervals, power-of-two canvas size.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen must not be empty")
	}
	if c.Watcher.PollIntervalMS <= 0 {
		return errors.New("watcher.poll_interval_ms must be positive")
	}
	if c.Watcher.EventsLimit <= 0 {
		return errors.New("watcher.events_limit must be positive")
	}
	if c.Canvas.InitialSize <= 0 || !isPowerOfTwo(c.Canvas.InitialSize) {
		return errors.Newf("canvas.initial_size must be a power of two >= 1, got %d", c.Canvas.InitialSize)
	}
	if c.Canvas.MaxCredits <= 0 {
		return errors.New("canvas.max_credits must be >= 1")
	}
	if c.Canvas.CreditRegenSeconds <= 0 {
		return errors.New("canvas.credit_regen_seconds must be >= 1")
	}
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
