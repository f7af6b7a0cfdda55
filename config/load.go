package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/pubky-canvas/indexer/errors"
)

// envPrefix is the environment variable prefix: CANVAS_SERVER_LISTEN
// overrides server.listen, and so on.
const envPrefix = "CANVAS"

// Load resolves configuration from, in increasing precedence: built-in
// defaults, a project-local config.toml (if present), and CANVAS_-prefixed
// environment variables. It does not require a config file to exist.
func Load() (Config, error) {
	return LoadFromFile("")
}

// LoadFromFile behaves like Load but also merges an explicit TOML file path
// at user precedence (between the project-local config and env vars' actual
// override point is: defaults < project config.toml < explicit path < env).
func LoadFromFile(path string) (Config, error) {
	v := initViper()

	if wd, err := os.Getwd(); err == nil {
		projectConfig := filepath.Join(wd, "config.toml")
		if _, statErr := os.Stat(projectConfig); statErr == nil {
			if err := mergeFile(v, projectConfig); err != nil {
				return Config{}, err
			}
		}
	}

	if path != "" {
		if err := mergeFile(v, path); err != nil {
			return Config{}, err
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// mergeFile decodes a TOML file with BurntSushi/toml (the same decoder the
// teacher's config loader uses for its own files) and merges the resulting
// map into viper, so environment variables still take final precedence.
func mergeFile(v *viper.Viper, path string) error {
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	if err := v.MergeConfigMap(raw); err != nil {
		return errors.Wrapf(err, "merge config file %s", path)
	}
	return nil
}

func initViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.shutdown_timeout_ms", d.Server.ShutdownTimeoutMS)
	v.SetDefault("watcher.poll_interval_ms", d.Watcher.PollIntervalMS)
	v.SetDefault("watcher.events_limit", d.Watcher.EventsLimit)
	v.SetDefault("watcher.homeserver_request_timeout_ms", d.Watcher.HomeserverRequestTimeoutMS)
	v.SetDefault("watcher.store_write_timeout_ms", d.Watcher.StoreWriteTimeoutMS)
	v.SetDefault("canvas.initial_size", d.Canvas.InitialSize)
	v.SetDefault("canvas.max_credits", d.Canvas.MaxCredits)
	v.SetDefault("canvas.credit_regen_seconds", d.Canvas.CreditRegenSeconds)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("logging.json", d.Logging.JSON)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("config.hot_reload", d.Meta.HotReload)
}
