// Package config loads dockstack settings.
//
// Values are layered, lowest precedence first: built-in defaults, the
// JSONC config file, DOCKSTACK_* environment variables, then command-line
// flags that were set explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/dockstack/internal/logging"
	"github.com/mmr-tortoise/dockstack/internal/model"
)

// EnvPrefix is prepended to every environment override, e.g.
// DOCKSTACK_STOP_TIMEOUT=30s.
const EnvPrefix = "DOCKSTACK"

// Config keys.
const (
	KeyHost        = "host"
	KeyProject     = "project"
	KeyLogLevel    = "log_level"
	KeyLogFormat   = "log_format"
	KeyStopTimeout = "stop_timeout"
	KeyComposeFile = "compose_file"
)

// flagNames maps each key to the command-line flag that overrides it.
var flagNames = map[string]string{
	KeyHost:        "host",
	KeyProject:     "project",
	KeyLogLevel:    "log-level",
	KeyLogFormat:   "log-format",
	KeyStopTimeout: "timeout",
	KeyComposeFile: "file",
}

// Config is the resolved configuration for one dockstack invocation.
type Config struct {
	// Host is the daemon endpoint. Empty means DOCKER_HOST or the
	// platform default socket.
	Host string `mapstructure:"host" json:"host,omitempty"`

	// Project overrides the stack name derived from the compose file.
	Project string `mapstructure:"project" json:"project,omitempty"`

	LogLevel  string `mapstructure:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" json:"log_format"`

	// StopTimeout is the grace period given to containers before they are
	// killed on teardown and scale-down.
	StopTimeout time.Duration `mapstructure:"stop_timeout" json:"stop_timeout"`

	ComposeFile string `mapstructure:"compose_file" json:"compose_file"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   logging.FormatText,
		StopTimeout: 10 * time.Second,
		ComposeFile: "compose.yaml",
	}
}

// DefaultPath returns the per-user config file location, or "" when the
// platform has no user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dockstack", "config.json")
}

// Load resolves the configuration.
//
// path names the config file; an empty path means DefaultPath, which may
// be absent. An explicit path that cannot be read is an io error and a
// malformed file is a parse error. flags may be nil; only flags marked as
// changed override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault(KeyHost, def.Host)
	v.SetDefault(KeyProject, def.Project)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyLogFormat, def.LogFormat)
	v.SetDefault(KeyStopTimeout, def.StopTimeout.String())
	v.SetDefault(KeyComposeFile, def.ComposeFile)

	if err := readFile(v, path); err != nil {
		return nil, err
	}

	if flags != nil {
		for key, name := range flagNames {
			if f := flags.Lookup(name); f != nil && f.Changed {
				v.Set(key, f.Value.String())
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, model.WrapError(model.KindConfiguration, "invalid configuration value", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	strict := path != ""
	if !strict {
		path = DefaultPath()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !strict {
			return nil
		}
		return model.WrapError(model.KindIO, fmt.Sprintf("failed to read config file %s", path), err)
	}

	// Comments and trailing commas are allowed in the config file.
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON(data))); err != nil {
		return model.WrapError(model.KindParse, fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// Validate checks enumerated and bounded values.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return model.WrapError(model.KindConfiguration, "invalid log_level", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return model.Errorf(model.KindConfiguration, "invalid log_format %q (want text or json)", c.LogFormat)
	}
	if c.StopTimeout < 0 {
		return model.Errorf(model.KindConfiguration, "stop_timeout must not be negative, got %s", c.StopTimeout)
	}
	if c.Project != "" {
		if err := model.ValidateName("project", c.Project); err != nil {
			return err
		}
	}
	return nil
}
