// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads plugman settings from defaults, a YAML file, and
// command-line flags, in that order of precedence (flags win).
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/plugman/internal/host"
	"github.com/holomush/plugman/internal/journal"
	"github.com/holomush/plugman/internal/logging"
	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/capability"
	"github.com/holomush/plugman/internal/xdg"
)

// Error codes returned by Load and Validate.
const (
	CodeNotFound = "CONFIG_NOT_FOUND"
	CodeParse    = "CONFIG_PARSE_FAILED"
	CodeInvalid  = "CONFIG_INVALID"
)

// DefaultOperator is the console sender name.
const DefaultOperator = "console"

// Config is the resolved configuration.
type Config struct {
	PluginsDir  string              `koanf:"plugins_dir"`
	ArchiveExt  string              `koanf:"archive_ext"`
	HookTimeout time.Duration       `koanf:"hook_timeout"`
	EventQueue  int                 `koanf:"event_queue"`
	LogFormat   string              `koanf:"log_format"`
	LogLevel    string              `koanf:"log_level"`
	MetricsAddr string              `koanf:"metrics_addr"`
	Operator    string              `koanf:"operator"`
	Journal     Journal             `koanf:"journal"`
	Permissions map[string][]string `koanf:"permissions"`
}

// Journal selects the transition journal backend.
type Journal struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// flagKeys maps flag names to config keys. Flags not listed are not config.
var flagKeys = map[string]string{
	"plugins-dir":    "plugins_dir",
	"archive-ext":    "archive_ext",
	"hook-timeout":   "hook_timeout",
	"event-queue":    "event_queue",
	"log-format":     "log_format",
	"log-level":      "log_level",
	"metrics-addr":   "metrics_addr",
	"operator":       "operator",
	"journal-driver": "journal.driver",
	"journal-dsn":    "journal.dsn",
}

// Defaults returns the built-in configuration. The operator holds every
// plugman permission.
func Defaults() map[string]any {
	pluginsDir, err := xdg.PluginsDir()
	if err != nil {
		pluginsDir = "plugins"
	}
	return map[string]any{
		"plugins_dir":    pluginsDir,
		"archive_ext":    plugin.DefaultArchiveExt,
		"hook_timeout":   host.DefaultHookTimeout,
		"event_queue":    host.DefaultQueueSize,
		"log_format":     logging.FormatJSON,
		"log_level":      "info",
		"metrics_addr":   "127.0.0.1:9100",
		"operator":       DefaultOperator,
		"journal.driver": journal.DriverMemory,
		"journal.dsn":    "",
		"permissions":    map[string]any{DefaultOperator: []any{"plugman.*"}},
	}
}

// BindFlags registers the config flags on fs. Their defaults are only
// used when neither the file nor the command line sets the key.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("plugins-dir", d["plugins_dir"].(string), "directory scanned for plugin archives")
	fs.String("archive-ext", plugin.DefaultArchiveExt, "plugin archive file extension")
	fs.Duration("hook-timeout", host.DefaultHookTimeout, "maximum time a module hook may run")
	fs.Int("event-queue", host.DefaultQueueSize, "event bus queue size")
	fs.String("log-format", logging.FormatJSON, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("operator", DefaultOperator, "console operator name used for permission checks")
	fs.String("journal-driver", journal.DriverMemory, "transition journal backend (memory, sqlite, postgres)")
	fs.String("journal-dsn", "", "journal DSN: SQLite path or PostgreSQL URL")
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	path, err := xdg.ConfigFile()
	if err != nil {
		return ""
	}
	return path
}

// Load resolves the configuration. An explicit path must exist; when path
// is empty the default path is read if present. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code(CodeParse).With("key", key).Wrap(err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := loadFile(k, path, explicit); err != nil {
			return nil, err
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeParse).Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeParse).With("path", path).Wrap(err)
	}
	cfg.Operator = strings.TrimSpace(cfg.Operator)
	if cfg.Journal.Driver == journal.DriverSQLite && cfg.Journal.DSN == "" {
		if p, err := xdg.JournalFile(); err == nil {
			cfg.Journal.DSN = p
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return oops.Code(CodeNotFound).
			With("path", path).
			Hint("pass --config with an existing file, or omit it to use defaults").
			Wrap(err)
	}
	if err := k.Load(file.Provider(filepath.Clean(path)), yaml.Parser()); err != nil {
		return oops.Code(CodeParse).With("path", path).Wrap(err)
	}
	return nil
}

// Validate checks value ranges and that every permission pattern compiles.
func (c *Config) Validate() error {
	invalid := oops.Code(CodeInvalid)
	switch {
	case c.PluginsDir == "":
		return invalid.Errorf("plugins_dir is required")
	case !strings.HasPrefix(c.ArchiveExt, "."):
		return invalid.With("archive_ext", c.ArchiveExt).Errorf("archive_ext must start with a dot")
	case c.HookTimeout <= 0:
		return invalid.With("hook_timeout", c.HookTimeout).Errorf("hook_timeout must be positive")
	case c.EventQueue <= 0:
		return invalid.With("event_queue", c.EventQueue).Errorf("event_queue must be positive")
	case !logging.ValidFormat(c.LogFormat):
		return invalid.With("log_format", c.LogFormat).Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	case c.Operator == "":
		return invalid.Errorf("operator is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid.With("log_level", c.LogLevel).Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.Journal.Driver {
	case journal.DriverMemory, journal.DriverSQLite:
	case journal.DriverPostgres:
		if c.Journal.DSN == "" {
			return invalid.Errorf("journal.dsn is required for the postgres journal")
		}
	default:
		return invalid.With("journal.driver", c.Journal.Driver).Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	for subject, patterns := range c.Permissions {
		if err := capability.Compile(patterns); err != nil {
			return invalid.With("subject", subject).Wrap(err)
		}
	}
	return nil
}

// Grant loads the configured permissions into enforcer.
func (c *Config) Grant(enforcer *capability.Enforcer) error {
	for subject, patterns := range c.Permissions {
		if err := enforcer.SetGrants(subject, patterns); err != nil {
			return oops.Code(CodeInvalid).With("subject", subject).Wrap(err)
		}
	}
	return nil
}
