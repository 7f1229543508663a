// Package config layers the application configuration from defaults,
// an optional YAML file, RECALLBOX_-prefixed environment variables and
// command-line flags, in ascending precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "RECALLBOX_"

// Config is the resolved application configuration.
type Config struct {
	Addr     string `koanf:"addr" validate:"required"`
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Driver     string `koanf:"driver" validate:"oneof=sqlite mongo"`
	SQLitePath string `koanf:"sqlite_path" validate:"required_if=Driver sqlite"`
	MongoURI   string `koanf:"mongo_uri" validate:"required_if=Driver mongo"`

	// DefaultUser scopes requests that carry no X-User-ID header.
	DefaultUser string `koanf:"default_user" validate:"required"`

	// ImportDir and ImportRepo, when set, run an import before the
	// server starts. ReposDir is where repositories are checked out.
	ImportDir  string `koanf:"import_dir"`
	ImportRepo string `koanf:"import_repo"`
	ReposDir   string `koanf:"repos_dir"`
}

// Flags returns the flag set the configuration can be loaded from.
// Flag defaults double as the configuration defaults.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("recallbox", pflag.ExitOnError)
	f.String("config", "", "path to a YAML config file")
	f.String("addr", ":24000", "listen address")
	f.String("log_level", "info", "log level (debug, info, warn, error)")
	f.String("driver", "sqlite", "storage driver (sqlite, mongo)")
	f.String("sqlite_path", "recallbox.db", "path to the sqlite database file")
	f.String("mongo_uri", "", "mongodb connection uri")
	f.String("default_user", "default", "user id for unauthenticated requests")
	f.String("import_dir", "", "directory of deck files to import on startup")
	f.String("import_repo", "", "git repository of deck files to import on startup")
	f.String("repos_dir", "repos", "directory deck repositories are checked out into")
	return f
}

// Load resolves the configuration from the given parsed flag set.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
