// Package config loads flashstudy settings from a YAML file, the
// environment and command line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read into the config.
// FLASHSTUDY_BACKEND_URL sets backend.url; only the first underscore after the
// section name is treated as a separator.
const EnvPrefix = "FLASHSTUDY_"

// Generator names.
const (
	GeneratorBackend   = "backend"
	GeneratorAnthropic = "anthropic"
)

type Config struct {
	DB        DBConfig        `koanf:"db"`
	Server    ServerConfig    `koanf:"server"`
	Generator string          `koanf:"generator" validate:"oneof=backend anthropic"`
	Backend   BackendConfig   `koanf:"backend"`
	Anthropic AnthropicConfig `koanf:"anthropic"`
	Auth      AuthConfig      `koanf:"auth"`
	Log       LogConfig       `koanf:"log"`
	Sync      SyncConfig      `koanf:"sync"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// BackendConfig points at the flashcard generation service.
type BackendConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// Rate is the number of generation requests allowed per second; 0 disables limiting.
	Rate  float64 `koanf:"rate" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=1"`
}

type AnthropicConfig struct {
	APIKey    string `koanf:"api_key"`
	Model     string `koanf:"model"`
	MaxTokens int64  `koanf:"max_tokens" validate:"gte=1"`
}

// AuthConfig points at a hosted GoTrue-compatible auth service. An empty URL disables auth.
type AuthConfig struct {
	URL         string        `koanf:"url" validate:"omitempty,url"`
	Key         string        `koanf:"key"`
	RedirectURL string        `koanf:"redirect_url" validate:"omitempty,url"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	// File, when set, receives JSON logs in addition to stderr and is rotated by size.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
}

type SyncConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// RegisterFlags adds every config key as a flag, carrying the defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML config file")
	flags.String("env-file", ".env", "Path to a .env file loaded into the environment if present")

	flags.String("db.path", "flashstudy.db", "Path to the SQLite database file")
	flags.String("server.addr", ":8080", "Address the HTTP API listens on")
	flags.String("generator", GeneratorBackend, "Material generator: backend or anthropic")
	flags.String("backend.url", "http://localhost:9999/", "Base URL of the generation backend")
	flags.Duration("backend.timeout", 2*time.Minute, "Timeout for a single generation request")
	flags.Float64("backend.rate", 1, "Generation requests per second (0 disables limiting)")
	flags.Int("backend.burst", 2, "Generation request burst size")
	flags.String("anthropic.api_key", "", "Anthropic API key for the anthropic generator")
	flags.String("anthropic.model", "claude-sonnet-4-20250514", "Anthropic model for the anthropic generator")
	flags.Int64("anthropic.max_tokens", 4096, "Maximum tokens per generation")
	flags.String("auth.url", "", "Base URL of the hosted auth service")
	flags.String("auth.key", "", "Public API key of the hosted auth service")
	flags.String("auth.redirect_url", "", "Where password reset emails send the user")
	flags.Duration("auth.timeout", 30*time.Second, "Timeout for auth requests")
	flags.String("log.level", "info", "Log level: debug, info, warn or error")
	flags.String("log.file", "", "Optional log file, rotated by size")
	flags.Int("log.max_size_mb", 100, "Log file size before rotation")
	flags.Int("log.max_backups", 5, "Rotated log files to keep")
	flags.String("sync.repos_dir", "repos", "Directory git deck sources are checked out into")
}

// Load builds the Config from the config file named by --config, the
// environment and the already parsed flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Flags override the file and environment only when set explicitly;
	// otherwise their defaults fill in whatever is still missing.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the settings each generator needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Generator == GeneratorAnthropic && c.Anthropic.APIKey == "" {
		return errors.New("invalid config: anthropic.api_key is required when generator is anthropic")
	}
	return nil
}
