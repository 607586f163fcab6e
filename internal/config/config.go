/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the user configuration: YAML file in the per-user
// config directory, then DG_* environment overrides. The Postgres cache
// password is kept in the OS keyring, never in the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"dialogical/internal/comptime"
	applog "dialogical/internal/log"

	"github.com/caarlos0/env/v11"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DG_"

type ComptimeConfig struct {
	MaxSteps       int           `yaml:"max_steps" env:"MAX_STEPS"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxOutputLines int           `yaml:"max_output_lines" env:"MAX_OUTPUT_LINES"`
	MaxStringBytes int           `yaml:"max_string_bytes" env:"MAX_STRING_BYTES"`
	RequireOutput  bool          `yaml:"require_output" env:"REQUIRE_OUTPUT"`
	AllowFiles     bool          `yaml:"allow_files" env:"ALLOW_FILES"`
	FileTimeout    time.Duration `yaml:"file_timeout" env:"FILE_TIMEOUT"`
	Normalize      bool          `yaml:"normalize" env:"NORMALIZE"`
	Jobs           int           `yaml:"jobs" env:"JOBS"`
}

// Cache backends.
const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
)

type CacheConfig struct {
	Backend     string `yaml:"backend" env:"BACKEND"`
	Dir         string `yaml:"dir" env:"DIR"` // sqlite; empty means the user cache dir
	PostgresDSN string `yaml:"postgres_dsn" env:"PG_DSN"`
	// Password overrides the keyring entry; only settable from the environment.
	Password string `yaml:"-" env:"PG_PASSWORD"`
}

type OutputConfig struct {
	Format   string `yaml:"format" env:"FORMAT"`
	Validate bool   `yaml:"validate" env:"VALIDATE"`
	PageSize string `yaml:"page_size" env:"PAGE_SIZE"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Source bool   `yaml:"source" env:"SOURCE"`
	File   string `yaml:"file" env:"FILE"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// AppConfig is the user-editable configuration.
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	Comptime      ComptimeConfig `yaml:"comptime" envPrefix:"COMPTIME_"`
	Cache         CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Output        OutputConfig   `yaml:"output" envPrefix:"OUTPUT_"`
	Logging       LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
	Server        ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	lim := comptime.DefaultLimits()
	return AppConfig{
		ConfigVersion: 1,
		Comptime: ComptimeConfig{
			MaxSteps:       lim.MaxSteps,
			Timeout:        lim.Timeout,
			MaxOutputLines: lim.MaxOutputLines,
			MaxStringBytes: lim.MaxStringBytes,
			FileTimeout:    30 * time.Second,
		},
		Cache:   CacheConfig{Backend: CacheNone},
		Output:  OutputConfig{Format: "json", PageSize: "A4"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Server:  ServerConfig{Addr: ":8420", MaxBodyBytes: 1 << 20},
	}
}

// envKeys maps dotted config keys to their override variable.
var envKeys = map[string]string{
	"comptime.max_steps":        "DG_COMPTIME_MAX_STEPS",
	"comptime.timeout":          "DG_COMPTIME_TIMEOUT",
	"comptime.max_output_lines": "DG_COMPTIME_MAX_OUTPUT_LINES",
	"comptime.max_string_bytes": "DG_COMPTIME_MAX_STRING_BYTES",
	"comptime.require_output":   "DG_COMPTIME_REQUIRE_OUTPUT",
	"comptime.allow_files":      "DG_COMPTIME_ALLOW_FILES",
	"comptime.file_timeout":     "DG_COMPTIME_FILE_TIMEOUT",
	"comptime.normalize":        "DG_COMPTIME_NORMALIZE",
	"comptime.jobs":             "DG_COMPTIME_JOBS",
	"cache.backend":             "DG_CACHE_BACKEND",
	"cache.dir":                 "DG_CACHE_DIR",
	"cache.postgres_dsn":        "DG_CACHE_PG_DSN",
	"output.format":             "DG_OUTPUT_FORMAT",
	"output.validate":           "DG_OUTPUT_VALIDATE",
	"output.page_size":          "DG_OUTPUT_PAGE_SIZE",
	"logging.level":             "DG_LOG_LEVEL",
	"logging.format":            "DG_LOG_FORMAT",
	"logging.source":            "DG_LOG_SOURCE",
	"logging.file":              "DG_LOG_FILE",
	"server.addr":               "DG_SERVER_ADDR",
	"server.max_body_bytes":     "DG_SERVER_MAX_BODY_BYTES",
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Keys lists the dotted keys that can be overridden from the environment.
func Keys() []string {
	out := make([]string, 0, len(envKeys))
	for k := range envKeys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "dialogical")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "dialogical")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "dialogical")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "dialogical")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the config file at path (ConfigPath when empty) over the
// defaults and applies environment overrides. A missing file is not an error.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, cfg.Validate()
}

// Save writes cfg as YAML to path (ConfigPath when empty).
func Save(path string, cfg AppConfig) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects values no component can work with.
func (c AppConfig) Validate() error {
	switch c.Cache.Backend {
	case CacheNone, CacheMemory, CacheSQLite:
	case CachePostgres:
		if c.Cache.PostgresDSN == "" {
			return errors.New("cache.postgres_dsn is required for the postgres cache")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	switch c.Output.Format {
	case "json", "yaml", "yml":
	default:
		return fmt.Errorf("unknown output.format %q", c.Output.Format)
	}
	if c.Comptime.MaxSteps < 0 || c.Comptime.MaxOutputLines < 0 || c.Comptime.MaxStringBytes < 0 || c.Comptime.Jobs < 0 {
		return errors.New("comptime limits must not be negative")
	}
	return nil
}

// Limits returns the per-script comptime limits.
func (c AppConfig) Limits() comptime.Limits {
	return comptime.Limits{
		MaxSteps:       c.Comptime.MaxSteps,
		Timeout:        c.Comptime.Timeout,
		MaxOutputLines: c.Comptime.MaxOutputLines,
		MaxStringBytes: c.Comptime.MaxStringBytes,
	}
}

// LogOptions converts the logging section for log.Init.
func (c AppConfig) LogOptions() applog.Options {
	return applog.Options{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.Source,
		File:      c.Logging.File,
	}
}

// Service/keys for OS keyring.
const (
	keyringService       = "dialogical"
	keyringCachePassword = "cache_password"
)

// SecretStore abstracts the keyring so tests can stub it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var secretStore SecretStore = osKeyring{}

// osKeyring implements SecretStore with github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// CachePassword returns the Postgres cache password: the DG_CACHE_PG_PASSWORD
// override if set, otherwise the keyring entry, otherwise "".
func (c AppConfig) CachePassword() (string, error) {
	if c.Cache.Password != "" {
		return c.Cache.Password, nil
	}
	pw, err := secretStore.Get(keyringService, keyringCachePassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("keyring: %w", err)
	}
	return pw, nil
}

// SetCachePassword stores pw in the keyring; an empty pw removes the entry.
func SetCachePassword(pw string) error {
	if pw == "" {
		err := secretStore.Delete(keyringService, keyringCachePassword)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return secretStore.Set(keyringService, keyringCachePassword, pw)
}
