// Package config loads ordgrep's layered configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
)

// Project config file names, in lookup order.
const (
	ProjectConfigName    = ".ordgrep.yaml"
	ProjectConfigNameAlt = ".ordgrep.yml"
)

// Config represents the complete ordgrep configuration.
type Config struct {
	Version  int           `yaml:"version" json:"version"`
	Search   SearchConfig  `yaml:"search" json:"search"`
	Process  ProcessConfig `yaml:"process" json:"process"`
	Paths    PathsConfig   `yaml:"paths" json:"paths"`
	Output   OutputConfig  `yaml:"output" json:"output"`
	S3       S3Config      `yaml:"s3" json:"s3"`
	LogLevel string        `yaml:"log_level" json:"log_level"`
}

// SearchConfig configures how a search session runs.
type SearchConfig struct {
	// Backend is sequential, thread, pool or process.
	Backend string `yaml:"backend" json:"backend"`
	// MaxFiles bounds concurrently searched sources.
	MaxFiles int `yaml:"max_files" json:"max_files"`
	// MaxMatches bounds buffered records per source.
	MaxMatches int `yaml:"max_matches" json:"max_matches"`
	// PollInterval bounds the pool backend's admission wait.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// Encoding is utf-8 or latin1.
	Encoding string `yaml:"encoding" json:"encoding"`
	// Decompress reads .gz, .zst and .lz4 files as their decoded content.
	Decompress bool `yaml:"decompress" json:"decompress"`
}

// ProcessConfig tunes the process backend.
type ProcessConfig struct {
	GracePeriod time.Duration `yaml:"grace_period" json:"grace_period"`
	// UnitTimeout limits one worker process; 0 means no limit.
	UnitTimeout time.Duration `yaml:"unit_timeout" json:"unit_timeout"`
	// IdleTimeout kills a worker process that sends nothing for this long.
	IdleTimeout      time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxSpawnFailures int           `yaml:"max_spawn_failures" json:"max_spawn_failures"`
}

// PathsConfig configures recursive directory walks.
type PathsConfig struct {
	Exclude          []string `yaml:"exclude" json:"exclude"`
	RespectGitignore bool     `yaml:"respect_gitignore" json:"respect_gitignore"`
}

// OutputConfig configures rendering.
type OutputConfig struct {
	// Color is auto, always or never.
	Color string `yaml:"color" json:"color"`
}

// S3Config configures s3:// sources. Credentials come only from the
// environment and are never written out.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Region    string `yaml:"region" json:"region"`
	Secure    bool   `yaml:"secure" json:"secure"`
	AccessKey string `yaml:"-" json:"-"`
	SecretKey string `yaml:"-" json:"-"`
}

// defaultExcludePatterns are skipped by every recursive walk.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Backend:      "thread",
			MaxFiles:     16,
			MaxMatches:   512,
			PollInterval: 100 * time.Millisecond,
			Encoding:     "utf-8",
		},
		Process: ProcessConfig{
			GracePeriod:      2 * time.Second,
			IdleTimeout:      10 * time.Second,
			MaxSpawnFailures: 3,
		},
		Paths: PathsConfig{
			Exclude:          append([]string(nil), defaultExcludePatterns...),
			RespectGitignore: true,
		},
		Output: OutputConfig{
			Color: "auto",
		},
		S3: S3Config{
			Endpoint: "s3.amazonaws.com",
			Region:   "us-east-1",
			Secure:   true,
		},
		LogLevel: "warn",
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ordgrep/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ordgrep/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ordgrep", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ordgrep", "config.yaml")
	}
	return filepath.Join(home, ".config", "ordgrep", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// ProjectConfigPath returns the project config file in dir, or "" if there
// is none.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectConfigName, ProjectConfigNameAlt} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// Load loads configuration for a search started in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/ordgrep/config.yaml)
//  3. Project config (.ordgrep.yaml in dir), or explicit if it is set
//  4. Environment variables (ORDGREP_*)
//
// An explicit file must exist.
func Load(dir, explicit string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	switch {
	case explicit != "":
		if !fileExists(explicit) {
			return nil, grerrors.New(grerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file %s not found", explicit), nil)
		}
		if err := cfg.loadYAML(explicit); err != nil {
			return nil, err
		}
	default:
		if path := ProjectConfigPath(dir); path != "" {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges a YAML file over c. Keys absent from the file keep their
// current values; exclude patterns are appended. Unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return grerrors.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}
	if err := c.mergeYAML(data); err != nil {
		return grerrors.ConfigError(fmt.Sprintf("parse config file %s", path), err).
			WithDetail("path", path)
	}
	return nil
}

func (c *Config) mergeYAML(data []byte) error {
	prior := c.Paths.Exclude
	c.Paths.Exclude = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(c)
	if errors.Is(err, io.EOF) {
		// Empty file.
		err = nil
	}

	c.Paths.Exclude = appendUnique(prior, c.Paths.Exclude...)
	return err
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}

// applyEnvOverrides applies ORDGREP_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"ORDGREP_BACKEND":       &c.Search.Backend,
		"ORDGREP_ENCODING":      &c.Search.Encoding,
		"ORDGREP_COLOR":         &c.Output.Color,
		"ORDGREP_LOG_LEVEL":     &c.LogLevel,
		"ORDGREP_S3_ENDPOINT":   &c.S3.Endpoint,
		"ORDGREP_S3_REGION":     &c.S3.Region,
		"ORDGREP_S3_ACCESS_KEY": &c.S3.AccessKey,
		"ORDGREP_S3_SECRET_KEY": &c.S3.SecretKey,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ORDGREP_MAX_FILES":          &c.Search.MaxFiles,
		"ORDGREP_MAX_MATCHES":        &c.Search.MaxMatches,
		"ORDGREP_MAX_SPAWN_FAILURES": &c.Process.MaxSpawnFailures,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return envError(key, v, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"ORDGREP_POLL_INTERVAL": &c.Search.PollInterval,
		"ORDGREP_GRACE_PERIOD":  &c.Process.GracePeriod,
		"ORDGREP_UNIT_TIMEOUT":  &c.Process.UnitTimeout,
		"ORDGREP_IDLE_TIMEOUT":  &c.Process.IdleTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return envError(key, v, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"ORDGREP_DECOMPRESS":        &c.Search.Decompress,
		"ORDGREP_RESPECT_GITIGNORE": &c.Paths.RespectGitignore,
		"ORDGREP_S3_SECURE":         &c.S3.Secure,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return envError(key, v, err)
			}
			*dst = b
		}
	}
	return nil
}

func envError(key, value string, cause error) error {
	return grerrors.ConfigError(fmt.Sprintf("invalid value %q for %s", value, key), cause).
		WithDetail("env", key)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validBackends := map[string]bool{"sequential": true, "thread": true, "pool": true, "process": true}
	if !validBackends[strings.ToLower(c.Search.Backend)] {
		return invalid("search.backend must be 'sequential', 'thread', 'pool' or 'process', got %q", c.Search.Backend)
	}
	if c.Search.MaxFiles <= 0 {
		return invalid("search.max_files must be positive, got %d", c.Search.MaxFiles)
	}
	if c.Search.MaxMatches <= 0 {
		return invalid("search.max_matches must be positive, got %d", c.Search.MaxMatches)
	}
	if c.Search.PollInterval <= 0 {
		return invalid("search.poll_interval must be positive, got %s", c.Search.PollInterval)
	}

	validEncodings := map[string]bool{"utf-8": true, "latin1": true}
	if !validEncodings[strings.ToLower(c.Search.Encoding)] {
		return invalid("search.encoding must be 'utf-8' or 'latin1', got %q", c.Search.Encoding)
	}

	if c.Process.GracePeriod <= 0 {
		return invalid("process.grace_period must be positive, got %s", c.Process.GracePeriod)
	}
	if c.Process.UnitTimeout < 0 {
		return invalid("process.unit_timeout must be non-negative, got %s", c.Process.UnitTimeout)
	}
	if c.Process.IdleTimeout <= 0 {
		return invalid("process.idle_timeout must be positive, got %s", c.Process.IdleTimeout)
	}
	if c.Process.MaxSpawnFailures <= 0 {
		return invalid("process.max_spawn_failures must be positive, got %d", c.Process.MaxSpawnFailures)
	}

	validColors := map[string]bool{"auto": true, "always": true, "never": true}
	if !validColors[strings.ToLower(c.Output.Color)] {
		return invalid("output.color must be 'auto', 'always' or 'never', got %q", c.Output.Color)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return invalid("log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.LogLevel)
	}

	for _, p := range c.Paths.Exclude {
		if _, err := filepath.Match(p, ""); err != nil {
			return invalid("paths.exclude has a malformed pattern %q", p)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return grerrors.ConfigError(fmt.Sprintf(format, args...), nil)
}

// YAML returns the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteYAML writes the configuration to a YAML file, creating its directory.
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
