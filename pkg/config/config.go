// Package config provides unified configuration loading for chronoloop.
// It supports loading from YAML or TOML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
	"github.com/willibrandon/ChronoLoop/pkg/compression"
	"github.com/willibrandon/ChronoLoop/pkg/driver"
	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/logging"
	"github.com/willibrandon/ChronoLoop/pkg/recorder"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHRONOLOOP_"

// Config contains all chronoloop configuration settings.
type Config struct {
	Module          ModuleConfig          `yaml:"module" toml:"module" envPrefix:"MODULE_"`
	Arena           ArenaConfig           `yaml:"arena" toml:"arena" envPrefix:"ARENA_"`
	Frame           FrameConfig           `yaml:"frame" toml:"frame" envPrefix:"FRAME_"`
	Session         SessionConfig         `yaml:"session" toml:"session" envPrefix:"SESSION_"`
	Logging         LoggingConfig         `yaml:"logging" toml:"logging" envPrefix:"LOG_"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation" toml:"instrumentation" envPrefix:"TRACE_"`
}

// ModuleConfig locates the logic module.
type ModuleConfig struct {
	// Path is the build artifact to load and watch.
	Path string `yaml:"path" toml:"path" env:"PATH"`

	// Symbol is the exported entry point name.
	Symbol string `yaml:"symbol" toml:"symbol" env:"SYMBOL"`

	// StagingDir receives the copies that are actually opened. Empty uses
	// a temporary directory removed on exit.
	StagingDir string `yaml:"staging_dir" toml:"staging_dir" env:"STAGING_DIR"`

	// PollInterval rate-limits staleness checks. Zero checks every frame.
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval" env:"POLL_INTERVAL"`
}

// ArenaConfig sizes and places the simulation region.
type ArenaConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity" env:"CAPACITY"`

	// BaseAddress is the fixed mapping address. Zero lets the system choose,
	// which breaks replay of sessions recorded at another address.
	BaseAddress uint64 `yaml:"base_address" toml:"base_address" env:"BASE_ADDRESS"`
}

// FrameConfig controls the frame loop.
type FrameConfig struct {
	Timestep time.Duration `yaml:"timestep" toml:"timestep" env:"TIMESTEP"`

	// AbortPolicy is "fatal" or "reset".
	AbortPolicy string `yaml:"abort_policy" toml:"abort_policy" env:"ABORT_POLICY"`

	// MaxFrames stops the loop after this many frames. Zero runs until
	// interrupted.
	MaxFrames uint64 `yaml:"max_frames" toml:"max_frames" env:"MAX_FRAMES"`

	// Seed seeds the headless host's random source.
	Seed uint64 `yaml:"seed" toml:"seed" env:"SEED"`
}

// SessionConfig controls session files and replay.
type SessionConfig struct {
	Path string `yaml:"path" toml:"path" env:"PATH"`

	// Compression is "none" or "zstd".
	Compression string `yaml:"compression" toml:"compression" env:"COMPRESSION"`

	// SignKey, when set, signs persisted sessions and verifies loaded ones.
	// Supports ${VAR} syntax for env vars.
	SignKey string `yaml:"sign_key,omitempty" toml:"sign_key" env:"SIGN_KEY"`

	// CheckpointInterval is the number of frames between replay checkpoints.
	CheckpointInterval int `yaml:"checkpoint_interval" toml:"checkpoint_interval" env:"CHECKPOINT_INTERVAL"`

	// CheckpointCache bounds the cached replay checkpoints.
	CheckpointCache int `yaml:"checkpoint_cache" toml:"checkpoint_cache" env:"CHECKPOINT_CACHE"`
}

// RedactedSignKey returns the signing key with most characters masked.
func (c SessionConfig) RedactedSignKey() string {
	if c.SignKey == "" {
		return ""
	}
	if len(c.SignKey) < 12 {
		return "(set)"
	}
	return c.SignKey[:4] + "..." + c.SignKey[len(c.SignKey)-4:]
}

// String implements fmt.Stringer to prevent accidental key logging.
func (c SessionConfig) String() string {
	return fmt.Sprintf("SessionConfig{Path:%s, Compression:%s, SignKey:%s, Checkpoints:%d/%d}",
		c.Path, c.Compression, c.RedactedSignKey(), c.CheckpointInterval, c.CheckpointCache)
}

// LoggingConfig configures logging and the lifecycle journal.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug" or "trace".
	Level string `yaml:"level" toml:"level" env:"LEVEL"`

	// Format is "auto", "text" or "json". Auto picks text on a terminal.
	Format string `yaml:"format" toml:"format" env:"FORMAT"`

	// Journal, when set, appends lifecycle events to this JSON lines file.
	Journal string `yaml:"journal" toml:"journal" env:"JOURNAL"`

	// JournalCompression is "none" or "zstd".
	JournalCompression string `yaml:"journal_compression" toml:"journal_compression" env:"JOURNAL_COMPRESSION"`
}

// InstrumentationConfig configures runtime tracing of the frame loop.
type InstrumentationConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`

	// Output is the runtime/trace file written while the loop runs.
	Output string `yaml:"output" toml:"output" env:"OUTPUT"`

	IncludePhases []string `yaml:"include_phases" toml:"include_phases" env:"INCLUDE_PHASES"`
	ExcludePhases []string `yaml:"exclude_phases" toml:"exclude_phases" env:"EXCLUDE_PHASES"`

	// SlowFrame is the entry duration above which a frame counts as slow.
	SlowFrame time.Duration `yaml:"slow_frame" toml:"slow_frame" env:"SLOW_FRAME"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Module: ModuleConfig{
			Symbol:       frame.EntrySymbol,
			PollInterval: 250 * time.Millisecond,
		},
		Arena: ArenaConfig{
			Capacity:    arena.DefaultCapacity,
			BaseAddress: uint64(arena.DefaultBaseAddress),
		},
		Frame: FrameConfig{
			Timestep:    driver.DefaultTimestep,
			AbortPolicy: driver.AbortFatal.String(),
		},
		Session: SessionConfig{
			Compression:        compression.None.String(),
			CheckpointInterval: 60,
			CheckpointCache:    64,
		},
		Logging: LoggingConfig{
			Level:              "info",
			Format:             logging.FormatAuto,
			JournalCompression: compression.None.String(),
		},
		Instrumentation: InstrumentationConfig{
			SlowFrame: driver.DefaultTimestep,
		},
	}
}

// Load builds the configuration in order: defaults, then the file at path
// when path is not empty, then environment variables.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (*Config, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config, environ); err != nil {
		return nil, err
	}
	config.Session.SignKey = expandEnvVars(config.Session.SignKey)
	return config, nil
}

// LoadFromFile loads configuration from a YAML (.yaml, .yml) or TOML
// (.toml) file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (valid: .yaml, .yml, .toml)", ext)
	}

	config.Session.SignKey = expandEnvVars(config.Session.SignKey)
	return config, nil
}

// applyEnvOverrides applies CHRONOLOOP_* environment variables. A nil
// environ reads the process environment.
func applyEnvOverrides(config *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Arena.Capacity <= 0 {
		return fmt.Errorf("arena capacity must be positive, got %d", c.Arena.Capacity)
	}
	if c.Arena.Capacity > recorder.MaxSnapshotSize {
		return fmt.Errorf("arena capacity %d exceeds the session snapshot limit of %d", c.Arena.Capacity, recorder.MaxSnapshotSize)
	}

	if c.Frame.Timestep <= 0 {
		return fmt.Errorf("timestep must be positive, got %v", c.Frame.Timestep)
	}
	if _, err := driver.ParseAbortPolicy(c.Frame.AbortPolicy); err != nil {
		return err
	}
	if c.Module.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be non-negative, got %v", c.Module.PollInterval)
	}
	if c.Module.Symbol == "" {
		return fmt.Errorf("module symbol must not be empty")
	}

	if _, err := compression.Parse(c.Session.Compression); err != nil {
		return fmt.Errorf("session compression: %w", err)
	}
	if _, err := compression.Parse(c.Logging.JournalCompression); err != nil {
		return fmt.Errorf("journal compression: %w", err)
	}
	if c.Session.CheckpointInterval <= 0 || c.Session.CheckpointCache <= 0 {
		return fmt.Errorf("checkpoint interval and cache must be positive, got %d and %d",
			c.Session.CheckpointInterval, c.Session.CheckpointCache)
	}

	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, logging.FormatAuto: true, logging.FormatText: true, logging.FormatJSON: true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: auto, text, json)", c.Logging.Format)
	}

	if c.Instrumentation.Enabled && c.Instrumentation.Output == "" {
		return fmt.Errorf("instrumentation output path is required when tracing is enabled")
	}
	return nil
}

// ArenaOptions returns the arena construction options.
func (c *Config) ArenaOptions() arena.Options {
	return arena.Options{
		Capacity:    c.Arena.Capacity,
		BaseAddress: uintptr(c.Arena.BaseAddress),
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
