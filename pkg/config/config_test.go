package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
	"github.com/willibrandon/ChronoLoop/pkg/driver"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if c.Arena.Capacity != arena.DefaultCapacity || c.Arena.BaseAddress != 0xcdcd0000 {
		t.Errorf("Unexpected arena defaults %+v", c.Arena)
	}
	if c.Frame.Timestep != driver.DefaultTimestep {
		t.Errorf("Expected %v timestep, got %v", driver.DefaultTimestep, c.Frame.Timestep)
	}
	if c.Module.Symbol != "FrameEntry" {
		t.Errorf("Expected FrameEntry, got %s", c.Module.Symbol)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := writeConfig(t, "chronoloop.yaml", `
module:
  path: build/libgame.so
  poll_interval: 100ms
arena:
  capacity: 65536
frame:
  abort_policy: reset
  max_frames: 600
session:
  compression: zstd
instrumentation:
  include_phases: [entry, reload]
`)
	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.Module.Path != "build/libgame.so" || c.Module.PollInterval != 100*time.Millisecond {
		t.Errorf("Unexpected module config %+v", c.Module)
	}
	if c.Arena.Capacity != 65536 {
		t.Errorf("Expected capacity 65536, got %d", c.Arena.Capacity)
	}
	// Unset keys keep their defaults
	if c.Arena.BaseAddress != uint64(arena.DefaultBaseAddress) || c.Module.Symbol != "FrameEntry" {
		t.Errorf("Expected defaults for unset keys, got %+v %+v", c.Arena, c.Module)
	}
	if c.Frame.AbortPolicy != "reset" || c.Frame.MaxFrames != 600 {
		t.Errorf("Unexpected frame config %+v", c.Frame)
	}
	if c.Session.Compression != "zstd" {
		t.Errorf("Expected zstd, got %s", c.Session.Compression)
	}
	if len(c.Instrumentation.IncludePhases) != 2 {
		t.Errorf("Expected 2 phases, got %v", c.Instrumentation.IncludePhases)
	}
}

func TestLoadFromFileTOML(t *testing.T) {
	path := writeConfig(t, "chronoloop.toml", `
[module]
path = "build/libgame.so"

[frame]
timestep = "10ms"
seed = 99

[logging]
level = "debug"
format = "json"
`)
	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.Module.Path != "build/libgame.so" {
		t.Errorf("Expected module path, got %q", c.Module.Path)
	}
	if c.Frame.Timestep != 10*time.Millisecond || c.Frame.Seed != 99 {
		t.Errorf("Unexpected frame config %+v", c.Frame)
	}
	if c.Logging.Level != "debug" || c.Logging.Format != "json" {
		t.Errorf("Unexpected logging config %+v", c.Logging)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}
	if _, err := LoadFromFile(writeConfig(t, "c.json", "{}")); err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Errorf("Expected unsupported format error, got %v", err)
	}
	if _, err := LoadFromFile(writeConfig(t, "c.yaml", "arena: [")); err == nil {
		t.Error("Expected a YAML parse error")
	}
	if _, err := LoadFromFile(writeConfig(t, "c.toml", "[arena\n")); err == nil {
		t.Error("Expected a TOML parse error")
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "chronoloop.yaml", `
arena:
  capacity: 4096
frame:
  abort_policy: reset
logging:
  level: debug
`)
	c, err := load(path, map[string]string{
		"CHRONOLOOP_ARENA_CAPACITY":           "8192",
		"CHRONOLOOP_MODULE_POLL_INTERVAL":     "1s",
		"CHRONOLOOP_TRACE_INCLUDE_PHASES":     "entry,present",
		"CHRONOLOOP_SESSION_CHECKPOINT_CACHE": "8",
		"ARENA_CAPACITY":                      "1",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// env beats file
	if c.Arena.Capacity != 8192 {
		t.Errorf("Expected env capacity 8192, got %d", c.Arena.Capacity)
	}
	// file beats defaults
	if c.Frame.AbortPolicy != "reset" || c.Logging.Level != "debug" {
		t.Errorf("Expected file values, got %+v %+v", c.Frame, c.Logging)
	}
	// defaults survive both
	if c.Frame.Timestep != driver.DefaultTimestep {
		t.Errorf("Expected default timestep, got %v", c.Frame.Timestep)
	}
	if c.Module.PollInterval != time.Second || c.Session.CheckpointCache != 8 {
		t.Errorf("Unexpected env overrides %+v %+v", c.Module, c.Session)
	}
	if strings.Join(c.Instrumentation.IncludePhases, ",") != "entry,present" {
		t.Errorf("Expected phases from env, got %v", c.Instrumentation.IncludePhases)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	_, err := load("", map[string]string{"CHRONOLOOP_ARENA_CAPACITY": "lots"})
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("Expected parse env error, got %v", err)
	}
}

func TestSignKeyExpansionAndRedaction(t *testing.T) {
	t.Setenv("CHRONOLOOP_TEST_KEY", "0123456789abcdef")
	path := writeConfig(t, "c.yaml", "session:\n  sign_key: ${CHRONOLOOP_TEST_KEY}\n")
	c, err := load(path, map[string]string{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.Session.SignKey != "0123456789abcdef" {
		t.Errorf("Expected expanded key, got %q", c.Session.SignKey)
	}
	if s := c.Session.String(); strings.Contains(s, "456789ab") || !strings.Contains(s, "0123...cdef") {
		t.Errorf("Expected a redacted key, got %s", s)
	}
	short := SessionConfig{SignKey: "abc"}
	if short.RedactedSignKey() != "(set)" {
		t.Errorf("Expected (set), got %s", short.RedactedSignKey())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero capacity", func(c *Config) { c.Arena.Capacity = 0 }, "capacity must be positive"},
		{"huge capacity", func(c *Config) { c.Arena.Capacity = 1<<30 + 1 }, "snapshot limit"},
		{"zero timestep", func(c *Config) { c.Frame.Timestep = 0 }, "timestep must be positive"},
		{"abort policy", func(c *Config) { c.Frame.AbortPolicy = "ignore" }, "unknown abort policy"},
		{"poll interval", func(c *Config) { c.Module.PollInterval = -time.Second }, "poll_interval"},
		{"symbol", func(c *Config) { c.Module.Symbol = "" }, "symbol must not be empty"},
		{"compression", func(c *Config) { c.Session.Compression = "gzip" }, "session compression"},
		{"journal compression", func(c *Config) { c.Logging.JournalCompression = "lz4" }, "journal compression"},
		{"checkpoints", func(c *Config) { c.Session.CheckpointInterval = 0 }, "checkpoint interval"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"trace output", func(c *Config) { c.Instrumentation.Enabled = true }, "output path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestArenaOptions(t *testing.T) {
	c := Default()
	c.Arena.Capacity = 4096
	opts := c.ArenaOptions()
	if opts.Capacity != 4096 || opts.BaseAddress != arena.DefaultBaseAddress {
		t.Errorf("Unexpected arena options %+v", opts)
	}
}
