package instrumentation

import (
	"path/filepath"
	"strings"
	"time"
)

// Frame phases the driver can trace.
const (
	PhaseReload  = "reload"
	PhaseInput   = "input"
	PhaseEntry   = "entry"
	PhasePresent = "present"
)

// Options selects what the frame loop instruments.
type Options struct {
	// Enabled turns per-frame trace regions on
	Enabled bool

	// IncludePhases lists the phases to trace. Empty means all phases.
	IncludePhases []string

	// ExcludePhases lists phases never traced. This takes precedence over
	// IncludePhases.
	ExcludePhases []string

	// SlowFrame is the entry duration above which a frame counts as slow.
	// Zero disables slow frame accounting.
	SlowFrame time.Duration
}

// DefaultOptions returns the default instrumentation options
func DefaultOptions() Options {
	return Options{
		Enabled:       false,
		IncludePhases: []string{},
		ExcludePhases: []string{},
		SlowFrame:     time.Second / 60,
	}
}

// ShouldTrace checks if a frame phase should get a trace region
func (o Options) ShouldTrace(phase string) bool {
	if !o.Enabled {
		return false
	}

	// Check if phase is explicitly excluded
	for _, exclude := range o.ExcludePhases {
		if matchesPhase(phase, exclude) {
			return false
		}
	}

	// If no includes specified, trace everything except exclusions
	if len(o.IncludePhases) == 0 {
		return true
	}

	for _, include := range o.IncludePhases {
		if matchesPhase(phase, include) {
			return true
		}
	}

	return false
}

// matchesPhase checks if a phase matches a pattern
func matchesPhase(phase, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		return true
	}
	matched, _ := filepath.Match(pattern, phase)
	return matched
}
