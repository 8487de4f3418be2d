package instrumentation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestShouldTrace(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		phase string
		want  bool
	}{
		{"disabled", Options{Enabled: false}, PhaseEntry, false},
		{"all phases", Options{Enabled: true}, PhaseReload, true},
		{"included", Options{Enabled: true, IncludePhases: []string{PhaseEntry}}, PhaseEntry, true},
		{"not included", Options{Enabled: true, IncludePhases: []string{PhaseEntry}}, PhaseInput, false},
		{"excluded wins", Options{Enabled: true, IncludePhases: []string{"*"}, ExcludePhases: []string{PhasePresent}}, PhasePresent, false},
		{"glob", Options{Enabled: true, IncludePhases: []string{"re*"}}, PhaseReload, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.ShouldTrace(tt.phase); got != tt.want {
				t.Errorf("ShouldTrace(%q) = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	s := NewStats(10 * time.Millisecond)
	s.ObserveFrame(2 * time.Millisecond)
	s.ObserveFrame(20 * time.Millisecond)
	s.ObserveFrame(5 * time.Millisecond)
	s.ObserveReload()
	s.ObserveAbort()

	snap := s.Snapshot()
	if snap.Frames != 3 || snap.Slow != 1 || snap.Reloads != 1 || snap.Aborts != 1 {
		t.Errorf("Unexpected counters %+v", snap)
	}
	if snap.Min != 2*time.Millisecond || snap.Max != 20*time.Millisecond {
		t.Errorf("Expected min 2ms and max 20ms, got %v and %v", snap.Min, snap.Max)
	}
	if snap.Mean() != 9*time.Millisecond {
		t.Errorf("Expected mean 9ms, got %v", snap.Mean())
	}
	if !strings.Contains(snap.String(), "3 frames (1 slow)") {
		t.Errorf("Unexpected summary %q", snap.String())
	}

	var nilStats *Stats
	nilStats.ObserveFrame(time.Second)
	nilStats.ObserveAbort()
}

func TestTraceRegions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.trace")
	if err := StartTrace(path); err != nil {
		t.Fatalf("Failed to start trace: %v", err)
	}
	if err := StartTrace(path); err == nil {
		t.Error("Expected a second trace to be rejected")
	}

	tr := NewTracer(Options{Enabled: true})
	ran := 0
	for i := uint64(0); i < 3; i++ {
		ctx, end := tr.Frame(context.Background(), i)
		tr.Phase(ctx, PhaseEntry, func() { ran++ })
		tr.Log(ctx, "module", "paddle")
		end()
	}

	// A nil tracer still runs the phase
	var none *Tracer
	none.Phase(context.Background(), PhaseEntry, func() { ran++ })
	if ran != 4 {
		t.Errorf("Expected every phase body to run, got %d", ran)
	}

	if err := StopTrace(); err != nil {
		t.Fatalf("Failed to stop trace: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Errorf("Expected trace output, got %v", err)
	}
}
