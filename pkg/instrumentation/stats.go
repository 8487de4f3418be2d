package instrumentation

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats accumulates frame loop counters and entry timings.
type Stats struct {
	mu        sync.Mutex
	slowFrame time.Duration

	frames  uint64
	slow    uint64
	reloads uint64
	aborts  uint64
	total   time.Duration
	min     time.Duration
	max     time.Duration
}

// StatsSnapshot is a copy of the counters at one point in time.
type StatsSnapshot struct {
	Frames  uint64
	Slow    uint64
	Reloads uint64
	Aborts  uint64
	Total   time.Duration
	Min     time.Duration
	Max     time.Duration
}

// NewStats creates stats that count entries longer than slowFrame as slow.
func NewStats(slowFrame time.Duration) *Stats {
	return &Stats{slowFrame: slowFrame}
}

// ObserveFrame records one entry invocation.
func (s *Stats) ObserveFrame(d time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frames == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.frames++
	s.total += d
	if s.slowFrame > 0 && d > s.slowFrame {
		s.slow++
	}
}

// ObserveReload counts a module swap.
func (s *Stats) ObserveReload() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.reloads++
	s.mu.Unlock()
}

// ObserveAbort counts a frame the module failed.
func (s *Stats) ObserveAbort() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.aborts++
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Frames:  s.frames,
		Slow:    s.slow,
		Reloads: s.reloads,
		Aborts:  s.aborts,
		Total:   s.total,
		Min:     s.min,
		Max:     s.max,
	}
}

// Mean returns the average entry duration.
func (s StatsSnapshot) Mean() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Frames)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("%s frames (%s slow), %d reloads, %d aborts, entry min/mean/max %v/%v/%v",
		humanize.Comma(int64(s.Frames)), humanize.Comma(int64(s.Slow)),
		s.Reloads, s.Aborts, s.Min, s.Mean(), s.Max)
}
