package debugger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/willibrandon/ChronoLoop/pkg/frame"
)

// BreakpointType defines the type of breakpoint
type BreakpointType int

const (
	// FrameBreakpoint breaks before a specific session frame runs
	FrameBreakpoint BreakpointType = iota
	// KeyBreakpoint breaks before any frame whose input holds a key
	KeyBreakpoint
)

func (t BreakpointType) String() string {
	switch t {
	case FrameBreakpoint:
		return "frame"
	case KeyBreakpoint:
		return "key"
	default:
		return fmt.Sprintf("BreakpointType(%d)", int(t))
	}
}

// Breakpoint represents a point to stop at while replaying a session
type Breakpoint struct {
	ID      int
	Type    BreakpointType
	Frame   int       // For FrameBreakpoint
	Key     frame.Key // For KeyBreakpoint
	Enabled bool
}

func (bp *Breakpoint) String() string {
	status := "enabled"
	if !bp.Enabled {
		status = "disabled"
	}
	switch bp.Type {
	case KeyBreakpoint:
		return fmt.Sprintf("%d: key %s [%s]", bp.ID, bp.Key, status)
	default:
		return fmt.Sprintf("%d: frame %d [%s]", bp.ID, bp.Frame, status)
	}
}

// Matches reports whether the breakpoint stops before the frame at pos
// with input in. Disabled breakpoints never match.
func (bp *Breakpoint) Matches(pos int, in frame.InputSet) bool {
	if !bp.Enabled {
		return false
	}
	switch bp.Type {
	case FrameBreakpoint:
		return bp.Frame == pos
	case KeyBreakpoint:
		return in.Contains(bp.Key)
	}
	return false
}

// BreakpointManager manages breakpoints for the debugger
type BreakpointManager struct {
	breakpoints []*Breakpoint
	nextID      int
}

// NewBreakpointManager creates a new breakpoint manager
func NewBreakpointManager() *BreakpointManager {
	return &BreakpointManager{
		breakpoints: make([]*Breakpoint, 0),
		nextID:      1,
	}
}

// AddBreakpoint adds a breakpoint at the specified location. A location is
// a frame index ("42" or "frame:42") or a key ("key:space").
func (bm *BreakpointManager) AddBreakpoint(location string) (*Breakpoint, error) {
	bp := &Breakpoint{Enabled: true}

	switch {
	case strings.HasPrefix(location, "key:"):
		k, err := frame.ParseKey(strings.TrimPrefix(location, "key:"))
		if err != nil {
			return nil, err
		}
		bp.Type = KeyBreakpoint
		bp.Key = k
	default:
		n, err := strconv.Atoi(strings.TrimPrefix(location, "frame:"))
		if err != nil {
			return nil, fmt.Errorf("invalid location %q: want a frame index or key:NAME", location)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid frame index: %d", n)
		}
		bp.Type = FrameBreakpoint
		bp.Frame = n
	}

	bp.ID = bm.nextID
	bm.nextID++
	bm.breakpoints = append(bm.breakpoints, bp)
	return bp, nil
}

// GetBreakpoints returns all breakpoints
func (bm *BreakpointManager) GetBreakpoints() []*Breakpoint {
	return bm.breakpoints
}

// RemoveBreakpoint removes a breakpoint by ID
func (bm *BreakpointManager) RemoveBreakpoint(id int) error {
	for i, bp := range bm.breakpoints {
		if bp.ID == id {
			bm.breakpoints = append(bm.breakpoints[:i], bm.breakpoints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("breakpoint %d not found", id)
}

// EnableBreakpoint enables a breakpoint by ID
func (bm *BreakpointManager) EnableBreakpoint(id int) error {
	return bm.setEnabled(id, true)
}

// DisableBreakpoint disables a breakpoint by ID
func (bm *BreakpointManager) DisableBreakpoint(id int) error {
	return bm.setEnabled(id, false)
}

func (bm *BreakpointManager) setEnabled(id int, enabled bool) error {
	for _, bp := range bm.breakpoints {
		if bp.ID == id {
			bp.Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("breakpoint %d not found", id)
}

// CheckBreakpoint returns the first enabled breakpoint that stops before
// the frame at pos, or nil.
func (bm *BreakpointManager) CheckBreakpoint(pos int, in frame.InputSet) *Breakpoint {
	for _, bp := range bm.breakpoints {
		if bp.Matches(pos, in) {
			return bp
		}
	}
	return nil
}
