package headless

import (
	"github.com/willibrandon/ChronoLoop/pkg/frame"
)

// Script is a live input source that replays a fixed list of input sets,
// one per poll. After the list runs out it yields empty sets.
type Script struct {
	frames []frame.InputSet
	pos    int
}

// NewScript creates a script over frames.
func NewScript(frames []frame.InputSet) *Script {
	return &Script{frames: frames}
}

// ParseScript builds a script from the ';'-separated frame syntax accepted
// by frame.ParseInputScript.
func ParseScript(s string) (*Script, error) {
	frames, err := frame.ParseInputScript(s)
	if err != nil {
		return nil, err
	}
	return NewScript(frames), nil
}

// Poll returns the next scripted input set.
func (s *Script) Poll() frame.InputSet {
	if s.pos >= len(s.frames) {
		return frame.NewInputSet()
	}
	in := s.frames[s.pos]
	s.pos++
	return in
}

// Len returns the number of scripted frames.
func (s *Script) Len() int { return len(s.frames) }

// Done reports whether every scripted frame has been polled.
func (s *Script) Done() bool { return s.pos >= len(s.frames) }
