package recorder

import (
	"fmt"

	"github.com/willibrandon/ChronoLoop/pkg/frame"
)

// Session is a starting checkpoint plus the input of every frame recorded
// after it. Inputs are ordered by frame index from 0.
type Session struct {
	Start  Checkpoint
	Inputs []frame.InputSet

	// pos is the replay cursor, the index of the next input Play hands out.
	pos int
}

// Len returns the number of recorded frames.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Inputs)
}

// Position returns the replay cursor.
func (s *Session) Position() int { return s.pos }

// Input returns the input recorded for frame i.
func (s *Session) Input(i int) frame.InputSet {
	return s.Inputs[i]
}

func (s *Session) String() string {
	return fmt.Sprintf("Session{Frames: %d, Cursor: %d, Start: %s}", s.Len(), s.pos, s.Start.String())
}
