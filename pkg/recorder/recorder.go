// Package recorder captures and replays simulation sessions.
//
// A Recorder sits between the live input source and the frame driver. In
// Normal mode it passes live input through. In Record mode it also appends
// every frame's input to the session, whose starting point is a full
// checkpoint of the arena and module state. In Play mode it ignores live
// input and feeds the recorded inputs back in a loop, restoring the starting
// checkpoint each time the loop begins, so every pass reproduces the
// recording exactly.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/journal"
	"github.com/willibrandon/ChronoLoop/pkg/logging"
)

var (
	// ErrNotRecording is returned by StopRecording outside Record mode.
	ErrNotRecording = errors.New("recorder: not recording")

	// ErrEmptySession is returned when a session has no frames to play.
	ErrEmptySession = errors.New("recorder: session has no frames")
)

// Mode selects where frame input comes from.
type Mode int

const (
	// Normal passes live input through.
	Normal Mode = iota
	// Record passes live input through and appends it to the session.
	Record
	// Play replays the session in a loop.
	Play
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Record:
		return "record"
	case Play:
		return "play"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// InputSource samples the keys held right now.
type InputSource interface {
	Poll() frame.InputSet
}

// InputFunc adapts a function to InputSource.
type InputFunc func() frame.InputSet

func (f InputFunc) Poll() frame.InputSet { return f() }

// RNG is a host random source whose state a session can capture.
type RNG interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// Options configures a Recorder.
type Options struct {
	// RNG is captured with every checkpoint when set.
	RNG RNG

	Log    *journal.Log
	Logger *slog.Logger
}

// Recorder drives frame input from one of three modes. It is used from the
// frame loop goroutine only, and all state transitions happen between
// frames.
type Recorder struct {
	arena  *arena.Arena
	state  *frame.State
	live   InputSource
	rng    RNG
	log    *journal.Log
	logger *slog.Logger

	mode    Mode
	session *Session
	ticks   uint64
}

// New creates a recorder in Normal mode over the arena and state slot the
// driver uses.
func New(a *arena.Arena, state *frame.State, live InputSource, opts Options) *Recorder {
	return &Recorder{
		arena:  a,
		state:  state,
		live:   live,
		rng:    opts.RNG,
		log:    opts.Log,
		logger: logging.OrDiscard(opts.Logger),
	}
}

// Mode returns the current mode.
func (r *Recorder) Mode() Mode { return r.mode }

// Session returns the session being recorded or played, or nil in Normal
// mode.
func (r *Recorder) Session() *Session { return r.session }

// Ticks returns the number of inputs handed out so far.
func (r *Recorder) Ticks() uint64 { return r.ticks }

// StartRecording checkpoints the current simulation and begins a new empty
// input sequence. Any session already being recorded or played is
// discarded.
func (r *Recorder) StartRecording() error {
	cp, err := r.Capture(0)
	if err != nil {
		return fmt.Errorf("recorder: start recording: %w", err)
	}
	if r.mode == Record {
		r.logger.Debug("discarding in-flight recording", "frames", r.session.Len())
	}
	r.session = &Session{Start: cp}
	r.mode = Record
	r.log.Emit(journal.RecordingStarted, r.ticks, "arena %d bytes used", cp.Cursor.Next)
	return nil
}

// StopRecording freezes the session and switches to Play. A recording with
// no frames is discarded and the recorder returns to Normal with
// ErrEmptySession.
func (r *Recorder) StopRecording() error {
	if r.mode != Record {
		return ErrNotRecording
	}
	s := r.session
	if s.Len() == 0 {
		r.Normal()
		return ErrEmptySession
	}
	s.pos = 0
	r.mode = Play
	r.log.Emit(journal.RecordingStopped, r.ticks, "%d frames", s.Len())
	r.log.Emit(journal.PlaybackStarted, r.ticks, "%d frames", s.Len())
	return nil
}

// PlaySession enters Play mode with a session loaded from disk. The
// session's snapshot must match the arena capacity.
func (r *Recorder) PlaySession(s *Session) error {
	if s == nil || s.Len() == 0 {
		return ErrEmptySession
	}
	if len(s.Start.Snapshot) != r.arena.Capacity() {
		return &FormatError{
			Section:  "snapshot",
			Expected: uint64(r.arena.Capacity()),
			Actual:   uint64(len(s.Start.Snapshot)),
		}
	}
	s.pos = 0
	r.session = s
	r.mode = Play
	r.log.Emit(journal.PlaybackStarted, r.ticks, "%d frames", s.Len())
	return nil
}

// Normal discards the session and returns to live input.
func (r *Recorder) Normal() {
	r.session = nil
	r.mode = Normal
}

// Tick returns the input for the next frame. Live input is normalized to a
// sorted set without duplicates, the same form a persisted session decodes
// to. In Play mode the first frame
// of every pass restores the session's starting checkpoint before its
// input is returned.
func (r *Recorder) Tick() (frame.InputSet, error) {
	var in frame.InputSet
	switch r.mode {
	case Normal:
		in = frame.NewInputSet(r.live.Poll()...)
	case Record:
		in = frame.NewInputSet(r.live.Poll()...)
		r.session.Inputs = append(r.session.Inputs, in)
	case Play:
		s := r.session
		if s.pos == 0 {
			if err := r.Rewind(&s.Start); err != nil {
				return nil, fmt.Errorf("recorder: restore session start: %w", err)
			}
			r.log.Emit(journal.PlaybackRestored, r.ticks, "pass over %d frames", s.Len())
		}
		in = s.Inputs[s.pos]
		s.pos = (s.pos + 1) % len(s.Inputs)
	}
	r.ticks++
	return in, nil
}

// Capture checkpoints the arena, the random source and the state slot.
func (r *Recorder) Capture(frameIndex int) (Checkpoint, error) {
	state, err := r.state.Encode()
	if err != nil {
		return Checkpoint{}, err
	}
	var rng []byte
	if r.rng != nil {
		if rng, err = r.rng.MarshalBinary(); err != nil {
			return Checkpoint{}, fmt.Errorf("capture random source: %w", err)
		}
	}
	return Checkpoint{
		Frame:     frameIndex,
		Snapshot:  r.arena.Snapshot(),
		Cursor:    r.arena.Cursor(),
		RNG:       rng,
		State:     state,
		Timestamp: time.Now(),
	}, nil
}

// Rewind restores a checkpoint into the arena, the random source and the
// state slot. The whole region is replaced, never patched.
func (r *Recorder) Rewind(cp *Checkpoint) error {
	if err := r.arena.Restore(cp.Snapshot); err != nil {
		return err
	}
	if err := r.arena.SetCursor(cp.Cursor); err != nil {
		return err
	}
	if r.rng != nil && cp.RNG != nil {
		if err := r.rng.UnmarshalBinary(cp.RNG); err != nil {
			return fmt.Errorf("restore random source: %w", err)
		}
	}
	r.state.Restore(cp.State)
	return nil
}
