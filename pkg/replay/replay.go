// Package replay gives random access to a recorded session. It feeds the
// session's inputs to a stepper one frame at a time and keeps periodic
// checkpoints, so stepping backward or seeking rewinds to the nearest
// checkpoint and re-simulates forward from there.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"

	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/logging"
	"github.com/willibrandon/ChronoLoop/pkg/recorder"
)

var (
	// ErrEndOfSession is returned when stepping past the last recorded frame.
	ErrEndOfSession = errors.New("replay: end of session")

	// ErrUnbound is returned when frames are requested before Bind.
	ErrUnbound = errors.New("replay: no stepper bound")
)

// Stepper runs one frame. The frame's input must come from the Replayer's
// Tick; a driver.Driver constructed with the Replayer as its input is the
// usual stepper.
type Stepper interface {
	Step(ctx context.Context) error
}

// Rewinder captures and restores simulation checkpoints. recorder.Recorder
// implements it.
type Rewinder interface {
	Capture(frameIndex int) (recorder.Checkpoint, error)
	Rewind(cp *recorder.Checkpoint) error
}

// DivergenceError reports the first frame at which a verification pass
// produced a different simulation state than the first pass.
type DivergenceError struct {
	Pass  int
	Frame int
	Want  string
	Got   string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("replay: pass %d diverged at frame %d: digest %s, want %s", e.Pass, e.Frame, short(e.Got), short(e.Want))
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

// Options configures a Replayer.
type Options struct {
	// CheckpointInterval is the number of frames between cached checkpoints.
	CheckpointInterval int

	// CacheSize bounds the number of cached checkpoints. The least recently
	// used are evicted first; the session start is always kept.
	CacheSize int

	Logger *slog.Logger
}

// DefaultOptions returns the default replay options.
func DefaultOptions() Options {
	return Options{
		CheckpointInterval: 60,
		CacheSize:          64,
	}
}

// Replayer walks a session forward and backward.
type Replayer struct {
	session *recorder.Session
	rw      Rewinder
	stepper Stepper
	cache   *lru.Cache
	opts    Options
	logger  *slog.Logger

	// pos is the number of session frames applied since the start.
	pos int
}

// New creates a replayer over s. Bind must be called before frames are run.
func New(s *recorder.Session, rw Rewinder, opts Options) (*Replayer, error) {
	if s.Len() == 0 {
		return nil, recorder.ErrEmptySession
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = DefaultOptions().CheckpointInterval
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("replay: checkpoint cache: %w", err)
	}
	return &Replayer{
		session: s,
		rw:      rw,
		cache:   cache,
		opts:    opts,
		logger:  logging.OrDiscard(opts.Logger),
	}, nil
}

// Bind sets the stepper that runs frames.
func (r *Replayer) Bind(s Stepper) {
	r.stepper = s
}

// Session returns the session being replayed.
func (r *Replayer) Session() *recorder.Session { return r.session }

// Position returns the number of frames applied since the session start,
// which is also the index of the next frame to run.
func (r *Replayer) Position() int { return r.pos }

// Len returns the number of frames in the session.
func (r *Replayer) Len() int { return r.session.Len() }

// Done reports whether every frame has been applied.
func (r *Replayer) Done() bool { return r.pos >= r.session.Len() }

// Input returns the input recorded for frame i.
func (r *Replayer) Input(i int) frame.InputSet { return r.session.Input(i) }

// Cached returns the number of cached checkpoints.
func (r *Replayer) Cached() int { return r.cache.Len() }

// Invalidate drops every cached checkpoint. Call it after the module
// changes, since checkpoints past the start were produced by the old code.
func (r *Replayer) Invalidate() {
	r.cache.Purge()
}

// Tick hands out the input of the frame at the current position.
func (r *Replayer) Tick() (frame.InputSet, error) {
	if r.Done() {
		return nil, ErrEndOfSession
	}
	return r.session.Input(r.pos), nil
}

// Start rewinds to the session's starting checkpoint.
func (r *Replayer) Start() error {
	if err := r.rw.Rewind(&r.session.Start); err != nil {
		return fmt.Errorf("replay: restore session start: %w", err)
	}
	r.pos = 0
	return nil
}

// StepForward runs the frame at the current position. The position
// advances even when the stepper fails, because the frame has run.
func (r *Replayer) StepForward(ctx context.Context) error {
	if r.stepper == nil {
		return ErrUnbound
	}
	if r.Done() {
		return ErrEndOfSession
	}
	err := r.stepper.Step(ctx)
	r.pos++
	if err != nil {
		return err
	}
	if r.pos%r.opts.CheckpointInterval == 0 {
		if _, ok := r.cache.Get(r.pos); !ok {
			cp, err := r.rw.Capture(r.pos)
			if err != nil {
				return fmt.Errorf("replay: checkpoint frame %d: %w", r.pos, err)
			}
			r.cache.Add(r.pos, &cp)
		}
	}
	return nil
}

// StepBackward moves one frame back and returns the new position.
func (r *Replayer) StepBackward(ctx context.Context) (int, error) {
	if r.pos <= 0 {
		return 0, fmt.Errorf("already at the beginning")
	}
	if err := r.Seek(ctx, r.pos-1); err != nil {
		return r.pos, err
	}
	return r.pos, nil
}

// Seek moves to position target. Moving forward just runs frames; moving
// backward restores the closest checkpoint at or before target first.
func (r *Replayer) Seek(ctx context.Context, target int) error {
	if target < 0 || target > r.session.Len() {
		return fmt.Errorf("replay: position %d out of range [0, %d]", target, r.session.Len())
	}
	if target < r.pos {
		if err := r.restoreBefore(target); err != nil {
			return err
		}
	}
	for r.pos < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.StepForward(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replayer) restoreBefore(target int) error {
	interval := r.opts.CheckpointInterval
	for p := target - target%interval; p > 0; p -= interval {
		v, ok := r.cache.Get(p)
		if !ok {
			continue
		}
		if err := r.rw.Rewind(v.(*recorder.Checkpoint)); err != nil {
			return fmt.Errorf("replay: restore frame %d: %w", p, err)
		}
		r.logger.Debug("restored checkpoint", "frame", p, "target", target)
		r.pos = p
		return nil
	}
	return r.Start()
}

// Continue runs frames until the end of the session or until stop reports
// true for the next frame. The frame stop matched has not run yet. It
// reports whether stop matched.
func (r *Replayer) Continue(ctx context.Context, stop func(pos int, in frame.InputSet) bool) (bool, error) {
	for !r.Done() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if stop != nil && stop(r.pos, r.session.Input(r.pos)) {
			return true, nil
		}
		if err := r.StepForward(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Digest hashes the current simulation state: arena region, cursor, random
// source and encoded module state.
func (r *Replayer) Digest() (string, error) {
	cp, err := r.rw.Capture(r.pos)
	if err != nil {
		return "", err
	}
	return Digest(&cp), nil
}

// Digest hashes everything a checkpoint restores.
func Digest(cp *recorder.Checkpoint) string {
	h := sha256.New()
	h.Write(cp.Snapshot)
	var cursor [9]byte
	binary.LittleEndian.PutUint64(cursor[:8], cp.Cursor.Next)
	if cp.Cursor.Initialized {
		cursor[8] = 1
	}
	h.Write(cursor[:])
	h.Write(cp.RNG)
	h.Write(cp.State)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify replays the whole session passes times from the start and checks
// that every frame produces the same digest in every pass. The replayer is
// left at the end of the session.
func (r *Replayer) Verify(ctx context.Context, passes int) error {
	if passes < 2 {
		passes = 2
	}
	r.Invalidate()

	var want []string
	for pass := 1; pass <= passes; pass++ {
		if err := r.Start(); err != nil {
			return err
		}
		for i := 0; !r.Done(); i++ {
			if err := r.StepForward(ctx); err != nil {
				return fmt.Errorf("replay: pass %d: %w", pass, err)
			}
			got, err := r.Digest()
			if err != nil {
				return err
			}
			if pass == 1 {
				want = append(want, got)
				continue
			}
			if got != want[i] {
				return &DivergenceError{Pass: pass, Frame: i, Want: want[i], Got: got}
			}
		}
		r.logger.Debug("verification pass complete", "pass", pass, "frames", len(want))
	}
	return nil
}
