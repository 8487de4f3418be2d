// Package driver runs the frame loop: once per frame it swaps in a rebuilt
// module if one is ready, samples input, invokes the module entry point with
// the arena and state slot, and yields to the presenter.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/instrumentation"
	"github.com/willibrandon/ChronoLoop/pkg/journal"
	"github.com/willibrandon/ChronoLoop/pkg/loader"
	"github.com/willibrandon/ChronoLoop/pkg/logging"
)

// DefaultTimestep is the simulated duration of one frame.
const DefaultTimestep = time.Second / 60

// ErrAbort classifies frames the module failed through its error slot.
var ErrAbort = errors.New("driver: module aborted frame")

// AbortError names the frame a module failed and the cause it reported.
type AbortError struct {
	Frame uint64
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("driver: module aborted frame %d: %v", e.Frame, e.Err)
}

func (e *AbortError) Unwrap() []error { return []error{ErrAbort, e.Err} }

// Input supplies the input set of each frame. A recorder.Recorder is the
// usual implementation.
type Input interface {
	Tick() (frame.InputSet, error)
}

// Presenter is the yield point awaited after every frame.
type Presenter interface {
	Present(ctx context.Context) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context) error

func (f PresenterFunc) Present(ctx context.Context) error { return f(ctx) }

// KeySetter receives each frame's input before the entry point runs, so
// the host's IsKeyDown agrees with the recorded input.
type KeySetter interface {
	SetKeys(in frame.InputSet)
}

// AbortPolicy decides what Run does when a module aborts a frame.
type AbortPolicy int

const (
	// AbortFatal stops Run and returns the *AbortError.
	AbortFatal AbortPolicy = iota
	// AbortReset clears the arena and the state slot and keeps running.
	AbortReset
)

func (p AbortPolicy) String() string {
	switch p {
	case AbortFatal:
		return "fatal"
	case AbortReset:
		return "reset"
	default:
		return fmt.Sprintf("AbortPolicy(%d)", int(p))
	}
}

// ParseAbortPolicy resolves a configuration name.
func ParseAbortPolicy(s string) (AbortPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fatal":
		return AbortFatal, nil
	case "reset":
		return AbortReset, nil
	}
	return AbortFatal, fmt.Errorf("driver: unknown abort policy %q (valid: fatal, reset)", s)
}

// Options configures a Driver.
type Options struct {
	// Timestep is the Elapsed value of every frame. A fixed step keeps
	// replays identical to recordings.
	Timestep time.Duration

	AbortPolicy AbortPolicy

	// Presenter is awaited after every frame. Nil means no yield.
	Presenter Presenter

	// Keys receives every frame's input. Optional.
	Keys KeySetter

	// Watcher rate-limits reload checks. Nil checks every frame.
	Watcher *loader.Watcher

	// MaxFrames stops Run after this many frames. Zero runs until the
	// context is cancelled.
	MaxFrames uint64

	Tracer *instrumentation.Tracer
	Stats  *instrumentation.Stats
	Log    *journal.Log
	Logger *slog.Logger
}

// DefaultOptions returns the default driver options.
func DefaultOptions() Options {
	return Options{
		Timestep:    DefaultTimestep,
		AbortPolicy: AbortFatal,
	}
}

// Driver owns the frame loop. All of its methods must be called from one
// goroutine; the entry point, reloads and resets never overlap.
type Driver struct {
	arena  *arena.Arena
	loader *loader.Loader
	module *loader.Module
	state  *frame.State
	host   *frame.Host
	input  Input

	opts    Options
	watcher *loader.Watcher
	logger  *slog.Logger
	frame   uint64
}

// New creates a driver around an already loaded module.
func New(a *arena.Arena, l *loader.Loader, m *loader.Module, state *frame.State, host *frame.Host, input Input, opts Options) (*Driver, error) {
	if !m.Loaded() {
		return nil, errors.New("driver: module is not loaded")
	}
	if err := host.Validate(); err != nil {
		return nil, err
	}
	if opts.Timestep <= 0 {
		opts.Timestep = DefaultTimestep
	}
	watcher := opts.Watcher
	if watcher == nil {
		watcher = loader.NewWatcher(0)
	}

	d := &Driver{
		arena:   a,
		loader:  l,
		module:  m,
		state:   state,
		host:    host,
		input:   input,
		opts:    opts,
		watcher: watcher,
		logger:  logging.OrDiscard(opts.Logger),
	}
	opts.Log.Emit(journal.ModuleLoaded, 0, "%s", m)
	return d, nil
}

// Frame returns the index of the next frame to run.
func (d *Driver) Frame() uint64 { return d.frame }

// Module returns the module currently in use.
func (d *Driver) Module() *loader.Module { return d.module }

// State returns the module state slot.
func (d *Driver) State() *frame.State { return d.state }

// Arena returns the simulation arena.
func (d *Driver) Arena() *arena.Arena { return d.arena }

// Step runs exactly one frame. A module failure returns an *AbortError
// after the frame has been counted; reload and input failures return before
// the entry point runs.
func (d *Driver) Step(ctx context.Context) error {
	index := d.frame
	ctx, end := d.opts.Tracer.Frame(ctx, index)
	defer end()

	var err error
	d.opts.Tracer.Phase(ctx, instrumentation.PhaseReload, func() {
		err = d.reloadIfStale(index)
	})
	if err != nil {
		return err
	}

	var in frame.InputSet
	d.opts.Tracer.Phase(ctx, instrumentation.PhaseInput, func() {
		in, err = d.input.Tick()
	})
	if err != nil {
		return fmt.Errorf("driver: input for frame %d: %w", index, err)
	}
	if d.opts.Keys != nil {
		d.opts.Keys.SetKeys(in)
	}

	fctx := &frame.Context{
		Elapsed: d.opts.Timestep,
		Input:   in,
		Arena:   d.arena,
	}

	entry := d.module.Entry()
	start := time.Now()
	d.opts.Tracer.Phase(ctx, instrumentation.PhaseEntry, func() {
		entry(fctx, d.state, d.host)
	})
	d.opts.Stats.ObserveFrame(time.Since(start))
	d.frame++

	if err := d.state.TakeDiscard(); err != nil {
		d.logger.Warn("module discarded incompatible state", "frame", index, "err", err)
		d.opts.Log.Emit(journal.StateDiscarded, index, "%v", err)
	}

	if fctx.Err != nil {
		d.opts.Stats.ObserveAbort()
		d.logger.Error("module aborted frame", "frame", index, "err", fctx.Err)
		d.opts.Log.Emit(journal.FrameAborted, index, "%v", fctx.Err)
		return &AbortError{Frame: index, Err: fctx.Err}
	}

	d.logger.Log(ctx, logging.LevelTrace, "frame complete", "frame", index, "input", in.String())

	if d.opts.Presenter != nil {
		d.opts.Tracer.Phase(ctx, instrumentation.PhasePresent, func() {
			err = d.opts.Presenter.Present(ctx)
		})
		if err != nil {
			return fmt.Errorf("driver: present frame %d: %w", index, err)
		}
	}
	return nil
}

// Run steps frames until the context is cancelled, MaxFrames is reached or
// a frame fails. Cancellation is observed between frames only. Under
// AbortReset an aborted frame resets the simulation and the loop goes on.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.opts.MaxFrames > 0 && d.frame >= d.opts.MaxFrames {
			return nil
		}

		err := d.Step(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrAbort) && d.opts.AbortPolicy == AbortReset {
			d.Reset()
			continue
		}
		return err
	}
}

// Reset zeroes the arena and empties the state slot so the module starts
// over on its next frame. The module and frame counter are kept.
func (d *Driver) Reset() {
	d.arena.Reset()
	d.state.Reset()
	d.logger.Info("simulation reset", "frame", d.frame)
	d.opts.Log.Emit(journal.ArenaReset, d.frame, "arena and state cleared")
}

// Reload swaps the module now if its artifact changed, bypassing the
// watcher's rate limit. It reports whether a swap happened.
func (d *Driver) Reload() (bool, error) {
	stale, err := d.module.Stale()
	if err != nil {
		return false, &loader.LoadError{Path: d.module.Path(), Symbol: d.loader.Symbol(), Err: err}
	}
	if !stale {
		return false, nil
	}
	return true, d.swap(d.frame)
}

// Close releases the current module. The arena belongs to the caller.
func (d *Driver) Close() {
	if d.module.Loaded() {
		d.opts.Log.Emit(journal.ModuleReleased, d.frame, "%s", d.module)
	}
	d.module.Release()
}

func (d *Driver) reloadIfStale(index uint64) error {
	stale, err := d.watcher.Check(d.module)
	if err != nil {
		return &loader.LoadError{Path: d.module.Path(), Symbol: d.loader.Symbol(), Err: err}
	}
	if !stale {
		return nil
	}
	return d.swap(index)
}

// swap detaches the state value from the old module's types, then replaces
// the module. The arena is not touched.
func (d *Driver) swap(index uint64) error {
	if err := d.state.Detach(); err != nil {
		d.logger.Warn("state could not be carried across reload", "frame", index, "err", err)
		d.opts.Log.Emit(journal.StateDiscarded, index, "%v", err)
	}

	old := d.module
	next, err := d.loader.Replace(old)
	if err != nil {
		return err
	}
	d.module = next
	d.opts.Stats.ObserveReload()
	d.logger.Info("module reloaded", "path", next.Path(), "generation", next.Generation(), "frame", index)
	d.opts.Log.Emit(journal.ModuleReloaded, index, "%s", next)
	return nil
}
