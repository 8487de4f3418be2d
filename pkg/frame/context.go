// Package frame defines the binary contract between the host and a
// hot-reloaded logic module: the per-frame Context, the host function table,
// the input representation and the module-owned State slot.
package frame

import (
	"fmt"
	"time"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
)

// EntrySymbol is the exported name the host resolves in every module.
const EntrySymbol = "FrameEntry"

// Entry is the module ABI. It runs synchronously to completion once per
// frame and reports failure only through ctx.Err.
type Entry func(ctx *Context, state *State, host *Host)

// Context is the per-invocation bundle handed to the module.
type Context struct {
	// Elapsed is the simulated time covered by this frame.
	Elapsed time.Duration

	// Input is the set of keys held during this frame.
	Input InputSet

	// Arena is the mutable process region holding simulation state.
	Arena *arena.Arena

	// Err is the error slot. The host inspects it after the entry returns.
	Err error
}

// Seconds returns Elapsed as float32 seconds, the unit simulation code uses.
func (c *Context) Seconds() float32 {
	return float32(c.Elapsed.Seconds())
}

// Fail populates the error slot. The first failure of a frame wins.
func (c *Context) Fail(err error) {
	if c.Err == nil && err != nil {
		c.Err = err
	}
}

// Failf is Fail with a formatted error.
func (c *Context) Failf(format string, args ...any) {
	c.Fail(fmt.Errorf(format, args...))
}

// Failed reports whether the module signaled failure this frame.
func (c *Context) Failed() bool { return c.Err != nil }
