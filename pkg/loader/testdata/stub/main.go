// Command stub is a minimal module used by the loader contract test.
package main

import "github.com/willibrandon/ChronoLoop/pkg/frame"

type counter struct {
	Frames int
}

func FrameEntry(ctx *frame.Context, state *frame.State, host *frame.Host) {
	if ctx.Input.Contains(frame.KeyQ) {
		ctx.Failf("stub: quit requested")
		return
	}
	c, err := frame.Adopt[counter](state)
	if err != nil {
		ctx.Fail(err)
		return
	}
	if c == nil {
		c = &counter{}
		state.Set(c)
	}
	c.Frames++
}

func main() {}
