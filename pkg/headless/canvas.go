// Package headless implements the host function table without a window: draw
// calls are recorded as commands, key state comes from the frame input and
// randomness comes from a seeded source that sessions can capture.
package headless

import (
	"context"
	"fmt"
	"strings"

	"github.com/willibrandon/ChronoLoop/pkg/frame"
)

// Op identifies a draw command.
type Op int

const (
	OpClear Op = iota
	OpRectangle
	OpCircle
	OpText
)

func (o Op) String() string {
	switch o {
	case OpClear:
		return "clear"
	case OpRectangle:
		return "rect"
	case OpCircle:
		return "circle"
	case OpText:
		return "text"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Command is one recorded draw call.
type Command struct {
	Op     Op
	X, Y   float32
	W, H   float32
	Radius float32
	Color  frame.Color
	Text   string
	Params frame.TextParams
}

func (c Command) String() string {
	switch c.Op {
	case OpClear:
		return fmt.Sprintf("clear %v", c.Color)
	case OpRectangle:
		return fmt.Sprintf("rect %.2f,%.2f %.2fx%.2f %v", c.X, c.Y, c.W, c.H, c.Color)
	case OpCircle:
		return fmt.Sprintf("circle %.2f,%.2f r=%.2f %v", c.X, c.Y, c.Radius, c.Color)
	case OpText:
		return fmt.Sprintf("text %.2f,%.2f %q size=%d", c.X, c.Y, c.Text, c.Params.FontSize)
	}
	return c.Op.String()
}

// BaseFontSize is the pixel size TextMetrics scales from.
const BaseFontSize = 32

// Canvas records the draw calls of the current frame. Clearing the
// background starts a new frame's command list.
type Canvas struct {
	commands []Command
	keys     frame.InputSet
	rng      *Random
	frames   int

	// OnPresent, when set, receives the commands of every presented frame.
	OnPresent func(frame int, commands []Command) error
}

// NewCanvas creates a canvas whose RandomRange draws from rng.
func NewCanvas(rng *Random) *Canvas {
	if rng == nil {
		rng = NewRandom(0)
	}
	return &Canvas{rng: rng}
}

// Random returns the canvas random source.
func (c *Canvas) Random() *Random { return c.rng }

// SetKeys sets the keys IsKeyDown reports for the coming frame.
func (c *Canvas) SetKeys(in frame.InputSet) { c.keys = in }

// Commands returns the commands recorded since the last clear.
func (c *Canvas) Commands() []Command { return c.commands }

// Frames returns the number of presented frames.
func (c *Canvas) Frames() int { return c.frames }

// Present ends the frame. It is the driver's yield point.
func (c *Canvas) Present(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := c.frames
	c.frames++
	if c.OnPresent != nil {
		return c.OnPresent(n, c.commands)
	}
	return nil
}

// Dump renders the current command list, one command per line.
func (c *Canvas) Dump() string {
	var b strings.Builder
	for _, cmd := range c.commands {
		b.WriteString(cmd.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Host returns the function table backed by this canvas.
func (c *Canvas) Host() *frame.Host {
	return &frame.Host{
		ClearBackground: func(col frame.Color) {
			c.commands = append(c.commands[:0], Command{Op: OpClear, Color: col})
		},
		DrawRectangle: func(x, y, w, h float32, col frame.Color) {
			c.commands = append(c.commands, Command{Op: OpRectangle, X: x, Y: y, W: w, H: h, Color: col})
		},
		DrawCircle: func(x, y, r float32, col frame.Color) {
			c.commands = append(c.commands, Command{Op: OpCircle, X: x, Y: y, Radius: r, Color: col})
		},
		IsKeyDown: func(k frame.Key) bool {
			return c.keys.Contains(k)
		},
		TextMetrics: func(scale float32) (uint16, float32, float32) {
			return BaseFontSize, scale / BaseFontSize, 1
		},
		DrawText: func(text string, x, y float32, p frame.TextParams) {
			c.commands = append(c.commands, Command{Op: OpText, X: x, Y: y, Text: text, Params: p, Color: p.Color})
		},
		RandomRange: c.rng.Range,
	}
}
