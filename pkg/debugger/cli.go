// Package debugger is an interactive inspector for recorded sessions. It
// steps a replay forward and backward, seeks, and stops at frame or key
// breakpoints.
package debugger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/logging"
	"github.com/willibrandon/ChronoLoop/pkg/replay"
)

// Options configures the CLI.
type Options struct {
	// Describe, when set, prints simulation details for the info command.
	Describe func(w io.Writer)

	// Prompt forces the prompt on or off. Nil prompts only when the input
	// is a terminal.
	Prompt *bool
}

// CLI represents the command-line interface for the debugger
type CLI struct {
	replayer  *replay.Replayer
	in        io.Reader
	out       io.Writer
	opts      Options
	prompt    bool
	running   bool
	bpManager *BreakpointManager
}

// NewCLI creates a new CLI instance reading commands from in
func NewCLI(replayer *replay.Replayer, in io.Reader, out io.Writer, opts Options) *CLI {
	prompt := logging.IsTerminal(in)
	if opts.Prompt != nil {
		prompt = *opts.Prompt
	}
	return &CLI{
		replayer:  replayer,
		in:        in,
		out:       out,
		opts:      opts,
		prompt:    prompt,
		bpManager: NewBreakpointManager(),
	}
}

// Breakpoints returns the breakpoint manager.
func (c *CLI) Breakpoints() *BreakpointManager { return c.bpManager }

// Run reads and executes commands until quit, end of input or
// cancellation.
func (c *CLI) Run(ctx context.Context) error {
	c.running = true
	scanner := bufio.NewScanner(c.in)

	fmt.Fprintln(c.out, "ChronoLoop session inspector")
	fmt.Fprintf(c.out, "%d frames recorded\n", c.replayer.Len())
	if c.prompt {
		c.printHelp()
	}

	for c.running {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.prompt {
			fmt.Fprint(c.out, "(chrono) ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		c.handleCommand(ctx, strings.TrimSpace(scanner.Text()))
	}
	return nil
}

// printHelp displays available commands
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  continue (c)       - Run to the next breakpoint or the end")
	fmt.Fprintln(c.out, "  step (s) [n]       - Step forward n frames (default 1)")
	fmt.Fprintln(c.out, "  backstep (b)       - Step backward one frame")
	fmt.Fprintln(c.out, "  seek (g) <frame>   - Move to a frame position")
	fmt.Fprintln(c.out, "  info (i)           - Show the current position and state")
	fmt.Fprintln(c.out, "  digest (d)         - Print the simulation state digest")
	fmt.Fprintln(c.out, "  verify (v) [n]     - Replay the session n times and compare")
	fmt.Fprintln(c.out, "\nBreakpoint commands:")
	fmt.Fprintln(c.out, "  bp <frame|key:NAME> - Set a breakpoint")
	fmt.Fprintln(c.out, "  list (l)           - List all breakpoints")
	fmt.Fprintln(c.out, "  bp remove <id>     - Remove a breakpoint")
	fmt.Fprintln(c.out, "  bp enable <id>     - Enable a breakpoint")
	fmt.Fprintln(c.out, "  bp disable <id>    - Disable a breakpoint")
	fmt.Fprintln(c.out, "\nGeneral commands:")
	fmt.Fprintln(c.out, "  help (h)           - Show this help message")
	fmt.Fprintln(c.out, "  quit (q)           - Exit the inspector")
}

// handleCommand processes user input
func (c *CLI) handleCommand(ctx context.Context, input string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "h", "help":
		c.printHelp()
	case "c", "continue":
		c.handleContinue(ctx)
	case "s", "step":
		c.handleStep(ctx, args)
	case "b", "backstep":
		c.handleBackstep(ctx)
	case "g", "seek":
		c.handleSeek(ctx, args)
	case "i", "info":
		c.handleInfo()
	case "d", "digest":
		c.handleDigest()
	case "v", "verify":
		c.handleVerify(ctx, args)
	case "bp", "breakpoint":
		c.handleBreakpointCommand(args)
	case "l", "list":
		c.handleListBreakpoints()
	case "q", "quit", "exit":
		c.running = false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n", cmd)
		c.printHelp()
	}
}

// handleBreakpointCommand handles all breakpoint-related commands
func (c *CLI) handleBreakpointCommand(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: breakpoint <frame|key:NAME> or <command> [args]")
		fmt.Fprintln(c.out, "Commands: list, remove, enable, disable")
		return
	}

	command := args[0]
	switch command {
	case "list":
		c.handleListBreakpoints()
	case "remove", "enable", "disable":
		if len(args) < 2 {
			fmt.Fprintf(c.out, "Usage: bp %s <id>\n", command)
			return
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(c.out, "Invalid breakpoint ID: %v\n", err)
			return
		}
		switch command {
		case "remove":
			err = c.bpManager.RemoveBreakpoint(id)
		case "enable":
			err = c.bpManager.EnableBreakpoint(id)
		case "disable":
			err = c.bpManager.DisableBreakpoint(id)
		}
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		past := map[string]string{"remove": "Removed", "enable": "Enabled", "disable": "Disabled"}
		fmt.Fprintf(c.out, "%s breakpoint %d\n", past[command], id)
	case "add":
		c.handleBreakpoint(args[1:])
	default:
		// If not a command, treat as location
		c.handleBreakpoint(args)
	}
}

func (c *CLI) handleBreakpoint(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: breakpoint <frame|key:NAME>")
		return
	}
	bp, err := c.bpManager.AddBreakpoint(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error setting breakpoint: %v\n", err)
		return
	}
	if bp.Type == FrameBreakpoint && bp.Frame >= c.replayer.Len() {
		fmt.Fprintf(c.out, "Warning: the session has only %d frames\n", c.replayer.Len())
	}
	fmt.Fprintf(c.out, "Breakpoint %s\n", bp)
}

func (c *CLI) handleListBreakpoints() {
	fmt.Fprintln(c.out, "\nBreakpoints:")
	bps := c.bpManager.GetBreakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(c.out, "  none")
		return
	}
	for _, bp := range bps {
		fmt.Fprintf(c.out, "  %s\n", bp)
	}
}

// formatFrame describes the frame at pos
func (c *CLI) formatFrame(pos int) string {
	if pos >= c.replayer.Len() {
		return fmt.Sprintf("end of session (%d frames)", c.replayer.Len())
	}
	return fmt.Sprintf("frame %d input %s", pos, c.replayer.Input(pos))
}

// handleContinue runs until a breakpoint stops before a frame. The frame at
// the current position always runs, so a repeated continue moves past the
// breakpoint it stopped at.
func (c *CLI) handleContinue(ctx context.Context) {
	if c.replayer.Done() {
		fmt.Fprintln(c.out, "Already at the end of the session")
		return
	}
	if err := c.replayer.StepForward(ctx); err != nil {
		c.printStepError(err)
		return
	}

	var hitBP *Breakpoint
	hit, err := c.replayer.Continue(ctx, func(pos int, in frame.InputSet) bool {
		hitBP = c.bpManager.CheckBreakpoint(pos, in)
		return hitBP != nil
	})
	if err != nil {
		c.printStepError(err)
		return
	}
	if hit {
		fmt.Fprintf(c.out, "Breakpoint %d hit before %s\n", hitBP.ID, c.formatFrame(c.replayer.Position()))
		return
	}
	fmt.Fprintln(c.out, "Replay complete")
}

// handleStep executes n steps forward
func (c *CLI) handleStep(ctx context.Context, args []string) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			fmt.Fprintf(c.out, "Invalid step count: %s\n", args[0])
			return
		}
		n = v
	}
	for i := 0; i < n; i++ {
		if err := c.replayer.StepForward(ctx); err != nil {
			c.printStepError(err)
			return
		}
	}
	fmt.Fprintf(c.out, "At %s\n", c.formatFrame(c.replayer.Position()))
}

func (c *CLI) handleBackstep(ctx context.Context) {
	pos, err := c.replayer.StepBackward(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error stepping backward: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Stepped back to %s\n", c.formatFrame(pos))
}

func (c *CLI) handleSeek(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: seek <frame>")
		return
	}
	target, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid frame: %v\n", err)
		return
	}
	if err := c.replayer.Seek(ctx, target); err != nil {
		c.printStepError(err)
		return
	}
	fmt.Fprintf(c.out, "At %s\n", c.formatFrame(c.replayer.Position()))
}

func (c *CLI) handleInfo() {
	fmt.Fprintf(c.out, "\nPosition: %d of %d\n", c.replayer.Position(), c.replayer.Len())
	fmt.Fprintf(c.out, "Next: %s\n", c.formatFrame(c.replayer.Position()))
	fmt.Fprintf(c.out, "Cached checkpoints: %d\n", c.replayer.Cached())
	if c.opts.Describe != nil {
		c.opts.Describe(c.out)
	}
}

func (c *CLI) handleDigest() {
	d, err := c.replayer.Digest()
	if err != nil {
		fmt.Fprintf(c.out, "Error computing digest: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "frame %d: %s\n", c.replayer.Position(), d)
}

func (c *CLI) handleVerify(ctx context.Context, args []string) {
	passes := 2
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 2 {
			fmt.Fprintf(c.out, "Invalid pass count: %s\n", args[0])
			return
		}
		passes = v
	}
	if err := c.replayer.Verify(ctx, passes); err != nil {
		fmt.Fprintf(c.out, "Verification failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Replay is deterministic over %d passes\n", passes)
}

func (c *CLI) printStepError(err error) {
	if errors.Is(err, replay.ErrEndOfSession) {
		fmt.Fprintln(c.out, "Reached the end of the session")
		return
	}
	fmt.Fprintf(c.out, "Error at %s: %v\n", c.formatFrame(c.replayer.Position()), err)
}
