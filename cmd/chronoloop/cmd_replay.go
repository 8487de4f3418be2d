package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/willibrandon/ChronoLoop/pkg/config"
	"github.com/willibrandon/ChronoLoop/pkg/debugger"
	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/headless"
	"github.com/willibrandon/ChronoLoop/pkg/recorder"
	"github.com/willibrandon/ChronoLoop/pkg/replay"
)

// noInput is the live source of commands that only ever play sessions back.
var noInput = recorder.InputFunc(func() frame.InputSet { return nil })

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <session>",
		Short: "Play a recorded session back in a loop",
		Long: `Play a recorded session back. Every pass restores the recorded
starting state, so the module can be rebuilt between passes and its new
behavior watched against the same input.`,
		Example: `  chronoloop replay paddle.session --module build/paddle.so --passes 3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newEngine(cfg, cmd.ErrOrStderr(), noInput)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.loadSession(args[0])
			if err != nil {
				return err
			}
			if err := rt.rec.PlaySession(s); err != nil {
				return err
			}
			if !cmd.Flags().Changed("frames") {
				passes, _ := cmd.Flags().GetInt("passes")
				if passes > 0 {
					rt.cfg.Frame.MaxFrames = uint64(passes * s.Len())
				}
			}
			if err := rt.attach(rt.rec); err != nil {
				return err
			}
			if dump, _ := cmd.Flags().GetBool("dump"); dump {
				rt.canvas.OnPresent = func(n int, _ []headless.Command) error {
					fmt.Fprintf(cmd.OutOrStdout(), "-- frame %d (session %d)\n%s", n, n%s.Len(), rt.canvas.Dump())
					return nil
				}
			}

			err = rt.driver.Run(cmd.Context())
			rt.logger.Info("replay finished", "frames", rt.driver.Frame(), "stats", rt.stats.Snapshot().String())
			return err
		},
	}
	cmd.Flags().StringP("module", "m", "", "Module artifact built with -buildmode=plugin")
	cmd.Flags().Uint64("frames", 0, "Stop after this many frames (overrides --passes)")
	cmd.Flags().Int("passes", 1, "Passes over the session (0 loops until interrupted)")
	cmd.Flags().Bool("dump", false, "Print the draw commands of every frame")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <session>",
		Short: "Check that a session replays deterministically",
		Long: `Replay a session several times and compare a digest of the arena and
module state after every frame. Any difference between passes is reported
with the first frame at which it appeared.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, r, err := openReplayer(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer rt.Close()

			passes, _ := cmd.Flags().GetInt("passes")
			if err := r.Verify(cmd.Context(), passes); err != nil {
				return err
			}
			digest, err := r.Digest()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames replay identically over %d passes (final %s)\n",
				args[0], r.Len(), max(passes, 2), digest[:16])
			return nil
		},
	}
	cmd.Flags().StringP("module", "m", "", "Module artifact built with -buildmode=plugin")
	cmd.Flags().Int("passes", 2, "Number of replay passes to compare")
	return cmd
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <session>",
		Short: "Step through a recorded session interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, r, err := openReplayer(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer rt.Close()

			cli := debugger.NewCLI(r, cmd.InOrStdin(), cmd.OutOrStdout(), debugger.Options{
				Describe: rt.describe,
			})
			return cli.Run(cmd.Context())
		},
	}
	cmd.Flags().StringP("module", "m", "", "Module artifact built with -buildmode=plugin")
	return cmd
}

// openReplayer loads the session at path and binds a random-access replayer
// to a driver positioned at the session start.
func openReplayer(cmd *cobra.Command, cfg *config.Config, path string) (*engine, *replay.Replayer, error) {
	rt, err := newEngine(cfg, cmd.ErrOrStderr(), noInput)
	if err != nil {
		return nil, nil, err
	}
	s, err := rt.loadSession(path)
	if err == nil && len(s.Start.Snapshot) != rt.arena.Capacity() {
		err = &recorder.FormatError{
			Section:  "snapshot",
			Expected: uint64(rt.arena.Capacity()),
			Actual:   uint64(len(s.Start.Snapshot)),
		}
	}
	var r *replay.Replayer
	if err == nil {
		r, err = replay.New(s, rt.rec, replay.Options{
			CheckpointInterval: cfg.Session.CheckpointInterval,
			CacheSize:          cfg.Session.CheckpointCache,
			Logger:             rt.logger,
		})
	}
	if err == nil {
		err = rt.attach(r)
	}
	if err == nil {
		r.Bind(rt.driver)
		err = r.Start()
	}
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return rt, r, nil
}

// describe prints the module state and the draw commands of the last
// presented frame.
func (rt *engine) describe(w io.Writer) {
	fmt.Fprintf(w, "Module: %s (generation %d)\n", rt.driver.Module().Path(), rt.driver.Module().Generation())
	fmt.Fprintf(w, "Arena: %d of %d bytes used\n", rt.arena.Used(), rt.arena.Capacity())
	switch {
	case rt.state.Value() != nil:
		fmt.Fprintf(w, "State: %+v\n", rt.state.Value())
	case rt.state.Pending():
		fmt.Fprintln(w, "State: pending decode")
	default:
		fmt.Fprintln(w, "State: empty")
	}
	if dump := rt.canvas.Dump(); dump != "" {
		fmt.Fprint(w, dump)
	}
}
