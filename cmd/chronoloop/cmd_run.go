package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/willibrandon/ChronoLoop/pkg/headless"
	"github.com/willibrandon/ChronoLoop/pkg/recorder"
)

// recording starts a recording before frame from and stops it after n
// frames, persisting the session to out.
type recording struct {
	from int
	n    int
	out  string
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the module headless with scripted input",
		Long: `Run the module headless, feeding it scripted input.

The module is reloaded whenever its artifact changes. With --record, the
given number of frames is recorded, saved, and then looped: the runtime
keeps replaying the recording so edits to the module can be watched against
the same input.`,
		Example: `  chronoloop run --module build/paddle.so --script "right;right;;space" --frames 600
  chronoloop run --module build/paddle.so --record 120 --out paddle.session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			script, err := scriptFlag(cmd)
			if err != nil {
				return err
			}
			rec, err := recordingFlags(cmd, cfg.Session.Path)
			if err != nil {
				return err
			}

			rt, err := newEngine(cfg, cmd.ErrOrStderr(), script)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.attach(rt.rec); err != nil {
				return err
			}

			dump, _ := cmd.Flags().GetBool("dump")
			var saveErr error
			rt.canvas.OnPresent = func(n int, commands []headless.Command) error {
				if dump {
					fmt.Fprintf(cmd.OutOrStdout(), "-- frame %d (%s)\n%s", n, rt.rec.Mode(), rt.canvas.Dump())
				}
				if rec == nil {
					return nil
				}
				if rt.rec.Mode() == recorder.Normal && n+1 == rec.from {
					return rt.rec.StartRecording()
				}
				if rt.rec.Mode() == recorder.Record && rt.rec.Session().Len() == rec.n {
					s := rt.rec.Session()
					if err := rt.rec.StopRecording(); err != nil {
						return err
					}
					saveErr = rt.persistSession(s, rec.out)
					return saveErr
				}
				return nil
			}
			if rec != nil && rec.from == 0 {
				if err := rt.rec.StartRecording(); err != nil {
					return err
				}
			}

			err = rt.driver.Run(cmd.Context())
			rt.logger.Info("run finished", "frames", rt.driver.Frame(), "stats", rt.stats.Snapshot().String())
			if err != nil && !errors.Is(err, cmd.Context().Err()) {
				return err
			}
			if rec != nil && rt.rec.Mode() == recorder.Record {
				return fmt.Errorf("stopped after %d of %d recorded frames; session not saved", rt.rec.Session().Len(), rec.n)
			}
			return saveErr
		},
	}

	cmd.Flags().StringP("module", "m", "", "Module artifact built with -buildmode=plugin")
	cmd.Flags().Uint64("frames", 0, "Stop after this many frames (0 runs until interrupted)")
	cmd.Flags().StringP("script", "s", "", `Input script: frames separated by ';', keys by ',' (or @file)`)
	cmd.Flags().Int("record", 0, "Record this many frames")
	cmd.Flags().Int("record-from", 0, "Frame at which recording starts")
	cmd.Flags().StringP("out", "o", "", "Session output path (defaults to session.path)")
	cmd.Flags().Bool("dump", false, "Print the draw commands of every frame")
	return cmd
}

// scriptFlag builds the live input script from --script. A value starting
// with @ names a file holding the script.
func scriptFlag(cmd *cobra.Command) (*headless.Script, error) {
	s, _ := cmd.Flags().GetString("script")
	if path, ok := strings.CutPrefix(s, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input script: %w", err)
		}
		s = strings.Join(strings.Fields(string(data)), "")
	}
	script, err := headless.ParseScript(s)
	if err != nil {
		return nil, fmt.Errorf("invalid input script: %w", err)
	}
	return script, nil
}

func recordingFlags(cmd *cobra.Command, defaultOut string) (*recording, error) {
	n, _ := cmd.Flags().GetInt("record")
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("--record must be positive, got %d", n)
	}
	from, _ := cmd.Flags().GetInt("record-from")
	if from < 0 {
		return nil, fmt.Errorf("--record-from must not be negative, got %d", from)
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = defaultOut
	}
	if out == "" {
		return nil, errors.New("--record needs --out or session.path")
	}
	return &recording{from: from, n: n, out: out}, nil
}
