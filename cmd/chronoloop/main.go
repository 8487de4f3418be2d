package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
	"github.com/willibrandon/ChronoLoop/pkg/config"
	"github.com/willibrandon/ChronoLoop/pkg/driver"
	"github.com/willibrandon/ChronoLoop/pkg/loader"
	"github.com/willibrandon/ChronoLoop/pkg/recorder"
	"github.com/willibrandon/ChronoLoop/pkg/replay"
)

// Exit codes by failure class.
const (
	exitError      = 1
	exitAbort      = 3
	exitLoad       = 4
	exitSession    = 5
	exitAllocation = 6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chronoloop",
		Short: "Live-reloadable simulation runtime with session record and replay",
		Long: `chronoloop drives a simulation module built with -buildmode=plugin.

All simulation state lives in one fixed-address arena, so the module can be
rebuilt and swapped in mid-session without losing state. Sessions capture the
arena plus the input of every frame and replay bit-for-bit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug, trace")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: auto, text, json")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newReplayCmd(),
		newVerifyCmd(),
		newInspectCmd(),
	)
	return rootCmd
}

// loadConfig applies the global flags over the file and environment
// configuration and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if cmd.Flags().Changed("module") {
		cfg.Module.Path, _ = cmd.Flags().GetString("module")
	}
	if cmd.Flags().Changed("frames") {
		cfg.Frame.MaxFrames, _ = cmd.Flags().GetUint64("frames")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// exitCode maps an error to the process exit status of its failure class.
func exitCode(err error) int {
	switch {
	case errors.Is(err, driver.ErrAbort):
		return exitAbort
	case errors.Is(err, loader.ErrLoad):
		return exitLoad
	case errors.Is(err, recorder.ErrSessionFormat),
		errors.Is(err, recorder.ErrIntegrity),
		errors.Is(err, arena.ErrSizeMismatch):
		return exitSession
	case errors.Is(err, arena.ErrOutOfMemory),
		errors.Is(err, arena.ErrAlreadyConstructed),
		errors.Is(err, arena.ErrAddressInUse):
		return exitAllocation
	}
	var de *replay.DivergenceError
	if errors.As(err, &de) {
		return exitSession
	}
	return exitError
}
