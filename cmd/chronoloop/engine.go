package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
	"github.com/willibrandon/ChronoLoop/pkg/compression"
	"github.com/willibrandon/ChronoLoop/pkg/config"
	"github.com/willibrandon/ChronoLoop/pkg/driver"
	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/headless"
	"github.com/willibrandon/ChronoLoop/pkg/instrumentation"
	"github.com/willibrandon/ChronoLoop/pkg/journal"
	"github.com/willibrandon/ChronoLoop/pkg/loader"
	"github.com/willibrandon/ChronoLoop/pkg/logging"
	"github.com/willibrandon/ChronoLoop/pkg/recorder"
)

// openModule opens staged module artifacts. Tests replace it.
var openModule loader.Opener = loader.PluginOpener{}

// engine is everything one command needs to drive frames: the arena, the
// module, the recorder and the headless host around a driver.
type engine struct {
	cfg    *config.Config
	logger *slog.Logger

	arena   *arena.Arena
	canvas  *headless.Canvas
	state   *frame.State
	loader  *loader.Loader
	module  *loader.Module
	rec     *recorder.Recorder
	log     *journal.Log
	journal *journal.FileJournal
	stats   *instrumentation.Stats
	tracer  *instrumentation.Tracer
	driver  *driver.Driver

	tracing bool
}

// newEngine maps the arena, loads the module and wires the recorder over
// live. The driver is created by attach, once the frame input is known.
func newEngine(cfg *config.Config, stderr io.Writer, live recorder.InputSource) (*engine, error) {
	rt := &engine{
		cfg:    cfg,
		logger: logging.NewLoggerWithFormat(cfg.Logging.Level, cfg.Logging.Format, stderr),
		state:  &frame.State{},
		stats:  instrumentation.NewStats(cfg.Instrumentation.SlowFrame),
	}
	ready := false
	defer func() {
		if !ready {
			rt.Close()
		}
	}()

	if cfg.Module.Path == "" {
		return nil, errors.New("no module path: set module.path or pass --module")
	}

	var err error
	rt.arena, err = arena.New(cfg.ArenaOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to map arena: %w", err)
	}
	rt.logger.Debug("arena mapped",
		"base", fmt.Sprintf("%#x", rt.arena.Base()),
		"capacity", humanize.IBytes(uint64(rt.arena.Capacity())))

	if cfg.Logging.Journal != "" {
		ct, err := compression.Parse(cfg.Logging.JournalCompression)
		if err != nil {
			return nil, err
		}
		rt.journal, err = journal.NewFileJournalWithOptions(cfg.Logging.Journal, journal.FileJournalOptions{Compression: ct})
		if err != nil {
			return nil, err
		}
		rt.log = journal.NewLog(rt.journal)
		rt.log.OnError = func(err error) { rt.logger.Warn("journal write failed", "err", err) }
		rt.logger.Debug("journal open", "path", cfg.Logging.Journal, "run", rt.log.RunID())
	}

	rt.canvas = headless.NewCanvas(headless.NewRandom(cfg.Frame.Seed))
	rt.loader = loader.New(loader.Options{
		Symbol:     cfg.Module.Symbol,
		StagingDir: cfg.Module.StagingDir,
		Opener:     openModule,
		Logger:     rt.logger,
	})
	rt.module, err = rt.loader.Load(cfg.Module.Path)
	if err != nil {
		return nil, err
	}

	rt.rec = recorder.New(rt.arena, rt.state, live, recorder.Options{
		RNG:    rt.canvas.Random(),
		Log:    rt.log,
		Logger: rt.logger,
	})

	if cfg.Instrumentation.Enabled {
		if err := instrumentation.StartTrace(cfg.Instrumentation.Output); err != nil {
			return nil, err
		}
		rt.tracing = true
		rt.tracer = instrumentation.NewTracer(instrumentation.Options{
			Enabled:       true,
			IncludePhases: cfg.Instrumentation.IncludePhases,
			ExcludePhases: cfg.Instrumentation.ExcludePhases,
			SlowFrame:     cfg.Instrumentation.SlowFrame,
		})
	}
	ready = true
	return rt, nil
}

// attach creates the driver reading frame input from input.
func (rt *engine) attach(input driver.Input) error {
	policy, err := driver.ParseAbortPolicy(rt.cfg.Frame.AbortPolicy)
	if err != nil {
		return err
	}
	rt.driver, err = driver.New(rt.arena, rt.loader, rt.module, rt.state, rt.canvas.Host(), input, driver.Options{
		Timestep:    rt.cfg.Frame.Timestep,
		AbortPolicy: policy,
		Presenter:   rt.canvas,
		Keys:        rt.canvas,
		Watcher:     loader.NewWatcher(rt.cfg.Module.PollInterval),
		MaxFrames:   rt.cfg.Frame.MaxFrames,
		Tracer:      rt.tracer,
		Stats:       rt.stats,
		Log:         rt.log,
		Logger:      rt.logger,
	})
	return err
}

// loadSession reads the session file at path, checking its signature
// first when a key is configured.
func (rt *engine) loadSession(path string) (*recorder.Session, error) {
	if key := rt.cfg.Session.SignKey; key != "" {
		if err := recorder.VerifyFile(path, []byte(key)); err != nil {
			return nil, err
		}
	}
	s, err := recorder.LoadSession(path, rt.arena.Capacity())
	if err != nil {
		return nil, err
	}
	rt.logger.Info("session loaded", "path", path, "frames", s.Len(), "state", humanize.IBytes(uint64(len(s.Start.State))))
	return s, nil
}

// persistSession writes s to path with the configured compression and signs
// it when a key is configured.
func (rt *engine) persistSession(s *recorder.Session, path string) error {
	ct, err := compression.Parse(rt.cfg.Session.Compression)
	if err != nil {
		return err
	}
	if err := s.Persist(path, recorder.PersistOptions{Compression: ct}); err != nil {
		return err
	}
	if key := rt.cfg.Session.SignKey; key != "" {
		if err := recorder.SignFile(path, []byte(key)); err != nil {
			return err
		}
	}
	size := "?"
	if info, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	rt.logger.Info("session saved", "path", path, "frames", s.Len(), "size", size, "compression", ct)
	return nil
}

// Close releases the module, the journal and the arena, in that order.
func (rt *engine) Close() {
	if rt.driver != nil {
		rt.driver.Close()
	} else {
		rt.module.Release()
	}
	if rt.loader != nil {
		rt.loader.Close()
	}
	if rt.tracing {
		if err := instrumentation.StopTrace(); err != nil {
			rt.logger.Warn("failed to finish trace", "err", err)
		}
	}
	if rt.journal != nil {
		rt.journal.Close()
	}
	if rt.arena != nil {
		rt.arena.Close()
	}
	rt.logger.Debug("runtime closed", "stats", rt.stats.Snapshot().String())
}
