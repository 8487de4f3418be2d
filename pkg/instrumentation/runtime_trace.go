// Package instrumentation traces and times the frame loop: runtime/trace
// tasks and regions per frame phase, plus aggregate frame statistics.
package instrumentation

import (
	"context"
	"fmt"
	"os"
	"runtime/trace"
	"strconv"
	"sync"
)

var (
	traceMu   sync.Mutex
	traceFile *os.File
)

// StartTrace starts runtime tracing into path. Only one trace can run per
// process; StopTrace ends it.
func StartTrace(path string) error {
	traceMu.Lock()
	defer traceMu.Unlock()

	if traceFile != nil {
		return fmt.Errorf("instrumentation: trace already running into %s", traceFile.Name())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace output file: %w", err)
	}

	if err := trace.Start(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to start runtime tracing: %w", err)
	}
	traceFile = f
	return nil
}

// StopTrace stops a trace started by StartTrace and closes its file.
func StopTrace() error {
	traceMu.Lock()
	defer traceMu.Unlock()

	if traceFile == nil {
		return nil
	}
	trace.Stop()
	err := traceFile.Close()
	traceFile = nil
	return err
}

// Tracer opens trace tasks and regions for the phases its options select.
// The zero Tracer traces nothing.
type Tracer struct {
	opts Options
}

// NewTracer creates a tracer.
func NewTracer(opts Options) *Tracer {
	return &Tracer{opts: opts}
}

// Frame starts a task spanning one frame. The returned end function must be
// called when the frame completes.
func (t *Tracer) Frame(ctx context.Context, index uint64) (context.Context, func()) {
	if t == nil || !t.opts.Enabled || !trace.IsEnabled() {
		return ctx, func() {}
	}
	ctx, task := trace.NewTask(ctx, "frame")
	trace.Log(ctx, "frame", strconv.FormatUint(index, 10))
	return ctx, task.End
}

// Phase runs fn inside a trace region named after the phase.
func (t *Tracer) Phase(ctx context.Context, phase string, fn func()) {
	if t == nil || !t.opts.ShouldTrace(phase) || !trace.IsEnabled() {
		fn()
		return
	}
	trace.WithRegion(ctx, phase, fn)
}

// Log attaches a message to the current frame task.
func (t *Tracer) Log(ctx context.Context, key, value string) {
	if t == nil || !t.opts.Enabled || !trace.IsEnabled() {
		return
	}
	trace.Log(ctx, key, value)
}
