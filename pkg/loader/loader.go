// Package loader opens compiled logic modules, resolves their frame entry
// point and swaps them for fresh builds while the host keeps running.
//
// Every load copies the build artifact to a private staging path first, so
// the build system can overwrite the original while a module is in use.
// Staleness is detected by comparing the artifact's modification time with
// the one recorded at load time. Two builds that land within the same
// timestamp tick are indistinguishable and count as unchanged.
package loader

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/willibrandon/ChronoLoop/pkg/frame"
	"github.com/willibrandon/ChronoLoop/pkg/logging"
)

// ErrLoad classifies every failure to produce a usable module.
var ErrLoad = errors.New("loader: module load failed")

// LoadError names the artifact and symbol involved in a failed load.
type LoadError struct {
	Path   string
	Symbol string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loader: load %s (symbol %s): %v", e.Path, e.Symbol, e.Err)
}

func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }

// Symbols resolves exported names in an opened module.
type Symbols interface {
	Lookup(name string) (plugin.Symbol, error)
}

// Opener opens a staged module artifact.
type Opener interface {
	Open(path string) (Symbols, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Symbols, error)

func (f OpenerFunc) Open(path string) (Symbols, error) { return f(path) }

// PluginOpener opens modules built with -buildmode=plugin.
type PluginOpener struct{}

func (PluginOpener) Open(path string) (Symbols, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options configures a Loader.
type Options struct {
	// Symbol is the exported entry point name.
	Symbol string

	// StagingDir receives the private artifact copies. Empty means a
	// temporary directory created on first load.
	StagingDir string

	// Opener opens staged artifacts. Defaults to PluginOpener.
	Opener Opener

	Logger *slog.Logger
}

// DefaultOptions returns the default loader options.
func DefaultOptions() Options {
	return Options{
		Symbol: frame.EntrySymbol,
		Opener: PluginOpener{},
	}
}

// Loader loads and reloads modules. It is driven from the frame loop
// goroutine only.
type Loader struct {
	opts       Options
	logger     *slog.Logger
	stagingDir string
	ownsDir    bool
	seq        uint64
}

// New creates a loader. Zero option fields take their defaults.
func New(opts Options) *Loader {
	def := DefaultOptions()
	if opts.Symbol == "" {
		opts.Symbol = def.Symbol
	}
	if opts.Opener == nil {
		opts.Opener = def.Opener
	}
	return &Loader{
		opts:       opts,
		logger:     logging.OrDiscard(opts.Logger),
		stagingDir: opts.StagingDir,
	}
}

// Symbol returns the entry point name this loader resolves.
func (l *Loader) Symbol() string { return l.opts.Symbol }

// Close removes a staging directory the loader created itself.
func (l *Loader) Close() error {
	if !l.ownsDir {
		return nil
	}
	l.ownsDir = false
	return os.RemoveAll(l.stagingDir)
}

// Load stages the artifact at path, opens it and resolves the entry point.
// A missing file, an open failure, a missing symbol and a symbol of the wrong
// type all return a *LoadError and no module.
func (l *Loader) Load(path string) (*Module, error) {
	fail := func(err error) (*Module, error) {
		return nil, &LoadError{Path: path, Symbol: l.opts.Symbol, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(err)
	}
	if info.IsDir() {
		return fail(fmt.Errorf("%s is a directory", path))
	}

	staging, err := l.stage(path)
	if err != nil {
		return fail(err)
	}

	syms, err := l.opts.Opener.Open(staging)
	if err != nil {
		os.Remove(staging)
		return fail(fmt.Errorf("open: %w", err))
	}

	sym, err := syms.Lookup(l.opts.Symbol)
	if err != nil {
		os.Remove(staging)
		return fail(fmt.Errorf("lookup: %w", err))
	}

	entry, ok := asEntry(sym)
	if !ok {
		os.Remove(staging)
		return fail(fmt.Errorf("symbol has type %T, want func(*frame.Context, *frame.State, *frame.Host)", sym))
	}

	m := &Module{
		path:       path,
		staging:    staging,
		modTime:    info.ModTime(),
		generation: l.seq,
		entry:      entry,
	}

	l.logger.Debug("module loaded",
		"path", path,
		"staging", staging,
		"size", humanize.Bytes(uint64(info.Size())),
		"generation", m.generation)
	return m, nil
}

// Replace loads a fresh copy of m's artifact and releases m. When the load
// fails m is left untouched and the error is returned.
func (l *Loader) Replace(m *Module) (*Module, error) {
	next, err := l.Load(m.path)
	if err != nil {
		return nil, err
	}
	m.Release()
	return next, nil
}

// Reload replaces m when its artifact is stale and reports whether it did.
// When the artifact is unchanged m is returned as is. The arena is never
// touched.
func (l *Loader) Reload(m *Module) (*Module, bool, error) {
	stale, err := m.Stale()
	if err != nil {
		return m, false, &LoadError{Path: m.path, Symbol: l.opts.Symbol, Err: err}
	}
	if !stale {
		return m, false, nil
	}
	next, err := l.Replace(m)
	if err != nil {
		return m, false, err
	}
	return next, true, nil
}

// stage copies the artifact to a path unique to this load. Go plugins are
// cached by path, so reusing a staging name would return the old build.
func (l *Loader) stage(path string) (string, error) {
	if l.stagingDir == "" {
		dir, err := os.MkdirTemp("", "chronoloop-staging-")
		if err != nil {
			return "", fmt.Errorf("create staging dir: %w", err)
		}
		l.stagingDir = dir
		l.ownsDir = true
	} else if err := os.MkdirAll(l.stagingDir, 0755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	l.seq++
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s.%d.%d%s", strings.TrimSuffix(base, ext), os.Getpid(), l.seq, ext)
	dst := filepath.Join(l.stagingDir, name)

	if err := copyFile(path, dst); err != nil {
		return "", fmt.Errorf("stage: %w", err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// asEntry checks the resolved symbol against the fixed entry signature.
// Exported functions resolve to function values and exported variables to
// pointers.
func asEntry(sym plugin.Symbol) (frame.Entry, bool) {
	switch fn := sym.(type) {
	case func(*frame.Context, *frame.State, *frame.Host):
		return fn, fn != nil
	case frame.Entry:
		return fn, fn != nil
	case *func(*frame.Context, *frame.State, *frame.Host):
		if fn == nil || *fn == nil {
			return nil, false
		}
		return *fn, true
	case *frame.Entry:
		if fn == nil || *fn == nil {
			return nil, false
		}
		return *fn, true
	}
	return nil, false
}

// Module is a loaded module. Its entry point is an opaque capability that
// stays valid until Release.
type Module struct {
	path       string
	staging    string
	modTime    time.Time
	generation uint64
	entry      frame.Entry
}

// Path returns the build artifact path.
func (m *Module) Path() string { return m.path }

// StagingPath returns the private copy the module was opened from.
func (m *Module) StagingPath() string { return m.staging }

// ModTime returns the artifact modification time recorded at load.
func (m *Module) ModTime() time.Time { return m.modTime }

// Generation counts loads performed by the owning loader, starting at 1.
func (m *Module) Generation() uint64 { return m.generation }

// Loaded reports whether the entry point is still usable.
func (m *Module) Loaded() bool { return m != nil && m.entry != nil }

// Entry returns the resolved entry point, or nil after Release.
func (m *Module) Entry() frame.Entry {
	if m == nil {
		return nil
	}
	return m.entry
}

// Stale reports whether the artifact's modification time differs from the
// one recorded at load. A missing artifact is reported as an error, which
// usually means a build is in progress.
func (m *Module) Stale() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return !info.ModTime().Equal(m.modTime), nil
}

// Release invalidates the entry point and removes the staging copy. The Go
// runtime cannot unmap a plugin, so its code stays resident. Release is
// idempotent.
func (m *Module) Release() {
	if m == nil || m.entry == nil {
		return
	}
	m.entry = nil
	os.Remove(m.staging)
}

func (m *Module) String() string {
	return fmt.Sprintf("%s (generation %d)", filepath.Base(m.path), m.generation)
}
