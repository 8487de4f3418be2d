package loader

import (
	"errors"
	"io/fs"
	"time"
)

// Watcher rate-limits staleness checks for the frame loop. It is polled
// between frames on the loop goroutine and never swaps modules itself, so
// the caller can prepare module state before calling Replace. The zero value
// is ready to use.
type Watcher struct {
	// Interval is the minimum time between two stat calls. Zero checks on
	// every poll.
	Interval time.Duration

	now  func() time.Time
	last time.Time
}

// NewWatcher creates a watcher polling at most once per interval.
func NewWatcher(interval time.Duration) *Watcher {
	return &Watcher{Interval: interval, now: time.Now}
}

// Check reports whether m's artifact changed since it was loaded. An
// artifact that is missing is treated as unchanged because the build system
// removes outputs while it writes them.
func (w *Watcher) Check(m *Module) (bool, error) {
	if w.Interval > 0 {
		if w.now == nil {
			w.now = time.Now
		}
		now := w.now()
		if !w.last.IsZero() && now.Sub(w.last) < w.Interval {
			return false, nil
		}
		w.last = now
	}

	stale, err := m.Stale()
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return stale, err
}
