// Package journal keeps an ordered log of runtime lifecycle events: module
// loads and reloads, aborted frames, recording and playback transitions.
// The log is diagnostic only; it is never part of replayed state.
package journal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Journal stores events in the order they were recorded
type Journal interface {
	Record(e Event) error
	Events() []Event
	Clear()
}

// InMemoryJournal keeps events in a slice
type InMemoryJournal struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemoryJournal creates an empty in-memory journal
func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{events: []Event{}}
}

func (j *InMemoryJournal) Record(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

// Events returns a copy of the recorded events
func (j *InMemoryJournal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

func (j *InMemoryJournal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = []Event{}
}

// Log stamps events for one run and hands them to a Journal. A nil *Log is
// valid and drops everything, so components can emit unconditionally.
type Log struct {
	mu      sync.Mutex
	journal Journal
	runID   string
	seq     int64
	now     func() time.Time

	// OnError observes journal write failures. Defaults to ignoring them.
	OnError func(err error)
}

// NewLog creates a Log with a fresh run ID
func NewLog(j Journal) *Log {
	return &Log{
		journal: j,
		runID:   uuid.NewString(),
		now:     time.Now,
	}
}

// RunID returns the identifier stamped on every event of this run
func (l *Log) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Emit records an event of the given type at a frame
func (l *Log) Emit(typ EventType, frame uint64, format string, args ...any) {
	if l == nil || l.journal == nil {
		return
	}

	l.mu.Lock()
	l.seq++
	e := Event{
		ID:        l.seq,
		RunID:     l.runID,
		Timestamp: l.now(),
		Type:      typ,
		Frame:     frame,
		Details:   fmt.Sprintf(format, args...),
	}
	l.mu.Unlock()

	if err := l.journal.Record(e); err != nil && l.OnError != nil {
		l.OnError(err)
	}
}
