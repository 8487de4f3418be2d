package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/willibrandon/ChronoLoop/pkg/compression"
)

func TestInMemoryJournal(t *testing.T) {
	j := NewInMemoryJournal()

	if events := j.Events(); len(events) != 0 {
		t.Errorf("Expected 0 events initially, got %d", len(events))
	}

	testEvents := []Event{
		{ID: 1, Timestamp: time.Now(), Type: ModuleLoaded, Details: "paddle.so"},
		{ID: 2, Timestamp: time.Now(), Type: RecordingStarted, Frame: 12},
	}
	for _, e := range testEvents {
		if err := j.Record(e); err != nil {
			t.Errorf("Unexpected error recording event: %v", err)
		}
	}

	events := j.Events()
	if len(events) != len(testEvents) {
		t.Fatalf("Expected %d events, got %d", len(testEvents), len(events))
	}
	for i, e := range events {
		if e.ID != testEvents[i].ID || e.Type != testEvents[i].Type || e.Frame != testEvents[i].Frame {
			t.Errorf("Event %d: expected %+v, got %+v", i, testEvents[i], e)
		}
	}

	// Mutating the copy must not affect the journal
	events[0].Details = "changed"
	if j.Events()[0].Details != "paddle.so" {
		t.Error("Events must return a copy")
	}

	j.Clear()
	if events := j.Events(); len(events) != 0 {
		t.Errorf("Expected 0 events after clearing, got %d", len(events))
	}
}

func TestLogStampsEvents(t *testing.T) {
	j := NewInMemoryJournal()
	l := NewLog(j)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Emit(ModuleLoaded, 0, "loaded %s", "paddle.so")
	l.Emit(FrameAborted, 41, "ball left the field")

	events := j.Events()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].ID != 1 || events[1].ID != 2 {
		t.Errorf("Expected sequential IDs, got %d and %d", events[0].ID, events[1].ID)
	}
	if events[0].Details != "loaded paddle.so" {
		t.Errorf("Unexpected details %q", events[0].Details)
	}
	if events[1].Frame != 41 || events[1].Type != FrameAborted {
		t.Errorf("Unexpected event %+v", events[1])
	}
	for _, e := range events {
		if e.RunID != l.RunID() || e.RunID == "" {
			t.Errorf("Expected run ID %q, got %q", l.RunID(), e.RunID)
		}
		if !e.Timestamp.Equal(fixed) {
			t.Errorf("Expected timestamp %v, got %v", fixed, e.Timestamp)
		}
	}

	if other := NewLog(j); other.RunID() == l.RunID() {
		t.Error("Expected a fresh run ID per log")
	}
}

func TestNilLogIsSafe(t *testing.T) {
	var l *Log
	l.Emit(ModuleLoaded, 0, "ignored")
	if l.RunID() != "" {
		t.Error("Expected empty run ID for nil log")
	}
}

type failingJournal struct{ InMemoryJournal }

func (f *failingJournal) Record(Event) error { return errors.New("disk full") }

func TestLogReportsJournalErrors(t *testing.T) {
	l := NewLog(&failingJournal{})
	var got error
	l.OnError = func(err error) { got = err }

	l.Emit(ArenaReset, 3, "reset")
	if got == nil || !strings.Contains(got.Error(), "disk full") {
		t.Errorf("Expected journal error to be reported, got %v", got)
	}
}

func TestFileJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("Failed to create file journal: %v", err)
	}
	defer j.Close()

	l := NewLog(j)
	l.Emit(ModuleLoaded, 0, "loaded")
	l.Emit(ModuleReloaded, 90, "generation %d", 2)
	l.Emit(PlaybackRestored, 120, "restored snapshot")

	if j.Count() != 3 {
		t.Errorf("Expected count 3, got %d", j.Count())
	}

	events := j.Events()
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[1].Type != ModuleReloaded || events[1].Frame != 90 || events[1].Details != "generation 2" {
		t.Errorf("Unexpected event %+v", events[1])
	}
	if events[2].RunID != l.RunID() {
		t.Errorf("Expected run ID %q, got %q", l.RunID(), events[2].RunID)
	}

	j.Clear()
	if events := j.Events(); len(events) != 0 {
		t.Errorf("Expected 0 events after clearing, got %d", len(events))
	}
	l.Emit(ArenaReset, 121, "after clear")
	if events := j.Events(); len(events) != 1 || events[0].Type != ArenaReset {
		t.Errorf("Expected one event after clear, got %+v", events)
	}
}

func TestFileJournalClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("Failed to create file journal: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Expected a second close to be a no-op, got %v", err)
	}
	if err := j.Record(Event{Type: ModuleLoaded}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}

func TestFileJournalClearFailureLeavesJournalClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("Failed to create file journal: %v", err)
	}
	defer j.Close()
	if err := j.Record(Event{Type: ModuleLoaded}); err != nil {
		t.Fatalf("Unexpected record error: %v", err)
	}

	// A directory in place of the file makes the reopen fail
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove journal file: %v", err)
	}
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	j.Clear()
	if j.Count() != 0 {
		t.Errorf("Expected count 0 after clear, got %d", j.Count())
	}
	if err := j.Record(Event{Type: ArenaReset}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after a failed clear, got %v", err)
	}
}

func TestFileJournalCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl.zst")

	j, err := NewFileJournalWithOptions(path, FileJournalOptions{Compression: compression.Zstd})
	if err != nil {
		t.Fatalf("Failed to create file journal: %v", err)
	}

	l := NewLog(j)
	for i := 0; i < 10; i++ {
		l.Emit(SessionPersisted, uint64(i), "frame %d", i)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Failed to close journal: %v", err)
	}

	events, err := ReadFile(path, compression.Zstd)
	if err != nil {
		t.Fatalf("Failed to read journal: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("Expected 10 events, got %d", len(events))
	}
	for i, e := range events {
		if e.Frame != uint64(i) {
			t.Errorf("Event %d: expected frame %d, got %d", i, i, e.Frame)
		}
	}

	// Plain reads of a compressed journal decode nothing
	if plain, _ := ReadFile(path, compression.None); len(plain) != 0 {
		t.Errorf("Expected no events from plain read, got %d", len(plain))
	}
}

func TestEventTypeString(t *testing.T) {
	if ModuleReloaded.String() == "" || FrameAborted.String() == PlaybackStarted.String() {
		t.Error("Expected distinct event type names")
	}
}
