package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/willibrandon/ChronoLoop/pkg/compression"
)

// ErrClosed is returned by Record once the journal is closed, or when Clear
// could not reopen the file.
var ErrClosed = errors.New("journal: closed")

// FileJournal writes events to a file as JSON lines with optional
// compression
type FileJournal struct {
	mu              sync.Mutex
	file            *os.File
	writer          io.WriteCloser
	bufWriter       *bufio.Writer
	path            string
	compressionType compression.Type
	eventCount      int
}

// FileJournalOptions contains options for creating a file journal
type FileJournalOptions struct {
	Compression compression.Type
}

// DefaultFileJournalOptions returns default options for file journal
func DefaultFileJournalOptions() FileJournalOptions {
	return FileJournalOptions{
		Compression: compression.None,
	}
}

// NewFileJournal creates a new file journal with default options
func NewFileJournal(path string) (*FileJournal, error) {
	return NewFileJournalWithOptions(path, DefaultFileJournalOptions())
}

// NewFileJournalWithOptions creates a new file journal with the given
// options. Events are appended to an existing file.
func NewFileJournalWithOptions(path string, options FileJournalOptions) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	bufWriter := bufio.NewWriter(f)
	w, err := compression.NewWriter(bufWriter, options.Compression)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileJournal{
		file:            f,
		writer:          w,
		bufWriter:       bufWriter,
		path:            path,
		compressionType: options.Compression,
	}, nil
}

// Record writes an event and flushes it to the file
func (fj *FileJournal) Record(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	fj.mu.Lock()
	defer fj.mu.Unlock()

	if fj.writer == nil {
		return ErrClosed
	}
	if _, err := fj.writer.Write(data); err != nil {
		return err
	}

	// Push the compressed block and the buffer so a crash loses nothing
	if err := compression.Flush(fj.writer); err != nil {
		return err
	}
	if err := fj.bufWriter.Flush(); err != nil {
		return err
	}

	fj.eventCount++
	return nil
}

// Count returns the number of events written through this journal
func (fj *FileJournal) Count() int {
	fj.mu.Lock()
	defer fj.mu.Unlock()
	return fj.eventCount
}

// Events reads all events back from the file. Lines that do not decode are
// skipped, and a compressed stream that is still open yields the events
// flushed so far.
func (fj *FileJournal) Events() []Event {
	fj.mu.Lock()
	defer fj.mu.Unlock()

	events, _ := ReadFile(fj.path, fj.compressionType)
	return events
}

// ReadFile decodes a journal file written with the given compression. On a
// read error the events decoded before it are returned with the error.
func ReadFile(path string, t compression.Type) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := compression.NewReader(f, t)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var events []Event
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

// Clear truncates the file and starts a fresh stream. If the file cannot be
// reopened the journal stays closed and Record returns ErrClosed.
func (fj *FileJournal) Clear() {
	fj.mu.Lock()
	defer fj.mu.Unlock()

	fj.closeLocked()
	fj.eventCount = 0
	os.Truncate(fj.path, 0)

	f, err := os.OpenFile(fj.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	bufWriter := bufio.NewWriter(f)
	w, err := compression.NewWriter(bufWriter, fj.compressionType)
	if err != nil {
		f.Close()
		return
	}
	fj.file = f
	fj.bufWriter = bufWriter
	fj.writer = w
}

// Close flushes and closes the file. Closing twice is a no-op.
func (fj *FileJournal) Close() error {
	fj.mu.Lock()
	defer fj.mu.Unlock()
	return fj.closeLocked()
}

func (fj *FileJournal) closeLocked() error {
	if fj.writer == nil {
		return nil
	}
	err := fj.writer.Close()
	if ferr := fj.bufWriter.Flush(); err == nil {
		err = ferr
	}
	if cerr := fj.file.Close(); err == nil {
		err = cerr
	}
	fj.writer, fj.bufWriter, fj.file = nil, nil, nil
	return err
}
