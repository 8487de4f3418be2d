package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
	"github.com/willibrandon/ChronoLoop/pkg/compression"
	"github.com/willibrandon/ChronoLoop/pkg/frame"
)

// Session file layout, all integers little-endian:
//
//	[u64 snapshot length][snapshot bytes]
//	[u64 next-free offset][u8 initialized]
//	[u32 rng length][rng bytes]
//	[u64 state length][state bytes]
//	[u32 frame count]
//	frame count × ([u32 key count][key count × u32 key code])
//
// The whole stream may be wrapped in a single zstd frame, detected by its
// magic bytes on load.

// MaxSnapshotSize bounds the snapshot length accepted when the arena
// capacity is not known in advance.
const MaxSnapshotSize = 1 << 30

// ErrSessionFormat classifies every malformed session file.
var ErrSessionFormat = errors.New("recorder: malformed session")

// FormatError names the section of a session file that failed to decode and
// the lengths involved.
type FormatError struct {
	Section  string
	Offset   int
	Expected uint64
	Actual   uint64
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("recorder: malformed session: %s at offset %d: expected %d bytes, got %d",
		e.Section, e.Offset, e.Expected, e.Actual)
}

func (e *FormatError) Unwrap() error { return ErrSessionFormat }

// PersistOptions configures how a session is written.
type PersistOptions struct {
	Compression compression.Type
}

// DefaultPersistOptions returns the default persist options
func DefaultPersistOptions() PersistOptions {
	return PersistOptions{Compression: compression.None}
}

// WriteTo encodes the session in the session file layout.
func (s *Session) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	var scratch [8]byte

	put := func(b []byte) {
		m, _ := bw.Write(b)
		n += int64(m)
	}
	u8 := func(v uint8) { put([]byte{v}) }
	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		put(scratch[:4])
	}
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:], v)
		put(scratch[:])
	}

	start := &s.Start
	u64(uint64(len(start.Snapshot)))
	put(start.Snapshot)

	u64(start.Cursor.Next)
	if start.Cursor.Initialized {
		u8(1)
	} else {
		u8(0)
	}
	u32(uint32(len(start.RNG)))
	put(start.RNG)
	u64(uint64(len(start.State)))
	put(start.State)

	u32(uint32(len(s.Inputs)))
	for _, in := range s.Inputs {
		u32(uint32(len(in)))
		for _, k := range in {
			u32(uint32(k))
		}
	}

	// bufio keeps the first write error and reports it from Flush
	if err := bw.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

// ReadSession decodes a session. When capacity is positive the snapshot
// must be exactly that long. Trailing bytes after the last frame are an
// error.
func ReadSession(r io.Reader, capacity int) (*Session, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("recorder: read session: %w", err)
	}
	return DecodeSession(data, capacity)
}

// DecodeSession decodes a session from memory, unwrapping zstd first when
// the data starts with a zstd frame.
func DecodeSession(data []byte, capacity int) (*Session, error) {
	if compression.IsZstd(data) {
		raw, err := compression.Decompress(data, compression.Zstd)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionFormat, err)
		}
		data = raw
	}

	d := &decoder{data: data}

	snapLen := d.u64("snapshot length")
	if d.err == nil {
		switch {
		case capacity > 0 && snapLen != uint64(capacity):
			return nil, &FormatError{Section: "snapshot", Offset: 0, Expected: uint64(capacity), Actual: snapLen}
		case capacity <= 0 && snapLen > MaxSnapshotSize:
			return nil, &FormatError{Section: "snapshot", Offset: 0, Expected: MaxSnapshotSize, Actual: snapLen}
		}
	}

	s := &Session{}
	s.Start.Snapshot = d.bytes("snapshot", snapLen)
	s.Start.Cursor.Next = d.u64("arena cursor")
	if flag := d.take("arena initialized flag", 1); flag != nil {
		if flag[0] > 1 {
			return nil, fmt.Errorf("%w: arena initialized flag at offset %d: invalid value %d",
				ErrSessionFormat, d.off-1, flag[0])
		}
		s.Start.Cursor.Initialized = flag[0] == 1
	}
	if d.err == nil && s.Start.Cursor.Next > snapLen {
		return nil, fmt.Errorf("%w: %w: next offset %d beyond snapshot length %d",
			ErrSessionFormat, arena.ErrInvalidCursor, s.Start.Cursor.Next, snapLen)
	}
	s.Start.RNG = d.bytes("rng state", uint64(d.u32("rng length")))
	s.Start.State = d.bytes("module state", d.u64("state length"))

	count := d.u32("frame count")
	if d.err == nil && uint64(count)*4 > uint64(len(d.data)-d.off) {
		// Every frame needs at least its key count
		return nil, &FormatError{
			Section:  "input sequence",
			Offset:   d.off,
			Expected: uint64(count) * 4,
			Actual:   uint64(len(d.data) - d.off),
		}
	}
	if d.err == nil {
		s.Inputs = make([]frame.InputSet, 0, count)
	}
	for i := uint32(0); i < count && d.err == nil; i++ {
		section := fmt.Sprintf("frame %d", i)
		n := d.u32(section + " key count")
		b := d.bytes(section+" keys", uint64(n)*4)
		if d.err != nil {
			break
		}
		keys := make([]frame.Key, n)
		for j := range keys {
			keys[j] = frame.Key(binary.LittleEndian.Uint32(b[j*4:]))
		}
		s.Inputs = append(s.Inputs, frame.NewInputSet(keys...))
	}
	if d.err != nil {
		return nil, d.err
	}

	if rest := len(d.data) - d.off; rest != 0 {
		return nil, &FormatError{Section: "end of session", Offset: d.off, Expected: 0, Actual: uint64(rest)}
	}
	return s, nil
}

// Persist writes the session to path. The file is written to a temporary
// sibling and renamed into place, so a crash never leaves a torn session.
func (s *Session) Persist(path string, opts PersistOptions) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("recorder: persist session: %w", err)
	}
	defer os.Remove(tmp.Name())

	bufWriter := bufio.NewWriter(tmp)
	w, err := compression.NewWriter(bufWriter, opts.Compression)
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := s.WriteTo(w); err != nil {
		tmp.Close()
		return fmt.Errorf("recorder: persist session: %w", err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("recorder: persist session: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("recorder: persist session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("recorder: persist session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("recorder: persist session: %w", err)
	}
	return nil
}

// LoadSession reads a session file. See ReadSession for capacity.
func LoadSession(path string, capacity int) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: load session: %w", err)
	}
	defer f.Close()

	s, err := ReadSession(f, capacity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// decoder walks a session buffer and keeps the first truncation error.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(section string, n uint64) []byte {
	if d.err != nil {
		return nil
	}
	rest := uint64(len(d.data) - d.off)
	if n > rest {
		d.err = &FormatError{Section: section, Offset: d.off, Expected: n, Actual: rest}
		return nil
	}
	b := d.data[d.off : d.off+int(n)]
	d.off += int(n)
	return b
}

// bytes is take with a copy, for sections the session keeps.
func (d *decoder) bytes(section string, n uint64) []byte {
	b := d.take(section, n)
	if b == nil || n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (d *decoder) u32(section string) uint32 {
	b := d.take(section, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64(section string) uint64 {
	b := d.take(section, 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
