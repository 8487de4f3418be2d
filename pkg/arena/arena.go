// Package arena provides the fixed-address memory region that backs all
// simulation state shared between the host and a hot-reloaded module.
//
// The region is bump allocated and never frees or compacts. Objects are
// addressed through Handle values holding a byte offset from the region base,
// so a freshly loaded module operates on exactly the objects the previous
// module created. Types stored in the arena must be plain data: they may hold
// numbers, arrays, structs of plain data and Handles, but never Go pointers,
// slices, strings, maps or interfaces.
package arena

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	// DefaultBaseAddress is the fixed address the region is mapped at.
	DefaultBaseAddress uintptr = 0xcdcd_0000

	// DefaultCapacity is the default size of the region in bytes.
	DefaultCapacity = 2 * 1024 * 1024

	// Alignment is the granularity every allocation is rounded up to.
	Alignment = 16
)

var (
	// ErrOutOfMemory is returned when an allocation would exceed capacity.
	ErrOutOfMemory = errors.New("arena: out of memory")

	// ErrAlreadyConstructed is returned when a second arena is requested while
	// another one is still live in this process.
	ErrAlreadyConstructed = errors.New("arena: already constructed in this process")

	// ErrAddressInUse is returned when the fixed base address range is
	// already reserved.
	ErrAddressInUse = errors.New("arena: base address range already reserved")

	// ErrSizeMismatch is returned when restoring a snapshot whose length is
	// not exactly the arena capacity.
	ErrSizeMismatch = errors.New("arena: snapshot size mismatch")

	// ErrInvalidCursor is returned when an allocator cursor lies outside the
	// region.
	ErrInvalidCursor = errors.New("arena: invalid cursor")
)

// live is the process-wide ownership token. It is held from New until Close.
var live atomic.Bool

// OutOfMemoryError reports the requested and available byte counts of a
// failed allocation.
type OutOfMemoryError struct {
	Requested int
	Available int
	Capacity  int
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("arena: out of memory: requested %d bytes, %d of %d available",
		e.Requested, e.Available, e.Capacity)
}

func (e *OutOfMemoryError) Unwrap() error { return ErrOutOfMemory }

// SizeMismatchError reports a restore buffer of the wrong length.
type SizeMismatchError struct {
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("arena: snapshot size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

func (e *SizeMismatchError) Unwrap() error { return ErrSizeMismatch }

// Options configures arena construction.
type Options struct {
	// Capacity is the region size in bytes.
	Capacity int

	// BaseAddress is the fixed address to map the region at. Zero lets the
	// operating system choose.
	BaseAddress uintptr
}

// DefaultOptions returns the default arena options.
func DefaultOptions() Options {
	return Options{
		Capacity:    DefaultCapacity,
		BaseAddress: DefaultBaseAddress,
	}
}

// Cursor is the allocator state that lives outside the region itself.
type Cursor struct {
	Next        uint64
	Initialized bool
}

// Arena is a fixed-capacity bump allocator over a process-owned region.
// It is not safe for concurrent use; one goroutine drives all frames.
type Arena struct {
	mem         []byte
	next        int
	initialized bool
	release     func() error
}

// New constructs the process arena. Only one arena may be live at a time:
// a second call before Close returns ErrAlreadyConstructed.
func New(opts Options) (*Arena, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("arena: invalid capacity %d", opts.Capacity)
	}
	if !live.CompareAndSwap(false, true) {
		return nil, ErrAlreadyConstructed
	}

	mem, release, err := mapRegion(opts.BaseAddress, opts.Capacity)
	if err != nil {
		live.Store(false)
		return nil, err
	}

	return &Arena{mem: mem, release: release}, nil
}

// Close unmaps the region and surrenders the ownership token. Handles and
// references obtained from the arena are invalid afterwards.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := a.release()
	a.mem = nil
	a.next = 0
	a.initialized = false
	live.Store(false)
	return err
}

// Base returns the address of the first byte of the region.
func (a *Arena) Base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
}

// Capacity returns the region size in bytes.
func (a *Arena) Capacity() int { return len(a.mem) }

// Used returns the number of bytes consumed by allocations, including
// alignment padding.
func (a *Arena) Used() int { return a.next }

// Available returns the number of bytes left in the unused tail.
func (a *Arena) Available() int { return len(a.mem) - a.next }

// Initialized reports whether a module has marked the arena as set up.
func (a *Arena) Initialized() bool { return a.initialized }

// MarkInitialized records that first-frame setup has run.
func (a *Arena) MarkInitialized() { a.initialized = true }

// AllocBytes reserves size bytes from the unused tail and returns the offset
// of the reservation. Zero-sized requests still consume one aligned slot so
// no two allocations ever alias.
func (a *Arena) AllocBytes(size int) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("arena: negative allocation size %d", size)
	}
	if size == 0 {
		size = 1
	}

	if size > len(a.mem)-a.next {
		return 0, &OutOfMemoryError{
			Requested: size,
			Available: len(a.mem) - a.next,
			Capacity:  len(a.mem),
		}
	}

	off := a.next
	a.next = min(alignUp(a.next+size), len(a.mem))
	return uint64(off), nil
}

// Bytes returns a view of n bytes starting at off. The range must lie inside
// the allocated part of the region.
func (a *Arena) Bytes(off uint64, n int) []byte {
	a.check(off, uint64(n))
	return a.mem[off : off+uint64(n) : off+uint64(n)]
}

// Snapshot copies the full region into a new buffer.
func (a *Arena) Snapshot() []byte {
	out := make([]byte, len(a.mem))
	copy(out, a.mem)
	return out
}

// Restore overwrites the full region with b, which must be exactly Capacity
// bytes long. The allocator cursor is left unchanged; see SetCursor.
func (a *Arena) Restore(b []byte) error {
	if len(b) != len(a.mem) {
		return &SizeMismatchError{Expected: len(a.mem), Actual: len(b)}
	}
	copy(a.mem, b)
	return nil
}

// Cursor returns the allocator state.
func (a *Arena) Cursor() Cursor {
	return Cursor{Next: uint64(a.next), Initialized: a.initialized}
}

// SetCursor replaces the allocator state, typically alongside Restore.
func (a *Arena) SetCursor(c Cursor) error {
	if c.Next > uint64(len(a.mem)) {
		return fmt.Errorf("%w: next offset %d beyond capacity %d", ErrInvalidCursor, c.Next, len(a.mem))
	}
	a.next = int(c.Next)
	a.initialized = c.Initialized
	return nil
}

// Reset zeroes the region and rewinds the allocator. This is the only way
// allocations are ever reclaimed.
func (a *Arena) Reset() {
	clear(a.mem)
	a.next = 0
	a.initialized = false
}

// check panics unless [off, off+size) lies inside the allocated region.
func (a *Arena) check(off, size uint64) {
	if a.mem == nil {
		panic("arena: access after Close")
	}
	end := off + size
	if end < off || end > uint64(a.next) || (size == 0 && off >= uint64(a.next)) {
		panic(fmt.Sprintf("arena: access [%d, %d) outside allocated region [0, %d)", off, end, a.next))
	}
}

func alignUp(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
