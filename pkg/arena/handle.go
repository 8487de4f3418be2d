package arena

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Handle is a typed reference into an Arena. It stores a byte offset from the
// region base and carries its element type only at compile time. Because the
// value is relative, a Handle written by one module build is still valid
// after the module is reloaded.
//
// The zero Handle is nil. Internally the offset is stored biased by one so
// that zeroed arena memory decodes as nil handles.
type Handle[T any] struct {
	ref uint64
}

// FromOffset builds a handle for an object known to live at off.
func FromOffset[T any](off uint64) Handle[T] {
	return Handle[T]{ref: off + 1}
}

// IsNil reports whether h refers to nothing.
func (h Handle[T]) IsNil() bool { return h.ref == 0 }

// Offset returns the byte offset of the referenced object.
func (h Handle[T]) Offset() uint64 {
	if h.ref == 0 {
		panic("arena: offset of nil handle")
	}
	return h.ref - 1
}

func (h Handle[T]) String() string {
	if h.ref == 0 {
		return "Handle(nil)"
	}
	return fmt.Sprintf("Handle(%d)", h.ref-1)
}

// MarshalBinary encodes the handle as eight little-endian bytes so handles
// can be carried inside encoded module state.
func (h Handle[T]) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, h.ref), nil
}

// UnmarshalBinary decodes a handle written by MarshalBinary.
func (h *Handle[T]) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("arena: handle encoding must be 8 bytes, got %d", len(b))
	}
	h.ref = binary.LittleEndian.Uint64(b)
	return nil
}

// Alloc reserves space for one T and returns its handle. The memory is
// whatever the region held before, which is zero for a fresh arena.
func Alloc[T any](a *Arena) (Handle[T], error) {
	var zero T
	off, err := a.AllocBytes(int(unsafe.Sizeof(zero)))
	if err != nil {
		return Handle[T]{}, err
	}
	return FromOffset[T](off), nil
}

// MustAlloc is Alloc for callers that treat exhaustion as fatal.
func MustAlloc[T any](a *Arena) Handle[T] {
	h, err := Alloc[T](a)
	if err != nil {
		panic(err)
	}
	return h
}

// AllocArray reserves n contiguous elements of T and returns the handle of
// the first. Use Index to reach the rest.
func AllocArray[T any](a *Arena, n int) (Handle[T], error) {
	if n <= 0 {
		return Handle[T]{}, fmt.Errorf("arena: invalid array length %d", n)
	}
	var zero T
	off, err := a.AllocBytes(int(unsafe.Sizeof(zero)) * n)
	if err != nil {
		return Handle[T]{}, err
	}
	return FromOffset[T](off), nil
}

// Index returns the handle of element i of an array starting at h.
func Index[T any](h Handle[T], i int) Handle[T] {
	var zero T
	return FromOffset[T](h.Offset() + uint64(i)*uint64(unsafe.Sizeof(zero)))
}

// Get dereferences h. The access is bounds checked against the allocated
// part of the region; the element type is not checked and is the caller's
// contract. The returned pointer must not be retained across Close.
func Get[T any](a *Arena, h Handle[T]) *T {
	if h.IsNil() {
		panic("arena: dereference of nil handle")
	}
	var zero T
	off := h.Offset()
	a.check(off, uint64(unsafe.Sizeof(zero)))
	return (*T)(unsafe.Pointer(&a.mem[off]))
}
