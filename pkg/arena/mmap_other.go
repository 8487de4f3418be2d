//go:build !linux

package arena

import "unsafe"

// mapRegion falls back to a Go heap allocation where fixed-address mapping
// is unavailable. The base address is not honored, but the region still never
// moves for the life of the process because the collector does not relocate
// objects, and handles are offsets in any case.
func mapRegion(_ uintptr, capacity int) ([]byte, func() error, error) {
	buf := make([]byte, capacity+Alignment)
	pad := int(-uintptr(unsafe.Pointer(&buf[0])) & (Alignment - 1))
	mem := buf[pad : pad+capacity : pad+capacity]
	return mem, func() error { return nil }, nil
}
