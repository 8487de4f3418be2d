//go:build linux

package arena

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapRegion maps an anonymous private region. With a non-zero base the
// mapping uses MAP_FIXED_NOREPLACE so an existing reservation is reported
// instead of silently clobbered.
func mapRegion(base uintptr, capacity int) ([]byte, func() error, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if base != 0 {
		flags |= unix.MAP_FIXED_NOREPLACE
	}

	ptr, err := unix.MmapPtr(-1, 0, unsafe.Pointer(base), uintptr(capacity),
		unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, nil, fmt.Errorf("%w: %#x-%#x", ErrAddressInUse, base, base+uintptr(capacity))
		}
		return nil, nil, fmt.Errorf("arena: mmap %d bytes at %#x: %w", capacity, base, err)
	}

	// Kernels before 4.17 treat MAP_FIXED_NOREPLACE as a hint.
	if base != 0 && uintptr(ptr) != base {
		_ = unix.MunmapPtr(ptr, uintptr(capacity))
		return nil, nil, fmt.Errorf("%w: kernel placed region at %#x instead of %#x", ErrAddressInUse, uintptr(ptr), base)
	}

	mem := unsafe.Slice((*byte)(ptr), capacity)
	release := func() error {
		return unix.MunmapPtr(ptr, uintptr(capacity))
	}
	return mem, release, nil
}
