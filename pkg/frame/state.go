package frame

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrIncompatibleState is returned when a detached state value cannot be
// decoded into the layout the current module expects.
var ErrIncompatibleState = errors.New("frame: state layout incompatible with module")

// stateEncMode uses canonical CBOR so equal values always encode to equal
// bytes, which session digests rely on.
var stateEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("frame: failed to create CBOR enc mode: %v", err))
	}
	stateEncMode = em
}

// State is the module-owned value carried from frame to frame. It is opaque
// to the host: empty on the first invocation, populated by the module with
// Set, and passed back unchanged on every later call.
//
// When the host needs the value outside the module (hot reload, session
// capture) it works with the canonical CBOR encoding. A detached value is
// held as encoded bytes until the module adopts it with Load, so a module
// build whose type still matches the layout keeps its state across a reload
// while an incompatible one gets ErrIncompatibleState and reinitializes.
// Values should hold exported plain data and arena handles.
type State struct {
	value any
	raw   []byte

	// discardErr is why the module last failed to adopt a detached value.
	discardErr error
}

// Empty reports whether the slot holds neither a live nor a detached value.
func (s *State) Empty() bool { return s.value == nil && s.raw == nil }

// Pending reports whether a detached value is waiting to be adopted.
func (s *State) Pending() bool { return s.value == nil && s.raw != nil }

// Value returns the live value, or nil when the slot is empty or pending.
func (s *State) Value() any { return s.value }

// Set stores a live value, dropping anything detached.
func (s *State) Set(v any) {
	s.value = v
	s.raw = nil
}

// Reset empties the slot so the module reinitializes on its next frame.
func (s *State) Reset() {
	s.value = nil
	s.raw = nil
}

// Load adopts a detached value by decoding it into dst, which must be a
// pointer. It returns false without error when nothing is pending. A decode
// failure discards the detached value and returns ErrIncompatibleState.
func (s *State) Load(dst any) (bool, error) {
	if s.raw == nil {
		return false, nil
	}
	raw := s.raw
	s.raw = nil
	if err := cbor.Unmarshal(raw, dst); err != nil {
		s.value = nil
		s.discardErr = fmt.Errorf("%w: %v", ErrIncompatibleState, err)
		return false, s.discardErr
	}
	s.value = dst
	return true, nil
}

// TakeDiscard returns the error of a detached value that Load dropped since
// the last call, and clears it. A module emptying the slot with Reset is not
// a discard.
func (s *State) TakeDiscard() error {
	err := s.discardErr
	s.discardErr = nil
	return err
}

// Encode returns the canonical encoding of the slot contents: the live value
// when there is one, otherwise the detached bytes. An empty slot encodes as
// nil.
func (s *State) Encode() ([]byte, error) {
	if s.value == nil {
		return bytes.Clone(s.raw), nil
	}
	b, err := stateEncMode.Marshal(s.value)
	if err != nil {
		return nil, fmt.Errorf("frame: encode state: %w", err)
	}
	return b, nil
}

// Detach converts a live value into its encoded form so it survives a module
// swap. If the value cannot be encoded the slot is emptied and the error is
// returned.
func (s *State) Detach() error {
	if s.value == nil {
		return nil
	}
	raw, err := s.Encode()
	if err != nil {
		s.Reset()
		return err
	}
	s.value = nil
	s.raw = raw
	return nil
}

// Restore replaces the slot with a previously encoded value. A nil or empty
// encoding leaves the slot empty.
func (s *State) Restore(raw []byte) {
	s.value = nil
	s.discardErr = nil
	if len(raw) == 0 {
		s.raw = nil
		return
	}
	s.raw = bytes.Clone(raw)
}

// Adopt returns the live *T in s, adopting a detached value when needed. It
// returns nil when the slot is empty or the detached value was incompatible.
func Adopt[T any](s *State) (*T, error) {
	if v, ok := s.value.(*T); ok {
		return v, nil
	}
	if s.value != nil {
		// A live value of another type belongs to an older module build.
		if err := s.Detach(); err != nil {
			return nil, err
		}
	}
	v := new(T)
	ok, err := s.Load(v)
	if !ok {
		return nil, err
	}
	return v, nil
}
