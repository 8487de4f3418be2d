// Package compression wraps the zstd codec used for session files and
// journals.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Type defines the compression algorithm to use
type Type int

const (
	// None stores data as is
	None Type = iota
	// Zstd indicates Zstandard compression
	Zstd
)

// zstdMagic is the frame header every zstd stream starts with.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	// encoder and decoder for zstd are reusable and safe for concurrent use
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// String returns the configuration name of the type
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Parse resolves a configuration name. The empty string means None.
func Parse(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("compression: unknown type %q (valid: none, zstd)", s)
	}
}

// IsZstd reports whether b begins with a zstd frame header.
func IsZstd(b []byte) bool {
	return bytes.HasPrefix(b, zstdMagic)
}

// Compress compresses data with the given algorithm
func Compress(data []byte, t Type) []byte {
	if t == None {
		return data
	}
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress reverses Compress
func Decompress(data []byte, t Type) ([]byte, error) {
	if t == None {
		return data, nil
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("compression: zstd decode: %w", err)
	}
	return out, nil
}

// NewWriter returns a writer that compresses data before writing it to w.
// Callers must Close it to flush the final frame; closing does not close w.
func NewWriter(w io.Writer, t Type) (io.WriteCloser, error) {
	if t == None {
		return nopCloser{w}, nil
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("compression: zstd writer: %w", err)
	}
	return enc, nil
}

// NewReader returns a reader that decompresses data read from r.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	if t == None {
		return io.NopCloser(r), nil
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("compression: zstd reader: %w", err)
	}
	return dec.IOReadCloser(), nil
}

// Flush pushes buffered data of a compressed writer downstream without
// ending the stream. Writers that cannot flush are left alone.
func Flush(w io.Writer) error {
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Flush forwards to the wrapped writer when it can flush.
func (n nopCloser) Flush() error { return Flush(n.Writer) }
