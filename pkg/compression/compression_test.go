package compression

import (
	"bytes"
	"io"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	// Arena snapshots are mostly zero, which is the case that matters.
	data := make([]byte, 64*1024)
	copy(data[100:], []byte("simulation state"))

	compressed := Compress(data, Zstd)
	if len(compressed) >= len(data) {
		t.Errorf("Expected zero-heavy data to shrink, got %d of %d bytes", len(compressed), len(data))
	}
	if !IsZstd(compressed) {
		t.Error("Expected zstd frame header")
	}

	decompressed, err := Decompress(compressed, Zstd)
	if err != nil {
		t.Fatalf("Failed to decompress data: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Fatal("Decompressed data does not match original")
	}
}

func TestNoneIsPassthrough(t *testing.T) {
	data := []byte("plain")
	if got := Compress(data, None); !bytes.Equal(got, data) {
		t.Errorf("Expected passthrough, got %q", got)
	}
	if IsZstd(data) {
		t.Error("Plain data must not look like zstd")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Zstd)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	payload := bytes.Repeat([]byte("frame "), 1000)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := Flush(w); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	r, err := NewReader(&buf, Zstd)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("Stream round trip mismatch")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"zstd", Zstd, false},
		{"gzip", None, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Zstd.String() != "zstd" {
		t.Errorf("Unexpected name %q", Zstd.String())
	}
}
