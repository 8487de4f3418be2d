package frame

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
)

func TestNewInputSetNormalizes(t *testing.T) {
	s := NewInputSet(KeySpace, KeyRight, KeySpace, KeyA)
	want := InputSet{KeySpace, KeyA, KeyRight}
	if !s.Equal(want) {
		t.Errorf("Expected %v, got %v", want, s)
	}
	if !s.Contains(KeyRight) || s.Contains(KeyLeft) {
		t.Errorf("Unexpected membership in %v", s)
	}
	if got := s.String(); got != "{Space, A, Right}" {
		t.Errorf("Unexpected string %q", got)
	}
	if len(NewInputSet()) != 0 {
		t.Error("Expected empty set")
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want Key
	}{
		{"right", KeyRight},
		{"RIGHT", KeyRight},
		{"space", KeySpace},
		{"q", KeyQ},
		{"Z", KeyZ},
		{"7", Key0 + 7},
		{"262", KeyRight},
	}
	for _, tt := range tests {
		got, err := ParseKey(tt.in)
		if err != nil {
			t.Errorf("ParseKey(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseKey("hyperspace"); err == nil {
		t.Error("Expected error for unknown key")
	}
}

func TestParseInputScript(t *testing.T) {
	frames, err := ParseInputScript("; right ;right;;space")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []InputSet{
		{},
		{KeyRight},
		{KeyRight},
		{},
		{KeySpace},
	}
	if len(frames) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(frames))
	}
	for i := range want {
		if !frames[i].Equal(want[i]) {
			t.Errorf("Frame %d: expected %v, got %v", i, want[i], frames[i])
		}
	}

	if _, err := ParseInputScript("right;bogus"); err == nil || !strings.Contains(err.Error(), "frame 1") {
		t.Errorf("Expected error naming frame 1, got %v", err)
	}
}

func TestContextFailFirstWins(t *testing.T) {
	ctx := &Context{}
	if ctx.Failed() {
		t.Fatal("Fresh context must not be failed")
	}
	first := errors.New("first")
	ctx.Fail(first)
	ctx.Failf("second %d", 2)
	if ctx.Err != first {
		t.Errorf("Expected first error to win, got %v", ctx.Err)
	}
}

func TestHostValidate(t *testing.T) {
	var h Host
	err := h.Validate()
	if err == nil {
		t.Fatal("Expected error for empty host table")
	}
	for _, name := range []string{"ClearBackground", "DrawText", "RandomRange"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Expected error to name %s, got %v", name, err)
		}
	}

	full := Host{
		ClearBackground: func(Color) {},
		DrawRectangle:   func(x, y, w, h float32, c Color) {},
		DrawCircle:      func(x, y, r float32, c Color) {},
		IsKeyDown:       func(Key) bool { return false },
		TextMetrics:     func(float32) (uint16, float32, float32) { return 0, 0, 0 },
		DrawText:        func(string, float32, float32, TextParams) {},
		RandomRange:     func(lo, hi float32) float32 { return lo },
	}
	if err := full.Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

type paddleV1 struct {
	Score int
	Ball  [2]float32
	World arena.Handle[[4]float32]
}

type paddleV2 struct {
	Score string
}

func TestStateLifecycle(t *testing.T) {
	var s State
	if !s.Empty() {
		t.Fatal("Expected empty slot")
	}

	v := &paddleV1{Score: 3, Ball: [2]float32{1, 2}, World: arena.FromOffset[[4]float32](32)}
	s.Set(v)
	if s.Value() != v {
		t.Fatal("Expected live value")
	}

	if err := s.Detach(); err != nil {
		t.Fatalf("Unexpected detach error: %v", err)
	}
	if !s.Pending() || s.Value() != nil {
		t.Fatal("Expected detached value to be pending")
	}

	got, err := Adopt[paddleV1](&s)
	if err != nil {
		t.Fatalf("Unexpected adopt error: %v", err)
	}
	if got == v {
		t.Error("Expected a freshly decoded value")
	}
	if got.Score != 3 || got.Ball != v.Ball || got.World.Offset() != 32 {
		t.Errorf("Unexpected adopted value %+v", got)
	}
	if again, _ := Adopt[paddleV1](&s); again != got {
		t.Error("Expected Adopt to return the live value")
	}
}

func TestStateIncompatibleLayoutIsDiscarded(t *testing.T) {
	var s State
	s.Set(&paddleV1{Score: 3})
	if err := s.Detach(); err != nil {
		t.Fatalf("Unexpected detach error: %v", err)
	}

	got, err := Adopt[paddleV2](&s)
	if !errors.Is(err, ErrIncompatibleState) {
		t.Fatalf("Expected ErrIncompatibleState, got %v", err)
	}
	if got != nil {
		t.Error("Expected nil value for incompatible state")
	}
	if !s.Empty() {
		t.Error("Expected slot to be emptied")
	}
}

func TestStateTakeDiscard(t *testing.T) {
	var s State
	s.Set(&paddleV1{Score: 3})
	if err := s.Detach(); err != nil {
		t.Fatalf("Unexpected detach error: %v", err)
	}
	s.Reset()
	if err := s.TakeDiscard(); err != nil {
		t.Errorf("Expected no discard after Reset, got %v", err)
	}

	s.Set(&paddleV1{Score: 3})
	if err := s.Detach(); err != nil {
		t.Fatalf("Unexpected detach error: %v", err)
	}
	if _, err := Adopt[paddleV2](&s); err == nil {
		t.Fatal("Expected incompatible layout to fail")
	}
	if err := s.TakeDiscard(); !errors.Is(err, ErrIncompatibleState) {
		t.Errorf("Expected ErrIncompatibleState, got %v", err)
	}
	if err := s.TakeDiscard(); err != nil {
		t.Errorf("Expected discard to be cleared, got %v", err)
	}
}

func TestStateEncodeIsCanonical(t *testing.T) {
	var a, b State
	a.Set(&paddleV1{Score: 7, Ball: [2]float32{0.5, 1}})
	b.Set(&paddleV1{Score: 7, Ball: [2]float32{0.5, 1}})

	ea, err := a.Encode()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	eb, _ := b.Encode()
	if !bytes.Equal(ea, eb) {
		t.Error("Expected equal values to encode identically")
	}

	var c State
	c.Restore(ea)
	ec, _ := c.Encode()
	if !bytes.Equal(ea, ec) {
		t.Error("Expected restored slot to encode to the same bytes")
	}

	c.Restore(nil)
	if !c.Empty() {
		t.Error("Expected restore of nil to empty the slot")
	}
	if enc, _ := c.Encode(); enc != nil {
		t.Errorf("Expected nil encoding for empty slot, got %x", enc)
	}
}
