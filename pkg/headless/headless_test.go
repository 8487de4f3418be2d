package headless

import (
	"context"
	"strings"
	"testing"

	"github.com/willibrandon/ChronoLoop/pkg/frame"
)

func TestCanvasRecordsFrame(t *testing.T) {
	c := NewCanvas(NewRandom(1))
	host := c.Host()
	if err := host.Validate(); err != nil {
		t.Fatalf("Expected a complete host table, got %v", err)
	}

	host.ClearBackground(frame.Black)
	host.DrawRectangle(1, 2, 3, 4, frame.Yellow)
	host.DrawCircle(5, 6, 0.2, frame.Red)
	size, scale, aspect := host.TextMetrics(1)
	host.DrawText("Press space to start", 5, 10, frame.TextParams{FontSize: size, FontScale: scale, FontScaleAspect: aspect})

	cmds := c.Commands()
	if len(cmds) != 4 {
		t.Fatalf("Expected 4 commands, got %d", len(cmds))
	}
	wantOps := []Op{OpClear, OpRectangle, OpCircle, OpText}
	for i, op := range wantOps {
		if cmds[i].Op != op {
			t.Errorf("Command %d: expected %v, got %v", i, op, cmds[i].Op)
		}
	}
	if cmds[1].W != 3 || cmds[1].Color != frame.Yellow {
		t.Errorf("Unexpected rectangle %+v", cmds[1])
	}
	if !strings.Contains(c.Dump(), `"Press space to start"`) {
		t.Errorf("Expected text in dump, got %q", c.Dump())
	}

	// Clearing starts the next frame
	host.ClearBackground(frame.SkyBlue)
	if len(c.Commands()) != 1 || c.Commands()[0].Color != frame.SkyBlue {
		t.Errorf("Expected a fresh command list, got %v", c.Commands())
	}
}

func TestCanvasKeysAndPresent(t *testing.T) {
	c := NewCanvas(nil)
	host := c.Host()

	c.SetKeys(frame.NewInputSet(frame.KeyRight))
	if !host.IsKeyDown(frame.KeyRight) || host.IsKeyDown(frame.KeyLeft) {
		t.Error("Expected IsKeyDown to follow the frame input")
	}

	var presented []int
	c.OnPresent = func(n int, cmds []Command) error {
		presented = append(presented, n)
		return nil
	}
	for i := 0; i < 3; i++ {
		if err := c.Present(context.Background()); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if c.Frames() != 3 || len(presented) != 3 || presented[2] != 2 {
		t.Errorf("Expected 3 presented frames, got %d (%v)", c.Frames(), presented)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Present(ctx); err == nil {
		t.Error("Expected cancelled context to stop presentation")
	}
}

func TestRandomStateRoundTrip(t *testing.T) {
	r := NewRandom(7)
	for i := 0; i < 5; i++ {
		r.Range(0, 1)
	}

	state, err := r.MarshalBinary()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var want []float32
	for i := 0; i < 10; i++ {
		want = append(want, r.Range(2, 4))
	}

	if err := r.UnmarshalBinary(state); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, w := range want {
		got := r.Range(2, 4)
		if got != w {
			t.Errorf("Draw %d: expected %v, got %v", i, w, got)
		}
		if got < 2 || got >= 4 {
			t.Errorf("Draw %d: %v outside [2, 4)", i, got)
		}
	}

	if NewRandom(7).Uint64() != NewRandom(7).Uint64() {
		t.Error("Expected equal seeds to produce equal sequences")
	}
	if r.Range(3, 3) != 3 || r.Range(5, 1) != 5 {
		t.Error("Expected empty ranges to return lo")
	}
}

func TestScript(t *testing.T) {
	s, err := ParseScript("right;;space")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Expected 3 frames, got %d", s.Len())
	}
	want := []frame.InputSet{
		frame.NewInputSet(frame.KeyRight),
		frame.NewInputSet(),
		frame.NewInputSet(frame.KeySpace),
		frame.NewInputSet(),
	}
	for i, w := range want {
		if got := s.Poll(); !got.Equal(w) {
			t.Errorf("Poll %d: expected %v, got %v", i, w, got)
		}
	}
	if !s.Done() {
		t.Error("Expected script to be done")
	}

	if _, err := ParseScript("right;warp"); err == nil {
		t.Error("Expected error for unknown key")
	}
}
