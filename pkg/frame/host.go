package frame

import (
	"errors"
	"fmt"
)

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

var (
	Black   = Color{0, 0, 0, 1}
	White   = Color{1, 1, 1, 1}
	Red     = Color{0.9, 0.16, 0.22, 1}
	Yellow  = Color{0.99, 0.98, 0, 1}
	SkyBlue = Color{0.4, 0.75, 1, 1}
	Blank   = Color{}
)

// TextParams controls how DrawText lays out a string.
type TextParams struct {
	FontSize        uint16
	FontScale       float32
	FontScaleAspect float32
	Color           Color
}

// Host is the table of host-provided functions handed to the module every
// frame. The module never links a rendering or input backend itself.
type Host struct {
	ClearBackground func(c Color)
	DrawRectangle   func(x, y, w, h float32, c Color)
	DrawCircle      func(x, y, r float32, c Color)
	IsKeyDown       func(k Key) bool

	// TextMetrics returns the font size, scale and aspect that render text
	// at the given world scale.
	TextMetrics func(scale float32) (fontSize uint16, fontScale, aspect float32)
	DrawText    func(text string, x, y float32, p TextParams)

	// RandomRange returns a value in [lo, hi). Hosts that support replay
	// back it with a source whose state is captured by sessions.
	RandomRange func(lo, hi float32) float32
}

// Validate reports every missing entry of the table.
func (h *Host) Validate() error {
	if h == nil {
		return errors.New("frame: nil host table")
	}
	var errs []error
	check := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("frame: host table missing %s", name))
		}
	}
	check("ClearBackground", h.ClearBackground != nil)
	check("DrawRectangle", h.DrawRectangle != nil)
	check("DrawCircle", h.DrawCircle != nil)
	check("IsKeyDown", h.IsKeyDown != nil)
	check("TextMetrics", h.TextMetrics != nil)
	check("DrawText", h.DrawText != nil)
	check("RandomRange", h.RandomRange != nil)
	return errors.Join(errs...)
}
