// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Scale returns the extent multiplied by the given factors, rounded to the nearest pixel.
// Each dimension is clamped to at least 1 so a scaled extent is always allocatable.
//
// Parameters:
//   - sx: horizontal scale factor
//   - sy: vertical scale factor
//
// Returns:
//   - Extent2D: the scaled extent
func (e Extent2D) Scale(sx, sy float32) Extent2D {
	w := uint32(float32(e.Width)*sx + 0.5)
	h := uint32(float32(e.Height)*sy + 0.5)
	return Extent2D{Width: max(w, 1), Height: max(h, 1)}
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Rect is an integer rectangle, used for UI clip rects and scissors.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// Clamp intersects the rect with the extent starting at the origin.
//
// Parameters:
//   - e: the bounding extent
//
// Returns:
//   - Rect: the clamped rect, possibly empty
func (r Rect) Clamp(e Extent2D) Rect {
	x0 := max(r.X, 0)
	y0 := max(r.Y, 0)
	x1 := min(int64(r.X)+int64(r.Width), int64(e.Width))
	y1 := min(int64(r.Y)+int64(r.Height), int64(e.Height))
	if x1 <= int64(x0) || y1 <= int64(y0) {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, Width: uint32(x1 - int64(x0)), Height: uint32(y1 - int64(y0))}
}

// Empty reports whether the rect covers no pixels.
func (r Rect) Empty() bool {
	return r.Width == 0 || r.Height == 0
}
