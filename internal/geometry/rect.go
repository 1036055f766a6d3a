// Package geometry holds the pixel-rectangle helpers shared by the cascade
// stages: crop scaling and clamping, and the overlap measures used by the
// tracker and the cover matcher. Everything here is a pure function.
package geometry

import (
	"image"
	"math"
)

// Rect is an axis-aligned pixel rectangle in top-left/width/height form.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns Width*Height, or 0 for a degenerate rectangle.
func (r Rect) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Empty reports whether r has no positive area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Center returns the rectangle centre in floating point.
func (r Rect) Center() (float64, float64) {
	return float64(r.X) + float64(r.Width)/2, float64(r.Y) + float64(r.Height)/2
}

// Translate shifts r by (dx, dy).
func (r Rect) Translate(dx, dy int) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// FromImage converts an image.Rectangle to a Rect.
func FromImage(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Intersect returns the intersection of a and b. The result is the zero
// Rect when they do not overlap.
func Intersect(a, b Rect) Rect {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.Right(), b.Right())
	y2 := min(a.Bottom(), b.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Clamp restricts r to the frame [0,frameWidth) x [0,frameHeight). The
// result may be empty when r lies entirely outside the frame.
func Clamp(r Rect, frameWidth, frameHeight int) Rect {
	x1 := clampInt(r.X, 0, frameWidth)
	y1 := clampInt(r.Y, 0, frameHeight)
	x2 := clampInt(r.Right(), 0, frameWidth)
	y2 := clampInt(r.Bottom(), 0, frameHeight)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// ScaleCropRect expands box around its centre by scale and clamps the
// result to the frame. When the scaled rectangle has no area after
// clamping, the clamped unscaled box is returned instead, so a degenerate
// upstream box never produces an invalid crop request.
func ScaleCropRect(frameWidth, frameHeight int, box Rect, scale float64) Rect {
	clamped := Clamp(box, frameWidth, frameHeight)
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return clamped
	}

	cx, cy := box.Center()
	w := float64(box.Width) * scale
	h := float64(box.Height) * scale
	scaled := Rect{
		X:      int(math.Round(cx - w/2)),
		Y:      int(math.Round(cy - h/2)),
		Width:  int(math.Round(w)),
		Height: int(math.Round(h)),
	}
	scaled = Clamp(scaled, frameWidth, frameHeight)
	if scaled.Empty() {
		return clamped
	}
	return scaled
}

// OverlapRatio returns area(a ∩ b) / area(b). It answers "how much of b
// lies inside a" and is deliberately asymmetric. Returns 0 when b is empty.
func OverlapRatio(a, b Rect) float64 {
	areaB := b.Area()
	if areaB == 0 {
		return 0
	}
	return float64(Intersect(a, b).Area()) / float64(areaB)
}

// IoU returns the intersection-over-union of a and b.
func IoU(a, b Rect) float64 {
	inter := Intersect(a, b).Area()
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
