package geometry

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleCropRect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		w, h  int
		box   Rect
		scale float64
		want  Rect
	}{
		{
			name:  "centre preserving expansion",
			w:     1000, h: 1000,
			box:   Rect{X: 100, Y: 100, Width: 100, Height: 200},
			scale: 1.2,
			want:  Rect{X: 90, Y: 80, Width: 120, Height: 240},
		},
		{
			name:  "unit scale is identity inside frame",
			w:     640, h: 480,
			box:   Rect{X: 10, Y: 20, Width: 30, Height: 40},
			scale: 1.0,
			want:  Rect{X: 10, Y: 20, Width: 30, Height: 40},
		},
		{
			name:  "clamped at the top-left corner",
			w:     640, h: 480,
			box:   Rect{X: 0, Y: 0, Width: 100, Height: 100},
			scale: 2.0,
			want:  Rect{X: 0, Y: 0, Width: 150, Height: 150},
		},
		{
			name:  "clamped at the bottom-right corner",
			w:     640, h: 480,
			box:   Rect{X: 600, Y: 440, Width: 40, Height: 40},
			scale: 2.0,
			want:  Rect{X: 580, Y: 420, Width: 60, Height: 60},
		},
		{
			name:  "shrink to nothing falls back to clamped box",
			w:     640, h: 480,
			box:   Rect{X: 10, Y: 10, Width: 1, Height: 1},
			scale: 0.1,
			want:  Rect{X: 10, Y: 10, Width: 1, Height: 1},
		},
		{
			name:  "non-positive scale falls back to clamped box",
			w:     640, h: 480,
			box:   Rect{X: -10, Y: 10, Width: 50, Height: 50},
			scale: 0,
			want:  Rect{X: 0, Y: 10, Width: 40, Height: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ScaleCropRect(tt.w, tt.h, tt.box, tt.scale)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScaleCropRectStaysInFrame(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 5000; i++ {
		w := 1 + rng.IntN(1920)
		h := 1 + rng.IntN(1080)
		box := Rect{
			X:      rng.IntN(2*w) - w/2,
			Y:      rng.IntN(2*h) - h/2,
			Width:  rng.IntN(w) - 5,
			Height: rng.IntN(h) - 5,
		}
		scale := rng.Float64() * 3

		got := ScaleCropRect(w, h, box, scale)
		clamped := Clamp(box, w, h)
		if got == clamped {
			continue
		}
		require.Positive(t, got.Area(), "box=%+v scale=%f frame=%dx%d", box, scale, w, h)
		require.GreaterOrEqual(t, got.X, 0)
		require.GreaterOrEqual(t, got.Y, 0)
		require.LessOrEqual(t, got.Right(), w)
		require.LessOrEqual(t, got.Bottom(), h)
	}
}

func TestOverlapRatioIsAsymmetric(t *testing.T) {
	t.Parallel()

	outer := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	inner := Rect{X: 10, Y: 10, Width: 10, Height: 10}

	assert.InDelta(t, 1.0, OverlapRatio(outer, inner), 1e-9)
	assert.InDelta(t, 0.01, OverlapRatio(inner, outer), 1e-9)
	assert.Zero(t, OverlapRatio(outer, Rect{X: 200, Y: 200, Width: 5, Height: 5}))
	assert.Zero(t, OverlapRatio(outer, Rect{X: 10, Y: 10}))
}

func TestIoU(t *testing.T) {
	t.Parallel()

	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	b := Rect{X: 5, Y: 0, Width: 10, Height: 10}
	assert.InDelta(t, 50.0/150.0, IoU(a, b), 1e-9)
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Zero(t, IoU(a, Rect{X: 20, Y: 20, Width: 1, Height: 1}))
}

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Rect{X: 0, Y: 0, Width: 5, Height: 5}, Clamp(Rect{X: -5, Y: -5, Width: 10, Height: 10}, 100, 100))
	assert.True(t, Clamp(Rect{X: 200, Y: 200, Width: 10, Height: 10}, 100, 100).Empty())
}
