// Package frame is the image contract the cascade works against. A Frame
// is read-only to the pipeline; Crop always produces an independent copy
// that the caller owns and must Close.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/banshee-data/behavior-cascade/internal/geometry"
)

// ErrEmptyCrop is returned when a crop rectangle has no area inside the frame.
var ErrEmptyCrop = errors.New("frame: empty crop")

// Frame is a decoded image.
type Frame interface {
	Width() int
	Height() int
	Channels() int
	// Crop copies r (frame coordinates) into a new Frame whose origin is r's
	// top-left corner.
	Crop(r geometry.Rect) (Frame, error)
	Close() error
}

// ImageFrame adapts an image.Image. Coordinates are relative to the image
// bounds' minimum point.
type ImageFrame struct {
	img image.Image
}

// FromImage wraps img. img must not be modified while the frame is in use.
func FromImage(img image.Image) *ImageFrame {
	return &ImageFrame{img: img}
}

// Image returns the wrapped image.
func (f *ImageFrame) Image() image.Image { return f.img }

func (f *ImageFrame) Width() int  { return f.img.Bounds().Dx() }
func (f *ImageFrame) Height() int { return f.img.Bounds().Dy() }

func (f *ImageFrame) Channels() int {
	switch f.img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return 4
	default:
		return 3
	}
}

func (f *ImageFrame) Crop(r geometry.Rect) (Frame, error) {
	r = geometry.Clamp(r, f.Width(), f.Height())
	if r.Empty() {
		return nil, fmt.Errorf("crop %+v of %dx%d frame: %w", r, f.Width(), f.Height(), ErrEmptyCrop)
	}
	origin := f.img.Bounds().Min
	src := r.Image().Add(origin)
	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(dst, dst.Bounds(), f.img, src.Min, draw.Src)
	return &ImageFrame{img: dst}, nil
}

func (f *ImageFrame) Close() error { return nil }
