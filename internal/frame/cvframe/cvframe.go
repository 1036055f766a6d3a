// Package cvframe backs frame.Frame with an OpenCV Mat.
package cvframe

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/behavior-cascade/internal/frame"
	"github.com/banshee-data/behavior-cascade/internal/geometry"
)

// Frame owns a Mat. Close releases it.
type Frame struct {
	mat gocv.Mat
}

// New takes ownership of mat.
func New(mat gocv.Mat) *Frame {
	return &Frame{mat: mat}
}

// Mat returns the underlying Mat. It stays owned by the Frame.
func (f *Frame) Mat() gocv.Mat { return f.mat }

func (f *Frame) Width() int    { return f.mat.Cols() }
func (f *Frame) Height() int   { return f.mat.Rows() }
func (f *Frame) Channels() int { return f.mat.Channels() }

// Crop clones the region so the result outlives f.
func (f *Frame) Crop(r geometry.Rect) (frame.Frame, error) {
	r = geometry.Clamp(r, f.Width(), f.Height())
	if r.Empty() {
		return nil, fmt.Errorf("crop %+v of %dx%d mat: %w", r, f.Width(), f.Height(), frame.ErrEmptyCrop)
	}
	region := f.mat.Region(r.Image())
	defer region.Close()
	return &Frame{mat: region.Clone()}, nil
}

func (f *Frame) Close() error {
	return f.mat.Close()
}
