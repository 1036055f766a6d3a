package main

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
	"github.com/banshee-data/behavior-cascade/internal/frame/cvframe"
	"github.com/banshee-data/behavior-cascade/internal/security"
)

var (
	boxColor  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	textColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// writeSnapshot saves a copy of f with every event's box and label drawn
// on it. f itself is left untouched.
func writeSnapshot(dir string, f *cvframe.Frame, frameID int64, events []cascade.Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	path, err := security.SnapshotPath(dir, events[0].PipelineID, events[0].Behavior, frameID, "jpg")
	if err != nil {
		return "", err
	}

	src := f.Mat()
	img := src.Clone()
	defer img.Close()

	for _, e := range events {
		gocv.Rectangle(&img, e.Box.Image(), boxColor, 2)
		label := fmt.Sprintf("#%d %s %.2f", e.TrackID, e.Label, e.Score)
		org := image.Pt(e.Box.X, max(e.Box.Y-4, 12))
		gocv.PutText(&img, label, org, gocv.FontHersheySimplex, 0.5, textColor, 1)
	}
	if !gocv.IMWrite(path, img) {
		return "", fmt.Errorf("write snapshot %s failed", path)
	}
	return path, nil
}
