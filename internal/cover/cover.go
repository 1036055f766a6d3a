// Package cover selects the secondary-stage detections that count as
// evidence of a behavior ("cover objects") for the track they came from.
package cover

import (
	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/geometry"
)

// Candidate is a secondary detection in frame coordinates, stamped with
// the track whose crop produced it.
type Candidate struct {
	detect.Detection
	TrackID int64
	// Context is the originating track's box. A zero Context disables the
	// overlap gate for this candidate.
	Context geometry.Rect
}

// MatchedObject is a candidate accepted by a Filter.
type MatchedObject struct {
	TrackID  int64         `json:"track_id"`
	ClassID  int           `json:"class_id"`
	Label    string        `json:"label"`
	RawLabel string        `json:"raw_label"`
	Score    float32       `json:"score"`
	Box      geometry.Rect `json:"box"`
}

// Filter holds the label sets and overlap gate of one behavior. Empty sets
// mean no filtering; a zero Threshold disables the overlap gate.
type Filter struct {
	Include   []string
	Exclude   []string
	Remap     map[string]string
	Threshold float64
}

// Find returns the candidates that survive the filter, in input order.
// Labels are matched before remapping and the overlap gate sees the
// candidate's original box.
func (f Filter) Find(cands []Candidate) []MatchedObject {
	include := toSet(f.Include)
	exclude := toSet(f.Exclude)

	out := make([]MatchedObject, 0, len(cands))
	for _, c := range cands {
		if _, ok := exclude[c.Label]; ok {
			continue
		}
		if len(include) > 0 {
			if _, ok := include[c.Label]; !ok {
				continue
			}
		}
		if f.Threshold > 0 && !c.Context.Empty() && geometry.OverlapRatio(c.Context, c.Box) < f.Threshold {
			continue
		}
		label := c.Label
		if mapped, ok := f.Remap[label]; ok {
			label = mapped
		}
		out = append(out, MatchedObject{
			TrackID:  c.TrackID,
			ClassID:  c.ClassID,
			Label:    label,
			RawLabel: c.Label,
			Score:    c.Score,
			Box:      c.Box,
		})
	}
	return out
}

// FindCoverObjects is Filter{...}.Find in one call.
func FindCoverObjects(cands []Candidate, include, exclude []string, remap map[string]string, threshold float64) []MatchedObject {
	return Filter{Include: include, Exclude: exclude, Remap: remap, Threshold: threshold}.Find(cands)
}

func toSet(labels []string) map[string]struct{} {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		set[l] = struct{}{}
	}
	return set
}
