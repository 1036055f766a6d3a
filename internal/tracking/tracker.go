package tracking

import "github.com/banshee-data/behavior-cascade/internal/geometry"

// Object is a detection offered to the tracker.
type Object struct {
	ClassID int
	Label   string
	Score   float32
	Box     geometry.Rect
}

// Track is a detection carrying a tracker-assigned identity.
type Track struct {
	// TargetID is the 1-based index of the track within one Update result.
	TargetID int
	// TrackID is stable for the life of the track and never reused.
	TrackID int64

	ClassID int
	Label   string
	Score   float32
	Box     geometry.Rect
}

// Tracker abstracts the association algorithm so the cascade can run
// against a scripted tracker in tests.
type Tracker interface {
	// Update consumes the objects of one pass and returns the tracks that
	// are live after it. Passes must be presented in increasing order; an
	// empty objects slice is a legal pass.
	Update(pass int64, objects []Object) []Track
}

// TrackerConfig holds the ByteTracker parameters.
type TrackerConfig struct {
	TrackThresh float32 // detections at or above are "high"; below are second-round candidates
	HighThresh  float32 // minimum score to start a new track
	MatchThresh float64 // maximum 1-IoU distance accepted in the first round
	MaxAge      int     // passes a lost track is kept before removal
}

// DefaultTrackerConfig returns the production tracker parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		TrackThresh: 0.3,
		HighThresh:  0.6,
		MatchThresh: 0.8,
		MaxAge:      30,
	}
}

// withDefaults fills zero fields from DefaultTrackerConfig.
func (c TrackerConfig) withDefaults() TrackerConfig {
	d := DefaultTrackerConfig()
	if c.TrackThresh <= 0 {
		c.TrackThresh = d.TrackThresh
	}
	if c.HighThresh <= 0 {
		c.HighThresh = d.HighThresh
	}
	if c.MatchThresh <= 0 {
		c.MatchThresh = d.MatchThresh
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	return c
}

// Verify at compile time that *ByteTracker implements Tracker.
var _ Tracker = (*ByteTracker)(nil)
