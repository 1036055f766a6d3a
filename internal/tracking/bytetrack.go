package tracking

import (
	"math"
	"sort"

	"github.com/banshee-data/behavior-cascade/internal/geometry"
)

// trackState is the lifecycle of a single track.
type trackState int

const (
	stateTracked trackState = iota // matched on the latest pass
	stateLost                      // unmatched, kept for re-association
	stateRemoved                   // dropped; never returned again
)

const (
	// lowScoreFloor discards detections that cannot even join round two.
	lowScoreFloor = 0.1
	// secondRoundGate and unconfirmedGate are 1-IoU limits for rounds two
	// and three.
	secondRoundGate = 0.5
	unconfirmedGate = 0.7
	// velocitySmoothing weights the newest centre displacement.
	velocitySmoothing = 0.5
)

// strack is one tracker-internal track.
type strack struct {
	id        int64
	state     trackState
	activated bool

	classID int
	label   string
	score   float32
	box     geometry.Rect

	// centre velocity in pixels per pass
	vx, vy float64

	hits      int
	startPass int64
	lastPass  int64
}

// predicted returns the box shifted by the constant-velocity model to pass.
func (s *strack) predicted(pass int64) geometry.Rect {
	dt := float64(pass - s.lastPass)
	if dt <= 0 || (s.vx == 0 && s.vy == 0) {
		return s.box
	}
	return s.box.Translate(int(math.Round(s.vx*dt)), int(math.Round(s.vy*dt)))
}

func (s *strack) observe(obj Object, pass int64) {
	if dt := float64(pass - s.lastPass); dt > 0 {
		ox, oy := s.box.Center()
		nx, ny := obj.Box.Center()
		s.vx = velocitySmoothing*(nx-ox)/dt + (1-velocitySmoothing)*s.vx
		s.vy = velocitySmoothing*(ny-oy)/dt + (1-velocitySmoothing)*s.vy
	}
	s.classID = obj.ClassID
	s.label = obj.Label
	s.score = obj.Score
	s.box = obj.Box
	s.lastPass = pass
	s.hits++
	s.state = stateTracked
}

// ByteTracker is a ByteTrack-style tracker. High-score detections are
// associated first against tracked and lost tracks; low-score detections
// then rescue tracks that would otherwise be lost. Tracks are activated
// on their second hit, except on the very first pass.
type ByteTracker struct {
	cfg    TrackerConfig
	nextID int64
	passes int
	last   int64

	tracked []*strack // stateTracked, activated or not
	lost    []*strack
}

// NewByteTracker creates a tracker. Zero config fields take defaults.
func NewByteTracker(cfg TrackerConfig) *ByteTracker {
	return &ByteTracker{cfg: cfg.withDefaults(), nextID: 1}
}

// Config returns the effective configuration.
func (t *ByteTracker) Config() TrackerConfig { return t.cfg }

// Reset drops every track. Track ids keep increasing across resets.
func (t *ByteTracker) Reset() {
	t.tracked = nil
	t.lost = nil
	t.passes = 0
}

// Update implements Tracker.
func (t *ByteTracker) Update(pass int64, objects []Object) []Track {
	if t.passes > 0 && pass <= t.last {
		opsf("pass %d does not follow pass %d; velocity prediction disabled for this pass", pass, t.last)
	}
	t.passes++
	t.last = pass

	var high, low []Object
	for _, o := range objects {
		switch {
		case o.Score >= t.cfg.TrackThresh:
			high = append(high, o)
		case o.Score > lowScoreFloor:
			low = append(low, o)
		}
	}

	var confirmed, unconfirmed []*strack
	for _, s := range t.tracked {
		if s.activated {
			confirmed = append(confirmed, s)
		} else {
			unconfirmed = append(unconfirmed, s)
		}
	}

	// Round one: high detections against confirmed and lost tracks.
	pool := append(append([]*strack(nil), confirmed...), t.lost...)
	matches, freeTracks, freeHigh := linearAssign(iouCost(pool, high, pass), len(pool), len(high), t.cfg.MatchThresh)
	for _, m := range matches {
		pool[m[0]].observe(high[m[1]], pass)
	}
	tracef("pass %d round1: %d tracks, %d high, %d matched", pass, len(pool), len(high), len(matches))

	// Round two: low detections against tracks still tracked.
	var remaining []*strack
	for _, i := range freeTracks {
		if pool[i].state == stateTracked {
			remaining = append(remaining, pool[i])
		}
	}
	matches, freeRemaining, _ := linearAssign(iouCost(remaining, low, pass), len(remaining), len(low), secondRoundGate)
	for _, m := range matches {
		remaining[m[0]].observe(low[m[1]], pass)
	}
	for _, i := range freeRemaining {
		remaining[i].state = stateLost
	}

	// Round three: tentative tracks against what is left of the high set.
	leftHigh := make([]Object, 0, len(freeHigh))
	for _, j := range freeHigh {
		leftHigh = append(leftHigh, high[j])
	}
	matches, freeUnconfirmed, freeLeft := linearAssign(iouCost(unconfirmed, leftHigh, pass), len(unconfirmed), len(leftHigh), unconfirmedGate)
	for _, m := range matches {
		s := unconfirmed[m[0]]
		s.observe(leftHigh[m[1]], pass)
		s.activated = true
	}
	for _, i := range freeUnconfirmed {
		unconfirmed[i].state = stateRemoved
	}

	for _, j := range freeLeft {
		obj := leftHigh[j]
		if obj.Score < t.cfg.HighThresh {
			continue
		}
		s := &strack{
			id:        t.nextID,
			activated: t.passes == 1,
			startPass: pass,
			lastPass:  pass,
			classID:   obj.ClassID,
			label:     obj.Label,
			score:     obj.Score,
			box:       obj.Box,
			hits:      1,
		}
		t.nextID++
		t.tracked = append(t.tracked, s)
		diagf("pass %d: new track %d %s score=%.2f box=%+v", pass, s.id, s.label, s.score, s.box)
	}

	t.rebuild(pass)
	return t.output()
}

// rebuild sorts tracks into the tracked and lost lists and expires lost
// tracks older than MaxAge.
func (t *ByteTracker) rebuild(pass int64) {
	all := append(append([]*strack(nil), t.tracked...), t.lost...)
	t.tracked = t.tracked[:0]
	t.lost = t.lost[:0]
	for _, s := range all {
		switch s.state {
		case stateTracked:
			t.tracked = append(t.tracked, s)
		case stateLost:
			if pass-s.lastPass > int64(t.cfg.MaxAge) {
				s.state = stateRemoved
				diagf("pass %d: track %d removed after %d passes lost", pass, s.id, pass-s.lastPass)
				continue
			}
			t.lost = append(t.lost, s)
		}
	}
	sort.Slice(t.tracked, func(i, j int) bool { return t.tracked[i].id < t.tracked[j].id })
	sort.Slice(t.lost, func(i, j int) bool { return t.lost[i].id < t.lost[j].id })
}

func (t *ByteTracker) output() []Track {
	var out []Track
	for _, s := range t.tracked {
		if !s.activated {
			continue
		}
		out = append(out, Track{
			TargetID: len(out) + 1,
			TrackID:  s.id,
			ClassID:  s.classID,
			Label:    s.label,
			Score:    s.score,
			Box:      s.box,
		})
	}
	return out
}

// iouCost builds the 1-IoU distance matrix between predicted track boxes
// and detections.
func iouCost(tracks []*strack, objs []Object, pass int64) [][]float64 {
	cost := make([][]float64, len(tracks))
	for i, s := range tracks {
		pred := s.predicted(pass)
		cost[i] = make([]float64, len(objs))
		for j, o := range objs {
			cost[i][j] = 1 - geometry.IoU(pred, o.Box)
		}
	}
	return cost
}
