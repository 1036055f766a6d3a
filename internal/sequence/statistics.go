// Package sequence turns per-pass cover objects into confirmed events by
// temporal voting over a sliding window of passes per track.
//
// A track's window holds one hit/miss observation for every pass in which
// the track was live. The hit ratio is hits divided by the full Interval,
// so a partially filled window confirms only once it already holds enough
// hits to satisfy the threshold over a full window. Confirmation is
// edge-triggered: a track confirms once and re-arms only after its ratio
// falls below the threshold.
package sequence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/behavior-cascade/internal/cover"
	"github.com/banshee-data/behavior-cascade/internal/timeutil"
)

// Config controls the voting window.
type Config struct {
	// Interval is the window length in passes.
	Interval int `json:"interval" yaml:"interval"`
	// Threshold is the hit ratio in (0,1] at which a track confirms.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// Inactivity is how many passes a track may go unseen before its
	// window is discarded.
	Inactivity int `json:"inactivity" yaml:"inactivity"`
}

// DefaultConfig returns the production window parameters.
func DefaultConfig() Config {
	return Config{Interval: 10, Threshold: 0.5, Inactivity: 30}
}

// Validate reports an invalid window.
func (c Config) Validate() error {
	var errs []error
	if c.Interval < 1 {
		errs = append(errs, fmt.Errorf("interval must be >= 1, got %d", c.Interval))
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be in (0,1], got %g", c.Threshold))
	}
	if c.Inactivity < 1 {
		errs = append(errs, fmt.Errorf("inactivity must be >= 1, got %d", c.Inactivity))
	}
	return errors.Join(errs...)
}

// ConfirmedEvent reports a track whose behavior passed the vote.
type ConfirmedEvent struct {
	ID string `json:"id"`
	cover.MatchedObject
	Pass        int64     `json:"pass"`
	Hits        int       `json:"hits"`
	HitRatio    float64   `json:"hit_ratio"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type observation struct {
	pass int64
	hit  bool
}

type trackWindow struct {
	obs      []observation
	lastSeen int64
	latched  bool
}

// Statistics holds the per-track windows. It is not safe for concurrent
// use.
type Statistics struct {
	cfg   Config
	clock timeutil.Clock

	windows map[int64]*trackWindow
	last    int64
	started bool
	votes   []float64
}

// Option configures a Statistics.
type Option func(*Statistics)

// WithClock sets the clock used for ConfirmedAt.
func WithClock(c timeutil.Clock) Option {
	return func(s *Statistics) { s.clock = c }
}

// New creates an engine. cfg must be valid.
func New(cfg Config, opts ...Option) (*Statistics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sequence config: %w", err)
	}
	s := &Statistics{
		cfg:     cfg,
		clock:   timeutil.RealClock{},
		windows: make(map[int64]*trackWindow),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the window parameters.
func (s *Statistics) Config() Config { return s.cfg }

// Tracked returns the number of tracks holding a window.
func (s *Statistics) Tracked() int { return len(s.windows) }

// Reset discards every window.
func (s *Statistics) Reset() {
	s.windows = make(map[int64]*trackWindow)
	s.started = false
	s.last = 0
}

// Update records one pass. live lists the tracks the tracker reported for
// the pass; tracks in matched count as live too. Events are returned in
// ascending track id order. A pass lower than the previous one is
// rejected with a nil result and no state change; repeating the previous
// pass merges its hits into that pass.
func (s *Statistics) Update(pass int64, live []int64, matched []cover.MatchedObject) []ConfirmedEvent {
	if s.started && pass < s.last {
		opsf("rejecting pass %d: already at pass %d", pass, s.last)
		return nil
	}
	s.started = true
	s.last = pass

	best := make(map[int64]cover.MatchedObject, len(matched))
	for _, m := range matched {
		if cur, ok := best[m.TrackID]; !ok || m.Score > cur.Score {
			best[m.TrackID] = m
		}
	}
	seen := make(map[int64]bool, len(live)+len(best))
	for _, id := range live {
		seen[id] = true
	}
	for id := range best {
		seen[id] = true
		if _, ok := s.windows[id]; !ok {
			s.windows[id] = &trackWindow{}
			diagf("pass %d: window opened for track %d", pass, id)
		}
	}

	ids := make([]int64, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var events []ConfirmedEvent
	for _, id := range ids {
		w := s.windows[id]
		if !seen[id] {
			if pass-w.lastSeen > int64(s.cfg.Inactivity) {
				delete(s.windows, id)
				diagf("pass %d: window for track %d evicted after %d passes unseen", pass, id, pass-w.lastSeen)
			}
			continue
		}

		obj, hit := best[id]
		w.record(pass, hit)
		w.evict(pass - int64(s.cfg.Interval))

		hits, ratio := s.ratio(w)
		tracef("pass %d track %d hit=%t hits=%d ratio=%.3f latched=%t", pass, id, hit, hits, ratio, w.latched)

		if ratio < s.cfg.Threshold {
			w.latched = false
			continue
		}
		if w.latched || !hit {
			continue
		}
		w.latched = true
		events = append(events, ConfirmedEvent{
			ID:            uuid.NewString(),
			MatchedObject: obj,
			Pass:          pass,
			Hits:          hits,
			HitRatio:      ratio,
			ConfirmedAt:   s.clock.Now(),
		})
	}
	return events
}

// ratio returns the hit count and hit ratio over a full Interval.
func (s *Statistics) ratio(w *trackWindow) (int, float64) {
	if len(s.votes) != s.cfg.Interval {
		s.votes = make([]float64, s.cfg.Interval)
	}
	votes := s.votes
	clear(votes)
	hits := 0
	for _, o := range w.obs {
		if o.hit && hits < len(votes) {
			votes[hits] = 1
			hits++
		}
	}
	return hits, stat.Mean(votes, nil)
}

func (w *trackWindow) record(pass int64, hit bool) {
	w.lastSeen = pass
	if n := len(w.obs); n > 0 && w.obs[n-1].pass == pass {
		w.obs[n-1].hit = w.obs[n-1].hit || hit
		return
	}
	w.obs = append(w.obs, observation{pass: pass, hit: hit})
}

// evict drops observations at or before oldest.
func (w *trackWindow) evict(oldest int64) {
	i := 0
	for i < len(w.obs) && w.obs[i].pass <= oldest {
		i++
	}
	if i > 0 {
		w.obs = append(w.obs[:0], w.obs[i:]...)
	}
}
