package cascade

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/behavior-cascade/internal/cover"
	"github.com/banshee-data/behavior-cascade/internal/sequence"
	"github.com/banshee-data/behavior-cascade/internal/tracking"
)

// Behavior names of the built-in profiles.
const (
	BehaviorPerson     = "person"
	BehaviorPersonMisc = "person_misc"
	BehaviorPlayPhone  = "play_phone"
	BehaviorSmoke      = "smoke"
)

// Profile parameterises the cascade for one behavior.
type Profile struct {
	Behavior string

	// Stages is the number of models LoadModels expects: 1 runs the
	// primary detector only, 2 adds the per-track secondary detector.
	Stages int

	Include        []string
	Exclude        []string
	Remap          map[string]string
	CoverThreshold float64

	Statistics sequence.Config
	Tracker    tracking.TrackerConfig

	// CropWorkers bounds concurrent secondary inferences per pass.
	CropWorkers int
}

// Filter returns the cover filter for the profile.
func (p Profile) Filter() cover.Filter {
	return cover.Filter{
		Include:   p.Include,
		Exclude:   p.Exclude,
		Remap:     p.Remap,
		Threshold: p.CoverThreshold,
	}
}

// Validate reports every problem with the profile.
func (p Profile) Validate() error {
	var errs []error
	if p.Behavior == "" {
		errs = append(errs, errors.New("behavior name is empty"))
	}
	if p.Stages != 1 && p.Stages != 2 {
		errs = append(errs, fmt.Errorf("stages must be 1 or 2, got %d", p.Stages))
	}
	if p.CoverThreshold < 0 || p.CoverThreshold > 1 {
		errs = append(errs, fmt.Errorf("cover threshold must be in [0,1], got %g", p.CoverThreshold))
	}
	if p.CropWorkers < 0 {
		errs = append(errs, fmt.Errorf("crop workers must be >= 0, got %d", p.CropWorkers))
	}
	if err := p.Statistics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("statistics: %w", err))
	}
	return errors.Join(errs...)
}

func (p Profile) cropWorkers() int {
	if p.CropWorkers <= 0 {
		return 1
	}
	return p.CropWorkers
}

var presets = map[string]Profile{
	BehaviorPerson: {
		Behavior:   BehaviorPerson,
		Stages:     1,
		Include:    []string{"person"},
		Statistics: sequence.DefaultConfig(),
		Tracker:    tracking.DefaultTrackerConfig(),
	},
	BehaviorPersonMisc: {
		Behavior: BehaviorPersonMisc,
		Stages:   2,
		Include:  []string{"foreign_matter1", "foreign_matter2", "foreign_matter3"},
		Remap: map[string]string{
			"foreign_matter1": "foreign_matter",
			"foreign_matter2": "foreign_matter",
			"foreign_matter3": "foreign_matter",
		},
		Statistics:  sequence.DefaultConfig(),
		Tracker:     tracking.DefaultTrackerConfig(),
		CropWorkers: 2,
	},
	BehaviorPlayPhone: {
		Behavior:    BehaviorPlayPhone,
		Stages:      2,
		Include:     []string{"phone"},
		Remap:       map[string]string{"phone": BehaviorPlayPhone},
		Statistics:  sequence.DefaultConfig(),
		Tracker:     tracking.DefaultTrackerConfig(),
		CropWorkers: 2,
	},
	BehaviorSmoke: {
		Behavior:    BehaviorSmoke,
		Stages:      2,
		Include:     []string{"cigarette", "smoke"},
		Remap:       map[string]string{"cigarette": BehaviorSmoke},
		Statistics:  sequence.DefaultConfig(),
		Tracker:     tracking.DefaultTrackerConfig(),
		CropWorkers: 2,
	},
}

// ProfileFor returns a copy of the built-in profile for behavior.
func ProfileFor(behavior string) (Profile, error) {
	p, ok := presets[behavior]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown behavior %q", ErrConfiguration, behavior)
	}
	p.Include = append([]string(nil), p.Include...)
	p.Exclude = append([]string(nil), p.Exclude...)
	if p.Remap != nil {
		remap := make(map[string]string, len(p.Remap))
		for k, v := range p.Remap {
			remap[k] = v
		}
		p.Remap = remap
	}
	return p, nil
}

// Behaviors lists the built-in profile names in sorted order.
func Behaviors() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
