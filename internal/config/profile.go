package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/sequence"
	"github.com/banshee-data/behavior-cascade/internal/tracking"
)

// maxFileSize caps profile files at 1MB.
const maxFileSize = 1 * 1024 * 1024

// ProfileConfig is the on-disk description of one behavior pipeline. The
// behavior selects a built-in profile; every other field overrides it.
// Omitted label lists keep the built-in lists, while an explicit empty
// list clears them.
type ProfileConfig struct {
	Behavior string               `json:"behavior" yaml:"behavior"`
	Models   []detect.ModelConfig `json:"models" yaml:"models"`

	Include        []string          `json:"include_labels,omitempty" yaml:"include_labels,omitempty"`
	Exclude        []string          `json:"exclude_labels,omitempty" yaml:"exclude_labels,omitempty"`
	Remap          map[string]string `json:"map_label,omitempty" yaml:"map_label,omitempty"`
	CoverThreshold *float64          `json:"cover_threshold,omitempty" yaml:"cover_threshold,omitempty"`

	// Statistics params
	StatisticsInterval   *int     `json:"statistics_interval,omitempty" yaml:"statistics_interval,omitempty"`
	StatisticsThreshold  *float64 `json:"statistics_threshold,omitempty" yaml:"statistics_threshold,omitempty"`
	StatisticsInactivity *int     `json:"statistics_inactivity,omitempty" yaml:"statistics_inactivity,omitempty"`

	// Tracker params
	TrackThresh *float64 `json:"track_thresh,omitempty" yaml:"track_thresh,omitempty"`
	HighThresh  *float64 `json:"high_thresh,omitempty" yaml:"high_thresh,omitempty"`
	MatchThresh *float64 `json:"match_thresh,omitempty" yaml:"match_thresh,omitempty"`
	MaxAge      *int     `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	CropWorkers *int `json:"crop_workers,omitempty" yaml:"crop_workers,omitempty"`
}

// LoadProfileConfig reads a .json, .yaml or .yml profile file and
// validates it.
func LoadProfileConfig(path string) (*ProfileConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseProfileConfig(data, ext)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseProfileConfig decodes data in the format named by ext and
// validates the result.
func ParseProfileConfig(data []byte, ext string) (*ProfileConfig, error) {
	cfg := &ProfileConfig{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the overrides and that the result is a usable profile
// with the right number of models.
func (c *ProfileConfig) Validate() error {
	if _, err := cascade.ProfileFor(c.Behavior); err != nil {
		return fmt.Errorf("behavior: %w", err)
	}
	var errs []error
	if c.TrackThresh != nil && (*c.TrackThresh <= 0 || *c.TrackThresh > 1) {
		errs = append(errs, fmt.Errorf("track_thresh must be in (0,1], got %f", *c.TrackThresh))
	}
	if c.HighThresh != nil && (*c.HighThresh <= 0 || *c.HighThresh > 1) {
		errs = append(errs, fmt.Errorf("high_thresh must be in (0,1], got %f", *c.HighThresh))
	}
	if c.MatchThresh != nil && (*c.MatchThresh <= 0 || *c.MatchThresh > 1) {
		errs = append(errs, fmt.Errorf("match_thresh must be in (0,1], got %f", *c.MatchThresh))
	}
	if c.MaxAge != nil && *c.MaxAge < 1 {
		errs = append(errs, fmt.Errorf("max_age must be positive, got %d", *c.MaxAge))
	}

	p := c.ToProfile()
	if err := p.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Models) != p.Stages {
		errs = append(errs, fmt.Errorf("behavior %q needs %d model(s), got %d", c.Behavior, p.Stages, len(c.Models)))
	}
	return errors.Join(errs...)
}

func (c *ProfileConfig) preset() cascade.Profile {
	p, err := cascade.ProfileFor(c.Behavior)
	if err != nil {
		return cascade.Profile{
			Behavior:   c.Behavior,
			Statistics: sequence.DefaultConfig(),
			Tracker:    tracking.DefaultTrackerConfig(),
		}
	}
	return p
}

// GetStatistics returns the voting window with overrides applied.
func (c *ProfileConfig) GetStatistics() sequence.Config {
	s := c.preset().Statistics
	if c.StatisticsInterval != nil {
		s.Interval = *c.StatisticsInterval
	}
	if c.StatisticsThreshold != nil {
		s.Threshold = *c.StatisticsThreshold
	}
	if c.StatisticsInactivity != nil {
		s.Inactivity = *c.StatisticsInactivity
	}
	return s
}

// GetTracker returns the tracker parameters with overrides applied.
func (c *ProfileConfig) GetTracker() tracking.TrackerConfig {
	t := c.preset().Tracker
	if c.TrackThresh != nil {
		t.TrackThresh = float32(*c.TrackThresh)
	}
	if c.HighThresh != nil {
		t.HighThresh = float32(*c.HighThresh)
	}
	if c.MatchThresh != nil {
		t.MatchThresh = *c.MatchThresh
	}
	if c.MaxAge != nil {
		t.MaxAge = *c.MaxAge
	}
	return t
}

// GetCoverThreshold returns the cover_threshold value or the built-in one.
func (c *ProfileConfig) GetCoverThreshold() float64 {
	if c.CoverThreshold == nil {
		return c.preset().CoverThreshold
	}
	return *c.CoverThreshold
}

// GetCropWorkers returns the crop_workers value or the built-in one.
func (c *ProfileConfig) GetCropWorkers() int {
	if c.CropWorkers == nil {
		return c.preset().CropWorkers
	}
	return *c.CropWorkers
}

// ToProfile returns the runtime profile. Call Validate first.
func (c *ProfileConfig) ToProfile() cascade.Profile {
	p := c.preset()
	if c.Include != nil {
		p.Include = slices.Clone(c.Include)
	}
	if c.Exclude != nil {
		p.Exclude = slices.Clone(c.Exclude)
	}
	if c.Remap != nil {
		p.Remap = make(map[string]string, len(c.Remap))
		for k, v := range c.Remap {
			p.Remap[k] = v
		}
	}
	p.CoverThreshold = c.GetCoverThreshold()
	p.Statistics = c.GetStatistics()
	p.Tracker = c.GetTracker()
	p.CropWorkers = c.GetCropWorkers()
	return p
}

// ModelConfigs returns a copy of the model list, primary first.
func (c *ProfileConfig) ModelConfigs() []detect.ModelConfig {
	return append([]detect.ModelConfig(nil), c.Models...)
}
