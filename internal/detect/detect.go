// Package detect defines the contract between the cascade and the neural
// network inference engine. The engine itself (model loading, licensing,
// batching, accelerator memory) lives outside this module; the pipeline
// only sees Engine, Model and the typed Result they produce.
package detect

import (
	"context"
	"fmt"

	"github.com/banshee-data/behavior-cascade/internal/frame"
	"github.com/banshee-data/behavior-cascade/internal/geometry"
)

// ModelConfig identifies one pipeline stage. It is immutable once handed
// to the pipeline.
type ModelConfig struct {
	Name    string `json:"name" yaml:"name"`
	Path    string `json:"path" yaml:"path"`
	License string `json:"license" yaml:"license"`

	// Threshold is the minimum detection score kept from this stage.
	Threshold float32 `json:"threshold" yaml:"threshold"`
	// NMSThreshold is passed through to the engine; 0 leaves the engine default.
	NMSThreshold float32 `json:"nms_threshold,omitempty" yaml:"nms_threshold,omitempty"`

	// Labels is the model's label allow-list / class-name table.
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// CropScaleFactor and MaxCropNumber only apply to secondary stages.
	CropScaleFactor float64 `json:"crop_scale_factor,omitempty" yaml:"crop_scale_factor,omitempty"`
	MaxCropNumber   int     `json:"max_crop_number,omitempty" yaml:"max_crop_number,omitempty"`
}

// Params returns the per-call detect parameters for this stage.
func (c ModelConfig) Params() Params {
	return Params{Threshold: c.Threshold, NMSThreshold: c.NMSThreshold}
}

// Params are the detect parameters attached to every inference call.
type Params struct {
	Threshold    float32
	NMSThreshold float32
}

// ResultType discriminates the kinds of output an engine can return.
// Only ResultDetect outputs are consumed by the cascade.
type ResultType int

const (
	ResultUnknown ResultType = iota
	ResultDetect
	ResultClassify
	ResultPose
	ResultSegment
)

func (t ResultType) String() string {
	switch t {
	case ResultDetect:
		return "detect"
	case ResultClassify:
		return "classify"
	case ResultPose:
		return "pose"
	case ResultSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// Detection is a single raw detection in the coordinate space of the image
// it was produced from (a full frame or a crop).
type Detection struct {
	ClassID int           `json:"class_id"`
	Label   string        `json:"label"`
	Score   float32       `json:"score"`
	Box     geometry.Rect `json:"box"`
}

// Output is one typed block of an inference result.
type Output struct {
	Type       ResultType
	Detections []Detection
}

// Result is everything one inference call returned.
type Result struct {
	Outputs []Output
}

// Model is a loaded model handle.
type Model interface {
	// Infer runs inference synchronously.
	Infer(ctx context.Context, img frame.Frame, params Params) (*Result, error)

	// InferAsync submits img and returns immediately. done is invoked
	// exactly once, from whatever goroutine the engine completes on.
	InferAsync(img frame.Frame, params Params, done func(*Result, error))

	// Wait blocks until every InferAsync submitted so far has completed.
	Wait()

	// Close releases the model. Callers must Wait first.
	Close() error
}

// Engine loads models.
type Engine interface {
	Load(cfg ModelConfig) (Model, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(cfg ModelConfig) (Model, error)

// Load implements Engine.
func (f EngineFunc) Load(cfg ModelConfig) (Model, error) { return f(cfg) }

// ParseDetections extracts the detection outputs of res, dropping any
// detection scored below threshold. Non-detect outputs are ignored.
func ParseDetections(res *Result, threshold float32) []Detection {
	if res == nil {
		return nil
	}
	var out []Detection
	for _, o := range res.Outputs {
		if o.Type != ResultDetect {
			continue
		}
		for _, d := range o.Detections {
			if d.Score < threshold {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

// LoadAll loads every config in order. When any load fails the models
// already loaded are closed and the error is returned, so the caller never
// holds a partial set.
func LoadAll(engine Engine, configs []ModelConfig) ([]Model, error) {
	models := make([]Model, 0, len(configs))
	for i, cfg := range configs {
		m, err := engine.Load(cfg)
		if err == nil && m == nil {
			err = fmt.Errorf("engine returned no model")
		}
		if err != nil {
			for _, loaded := range models {
				loaded.Wait()
				_ = loaded.Close()
			}
			return nil, fmt.Errorf("load model %d (%s, %s): %w", i, cfg.Name, cfg.Path, err)
		}
		models = append(models, m)
	}
	return models, nil
}
