package cascade

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/frame"
	"github.com/banshee-data/behavior-cascade/internal/geometry"
	"github.com/banshee-data/behavior-cascade/internal/tracking"
)

var errEngine = errors.New("engine fault")

// fakeModel is a detect.Model driven by a function. InferAsync completes
// on its own goroutine after an optional per-call delay.
type fakeModel struct {
	infer func(call int64, img frame.Frame) (*detect.Result, error)
	delay func(call int64) time.Duration
	// gate, when set, holds every async completion until it is closed.
	gate chan struct{}

	calls   atomic.Int64
	pending sync.WaitGroup
	waited  atomic.Bool
	closed  atomic.Bool

	mu    sync.Mutex
	sizes [][2]int
}

func (m *fakeModel) Infer(ctx context.Context, img frame.Frame, params detect.Params) (*detect.Result, error) {
	return m.run(m.calls.Add(1), img)
}

func (m *fakeModel) run(call int64, img frame.Frame) (*detect.Result, error) {
	if m.closed.Load() {
		return nil, errors.New("model used after close")
	}
	m.mu.Lock()
	m.sizes = append(m.sizes, [2]int{img.Width(), img.Height()})
	m.mu.Unlock()
	if m.infer == nil {
		return &detect.Result{}, nil
	}
	return m.infer(call, img)
}

func (m *fakeModel) InferAsync(img frame.Frame, params detect.Params, done func(*detect.Result, error)) {
	call := m.calls.Add(1)
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if m.gate != nil {
			<-m.gate
		}
		if m.delay != nil {
			time.Sleep(m.delay(call))
		}
		done(m.run(call, img))
	}()
}

func (m *fakeModel) Wait() {
	m.pending.Wait()
	m.waited.Store(true)
}

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *fakeModel) cropSizes() [][2]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]int(nil), m.sizes...)
}

// fakeEngine hands out models by config name and fails on failOn.
type fakeEngine struct {
	mu     sync.Mutex
	models map[string]*fakeModel
	failOn string
	loads  []string
}

func newFakeEngine(models map[string]*fakeModel) *fakeEngine {
	return &fakeEngine{models: models}
}

func (e *fakeEngine) Load(cfg detect.ModelConfig) (detect.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads = append(e.loads, cfg.Name)
	if cfg.Name == e.failOn {
		return nil, errEngine
	}
	m, ok := e.models[cfg.Name]
	if !ok {
		m = &fakeModel{}
		e.models[cfg.Name] = m
	}
	return m, nil
}

// scriptedTracker returns fixed tracks and records every Update.
type scriptedTracker struct {
	mu      sync.Mutex
	script  func(pass int64, objs []tracking.Object) []tracking.Track
	passes  []int64
	objects [][]tracking.Object
}

func (s *scriptedTracker) Update(pass int64, objs []tracking.Object) []tracking.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes = append(s.passes, pass)
	s.objects = append(s.objects, objs)
	if s.script == nil {
		return nil
	}
	return s.script(pass, objs)
}

func (s *scriptedTracker) seenPasses() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.passes...)
}

func detections(dets ...detect.Detection) *detect.Result {
	return &detect.Result{Outputs: []detect.Output{{Type: detect.ResultDetect, Detections: dets}}}
}

func blankFrame() frame.Frame {
	return frame.FromImage(image.NewRGBA(image.Rect(0, 0, 640, 480)))
}

func personDet(box geometry.Rect, score float32) detect.Detection {
	return detect.Detection{ClassID: 0, Label: "person", Score: score, Box: box}
}

func twoStageConfigs() []detect.ModelConfig {
	return []detect.ModelConfig{
		{Name: "person", Path: "person.onnx", Threshold: 0.3},
		{Name: "cigarette", Path: "cigarette.onnx", Threshold: 0.5, CropScaleFactor: 1.2, MaxCropNumber: 5},
	}
}
