package cascade

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/banshee-data/behavior-cascade/internal/cover"
	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/frame"
	"github.com/banshee-data/behavior-cascade/internal/sequence"
	"github.com/banshee-data/behavior-cascade/internal/timeutil"
	"github.com/banshee-data/behavior-cascade/internal/tracking"
)

const instrumentationName = "github.com/banshee-data/behavior-cascade/internal/cascade"

// State is the lifecycle of a Pipeline.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	default:
		return "unloaded"
	}
}

// Callback receives the events of an AsyncInfer pass. It is invoked once
// per AsyncInfer, in submission order, and must not call SyncInfer on the
// same pipeline.
type Callback func(frameID int64, f frame.Frame, events []Event)

// modelSet is one generation of loaded models. Passes hold a reference for
// their whole duration so a reload never closes a model in use.
type modelSet struct {
	configs []detect.ModelConfig
	models  []detect.Model
	refs    sync.WaitGroup
}

func (s *modelSet) release() error {
	s.refs.Wait()
	var firstErr error
	for i, m := range s.models {
		m.Wait()
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close model %d (%s): %w", i, s.configs[i].Name, err)
		}
	}
	return firstErr
}

// Pipeline is the cascade for one behavior.
type Pipeline struct {
	id      string
	profile Profile
	filter  cover.Filter
	engine  detect.Engine
	clock   timeutil.Clock
	tracer  trace.Tracer
	sinks   []EventSink

	// Owned by whoever holds the current sequencer turn.
	tracker tracking.Tracker
	stats   *sequence.Statistics
	pass    int64

	seq      *sequencer
	inflight sync.WaitGroup
	loadMu   sync.Mutex

	mu     sync.Mutex // guards the fields below
	state  State
	set    *modelSet
	closed bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracker replaces the default ByteTracker.
func WithTracker(t tracking.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithSinks adds event sinks.
func WithSinks(sinks ...EventSink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithClock sets the clock used for event timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithTracerProvider sets the OpenTelemetry provider for pass spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer(instrumentationName) }
}

// WithID sets the pipeline id stamped on every event.
func WithID(id string) Option {
	return func(p *Pipeline) { p.id = id }
}

// New creates an unloaded pipeline for profile.
func New(engine detect.Engine, profile Profile, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrConfiguration)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: profile %q: %w", ErrConfiguration, profile.Behavior, err)
	}

	p := &Pipeline{
		id:      uuid.NewString(),
		profile: profile,
		filter:  profile.Filter(),
		engine:  engine,
		clock:   timeutil.RealClock{},
		tracer:  otel.Tracer(instrumentationName),
		seq:     newSequencer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracker == nil {
		p.tracker = tracking.NewByteTracker(profile.Tracker)
	}
	stats, err := sequence.New(profile.Statistics, sequence.WithClock(p.clock))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	p.stats = stats
	return p, nil
}

// ID returns the pipeline id.
func (p *Pipeline) ID() string { return p.id }

// Profile returns the behavior profile.
func (p *Pipeline) Profile() Profile { return p.profile }

// State returns the lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ModelConfigs returns the configs of the loaded model set, or nil.
func (p *Pipeline) ModelConfigs() []detect.ModelConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.set == nil {
		return nil
	}
	return append([]detect.ModelConfig(nil), p.set.configs...)
}

// LoadModels loads one model per stage, primary first. Either every model
// loads and replaces the current set, or the current set is kept and an
// error wrapping ErrConfiguration is returned. The replaced set is closed
// once the passes using it have finished.
func (p *Pipeline) LoadModels(configs []detect.ModelConfig) error {
	if err := p.validateModels(configs); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	models, err := detect.LoadAll(p.engine, configs)
	if err != nil {
		opsf("%s: load models: %v", p.profile.Behavior, err)
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	next := &modelSet{
		configs: append([]detect.ModelConfig(nil), configs...),
		models:  models,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = next.release()
		return ErrClosed
	}
	prev := p.set
	p.set = next
	if p.state == StateUnloaded {
		p.state = StateLoaded
	}
	p.mu.Unlock()

	diagf("%s: loaded %d model(s): %s", p.profile.Behavior, len(configs), modelNames(configs))
	if prev != nil {
		if err := prev.release(); err != nil {
			opsf("%s: release previous models: %v", p.profile.Behavior, err)
		}
	}
	return nil
}

func (p *Pipeline) validateModels(configs []detect.ModelConfig) error {
	if len(configs) != p.profile.Stages {
		return fmt.Errorf("behavior %q expects %d model(s), got %d", p.profile.Behavior, p.profile.Stages, len(configs))
	}
	for i, c := range configs {
		if c.Path == "" {
			return fmt.Errorf("model %d (%s): empty path", i, c.Name)
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return fmt.Errorf("model %d (%s): threshold %g outside [0,1]", i, c.Name, c.Threshold)
		}
		if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
			return fmt.Errorf("model %d (%s): nms threshold %g outside [0,1]", i, c.Name, c.NMSThreshold)
		}
		if i == 0 {
			continue
		}
		if c.CropScaleFactor <= 0 {
			return fmt.Errorf("model %d (%s): crop scale factor must be > 0", i, c.Name)
		}
		if c.MaxCropNumber < 1 {
			return fmt.Errorf("model %d (%s): max crop number must be >= 1", i, c.Name)
		}
	}
	return nil
}

// begin admits a pass: it takes a model reference, registers the pass as
// in flight and reserves its turn.
func (p *Pipeline) begin() (*modelSet, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, 0, ErrClosed
	}
	if p.set == nil {
		return nil, 0, ErrNotLoaded
	}
	p.state = StateRunning
	p.set.refs.Add(1)
	p.inflight.Add(1)
	return p.set, p.seq.ticket(), nil
}

func (p *Pipeline) end(set *modelSet, ticket uint64) {
	p.seq.done(ticket)
	set.refs.Done()
	p.inflight.Done()
}

// SyncInfer runs one pass and returns its events. A failed engine call
// returns an error wrapping ErrInference and no events. If ctx ends while
// an earlier pass still holds its turn, SyncInfer returns ctx.Err() and the
// frame never reaches the tracker.
func (p *Pipeline) SyncInfer(ctx context.Context, frameID int64, f frame.Frame) ([]Event, error) {
	set, ticket, err := p.begin()
	if err != nil {
		return nil, err
	}
	defer p.end(set, ticket)

	ctx, span := p.startPass(ctx, frameID)
	defer span.End()

	res, err := p.stage1(ctx, set, f)
	if waitErr := p.seq.wait(ctx, ticket); waitErr != nil {
		opsf("%s: frame %d: gave up waiting for turn: %v", p.profile.Behavior, frameID, waitErr)
		endSpan(span, 0, waitErr)
		return nil, waitErr
	}
	events, err := p.runPass(ctx, set, frameID, f, res, err)
	endSpan(span, len(events), err)
	return events, err
}

// AsyncInfer submits a pass and returns immediately. cb receives the
// events, or nil when the pass failed or the pipeline is not usable.
func (p *Pipeline) AsyncInfer(frameID int64, f frame.Frame, cb Callback) {
	set, ticket, err := p.begin()
	if err != nil {
		opsf("%s: frame %d not submitted: %v", p.profile.Behavior, frameID, err)
		if cb != nil {
			cb(frameID, f, nil)
		}
		return
	}

	ctx, span := p.startPass(context.Background(), frameID)
	_, stageSpan := p.tracer.Start(ctx, "cascade.stage1")
	cfg := set.configs[0]
	set.models[0].InferAsync(f, cfg.Params(), func(res *detect.Result, inferErr error) {
		endSpan(stageSpan, 0, inferErr)
		// The engine may complete on a thread it needs back; continue on
		// our own goroutine.
		go func() {
			defer p.end(set, ticket)
			defer span.End()

			_ = p.seq.wait(context.Background(), ticket)
			events, err := p.runPass(ctx, set, frameID, f, res, inferErr)
			endSpan(span, len(events), err)
			if cb != nil {
				cb(frameID, f, events)
			}
		}()
	})
}

// Close waits for every submitted pass, including async callbacks, then
// drains and releases the models. Later calls fail with ErrClosed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	set := p.set
	p.set = nil
	p.state = StateUnloaded
	p.mu.Unlock()

	p.inflight.Wait()
	if set == nil {
		return nil
	}
	diagf("%s: closing pipeline %s", p.profile.Behavior, p.id)
	return set.release()
}

func modelNames(configs []detect.ModelConfig) string {
	s := ""
	for i, c := range configs {
		if i > 0 {
			s += ", "
		}
		s += c.Name
	}
	return s
}
