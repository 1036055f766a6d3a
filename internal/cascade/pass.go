package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/behavior-cascade/internal/cover"
	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/frame"
	"github.com/banshee-data/behavior-cascade/internal/geometry"
	"github.com/banshee-data/behavior-cascade/internal/tracking"
)

func (p *Pipeline) startPass(ctx context.Context, frameID int64) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "cascade.pass", trace.WithAttributes(
		attribute.String("cascade.behavior", p.profile.Behavior),
		attribute.Int64("cascade.frame_id", frameID),
	))
}

func endSpan(span trace.Span, events int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("cascade.events", events))
}

// stage1 runs the primary model on the full frame.
func (p *Pipeline) stage1(ctx context.Context, set *modelSet, f frame.Frame) (*detect.Result, error) {
	ctx, span := p.tracer.Start(ctx, "cascade.stage1")
	defer span.End()
	res, err := set.models[0].Infer(ctx, f, set.configs[0].Params())
	endSpan(span, 0, err)
	return res, err
}

// runPass is everything after the primary inference. The caller holds the
// pass's sequencer turn.
func (p *Pipeline) runPass(ctx context.Context, set *modelSet, frameID int64, f frame.Frame, res *detect.Result, stage1Err error) ([]Event, error) {
	behavior := p.profile.Behavior
	if stage1Err != nil {
		opsf("%s: frame %d: stage 1: %v", behavior, frameID, stage1Err)
		return nil, fmt.Errorf("frame %d stage 1: %w: %w", frameID, ErrInference, stage1Err)
	}

	primary := set.configs[0]
	dets := detect.ParseDetections(res, primary.Threshold)
	objects := make([]tracking.Object, 0, len(dets))
	for _, d := range dets {
		objects = append(objects, tracking.Object{ClassID: d.ClassID, Label: d.Label, Score: d.Score, Box: d.Box})
	}

	p.pass++
	pass := p.pass
	tracks := p.tracker.Update(pass, objects)
	tracef("%s: frame %d pass %d: %d detections, %d tracks", behavior, frameID, pass, len(dets), len(tracks))
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("cascade.pass", pass),
		attribute.Int("cascade.detections", len(dets)),
		attribute.Int("cascade.tracks", len(tracks)),
	)
	if len(tracks) == 0 {
		return nil, nil
	}

	var cands []cover.Candidate
	if len(set.models) == 1 {
		cands = make([]cover.Candidate, 0, len(tracks))
		for _, t := range tracks {
			cands = append(cands, cover.Candidate{
				Detection: detect.Detection{ClassID: t.ClassID, Label: t.Label, Score: t.Score, Box: t.Box},
				TrackID:   t.TrackID,
			})
		}
	} else {
		var err error
		cands, err = p.stage2(ctx, set, f, Rank(tracks, set.configs[1].MaxCropNumber))
		if err != nil {
			opsf("%s: frame %d: stage 2: %v", behavior, frameID, err)
			return nil, fmt.Errorf("frame %d stage 2: %w: %w", frameID, ErrInference, err)
		}
	}

	matched := p.filter.Find(cands)
	live := make([]int64, 0, len(tracks))
	for _, t := range tracks {
		live = append(live, t.TrackID)
	}
	confirmed := p.stats.Update(pass, live, matched)
	if len(confirmed) == 0 {
		return nil, nil
	}

	events := make([]Event, 0, len(confirmed))
	for _, c := range confirmed {
		events = append(events, Event{
			ConfirmedEvent: c,
			FrameID:        frameID,
			Behavior:       behavior,
			PipelineID:     p.id,
		})
		diagf("%s: frame %d: confirmed track %d %s score=%.2f hits=%d ratio=%.2f",
			behavior, frameID, c.TrackID, c.Label, c.Score, c.Hits, c.HitRatio)
	}
	for _, sink := range p.sinks {
		if err := sink.PersistEvents(ctx, events); err != nil {
			opsf("%s: frame %d: sink %T: %v", behavior, frameID, sink, err)
		}
	}
	return events, nil
}

// Rank orders tracks by score, then box area, both descending, keeping
// tracker order for full ties, and truncates to limit.
func Rank(tracks []tracking.Track, limit int) []tracking.Track {
	ranked := append([]tracking.Track(nil), tracks...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Box.Area() > ranked[j].Box.Area()
	})
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// stage2 runs the secondary model on a scaled crop around every ranked
// track, on a bounded worker pool. Results come back in rank order with
// boxes in frame coordinates.
func (p *Pipeline) stage2(ctx context.Context, set *modelSet, f frame.Frame, ranked []tracking.Track) ([]cover.Candidate, error) {
	cfg := set.configs[1]
	model := set.models[1]
	params := cfg.Params()
	width, height := f.Width(), f.Height()

	perTrack := make([][]cover.Candidate, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.profile.cropWorkers())
	for i, t := range ranked {
		rect := geometry.ScaleCropRect(width, height, t.Box, cfg.CropScaleFactor)
		if rect.Empty() {
			diagf("%s: track %d: degenerate crop %+v skipped", p.profile.Behavior, t.TrackID, rect)
			continue
		}
		g.Go(func() error {
			cctx, span := p.tracer.Start(gctx, "cascade.stage2", trace.WithAttributes(
				attribute.Int64("cascade.track_id", t.TrackID),
				attribute.Int("cascade.crop.width", rect.Width),
				attribute.Int("cascade.crop.height", rect.Height),
			))
			defer span.End()

			crop, err := f.Crop(rect)
			if errors.Is(err, frame.ErrEmptyCrop) {
				diagf("%s: track %d: empty crop %+v skipped", p.profile.Behavior, t.TrackID, rect)
				return nil
			}
			if err != nil {
				endSpan(span, 0, err)
				return fmt.Errorf("crop track %d: %w", t.TrackID, err)
			}
			defer crop.Close()

			res, err := model.Infer(cctx, crop, params)
			if err != nil {
				endSpan(span, 0, err)
				return fmt.Errorf("track %d: %w", t.TrackID, err)
			}
			for _, d := range detect.ParseDetections(res, cfg.Threshold) {
				d.Box = d.Box.Translate(rect.X, rect.Y)
				perTrack[i] = append(perTrack[i], cover.Candidate{Detection: d, TrackID: t.TrackID, Context: t.Box})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var cands []cover.Candidate
	for _, c := range perTrack {
		cands = append(cands, c...)
	}
	tracef("%s: stage 2 on %d crop(s) produced %d candidate(s)", p.profile.Behavior, len(ranked), len(cands))
	return cands, nil
}
