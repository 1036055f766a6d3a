package tracking

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/behavior-cascade/internal/geometry"
)

func person(x, y int, score float32) Object {
	return Object{ClassID: 0, Label: "person", Score: score, Box: geometry.Rect{X: x, Y: y, Width: 50, Height: 100}}
}

func trackIDs(tracks []Track) []int64 {
	ids := make([]int64, 0, len(tracks))
	for _, tr := range tracks {
		ids = append(ids, tr.TrackID)
	}
	return ids
}

func TestByteTrackerFirstPassActivatesImmediately(t *testing.T) {
	t.Parallel()

	tr := NewByteTracker(DefaultTrackerConfig())
	got := tr.Update(1, []Object{person(10, 10, 0.9), person(300, 10, 0.8)})
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 2}, trackIDs(got))
	assert.Equal(t, 1, got[0].TargetID)
	assert.Equal(t, 2, got[1].TargetID)
	assert.Equal(t, "person", got[0].Label)
}

func TestByteTrackerKeepsIdentityWhileMoving(t *testing.T) {
	t.Parallel()

	tr := NewByteTracker(DefaultTrackerConfig())
	for pass := int64(1); pass <= 20; pass++ {
		got := tr.Update(pass, []Object{person(int(pass)*4, 20, 0.9)})
		require.Len(t, got, 1, "pass %d", pass)
		assert.EqualValues(t, 1, got[0].TrackID, "pass %d", pass)
		assert.Equal(t, int(pass)*4, got[0].Box.X, "reported box is the latest detection")
	}
}

func TestByteTrackerLaterTracksNeedSecondHit(t *testing.T) {
	t.Parallel()

	tr := NewByteTracker(DefaultTrackerConfig())
	tr.Update(1, []Object{person(10, 10, 0.9)})

	got := tr.Update(2, []Object{person(10, 10, 0.9), person(400, 10, 0.9)})
	assert.Equal(t, []int64{1}, trackIDs(got))

	got = tr.Update(3, []Object{person(10, 10, 0.9), person(402, 10, 0.9)})
	assert.Equal(t, []int64{1, 2}, trackIDs(got))

	// A tentative track that misses its second pass is dropped.
	tr.Update(4, []Object{person(10, 10, 0.9), person(402, 10, 0.9), person(800, 10, 0.9)})
	got = tr.Update(5, []Object{person(10, 10, 0.9), person(402, 10, 0.9)})
	assert.Equal(t, []int64{1, 2}, trackIDs(got))
}

func TestByteTrackerLowScoreRescue(t *testing.T) {
	t.Parallel()

	tr := NewByteTracker(DefaultTrackerConfig())
	tr.Update(1, []Object{person(10, 10, 0.9)})

	got := tr.Update(2, []Object{person(12, 10, 0.2)})
	require.Len(t, got, 1)
	assert.EqualValues(t, 1, got[0].TrackID)
	assert.InDelta(t, 0.2, got[0].Score, 1e-6)

	// Too weak to start a track on its own.
	fresh := NewByteTracker(DefaultTrackerConfig())
	assert.Empty(t, fresh.Update(1, []Object{person(10, 10, 0.2)}))
	assert.Empty(t, fresh.Update(2, []Object{person(10, 10, 0.5)}), "below HighThresh")
}

func TestByteTrackerLostTrackLifecycle(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.MaxAge = 2

	t.Run("reappears within max age", func(t *testing.T) {
		tr := NewByteTracker(cfg)
		tr.Update(1, []Object{person(10, 10, 0.9)})
		assert.Empty(t, tr.Update(2, nil))
		got := tr.Update(3, []Object{person(10, 10, 0.9)})
		assert.Equal(t, []int64{1}, trackIDs(got))
	})

	t.Run("removed after max age and ids are not reused", func(t *testing.T) {
		tr := NewByteTracker(cfg)
		tr.Update(1, []Object{person(10, 10, 0.9)})
		tr.Update(2, nil)
		tr.Update(3, nil)
		tr.Update(4, nil)
		assert.Empty(t, tr.Update(5, []Object{person(10, 10, 0.9)}))
		got := tr.Update(6, []Object{person(10, 10, 0.9)})
		assert.Equal(t, []int64{2}, trackIDs(got))
	})
}

func TestByteTrackerEmptyPasses(t *testing.T) {
	t.Parallel()

	tr := NewByteTracker(TrackerConfig{})
	assert.Equal(t, DefaultTrackerConfig(), tr.Config())
	for pass := int64(1); pass < 5; pass++ {
		assert.Empty(t, tr.Update(pass, nil))
	}
}

func TestByteTrackerUniqueIDsUnderNoise(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))
	tr := NewByteTracker(DefaultTrackerConfig())
	var lastMax int64
	for pass := int64(1); pass <= 300; pass++ {
		var objs []Object
		n := rng.IntN(8)
		for k := 0; k < n; k++ {
			objs = append(objs, person(rng.IntN(600), rng.IntN(400), 0.05+rng.Float32()*0.95))
		}
		got := tr.Update(pass, objs)
		seen := map[int64]bool{}
		for i, track := range got {
			require.False(t, seen[track.TrackID], "duplicate id %d at pass %d", track.TrackID, pass)
			seen[track.TrackID] = true
			require.Equal(t, i+1, track.TargetID)
			require.Positive(t, track.TrackID)
			lastMax = max(lastMax, track.TrackID)
		}
	}
	assert.Less(t, lastMax, tr.nextID)
}
