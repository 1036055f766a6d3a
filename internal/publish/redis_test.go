package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
	"github.com/banshee-data/behavior-cascade/internal/cover"
	"github.com/banshee-data/behavior-cascade/internal/geometry"
	"github.com/banshee-data/behavior-cascade/internal/sequence"
)

type fakeStream struct {
	added []*redis.XAddArgs
	err   error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1-0", nil)
}

func event(id string, track int64) cascade.Event {
	return cascade.Event{
		ConfirmedEvent: sequence.ConfirmedEvent{
			ID: id,
			MatchedObject: cover.MatchedObject{
				TrackID: track,
				Label:   "smoke",
				Score:   0.5,
				Box:     geometry.Rect{X: 1, Y: 2, Width: 3, Height: 4},
			},
			Pass:        4,
			Hits:        5,
			HitRatio:    0.5,
			ConfirmedAt: time.Unix(100, 0).UTC(),
		},
		FrameID:    4,
		Behavior:   "smoke",
		PipelineID: "cam-2",
	}
}

func TestEncodeEvent(t *testing.T) {
	t.Parallel()

	values, err := EncodeEvent(event("e1", 7))
	require.NoError(t, err)
	assert.Equal(t, "e1", values["id"])
	assert.Equal(t, "smoke", values["behavior"])
	assert.Equal(t, int64(7), values["track_id"])

	var decoded cascade.Event
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	if diff := cmp.Diff(event("e1", 7), decoded); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisPublisherAppendsPerEvent(t *testing.T) {
	t.Parallel()

	fake := &fakeStream{}
	p := &RedisPublisher{cfg: DefaultRedisConfig("unused"), client: fake}

	require.NoError(t, p.PersistEvents(context.Background(), []cascade.Event{event("a", 1), event("b", 2)}))
	require.NoError(t, p.PersistEvents(context.Background(), nil))
	require.Len(t, fake.added, 2)
	assert.Equal(t, "cascade:events", fake.added[0].Stream)
	assert.True(t, fake.added[0].Approx)
	assert.EqualValues(t, 100_000, fake.added[0].MaxLen)
	assert.Equal(t, "b", fake.added[1].Values.(map[string]any)["id"])
	assert.NoError(t, p.Close())
}

func TestRedisPublisherStopsOnError(t *testing.T) {
	t.Parallel()

	fake := &fakeStream{err: errors.New("READONLY")}
	cfg := DefaultRedisConfig("unused")
	cfg.MaxLen = 0
	p := &RedisPublisher{cfg: cfg, client: fake}

	err := p.PersistEvents(context.Background(), []cascade.Event{event("a", 1), event("b", 2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
	assert.Len(t, fake.added, 1)
	assert.Zero(t, fake.added[0].MaxLen)
}

func TestNewRedisPublisherValidates(t *testing.T) {
	t.Parallel()

	cfg := DefaultRedisConfig("127.0.0.1:1")
	cfg.Stream = ""
	_, err := NewRedisPublisher(cfg)
	assert.Error(t, err)

	cfg = DefaultRedisConfig("127.0.0.1:1")
	cfg.Timeout = 200 * time.Millisecond
	_, err = NewRedisPublisher(cfg)
	assert.Error(t, err, "nothing listens on port 1")
}
