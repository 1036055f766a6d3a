// Package publish fans confirmed events out to a Redis stream so that
// downstream consumers can react without polling the event store.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
)

// RedisConfig configures the Redis stream publisher.
type RedisConfig struct {
	// Address is the Redis server address (e.g. "localhost:6379").
	Address  string
	Password string
	Database int

	// Stream is the stream key events are appended to.
	Stream string

	// MaxLen caps the stream length (approximate trimming); 0 disables
	// trimming.
	MaxLen int64

	// Timeout bounds every Redis call.
	Timeout time.Duration
}

// DefaultRedisConfig returns the production defaults for address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Stream:  "cascade:events",
		MaxLen:  100_000,
		Timeout: 2 * time.Second,
	}
}

// streamAdder is the slice of the go-redis client the publisher uses.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends one stream entry per event.
type RedisPublisher struct {
	cfg    RedisConfig
	client streamAdder
	closer func() error
}

var _ cascade.EventSink = (*RedisPublisher)(nil)

// NewRedisPublisher connects to Redis and checks the connection.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Stream == "" {
		return nil, errors.New("redis stream key is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return &RedisPublisher{cfg: cfg, client: client, closer: client.Close}, nil
}

// PersistEvents implements cascade.EventSink. It stops at the first
// failed append.
func (p *RedisPublisher) PersistEvents(ctx context.Context, events []cascade.Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	for _, e := range events {
		values, err := EncodeEvent(e)
		if err != nil {
			return err
		}
		args := &redis.XAddArgs{
			Stream: p.cfg.Stream,
			Values: values,
		}
		if p.cfg.MaxLen > 0 {
			args.MaxLen = p.cfg.MaxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("xadd %s event %s: %w", p.cfg.Stream, e.ID, err)
		}
	}
	return nil
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// EncodeEvent returns the stream entry fields for e. The indexed fields
// let consumers filter without decoding the JSON payload.
func EncodeEvent(e cascade.Event) (map[string]any, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return map[string]any{
		"id":          e.ID,
		"behavior":    e.Behavior,
		"pipeline_id": e.PipelineID,
		"frame_id":    e.FrameID,
		"track_id":    e.TrackID,
		"payload":     string(payload),
	}, nil
}
