package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
)

// EventStore provides persistence for confirmed behavior events.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates a new EventStore. The schema must already be
// migrated.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

var _ cascade.EventSink = (*EventStore)(nil)

// PersistEvents inserts events in one transaction. Events without an ID
// get a fresh UUID; re-persisting an ID is a no-op.
func (s *EventStore) PersistEvents(ctx context.Context, events []cascade.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO confirmed_events (
			event_id, pipeline_id, behavior, frame_id, pass,
			track_id, class_id, label, raw_label, score,
			box_x, box_y, box_width, box_height,
			hits, hit_ratio, confirmed_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := stmt.ExecContext(ctx,
			id, e.PipelineID, e.Behavior, e.FrameID, e.Pass,
			e.TrackID, e.ClassID, e.Label, e.RawLabel, float64(e.Score),
			e.Box.X, e.Box.Y, e.Box.Width, e.Box.Height,
			e.Hits, e.HitRatio, e.ConfirmedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// EventQuery narrows List. Zero fields do not filter.
type EventQuery struct {
	Behavior   string
	PipelineID string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// List returns the stored events matching q, oldest first.
func (s *EventStore) List(ctx context.Context, q EventQuery) ([]cascade.Event, error) {
	var (
		where []string
		args  []any
	)
	if q.Behavior != "" {
		where = append(where, "behavior = ?")
		args = append(args, q.Behavior)
	}
	if q.PipelineID != "" {
		where = append(where, "pipeline_id = ?")
		args = append(args, q.PipelineID)
	}
	if !q.Since.IsZero() {
		where = append(where, "confirmed_at_ns >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		where = append(where, "confirmed_at_ns < ?")
		args = append(args, q.Until.UnixNano())
	}

	query := `
		SELECT event_id, pipeline_id, behavior, frame_id, pass,
		       track_id, class_id, label, raw_label, score,
		       box_x, box_y, box_width, box_height,
		       hits, hit_ratio, confirmed_at_ns
		FROM confirmed_events`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY confirmed_at_ns, frame_id, track_id"
	if q.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []cascade.Event
	for rows.Next() {
		var (
			e     cascade.Event
			score float64
			ns    int64
		)
		err := rows.Scan(
			&e.ID, &e.PipelineID, &e.Behavior, &e.FrameID, &e.Pass,
			&e.TrackID, &e.ClassID, &e.Label, &e.RawLabel, &score,
			&e.Box.X, &e.Box.Y, &e.Box.Width, &e.Box.Height,
			&e.Hits, &e.HitRatio, &ns,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Score = float32(score)
		e.ConfirmedAt = time.Unix(0, ns)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events for behavior, or all events
// when behavior is empty.
func (s *EventStore) Count(ctx context.Context, behavior string) (int, error) {
	query := "SELECT COUNT(*) FROM confirmed_events"
	var args []any
	if behavior != "" {
		query += " WHERE behavior = ?"
		args = append(args, behavior)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
