package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/mignon/internal/robot"
)

// SaveSensors appends a raw sensor snapshot.
func (s *Postgres) SaveSensors(ctx context.Context, snap robot.SensorSnapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sensor_snapshots (agent_id, data, created_at)
		VALUES ($1, $2, $3)`,
		snap.AgentID, []byte(snap.Data), stamp(snap.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("save sensors: %w", err)
	}
	return nil
}

// LatestSensors returns the most recent snapshot or ErrNotFound.
func (s *Postgres) LatestSensors(ctx context.Context, agentID string) (robot.SensorSnapshot, error) {
	snap := robot.SensorSnapshot{AgentID: agentID}
	var data []byte
	err := s.db.QueryRow(ctx, `
		SELECT data, created_at FROM sensor_snapshots
		WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, agentID,
	).Scan(&data, &snap.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("latest sensors: %w", err)
	}
	snap.Data = data
	return snap, nil
}

// SaveEmotion appends an emotion state.
func (s *Postgres) SaveEmotion(ctx context.Context, agentID string, e robot.EmotionState) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO emotion_states (agent_id, emotion, intensity, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		agentID, string(e.Type), e.Intensity, e.Duration, stamp(e.LastChange),
	)
	if err != nil {
		return fmt.Errorf("save emotion: %w", err)
	}
	return nil
}

// CurrentEmotion returns the most recent emotion state or ErrNotFound.
func (s *Postgres) CurrentEmotion(ctx context.Context, agentID string) (robot.EmotionState, error) {
	var e robot.EmotionState
	err := s.db.QueryRow(ctx, `
		SELECT emotion, intensity, duration_ms, created_at FROM emotion_states
		WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, agentID,
	).Scan(&e.Type, &e.Intensity, &e.Duration, &e.LastChange)
	if errors.Is(err, pgx.ErrNoRows) {
		return robot.NeutralEmotion(), ErrNotFound
	}
	if err != nil {
		return robot.NeutralEmotion(), fmt.Errorf("current emotion: %w", err)
	}
	return e, nil
}

// SaveEvent appends an event.
func (s *Postgres) SaveEvent(ctx context.Context, e robot.Event) error {
	data, err := marshalOptional(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO events (id, agent_id, event_type, description, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.AgentID, e.Type, e.Description, data, stamp(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Postgres) RecentEvents(ctx context.Context, agentID string, limit int) ([]robot.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, event_type, description, data, created_at FROM (
			SELECT id, event_type, description, data, created_at FROM events
			WHERE agent_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC`, agentID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []robot.Event
	for rows.Next() {
		e := robot.Event{AgentID: agentID}
		var data []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Description, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &e.Data)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveInteraction appends an interaction.
func (s *Postgres) SaveInteraction(ctx context.Context, i robot.Interaction) error {
	meta, err := json.Marshal(i.Metadata)
	if err != nil {
		return fmt.Errorf("marshal interaction metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO interactions (id, agent_id, interaction_type, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID, i.AgentID, string(i.Type), i.Content, meta, stamp(i.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns interactions since the given time, newest first.
func (s *Postgres) RecentInteractions(ctx context.Context, agentID string, since time.Time, limit int) ([]robot.Interaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, interaction_type, content, metadata, created_at FROM interactions
		WHERE agent_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`, agentID, since, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	defer rows.Close()

	var out []robot.Interaction
	for rows.Next() {
		i := robot.Interaction{AgentID: agentID}
		var meta []byte
		if err := rows.Scan(&i.ID, &i.Type, &i.Content, &meta, &i.Timestamp); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &i.Metadata)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// stamp substitutes the current time for a zero timestamp.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func marshalOptional(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

// limitOrAll maps a non-positive limit to a value LIMIT accepts as unbounded.
func limitOrAll(limit int) int64 {
	if limit <= 0 {
		return 1 << 62
	}
	return int64(limit)
}
