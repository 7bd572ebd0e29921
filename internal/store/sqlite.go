package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite is a single-file LogStore for robots running without a database
// server. Timestamps are stored as unix milliseconds.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite opens or creates the database at path. ":memory:" is accepted.
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; also keeps ":memory:" on a single shared connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, logger: logger}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("SQLite store opened", zap.String("path", path))
	return s, nil
}

func (s *SQLite) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS sensor_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sensor_snapshots_agent_idx ON sensor_snapshots(agent_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS emotion_states (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			emotion TEXT NOT NULL,
			intensity INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS emotion_states_agent_idx ON emotion_states(agent_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS events_agent_idx ON events(agent_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			interaction_type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS interactions_agent_idx ON interactions(agent_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 50,
			embedding TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS memories_agent_type_idx ON memories(agent_id, memory_type, importance DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 64 {
		return line[:64] + "..."
	}
	return line
}

func toMS(t time.Time) int64 { return stamp(t).UnixMilli() }

func fromMS(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Close closes the database.
func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("close sqlite", zap.Error(err))
	}
}

// SaveSensors appends a raw sensor snapshot.
func (s *SQLite) SaveSensors(ctx context.Context, snap robot.SensorSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_snapshots (agent_id, data, created_at_ms) VALUES (?, ?, ?)`,
		snap.AgentID, string(snap.Data), toMS(snap.Timestamp))
	if err != nil {
		return fmt.Errorf("save sensors: %w", err)
	}
	return nil
}

// LatestSensors returns the most recent snapshot or ErrNotFound.
func (s *SQLite) LatestSensors(ctx context.Context, agentID string) (robot.SensorSnapshot, error) {
	snap := robot.SensorSnapshot{AgentID: agentID}
	var data string
	var ms int64
	err := s.db.QueryRowContext(ctx, `
		SELECT data, created_at_ms FROM sensor_snapshots
		WHERE agent_id = ? ORDER BY created_at_ms DESC, id DESC LIMIT 1`, agentID,
	).Scan(&data, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("latest sensors: %w", err)
	}
	snap.Data = json.RawMessage(data)
	snap.Timestamp = fromMS(ms)
	return snap, nil
}

// SaveEmotion appends an emotion state.
func (s *SQLite) SaveEmotion(ctx context.Context, agentID string, e robot.EmotionState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emotion_states (agent_id, emotion, intensity, duration_ms, created_at_ms)
		VALUES (?, ?, ?, ?, ?)`,
		agentID, string(e.Type), e.Intensity, e.Duration, toMS(e.LastChange))
	if err != nil {
		return fmt.Errorf("save emotion: %w", err)
	}
	return nil
}

// CurrentEmotion returns the most recent emotion state or ErrNotFound.
func (s *SQLite) CurrentEmotion(ctx context.Context, agentID string) (robot.EmotionState, error) {
	var e robot.EmotionState
	var typ string
	var ms int64
	err := s.db.QueryRowContext(ctx, `
		SELECT emotion, intensity, duration_ms, created_at_ms FROM emotion_states
		WHERE agent_id = ? ORDER BY created_at_ms DESC, id DESC LIMIT 1`, agentID,
	).Scan(&typ, &e.Intensity, &e.Duration, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return robot.NeutralEmotion(), ErrNotFound
	}
	if err != nil {
		return robot.NeutralEmotion(), fmt.Errorf("current emotion: %w", err)
	}
	e.Type = robot.EmotionType(typ)
	e.LastChange = fromMS(ms)
	return e, nil
}

// SaveEvent appends an event.
func (s *SQLite) SaveEvent(ctx context.Context, e robot.Event) error {
	data, err := marshalOptional(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, agent_id, event_type, description, data, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.Type, e.Description, string(data), toMS(e.Timestamp))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *SQLite) RecentEvents(ctx context.Context, agentID string, limit int) ([]robot.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, description, data, created_at_ms FROM (
			SELECT id, event_type, description, data, created_at_ms, rowid AS seq FROM events
			WHERE agent_id = ? ORDER BY created_at_ms DESC, seq DESC LIMIT ?
		) ORDER BY created_at_ms ASC, seq ASC`, agentID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []robot.Event
	for rows.Next() {
		e := robot.Event{AgentID: agentID}
		var data string
		var ms int64
		if err := rows.Scan(&e.ID, &e.Type, &e.Description, &data, &ms); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if data != "" {
			_ = json.Unmarshal([]byte(data), &e.Data)
		}
		e.Timestamp = fromMS(ms)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveInteraction appends an interaction.
func (s *SQLite) SaveInteraction(ctx context.Context, i robot.Interaction) error {
	meta, err := json.Marshal(i.Metadata)
	if err != nil {
		return fmt.Errorf("marshal interaction metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, agent_id, interaction_type, content, metadata, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.AgentID, string(i.Type), i.Content, string(meta), toMS(i.Timestamp))
	if err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns interactions since the given time, newest first.
func (s *SQLite) RecentInteractions(ctx context.Context, agentID string, since time.Time, limit int) ([]robot.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, interaction_type, content, metadata, created_at_ms FROM interactions
		WHERE agent_id = ? AND created_at_ms >= ?
		ORDER BY created_at_ms DESC, rowid DESC LIMIT ?`,
		agentID, since.UnixMilli(), limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	defer rows.Close()

	var out []robot.Interaction
	for rows.Next() {
		i := robot.Interaction{AgentID: agentID}
		var typ, meta string
		var ms int64
		if err := rows.Scan(&i.ID, &typ, &i.Content, &meta, &ms); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		i.Type = robot.InteractionType(typ)
		i.Timestamp = fromMS(ms)
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &i.Metadata)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// SaveMemory upserts a memory by ID.
func (s *SQLite) SaveMemory(ctx context.Context, m robot.Memory) error {
	var emb []byte
	if len(m.Embedding) > 0 {
		var err error
		if emb, err = json.Marshal(m.Embedding); err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, agent_id, memory_type, content, importance, embedding, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			importance = excluded.importance,
			embedding = excluded.embedding,
			updated_at_ms = excluded.updated_at_ms`,
		m.ID, m.AgentID, string(m.Type), m.Content, m.Importance, string(emb),
		toMS(m.CreatedAt), toMS(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save memory %s: %w", m.ID, err)
	}
	return nil
}

// ListMemories returns memories by importance desc, newest first on ties.
func (s *SQLite) ListMemories(ctx context.Context, agentID string, typ robot.MemoryType, minImportance, limit int) ([]robot.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_type, content, importance, embedding, created_at_ms, updated_at_ms
		FROM memories
		WHERE agent_id = ? AND (? = '' OR memory_type = ?) AND importance >= ?
		ORDER BY importance DESC, created_at_ms DESC LIMIT ?`,
		agentID, string(typ), string(typ), minImportance, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []robot.Memory
	for rows.Next() {
		m := robot.Memory{AgentID: agentID}
		var mt, emb string
		var created, updated int64
		if err := rows.Scan(&m.ID, &mt, &m.Content, &m.Importance, &emb, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Type = robot.MemoryType(mt)
		m.CreatedAt = fromMS(created)
		m.UpdatedAt = fromMS(updated)
		if emb != "" {
			_ = json.Unmarshal([]byte(emb), &m.Embedding)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMemory removes a memory, reporting whether it existed.
func (s *SQLite) DeleteMemory(ctx context.Context, agentID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND agent_id = ?`, id, agentID)
	if err != nil {
		return false, fmt.Errorf("delete memory %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateImportance sets a memory's importance and update time.
func (s *SQLite) UpdateImportance(ctx context.Context, agentID, id string, importance int, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET importance = ?, updated_at_ms = ? WHERE id = ? AND agent_id = ?`,
		importance, toMS(at), id, agentID)
	if err != nil {
		return false, fmt.Errorf("update memory %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteStale removes low-importance memories created before cutoff.
func (s *SQLite) DeleteStale(ctx context.Context, agentID string, below int, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memories WHERE agent_id = ? AND importance < ? AND created_at_ms < ?`,
		agentID, below, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete stale memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
