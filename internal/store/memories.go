package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
)

// SaveMemory upserts a memory by ID.
func (s *Postgres) SaveMemory(ctx context.Context, m robot.Memory) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memories (id, agent_id, memory_type, content, importance, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			importance = EXCLUDED.importance,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.AgentID, string(m.Type), m.Content, m.Importance, m.Embedding,
		stamp(m.CreatedAt), stamp(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save memory %s: %w", m.ID, err)
	}
	return nil
}

// ListMemories returns memories by importance desc, newest first on ties.
func (s *Postgres) ListMemories(ctx context.Context, agentID string, typ robot.MemoryType, minImportance, limit int) ([]robot.Memory, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, memory_type, content, importance, embedding, created_at, updated_at
		FROM memories
		WHERE agent_id = $1 AND ($2 = '' OR memory_type = $2) AND importance >= $3
		ORDER BY importance DESC, created_at DESC
		LIMIT $4`, agentID, string(typ), minImportance, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []robot.Memory
	for rows.Next() {
		m := robot.Memory{AgentID: agentID}
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &m.Importance, &m.Embedding, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMemory removes a memory, reporting whether it existed.
func (s *Postgres) DeleteMemory(ctx context.Context, agentID, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM memories WHERE id = $1 AND agent_id = $2`, id, agentID)
	if err != nil {
		return false, fmt.Errorf("delete memory %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateImportance sets a memory's importance and update time.
func (s *Postgres) UpdateImportance(ctx context.Context, agentID, id string, importance int, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE memories SET importance = $1, updated_at = $2
		WHERE id = $3 AND agent_id = $4`, importance, stamp(at), id, agentID)
	if err != nil {
		return false, fmt.Errorf("update memory %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteStale removes low-importance memories created before cutoff.
func (s *Postgres) DeleteStale(ctx context.Context, agentID string, below int, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM memories
		WHERE agent_id = $1 AND importance < $2 AND created_at < $3`, agentID, below, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
