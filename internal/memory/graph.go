package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/nidhogg/mignon/internal/store"
	"go.uber.org/zap"
)

var _ store.MemoryStore = (*GraphStore)(nil)

// GraphStore keeps memories as (:Memory) nodes in Neo4j. Each node is linked
// to its agent with (:Agent)-[:REMEMBERS]->(:Memory).
type GraphStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewGraphStore creates a Neo4j-backed memory store.
func NewGraphStore(uri, user, password string, logger *zap.Logger) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &GraphStore{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (s *GraphStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// EnsureSchema creates the uniqueness constraint and lookup index.
func (s *GraphStore) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT memory_id IF NOT EXISTS FOR (m:Memory) REQUIRE m.id IS UNIQUE`,
		`CREATE INDEX memory_agent IF NOT EXISTS FOR (m:Memory) ON (m.agent_id, m.importance)`,
	} {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure memory schema: %w", err)
		}
	}
	return nil
}

// SaveMemory upserts a memory node.
func (s *GraphStore) SaveMemory(ctx context.Context, m robot.Memory) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Agent {id: $agentId})
		 MERGE (m:Memory {id: $id})
		 ON CREATE SET m.created_at = $createdAt
		 SET m.agent_id = $agentId, m.memory_type = $type,
		     m.content = $content, m.importance = $importance,
		     m.embedding = $embedding, m.updated_at = $updatedAt
		 MERGE (a)-[:REMEMBERS]->(m)`,
		map[string]any{
			"id":         m.ID,
			"agentId":    m.AgentID,
			"type":       string(m.Type),
			"content":    m.Content,
			"importance": int64(m.Importance),
			"embedding":  toFloat64s(m.Embedding),
			"createdAt":  stampTime(m.CreatedAt),
			"updatedAt":  stampTime(m.UpdatedAt),
		})
	if err != nil {
		return fmt.Errorf("save memory %s: %w", m.ID, err)
	}
	return nil
}

// ListMemories returns memories by importance desc.
func (s *GraphStore) ListMemories(ctx context.Context, agentID string, typ robot.MemoryType, minImportance, limit int) ([]robot.Memory, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	if limit <= 0 {
		limit = 1 << 31
	}
	result, err := session.Run(ctx,
		`MATCH (m:Memory {agent_id: $agentId})
		 WHERE ($type = '' OR m.memory_type = $type) AND m.importance >= $minImportance
		 RETURN m.id AS id, m.memory_type AS type, m.content AS content,
		        m.importance AS importance, m.embedding AS embedding,
		        m.created_at AS created_at, m.updated_at AS updated_at
		 ORDER BY m.importance DESC, m.created_at DESC LIMIT $limit`,
		map[string]any{
			"agentId":       agentID,
			"type":          string(typ),
			"minImportance": int64(minImportance),
			"limit":         int64(limit),
		})
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	var memories []robot.Memory
	for result.Next(ctx) {
		memories = append(memories, recordToMemory(agentID, result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return memories, nil
}

// DeleteMemory removes a memory node and its relationships.
func (s *GraphStore) DeleteMemory(ctx context.Context, agentID, id string) (bool, error) {
	n, err := s.deleteWhere(ctx,
		`MATCH (m:Memory {id: $id, agent_id: $agentId}) DETACH DELETE m`,
		map[string]any{"id": id, "agentId": agentID})
	if err != nil {
		return false, fmt.Errorf("delete memory %s: %w", id, err)
	}
	return n > 0, nil
}

// UpdateImportance sets importance and updated_at on a memory node.
func (s *GraphStore) UpdateImportance(ctx context.Context, agentID, id string, importance int, at time.Time) (bool, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (m:Memory {id: $id, agent_id: $agentId})
		 SET m.importance = $importance, m.updated_at = $at
		 RETURN m.id`,
		map[string]any{"id": id, "agentId": agentID, "importance": int64(importance), "at": stampTime(at)})
	if err != nil {
		return false, fmt.Errorf("update memory %s: %w", id, err)
	}
	found := result.Next(ctx)
	if err := result.Err(); err != nil {
		return false, fmt.Errorf("update memory %s: %w", id, err)
	}
	return found, nil
}

// DeleteStale removes low-importance memories created before cutoff.
func (s *GraphStore) DeleteStale(ctx context.Context, agentID string, below int, cutoff time.Time) (int, error) {
	n, err := s.deleteWhere(ctx,
		`MATCH (m:Memory {agent_id: $agentId})
		 WHERE m.importance < $below AND m.created_at < $cutoff
		 DETACH DELETE m`,
		map[string]any{"agentId": agentID, "below": int64(below), "cutoff": cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete stale memories: %w", err)
	}
	s.logger.Debug("stale memories removed", zap.String("agent", agentID), zap.Int("deleted", n))
	return n, nil
}

func (s *GraphStore) deleteWhere(ctx context.Context, cypher string, params map[string]any) (int, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return 0, err
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return 0, err
	}
	return summary.Counters().NodesDeleted(), nil
}

func recordToMemory(agentID string, rec *neo4j.Record) robot.Memory {
	m := robot.Memory{AgentID: agentID}
	if v, ok := rec.Get("id"); ok {
		m.ID, _ = v.(string)
	}
	if v, ok := rec.Get("type"); ok {
		t, _ := v.(string)
		m.Type = robot.MemoryType(t)
	}
	if v, ok := rec.Get("content"); ok {
		m.Content, _ = v.(string)
	}
	if v, ok := rec.Get("importance"); ok {
		if n, ok := v.(int64); ok {
			m.Importance = int(n)
		}
	}
	if v, ok := rec.Get("embedding"); ok {
		if list, ok := v.([]any); ok {
			m.Embedding = make([]float32, 0, len(list))
			for _, x := range list {
				f, _ := x.(float64)
				m.Embedding = append(m.Embedding, float32(f))
			}
		}
	}
	if v, ok := rec.Get("created_at"); ok {
		m.CreatedAt, _ = v.(time.Time)
	}
	if v, ok := rec.Get("updated_at"); ok {
		m.UpdatedAt, _ = v.(time.Time)
	}
	return m
}

func toFloat64s(v []float32) []float64 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func stampTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
