// Package memory is the robot's long-term memory: importance-weighted
// records with relevance ranking and age-based consolidation.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/mignon/internal/embedding"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/nidhogg/mignon/internal/store"
	"go.uber.org/zap"
)

// DefaultImportance is used by the typed helpers when no score is given.
const DefaultImportance = 50

// ConsolidationPolicy decides which memories consolidation removes: those
// below MinImportance and older than MaxAge.
type ConsolidationPolicy struct {
	MinImportance int           `json:"min_importance"`
	MaxAge        time.Duration `json:"max_age"`
}

// DefaultConsolidationPolicy drops importance < 10 older than 30 days.
func DefaultConsolidationPolicy() ConsolidationPolicy {
	return ConsolidationPolicy{MinImportance: 10, MaxAge: 30 * 24 * time.Hour}
}

// Service manages one agent's long-term memories.
type Service struct {
	agentID  string
	store    store.MemoryStore
	ranker   Ranker
	embedder embedding.Provider
	index    VectorIndex
	policy   ConsolidationPolicy
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRanker replaces the default keyword ranker.
func WithRanker(r Ranker) Option { return func(s *Service) { s.ranker = r } }

// WithEmbedder sets the embedder used for indexing and semantic search.
func WithEmbedder(e embedding.Provider) Option { return func(s *Service) { s.embedder = e } }

// WithIndex mirrors memory embeddings into a vector index.
func WithIndex(idx VectorIndex) Option { return func(s *Service) { s.index = idx } }

// WithPolicy overrides the consolidation thresholds.
func WithPolicy(p ConsolidationPolicy) Option { return func(s *Service) { s.policy = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a memory service for agentID.
func New(agentID string, st store.MemoryStore, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		agentID: agentID,
		store:   st,
		ranker:  KeywordRanker{},
		policy:  DefaultConsolidationPolicy(),
		now:     time.Now,
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	if s.embedder != nil {
		s.embedder = embedding.NewFallback(s.embedder, s.embedder.Dimension(), logger)
	} else {
		s.embedder = embedding.NewFallback(nil, embedding.DefaultDimension, logger)
	}
	return s
}

// AgentID returns the agent the service is scoped to.
func (s *Service) AgentID() string { return s.agentID }

// Remember stores a memory. Importance is stored as given. When a vector
// index is configured and no embedding is supplied, the content is embedded
// first; indexing problems are logged and never fail the write.
func (s *Service) Remember(ctx context.Context, typ robot.MemoryType, content string, importance int, vec []float32) (robot.Memory, error) {
	now := s.now().UTC()
	m := robot.Memory{
		ID:         uuid.New().String(),
		AgentID:    s.agentID,
		Type:       typ,
		Content:    content,
		Importance: importance,
		Embedding:  vec,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.index != nil && len(m.Embedding) == 0 {
		if vecs, _ := s.embedder.Embed(ctx, []string{content}); len(vecs) == 1 && !isZero(vecs[0]) {
			m.Embedding = vecs[0]
		}
	}
	if err := s.store.SaveMemory(ctx, m); err != nil {
		return robot.Memory{}, fmt.Errorf("remember: %w", err)
	}
	if s.index != nil && len(m.Embedding) > 0 && !isZero(m.Embedding) {
		if err := s.index.Upsert(ctx, s.agentID, m.ID, m.Embedding); err != nil {
			s.logger.Warn("index memory failed", zap.String("agent", s.agentID), zap.String("memory", m.ID), zap.Error(err))
		}
	}
	return m, nil
}

// RememberEpisode stores an experienced event.
func (s *Service) RememberEpisode(ctx context.Context, content string, importance int) (robot.Memory, error) {
	return s.Remember(ctx, robot.MemoryEpisodic, content, importance, nil)
}

// RememberFact stores a piece of knowledge.
func (s *Service) RememberFact(ctx context.Context, content string, importance int) (robot.Memory, error) {
	return s.Remember(ctx, robot.MemorySemantic, content, importance, nil)
}

// RememberProcedure stores a learned way of doing something.
func (s *Service) RememberProcedure(ctx context.Context, content string, importance int) (robot.Memory, error) {
	return s.Remember(ctx, robot.MemoryProcedural, content, importance, nil)
}

// Recall lists memories of a type (empty for all) with importance at least
// minImportance, most important first.
func (s *Service) Recall(ctx context.Context, typ robot.MemoryType, limit, minImportance int) ([]robot.Memory, error) {
	mems, err := s.store.ListMemories(ctx, s.agentID, typ, minImportance, limit)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	return mems, nil
}

// RelevanceSearch ranks every memory of the agent against query.
func (s *Service) RelevanceSearch(ctx context.Context, query string, limit int) ([]robot.Memory, error) {
	all, err := s.store.ListMemories(ctx, s.agentID, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("relevance search: %w", err)
	}
	return s.ranker.Rank(ctx, s.agentID, query, all, limit), nil
}

// Forget deletes a memory. It reports false when the id is unknown.
func (s *Service) Forget(ctx context.Context, id string) (bool, error) {
	ok, err := s.store.DeleteMemory(ctx, s.agentID, id)
	if err != nil {
		return false, fmt.Errorf("forget %s: %w", id, err)
	}
	if ok && s.index != nil {
		if err := s.index.Delete(ctx, s.agentID, id); err != nil {
			s.logger.Warn("unindex memory failed", zap.String("memory", id), zap.Error(err))
		}
	}
	return ok, nil
}

// Reweight sets a memory's importance, clamped to [0,100].
func (s *Service) Reweight(ctx context.Context, id string, importance int) (bool, error) {
	ok, err := s.store.UpdateImportance(ctx, s.agentID, id, robot.ClampImportance(importance), s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("reweight %s: %w", id, err)
	}
	return ok, nil
}

// Consolidate deletes memories that are both unimportant and old, returning
// how many were removed.
func (s *Service) Consolidate(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.policy.MaxAge)
	var stale []string
	if s.index != nil {
		// collect ids first so the index can be pruned after the delete
		mems, err := s.store.ListMemories(ctx, s.agentID, "", 0, 0)
		if err == nil {
			for _, m := range mems {
				if m.Importance < s.policy.MinImportance && m.CreatedAt.Before(cutoff) {
					stale = append(stale, m.ID)
				}
			}
		}
	}
	n, err := s.store.DeleteStale(ctx, s.agentID, s.policy.MinImportance, cutoff)
	if err != nil {
		return 0, fmt.Errorf("consolidate: %w", err)
	}
	if len(stale) > 0 {
		if err := s.index.Delete(ctx, s.agentID, stale...); err != nil {
			s.logger.Warn("unindex stale memories failed", zap.Int("count", len(stale)), zap.Error(err))
		}
	}
	s.logger.Info("memory consolidation complete", zap.String("agent", s.agentID), zap.Int("deleted", n))
	return n, nil
}
