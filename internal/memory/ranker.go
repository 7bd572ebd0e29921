package memory

import (
	"context"
	"sort"

	"github.com/nidhogg/mignon/internal/embedding"
	"github.com/nidhogg/mignon/internal/robot"
	"go.uber.org/zap"
)

// Ranker orders candidate memories by relevance to a query. Candidates that
// are not relevant at all are dropped.
type Ranker interface {
	Rank(ctx context.Context, agentID, query string, candidates []robot.Memory, limit int) []robot.Memory
}

// KeywordRanker scores a memory by how many query terms occur in its
// content as substrings.
type KeywordRanker struct{}

// Rank implements Ranker.
func (KeywordRanker) Rank(_ context.Context, _ string, query string, candidates []robot.Memory, limit int) []robot.Memory {
	terms := queryTerms(query)
	type scored struct {
		m     robot.Memory
		score int
	}
	var hits []scored
	for _, m := range candidates {
		if n := termHits(terms, m.Content); n > 0 {
			hits = append(hits, scored{m: m, score: n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]robot.Memory, 0, len(hits))
	for _, h := range hits {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, h.m)
	}
	return out
}

// VectorRanker ranks by cosine similarity between the embedded query and
// each memory's embedding. With an index, similarity comes from the index;
// otherwise it is computed against the stored embeddings. Any failure falls
// back to keyword ranking.
type VectorRanker struct {
	embedder embedding.Provider
	index    VectorIndex
	fallback Ranker
	logger   *zap.Logger
}

// NewVectorRanker creates a VectorRanker. index may be nil.
func NewVectorRanker(embedder embedding.Provider, index VectorIndex, logger *zap.Logger) *VectorRanker {
	return &VectorRanker{embedder: embedder, index: index, fallback: KeywordRanker{}, logger: logger}
}

// Rank implements Ranker.
func (r *VectorRanker) Rank(ctx context.Context, agentID, query string, candidates []robot.Memory, limit int) []robot.Memory {
	if len(candidates) == 0 {
		return nil
	}
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 || isZero(vecs[0]) {
		r.logger.Debug("query embedding unavailable, ranking by keywords", zap.Error(err))
		return r.fallback.Rank(ctx, agentID, query, candidates, limit)
	}
	q := vecs[0]

	var hits []Hit
	if r.index != nil {
		hits, err = r.indexHits(ctx, agentID, q, candidates)
		if err != nil {
			r.logger.Warn("vector index query failed, ranking by keywords", zap.String("agent", agentID), zap.Error(err))
			return r.fallback.Rank(ctx, agentID, query, candidates, limit)
		}
	} else {
		for i, m := range candidates {
			if score := cosine(q, m.Embedding); score > 0 {
				hits = append(hits, Hit{Index: i, Score: score})
			}
		}
	}
	sortHits(hits)

	out := make([]robot.Memory, 0, len(hits))
	for _, h := range hits {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, candidates[h.Index])
	}
	return out
}

func (r *VectorRanker) indexHits(ctx context.Context, agentID string, q []float32, candidates []robot.Memory) ([]Hit, error) {
	found, err := r.index.Query(ctx, agentID, q, len(candidates))
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(candidates))
	for i, m := range candidates {
		pos[m.ID] = i
	}
	var hits []Hit
	for _, f := range found {
		i, ok := pos[f.ID]
		if !ok || f.Score <= 0 {
			continue
		}
		hits = append(hits, Hit{Index: i, Score: f.Score})
	}
	return hits, nil
}
