package memory

import (
	"context"
)

// DefaultTopK is the number of hits SemanticSearch returns by default.
const DefaultTopK = 3

// Hit is a position in the searched items and its cosine similarity.
type Hit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// SemanticSearch embeds query and items and returns the topK items by cosine
// similarity. No items means no embedding call. Embedding failures degrade
// to zero vectors, which score 0.
func (s *Service) SemanticSearch(ctx context.Context, query string, items []string, topK int) []Hit {
	if len(items) == 0 {
		return nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	qv, _ := s.embedder.Embed(ctx, []string{query})
	dv, _ := s.embedder.Embed(ctx, items)
	var q []float32
	if len(qv) == 1 {
		q = qv[0]
	}

	hits := make([]Hit, len(items))
	for i := range items {
		hits[i] = Hit{Index: i}
		if i < len(dv) {
			hits[i].Score = cosine(q, dv[i])
		}
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
