package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nidhogg/mignon/internal/vectorstore"
	chromem "github.com/philippgille/chromem-go"
)

// IndexHit is a memory id with its similarity to the query.
type IndexHit struct {
	ID    string
	Score float64
}

// VectorIndex stores memory embeddings for nearest-neighbor lookup.
type VectorIndex interface {
	Upsert(ctx context.Context, agentID, id string, vec []float32) error
	Query(ctx context.Context, agentID string, vec []float32, topK int) ([]IndexHit, error)
	Delete(ctx context.Context, agentID string, ids ...string) error
}

// QdrantIndex keeps every agent's memories in one Qdrant collection and
// filters on the agent_id payload field.
type QdrantIndex struct {
	client     *vectorstore.Client
	collection string
}

// NewQdrantIndex ensures the collection exists with the given dimension.
func NewQdrantIndex(ctx context.Context, client *vectorstore.Client, collection string, dimension int) (*QdrantIndex, error) {
	if err := client.EnsureCollection(ctx, collection, uint64(dimension)); err != nil {
		return nil, fmt.Errorf("ensure memory collection: %w", err)
	}
	return &QdrantIndex{client: client, collection: collection}, nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, agentID, id string, vec []float32) error {
	return q.client.Upsert(ctx, q.collection, id, vec, map[string]string{"agent_id": agentID})
}

func (q *QdrantIndex) Query(ctx context.Context, agentID string, vec []float32, topK int) ([]IndexHit, error) {
	res, err := q.client.Search(ctx, q.collection, vec, uint64(topK), map[string]string{"agent_id": agentID})
	if err != nil {
		return nil, err
	}
	hits := make([]IndexHit, 0, len(res))
	for _, r := range res {
		hits = append(hits, IndexHit{ID: r.ID, Score: float64(r.Score)})
	}
	return hits, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, _ string, ids ...string) error {
	return q.client.Delete(ctx, q.collection, ids...)
}

// ChromemIndex is an embedded index with one chromem collection per agent.
type ChromemIndex struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.Mutex
}

// NewChromemIndex creates an empty in-process index.
func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (c *ChromemIndex) collection(agentID string) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[agentID]; ok {
		return col, nil
	}
	// embeddings are always supplied, so no embedding func
	col, err := c.db.GetOrCreateCollection("memories_"+agentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection for %s: %w", agentID, err)
	}
	c.collections[agentID] = col
	return col, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, agentID, id string, vec []float32) error {
	col, err := c.collection(agentID)
	if err != nil {
		return err
	}
	// chromem normalizes in place
	v := append([]float32(nil), vec...)
	if err := col.AddDocument(ctx, chromem.Document{ID: id, Content: id, Embedding: v}); err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

func (c *ChromemIndex) Query(ctx context.Context, agentID string, vec []float32, topK int) ([]IndexHit, error) {
	col, err := c.collection(agentID)
	if err != nil {
		return nil, err
	}
	// chromem rejects nResults larger than the collection
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}
	res, err := col.QueryEmbedding(ctx, append([]float32(nil), vec...), topK, nil, nil)
	if err != nil {
		if strings.Contains(err.Error(), "nResults") {
			return nil, nil
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	hits := make([]IndexHit, 0, len(res))
	for _, r := range res {
		hits = append(hits, IndexHit{ID: r.ID, Score: float64(r.Similarity)})
	}
	return hits, nil
}

func (c *ChromemIndex) Delete(ctx context.Context, agentID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := c.collection(agentID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}
