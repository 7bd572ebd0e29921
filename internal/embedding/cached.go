package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes vectors per text in a bounded ristretto cache. Memory
// content is immutable once written, so entries never need invalidation.
type Cached struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache holding about size vectors.
func NewCached(inner Provider, size int64) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
		// cost counts vectors, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed serves hits from the cache and embeds the misses in one batch.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Set(missing[j], v, 1)
	}
	return out, nil
}

// Dimension delegates to the wrapped provider.
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Close releases the cache goroutines.
func (c *Cached) Close() { c.cache.Close() }
