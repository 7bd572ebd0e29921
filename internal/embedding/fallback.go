package embedding

import (
	"context"

	"go.uber.org/zap"
)

// Fallback wraps a Provider so that Embed never fails: when the inner
// provider errors or is missing, every text gets a zero vector of the
// configured dimension. Zero vectors score 0 against everything.
type Fallback struct {
	inner     Provider
	dimension int
	logger    *zap.Logger
}

// NewFallback wraps inner. inner may be nil.
func NewFallback(inner Provider, dimension int, logger *zap.Logger) *Fallback {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Fallback{inner: inner, dimension: dimension, logger: logger}
}

// Embed returns one vector per text and a nil error.
func (f *Fallback) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if f.inner != nil {
		vecs, err := f.inner.Embed(ctx, texts)
		if err == nil && len(vecs) == len(texts) {
			return vecs, nil
		}
		if err != nil {
			f.logger.Warn("embedding failed, using zero vectors", zap.Int("texts", len(texts)), zap.Error(err))
		}
	}
	return Zero(len(texts), f.Dimension()), nil
}

// Dimension reports the inner provider's dimension when known.
func (f *Fallback) Dimension() int {
	if f.inner != nil {
		if d := f.inner.Dimension(); d > 0 {
			return d
		}
	}
	return f.dimension
}

// Zero returns n zero vectors of size dim.
func Zero(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
	}
	return out
}
