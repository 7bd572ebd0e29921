// Package embedding turns text into vectors for memory relevance ranking.
package embedding

import (
	"context"
	"fmt"
)

// DefaultDimension is the vector size assumed when the backend cannot tell.
const DefaultDimension = 384

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"`  // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	CacheSize int64  `json:"cache_size"` // cached vectors; 0 disables the cache
}

// New builds the configured provider. An empty provider name returns nil.
func New(cfg Config) (Provider, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	switch cfg.Provider {
	case "":
		return nil, nil
	case "api":
		return NewAPIProvider(cfg), nil
	case "local", "ollama":
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
