package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
)

// LocalProvider embeds through an Ollama server on the robot's host. Ollama
// takes one prompt per call.
type LocalProvider struct {
	endpoint  string
	model     string
	dimension int
	client    *http.Client

	observed atomic.Int64
}

// NewLocalProvider creates a LocalProvider. An empty endpoint targets the
// default Ollama port on localhost.
func NewLocalProvider(cfg Config) *LocalProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &LocalProvider{
		endpoint:  endpoint,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed calls the server once per text and stops at the first failure.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		var result localResponse
		if err := postJSON(ctx, p.client, p.endpoint+"/api/embeddings", "", localRequest{Model: p.model, Prompt: text}, &result); err != nil {
			return nil, fmt.Errorf("embed text %d/%d with %s: %w", i+1, len(texts), p.model, err)
		}
		if len(result.Embedding) == 0 {
			return nil, fmt.Errorf("embed text %d/%d: %s returned an empty vector", i+1, len(texts), p.model)
		}
		vecs[i] = result.Embedding
	}
	observe(&p.observed, vecs)
	return vecs, nil
}

// Dimension returns the observed vector size or the configured one.
func (p *LocalProvider) Dimension() int {
	if d := p.observed.Load(); d > 0 {
		return int(d)
	}
	return p.dimension
}
