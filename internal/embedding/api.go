package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const requestTimeout = 30 * time.Second

// APIProvider embeds memory contents in batches through an /embeddings
// endpoint of the OpenAI shape.
type APIProvider struct {
	endpoint  string
	model     string
	apiKey    string
	dimension int
	client    *http.Client

	observed atomic.Int64
}

// NewAPIProvider creates an APIProvider. cfg.Dimension is reported until the
// first vector comes back.
func NewAPIProvider(cfg Config) *APIProvider {
	return &APIProvider{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed sends texts as a single batch. Vectors are placed by the index the
// backend reports, or by arrival order when that index is unusable.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result apiResponse
	if err := postJSON(ctx, p.client, p.endpoint+"/embeddings", p.apiKey, apiRequest{Model: p.model, Input: texts}, &result); err != nil {
		return nil, fmt.Errorf("embed %d texts with %s: %w", len(texts), p.model, err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embed with %s: %d vectors for %d texts", p.model, len(result.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, d := range result.Data {
		slot := d.Index
		if slot < 0 || slot >= len(vecs) || vecs[slot] != nil {
			slot = i
		}
		vecs[slot] = d.Embedding
	}
	observe(&p.observed, vecs)
	return vecs, nil
}

// Dimension returns the size of the first vector received, or the configured
// value before that.
func (p *APIProvider) Dimension() int {
	if d := p.observed.Load(); d > 0 {
		return int(d)
	}
	return p.dimension
}

func observe(dim *atomic.Int64, vecs [][]float32) {
	if len(vecs) > 0 && len(vecs[0]) > 0 {
		dim.CompareAndSwap(0, int64(len(vecs[0])))
	}
}

// postJSON posts in as JSON and decodes a 200 answer into out.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
