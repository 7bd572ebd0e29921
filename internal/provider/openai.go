package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response ends up in the error.
const maxErrorBody = 512

// OpenAIProvider reasons through a chat completions endpoint. Local model
// servers such as llama.cpp, vLLM or Ollama expose the same protocol.
type OpenAIProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates a chat completions backend. An empty endpoint
// targets api.openai.com.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

// Chat asks the backend for one completion. An empty model uses the first
// configured one. req is not modified.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	payload := *req
	if payload.Model == "" && len(p.config.Models) > 0 {
		payload.Model = p.config.Models[0]
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	resp, err := p.do(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var completion openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode completion from %s: %w", p.config.ID, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no completion", p.config.ID)
	}

	choice := completion.Choices[0]
	p.logger.Debug("completion received",
		zap.String("backend", p.config.ID),
		zap.String("model", completion.Model),
		zap.Int("completion_tokens", completion.Usage.CompletionTokens))
	return &ChatResponse{
		ID:           completion.ID,
		Model:        completion.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        completion.Usage,
	}, nil
}

// HealthCheck lists the backend's models.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	resp.Body.Close()
	return nil
}

// do sends an authenticated request and turns any non-200 answer into an
// error carrying the start of the body.
func (p *OpenAIProvider) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, p.config.Endpoint+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reach %s: %w", p.config.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s %s: status %d: %s", p.config.ID, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp, nil
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}
