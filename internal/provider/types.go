package provider

import (
	"context"
	"time"
)

// Provider is a text-generation backend.
type Provider interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthCheck(ctx context.Context) error
}

// ChatRequest represents a request to an LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents a response from an LLM provider.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig holds configuration for a provider instance.
type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
}
