package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicProvider implements Provider over the Messages API.
type AnthropicProvider struct {
	config ProviderConfig
	client anthropic.Client
	logger *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider. Endpoint, when set,
// is the API base URL without the /v1 suffix.
func NewAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) *AnthropicProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		// the router owns retries through its fallback chain
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(strings.TrimSuffix(cfg.Endpoint, "/"), "/v1")))
	}
	return &AnthropicProvider{
		config: cfg,
		client: anthropic.NewClient(opts...),
		logger: logger,
	}
}

func (p *AnthropicProvider) ID() string   { return p.config.ID }
func (p *AnthropicProvider) Name() string { return p.config.Name }

// Chat sends a chat request.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	msg, err := p.client.Messages.New(ctx, p.convertRequest(req))
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}
	return convertAnthropicResponse(msg), nil
}

// convertRequest moves system messages into the top-level system field,
// which the Messages API requires.
func (p *AnthropicProvider) convertRequest(req *ChatRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" && len(p.config.Models) > 0 {
		model = p.config.Models[0]
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(model),
		MaxTokens:     int64(maxTokens),
		StopSequences: req.Stop,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return params
}

func convertAnthropicResponse(msg *anthropic.Message) *ChatResponse {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &ChatResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Content:      text.String(),
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}
}

// HealthCheck verifies the API key by listing models.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}
