package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ErrorPrefix marks a reasoning failure in place of generated text.
const ErrorPrefix = "Erreur: "

// Reasoner adapts the Router to a text-in, text-out generator that never
// fails. Backend errors come back as text starting with ErrorPrefix.
type Reasoner struct {
	router  *Router
	agentID string
	model   string
	system  string
	logger  *zap.Logger
}

// NewReasoner creates a Reasoner routing on behalf of agentID.
func NewReasoner(router *Router, agentID, model string, logger *zap.Logger) *Reasoner {
	return &Reasoner{router: router, agentID: agentID, model: model, logger: logger}
}

// WithSystem sets a system prompt sent ahead of every request.
func (r *Reasoner) WithSystem(system string) *Reasoner {
	r.system = system
	return r
}

// Generate runs prompt through the bound provider and returns its text.
func (r *Reasoner) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) string {
	if r.router == nil {
		return ErrorPrefix + "no reasoning backend configured"
	}
	req := &ChatRequest{
		Model:       r.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if r.system != "" {
		req.Messages = append(req.Messages, Message{Role: "system", Content: r.system})
	}
	req.Messages = append(req.Messages, Message{Role: "user", Content: prompt})

	resp, err := r.router.Route(ctx, r.agentID, req)
	if err != nil {
		r.logger.Warn("reasoning failed", zap.String("agent", r.agentID), zap.Error(err))
		return ErrorPrefix + err.Error()
	}
	if resp.Content == "" {
		return ErrorPrefix + fmt.Sprintf("empty completion from %s", resp.Model)
	}
	return resp.Content
}
