package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router picks the reasoning backend for each robot. A bound robot tries its
// backend first and then its fallback chain. Unbound robots use the first
// backend registered.
type Router struct {
	mu       sync.RWMutex
	backends map[string]Provider
	primary  map[string]string   // robot ID -> backend ID
	chains   map[string][]string // robot ID -> backends tried after the primary
	first    string
	logger   *zap.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		backends: make(map[string]Provider),
		primary:  make(map[string]string),
		chains:   make(map[string][]string),
		logger:   logger,
	}
}

// Register makes a backend available for routing.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[p.ID()] = p
	if r.first == "" {
		r.first = p.ID()
	}
	r.logger.Info("reasoning backend registered", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// Bind makes backendID the first choice for robotID.
func (r *Router) Bind(robotID, backendID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary[robotID] = backendID
}

// SetFallbacks sets the backends tried, in order, when the primary one fails.
func (r *Router) SetFallbacks(robotID string, backendIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[robotID] = backendIDs
}

// Route sends req to the robot's backends in order and returns the first
// successful completion.
func (r *Router) Route(ctx context.Context, robotID string, req *ChatRequest) (*ChatResponse, error) {
	candidates := r.candidates(robotID)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no reasoning backend for robot %s", robotID)
	}

	var lastErr error
	for i, p := range candidates {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		r.logger.Warn("reasoning backend failed",
			zap.String("robot", robotID),
			zap.String("backend", p.ID()),
			zap.Int("attempt", i+1),
			zap.Int("of", len(candidates)),
			zap.Error(err))
	}
	return nil, fmt.Errorf("reasoning backends exhausted for robot %s: %w", robotID, lastErr)
}

// candidates snapshots the ordered backend list so that no lock is held
// during network calls.
func (r *Router) candidates(robotID string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	head, ok := r.backends[r.primary[robotID]]
	if !ok {
		head, ok = r.backends[r.first]
	}
	if !ok {
		return nil
	}
	out := []Provider{head}
	for _, id := range r.chains[robotID] {
		if p, ok := r.backends[id]; ok && id != head.ID() {
			out = append(out, p)
		}
	}
	return out
}

// HealthCheck returns the unreachable backends keyed by ID.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	backends := make([]Provider, 0, len(r.backends))
	for _, p := range r.backends {
		backends = append(backends, p)
	}
	r.mu.RUnlock()

	failed := make(map[string]error)
	for _, p := range backends {
		if err := p.HealthCheck(ctx); err != nil {
			failed[p.ID()] = err
		}
	}
	return failed
}

// NewProvider builds a backend from its config. Any type other than
// "anthropic" speaks the chat completions protocol.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) Provider {
	if cfg.Type == "anthropic" {
		return NewAnthropicProvider(cfg, logger)
	}
	return NewOpenAIProvider(cfg, logger)
}
