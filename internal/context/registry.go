package context

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/mignon/internal/memory"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/nidhogg/mignon/internal/store"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by every agent context.
type Deps struct {
	Store       store.LogStore
	Analyzer    Analyzer
	Synthesizer Synthesizer
	// Memories builds the long-term memory service for one agent. Nil
	// disables emotional memories.
	Memories func(agentID string) *memory.Service
	// Publisher is optional.
	Publisher Publisher
	Now       func() time.Time
}

// Registry owns the live context of every robot, keyed by robot id.
type Registry struct {
	deps   Deps
	agents map[string]*Agent
	mu     sync.Mutex
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps, logger *zap.Logger) *Registry {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		deps:   deps,
		agents: make(map[string]*Agent),
		logger: logger,
	}
}

// Get returns the context for agentID, creating and warm-loading it on
// first reference.
func (r *Registry) Get(ctx context.Context, agentID string) *Agent {
	r.mu.Lock()
	if a, ok := r.agents[agentID]; ok {
		r.mu.Unlock()
		return a
	}
	a := &Agent{
		id:        agentID,
		store:     r.deps.Store,
		analyzer:  r.deps.Analyzer,
		synth:     r.deps.Synthesizer,
		publisher: r.deps.Publisher,
		now:       r.deps.Now,
		emotion:   robot.NeutralEmotion(),
		logger:    r.logger,
	}
	if r.deps.Memories != nil {
		a.memories = r.deps.Memories(agentID)
	}
	// Ingestion waits for the warm-load; the registry lock does not.
	a.ingest.Lock()
	r.agents[agentID] = a
	r.mu.Unlock()

	a.warmLoad(ctx)
	a.ingest.Unlock()

	r.logger.Info("robot context created", zap.String("agent", agentID))
	return a
}

// Lookup returns the context for agentID without creating it.
func (r *Registry) Lookup(agentID string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	return a, ok
}

// DrainCommands drains the queue of agentID. Unknown robots get nothing.
func (r *Registry) DrainCommands(agentID string) []robot.Command {
	a, ok := r.Lookup(agentID)
	if !ok {
		r.logger.Warn("command drain for unknown robot", zap.String("agent", agentID))
		return []robot.Command{}
	}
	return a.DrainCommands(agentID)
}

// RecordInteraction records an interaction for a known robot.
func (r *Registry) RecordInteraction(ctx context.Context, agentID string, typ robot.InteractionType, content string, md robot.Metadata) bool {
	a, ok := r.Lookup(agentID)
	if !ok {
		r.logger.Warn("interaction for unknown robot", zap.String("agent", agentID))
		return false
	}
	return a.RecordInteraction(ctx, typ, content, md)
}

// Agents lists the ids of every live context.
func (r *Registry) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MemoryServices returns the memory service of every live context.
func (r *Registry) MemoryServices() []*memory.Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*memory.Service, 0, len(r.agents))
	for _, a := range r.agents {
		if a.memories != nil {
			out = append(out, a.memories)
		}
	}
	return out
}

// Close drops every live context. Queued commands are discarded.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.agents {
		delete(r.agents, id)
	}
	r.logger.Info("robot contexts closed")
}
