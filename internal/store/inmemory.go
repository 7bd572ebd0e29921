package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
)

// InMemory is a process-local LogStore used when no database is configured
// and in tests.
type InMemory struct {
	mu           sync.RWMutex
	sensors      map[string][]robot.SensorSnapshot
	emotions     map[string][]robot.EmotionState
	events       map[string][]robot.Event
	interactions map[string][]robot.Interaction
	memories     map[string]map[string]robot.Memory

	failing error
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		sensors:      make(map[string][]robot.SensorSnapshot),
		emotions:     make(map[string][]robot.EmotionState),
		events:       make(map[string][]robot.Event),
		interactions: make(map[string][]robot.Interaction),
		memories:     make(map[string]map[string]robot.Memory),
	}
}

// SetFailing makes subsequent calls fail with err; nil restores normal behavior.
func (s *InMemory) SetFailing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

func (s *InMemory) Close() {}

func (s *InMemory) SaveSensors(_ context.Context, snap robot.SensorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	snap.Timestamp = stamp(snap.Timestamp)
	s.sensors[snap.AgentID] = append(s.sensors[snap.AgentID], snap)
	return nil
}

func (s *InMemory) LatestSensors(_ context.Context, agentID string) (robot.SensorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return robot.SensorSnapshot{AgentID: agentID}, s.failing
	}
	list := s.sensors[agentID]
	if len(list) == 0 {
		return robot.SensorSnapshot{AgentID: agentID}, ErrNotFound
	}
	return list[len(list)-1], nil
}

func (s *InMemory) SaveEmotion(_ context.Context, agentID string, e robot.EmotionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	s.emotions[agentID] = append(s.emotions[agentID], e)
	return nil
}

func (s *InMemory) CurrentEmotion(_ context.Context, agentID string) (robot.EmotionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return robot.NeutralEmotion(), s.failing
	}
	list := s.emotions[agentID]
	if len(list) == 0 {
		return robot.NeutralEmotion(), ErrNotFound
	}
	return list[len(list)-1], nil
}

func (s *InMemory) SaveEvent(_ context.Context, e robot.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	s.events[e.AgentID] = append(s.events[e.AgentID], e)
	return nil
}

func (s *InMemory) RecentEvents(_ context.Context, agentID string, limit int) ([]robot.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, s.failing
	}
	list := s.events[agentID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]robot.Event(nil), list...), nil
}

func (s *InMemory) SaveInteraction(_ context.Context, i robot.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	s.interactions[i.AgentID] = append(s.interactions[i.AgentID], i)
	return nil
}

func (s *InMemory) RecentInteractions(_ context.Context, agentID string, since time.Time, limit int) ([]robot.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, s.failing
	}
	var out []robot.Interaction
	list := s.interactions[agentID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Timestamp.Before(since) {
			continue
		}
		out = append(out, list[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) SaveMemory(_ context.Context, m robot.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	byID, ok := s.memories[m.AgentID]
	if !ok {
		byID = make(map[string]robot.Memory)
		s.memories[m.AgentID] = byID
	}
	if prev, ok := byID[m.ID]; ok {
		m.CreatedAt = prev.CreatedAt
	}
	byID[m.ID] = m
	return nil
}

func (s *InMemory) ListMemories(_ context.Context, agentID string, typ robot.MemoryType, minImportance, limit int) ([]robot.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, s.failing
	}
	var out []robot.Memory
	for _, m := range s.memories[agentID] {
		if typ != "" && m.Type != typ {
			continue
		}
		if m.Importance < minImportance {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) DeleteMemory(_ context.Context, agentID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return false, s.failing
	}
	if _, ok := s.memories[agentID][id]; !ok {
		return false, nil
	}
	delete(s.memories[agentID], id)
	return true, nil
}

func (s *InMemory) UpdateImportance(_ context.Context, agentID, id string, importance int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return false, s.failing
	}
	m, ok := s.memories[agentID][id]
	if !ok {
		return false, nil
	}
	m.Importance = importance
	m.UpdatedAt = stamp(at)
	s.memories[agentID][id] = m
	return true, nil
}

func (s *InMemory) DeleteStale(_ context.Context, agentID string, below int, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return 0, s.failing
	}
	n := 0
	for id, m := range s.memories[agentID] {
		if m.Importance < below && m.CreatedAt.Before(cutoff) {
			delete(s.memories[agentID], id)
			n++
		}
	}
	return n, nil
}
