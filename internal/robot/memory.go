package robot

import "time"

// MemoryType classifies a long-term memory.
type MemoryType string

const (
	MemoryEpisodic       MemoryType = "episodic"
	MemorySemantic       MemoryType = "semantic"
	MemoryProcedural     MemoryType = "procedural"
	MemoryEmotionalEvent MemoryType = "emotional_event"
)

// Memory is a long-term memory entry. Importance is 0-100 once reweighted;
// initial writes are stored as given.
type Memory struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	Type       MemoryType `json:"type"`
	Content    string     `json:"content"`
	Importance int        `json:"importance"`
	Embedding  []float32  `json:"embedding,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ClampImportance bounds v to [0,100].
func ClampImportance(v int) int {
	return max(0, min(100, v))
}
