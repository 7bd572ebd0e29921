package robot

import (
	"encoding/json"
	"math"
	"time"
)

// InteractionType tags what kind of exchange an Interaction records.
type InteractionType string

const (
	InteractionConversation    InteractionType = "conversation"
	InteractionReaction        InteractionType = "reaction"
	InteractionInstruction     InteractionType = "instruction"
	InteractionAction          InteractionType = "action"
	InteractionVoiceCommand    InteractionType = "voice_command"
	InteractionSpeechSynthesis InteractionType = "speech_synthesis"
	InteractionVisionDetection InteractionType = "vision_detection"
)

// Interaction is an immutable record of an exchange with the environment.
type Interaction struct {
	ID        string          `json:"id,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Type      InteractionType `json:"type"`
	Content   string          `json:"content"`
	Metadata  Metadata        `json:"metadata"`
}

// Metadata carries the type-specific fields of an interaction. Known fields
// are typed; anything else is kept in Extra and survives a round trip.
type Metadata struct {
	IsRobot   *bool
	Sentiment string
	Success   *bool
	Result    string
	Stimulus  string
	Intensity *int
	Source    string
	Executed  *bool
	Extra     map[string]any
}

// BoolPtr is a helper for Metadata literals.
func BoolPtr(v bool) *bool { return &v }

// MarshalJSON flattens the metadata into a single JSON object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// UnmarshalJSON splits a flat JSON object into typed fields and Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MetadataFromMap(raw)
	return nil
}

// Map returns the flat key-value view of the metadata.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.IsRobot != nil {
		out["is_robot"] = *m.IsRobot
	}
	if m.Sentiment != "" {
		out["sentiment"] = m.Sentiment
	}
	if m.Success != nil {
		out["success"] = *m.Success
	}
	if m.Result != "" {
		out["result"] = m.Result
	}
	if m.Stimulus != "" {
		out["stimulus"] = m.Stimulus
	}
	if m.Intensity != nil {
		out["intensity"] = *m.Intensity
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	if m.Executed != nil {
		out["executed"] = *m.Executed
	}
	return out
}

// MetadataFromMap builds Metadata from a flat map. Known keys with an
// unexpected type are left in Extra.
func MetadataFromMap(raw map[string]any) Metadata {
	var m Metadata
	for k, v := range raw {
		if !m.setKnown(k, v) {
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return m
}

func (m *Metadata) setKnown(key string, v any) bool {
	switch key {
	case "is_robot", "success", "executed":
		b, ok := v.(bool)
		if !ok {
			return false
		}
		switch key {
		case "is_robot":
			m.IsRobot = &b
		case "success":
			m.Success = &b
		default:
			m.Executed = &b
		}
	case "sentiment", "result", "stimulus", "source":
		s, ok := v.(string)
		if !ok {
			return false
		}
		switch key {
		case "sentiment":
			m.Sentiment = s
		case "result":
			m.Result = s
		case "stimulus":
			m.Stimulus = s
		default:
			m.Source = s
		}
	case "intensity":
		var n int
		switch x := v.(type) {
		case float64:
			n = int(math.Round(x))
		case int:
			n = x
		default:
			return false
		}
		m.Intensity = &n
	default:
		return false
	}
	return true
}

// Conversation builds a conversation interaction.
func Conversation(content string, isRobot bool, sentiment string) Interaction {
	return Interaction{
		Type:     InteractionConversation,
		Content:  content,
		Metadata: Metadata{IsRobot: BoolPtr(isRobot), Sentiment: sentiment},
	}
}

// Reaction builds a reaction interaction to a stimulus.
func Reaction(stimulus, reaction string, intensity int) Interaction {
	return Interaction{
		Type:     InteractionReaction,
		Content:  reaction,
		Metadata: Metadata{Stimulus: stimulus, Intensity: &intensity},
	}
}

// Instruction builds an instruction interaction.
func Instruction(instruction, source string, executed bool) Interaction {
	return Interaction{
		Type:     InteractionInstruction,
		Content:  instruction,
		Metadata: Metadata{Source: source, Executed: BoolPtr(executed)},
	}
}

// Action builds an action interaction.
func Action(action, result string, success bool) Interaction {
	return Interaction{
		Type:     InteractionAction,
		Content:  action,
		Metadata: Metadata{Result: result, Success: BoolPtr(success)},
	}
}
