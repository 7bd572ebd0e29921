// Package robot holds the data model shared by the context state machine,
// the analysis pipeline, the command synthesizer and the memory layer.
package robot

import (
	"encoding/json"
	"math"
	"time"
)

// EmotionType is one of the fixed emotion labels the robot can express.
type EmotionType string

const (
	EmotionJoie      EmotionType = "joie"
	EmotionPeur      EmotionType = "peur"
	EmotionCuriosite EmotionType = "curiosite"
	EmotionTristesse EmotionType = "tristesse"
	EmotionColere    EmotionType = "colere"
	EmotionFatigue   EmotionType = "fatigue"
	EmotionSurprise  EmotionType = "surprise"
	EmotionTendresse EmotionType = "tendresse"
	EmotionNeutre    EmotionType = "neutre"
)

var emotionTypes = map[EmotionType]struct{}{
	EmotionJoie: {}, EmotionPeur: {}, EmotionCuriosite: {}, EmotionTristesse: {},
	EmotionColere: {}, EmotionFatigue: {}, EmotionSurprise: {}, EmotionTendresse: {},
	EmotionNeutre: {},
}

// Valid reports whether e is a known emotion label.
func (e EmotionType) Valid() bool {
	_, ok := emotionTypes[e]
	return ok
}

// DefaultIntensity is the intensity used when none is known.
const DefaultIntensity = 50

// EmotionState is the robot's current emotion.
type EmotionState struct {
	Type       EmotionType `json:"type"`
	Intensity  int         `json:"intensity"`
	Duration   int         `json:"duration,omitempty"` // ms since the emotion changed
	LastChange time.Time   `json:"last_change"`
}

// NeutralEmotion returns the state a freshly created context starts from.
func NeutralEmotion() EmotionState {
	return EmotionState{
		Type:       EmotionNeutre,
		Intensity:  DefaultIntensity,
		LastChange: time.Now().UTC(),
	}
}

// SensorSnapshot is one opaque sensor payload. A new snapshot replaces the
// previous one wholesale.
type SensorSnapshot struct {
	AgentID   string          `json:"agent_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Event types emitted by the core.
const (
	EventEmotionChange        = "emotion_change"
	EventSensorInterpretation = "sensor_interpretation"
)

// Event is an immutable record of something noteworthy.
type Event struct {
	ID          string         `json:"id,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// InteractionSummary is the "last interaction" slot of the live context.
type InteractionSummary struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      InteractionType `json:"type"`
	Content   string          `json:"content"`
}

// Analysis is the validated decision record produced from a backend completion.
type Analysis struct {
	Interpretation    string            `json:"interpretation"`
	SuggestedActions  []string          `json:"suggested_actions"`
	EmotionalResponse EmotionalResponse `json:"emotional_response"`
}

// EmotionalResponse is the emotion the backend recommends. Pointers keep
// "absent" distinguishable from zero values.
type EmotionalResponse struct {
	Emotion       EmotionType `json:"emotion,omitempty"`
	Intensity     *int        `json:"intensity,omitempty"`
	Justification string      `json:"justification,omitempty"`
}

// UnmarshalJSON accepts a fractional intensity and rounds it to the nearest
// integer.
func (r *EmotionalResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Emotion       EmotionType `json:"emotion"`
		Intensity     *float64    `json:"intensity"`
		Justification string      `json:"justification"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = EmotionalResponse{Emotion: raw.Emotion, Justification: raw.Justification}
	if raw.Intensity != nil {
		r.Intensity = IntPtr(int(math.Round(*raw.Intensity)))
	}
	return nil
}

// ClampIntensity bounds v to [0,100].
func ClampIntensity(v int) int {
	return max(0, min(100, v))
}

// EmotionOrDefault returns the recommended emotion, neutre when absent.
func (r EmotionalResponse) EmotionOrDefault() EmotionType {
	if r.Emotion == "" {
		return EmotionNeutre
	}
	return r.Emotion
}

// IntensityOrDefault returns the recommended intensity, 50 when absent.
func (r EmotionalResponse) IntensityOrDefault() int {
	if r.Intensity == nil {
		return DefaultIntensity
	}
	return *r.Intensity
}

// IsZero reports whether the backend returned no emotional response at all.
func (r EmotionalResponse) IsZero() bool {
	return r.Emotion == "" && r.Intensity == nil && r.Justification == ""
}

// IntPtr is a small helper for building EmotionalResponse literals.
func IntPtr(v int) *int { return &v }
