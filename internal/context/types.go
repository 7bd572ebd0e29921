// Package context holds the live per-robot state: the latest sensor
// snapshot, the current emotion, a short ring of recent events and the
// queue of commands waiting to be pulled by the robot.
package context

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
)

// RecentEventsCapacity is the number of events kept in the live ring.
const RecentEventsCapacity = 5

// Intensity thresholds for emotion ingestion.
const (
	EmotionEventThreshold  = 70 // above: emotion_change event
	EmotionMemoryThreshold = 85 // above: emotional_event memory
)

// Analyzer turns a sensor payload into a decision record. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, sensors json.RawMessage, emotion robot.EmotionState) robot.Analysis
}

// Synthesizer maps suggested actions to actuator commands.
type Synthesizer interface {
	Synthesize(actions []string) []robot.Command
}

// Publisher fans live activity out to monitors. Publishing is best effort.
type Publisher interface {
	PublishEvent(ctx context.Context, e robot.Event) error
	PublishInteraction(ctx context.Context, i robot.Interaction) error
	PublishCommand(ctx context.Context, agentID string, c robot.Command) error
}

// SensorResult is returned by IngestSensors.
type SensorResult struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Analysis *robot.Analysis `json:"analysis,omitempty"`
	Commands []robot.Command `json:"commands"`
}

// EmotionAck echoes an accepted emotion back to the caller.
type EmotionAck struct {
	Type         robot.EmotionType `json:"type"`
	Intensity    int               `json:"intensity"`
	Acknowledged bool              `json:"acknowledged"`
}

// EmotionResult is returned by IngestEmotion.
type EmotionResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Emotion *EmotionAck `json:"emotion,omitempty"`
}

// Status is a point-in-time copy of an agent's live context.
type Status struct {
	AgentID         string                    `json:"robot_id"`
	Sensors         json.RawMessage           `json:"sensors,omitempty"`
	SensorsAt       time.Time                 `json:"sensors_at,omitempty"`
	Emotion         robot.EmotionState        `json:"emotion"`
	RecentEvents    []robot.Event             `json:"recent_events"`
	LastInteraction *robot.InteractionSummary `json:"last_interaction,omitempty"`
	PendingCommands int                       `json:"pending_commands"`
}

// Result messages, in the robot's language.
const (
	msgSensorsOK      = "Données des capteurs traitées avec succès"
	msgSensorsFailed  = "Erreur lors du traitement des données des capteurs: "
	msgEmotionOK      = "État émotionnel traité avec succès"
	msgEmotionFailed  = "Erreur lors du traitement de l'état émotionnel: "
	fmtEmotionChange  = "Changement significatif d'émotion : %s (intensité: %d)"
	fmtEmotionalEvent = "J'ai ressenti une forte émotion de %s avec une intensité de %d."
)

// eventRing keeps the most recent events, oldest first.
type eventRing struct {
	items []robot.Event
}

func (r *eventRing) push(e robot.Event) {
	r.items = append(r.items, e)
	if n := len(r.items); n > RecentEventsCapacity {
		r.items = append(r.items[:0:0], r.items[n-RecentEventsCapacity:]...)
	}
}

func (r *eventRing) snapshot() []robot.Event {
	out := make([]robot.Event, len(r.items))
	copy(out, r.items)
	return out
}
