package analysis

import (
	"time"

	"github.com/nidhogg/mignon/internal/robot"
)

// intensityHysteresis is the largest intensity change at the same emotion
// label that does not produce a command.
const intensityHysteresis = 20

// Outcome is what a parsed analysis contributes back to the live context.
type Outcome struct {
	Event   *robot.Event   // sensor_interpretation event, nil when the interpretation is empty
	Emotion *robot.Command // emotion command, nil when suppressed
}

// Interpret derives the event and emotion command implied by an analysis
// given the robot's current emotion. An unknown emotion label becomes neutre
// and the intensity is clamped to [0,100].
func Interpret(a robot.Analysis, current robot.EmotionState, now time.Time) Outcome {
	var out Outcome

	if a.Interpretation != "" {
		out.Event = &robot.Event{
			Timestamp:   now,
			Type:        robot.EventSensorInterpretation,
			Description: a.Interpretation,
			Data:        map[string]any{"raw_analysis": a},
		}
	}

	if a.EmotionalResponse.IsZero() {
		return out
	}
	next := a.EmotionalResponse.EmotionOrDefault()
	if !next.Valid() {
		next = robot.EmotionNeutre
	}
	intensity := robot.ClampIntensity(a.EmotionalResponse.IntensityOrDefault())
	if ShouldChangeEmotion(current, next, intensity) {
		cmd := robot.NewEmotionCommand(next, intensity)
		out.Emotion = &cmd
	}
	return out
}

// ShouldChangeEmotion reports whether a recommended emotion differs enough
// from the current one to be sent to the robot.
func ShouldChangeEmotion(current robot.EmotionState, next robot.EmotionType, intensity int) bool {
	if next != current.Type {
		return true
	}
	delta := intensity - current.Intensity
	if delta < 0 {
		delta = -delta
	}
	return delta > intensityHysteresis
}
