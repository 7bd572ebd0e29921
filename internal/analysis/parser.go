// Package analysis turns raw reasoning-backend completions into validated
// decision records and derives the events and emotion commands they imply.
package analysis

import (
	"encoding/json"
	"strings"

	"github.com/nidhogg/mignon/internal/robot"
)

const (
	fallbackInterpretation = "Erreur d'analyse"
	fallbackAction         = "maintenir l'état actuel"
	fallbackJustification  = "Réponse par défaut suite à une erreur d'analyse"
)

// Fallback returns the fixed record substituted when a completion cannot be
// parsed. Each call returns a fresh value.
func Fallback() robot.Analysis {
	return robot.Analysis{
		Interpretation:   fallbackInterpretation,
		SuggestedActions: []string{fallbackAction},
		EmotionalResponse: robot.EmotionalResponse{
			Emotion:       robot.EmotionNeutre,
			Intensity:     robot.IntPtr(robot.DefaultIntensity),
			Justification: fallbackJustification,
		},
	}
}

// Parse extracts the JSON object spanning the first '{' and the last '}' of
// raw. It returns the fallback record and false when no well-formed object is
// found.
func Parse(raw string) (robot.Analysis, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Fallback(), false
	}

	var a robot.Analysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &a); err != nil {
		return Fallback(), false
	}
	return a, true
}
