package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/mignon/internal/robot"
	"go.uber.org/zap"
)

// SystemPrompt frames the backend as the robot's perception module. It is sent
// ahead of every prompt built by BuildPrompt.
const SystemPrompt = "Tu es le module de perception de Mignon, un petit robot émotionnel. " +
	"Réponds uniquement avec l'objet JSON demandé, sans texte autour."

// Generator produces a completion for a prompt. Implementations never fail;
// backend errors come back as text, which then falls through to Fallback.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) string
}

// Options controls the completion request.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// DefaultOptions matches the sampling settings the robot was tuned with.
func DefaultOptions() Options {
	return Options{MaxTokens: 1024, Temperature: 0.3}
}

// Analyzer asks the reasoning backend to interpret a sensor snapshot.
type Analyzer struct {
	gen    Generator
	opts   Options
	logger *zap.Logger
}

// NewAnalyzer creates an Analyzer. Zero options fall back to DefaultOptions.
func NewAnalyzer(gen Generator, opts Options, logger *zap.Logger) *Analyzer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultOptions().MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultOptions().Temperature
	}
	return &Analyzer{gen: gen, opts: opts, logger: logger}
}

// Analyze builds the prompt, queries the backend and parses the answer.
// It always returns a schema-valid record.
func (a *Analyzer) Analyze(ctx context.Context, sensors json.RawMessage, emotion robot.EmotionState) robot.Analysis {
	prompt := BuildPrompt(sensors, emotion)
	raw := a.gen.Generate(ctx, prompt, a.opts.MaxTokens, a.opts.Temperature)

	analysis, ok := Parse(raw)
	if !ok {
		a.logger.Warn("could not parse analysis, using fallback", zap.String("response", truncate(raw, 512)))
	} else {
		a.logger.Debug("sensor analysis parsed",
			zap.String("interpretation", analysis.Interpretation),
			zap.Int("actions", len(analysis.SuggestedActions)))
	}
	return analysis
}

// BuildPrompt renders the analysis prompt for a snapshot and emotion.
func BuildPrompt(sensors json.RawMessage, emotion robot.EmotionState) string {
	sensorText := indentJSON(sensors)
	emotionJSON, _ := json.MarshalIndent(map[string]any{
		"type":        emotion.Type,
		"intensity":   emotion.Intensity,
		"last_change": emotion.LastChange,
	}, "", "  ")

	return fmt.Sprintf(`En tant qu'intelligence artificielle du robot mignon, analyse ces données de capteurs et l'état émotionnel actuel.

DONNÉES DES CAPTEURS:
%s

ÉTAT ÉMOTIONNEL ACTUEL:
%s

Réponds avec un JSON contenant:
1. Une interprétation de la situation actuelle
2. Des suggestions d'actions à entreprendre
3. Une nouvelle émotion recommandée si nécessaire (avec une justification)

Format attendu:
{
  "interpretation": "Ce que le robot perçoit de son environnement",
  "suggested_actions": ["action1", "action2", ...],
  "emotional_response": {
    "emotion": "joie/peur/etc",
    "intensity": 0-100,
    "justification": "Pourquoi cette émotion est appropriée"
  }
}
`, sensorText, emotionJSON)
}

func indentJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
