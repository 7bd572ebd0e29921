package context

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
)

// Conversation roles, as a chat model expects them.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// patternWindow is the period InteractionPatterns looks back over.
const patternWindow = 24 * time.Hour

// HistoryMessage is one turn of a conversation, oldest first.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// Patterns summarizes the last day of interactions.
type Patterns struct {
	Total                 int                           `json:"total_interactions"`
	Types                 map[robot.InteractionType]int `json:"interaction_types"`
	SentimentDistribution map[string]int                `json:"sentiment_distribution"`
	ActionSuccessRate     float64                       `json:"action_success_rate"`
	Period                string                        `json:"period"`
}

// ConversationHistory returns up to limit conversation turns from the last
// minutes, oldest first. Turns spoken by the robot get the assistant role.
func (a *Agent) ConversationHistory(ctx context.Context, minutes, limit int) ([]HistoryMessage, error) {
	since := a.now().Add(-time.Duration(minutes) * time.Minute)
	recent, err := a.store.RecentInteractions(ctx, a.id, since, 0)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var out []HistoryMessage
	// recent is newest first; walk backwards for chronological order.
	for _, i := range slices.Backward(recent) {
		if i.Type != robot.InteractionConversation {
			continue
		}
		role := RoleUser
		if i.Metadata.IsRobot != nil && *i.Metadata.IsRobot {
			role = RoleAssistant
		}
		out = append(out, HistoryMessage{
			Role:      role,
			Content:   i.Content,
			Timestamp: i.Timestamp,
			Sentiment: i.Metadata.Sentiment,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// InteractionPatterns counts the last day of interactions by type and
// sentiment and computes the action success rate as a percentage.
func (a *Agent) InteractionPatterns(ctx context.Context) (Patterns, error) {
	recent, err := a.store.RecentInteractions(ctx, a.id, a.now().Add(-patternWindow), 0)
	if err != nil {
		return Patterns{}, fmt.Errorf("load interactions: %w", err)
	}

	p := Patterns{
		Total:                 len(recent),
		Types:                 make(map[robot.InteractionType]int),
		SentimentDistribution: map[string]int{"positif": 0, "neutre": 0, "négatif": 0},
		Period:                "last_24_hours",
	}
	var actions, succeeded int
	for _, i := range recent {
		p.Types[i.Type]++
		switch i.Type {
		case robot.InteractionConversation:
			if _, ok := p.SentimentDistribution[i.Metadata.Sentiment]; ok {
				p.SentimentDistribution[i.Metadata.Sentiment]++
			}
		case robot.InteractionAction:
			actions++
			if i.Metadata.Success != nil && *i.Metadata.Success {
				succeeded++
			}
		}
	}
	if actions > 0 {
		p.ActionSuccessRate = float64(succeeded) / float64(actions) * 100
	}
	return p, nil
}
