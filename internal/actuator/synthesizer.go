// Package actuator maps free-text suggested actions to discrete actuator
// commands using ordered keyword rules.
package actuator

import (
	"strings"

	"github.com/nidhogg/mignon/internal/robot"
)

// Rule turns an action into a command when it matches.
type Rule struct {
	Name  string
	Match func(action string) bool
	Build func() robot.Command
}

// anyOf matches when the lower-cased action contains one of the keywords.
func anyOf(keywords ...string) func(string) bool {
	return func(action string) bool {
		for _, kw := range keywords {
			if strings.Contains(action, kw) {
				return true
			}
		}
		return false
	}
}

// allOf matches when every matcher matches.
func allOf(matchers ...func(string) bool) func(string) bool {
	return func(action string) bool {
		for _, m := range matchers {
			if !m(action) {
				return false
			}
		}
		return true
	}
}

var turn = anyOf("tourner", "turn")

// DefaultRules is the rule table in priority order. Keywords cover French and
// English phrasing.
var DefaultRules = []Rule{
	{
		Name:  "forward",
		Match: anyOf("avancer", "forward"),
		Build: func() robot.Command { return robot.NewMovementCommand(robot.DirectionForward, 60, 2000) },
	},
	{
		Name:  "backward",
		Match: anyOf("reculer", "backward"),
		Build: func() robot.Command { return robot.NewMovementCommand(robot.DirectionBackward, 60, 2000) },
	},
	{
		Name:  "left",
		Match: allOf(turn, anyOf("gauche", "left")),
		Build: func() robot.Command { return robot.NewMovementCommand(robot.DirectionLeft, 50, 1000) },
	},
	{
		Name:  "right",
		Match: allOf(turn, anyOf("droite", "right")),
		Build: func() robot.Command { return robot.NewMovementCommand(robot.DirectionRight, 50, 1000) },
	},
	{
		Name:  "stop",
		Match: anyOf("arret", "arrêt", "stop"),
		Build: func() robot.Command { return robot.NewMovementCommand(robot.DirectionStop, 0, 0) },
	},
	{
		Name:  "sound",
		Match: anyOf("bip", "son", "sound", "beep"),
		Build: func() robot.Command { return robot.NewSoundCommand(1000, 500) },
	},
}

// Synthesizer applies a rule table to suggested actions.
type Synthesizer struct {
	rules []Rule
}

// NewSynthesizer returns a Synthesizer over rules, or DefaultRules when nil.
func NewSynthesizer(rules []Rule) *Synthesizer {
	if rules == nil {
		rules = DefaultRules
	}
	return &Synthesizer{rules: rules}
}

// Synthesize returns one command per (action, matching rule) pair, in action
// order then rule order. Every rule is evaluated on its own, so one action can
// produce several commands ("avancer puis stop" yields forward and stop).
// Unmatched actions produce nothing.
func (s *Synthesizer) Synthesize(actions []string) []robot.Command {
	var out []robot.Command
	for _, action := range actions {
		lower := strings.ToLower(action)
		for _, r := range s.rules {
			if r.Match(lower) {
				out = append(out, r.Build())
			}
		}
	}
	return out
}

// Synthesize runs DefaultRules over actions.
func Synthesize(actions []string) []robot.Command {
	return NewSynthesizer(nil).Synthesize(actions)
}
