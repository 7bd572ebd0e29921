package actuator

import (
	"testing"

	"github.com/nidhogg/mignon/internal/robot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeSingleRule(t *testing.T) {
	testcases := []struct {
		name      string
		action    string
		wantType  robot.CommandType
		direction string
		speed     int
		duration  int // 0 = none
	}{
		{name: "avancer", action: "avancer doucement", wantType: robot.CommandMovement, direction: "forward", speed: 60, duration: 2000},
		{name: "forward-upper", action: "Move FORWARD", wantType: robot.CommandMovement, direction: "forward", speed: 60, duration: 2000},
		{name: "reculer", action: "reculer un peu", wantType: robot.CommandMovement, direction: "backward", speed: 60, duration: 2000},
		{name: "tourner-gauche", action: "tourner à gauche", wantType: robot.CommandMovement, direction: "left", speed: 50, duration: 1000},
		{name: "turn-right", action: "turn right", wantType: robot.CommandMovement, direction: "right", speed: 50, duration: 1000},
		{name: "stop", action: "stop", wantType: robot.CommandMovement, direction: "stop", speed: 0},
		{name: "arret", action: "arret immédiat", wantType: robot.CommandMovement, direction: "stop", speed: 0},
		{name: "bip", action: "émettre un bip", wantType: robot.CommandSound},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cmds := Synthesize([]string{tc.action})
			require.Len(t, cmds, 1)
			c := cmds[0]
			assert.Equal(t, tc.wantType, c.CommandType)
			assert.NoError(t, c.Validate())
			if tc.wantType == robot.CommandSound {
				assert.Equal(t, 1000, c.Sound.Frequency)
				assert.Equal(t, 500, c.Sound.Duration)
				return
			}
			assert.Equal(t, tc.direction, c.Movement.Direction)
			assert.Equal(t, tc.speed, c.Movement.Speed)
			if tc.duration == 0 {
				assert.Nil(t, c.Movement.Duration)
			} else {
				require.NotNil(t, c.Movement.Duration)
				assert.Equal(t, tc.duration, *c.Movement.Duration)
			}
		})
	}
}

func TestSynthesizeUnmatchedDropped(t *testing.T) {
	cmds := Synthesize([]string{"maintenir l'état actuel", "observer", "regarder à gauche"})
	assert.Empty(t, cmds)
}

func TestSynthesizeEvaluatesRulesIndependently(t *testing.T) {
	cmds := Synthesize([]string{"avancer puis stop"})
	require.Len(t, cmds, 2)
	assert.Equal(t, "forward", cmds[0].Movement.Direction)
	assert.Equal(t, "stop", cmds[1].Movement.Direction)
}

func TestSynthesizeKeepsActionOrder(t *testing.T) {
	cmds := Synthesize([]string{"beep", "reculer"})
	require.Len(t, cmds, 2)
	assert.Equal(t, robot.CommandSound, cmds[0].CommandType)
	assert.Equal(t, "backward", cmds[1].Movement.Direction)
}

func TestCustomRules(t *testing.T) {
	s := NewSynthesizer([]Rule{{
		Name:  "dance",
		Match: anyOf("danser"),
		Build: func() robot.Command { return robot.NewMovementCommand(robot.DirectionLeft, 100, 3000) },
	}})
	assert.Len(t, s.Synthesize([]string{"danser", "avancer"}), 1)
}
