package robot

import "fmt"

// CommandType identifies which actuator a command targets.
type CommandType string

const (
	CommandEmotion  CommandType = "emotion"
	CommandMovement CommandType = "movement"
	CommandSound    CommandType = "sound"
)

// Movement directions understood by the motor controller.
const (
	DirectionForward  = "forward"
	DirectionBackward = "backward"
	DirectionLeft     = "left"
	DirectionRight    = "right"
	DirectionStop     = "stop"
)

// Command is a transient actuator instruction. Exactly one payload matching
// CommandType is set.
type Command struct {
	CommandType CommandType      `json:"command_type"`
	Emotion     *EmotionCommand  `json:"emotion,omitempty"`
	Movement    *MovementCommand `json:"movement,omitempty"`
	Sound       *SoundCommand    `json:"sound,omitempty"`
}

// EmotionCommand asks the robot to display an emotion.
type EmotionCommand struct {
	Emotion   EmotionType `json:"emotion"`
	Intensity int         `json:"intensity"`
}

// MovementCommand drives the motors. Duration is in milliseconds; nil means
// until the next movement command.
type MovementCommand struct {
	Direction string `json:"direction"`
	Speed     int    `json:"speed"`
	Duration  *int   `json:"duration,omitempty"`
}

// SoundCommand plays a tone on the buzzer.
type SoundCommand struct {
	Frequency int `json:"frequency"` // Hz
	Duration  int `json:"duration"`  // ms
}

// NewEmotionCommand builds an emotion command.
func NewEmotionCommand(e EmotionType, intensity int) Command {
	return Command{CommandType: CommandEmotion, Emotion: &EmotionCommand{Emotion: e, Intensity: intensity}}
}

// NewMovementCommand builds a movement command. durationMS <= 0 leaves the
// duration unset.
func NewMovementCommand(direction string, speed, durationMS int) Command {
	m := &MovementCommand{Direction: direction, Speed: speed}
	if durationMS > 0 {
		d := durationMS
		m.Duration = &d
	}
	return Command{CommandType: CommandMovement, Movement: m}
}

// NewSoundCommand builds a buzzer command.
func NewSoundCommand(frequency, durationMS int) Command {
	return Command{CommandType: CommandSound, Sound: &SoundCommand{Frequency: frequency, Duration: durationMS}}
}

var directions = map[string]struct{}{
	DirectionForward: {}, DirectionBackward: {}, DirectionLeft: {}, DirectionRight: {}, DirectionStop: {},
}

// Validate checks that the payload matches the command type and is bounded.
func (c Command) Validate() error {
	switch c.CommandType {
	case CommandEmotion:
		if c.Emotion == nil {
			return fmt.Errorf("emotion command without emotion payload")
		}
		if !c.Emotion.Emotion.Valid() {
			return fmt.Errorf("unknown emotion %q", c.Emotion.Emotion)
		}
		if c.Emotion.Intensity < 0 || c.Emotion.Intensity > 100 {
			return fmt.Errorf("emotion intensity %d out of range 0-100", c.Emotion.Intensity)
		}
	case CommandMovement:
		if c.Movement == nil {
			return fmt.Errorf("movement command without movement payload")
		}
		if _, ok := directions[c.Movement.Direction]; !ok {
			return fmt.Errorf("unknown direction %q", c.Movement.Direction)
		}
		if c.Movement.Speed < 0 || c.Movement.Speed > 100 {
			return fmt.Errorf("speed %d out of range 0-100", c.Movement.Speed)
		}
	case CommandSound:
		if c.Sound == nil {
			return fmt.Errorf("sound command without sound payload")
		}
		if c.Sound.Frequency <= 0 || c.Sound.Duration <= 0 {
			return fmt.Errorf("sound frequency and duration must be positive")
		}
	default:
		return fmt.Errorf("unknown command type %q", c.CommandType)
	}
	return nil
}
