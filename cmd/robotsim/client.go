package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
)

// envelope mirrors the server's {success, message, data} response.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// client speaks the robot side of the HTTP protocol.
type client struct {
	server string
	robot  string
	http   *http.Client
}

func newClient(server, robotID string) *client {
	return &client{
		server: server,
		robot:  robotID,
		http:   &http.Client{Timeout: 65 * time.Second},
	}
}

func (c *client) sendSensors(p robot.SensorPayload) (*envelope, error) {
	return c.post("/api/sensors", map[string]any{
		"type":      "sensor_data",
		"robot_id":  c.robot,
		"timestamp": time.Now().UnixMilli(),
		"sensors":   p,
	})
}

func (c *client) sendEmotion(e robot.EmotionType, intensity, durationMS int) (*envelope, error) {
	return c.post("/api/emotion", map[string]any{
		"type":      "emotional_state",
		"robot_id":  c.robot,
		"timestamp": time.Now().UnixMilli(),
		"emotion":   map[string]any{"type": e, "intensity": intensity, "duration": durationMS},
	})
}

func (c *client) sendInteraction(typ robot.InteractionType, content string, md robot.Metadata) (*envelope, error) {
	return c.post("/api/interaction", map[string]any{
		"robot_id":         c.robot,
		"interaction_type": typ,
		"content":          content,
		"metadata":         md,
	})
}

func (c *client) pollCommands() ([]robot.Command, error) {
	env, err := c.get("/api/commands?robot_id=" + c.robot)
	if err != nil {
		return nil, err
	}
	var data struct {
		Commands []robot.Command `json:"commands"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("parse commands: %w", err)
	}
	return data.Commands, nil
}

func (c *client) status() (*envelope, error) {
	return c.get("/api/robot_status/" + c.robot)
}

func (c *client) post(path string, body any) (*envelope, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.http.Post(c.server+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return readEnvelope(resp)
}

func (c *client) get(path string) (*envelope, error) {
	resp, err := c.http.Get(c.server + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return readEnvelope(resp)
}

func readEnvelope(resp *http.Response) (*envelope, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &env, nil
}

// calmSensors is a resting robot in a quiet, lit room.
func calmSensors() robot.SensorPayload {
	return robot.SensorPayload{
		Sound:          robot.SoundData{SmallSound: 10},
		Vision:         robot.VisionData{Distance: 120, LightLevel: 500},
		Temperature:    robot.TemperatureData{DHT11: 21, DS18B20: 21.2, Analog: 21.5, Humidity: 45},
		Proprioception: robot.ProprioceptionData{Acceleration: []float64{0, 0, 9.81}, Gyro: []float64{0, 0, 0}},
	}
}

func printCommands(cmds []robot.Command) {
	if len(cmds) == 0 {
		fmt.Println("No pending commands.")
		return
	}
	for _, c := range cmds {
		switch c.CommandType {
		case robot.CommandEmotion:
			fmt.Printf("  \033[35memotion\033[0m %s (%d)\n", c.Emotion.Emotion, c.Emotion.Intensity)
		case robot.CommandMovement:
			fmt.Printf("  \033[36mmove\033[0m %s speed=%d", c.Movement.Direction, c.Movement.Speed)
			if c.Movement.Duration != nil {
				fmt.Printf(" for %dms", *c.Movement.Duration)
			}
			fmt.Println()
		case robot.CommandSound:
			fmt.Printf("  \033[33mbeep\033[0m %dHz %dms\n", c.Sound.Frequency, c.Sound.Duration)
		}
	}
}

func printEnvelope(env *envelope) {
	icon := "\033[31m✗\033[0m"
	if env.Success {
		icon = "\033[32m✓\033[0m"
	}
	fmt.Printf("%s %s\n", icon, env.Message)
	if len(env.Data) > 0 && string(env.Data) != "null" {
		var pretty bytes.Buffer
		if json.Indent(&pretty, env.Data, "  ", "  ") == nil {
			fmt.Printf("  %s\n", pretty.String())
		}
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
