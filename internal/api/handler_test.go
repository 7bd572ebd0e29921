package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/mignon/internal/actuator"
	ctxmgr "github.com/nidhogg/mignon/internal/context"
	"github.com/nidhogg/mignon/internal/memory"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/nidhogg/mignon/internal/store"
	"go.uber.org/zap"
)

type stubAnalyzer struct{ result robot.Analysis }

func (s stubAnalyzer) Analyze(context.Context, json.RawMessage, robot.EmotionState) robot.Analysis {
	return s.result
}

type stubHealth map[string]error

func (s stubHealth) HealthCheck(context.Context) map[string]error { return s }

const sensorsJSON = `{
	"sound": {"big_sound": 0, "small_sound": 12},
	"vision": {"distance": 80.5, "light_level": 400, "ir_detected": false},
	"touch": {"tap": false, "shock": false, "touch": true, "button": false},
	"temperature": {"dht11": 21.5, "ds18b20": 21.7, "analog": 22.0, "humidity": 40},
	"magnetic": {"hall": 3, "reed": false},
	"water_level": 0,
	"proprioception": {"acceleration": [0, 0, 9.8], "gyro": [0, 0, 0], "tilt": false}
}`

// newTestHandler creates a Handler over an in-memory store (no Postgres/Redis).
func newTestHandler(t *testing.T, analysis robot.Analysis) (*ctxmgr.Registry, *store.InMemory, http.Handler) {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewInMemory()
	reg := ctxmgr.NewRegistry(ctxmgr.Deps{
		Store:       st,
		Analyzer:    stubAnalyzer{result: analysis},
		Synthesizer: actuator.NewSynthesizer(nil),
		Memories: func(agentID string) *memory.Service {
			return memory.New(agentID, st, logger)
		},
	}, logger)
	h := NewHandler(reg, stubHealth{"claude": errors.New("401")}, logger)
	return reg, st, h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	var b []byte
	switch v := body.(type) {
	case string:
		b = []byte(v)
	default:
		b, _ = json.Marshal(body)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// --- Tests ---

func TestPing(t *testing.T) {
	_, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/ping")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"]); err != nil {
		t.Errorf("timestamp: %v", err)
	}
}

func TestHealthReportsFailingBackends(t *testing.T) {
	_, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	var body struct {
		Status   string            `json:"status"`
		Failures map[string]string `json:"failures"`
	}
	decodeJSON(t, getJSON(t, ts, "/api/health"), &body)
	if body.Status != "degraded" || body.Failures["claude"] != "401" {
		t.Errorf("health = %+v", body)
	}
}

func TestSensorsThenCommands(t *testing.T) {
	_, _, router := newTestHandler(t, robot.Analysis{
		Interpretation:   "quelqu'un me touche",
		SuggestedActions: []string{"avancer doucement"},
		EmotionalResponse: robot.EmotionalResponse{
			Emotion:   robot.EmotionJoie,
			Intensity: robot.IntPtr(80),
		},
	})
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/sensors", `{"type":"sensor_data","robot_id":"MignonBot1","timestamp":1,"sensors":`+sensorsJSON+`}`)
	if resp.StatusCode != 200 {
		t.Fatalf("sensors: expected 200, got %d", resp.StatusCode)
	}
	var env envelope
	decodeJSON(t, resp, &env)
	if !env.Success {
		t.Fatalf("sensors: %s", env.Message)
	}
	var data struct {
		Commands []robot.Command `json:"commands"`
	}
	_ = json.Unmarshal(env.Data, &data)
	if len(data.Commands) != 1 || data.Commands[0].CommandType != robot.CommandMovement {
		t.Errorf("synthesized = %+v", data.Commands)
	}

	decodeJSON(t, getJSON(t, ts, "/api/commands?robot_id=MignonBot1"), &env)
	_ = json.Unmarshal(env.Data, &data)
	if len(data.Commands) != 2 {
		t.Fatalf("drained %d commands, want emotion + movement", len(data.Commands))
	}
	if data.Commands[0].CommandType != robot.CommandEmotion {
		t.Errorf("first command = %q, want emotion", data.Commands[0].CommandType)
	}

	decodeJSON(t, getJSON(t, ts, "/api/commands?robot_id=MignonBot1"), &env)
	_ = json.Unmarshal(env.Data, &data)
	if len(data.Commands) != 0 {
		t.Errorf("second drain = %d commands, want 0", len(data.Commands))
	}
}

func TestSensorsValidation(t *testing.T) {
	_, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	cases := map[string]string{
		"not json":       `{`,
		"missing robot":  `{"sensors":` + sensorsJSON + `}`,
		"missing data":   `{"robot_id":"b"}`,
		"wrong sub-type": `{"robot_id":"b","sensors":{"sound":"loud"}}`,
	}
	for name, body := range cases {
		resp := postJSON(t, ts, "/api/sensors", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestSensorsStoreFailure(t *testing.T) {
	_, st, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()
	st.SetFailing(errors.New("db down"))

	var env envelope
	decodeJSON(t, postJSON(t, ts, "/api/sensors", `{"robot_id":"b","sensors":`+sensorsJSON+`}`), &env)
	if env.Success {
		t.Error("expected success=false when the store is down")
	}
}

func TestEmotionRoute(t *testing.T) {
	reg, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/emotion", map[string]any{
		"type":      "emotional_state",
		"robot_id":  "b",
		"timestamp": 1,
		"emotion":   map[string]any{"type": "peur", "intensity": 90, "duration": 300},
	})
	var env envelope
	decodeJSON(t, resp, &env)
	if !env.Success {
		t.Fatalf("emotion: %s", env.Message)
	}
	var ack ctxmgr.EmotionAck
	_ = json.Unmarshal(env.Data, &ack)
	if !ack.Acknowledged || ack.Type != robot.EmotionPeur {
		t.Errorf("ack = %+v", ack)
	}

	a, _ := reg.Lookup("b")
	if len(a.Status().RecentEvents) != 1 {
		t.Errorf("expected one emotion_change event")
	}

	resp = postJSON(t, ts, "/api/emotion", map[string]any{
		"robot_id": "b",
		"emotion":  map[string]any{"type": "ennui", "intensity": 10},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown emotion: expected 400, got %d", resp.StatusCode)
	}
}

func TestSendCommand(t *testing.T) {
	_, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	var env envelope
	decodeJSON(t, postJSON(t, ts, "/api/send_command?robot_id=b", robot.NewSoundCommand(880, 100)), &env)
	if !env.Success {
		t.Fatalf("send: %s", env.Message)
	}

	decodeJSON(t, postJSON(t, ts, "/api/send_command?robot_id=b", map[string]any{"command_type": "laser"}), &env)
	if env.Success {
		t.Error("invalid command accepted")
	}

	var data struct {
		Commands []robot.Command `json:"commands"`
	}
	decodeJSON(t, getJSON(t, ts, "/api/commands?robot_id=b"), &env)
	_ = json.Unmarshal(env.Data, &data)
	if len(data.Commands) != 1 || data.Commands[0].Sound.Frequency != 880 {
		t.Errorf("commands = %+v", data.Commands)
	}
}

func TestUnknownRobot(t *testing.T) {
	_, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	var env envelope
	decodeJSON(t, getJSON(t, ts, "/api/robot_status/ghost"), &env)
	if env.Success || env.Message != "Robot inconnu: ghost" {
		t.Errorf("status = %+v", env)
	}

	decodeJSON(t, postJSON(t, ts, "/api/interaction", map[string]string{
		"robot_id": "ghost", "interaction_type": "conversation", "content": "salut",
	}), &env)
	if env.Success {
		t.Error("interaction for unknown robot accepted")
	}

	var cmds struct {
		Commands []robot.Command `json:"commands"`
	}
	decodeJSON(t, getJSON(t, ts, "/api/commands?robot_id=ghost"), &env)
	_ = json.Unmarshal(env.Data, &cmds)
	if !env.Success || len(cmds.Commands) != 0 {
		t.Errorf("drain for unknown robot = %+v", env)
	}
}

func TestInteractionAndStatus(t *testing.T) {
	reg, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()
	reg.Get(context.Background(), "b")

	var env envelope
	decodeJSON(t, postJSON(t, ts, "/api/interaction", map[string]any{
		"robot_id":         "b",
		"interaction_type": "conversation",
		"content":          "bonjour",
		"metadata":         map[string]any{"is_robot": false, "sentiment": "positif"},
	}), &env)
	if !env.Success {
		t.Fatalf("interaction: %s", env.Message)
	}

	decodeJSON(t, getJSON(t, ts, "/api/robot_status/b"), &env)
	var status ctxmgr.Status
	_ = json.Unmarshal(env.Data, &status)
	if !env.Success || status.LastInteraction == nil || status.LastInteraction.Content != "bonjour" {
		t.Errorf("status = %+v", status)
	}
	if status.Emotion.Type != robot.EmotionNeutre {
		t.Errorf("emotion = %+v, want neutre", status.Emotion)
	}
}

func TestMemoriesRoutes(t *testing.T) {
	reg, _, router := newTestHandler(t, robot.Analysis{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	svc := reg.Get(context.Background(), "b").Memories()
	ctx := context.Background()
	if _, err := svc.RememberFact(ctx, "le chat dort sur le canapé", 70); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RememberEpisode(ctx, "balade au parc", 5); err != nil {
		t.Fatal(err)
	}

	var env envelope
	var data struct {
		Memories []robot.Memory `json:"memories"`
	}
	decodeJSON(t, getJSON(t, ts, "/api/memories/b?min_importance=50"), &env)
	_ = json.Unmarshal(env.Data, &data)
	if len(data.Memories) != 1 || data.Memories[0].Importance != 70 {
		t.Errorf("memories = %+v", data.Memories)
	}

	decodeJSON(t, getJSON(t, ts, "/api/memories/b?q=parc"), &env)
	_ = json.Unmarshal(env.Data, &data)
	if len(data.Memories) == 0 || data.Memories[0].Content != "balade au parc" {
		t.Errorf("search = %+v", data.Memories)
	}

	decodeJSON(t, postJSON(t, ts, "/api/memories/b/consolidate", nil), &env)
	if !env.Success {
		t.Errorf("consolidate: %s", env.Message)
	}

	decodeJSON(t, getJSON(t, ts, "/api/memories/ghost"), &env)
	if env.Success {
		t.Error("memories for unknown robot")
	}
}

// wordEmbedder maps texts containing "chat" and "parc" to orthogonal axes.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := []float32{0, 0, 1}
		switch {
		case strings.Contains(t, "chat"):
			v = []float32{1, 0, 0}
		case strings.Contains(t, "parc"):
			v = []float32{0, 1, 0}
		}
		out[i] = v
	}
	return out, nil
}

func (wordEmbedder) Dimension() int { return 3 }

func TestMemoriesSemanticSearch(t *testing.T) {
	logger := zap.NewNop()
	st := store.NewInMemory()
	reg := ctxmgr.NewRegistry(ctxmgr.Deps{
		Store:       st,
		Analyzer:    stubAnalyzer{},
		Synthesizer: actuator.NewSynthesizer(nil),
		Memories: func(agentID string) *memory.Service {
			return memory.New(agentID, st, logger, memory.WithEmbedder(wordEmbedder{}))
		},
	}, logger)
	ts := httptest.NewServer(NewHandler(reg, stubHealth{}, logger).Router())
	defer ts.Close()

	svc := reg.Get(context.Background(), "b").Memories()
	ctx := context.Background()
	if _, err := svc.RememberFact(ctx, "le chat dort sur le canapé", 90); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RememberEpisode(ctx, "balade au parc", 10); err != nil {
		t.Fatal(err)
	}

	var env envelope
	var data struct {
		Memories []robot.Memory `json:"memories"`
		Scores   []float64      `json:"scores"`
	}
	decodeJSON(t, getJSON(t, ts, "/api/memories/b?q=parc&semantic=true&limit=1"), &env)
	if !env.Success {
		t.Fatalf("semantic search: %s", env.Message)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Memories) != 1 || data.Memories[0].Content != "balade au parc" {
		t.Fatalf("memories = %+v", data.Memories)
	}
	if len(data.Scores) != 1 || data.Scores[0] < 0.99 {
		t.Errorf("scores = %v, want ~1", data.Scores)
	}
}
