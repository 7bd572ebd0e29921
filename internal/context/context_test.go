package context

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/mignon/internal/actuator"
	"github.com/nidhogg/mignon/internal/memory"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/nidhogg/mignon/internal/store"
	"go.uber.org/zap"
)

type fakeAnalyzer struct {
	result robot.Analysis
	calls  int
	seen   robot.EmotionState
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ json.RawMessage, emotion robot.EmotionState) robot.Analysis {
	f.calls++
	f.seen = emotion
	return f.result
}

type recordingPublisher struct {
	mu           sync.Mutex
	events       []robot.Event
	interactions []robot.Interaction
	commands     []robot.Command
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e robot.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishInteraction(_ context.Context, i robot.Interaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interactions = append(p.interactions, i)
	return nil
}

func (p *recordingPublisher) PublishCommand(_ context.Context, _ string, c robot.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, c)
	return nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(st *store.InMemory, an *fakeAnalyzer) *Registry {
	return NewRegistry(Deps{
		Store:       st,
		Analyzer:    an,
		Synthesizer: actuator.NewSynthesizer(nil),
		Memories: func(agentID string) *memory.Service {
			return memory.New(agentID, st, zap.NewNop())
		},
		Now: func() time.Time { return testNow },
	}, zap.NewNop())
}

func TestRecentEventsRingKeepsLastFive(t *testing.T) {
	r := newTestRegistry(store.NewInMemory(), &fakeAnalyzer{})
	a := r.Get(context.Background(), "bot")

	for i := 0; i < 7; i++ {
		if res := a.IngestEmotion(context.Background(), robot.EmotionJoie, 71+i, 0); !res.Success {
			t.Fatalf("ingest %d: %s", i, res.Message)
		}
	}

	events := a.Status().RecentEvents
	if len(events) != RecentEventsCapacity {
		t.Fatalf("ring len = %d, want %d", len(events), RecentEventsCapacity)
	}
	if got := events[0].Data["intensity"]; got != 73 {
		t.Errorf("oldest kept intensity = %v, want 73", got)
	}
	if got := events[4].Data["intensity"]; got != 77 {
		t.Errorf("newest intensity = %v, want 77", got)
	}
}

func TestDrainCommandsClearsQueue(t *testing.T) {
	r := newTestRegistry(store.NewInMemory(), &fakeAnalyzer{})
	a := r.Get(context.Background(), "bot")
	a.EnqueueCommand(context.Background(), robot.NewSoundCommand(440, 200))

	first := r.DrainCommands("bot")
	if len(first) != 1 {
		t.Fatalf("first drain = %d commands, want 1", len(first))
	}
	second := r.DrainCommands("bot")
	if second == nil || len(second) != 0 {
		t.Errorf("second drain = %v, want empty non-nil", second)
	}
}

func TestDrainUnknownRobot(t *testing.T) {
	r := newTestRegistry(store.NewInMemory(), &fakeAnalyzer{})
	if got := r.DrainCommands("ghost"); got == nil || len(got) != 0 {
		t.Errorf("drain = %v, want empty", got)
	}
	if _, ok := r.Lookup("ghost"); ok {
		t.Error("drain must not create a context")
	}
}

func TestDrainMismatchedRobot(t *testing.T) {
	r := newTestRegistry(store.NewInMemory(), &fakeAnalyzer{})
	a := r.Get(context.Background(), "bot")
	a.EnqueueCommand(context.Background(), robot.NewSoundCommand(440, 200))

	if got := a.DrainCommands("other"); len(got) != 0 {
		t.Errorf("mismatched drain = %v", got)
	}
	if a.Status().PendingCommands != 1 {
		t.Error("mismatched drain must leave the queue alone")
	}
}

func TestEmotionCommandHysteresis(t *testing.T) {
	tests := []struct {
		name      string
		emotion   robot.EmotionType
		intensity int
		want      int
	}{
		{"new label", robot.EmotionJoie, 80, 1},
		{"same label small change", robot.EmotionNeutre, 55, 0},
		{"same label large change", robot.EmotionNeutre, 90, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &fakeAnalyzer{result: robot.Analysis{
				Interpretation: "un humain approche",
				EmotionalResponse: robot.EmotionalResponse{
					Emotion:   tt.emotion,
					Intensity: robot.IntPtr(tt.intensity),
				},
			}}
			r := newTestRegistry(store.NewInMemory(), an)
			a := r.Get(context.Background(), "bot")

			res := a.IngestSensors(context.Background(), json.RawMessage(`{"sound":{"level":40}}`))
			if !res.Success {
				t.Fatalf("ingest: %s", res.Message)
			}
			cmds := a.DrainCommands("bot")
			if len(cmds) != tt.want {
				t.Fatalf("queued %d commands, want %d", len(cmds), tt.want)
			}
			if tt.want == 1 && (cmds[0].CommandType != robot.CommandEmotion || cmds[0].Emotion.Emotion != tt.emotion) {
				t.Errorf("command = %+v", cmds[0])
			}
		})
	}
}

func TestOutOfRangeEmotionIsSanitizedBeforeDelivery(t *testing.T) {
	an := &fakeAnalyzer{result: robot.Analysis{
		Interpretation: "bruit soudain",
		EmotionalResponse: robot.EmotionalResponse{
			Emotion:   "extase",
			Intensity: robot.IntPtr(250),
		},
	}}
	r := newTestRegistry(store.NewInMemory(), an)
	a := r.Get(context.Background(), "bot")

	if res := a.IngestSensors(context.Background(), json.RawMessage(`{"sound":{"level":90}}`)); !res.Success {
		t.Fatalf("ingest: %s", res.Message)
	}
	cmds := a.DrainCommands("bot")
	if len(cmds) != 1 {
		t.Fatalf("queued %d commands, want 1", len(cmds))
	}
	if err := cmds[0].Validate(); err != nil {
		t.Fatalf("delivered command does not validate: %v", err)
	}
	if cmds[0].Emotion.Emotion != robot.EmotionNeutre || cmds[0].Emotion.Intensity != 100 {
		t.Errorf("emotion = %+v, want neutre/100", cmds[0].Emotion)
	}

	// the same payload is refused on the manual path
	if a.EnqueueCommand(context.Background(), robot.NewEmotionCommand("extase", 250)) {
		t.Error("invalid emotion command accepted by EnqueueCommand")
	}
}

func TestIngestSensorsSynthesizesMovement(t *testing.T) {
	an := &fakeAnalyzer{result: robot.Analysis{
		Interpretation:   "la voie est libre",
		SuggestedActions: []string{"avancer doucement"},
	}}
	pub := &recordingPublisher{}
	r := newTestRegistry(store.NewInMemory(), an)
	r.deps.Publisher = pub
	a := r.Get(context.Background(), "bot")

	res := a.IngestSensors(context.Background(), json.RawMessage(`{}`))
	if !res.Success || res.Message != msgSensorsOK {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Commands) != 1 || res.Commands[0].Movement == nil || res.Commands[0].Movement.Direction != robot.DirectionForward {
		t.Fatalf("commands = %+v", res.Commands)
	}

	st := a.Status()
	if st.PendingCommands != 1 {
		t.Errorf("pending = %d, want 1", st.PendingCommands)
	}
	if len(st.RecentEvents) != 1 || st.RecentEvents[0].Type != robot.EventSensorInterpretation {
		t.Errorf("events = %+v", st.RecentEvents)
	}
	if len(pub.events) != 1 || len(pub.commands) != 1 {
		t.Errorf("published events=%d commands=%d", len(pub.events), len(pub.commands))
	}
}

func TestIngestSensorsStoreFailure(t *testing.T) {
	st := store.NewInMemory()
	an := &fakeAnalyzer{result: robot.Analysis{SuggestedActions: []string{"avancer"}}}
	r := newTestRegistry(st, an)
	a := r.Get(context.Background(), "bot")

	st.SetFailing(errors.New("disk full"))
	res := a.IngestSensors(context.Background(), json.RawMessage(`{"a":1}`))
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(res.Message, msgSensorsFailed) || !strings.Contains(res.Message, "disk full") {
		t.Errorf("message = %q", res.Message)
	}
	if an.calls != 0 {
		t.Error("analysis must not run when the snapshot was not persisted")
	}
	status := a.Status()
	if status.Sensors != nil || status.PendingCommands != 0 {
		t.Errorf("state changed after failure: %+v", status)
	}
}

func TestIngestSensorsPassesCurrentEmotion(t *testing.T) {
	an := &fakeAnalyzer{}
	r := newTestRegistry(store.NewInMemory(), an)
	a := r.Get(context.Background(), "bot")
	a.IngestEmotion(context.Background(), robot.EmotionPeur, 40, 0)

	a.IngestSensors(context.Background(), json.RawMessage(`{}`))
	if an.seen.Type != robot.EmotionPeur || an.seen.Intensity != 40 {
		t.Errorf("analyzer saw %+v", an.seen)
	}
}

func TestIngestEmotionThresholds(t *testing.T) {
	tests := []struct {
		intensity  int
		wantEvent  bool
		wantMemory bool
	}{
		{60, false, false},
		{70, false, false},
		{80, true, false},
		{85, true, false},
		{90, true, true},
	}
	for _, tt := range tests {
		st := store.NewInMemory()
		r := newTestRegistry(st, &fakeAnalyzer{})
		a := r.Get(context.Background(), "bot")

		res := a.IngestEmotion(context.Background(), robot.EmotionSurprise, tt.intensity, 1500)
		if !res.Success || res.Emotion == nil || !res.Emotion.Acknowledged {
			t.Fatalf("intensity %d: result = %+v", tt.intensity, res)
		}
		if got := a.Status().Emotion; got.Type != robot.EmotionSurprise || got.Intensity != tt.intensity {
			t.Errorf("intensity %d: live emotion = %+v", tt.intensity, got)
		}

		events := a.Status().RecentEvents
		if (len(events) == 1) != tt.wantEvent {
			t.Errorf("intensity %d: events = %d, want event %v", tt.intensity, len(events), tt.wantEvent)
		}
		if tt.wantEvent && events[0].Type != robot.EventEmotionChange {
			t.Errorf("intensity %d: event type = %q", tt.intensity, events[0].Type)
		}

		mems, err := a.Memories().Recall(context.Background(), robot.MemoryEmotionalEvent, 0, 0)
		if err != nil {
			t.Fatalf("recall: %v", err)
		}
		if (len(mems) == 1) != tt.wantMemory {
			t.Errorf("intensity %d: memories = %d, want memory %v", tt.intensity, len(mems), tt.wantMemory)
		}
		if tt.wantMemory && mems[0].Importance != tt.intensity {
			t.Errorf("memory importance = %d, want %d", mems[0].Importance, tt.intensity)
		}
	}
}

func TestIngestEmotionStoreFailure(t *testing.T) {
	st := store.NewInMemory()
	r := newTestRegistry(st, &fakeAnalyzer{})
	a := r.Get(context.Background(), "bot")

	st.SetFailing(errors.New("connection reset"))
	res := a.IngestEmotion(context.Background(), robot.EmotionColere, 95, 0)
	if res.Success || !strings.HasPrefix(res.Message, msgEmotionFailed) {
		t.Fatalf("result = %+v", res)
	}
	if a.Status().Emotion.Type != robot.EmotionNeutre {
		t.Error("live emotion must not change when persisting fails")
	}
}

func TestConcurrentDrainsNeverDoubleDeliver(t *testing.T) {
	r := newTestRegistry(store.NewInMemory(), &fakeAnalyzer{})
	a := r.Get(context.Background(), "bot")

	const total = 200
	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			a.EnqueueCommand(context.Background(), robot.NewSoundCommand(100+i, 10))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			n := len(a.DrainCommands("bot"))
			mu.Lock()
			delivered += n
			mu.Unlock()
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n := len(r.DrainCommands("bot"))
				mu.Lock()
				delivered += n
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	delivered += len(a.DrainCommands("bot"))

	if delivered != total {
		t.Errorf("delivered %d commands, want %d", delivered, total)
	}
}

func TestEnqueueRejectsInvalidCommand(t *testing.T) {
	r := newTestRegistry(store.NewInMemory(), &fakeAnalyzer{})
	a := r.Get(context.Background(), "bot")

	if a.EnqueueCommand(context.Background(), robot.NewMovementCommand("sideways", 50, 0)) {
		t.Error("unknown direction accepted")
	}
	if !a.EnqueueCommand(context.Background(), robot.NewMovementCommand(robot.DirectionLeft, 50, 500)) {
		t.Error("valid command rejected")
	}
	if a.Status().PendingCommands != 1 {
		t.Errorf("pending = %d, want 1", a.Status().PendingCommands)
	}
}

func TestRecordInteraction(t *testing.T) {
	st := store.NewInMemory()
	r := newTestRegistry(st, &fakeAnalyzer{})

	if r.RecordInteraction(context.Background(), "ghost", robot.InteractionConversation, "salut", robot.Metadata{}) {
		t.Error("unknown robot accepted")
	}

	a := r.Get(context.Background(), "bot")
	if !r.RecordInteraction(context.Background(), "bot", robot.InteractionConversation, "salut", robot.Metadata{}) {
		t.Fatal("record failed")
	}
	last := a.Status().LastInteraction
	if last == nil || last.Content != "salut" || last.Type != robot.InteractionConversation {
		t.Errorf("last interaction = %+v", last)
	}

	st.SetFailing(errors.New("down"))
	if a.RecordInteraction(context.Background(), robot.InteractionAction, "avancer", robot.Metadata{}) {
		t.Error("store failure reported as success")
	}
	if a.Status().LastInteraction.Content != "salut" {
		t.Error("last interaction replaced after failure")
	}
}

func TestWarmLoadFromStore(t *testing.T) {
	st := store.NewInMemory()
	ctx := context.Background()
	_ = st.SaveSensors(ctx, robot.SensorSnapshot{AgentID: "bot", Timestamp: testNow.Add(-time.Hour), Data: json.RawMessage(`{"touch":{"front":true}}`)})
	_ = st.SaveEmotion(ctx, "bot", robot.EmotionState{Type: robot.EmotionFatigue, Intensity: 30, LastChange: testNow.Add(-time.Hour)})
	for i := 0; i < 7; i++ {
		_ = st.SaveEvent(ctx, robot.Event{ID: string(rune('a' + i)), AgentID: "bot", Timestamp: testNow.Add(time.Duration(i-10) * time.Minute), Type: "x"})
	}
	_ = st.SaveInteraction(ctx, robot.Interaction{ID: "i1", AgentID: "bot", Timestamp: testNow.Add(-time.Minute), Type: robot.InteractionInstruction, Content: "viens"})

	a := newTestRegistry(st, &fakeAnalyzer{}).Get(ctx, "bot")
	status := a.Status()
	if status.Emotion.Type != robot.EmotionFatigue {
		t.Errorf("emotion = %+v", status.Emotion)
	}
	if string(status.Sensors) != `{"touch":{"front":true}}` {
		t.Errorf("sensors = %s", status.Sensors)
	}
	if len(status.RecentEvents) != RecentEventsCapacity || status.RecentEvents[4].ID != "g" {
		t.Errorf("events = %+v", status.RecentEvents)
	}
	if status.LastInteraction == nil || status.LastInteraction.Content != "viens" {
		t.Errorf("last interaction = %+v", status.LastInteraction)
	}
}

func TestConversationHistoryAndPatterns(t *testing.T) {
	st := store.NewInMemory()
	ctx := context.Background()
	save := func(id string, ago time.Duration, i robot.Interaction) {
		i.ID, i.AgentID, i.Timestamp = id, "bot", testNow.Add(-ago)
		if err := st.SaveInteraction(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	save("old", 2*time.Hour, robot.Conversation("trop vieux", false, "neutre"))
	save("c1", 10*time.Minute, robot.Conversation("bonjour", false, "positif"))
	save("c2", 9*time.Minute, robot.Conversation("bonjour humain", true, "positif"))
	save("a1", 8*time.Minute, robot.Action("avancer", "ok", true))
	save("a2", 7*time.Minute, robot.Action("tourner", "bloqué", false))
	save("r1", 6*time.Minute, robot.Reaction("bruit", "sursaut", 80))

	a := newTestRegistry(st, &fakeAnalyzer{}).Get(ctx, "bot")

	history, err := a.ConversationHistory(ctx, 30, 20)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Role != RoleUser || history[0].Content != "bonjour" || history[1].Role != RoleAssistant {
		t.Errorf("history = %+v", history)
	}

	limited, _ := a.ConversationHistory(ctx, 30, 1)
	if len(limited) != 1 || limited[0].Content != "bonjour" {
		t.Errorf("limited history = %+v", limited)
	}

	p, err := a.InteractionPatterns(ctx)
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	if p.Total != 6 {
		t.Errorf("total = %d, want 6", p.Total)
	}
	if p.Types[robot.InteractionConversation] != 3 || p.Types[robot.InteractionAction] != 2 {
		t.Errorf("types = %v", p.Types)
	}
	if p.SentimentDistribution["positif"] != 2 || p.SentimentDistribution["neutre"] != 1 {
		t.Errorf("sentiments = %v", p.SentimentDistribution)
	}
	if p.ActionSuccessRate != 50 {
		t.Errorf("success rate = %v, want 50", p.ActionSuccessRate)
	}
}

func TestRegistryAgents(t *testing.T) {
	r := newTestRegistry(store.NewInMemory(), &fakeAnalyzer{})
	a := r.Get(context.Background(), "b")
	if r.Get(context.Background(), "b") != a {
		t.Error("Get must return the same context")
	}
	r.Get(context.Background(), "a")
	if got := r.Agents(); len(got) != 2 || got[0] != "a" {
		t.Errorf("agents = %v", got)
	}
	r.Close()
	if len(r.Agents()) != 0 {
		t.Error("close left contexts behind")
	}
}
