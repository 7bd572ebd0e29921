package context

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/mignon/internal/analysis"
	"github.com/nidhogg/mignon/internal/memory"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/nidhogg/mignon/internal/store"
	"go.uber.org/zap"
)

// Agent is the live context of one robot.
type Agent struct {
	id        string
	store     store.LogStore
	analyzer  Analyzer
	synth     Synthesizer
	memories  *memory.Service
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger

	// ingest serializes sensor and emotion ingestion.
	ingest sync.Mutex

	mu              sync.RWMutex
	sensors         robot.SensorSnapshot
	emotion         robot.EmotionState
	events          eventRing
	commands        []robot.Command
	lastInteraction *robot.InteractionSummary
}

// ID returns the robot identity this context belongs to.
func (a *Agent) ID() string { return a.id }

// Memories returns the agent's long-term memory service.
func (a *Agent) Memories() *memory.Service { return a.memories }

// warmLoad restores the live slots from the log store. Missing records keep
// their defaults.
func (a *Agent) warmLoad(ctx context.Context) {
	snap, err := a.store.LatestSensors(ctx, a.id)
	hasSensors := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.logger.Warn("warm-load sensors failed", zap.String("agent", a.id), zap.Error(err))
	}

	emotion, err := a.store.CurrentEmotion(ctx, a.id)
	hasEmotion := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.logger.Warn("warm-load emotion failed", zap.String("agent", a.id), zap.Error(err))
	}

	events, err := a.store.RecentEvents(ctx, a.id, RecentEventsCapacity)
	if err != nil {
		a.logger.Warn("warm-load events failed", zap.String("agent", a.id), zap.Error(err))
	}

	recent, err := a.store.RecentInteractions(ctx, a.id, time.Time{}, 1)
	if err != nil {
		a.logger.Warn("warm-load interactions failed", zap.String("agent", a.id), zap.Error(err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if hasSensors {
		a.sensors = snap
	}
	if hasEmotion {
		a.emotion = emotion
	}
	for _, e := range events {
		a.events.push(e)
	}
	if len(recent) > 0 {
		a.lastInteraction = summarize(recent[0])
	}
}

// IngestSensors records a sensor snapshot, analyzes it and queues the
// resulting commands. The returned commands are the ones synthesized from the
// suggested actions; an emotion command, when issued, is only queued.
func (a *Agent) IngestSensors(ctx context.Context, payload json.RawMessage) SensorResult {
	a.ingest.Lock()
	defer a.ingest.Unlock()

	now := a.now()
	snap := robot.SensorSnapshot{AgentID: a.id, Timestamp: now, Data: payload}
	if err := a.store.SaveSensors(ctx, snap); err != nil {
		a.logger.Error("save sensors failed", zap.String("agent", a.id), zap.Error(err))
		return SensorResult{Message: msgSensorsFailed + err.Error(), Commands: []robot.Command{}}
	}

	a.mu.Lock()
	a.sensors = snap
	emotion := a.emotion
	a.mu.Unlock()

	result := a.analyzer.Analyze(ctx, payload, emotion)
	outcome := analysis.Interpret(result, emotion, now)

	if outcome.Event != nil {
		ev := *outcome.Event
		ev.ID = uuid.New().String()
		ev.AgentID = a.id
		if err := a.store.SaveEvent(ctx, ev); err != nil {
			a.logger.Error("save interpretation event failed", zap.String("agent", a.id), zap.Error(err))
			return SensorResult{Message: msgSensorsFailed + err.Error(), Analysis: &result, Commands: []robot.Command{}}
		}
		a.pushEvent(ctx, ev)
	}

	commands := a.synth.Synthesize(result.SuggestedActions)
	if commands == nil {
		commands = []robot.Command{}
	}

	queued := make([]robot.Command, 0, len(commands)+1)
	if outcome.Emotion != nil {
		if err := outcome.Emotion.Validate(); err != nil {
			a.logger.Warn("dropping invalid emotion command", zap.String("agent", a.id), zap.Error(err))
			outcome.Emotion = nil
		} else {
			queued = append(queued, *outcome.Emotion)
		}
	}
	queued = append(queued, commands...)

	a.mu.Lock()
	a.commands = append(a.commands, queued...)
	a.mu.Unlock()

	for _, c := range queued {
		a.publishCommand(ctx, c)
	}

	a.logger.Debug("sensors ingested",
		zap.String("agent", a.id),
		zap.Int("commands", len(queued)),
		zap.Bool("emotion_command", outcome.Emotion != nil))
	return SensorResult{Success: true, Message: msgSensorsOK, Analysis: &result, Commands: commands}
}

// IngestEmotion records a reported emotion and replaces the live one. Strong
// emotions also produce an event, and very strong ones a memory.
func (a *Agent) IngestEmotion(ctx context.Context, typ robot.EmotionType, intensity, duration int) EmotionResult {
	a.ingest.Lock()
	defer a.ingest.Unlock()

	now := a.now()
	state := robot.EmotionState{Type: typ, Intensity: intensity, Duration: duration, LastChange: now}
	if err := a.store.SaveEmotion(ctx, a.id, state); err != nil {
		a.logger.Error("save emotion failed", zap.String("agent", a.id), zap.Error(err))
		return EmotionResult{Message: msgEmotionFailed + err.Error()}
	}

	a.mu.Lock()
	a.emotion = state
	a.mu.Unlock()

	if intensity > EmotionEventThreshold {
		ev := robot.Event{
			ID:          uuid.New().String(),
			AgentID:     a.id,
			Timestamp:   now,
			Type:        robot.EventEmotionChange,
			Description: fmt.Sprintf(fmtEmotionChange, typ, intensity),
			Data:        map[string]any{"emotion": string(typ), "intensity": intensity},
		}
		if err := a.store.SaveEvent(ctx, ev); err != nil {
			a.logger.Error("save emotion event failed", zap.String("agent", a.id), zap.Error(err))
			return EmotionResult{Message: msgEmotionFailed + err.Error()}
		}
		a.pushEvent(ctx, ev)
	}

	if intensity > EmotionMemoryThreshold && a.memories != nil {
		content := fmt.Sprintf(fmtEmotionalEvent, typ, intensity)
		if _, err := a.memories.Remember(ctx, robot.MemoryEmotionalEvent, content, intensity, nil); err != nil {
			a.logger.Error("save emotional memory failed", zap.String("agent", a.id), zap.Error(err))
			return EmotionResult{Message: msgEmotionFailed + err.Error()}
		}
	}

	return EmotionResult{
		Success: true,
		Message: msgEmotionOK,
		Emotion: &EmotionAck{Type: typ, Intensity: intensity, Acknowledged: true},
	}
}

// DrainCommands returns every queued command and empties the queue in one
// step. A mismatched agent id gets nothing.
func (a *Agent) DrainCommands(agentID string) []robot.Command {
	if agentID != a.id {
		a.logger.Warn("command drain for another robot",
			zap.String("agent", a.id), zap.String("requested", agentID))
		return []robot.Command{}
	}
	a.mu.Lock()
	out := a.commands
	a.commands = nil
	a.mu.Unlock()
	if out == nil {
		return []robot.Command{}
	}
	return out
}

// EnqueueCommand appends a validated command to the queue.
func (a *Agent) EnqueueCommand(ctx context.Context, cmd robot.Command) bool {
	if err := cmd.Validate(); err != nil {
		a.logger.Warn("rejected command", zap.String("agent", a.id), zap.Error(err))
		return false
	}
	a.mu.Lock()
	a.commands = append(a.commands, cmd)
	a.mu.Unlock()
	a.publishCommand(ctx, cmd)
	return true
}

// RecordInteraction persists an interaction and makes it the last one seen.
func (a *Agent) RecordInteraction(ctx context.Context, typ robot.InteractionType, content string, md robot.Metadata) bool {
	i := robot.Interaction{
		ID:        uuid.New().String(),
		AgentID:   a.id,
		Timestamp: a.now(),
		Type:      typ,
		Content:   content,
		Metadata:  md,
	}
	if err := a.store.SaveInteraction(ctx, i); err != nil {
		a.logger.Error("save interaction failed", zap.String("agent", a.id), zap.Error(err))
		return false
	}

	a.mu.Lock()
	a.lastInteraction = summarize(i)
	a.mu.Unlock()

	if a.publisher != nil {
		if err := a.publisher.PublishInteraction(ctx, i); err != nil {
			a.logger.Warn("publish interaction failed", zap.String("agent", a.id), zap.Error(err))
		}
	}
	return true
}

// Status returns a copy of the live context.
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		AgentID:         a.id,
		SensorsAt:       a.sensors.Timestamp,
		Emotion:         a.emotion,
		RecentEvents:    a.events.snapshot(),
		PendingCommands: len(a.commands),
	}
	if len(a.sensors.Data) > 0 {
		st.Sensors = append(json.RawMessage(nil), a.sensors.Data...)
	}
	if a.lastInteraction != nil {
		li := *a.lastInteraction
		st.LastInteraction = &li
	}
	return st
}

func (a *Agent) pushEvent(ctx context.Context, ev robot.Event) {
	a.mu.Lock()
	a.events.push(ev)
	a.mu.Unlock()

	if a.publisher != nil {
		if err := a.publisher.PublishEvent(ctx, ev); err != nil {
			a.logger.Warn("publish event failed", zap.String("agent", a.id), zap.Error(err))
		}
	}
}

func (a *Agent) publishCommand(ctx context.Context, c robot.Command) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.PublishCommand(ctx, a.id, c); err != nil {
		a.logger.Warn("publish command failed", zap.String("agent", a.id), zap.Error(err))
	}
}

func summarize(i robot.Interaction) *robot.InteractionSummary {
	return &robot.InteractionSummary{Timestamp: i.Timestamp, Type: i.Type, Content: i.Content}
}
