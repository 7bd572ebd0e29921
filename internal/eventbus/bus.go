// Package eventbus fans out robot events, interactions and queued commands
// to per-agent Redis streams so monitors can follow a robot live.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Kind tags what a Message carries.
type Kind string

const (
	KindEvent       Kind = "event"
	KindInteraction Kind = "interaction"
	KindCommand     Kind = "command"
)

const (
	streamPrefix = "mignon:agent:"
	// maxLen bounds each stream; trimming is approximate.
	maxLen = 1000
)

// Message is one entry on an agent's stream.
type Message struct {
	ID        string          `json:"id,omitempty"`
	AgentID   string          `json:"agent_id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bus publishes and reads agent streams.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Stream returns the stream key for an agent.
func Stream(agentID string) string { return streamPrefix + agentID }

// Publish appends a message to the agent's stream.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	stream := Stream(msg.AgentID)
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{"kind": string(msg.Kind), "data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	b.logger.Debug("published", zap.String("agent", msg.AgentID), zap.String("kind", string(msg.Kind)))
	return nil
}

func (b *Bus) publishValue(ctx context.Context, agentID string, kind Kind, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	return b.Publish(ctx, Message{AgentID: agentID, Kind: kind, Payload: payload})
}

// PublishEvent publishes a context event.
func (b *Bus) PublishEvent(ctx context.Context, e robot.Event) error {
	return b.publishValue(ctx, e.AgentID, KindEvent, e)
}

// PublishInteraction publishes a recorded interaction.
func (b *Bus) PublishInteraction(ctx context.Context, i robot.Interaction) error {
	return b.publishValue(ctx, i.AgentID, KindInteraction, i)
}

// PublishCommand publishes a command that was queued for the robot.
func (b *Bus) PublishCommand(ctx context.Context, agentID string, c robot.Command) error {
	return b.publishValue(ctx, agentID, KindCommand, c)
}

// Subscribe follows an agent's stream from now on. The channel closes when
// ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, agentID string) <-chan Message {
	ch := make(chan Message, 16)
	stream := Stream(agentID)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			if ctx.Err() != nil {
				return
			}
			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Debug("xread failed", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, entry := range r.Messages {
					lastID = entry.ID
					msg, ok := decode(entry)
					if !ok {
						continue
					}
					select {
					case ch <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch
}

func decode(entry redis.XMessage) (Message, bool) {
	data, ok := entry.Values["data"].(string)
	if !ok {
		return Message{}, false
	}
	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return Message{}, false
	}
	msg.ID = entry.ID
	return msg, true
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
