// Package store persists the robot's logs (sensor snapshots, emotion states,
// events, interactions) and its long-term memories.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/mignon/internal/robot"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MemoryStore persists long-term memories. Every call is scoped to one agent.
type MemoryStore interface {
	SaveMemory(ctx context.Context, m robot.Memory) error
	// ListMemories returns memories by importance desc. An empty type matches
	// every type. limit <= 0 means no limit.
	ListMemories(ctx context.Context, agentID string, typ robot.MemoryType, minImportance, limit int) ([]robot.Memory, error)
	DeleteMemory(ctx context.Context, agentID, id string) (bool, error)
	UpdateImportance(ctx context.Context, agentID, id string, importance int, at time.Time) (bool, error)
	// DeleteStale removes memories with importance below the threshold that
	// were created before cutoff, returning how many were removed.
	DeleteStale(ctx context.Context, agentID string, below int, cutoff time.Time) (int, error)
}

// LogStore is the append-mostly log behind the context state machine.
type LogStore interface {
	MemoryStore

	SaveSensors(ctx context.Context, s robot.SensorSnapshot) error
	LatestSensors(ctx context.Context, agentID string) (robot.SensorSnapshot, error)
	SaveEmotion(ctx context.Context, agentID string, e robot.EmotionState) error
	CurrentEmotion(ctx context.Context, agentID string) (robot.EmotionState, error)
	SaveEvent(ctx context.Context, e robot.Event) error
	// RecentEvents returns up to limit events, oldest first.
	RecentEvents(ctx context.Context, agentID string, limit int) ([]robot.Event, error)
	SaveInteraction(ctx context.Context, i robot.Interaction) error
	// RecentInteractions returns interactions at or after since, newest first.
	RecentInteractions(ctx context.Context, agentID string, since time.Time, limit int) ([]robot.Interaction, error)

	Close()
}

var (
	_ LogStore = (*Postgres)(nil)
	_ LogStore = (*SQLite)(nil)
	_ LogStore = (*InMemory)(nil)
)

// Postgres is a LogStore backed by a pgx connection pool.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Postgres store with a pgx connection pool.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Postgres{db: pool, logger: logger}, nil
}

// Migrate executes every *.up.sql file in migrationsDir in name order.
// Migrations are written to be re-runnable.
func (s *Postgres) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Ping checks the pool.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Postgres) Close() {
	s.db.Close()
}
