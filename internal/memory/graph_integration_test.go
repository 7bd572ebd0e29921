//go:build integration

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/mignon/internal/robot"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"go.uber.org/zap"
)

func startGraph(t *testing.T) *GraphStore {
	t.Helper()
	ctx := context.Background()
	ctr, err := tcneo4j.Run(ctx, "neo4j:5-community", tcneo4j.WithoutAuthentication())
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	uri, err := ctr.BoltUrl(ctx)
	if err != nil {
		t.Fatalf("neo4j bolt url: %v", err)
	}
	g, err := NewGraphStore(uri, "", "", zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = g.Close(ctx) })
	if err := g.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return g
}

func TestGraphMemoryLifecycle(t *testing.T) {
	g := startGraph(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := New("mignon-1", g, zap.NewNop(), WithClock(fixedClock(now)))
	fact, err := svc.RememberFact(ctx, "le jardin est derrière la maison", 70)
	if err != nil {
		t.Fatalf("remember fact: %v", err)
	}
	if _, err := svc.Remember(ctx, robot.MemoryEmotionalEvent, "J'ai ressenti une forte émotion de joie avec une intensité de 90.", 90, nil); err != nil {
		t.Fatalf("remember emotion: %v", err)
	}

	old := robot.Memory{ID: "old-1", AgentID: "mignon-1", Type: robot.MemoryEpisodic, Content: "un bruit lointain",
		Importance: 3, CreatedAt: now.Add(-60 * 24 * time.Hour), UpdatedAt: now.Add(-60 * 24 * time.Hour)}
	if err := g.SaveMemory(ctx, old); err != nil {
		t.Fatalf("save old memory: %v", err)
	}

	other := New("mignon-2", g, zap.NewNop())
	if _, err := other.RememberEpisode(ctx, "autre robot", 50); err != nil {
		t.Fatalf("remember other: %v", err)
	}

	all, err := svc.Recall(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(all) != 3 || all[0].Importance != 90 {
		t.Errorf("recall = %+v", all)
	}

	if ok, err := svc.Reweight(ctx, fact.ID, 150); err != nil || !ok {
		t.Fatalf("reweight: %v %v", ok, err)
	}
	top, _ := svc.Recall(ctx, robot.MemorySemantic, 1, 0)
	if len(top) != 1 || top[0].Importance != 100 {
		t.Errorf("reweighted fact = %+v", top)
	}

	n, err := svc.Consolidate(ctx)
	if err != nil || n != 1 {
		t.Errorf("consolidate = %d, %v; want 1", n, err)
	}
	if ok, err := svc.Forget(ctx, "old-1"); err != nil || ok {
		t.Errorf("forget consolidated = %v, %v", ok, err)
	}

	left, _ := other.Recall(ctx, "", 0, 0)
	if len(left) != 1 {
		t.Errorf("other agent memories = %d, want 1", len(left))
	}
}
