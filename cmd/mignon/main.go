package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/mignon/internal/actuator"
	"github.com/nidhogg/mignon/internal/analysis"
	"github.com/nidhogg/mignon/internal/api"
	"github.com/nidhogg/mignon/internal/config"
	ctxmgr "github.com/nidhogg/mignon/internal/context"
	"github.com/nidhogg/mignon/internal/embedding"
	"github.com/nidhogg/mignon/internal/eventbus"
	"github.com/nidhogg/mignon/internal/memory"
	"github.com/nidhogg/mignon/internal/provider"
	"github.com/nidhogg/mignon/internal/store"
	"github.com/nidhogg/mignon/internal/vectorstore"
	"go.uber.org/zap"
)

// reasoningAgent is the router binding used for sensor analysis.
const reasoningAgent = "reasoning"

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/mignon.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting Mignon MCP server...", zap.String("config", cfgPath))

	ctx := context.Background()

	// Reasoning backend
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		router.Register(provider.NewProvider(provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
			Timeout: time.Duration(pc.TimeoutSeconds) * time.Second,
		}, logger))
	}
	if cfg.Reasoning.Provider != "" {
		router.Bind(reasoningAgent, cfg.Reasoning.Provider)
	}
	router.SetFallbacks(reasoningAgent, cfg.Reasoning.Fallbacks)
	if len(cfg.Providers) == 0 {
		logger.Warn("no reasoning provider configured, analysis will use the fallback record")
	}
	reasoner := provider.NewReasoner(router, reasoningAgent, cfg.Reasoning.Model, logger).
		WithSystem(analysis.SystemPrompt)
	analyzer := analysis.NewAnalyzer(reasoner, analysis.Options{
		MaxTokens:   cfg.Reasoning.MaxTokens,
		Temperature: cfg.Reasoning.Temperature,
	}, logger)

	// Log store
	logStore := openLogStore(ctx, cfg.Database, logger)
	defer logStore.Close()

	// Long-term memory
	var memStore store.MemoryStore = logStore
	var graph *memory.GraphStore
	if cfg.Memory.Backend == "neo4j" {
		graph, err = openGraph(ctx, cfg.Database.Neo4j, logger)
		if err != nil {
			logger.Warn("Neo4j unavailable, memories stay in the log store", zap.Error(err))
		} else {
			memStore = graph
		}
	}

	embedder := openEmbedder(cfg.Embedding, logger)
	var index memory.VectorIndex
	var qdrant *vectorstore.Client
	if embedder != nil {
		index, qdrant = openIndex(ctx, cfg, embedder.Dimension(), logger)
	}
	memOpts := []memory.Option{memory.WithPolicy(memory.ConsolidationPolicy{
		MinImportance: cfg.Memory.MinImportance,
		MaxAge:        time.Duration(cfg.Memory.MaxAgeDays) * 24 * time.Hour,
	})}
	if embedder != nil {
		memOpts = append(memOpts,
			memory.WithEmbedder(embedder),
			memory.WithRanker(memory.NewVectorRanker(embedder, index, logger)))
	}
	if index != nil {
		memOpts = append(memOpts, memory.WithIndex(index))
	}

	// Event bus
	deps := ctxmgr.Deps{
		Store:       logStore,
		Analyzer:    analyzer,
		Synthesizer: actuator.NewSynthesizer(nil),
		Memories: func(agentID string) *memory.Service {
			return memory.New(agentID, memStore, logger, memOpts...)
		},
	}
	var bus *eventbus.Bus
	if cfg.Database.Redis.URL != "" {
		bus, err = eventbus.New(ctx, cfg.Database.Redis.URL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(err))
		} else {
			deps.Publisher = bus
		}
	}

	registry := ctxmgr.NewRegistry(deps, logger)
	registry.Get(ctx, cfg.Agent.DefaultID)

	// Consolidation schedule
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	if cfg.Memory.ConsolidateCron != "" {
		sched, err := memory.NewScheduler(cfg.Memory.ConsolidateCron, registry.MemoryServices, logger)
		if err != nil {
			logger.Warn("consolidation disabled", zap.Error(err))
		} else {
			go sched.Run(runCtx)
			logger.Info("Memory consolidation scheduled", zap.String("cron", cfg.Memory.ConsolidateCron))
		}
	}

	handler := api.NewHandler(registry, router, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Mignon listening", zap.String("port", port), zap.String("robot", cfg.Agent.DefaultID))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Mignon...")
	stopRun()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	registry.Close()
	if bus != nil {
		bus.Close()
	}
	if graph != nil {
		graph.Close(shutdownCtx)
	}
	if qdrant != nil {
		qdrant.Close()
	}
	if c, ok := embedder.(*embedding.Cached); ok {
		c.Close()
	}
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openLogStore picks Postgres, then SQLite, then the in-memory store.
func openLogStore(ctx context.Context, db config.DatabaseConfig, logger *zap.Logger) store.LogStore {
	if db.Postgres.DSN != "" {
		pg, err := store.New(ctx, db.Postgres.DSN, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, trying SQLite", zap.Error(err))
		} else if err := pg.Migrate(ctx, db.Postgres.Migrations); err != nil {
			pg.Close()
			logger.Warn("migration failed, trying SQLite", zap.Error(err))
		} else {
			logger.Info("Log store: PostgreSQL")
			return pg
		}
	}
	if db.SQLite.Path != "" {
		lite, err := store.NewSQLite(db.SQLite.Path, logger)
		if err != nil {
			logger.Warn("SQLite unavailable", zap.String("path", db.SQLite.Path), zap.Error(err))
		} else {
			logger.Info("Log store: SQLite", zap.String("path", db.SQLite.Path))
			return lite
		}
	}
	logger.Warn("no persistent store, running in memory only")
	return store.NewInMemory()
}

func openGraph(ctx context.Context, cfg config.Neo4jConfig, logger *zap.Logger) (*memory.GraphStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j uri not set")
	}
	g, err := memory.NewGraphStore(cfg.URI, cfg.User, cfg.Password, logger)
	if err != nil {
		return nil, err
	}
	if err := g.EnsureSchema(ctx); err != nil {
		g.Close(ctx)
		return nil, err
	}
	logger.Info("Memory store: Neo4j", zap.String("uri", cfg.URI))
	return g, nil
}

func openEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Provider {
	p, err := embedding.New(embedding.Config{
		Provider:  cfg.Provider,
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		Dimension: cfg.Dimension,
	})
	if err != nil {
		logger.Warn("embedding disabled", zap.Error(err))
		return nil
	}
	if p == nil {
		return nil
	}
	if cfg.CacheSize > 0 {
		cached, err := embedding.NewCached(p, cfg.CacheSize)
		if err != nil {
			logger.Warn("embedding cache disabled", zap.Error(err))
			return p
		}
		return cached
	}
	return p
}

func openIndex(ctx context.Context, cfg *config.Config, dim int, logger *zap.Logger) (memory.VectorIndex, *vectorstore.Client) {
	switch cfg.Memory.Index {
	case "qdrant":
		q := cfg.Database.Qdrant
		if q.Host == "" {
			logger.Warn("qdrant host not set, using the embedded index")
			return memory.NewChromemIndex(), nil
		}
		client, err := vectorstore.NewClient(vectorstore.QdrantConfig{Host: q.Host, Port: q.Port})
		if err != nil {
			logger.Warn("Qdrant unavailable, using the embedded index", zap.Error(err))
			return memory.NewChromemIndex(), nil
		}
		idx, err := memory.NewQdrantIndex(ctx, client, q.Collection, dim)
		if err != nil {
			client.Close()
			logger.Warn("Qdrant unavailable, using the embedded index", zap.Error(err))
			return memory.NewChromemIndex(), nil
		}
		logger.Info("Vector index: Qdrant", zap.String("collection", q.Collection))
		return idx, client
	case "chromem":
		logger.Info("Vector index: embedded")
		return memory.NewChromemIndex(), nil
	default:
		return nil, nil
	}
}
