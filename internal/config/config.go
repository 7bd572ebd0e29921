package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Agent     AgentConfig      `json:"agent"`
	Providers []ProviderConfig `json:"providers"`
	Reasoning ReasoningConfig  `json:"reasoning"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Database  DatabaseConfig   `json:"database"`
	Memory    MemoryConfig     `json:"memory"`
}

type ServerConfig struct {
	Port     int    `json:"port" env:"MIGNON_SERVER_PORT"`
	LogLevel string `json:"log_level" env:"MIGNON_SERVER_LOG_LEVEL"`
}

// AgentConfig names the robot whose context is created at startup.
type AgentConfig struct {
	DefaultID string `json:"default_id" env:"ROBOT_ID"`
}

type ProviderConfig struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Name           string            `json:"name"`
	Endpoint       string            `json:"endpoint"`
	APIKey         string            `json:"api_key"`
	Models         []string          `json:"models,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// ReasoningConfig drives the sensor analysis completion.
type ReasoningConfig struct {
	Provider    string   `json:"provider" env:"MIGNON_REASONING_PROVIDER"`
	Fallbacks   []string `json:"fallbacks" env:"MIGNON_REASONING_FALLBACKS"`
	Model       string   `json:"model" env:"MIGNON_REASONING_MODEL"`
	MaxTokens   int      `json:"max_tokens" env:"MIGNON_REASONING_MAX_TOKENS"`
	Temperature float64  `json:"temperature" env:"MIGNON_REASONING_TEMPERATURE"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider" env:"MIGNON_EMBEDDING_PROVIDER"`
	Endpoint  string `json:"endpoint" env:"MIGNON_EMBEDDING_ENDPOINT"`
	Model     string `json:"model" env:"MIGNON_EMBEDDING_MODEL"`
	APIKey    string `json:"api_key" env:"MIGNON_EMBEDDING_API_KEY"`
	Dimension int    `json:"dimension" env:"MIGNON_EMBEDDING_DIMENSION"`
	CacheSize int64  `json:"cache_size" env:"MIGNON_EMBEDDING_CACHE_SIZE"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn" env:"MIGNON_POSTGRES_DSN"`
	Migrations string `json:"migrations" env:"MIGNON_POSTGRES_MIGRATIONS"`
}

type SQLiteConfig struct {
	Path string `json:"path" env:"MIGNON_SQLITE_PATH"`
}

type Neo4jConfig struct {
	URI      string `json:"uri" env:"MIGNON_NEO4J_URI"`
	User     string `json:"user" env:"MIGNON_NEO4J_USER"`
	Password string `json:"password" env:"MIGNON_NEO4J_PASSWORD"`
}

type RedisConfig struct {
	URL string `json:"url" env:"MIGNON_REDIS_URL"`
}

type QdrantConfig struct {
	Host       string `json:"host" env:"MIGNON_QDRANT_HOST"`
	Port       int    `json:"port" env:"MIGNON_QDRANT_PORT"`
	Collection string `json:"collection" env:"MIGNON_QDRANT_COLLECTION"`
}

// MemoryConfig selects the long-term memory backend and its consolidation
// policy. Backend is "store" (the log store), "neo4j" or empty for store.
// Index is "qdrant", "chromem" or empty for keyword ranking only.
type MemoryConfig struct {
	Backend         string `json:"backend" env:"MIGNON_MEMORY_BACKEND"`
	Index           string `json:"index" env:"MIGNON_MEMORY_INDEX"`
	MinImportance   int    `json:"min_importance" env:"MIGNON_MEMORY_MIN_IMPORTANCE"`
	MaxAgeDays      int    `json:"max_age_days" env:"MIGNON_MEMORY_MAX_AGE_DAYS"`
	ConsolidateCron string `json:"consolidate_cron" env:"MIGNON_MEMORY_CONSOLIDATE_CRON"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable
// references, applies MIGNON_* overrides and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.Defaults()
	return &cfg, nil
}

// applyEnv overlays tagged fields from the environment. Providers are a list
// and only come from the file.
func applyEnv(cfg *Config) error {
	for _, section := range []any{
		&cfg.Server, &cfg.Agent, &cfg.Reasoning, &cfg.Embedding,
		&cfg.Database.Postgres, &cfg.Database.SQLite, &cfg.Database.Neo4j,
		&cfg.Database.Redis, &cfg.Database.Qdrant, &cfg.Memory,
	} {
		if err := env.Parse(section); err != nil {
			return err
		}
	}
	return nil
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "development"
	}
	if c.Agent.DefaultID == "" {
		c.Agent.DefaultID = "MignonBot1"
	}
	if c.Reasoning.MaxTokens == 0 {
		c.Reasoning.MaxTokens = 1024
	}
	if c.Reasoning.Temperature == 0 {
		c.Reasoning.Temperature = 0.3
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 384
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "migrations"
	}
	if c.Database.Qdrant.Port == 0 {
		c.Database.Qdrant.Port = 6334
	}
	if c.Database.Qdrant.Collection == "" {
		c.Database.Qdrant.Collection = "mignon_memories"
	}
	if c.Memory.MinImportance == 0 {
		c.Memory.MinImportance = 10
	}
	if c.Memory.MaxAgeDays == 0 {
		c.Memory.MaxAgeDays = 30
	}
}
