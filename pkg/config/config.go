package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the query engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets
// (passwords, API keys, client secrets) must only come from environment
// variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	LLM      LLMConfig      `yaml:"llm"`
	Fabric   FabricConfig   `yaml:"fabric"`
	PowerBI  PowerBIConfig  `yaml:"powerbi"`
	Azure    AzureConfig    `yaml:"azure"`
	Engine   EngineConfig   `yaml:"engine"`
	Database DatabaseConfig `yaml:"database"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	// MaxTokens bounds completion length for query generation/correction.
	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1500"`
}

// FabricConfig holds SQL warehouse connection settings.
type FabricConfig struct {
	Endpoint string `yaml:"endpoint" env:"FABRIC_SQL_ENDPOINT" env-default:""`
	Database string `yaml:"database" env:"FABRIC_DATABASE" env-default:""`
}

// PowerBIConfig holds semantic model connection settings.
type PowerBIConfig struct {
	// APIBase is the Power BI REST base URL.
	APIBase   string `yaml:"api_base" env:"POWERBI_API_BASE" env-default:"https://api.powerbi.com/v1.0/myorg"`
	DatasetID string `yaml:"dataset_id" env:"POWERBI_DATASET_ID" env-default:""`
}

// AzureConfig holds AAD client-credentials settings used by both backends.
type AzureConfig struct {
	TenantID     string `yaml:"tenant_id" env:"AZURE_TENANT_ID" env-default:""`
	ClientID     string `yaml:"client_id" env:"AZURE_CLIENT_ID" env-default:""`
	ClientSecret string `yaml:"-" env:"AZURE_CLIENT_SECRET"` // Secret - not in YAML
}

// EngineConfig holds the orchestration tunables.
type EngineConfig struct {
	// MaxAttempts is the attempt budget per question, inclusive of the
	// first execution.
	MaxAttempts int `yaml:"max_attempts" env:"ENGINE_MAX_ATTEMPTS" env-default:"3"`
	// RowLimit caps rows fetched from the backend per execution.
	RowLimit int `yaml:"row_limit" env:"ENGINE_ROW_LIMIT" env-default:"1000"`
	// ResultRowCap caps rows carried in the returned result payload.
	ResultRowCap int `yaml:"result_row_cap" env:"ENGINE_RESULT_ROW_CAP" env-default:"100"`
	// QueryTimeout bounds a single backend execution.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"ENGINE_QUERY_TIMEOUT" env-default:"30s"`
	// SchemaTTL is how long a discovered schema stays cached.
	SchemaTTL time.Duration `yaml:"schema_ttl" env:"ENGINE_SCHEMA_TTL" env-default:"1h"`
	// SimilarityThreshold is the minimum fingerprint similarity for a
	// question-cache hit.
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"ENGINE_SIMILARITY_THRESHOLD" env-default:"0.8"`
	// SimilarityCacheSize bounds the question cache (LRU).
	SimilarityCacheSize int `yaml:"similarity_cache_size" env:"ENGINE_SIMILARITY_CACHE_SIZE" env-default:"256"`
	// ContextTurns is the conversation window kept per session.
	ContextTurns int `yaml:"context_turns" env:"ENGINE_CONTEXT_TURNS" env-default:"3"`
	// RepairEnvironmental grants permission/connection errors the normal
	// correction path instead of failing the turn immediately.
	RepairEnvironmental bool `yaml:"repair_environmental" env:"ENGINE_REPAIR_ENVIRONMENTAL" env-default:"false"`
	// AnswerSampleRows is how many result rows are shown to the model
	// when synthesizing the answer.
	AnswerSampleRows int `yaml:"answer_sample_rows" env:"ENGINE_ANSWER_SAMPLE_ROWS" env-default:"20"`
}

// DatabaseConfig holds the optional PostgreSQL query-history store.
// History persistence is disabled when URL is empty.
type DatabaseConfig struct {
	URL            string `yaml:"-" env:"DATABASE_URL"` // Contains password - env only
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// Load reads configuration from config.yaml (if present) and the
// environment, then validates it.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface
// as confusing runtime failures.
func (c *Config) Validate() error {
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be >= 1, got %d", c.Engine.MaxAttempts)
	}
	if c.Engine.SimilarityThreshold <= 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("engine.similarity_threshold must be in (0, 1], got %g", c.Engine.SimilarityThreshold)
	}
	if c.Engine.ContextTurns < 1 {
		return fmt.Errorf("engine.context_turns must be >= 1, got %d", c.Engine.ContextTurns)
	}
	if c.Engine.RowLimit < 1 {
		return fmt.Errorf("engine.row_limit must be >= 1, got %d", c.Engine.RowLimit)
	}
	return nil
}
