package configs

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

var global *Config

type Config struct {
	HTTPPort int `env:"AGENT_ENGINE_PORT" envDefault:"8080"`

	// Database - Read/Write Split (required, no default)
	DBPostgresqlWriteDSN string `env:"DB_POSTGRESQL_WRITE_DSN,notEmpty"`
	DBPostgresqlRead1DSN string `env:"DB_POSTGRESQL_READ1_DSN"` // Optional read replica

	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	EmbeddingServiceURL     string        `env:"EMBEDDING_SERVICE_URL" envDefault:"http://localhost:8091"`
	EmbeddingServiceAPIKey  string        `env:"EMBEDDING_SERVICE_API_KEY"`
	EmbeddingTimeout        time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"10s"`
	EmbeddingBatchSize      int           `env:"EMBEDDING_BATCH_SIZE" envDefault:"16"`
	EmbeddingBatchWindow    time.Duration `env:"EMBEDDING_BATCH_WINDOW" envDefault:"10ms"`
	EmbeddingCacheType      string        `env:"EMBEDDING_CACHE_TYPE" envDefault:"memory"`
	EmbeddingCacheTTL       time.Duration `env:"EMBEDDING_CACHE_TTL" envDefault:"1h"`
	EmbeddingCacheMaxSize   int           `env:"EMBEDDING_CACHE_MAX_SIZE" envDefault:"10000"`
	EmbeddingCacheRedisURL  string        `env:"EMBEDDING_CACHE_REDIS_URL" envDefault:"redis://redis:6379/3"`
	EmbeddingCacheKeyPrefix string        `env:"EMBEDDING_CACHE_KEY_PREFIX" envDefault:"emb:"`

	ValidateEmbedding        bool          `env:"VALIDATE_EMBEDDING_ON_START" envDefault:"true"`
	ValidateEmbeddingTimeout time.Duration `env:"VALIDATE_EMBEDDING_TIMEOUT" envDefault:"10s"`

	LLMBaseURL    string        `env:"LLM_BASE_URL" envDefault:"http://localhost:8092/v1"`
	LLMAPIKey     string        `env:"LLM_API_KEY"`
	LLMModel      string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"20s"`
	LLMMaxRetries int           `env:"LLM_MAX_RETRIES" envDefault:"2"`
	LLMMaxTokens  int           `env:"LLM_MAX_TOKENS" envDefault:"256"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`

	APIKey string `env:"AGENT_ENGINE_API_KEY"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	OTELEnabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"agent-engine"`

	// Redis used for cross-replica coordination (startup migration lock).
	LockRedisURL string `env:"LOCK_REDIS_URL"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Default decision policy; tenants may override a subset (see tenant.Policy).
	ContextWindow      int     `env:"CONTEXT_MESSAGE_LIMIT" envDefault:"6"`
	ContextMaxChars    int     `env:"CONTEXT_MAX_CHARS" envDefault:"1200"`
	ReplyMinSimilarity float64 `env:"REPLY_MIN_SIMILARITY" envDefault:"0.35"`
	// Noise floor applied at retrieval time. Kept well below the reply floor
	// so weak-but-nonzero matches still reach the decider and surface as
	// low_similarity instead of no_evidence.
	RetrievalMinSimilarity float64       `env:"RETRIEVAL_MIN_SIMILARITY" envDefault:"0.05"`
	RetrievalLimit         int           `env:"RETRIEVAL_LIMIT" envDefault:"8"`
	MaxEvidence            int           `env:"MAX_EVIDENCE" envDefault:"4"`
	MaxPerDocShare         float64       `env:"MAX_PER_DOC_SHARE" envDefault:"0.5"`
	ClarifyLimit           int           `env:"CLARIFY_LIMIT" envDefault:"2"`
	RetrievalTimeout       time.Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"5s"`
	GenerationTimeout      time.Duration `env:"GENERATION_TIMEOUT" envDefault:"20s"`
	RetrievalMode          string        `env:"RETRIEVAL_MODE" envDefault:"auto"`
	RerankEnabled          bool          `env:"RERANK_ENABLED" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.RetrievalMode = strings.ToLower(strings.TrimSpace(cfg.RetrievalMode))

	global = cfg
	return cfg, nil
}

func GetGlobal() *Config {
	return global
}

// GetDatabaseWriteDSN returns the write database connection string.
func (c *Config) GetDatabaseWriteDSN() string {
	return c.DBPostgresqlWriteDSN
}

// GetDatabaseReadDSN returns the read database connection string.
// If DB_POSTGRESQL_READ1_DSN is set, it returns that.
// Otherwise, falls back to write DSN (no replica configured).
func (c *Config) GetDatabaseReadDSN() string {
	if c.DBPostgresqlRead1DSN != "" {
		return c.DBPostgresqlRead1DSN
	}
	return c.GetDatabaseWriteDSN()
}
