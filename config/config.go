// Package config loads the application settings from defaults, an optional
// config file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds every setting of the process.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Chat     ChatConfig     `mapstructure:"chat"`
	RAG      RAGConfig      `mapstructure:"rag"`
	Research ResearchConfig `mapstructure:"research"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	GoogleAPIKey   string        `mapstructure:"google_api_key"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL  string        `mapstructure:"openai_base_url"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// ChatConfig tunes the conversation.
type ChatConfig struct {
	MaxHistory        int  `mapstructure:"max_history"`
	ConfirmResearch   bool `mapstructure:"confirm_research"`
	MaxInvalidReplies int  `mapstructure:"max_invalid_replies"`
}

// RAGConfig tunes document indexing and retrieval.
type RAGConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ChunkSize    int     `mapstructure:"chunk_size"`
	ChunkOverlap int     `mapstructure:"chunk_overlap"`
	TopK         int     `mapstructure:"top_k"`
	Threshold    float64 `mapstructure:"threshold"`
	MaxFileSize  int64   `mapstructure:"max_file_size"`
	UploadDir    string  `mapstructure:"upload_dir"`
	IndexDir     string  `mapstructure:"index_dir"`
	OpenIndexes  int     `mapstructure:"open_indexes"`
}

// ResearchConfig holds the research tool keys and the artifact directory.
type ResearchConfig struct {
	Dir           string `mapstructure:"dir"`
	SerperAPIKey  string `mapstructure:"serper_api_key"`
	BraveAPIKey   string `mapstructure:"brave_api_key"`
	YouTubeAPIKey string `mapstructure:"youtube_api_key"`
}

// WorkersConfig bounds the agent worker pool.
type WorkersConfig struct {
	PoolSize          int           `mapstructure:"pool_size"`
	WorkflowTimeout   time.Duration `mapstructure:"workflow_timeout"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
	TimeoutRetries    int           `mapstructure:"timeout_retries"`
	ExtractionRetries int           `mapstructure:"extraction_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	Backend        string        `mapstructure:"backend"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	PostgresURL    string        `mapstructure:"postgres_url"`
	PostgresPrefix string        `mapstructure:"postgres_prefix"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisPrefix    string        `mapstructure:"redis_prefix"`
	RedisTTL       time.Duration `mapstructure:"redis_ttl"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EventBuffer     int           `mapstructure:"event_buffer"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var defaults = map[string]any{
	"llm.provider":               ProviderGemini,
	"llm.model":                  "gemini-2.5-flash",
	"llm.embedding_model":        "text-embedding-004",
	"llm.temperature":            0.7,
	"llm.max_tokens":             2048,
	"llm.max_retries":            2,
	"llm.retry_delay":            time.Second,
	"chat.max_history":           50,
	"chat.confirm_research":      false,
	"chat.max_invalid_replies":   1,
	"rag.enabled":                true,
	"rag.chunk_size":             1000,
	"rag.chunk_overlap":          200,
	"rag.top_k":                  5,
	"rag.threshold":              0.3,
	"rag.max_file_size":          int64(50 << 20),
	"rag.upload_dir":             "uploads",
	"rag.index_dir":              "vector_store",
	"rag.open_indexes":           64,
	"research.dir":               "research_data",
	"workers.pool_size":          4,
	"workers.workflow_timeout":   6 * time.Minute,
	"workers.run_timeout":        30 * time.Minute,
	"workers.timeout_retries":    1,
	"workers.extraction_retries": 3,
	"workers.retry_delay":        time.Second,
	"store.backend":              StoreSQLite,
	"store.sqlite_path":          "chat_history.db",
	"store.postgres_prefix":      "researchchat_",
	"store.redis_addr":           "localhost:6379",
	"store.redis_prefix":         "researchchat:",
	"server.addr":                ":8000",
	"server.allowed_origins":     []string{"*"},
	"server.shutdown_timeout":    10 * time.Second,
	"server.event_buffer":        256,
	"log.level":                  "info",
}

// env maps the environment variable names used by deployments to keys.
var env = map[string]string{
	"llm.provider":               "LLM_PROVIDER",
	"llm.model":                  "GEMINI_MODEL",
	"llm.embedding_model":        "EMBEDDING_MODEL",
	"llm.temperature":            "TEMPERATURE",
	"llm.max_tokens":             "MAX_TOKENS",
	"llm.google_api_key":         "GOOGLE_API_KEY",
	"llm.openai_api_key":         "OPENAI_API_KEY",
	"llm.openai_base_url":        "OPENAI_API_BASE",
	"llm.max_retries":            "LLM_MAX_RETRIES",
	"chat.max_history":           "MAX_HISTORY",
	"chat.confirm_research":      "CONFIRM_RESEARCH",
	"rag.enabled":                "RAG_ENABLED",
	"rag.chunk_size":             "CHUNK_SIZE",
	"rag.chunk_overlap":          "CHUNK_OVERLAP",
	"rag.top_k":                  "RAG_TOP_K",
	"rag.threshold":              "SIMILARITY_THRESHOLD",
	"rag.max_file_size":          "MAX_PDF_SIZE",
	"rag.upload_dir":             "UPLOAD_DIR",
	"rag.index_dir":              "VECTOR_STORE_DIR",
	"research.dir":               "RESEARCH_DIR",
	"research.serper_api_key":    "SERPER_API_KEY",
	"research.brave_api_key":     "BRAVE_API_KEY",
	"research.youtube_api_key":   "YOUTUBE_API_KEY",
	"workers.pool_size":          "WORKER_POOL_SIZE",
	"workers.workflow_timeout":   "WORKFLOW_TIMEOUT",
	"workers.run_timeout":        "RUN_TIMEOUT",
	"workers.timeout_retries":    "TIMEOUT_RETRIES",
	"workers.extraction_retries": "EXTRACTION_RETRIES",
	"workers.retry_delay":        "EXTRACTION_RETRY_DELAY",
	"store.backend":              "STORE_BACKEND",
	"store.sqlite_path":          "SQLITE_PATH",
	"store.postgres_url":         "DATABASE_URL",
	"store.redis_addr":           "REDIS_ADDR",
	"store.redis_password":       "REDIS_PASSWORD",
	"store.redis_db":             "REDIS_DB",
	"server.addr":                "ADDR",
	"log.level":                  "LOG_LEVEL",
}

// Load reads the configuration. path may be empty; a .env file in the
// working directory is loaded when present and never overrides variables
// already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for k, name := range env {
		if err := v.BindEnv(k, name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GoogleAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_API_KEY is required for the gemini provider"))
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.RAG.ChunkOverlap, c.RAG.ChunkSize))
	}
	if c.RAG.Threshold < 0 || c.RAG.Threshold > 1 {
		errs = append(errs, fmt.Errorf("similarity threshold %v out of [0, 1]", c.RAG.Threshold))
	}
	if c.Workers.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("worker pool size %d must be positive", c.Workers.PoolSize))
	}
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite, StoreRedis:
	case StorePostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}
