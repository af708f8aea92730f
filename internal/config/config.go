// Package config provides layered configuration for the query engine:
// compiled defaults, optional YAML/JSON files, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// ============================================================================
// CONFIGURATION SECTIONS
// ============================================================================

// Config holds all engine configuration.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment"`

	Server     Server     `yaml:"server" json:"server"`
	Storage    Storage    `yaml:"storage" json:"storage"`
	LLM        LLM        `yaml:"llm" json:"llm"`
	Embedding  Embedding  `yaml:"embedding" json:"embedding"`
	Retrieval  Retrieval  `yaml:"retrieval" json:"retrieval"`
	Memory     Memory     `yaml:"memory" json:"memory"`
	Context    Context    `yaml:"context" json:"context"`
	Agent      Agent      `yaml:"agent" json:"agent"`
	Tools      Tools      `yaml:"tools" json:"tools"`
	Web        Web        `yaml:"web" json:"web"`
	Evaluation Evaluation `yaml:"evaluation" json:"evaluation"`
	Ingestion  Ingestion  `yaml:"ingestion" json:"ingestion"`
	Logging    Logging    `yaml:"logging" json:"logging"`
	Metrics    Metrics    `yaml:"metrics" json:"metrics"`
	Tracing    Tracing    `yaml:"tracing" json:"tracing"`
	CORS       CORS       `yaml:"cors" json:"cors"`

	// Timezone is used by the datetime tool and for localized timestamps.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`

	// LoadedFrom records the sources that contributed, in order.
	LoadedFrom []string `yaml:"-" json:"-"`
}

// Server configures the HTTP interface.
type Server struct {
	Host              string        `yaml:"host" json:"host"`
	Port              int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" json:"heartbeatInterval"`
}

// Storage configures the persistence backends.
type Storage struct {
	// DatabasePath is the SQLite file holding relational state.
	DatabasePath string `yaml:"databasePath" json:"databasePath" validate:"required"`
	// VectorDataDir holds one vector index directory per knowledge base.
	VectorDataDir string `yaml:"vectorDataDir" json:"vectorDataDir" validate:"required"`
	// KeywordBackend selects the keyword index implementation.
	KeywordBackend string `yaml:"keywordBackend" json:"keywordBackend" validate:"oneof=bleve elasticsearch none"`
	// KeywordDataDir holds bleve indexes when the bleve backend is active.
	KeywordDataDir string `yaml:"keywordDataDir" json:"keywordDataDir"`
	// ElasticsearchAddrs lists cluster addresses for the elasticsearch backend.
	ElasticsearchAddrs []string `yaml:"elasticsearchAddrs" json:"elasticsearchAddrs"`
	// GraphIndexURL points at the graph index service. Empty disables graph mode.
	GraphIndexURL string `yaml:"graphIndexUrl" json:"graphIndexUrl"`
}

// LLM configures the chat/completion provider.
type LLM struct {
	BaseURL        string        `yaml:"baseUrl" json:"baseUrl"`
	Model          string        `yaml:"model" json:"model" validate:"required"`
	APIKey         string        `yaml:"apiKey" json:"apiKey"`
	Temperature    float32       `yaml:"temperature" json:"temperature"`
	MaxTokens      int           `yaml:"maxTokens" json:"maxTokens" validate:"min=1"`
	MaxConcurrent  int           `yaml:"maxConcurrent" json:"maxConcurrent" validate:"min=1"`
	RequestTimeout time.Duration `yaml:"requestTimeout" json:"requestTimeout"`
}

// Embedding configures the embedding provider.
type Embedding struct {
	Model      string `yaml:"model" json:"model" validate:"required"`
	Dimensions int    `yaml:"dimensions" json:"dimensions" validate:"min=1"`
}

// Retrieval configures the retrieval fabric.
type Retrieval struct {
	VectorTopK         int           `yaml:"vectorTopK" json:"vectorTopK" validate:"min=1"`
	KeywordLimit       int           `yaml:"keywordLimit" json:"keywordLimit" validate:"min=1"`
	MinVectorScore     float64       `yaml:"minVectorScore" json:"minVectorScore" validate:"min=0,max=1"`
	RRFK               int           `yaml:"rrfK" json:"rrfK" validate:"min=1"`
	DedupPrefixChars   int           `yaml:"dedupPrefixChars" json:"dedupPrefixChars" validate:"min=1"`
	HealthProbeTimeout time.Duration `yaml:"healthProbeTimeout" json:"healthProbeTimeout"`
	GraphTimeout       time.Duration `yaml:"graphTimeout" json:"graphTimeout"`
}

// Memory configures extraction, recall and garbage collection.
type Memory struct {
	RecallLimit       int    `yaml:"recallLimit" json:"recallLimit" validate:"min=1"`
	RecallCandidates  int    `yaml:"recallCandidates" json:"recallCandidates" validate:"min=1"`
	ExtractionEnabled bool   `yaml:"extractionEnabled" json:"extractionEnabled"`
	RetentionDays     int    `yaml:"retentionDays" json:"retentionDays" validate:"min=1"`
	JanitorSchedule   string `yaml:"janitorSchedule" json:"janitorSchedule"`
}

// Context configures the prompt context budget.
type Context struct {
	MaxTokens      int     `yaml:"maxTokens" json:"maxTokens" validate:"min=100"`
	VerbatimTurns  int     `yaml:"verbatimTurns" json:"verbatimTurns" validate:"min=0"`
	MemoryRatio    float64 `yaml:"memoryRatio" json:"memoryRatio" validate:"min=0,max=1"`
	HistoryRatio   float64 `yaml:"historyRatio" json:"historyRatio" validate:"min=0,max=1"`
	RetrievalRatio float64 `yaml:"retrievalRatio" json:"retrievalRatio" validate:"min=0,max=1"`
}

// Agent configures the ReAct loop and the quality retry controller.
type Agent struct {
	MaxSteps       int           `yaml:"maxSteps" json:"maxSteps" validate:"min=1"`
	MaxRetries     int           `yaml:"maxRetries" json:"maxRetries" validate:"min=0"`
	RetryTimeout   time.Duration `yaml:"retryTimeout" json:"retryTimeout"`
	MinAnswerChars int           `yaml:"minAnswerChars" json:"minAnswerChars" validate:"min=1"`
	HistoryWindow  int           `yaml:"historyWindow" json:"historyWindow" validate:"min=0"`
}

// Tools configures tool execution and the adaptive context manager.
type Tools struct {
	CallTimeout         time.Duration `yaml:"callTimeout" json:"callTimeout"`
	MaxInvalidCalls     int           `yaml:"maxInvalidCalls" json:"maxInvalidCalls" validate:"min=1"`
	SummarizeMaxChars   int           `yaml:"summarizeMaxChars" json:"summarizeMaxChars" validate:"min=100"`
	FetchMaxChars       int           `yaml:"fetchMaxChars" json:"fetchMaxChars" validate:"min=100"`
	AdaptiveMaxCalls    int           `yaml:"adaptiveMaxCalls" json:"adaptiveMaxCalls" validate:"min=1"`
	AdaptiveTokenBudget int           `yaml:"adaptiveTokenBudget" json:"adaptiveTokenBudget" validate:"min=1"`
}

// Web configures web search and page fetching.
type Web struct {
	SearchEndpoints []string      `yaml:"searchEndpoints" json:"searchEndpoints"`
	EndpointTimeout time.Duration `yaml:"endpointTimeout" json:"endpointTimeout"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout" json:"fetchTimeout"`
	UserAgent       string        `yaml:"userAgent" json:"userAgent"`
}

// Evaluation configures the evaluator harness.
type Evaluation struct {
	QuestionTimeout  time.Duration `yaml:"questionTimeout" json:"questionTimeout"`
	RunRetentionDays int           `yaml:"runRetentionDays" json:"runRetentionDays" validate:"min=1"`
}

// Ingestion carries chunking hints consumed by external ingestion.
type Ingestion struct {
	ChunkSize    int `yaml:"chunkSize" json:"chunkSize" validate:"min=1"`
	ChunkOverlap int `yaml:"chunkOverlap" json:"chunkOverlap" validate:"min=0"`
}

// Logging configures zap output.
type Logging struct {
	Level      string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" json:"format" validate:"oneof=json console"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb" json:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
	Path      string `yaml:"path" json:"path"`
}

// Tracing configures the OTLP trace exporter.
type Tracing struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	ServiceName string  `yaml:"serviceName" json:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate" json:"sampleRate" validate:"min=0,max=1"`
}

// CORS configures cross-origin access for the HTTP interface.
type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods" json:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders" json:"allowedHeaders"`
	MaxAge         int      `yaml:"maxAge" json:"maxAge"`
}

// ============================================================================
// DEFAULTS
// ============================================================================

// Default returns the compiled-in configuration. Every knob has a usable
// value so the engine runs without any file or environment setup.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: Server{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      300 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			HeartbeatInterval: 15 * time.Second,
		},
		Storage: Storage{
			DatabasePath:   "data/ragcore.db",
			VectorDataDir:  "data/vectors",
			KeywordBackend: "bleve",
			KeywordDataDir: "data/keyword",
		},
		LLM: LLM{
			BaseURL:        "http://localhost:11434/v1",
			Model:          "qwen2.5:14b",
			Temperature:    0.3,
			MaxTokens:      4096,
			MaxConcurrent:  4,
			RequestTimeout: 120 * time.Second,
		},
		Embedding: Embedding{
			Model:      "bge-m3",
			Dimensions: 1024,
		},
		Retrieval: Retrieval{
			VectorTopK:         5,
			KeywordLimit:       5,
			MinVectorScore:     0.3,
			RRFK:               60,
			DedupPrefixChars:   100,
			HealthProbeTimeout: 2 * time.Second,
			GraphTimeout:       60 * time.Second,
		},
		Memory: Memory{
			RecallLimit:       5,
			RecallCandidates:  20,
			ExtractionEnabled: true,
			RetentionDays:     180,
			JanitorSchedule:   "0 3 * * *",
		},
		Context: Context{
			MaxTokens:      4000,
			VerbatimTurns:  3,
			MemoryRatio:    0.15,
			HistoryRatio:   0.25,
			RetrievalRatio: 0.60,
		},
		Agent: Agent{
			MaxSteps:       10,
			MaxRetries:     3,
			RetryTimeout:   30 * time.Second,
			MinAnswerChars: 100,
			HistoryWindow:  6,
		},
		Tools: Tools{
			CallTimeout:         10 * time.Second,
			MaxInvalidCalls:     3,
			SummarizeMaxChars:   8000,
			FetchMaxChars:       3000,
			AdaptiveMaxCalls:    3,
			AdaptiveTokenBudget: 2500,
		},
		Web: Web{
			EndpointTimeout: 8 * time.Second,
			FetchTimeout:    10 * time.Second,
			UserAgent:       "Mozilla/5.0 (compatible; ragcore/1.0)",
		},
		Evaluation: Evaluation{
			QuestionTimeout:  180 * time.Second,
			RunRetentionDays: 90,
		},
		Ingestion: Ingestion{
			ChunkSize:    800,
			ChunkOverlap: 100,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "ragcore",
			Path:      "/metrics",
		},
		Tracing: Tracing{
			Enabled:     false,
			ServiceName: "ragcore",
			SampleRate:  0.1,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         86400,
		},
		Timezone: "Asia/Shanghai",
	}
}

// ============================================================================
// ENVIRONMENT OVERLAY
// ============================================================================

// applyEnv overlays environment variables, the highest-priority source.
func (c *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = Environment(strings.ToLower(v))
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getEnvInt("SERVER_PORT", 0); v > 0 {
		c.Server.Port = v
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("VECTOR_DATA_DIR"); v != "" {
		c.Storage.VectorDataDir = v
	}
	if v := os.Getenv("KEYWORD_BACKEND"); v != "" {
		c.Storage.KeywordBackend = v
	}
	if v := os.Getenv("KEYWORD_DATA_DIR"); v != "" {
		c.Storage.KeywordDataDir = v
	}
	if v := os.Getenv("ELASTICSEARCH_ADDRS"); v != "" {
		c.Storage.ElasticsearchAddrs = splitAndTrim(v)
	}
	if v := os.Getenv("GRAPH_INDEX_URL"); v != "" {
		c.Storage.GraphIndexURL = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getEnvInt("LLM_MAX_CONCURRENT", 0); v > 0 {
		c.LLM.MaxConcurrent = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		c.Embedding.Dimensions = v
	}

	if v := os.Getenv("WEB_SEARCH_ENDPOINTS"); v != "" {
		c.Web.SearchEndpoints = splitAndTrim(v)
	}
	if v := os.Getenv("DEFAULT_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := getEnvInt("CHUNK_SIZE", 0); v > 0 {
		c.Ingestion.ChunkSize = v
	}
	if v := getEnvInt("CHUNK_OVERLAP", -1); v >= 0 {
		c.Ingestion.ChunkOverlap = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("TRACING_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		c.Tracing.Enabled = true
	}
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate checks structural constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Storage.KeywordBackend == "elasticsearch" && len(c.Storage.ElasticsearchAddrs) == 0 {
		return fmt.Errorf("config validation: elasticsearch backend requires ELASTICSEARCH_ADDRS")
	}
	if c.Storage.KeywordBackend == "bleve" && c.Storage.KeywordDataDir == "" {
		return fmt.Errorf("config validation: bleve backend requires keywordDataDir")
	}
	if sum := c.Context.MemoryRatio + c.Context.HistoryRatio + c.Context.RetrievalRatio; sum > 1.0+1e-9 {
		return fmt.Errorf("config validation: context section ratios sum to %.2f, must be <= 1", sum)
	}
	if c.Environment == Production && c.LLM.APIKey == "" && !strings.Contains(c.LLM.BaseURL, "localhost") {
		return fmt.Errorf("config validation: LLM_API_KEY is required in production for remote providers")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config validation: unknown timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ============================================================================
// HELPERS
// ============================================================================

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
