//go:build !wireinject
// +build !wireinject

package di

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"ragcore/internal/agent"
	"ragcore/internal/config"
	"ragcore/internal/contextbuilder"
	"ragcore/internal/evaluation"
	"ragcore/internal/index"
	"ragcore/internal/index/graphidx"
	"ragcore/internal/index/keyword"
	"ragcore/internal/index/vector"
	"ragcore/internal/intent"
	httpapi "ragcore/internal/interfaces/http"
	"ragcore/internal/llm"
	"ragcore/internal/memory"
	"ragcore/internal/observability"
	"ragcore/internal/repository"
	"ragcore/internal/repository/sqlite"
	"ragcore/internal/retrieval"
	"ragcore/internal/service"
	"ragcore/internal/tools"
)

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Debug:      cfg.Environment == config.Development,
	})
}

func provideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideTracer(cfg *config.Config) (*observability.TracerProvider, error) {
	return observability.InitTracing(context.Background(), observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: string(cfg.Environment),
		SampleRate:  cfg.Tracing.SampleRate,
	})
}

func provideDB(cfg *config.Config) (*sqlite.DB, error) {
	if dir := filepath.Dir(cfg.Storage.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return sqlite.Open(cfg.Storage.DatabasePath)
}

// provideLLMClient builds the OpenAI-compatible provider. The one client
// serves both chat and embeddings.
func provideLLMClient(cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *llm.OpenAIClient {
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		MaxConcurrent:  cfg.LLM.MaxConcurrent,
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, collector, logger)
}

func provideVectorIndex(cfg *config.Config, logger *zap.Logger) index.VectorIndex {
	return vector.NewStore(cfg.Storage.VectorDataDir, cfg.Embedding.Dimensions, logger)
}

func provideKeywordIndex(cfg *config.Config, logger *zap.Logger) (index.KeywordIndex, error) {
	return keyword.New(cfg.Storage.KeywordBackend, cfg.Storage.KeywordDataDir, cfg.Storage.ElasticsearchAddrs, logger)
}

func provideGraphIndex(cfg *config.Config, logger *zap.Logger) index.GraphIndex {
	return graphidx.New(cfg.Storage.GraphIndexURL, logger)
}

func provideFabric(
	vec index.VectorIndex,
	kw index.KeywordIndex,
	gr index.GraphIndex,
	embedder llm.Embedder,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *retrieval.Fabric {
	return retrieval.NewFabric(vec, kw, gr, embedder, cfg.Retrieval, logger, collector)
}

func provideMemoryService(
	mems repository.Memories,
	vec index.VectorIndex,
	client *llm.OpenAIClient,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *memory.Service {
	return memory.NewService(mems, vec, client, memory.NewExtractor(client, logger), cfg.Memory, logger, collector)
}

func provideContextEngine(
	memSvc *memory.Service,
	fabric *retrieval.Fabric,
	client llm.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *contextbuilder.Engine {
	return contextbuilder.NewEngine(memSvc, fabric, contextbuilder.NewSummarizer(client, logger), cfg.Context, logger)
}

func provideToolRegistry(
	fabric *retrieval.Fabric,
	docs repository.Documents,
	client llm.Client,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *tools.Registry {
	return tools.NewDefaultRegistry(tools.Deps{
		Fabric:  fabric,
		Docs:    docs,
		Client:  client,
		Cfg:     cfg,
		Logger:  logger,
		Metrics: collector,
	})
}

func provideAgentController(
	client llm.Client,
	registry *tools.Registry,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *agent.Controller {
	loop := agent.New(client, registry, cfg.Agent, logger, collector)
	return agent.NewController(loop, agent.NewJudge(client, logger), cfg.Agent, logger, collector)
}

func provideIntentAnalyzer(client llm.Client, logger *zap.Logger) *intent.Analyzer {
	return intent.NewAnalyzer(client, logger)
}

// provideRouter hides the metrics endpoint when metrics are disabled;
// the collector itself always exists because the pipeline records into
// it unconditionally.
func provideRouter(
	query *service.QueryService,
	indexer *service.Indexer,
	harness *evaluation.Harness,
	collector *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	metrics := collector
	if !cfg.Metrics.Enabled {
		metrics = nil
	}
	return httpapi.NewRouter(httpapi.Deps{
		Query:   query,
		Indexer: indexer,
		Harness: harness,
		Metrics: metrics,
		Cfg:     cfg,
		Logger:  logger,
	})
}
