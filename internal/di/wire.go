//go:build wireinject
// +build wireinject

package di

import (
	"net/http"

	"github.com/google/wire"
	"go.uber.org/zap"

	"ragcore/internal/agent"
	"ragcore/internal/config"
	"ragcore/internal/contextbuilder"
	"ragcore/internal/evaluation"
	"ragcore/internal/index"
	"ragcore/internal/intent"
	"ragcore/internal/llm"
	"ragcore/internal/memory"
	"ragcore/internal/observability"
	"ragcore/internal/repository"
	"ragcore/internal/repository/sqlite"
	"ragcore/internal/retrieval"
	"ragcore/internal/service"
	"ragcore/internal/tools"
)

// Provider declarations for Wire. The implementations live in
// providers.go, which is excluded during generation.

func provideLogger(cfg *config.Config) (*zap.Logger, error)        { panic("wire") }
func provideCollector(cfg *config.Config) *observability.Collector { panic("wire") }
func provideTracer(cfg *config.Config) (*observability.TracerProvider, error) {
	panic("wire")
}
func provideDB(cfg *config.Config) (*sqlite.DB, error) { panic("wire") }

func provideLLMClient(cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *llm.OpenAIClient {
	panic("wire")
}

func provideVectorIndex(cfg *config.Config, logger *zap.Logger) index.VectorIndex { panic("wire") }
func provideKeywordIndex(cfg *config.Config, logger *zap.Logger) (index.KeywordIndex, error) {
	panic("wire")
}
func provideGraphIndex(cfg *config.Config, logger *zap.Logger) index.GraphIndex { panic("wire") }

func provideFabric(
	vec index.VectorIndex,
	kw index.KeywordIndex,
	gr index.GraphIndex,
	embedder llm.Embedder,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *retrieval.Fabric {
	panic("wire")
}

func provideMemoryService(
	mems repository.Memories,
	vec index.VectorIndex,
	client *llm.OpenAIClient,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *memory.Service {
	panic("wire")
}

func provideContextEngine(
	memSvc *memory.Service,
	fabric *retrieval.Fabric,
	client llm.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *contextbuilder.Engine {
	panic("wire")
}

func provideToolRegistry(
	fabric *retrieval.Fabric,
	docs repository.Documents,
	client llm.Client,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *tools.Registry {
	panic("wire")
}

func provideAgentController(
	client llm.Client,
	registry *tools.Registry,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) *agent.Controller {
	panic("wire")
}

func provideIntentAnalyzer(client llm.Client, logger *zap.Logger) *intent.Analyzer { panic("wire") }

func provideRouter(
	query *service.QueryService,
	indexer *service.Indexer,
	harness *evaluation.Harness,
	collector *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	panic("wire")
}

// InitializeContainer assembles a fully wired engine.
func InitializeContainer(cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
