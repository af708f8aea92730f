package di

import (
	"github.com/google/wire"

	"ragcore/internal/config"
	"ragcore/internal/evaluation"
	"ragcore/internal/janitor"
	"ragcore/internal/llm"
	"ragcore/internal/repository"
	"ragcore/internal/repository/sqlite"
	"ragcore/internal/service"
)

// ConfigSet provides logging, metrics, tracing and the config sections
// consumed as values.
var ConfigSet = wire.NewSet(
	provideLogger,
	provideCollector,
	provideTracer,
	wire.FieldsOf(new(*config.Config), "Evaluation", "Memory", "Ingestion"),
)

// StorageSet provides the relational store and its six port views.
var StorageSet = wire.NewSet(
	provideDB,
	sqlite.NewKBStore,
	sqlite.NewDocumentStore,
	sqlite.NewMemoryStore,
	sqlite.NewChatStore,
	sqlite.NewTraceStore,
	sqlite.NewEvalRunStore,
	wire.Bind(new(repository.KnowledgeBases), new(*sqlite.KBStore)),
	wire.Bind(new(repository.Documents), new(*sqlite.DocumentStore)),
	wire.Bind(new(repository.Memories), new(*sqlite.MemoryStore)),
	wire.Bind(new(repository.ChatStore), new(*sqlite.ChatStore)),
	wire.Bind(new(repository.Traces), new(*sqlite.TraceStore)),
	wire.Bind(new(repository.EvalRuns), new(*sqlite.EvalRunStore)),
)

// IndexSet provides the three retrieval planes.
var IndexSet = wire.NewSet(
	provideVectorIndex,
	provideKeywordIndex,
	provideGraphIndex,
)

// LLMSet provides the OpenAI-compatible client for chat and embeddings.
var LLMSet = wire.NewSet(
	provideLLMClient,
	wire.Bind(new(llm.Client), new(*llm.OpenAIClient)),
	wire.Bind(new(llm.Embedder), new(*llm.OpenAIClient)),
)

// PipelineSet provides the query pipeline and its supporting services.
var PipelineSet = wire.NewSet(
	provideFabric,
	provideMemoryService,
	provideContextEngine,
	provideToolRegistry,
	provideAgentController,
	provideIntentAnalyzer,
	service.NewQueryService,
	service.NewIndexer,
	evaluation.NewJudges,
	evaluation.NewHarness,
	janitor.New,
	wire.Bind(new(evaluation.Answerer), new(*service.QueryService)),
)

// InterfaceSet provides the HTTP surface.
var InterfaceSet = wire.NewSet(
	provideRouter,
)

// SuperSet combines every provider needed for a full engine.
var SuperSet = wire.NewSet(
	ConfigSet,
	StorageSet,
	IndexSet,
	LLMSet,
	PipelineSet,
	InterfaceSet,
	wire.Struct(new(Container), "*"),
)
