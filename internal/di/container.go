// Package di assembles the engine: configuration in, a running
// container of services out. Wire provider sets declare the dependency
// graph; wire_gen.go carries the generated construction order.
package di

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/evaluation"
	"ragcore/internal/index"
	"ragcore/internal/janitor"
	"ragcore/internal/llm"
	"ragcore/internal/memory"
	"ragcore/internal/observability"
	"ragcore/internal/repository/sqlite"
	"ragcore/internal/service"
)

// Container holds every long-lived component. The caller owns it and
// must Shutdown it.
type Container struct {
	Cfg       *config.Config
	Logger    *zap.Logger
	Collector *observability.Collector
	Tracer    *observability.TracerProvider

	DB      *sqlite.DB
	Vector  index.VectorIndex
	Keyword index.KeywordIndex
	Graph   index.GraphIndex

	Client   llm.Client
	Embedder llm.Embedder

	Memories *memory.Service
	Query    *service.QueryService
	Indexer  *service.Indexer
	Harness  *evaluation.Harness
	Janitor  *janitor.Janitor

	Handler http.Handler
}

// Shutdown stops scheduled work, waits for detached writes, then closes
// storage and telemetry in reverse dependency order.
func (c *Container) Shutdown(ctx context.Context) {
	c.Janitor.Stop()
	c.Query.Drain()

	if err := c.Keyword.Close(); err != nil {
		c.Logger.Warn("keyword index close failed", zap.Error(err))
	}
	if err := c.Vector.Close(); err != nil {
		c.Logger.Warn("vector index close failed", zap.Error(err))
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Warn("database close failed", zap.Error(err))
	}
	if c.Tracer != nil {
		if err := c.Tracer.Shutdown(ctx); err != nil {
			c.Logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = c.Logger.Sync()
}
