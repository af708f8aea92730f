// Package httpapi exposes the query engine over HTTP: JSON endpoints for
// knowledge-base and document management, SSE streams for queries and
// evaluation runs, health and Prometheus metrics.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/evaluation"
	"ragcore/internal/interfaces/http/handlers"
	"ragcore/internal/observability"
	"ragcore/internal/service"
)

// Deps bundles everything the router serves.
type Deps struct {
	Query   *service.QueryService
	Indexer *service.Indexer
	Harness *evaluation.Harness
	Metrics *observability.Collector
	Cfg     *config.Config
	Logger  *zap.Logger
}

// NewRouter configures all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(RequestLogger(logger))
	router.Use(Recover(logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Cfg.CORS.AllowedOrigins,
		AllowedMethods: d.Cfg.CORS.AllowedMethods,
		AllowedHeaders: d.Cfg.CORS.AllowedHeaders,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         d.Cfg.CORS.MaxAge,
	}))

	health := handlers.NewHealthHandler(logger)
	router.Get("/health", health.Health)
	if d.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		kb := handlers.NewKBHandler(d.Indexer, logger)
		query := handlers.NewQueryHandler(d.Query, d.Cfg, logger)
		eval := handlers.NewEvaluationHandler(d.Harness, d.Cfg, logger)

		r.Route("/kbs", func(r chi.Router) {
			r.Get("/", kb.List)
			r.Post("/", kb.Create)
			r.Route("/{kbID}", func(r chi.Router) {
				r.Get("/", kb.Get)
				r.Delete("/", kb.Delete)
				r.Post("/documents", kb.IngestDocument)
				r.Delete("/documents/{docID}", kb.DeleteDocument)
				r.Post("/query", query.Stream)
				r.Get("/evaluations", eval.List)
				r.Post("/evaluations", eval.Stream)
			})
		})
		r.Get("/evaluations/{runID}", eval.Get)
	})

	return router
}
