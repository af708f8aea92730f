package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
	"ragcore/internal/llm"
	"ragcore/internal/observability"
)

// SearchOptions tunes one hybrid search. Zero values fall back to the
// fabric's configured defaults.
type SearchOptions struct {
	VectorTopK     int
	KeywordLimit   int
	UseKeyword     bool
	MinVectorScore float64
}

// GraphResult is the outcome of a graph search, including whether the
// fabric had to fall back to hybrid retrieval.
type GraphResult struct {
	Answer         string
	FellBack       bool
	FallbackReason string
	Results        []domain.RetrievalResult
}

// Fabric composes the three retrieval planes behind one search surface.
// It recovers index failures locally: a failed signal is dropped and the
// remaining ones answer.
type Fabric struct {
	vector   index.VectorIndex
	keyword  index.KeywordIndex
	graph    index.GraphIndex
	embedder llm.Embedder
	cfg      config.Retrieval
	logger   *zap.Logger
	metrics  *observability.Collector
}

// NewFabric wires the fabric. Any plane may be nil; its signal is then
// simply absent.
func NewFabric(
	vector index.VectorIndex,
	keyword index.KeywordIndex,
	graph index.GraphIndex,
	embedder llm.Embedder,
	cfg config.Retrieval,
	logger *zap.Logger,
	metrics *observability.Collector,
) *Fabric {
	return &Fabric{
		vector:   vector,
		keyword:  keyword,
		graph:    graph,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

func (f *Fabric) fill(opts SearchOptions) SearchOptions {
	if opts.VectorTopK <= 0 {
		opts.VectorTopK = f.cfg.VectorTopK
	}
	if opts.KeywordLimit <= 0 {
		opts.KeywordLimit = f.cfg.KeywordLimit
	}
	if opts.MinVectorScore <= 0 {
		opts.MinVectorScore = f.cfg.MinVectorScore
	}
	return opts
}

// HybridSearch runs the dense and sparse legs and fuses them. Signal
// failures degrade to whatever remains; both legs failing yields an empty
// result set, not an error.
func (f *Fabric) HybridSearch(ctx context.Context, kbID, query string, opts SearchOptions) ([]domain.RetrievalResult, error) {
	opts = f.fill(opts)

	vectorHits := f.vectorLeg(ctx, kbID, query, opts)
	keywordHits := f.keywordLeg(ctx, kbID, query, opts)

	// A silent keyword leg means the dense ordering passes through
	// untouched, cosine scores intact.
	if len(keywordHits) == 0 {
		return mapVectorHits(vectorHits), nil
	}
	return FuseRRF(vectorHits, keywordHits, f.cfg.RRFK, f.cfg.DedupPrefixChars), nil
}

// KeywordSearch is the direct sparse path used by the keyword_search tool.
func (f *Fabric) KeywordSearch(ctx context.Context, kbID, query string, limit int) ([]domain.RetrievalResult, error) {
	if limit <= 0 {
		limit = f.cfg.KeywordLimit
	}
	if f.keyword == nil || !f.probeKeyword(ctx) {
		return nil, apperrors.Degraded("KEYWORD_UNAVAILABLE", "keyword index unavailable", nil)
	}

	start := time.Now()
	hits, err := f.keyword.Search(ctx, kbID, query, limit)
	f.metrics.ObserveSearch("keyword", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.RetrievalResult{
			ID:           h.ID,
			Content:      h.Content,
			DocumentName: h.DocumentName,
			Score:        1.0 / float64(f.cfg.RRFK+h.Rank+1),
			ContentType:  domain.ContentTypeDocument,
			Origin:       domain.OriginKeyword,
		})
	}
	return results, nil
}

// GraphSearch forwards to the graph service and falls back to hybrid
// search on probe failure, transport error, or budget overrun.
func (f *Fabric) GraphSearch(ctx context.Context, kbID, query string, mode index.GraphMode) (*GraphResult, error) {
	if f.graph != nil && f.graph.Healthy(ctx) {
		graphCtx, cancel := context.WithTimeout(ctx, f.cfg.GraphTimeout)
		start := time.Now()
		answer, err := f.graph.Query(graphCtx, kbID, query, mode)
		cancel()
		f.metrics.ObserveSearch("graph", time.Since(start), err)

		if err == nil {
			return &GraphResult{Answer: answer}, nil
		}
		f.logger.Warn("Graph search failed, falling back to hybrid",
			zap.String("kbId", kbID),
			zap.Error(err))
		f.metrics.SignalsDropped.WithLabelValues("graph").Inc()
		return f.graphFallback(ctx, kbID, query, err.Error())
	}

	f.metrics.SignalsDropped.WithLabelValues("graph").Inc()
	return f.graphFallback(ctx, kbID, query, "graph index unhealthy or not configured")
}

func (f *Fabric) graphFallback(ctx context.Context, kbID, query, reason string) (*GraphResult, error) {
	results, err := f.HybridSearch(ctx, kbID, query, SearchOptions{UseKeyword: true})
	if err != nil {
		return nil, err
	}
	return &GraphResult{FellBack: true, FallbackReason: reason, Results: results}, nil
}

func (f *Fabric) vectorLeg(ctx context.Context, kbID, query string, opts SearchOptions) []index.VectorHit {
	if f.vector == nil || f.embedder == nil {
		return nil
	}

	queryVector, err := f.embedder.Embed(ctx, query)
	if err != nil {
		f.logger.Warn("Query embedding failed, dropping vector signal",
			zap.String("kbId", kbID),
			zap.Error(err))
		f.metrics.SignalsDropped.WithLabelValues("vector").Inc()
		return nil
	}

	start := time.Now()
	hits, err := f.vector.Search(ctx, kbID, index.VectorQuery{Vector: queryVector, TopK: opts.VectorTopK})
	f.metrics.ObserveSearch("vector", time.Since(start), err)
	if err != nil {
		f.logger.Warn("Vector search failed, dropping vector signal",
			zap.String("kbId", kbID),
			zap.Error(err))
		f.metrics.SignalsDropped.WithLabelValues("vector").Inc()
		return nil
	}

	// Weak semantic matches drop out ahead of fusion so a keyword rank
	// cannot rescue them.
	filtered := hits[:0]
	for _, h := range hits {
		if h.Score >= opts.MinVectorScore {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

func (f *Fabric) keywordLeg(ctx context.Context, kbID, query string, opts SearchOptions) []index.KeywordHit {
	if !opts.UseKeyword || f.keyword == nil {
		return nil
	}
	if !f.probeKeyword(ctx) {
		f.logger.Debug("Keyword index unhealthy, skipping sparse leg", zap.String("kbId", kbID))
		f.metrics.SignalsDropped.WithLabelValues("keyword").Inc()
		return nil
	}

	start := time.Now()
	hits, err := f.keyword.Search(ctx, kbID, query, opts.KeywordLimit)
	f.metrics.ObserveSearch("keyword", time.Since(start), err)
	if err != nil {
		f.logger.Warn("Keyword search failed, dropping sparse signal",
			zap.String("kbId", kbID),
			zap.Error(err))
		f.metrics.SignalsDropped.WithLabelValues("keyword").Inc()
		return nil
	}
	return hits
}

func (f *Fabric) probeKeyword(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.HealthProbeTimeout)
	defer cancel()
	return f.keyword.Healthy(probeCtx)
}

func mapVectorHits(hits []index.VectorHit) []domain.RetrievalResult {
	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.RetrievalResult{
			ID:           h.ID,
			Content:      h.Content,
			DocumentName: h.DocumentName,
			Score:        h.Score,
			ContentType:  h.Type,
			Origin:       domain.OriginVector,
			Metadata:     h.Metadata,
		})
	}
	return results
}
