package memory

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	"ragcore/internal/index"
	"ragcore/internal/llm"
	"ragcore/internal/observability"
	"ragcore/internal/repository"
)

// memoryDocName labels memory records inside the vector index.
const memoryDocName = "memory"

// Service owns the memory lifecycle. Writes are serialized per id by the
// relational store; recall is read-only plus a lossy-safe touch.
type Service struct {
	repo      repository.Memories
	vector    index.VectorIndex
	embedder  llm.Embedder
	extractor *Extractor
	cfg       config.Memory
	logger    *zap.Logger
	metrics   *observability.Collector
}

// NewService wires the store.
func NewService(
	repo repository.Memories,
	vector index.VectorIndex,
	embedder llm.Embedder,
	extractor *Extractor,
	cfg config.Memory,
	logger *zap.Logger,
	metrics *observability.Collector,
) *Service {
	return &Service{
		repo:      repo,
		vector:    vector,
		embedder:  embedder,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// ProcessExchange runs extraction for one finished exchange and persists
// whatever came out. Returns how many memories were stored.
func (s *Service) ProcessExchange(ctx context.Context, kbID, userID, sessionID, question, answer string) (int, error) {
	if !s.cfg.ExtractionEnabled {
		return 0, nil
	}
	if !ShouldExtract(question, answer) {
		s.logger.Debug("Exchange below extraction threshold", zap.String("kbId", kbID))
		return 0, nil
	}

	extracted, err := s.extractor.Extract(ctx, question, answer)
	if err != nil {
		s.metrics.MemoryOps.WithLabelValues("extract", "error").Inc()
		return 0, err
	}
	s.metrics.MemoryOps.WithLabelValues("extract", "ok").Inc()

	stored := 0
	for _, em := range extracted {
		m := domain.NewMemory(kbID, userID, sessionID, em.Content, em.Kind, em.Importance)
		if err := s.Upsert(ctx, m); err != nil {
			s.logger.Warn("Memory upsert failed",
				zap.String("kbId", kbID),
				zap.String("content", m.Content),
				zap.Error(err))
			continue
		}
		stored++
	}
	return stored, nil
}

// Upsert persists the memory and side-indexes its embedding with
// type=memory so recall shares the KB's vector space.
func (s *Service) Upsert(ctx context.Context, m *domain.Memory) error {
	if err := s.repo.Upsert(ctx, m); err != nil {
		s.metrics.MemoryOps.WithLabelValues("upsert", "error").Inc()
		return err
	}

	vec, err := s.embedder.Embed(ctx, m.Content)
	if err != nil {
		s.metrics.MemoryOps.WithLabelValues("upsert", "error").Inc()
		return err
	}
	record := index.VectorRecord{
		ID:           m.ID,
		Vector:       vec,
		Content:      m.Content,
		DocumentID:   m.ID,
		DocumentName: memoryDocName,
		Type:         domain.ContentTypeMemory,
	}
	if err := s.vector.Upsert(ctx, m.KBID, []index.VectorRecord{record}); err != nil {
		s.metrics.MemoryOps.WithLabelValues("upsert", "error").Inc()
		return err
	}

	s.metrics.MemoryOps.WithLabelValues("upsert", "ok").Inc()
	return nil
}

// Recall returns the top-k memories by similarity times freshness and
// touches each one it returns.
func (s *Service) Recall(ctx context.Context, kbID, query string, k int) ([]domain.ScoredMemory, error) {
	if k <= 0 {
		k = s.cfg.RecallLimit
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.metrics.MemoryOps.WithLabelValues("recall", "error").Inc()
		return nil, err
	}

	hits, err := s.vector.Search(ctx, kbID, index.VectorQuery{
		Vector: queryVector,
		TopK:   s.cfg.RecallCandidates,
		Type:   domain.ContentTypeMemory,
	})
	if err != nil {
		s.metrics.MemoryOps.WithLabelValues("recall", "error").Inc()
		return nil, err
	}
	if len(hits) == 0 {
		s.metrics.MemoryOps.WithLabelValues("recall", "ok").Inc()
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	rows, err := s.repo.GetBatch(ctx, ids)
	if err != nil {
		s.metrics.MemoryOps.WithLabelValues("recall", "error").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	scored := make([]domain.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		row, ok := rows[h.ID]
		if !ok {
			// The vector index lags the relational truth after a purge.
			continue
		}
		scored = append(scored, domain.ScoredMemory{
			Memory:     row,
			Similarity: h.Score,
			Score:      Weight(&row, h.Score, now),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}

	for i := range scored {
		s.Touch(ctx, scored[i].Memory.ID)
	}
	s.metrics.MemoryOps.WithLabelValues("recall", "ok").Inc()
	return scored, nil
}

// Touch bumps the access counter. Losing one under contention is
// acceptable; failing the recall over it is not.
func (s *Service) Touch(ctx context.Context, id string) {
	if err := s.repo.Touch(ctx, id, time.Now().UTC()); err != nil {
		s.logger.Warn("Memory touch failed", zap.String("memoryId", id), zap.Error(err))
		s.metrics.MemoryOps.WithLabelValues("touch", "error").Inc()
		return
	}
	s.metrics.MemoryOps.WithLabelValues("touch", "ok").Inc()
}

// Purge removes memories idle past the retention window, in both the
// relational store and the vector side index. Returns how many went.
func (s *Service) Purge(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = s.cfg.RetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	removed, err := s.repo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.metrics.MemoryOps.WithLabelValues("purge", "error").Inc()
		return 0, err
	}

	byKB := make(map[string][]string)
	for _, m := range removed {
		byKB[m.KBID] = append(byKB[m.KBID], m.ID)
	}
	for kbID, ids := range byKB {
		if err := s.vector.Delete(ctx, kbID, ids); err != nil {
			s.logger.Warn("Purged memories still present in vector index",
				zap.String("kbId", kbID),
				zap.Int("count", len(ids)),
				zap.Error(err))
		}
	}

	s.metrics.MemoryOps.WithLabelValues("purge", "ok").Inc()
	return len(removed), nil
}
