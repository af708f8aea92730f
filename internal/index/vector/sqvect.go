// Package vector adapts the embedded sqvect store to the engine's vector
// index contract. Each knowledge base owns one SQLite file under the data
// directory, so dropping a KB is a directory removal.
package vector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/liliang-cn/sqvect/v2/pkg/core"
	"github.com/liliang-cn/sqvect/v2/pkg/sqvect"
	"go.uber.org/zap"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
)

const (
	metaType    = "type"
	metaDocName = "doc_name"
)

// Store implements index.VectorIndex over per-KB sqvect databases.
type Store struct {
	baseDir    string
	dimensions int
	logger     *zap.Logger

	mu  sync.Mutex
	dbs map[string]*sqvect.DB
}

// NewStore creates the adapter rooted at baseDir.
func NewStore(baseDir string, dimensions int, logger *zap.Logger) *Store {
	return &Store{
		baseDir:    baseDir,
		dimensions: dimensions,
		logger:     logger,
		dbs:        make(map[string]*sqvect.DB),
	}
}

// open returns the KB's database, opening it on first use.
func (s *Store) open(kbID string) (*sqvect.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[kbID]; ok {
		return db, nil
	}

	dir := filepath.Join(s.baseDir, kbID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Fatal("VECTOR_DIR", "create vector directory", err)
	}

	cfg := sqvect.DefaultConfig(filepath.Join(dir, "vectors.db"))
	cfg.Dimensions = s.dimensions
	db, err := sqvect.Open(cfg)
	if err != nil {
		return nil, apperrors.Fatal("VECTOR_OPEN", "open vector index", err).WithDetails("kb=%s", kbID)
	}

	s.dbs[kbID] = db
	s.logger.Debug("Opened vector index", zap.String("kbId", kbID), zap.String("dir", dir))
	return db, nil
}

// Upsert writes records in one batch.
func (s *Store) Upsert(ctx context.Context, kbID string, records []index.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	db, err := s.open(kbID)
	if err != nil {
		return err
	}

	batch := make([]*core.Embedding, 0, len(records))
	for _, r := range records {
		meta := map[string]string{
			metaType:    string(r.Type),
			metaDocName: r.DocumentName,
		}
		for k, v := range r.Metadata {
			meta[k] = v
		}
		batch = append(batch, &core.Embedding{
			ID:       r.ID,
			Vector:   r.Vector,
			Content:  r.Content,
			DocID:    r.DocumentID,
			Metadata: meta,
		})
	}
	if err := db.Vector().UpsertBatch(ctx, batch); err != nil {
		return apperrors.Transient("VECTOR_UPSERT", "vector upsert failed", err).WithOp("vector.Upsert")
	}
	return nil
}

// Delete removes individual records.
func (s *Store) Delete(ctx context.Context, kbID string, ids []string) error {
	db, err := s.open(kbID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := db.Vector().Delete(ctx, id); err != nil {
			return apperrors.Transient("VECTOR_DELETE", "vector delete failed", err).WithDetails("id=%s", id)
		}
	}
	return nil
}

// DeleteByDocument removes every chunk of one document.
func (s *Store) DeleteByDocument(ctx context.Context, kbID, documentID string) error {
	db, err := s.open(kbID)
	if err != nil {
		return err
	}
	if err := db.Vector().DeleteByDocID(ctx, documentID); err != nil {
		return apperrors.Transient("VECTOR_DELETE_DOC", "vector delete by document failed", err).
			WithDetails("doc=%s", documentID)
	}
	return nil
}

// Search returns the nearest records with cosine similarity scores.
func (s *Store) Search(ctx context.Context, kbID string, query index.VectorQuery) ([]index.VectorHit, error) {
	db, err := s.open(kbID)
	if err != nil {
		return nil, err
	}

	opts := core.SearchOptions{TopK: query.TopK}
	if query.Type != "" {
		opts.Filter = map[string]string{metaType: string(query.Type)}
	}
	scored, err := db.Vector().Search(ctx, query.Vector, opts)
	if err != nil {
		return nil, apperrors.Transient("VECTOR_SEARCH", "vector search failed", err).WithOp("vector.Search")
	}

	hits := make([]index.VectorHit, 0, len(scored))
	for _, sc := range scored {
		hit := index.VectorHit{
			ID:         sc.ID,
			Content:    sc.Content,
			DocumentID: sc.DocID,
			Score:      sc.Score,
			Type:       domain.ContentTypeDocument,
			Metadata:   sc.Metadata,
		}
		if sc.Metadata != nil {
			if t, ok := sc.Metadata[metaType]; ok && t != "" {
				hit.Type = domain.ContentType(t)
			}
			hit.DocumentName = sc.Metadata[metaDocName]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DropKB closes and removes the KB's index directory.
func (s *Store) DropKB(_ context.Context, kbID string) error {
	s.mu.Lock()
	if db, ok := s.dbs[kbID]; ok {
		db.Close()
		delete(s.dbs, kbID)
	}
	s.mu.Unlock()

	dir := filepath.Join(s.baseDir, kbID)
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.Fatal("VECTOR_DROP", "remove vector directory", err).WithDetails("kb=%s", kbID)
	}
	return nil
}

// Close closes every open database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for kbID, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close vector index %s: %w", kbID, err)
		}
		delete(s.dbs, kbID)
	}
	return firstErr
}
