// Package keyword provides the inverted-index plane. Two backends exist:
// an embedded bleve index per knowledge base and a remote Elasticsearch
// cluster. The factory in keyword.go selects one from configuration.
package keyword

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
)

const (
	fieldContent = "content"
	fieldDocID   = "doc_id"
	fieldDocName = "doc_name"
	fieldType    = "type"
)

type bleveDoc struct {
	Content string `json:"content"`
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	Type    string `json:"type"`
}

// BleveIndex implements index.KeywordIndex with one bleve index per KB.
type BleveIndex struct {
	baseDir string
	logger  *zap.Logger

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

// NewBleveIndex creates the embedded keyword backend rooted at baseDir.
func NewBleveIndex(baseDir string, logger *zap.Logger) *BleveIndex {
	return &BleveIndex{
		baseDir: baseDir,
		logger:  logger,
		indexes: make(map[string]bleve.Index),
	}
}

func (b *BleveIndex) open(kbID string) (bleve.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[kbID]; ok {
		return idx, nil
	}

	path := filepath.Join(b.baseDir, kbID+".bleve")
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, apperrors.Fatal("KEYWORD_OPEN", "open keyword index", err).WithDetails("kb=%s", kbID)
	}

	b.indexes[kbID] = idx
	b.logger.Debug("Opened keyword index", zap.String("kbId", kbID), zap.String("path", path))
	return idx, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	docMapping := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Store = true
	docMapping.AddFieldMappingsAt(fieldContent, content)

	// Identifiers must match exactly, never analyzed.
	docID := bleve.NewTextFieldMapping()
	docID.Analyzer = keyword.Name
	docID.Store = true
	docMapping.AddFieldMappingsAt(fieldDocID, docID)

	docName := bleve.NewTextFieldMapping()
	docName.Store = true
	docMapping.AddFieldMappingsAt(fieldDocName, docName)

	typeField := bleve.NewTextFieldMapping()
	typeField.Analyzer = keyword.Name
	typeField.Store = true
	docMapping.AddFieldMappingsAt(fieldType, typeField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	return m
}

// Index writes docs in one batch.
func (b *BleveIndex) Index(ctx context.Context, kbID string, docs []index.KeywordDoc) error {
	if len(docs) == 0 {
		return nil
	}
	idx, err := b.open(kbID)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return apperrors.Transient("KEYWORD_CANCELLED", "indexing cancelled", err)
		}
		doc := bleveDoc{Content: d.Content, DocID: d.DocumentID, DocName: d.DocumentName, Type: string(d.Type)}
		if err := batch.Index(d.ID, doc); err != nil {
			return apperrors.Transient("KEYWORD_BATCH", "add to batch failed", err).WithDetails("id=%s", d.ID)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return apperrors.Transient("KEYWORD_INDEX", "keyword indexing failed", err).WithOp("keyword.Index")
	}
	return nil
}

// Delete removes every chunk of one document.
func (b *BleveIndex) Delete(ctx context.Context, kbID, documentID string) error {
	idx, err := b.open(kbID)
	if err != nil {
		return err
	}

	q := bleve.NewTermQuery(documentID)
	q.SetField(fieldDocID)
	req := bleve.NewSearchRequestOptions(q, 1000, 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return apperrors.Transient("KEYWORD_DELETE", "lookup chunks for delete failed", err)
	}

	batch := idx.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := idx.Batch(batch); err != nil {
		return apperrors.Transient("KEYWORD_DELETE", "keyword delete failed", err).
			WithDetails("doc=%s", documentID)
	}
	return nil
}

// Search returns rank-ordered matches for query.
func (b *BleveIndex) Search(ctx context.Context, kbID, query string, limit int) ([]index.KeywordHit, error) {
	idx, err := b.open(kbID)
	if err != nil {
		return nil, err
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(fieldContent)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldContent, fieldDocID, fieldDocName}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, apperrors.Transient("KEYWORD_SEARCH", "keyword search failed", err).WithOp("keyword.Search")
	}

	hits := make([]index.KeywordHit, 0, len(res.Hits))
	for rank, hit := range res.Hits {
		hits = append(hits, index.KeywordHit{
			ID:           hit.ID,
			DocumentID:   fieldString(hit.Fields, fieldDocID),
			DocumentName: fieldString(hit.Fields, fieldDocName),
			Content:      fieldString(hit.Fields, fieldContent),
			Rank:         rank,
		})
	}
	return hits, nil
}

// Healthy always holds for an embedded index.
func (b *BleveIndex) Healthy(context.Context) bool { return true }

// Close closes every open index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for kbID, idx := range b.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close keyword index %s: %w", kbID, err)
		}
		delete(b.indexes, kbID)
	}
	return firstErr
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
