package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
	"ragcore/internal/llm"
	"ragcore/internal/repository"
)

// embedConcurrency bounds parallel embedding calls per ingest.
const embedConcurrency = 4

// IngestRequest is one document to index. Chunks may be supplied
// pre-split; when empty the content is split using the configured size
// and overlap hints.
type IngestRequest struct {
	ID      string
	Name    string
	Source  string
	Content string
	Chunks  []string
}

// Indexer owns the cross-index document lifecycle: relational row, dense
// vectors, inverted keyword entries and graph extraction. Re-ingesting a
// document id replaces its previous chunks in every plane.
type Indexer struct {
	kbs      repository.KnowledgeBases
	docs     repository.Documents
	memories repository.Memories
	vector   index.VectorIndex
	keyword  index.KeywordIndex
	graph    index.GraphIndex
	embedder llm.Embedder
	cfg      config.Ingestion
	logger   *zap.Logger
}

// NewIndexer wires the document lifecycle service.
func NewIndexer(
	kbs repository.KnowledgeBases,
	docs repository.Documents,
	memories repository.Memories,
	vector index.VectorIndex,
	keyword index.KeywordIndex,
	graph index.GraphIndex,
	embedder llm.Embedder,
	cfg config.Ingestion,
	logger *zap.Logger,
) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		kbs:      kbs,
		docs:     docs,
		memories: memories,
		vector:   vector,
		keyword:  keyword,
		graph:    graph,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateKB registers a knowledge base scoped to the embedder's dimension.
func (ix *Indexer) CreateKB(ctx context.Context, ownerID, name, description string) (*domain.KnowledgeBase, error) {
	kb, err := domain.NewKnowledgeBase(ownerID, name, description, ix.embedder.Dimensions())
	if err != nil {
		return nil, apperrors.Validation("KB_INVALID", err.Error())
	}
	if err := ix.kbs.Create(ctx, kb); err != nil {
		return nil, apperrors.Wrap(err, "indexer.create_kb")
	}
	return kb, nil
}

// GetKB returns one knowledge base.
func (ix *Indexer) GetKB(ctx context.Context, kbID string) (*domain.KnowledgeBase, error) {
	return ix.kbs.Get(ctx, kbID)
}

// ListKBs returns the catalog.
func (ix *Indexer) ListKBs(ctx context.Context) ([]domain.KnowledgeBase, error) {
	return ix.kbs.List(ctx)
}

// DeleteKB removes the knowledge base with its documents, vectors,
// keyword entries and memories. Index cleanup is best-effort; the catalog
// row always goes.
func (ix *Indexer) DeleteKB(ctx context.Context, kbID string) error {
	docs, err := ix.docs.List(ctx, kbID)
	if err != nil {
		return apperrors.Wrap(err, "indexer.delete_kb")
	}
	for _, doc := range docs {
		if err := ix.keyword.Delete(ctx, kbID, doc.ID); err != nil {
			ix.logger.Warn("keyword cleanup failed", zap.String("kbId", kbID), zap.String("docId", doc.ID), zap.Error(err))
		}
		if err := ix.docs.Delete(ctx, kbID, doc.ID); err != nil {
			ix.logger.Warn("document row cleanup failed", zap.String("kbId", kbID), zap.String("docId", doc.ID), zap.Error(err))
		}
	}
	if err := ix.vector.DropKB(ctx, kbID); err != nil {
		ix.logger.Warn("vector cleanup failed", zap.String("kbId", kbID), zap.Error(err))
	}
	ix.purgeMemories(ctx, kbID)
	return ix.kbs.Delete(ctx, kbID)
}

// Ingest indexes one document into all planes and persists its row. The
// chunk ids are stable per (document id, position), so ingesting the same
// document twice replaces rather than duplicates.
func (ix *Indexer) Ingest(ctx context.Context, kbID string, req IngestRequest) (*domain.Document, error) {
	if _, err := ix.kbs.Get(ctx, kbID); err != nil {
		return nil, apperrors.Wrap(err, "indexer.ingest")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.Validation("DOC_NO_NAME", "document name must not be empty")
	}

	chunks := req.Chunks
	if len(chunks) == 0 {
		chunks = SplitText(req.Content, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	}
	if len(chunks) == 0 {
		return nil, apperrors.Validation("DOC_EMPTY", "document has no indexable content")
	}

	docID := req.ID
	if docID == "" {
		docID = uuid.NewString()
	}

	// Stale chunks from a previous, longer version would otherwise
	// survive the position-stable upsert.
	if err := ix.vector.DeleteByDocument(ctx, kbID, docID); err != nil {
		ix.logger.Warn("stale vector cleanup failed", zap.String("docId", docID), zap.Error(err))
	}
	if err := ix.keyword.Delete(ctx, kbID, docID); err != nil {
		ix.logger.Warn("stale keyword cleanup failed", zap.String("docId", docID), zap.Error(err))
	}

	records, err := ix.embedChunks(ctx, docID, req.Name, chunks)
	if err != nil {
		return nil, apperrors.Wrap(err, "indexer.embed")
	}
	if err := ix.vector.Upsert(ctx, kbID, records); err != nil {
		return nil, apperrors.Wrap(err, "indexer.vector_upsert")
	}

	// The sparse and graph planes degrade: a document that cannot reach
	// them stays retrievable through the dense plane.
	keywordDocs := make([]index.KeywordDoc, len(chunks))
	for i, chunk := range chunks {
		keywordDocs[i] = index.KeywordDoc{
			ID:           domain.ChunkID(docID, i),
			DocumentID:   docID,
			DocumentName: req.Name,
			Content:      chunk,
			Type:         domain.ContentTypeDocument,
		}
	}
	if err := ix.keyword.Index(ctx, kbID, keywordDocs); err != nil {
		ix.logger.Warn("keyword indexing failed", zap.String("docId", docID), zap.Error(err))
	}
	if ix.graph != nil {
		graphDocs := []index.GraphDoc{{ID: docID, Name: req.Name, Content: req.Content}}
		if err := ix.graph.Index(ctx, kbID, graphDocs); err != nil {
			ix.logger.Warn("graph indexing failed", zap.String("docId", docID), zap.Error(err))
		}
	}

	doc := &domain.Document{
		ID:         docID,
		KBID:       kbID,
		Name:       req.Name,
		Source:     req.Source,
		Content:    req.Content,
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}
	if err := ix.docs.Create(ctx, doc); err != nil {
		return nil, apperrors.Wrap(err, "indexer.persist_doc")
	}

	ix.logger.Info("document ingested",
		zap.String("kbId", kbID),
		zap.String("docId", docID),
		zap.String("name", req.Name),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// DeleteDocument removes the document from every plane it reached.
func (ix *Indexer) DeleteDocument(ctx context.Context, kbID, docID string) error {
	if err := ix.vector.DeleteByDocument(ctx, kbID, docID); err != nil {
		ix.logger.Warn("vector delete failed", zap.String("docId", docID), zap.Error(err))
	}
	if err := ix.keyword.Delete(ctx, kbID, docID); err != nil {
		ix.logger.Warn("keyword delete failed", zap.String("docId", docID), zap.Error(err))
	}
	return ix.docs.Delete(ctx, kbID, docID)
}

// embedChunks embeds in parallel but keeps records in chunk order.
func (ix *Indexer) embedChunks(ctx context.Context, docID, docName string, chunks []string) ([]index.VectorRecord, error) {
	records := make([]index.VectorRecord, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := ix.embedder.Embed(gctx, chunk)
			if err != nil {
				return err
			}
			records[i] = index.VectorRecord{
				ID:           domain.ChunkID(docID, i),
				Vector:       vec,
				Content:      chunk,
				DocumentID:   docID,
				DocumentName: docName,
				Type:         domain.ContentTypeDocument,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// purgeMemories removes a deleted KB's memories with their side vectors.
func (ix *Indexer) purgeMemories(ctx context.Context, kbID string) {
	memories, err := ix.memories.ListByKB(ctx, kbID, 10000)
	if err != nil {
		ix.logger.Warn("memory listing failed", zap.String("kbId", kbID), zap.Error(err))
		return
	}
	for _, m := range memories {
		if err := ix.memories.Delete(ctx, m.ID); err != nil {
			ix.logger.Warn("memory cleanup failed", zap.String("memoryId", m.ID), zap.Error(err))
		}
	}
}

// SplitText cuts content into chunks of roughly size characters with the
// given character overlap, breaking only at word boundaries.
func SplitText(content string, size, overlap int) []string {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0
	for _, word := range words {
		if currentLen > 0 && currentLen+1+len(word) > size {
			chunks = append(chunks, strings.Join(current, " "))
			current, currentLen = carryOverlap(current, overlap)
		}
		current = append(current, word)
		currentLen += len(word)
		if len(current) > 1 {
			currentLen++
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// carryOverlap keeps the trailing words of the finished chunk that fit
// the character overlap, so adjacent chunks share context.
func carryOverlap(words []string, overlap int) ([]string, int) {
	if overlap <= 0 {
		return nil, 0
	}
	kept := 0
	i := len(words)
	for i > 0 && kept+len(words[i-1])+1 <= overlap {
		i--
		kept += len(words[i]) + 1
	}
	carried := append([]string(nil), words[i:]...)
	length := 0
	for j, w := range carried {
		length += len(w)
		if j > 0 {
			length++
		}
	}
	return carried, length
}
