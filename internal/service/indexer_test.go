package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/llm"
	"ragcore/internal/repository/mocks"
)

type failEmbedder struct{}

func (failEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder offline")
}
func (failEmbedder) Dimensions() int { return 8 }

type indexerRig struct {
	ix   *Indexer
	kbs  *mocks.KBStore
	docs *mocks.DocumentStore
	mems *mocks.MemoryStore
	vec  *fakeVector
	kw   *fakeKeyword
	gr   *fakeGraph
}

func newIndexerRig(t *testing.T) *indexerRig {
	t.Helper()
	rig := &indexerRig{
		kbs:  mocks.NewKBStore(),
		docs: mocks.NewDocumentStore(),
		mems: mocks.NewMemoryStore(),
		vec:  &fakeVector{},
		kw:   &fakeKeyword{healthy: true},
		gr:   &fakeGraph{healthy: true},
	}
	require.NoError(t, rig.kbs.Create(context.Background(), &domain.KnowledgeBase{
		ID:                  "kb-1",
		OwnerID:             "user-1",
		Name:                "notes",
		EmbeddingDimensions: 8,
		CreatedAt:           time.Now().UTC(),
	}))
	rig.ix = NewIndexer(rig.kbs, rig.docs, rig.mems, rig.vec, rig.kw, rig.gr,
		llm.NewMockEmbedder(8), config.Ingestion{ChunkSize: 40, ChunkOverlap: 10}, zap.NewNop())
	return rig
}

func TestIngestFansOutToAllPlanes(t *testing.T) {
	rig := newIndexerRig(t)
	chunks := []string{
		"The fabric fuses dense and sparse rankings.",
		"Reciprocal rank fusion rewards agreement.",
		"Weak cosine matches drop before fusion.",
	}

	doc, err := rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{
		ID:      "doc-1",
		Name:    "fusion.md",
		Source:  "upload",
		Content: "full text",
		Chunks:  chunks,
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, 3, doc.ChunkCount)

	// Dense plane: one record per chunk, position-stable ids, in order.
	require.Len(t, rig.vec.upserted, 3)
	for i, rec := range rig.vec.upserted {
		assert.Equal(t, fmt.Sprintf("doc-1:%04d", i), rec.ID)
		assert.Equal(t, chunks[i], rec.Content)
		assert.Equal(t, "fusion.md", rec.DocumentName)
		assert.Equal(t, domain.ContentTypeDocument, rec.Type)
		assert.Len(t, rec.Vector, 8)
	}

	// Sparse plane mirrors the chunk ids; the graph sees the whole document.
	require.Len(t, rig.kw.indexed, 3)
	assert.Equal(t, "doc-1:0000", rig.kw.indexed[0].ID)
	require.Len(t, rig.gr.indexed, 1)
	assert.Equal(t, "doc-1", rig.gr.indexed[0].ID)

	// Stale entries are cleared before the new ones land.
	assert.Equal(t, []string{"doc-1"}, rig.vec.deletedDocs)
	assert.Equal(t, []string{"doc-1"}, rig.kw.deletedDocs)

	stored, err := rig.docs.Get(context.Background(), "kb-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "fusion.md", stored.Name)
	assert.Equal(t, "upload", stored.Source)
}

func TestIngestSplitsContentWhenNoChunks(t *testing.T) {
	rig := newIndexerRig(t)

	doc, err := rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{
		Name:    "long.md",
		Content: "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Len(t, rig.vec.upserted, doc.ChunkCount)

	// Adjacent chunks share trailing words, so context survives the cut.
	first, second := rig.vec.upserted[0].Content, rig.vec.upserted[1].Content
	words := lastWord(first)
	assert.Contains(t, second, words)
}

func lastWord(s string) string {
	fields := []byte(s)
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i] == ' ' {
			return s[i+1:]
		}
	}
	return s
}

func TestIngestRejectsBadRequests(t *testing.T) {
	rig := newIndexerRig(t)

	_, err := rig.ix.Ingest(context.Background(), "kb-missing", IngestRequest{Name: "a.md", Content: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{Name: "  ", Content: "x"})
	require.Error(t, err)
	assert.Equal(t, "DOC_NO_NAME", apperrors.CodeOf(err))

	_, err = rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{Name: "empty.md", Content: "   "})
	require.Error(t, err)
	assert.Equal(t, "DOC_EMPTY", apperrors.CodeOf(err))
}

func TestIngestVectorFailureIsFatal(t *testing.T) {
	rig := newIndexerRig(t)
	rig.vec.upsertErr = errors.New("disk full")

	_, err := rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{
		ID: "doc-1", Name: "a.md", Chunks: []string{"some content"},
	})
	require.Error(t, err)

	// The dense plane is the primary one; without it the document must
	// not appear in the catalog.
	_, err = rig.docs.Get(context.Background(), "kb-1", "doc-1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIngestKeywordFailureDegrades(t *testing.T) {
	rig := newIndexerRig(t)
	rig.kw.indexErr = errors.New("index locked")

	doc, err := rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{
		ID: "doc-1", Name: "a.md", Chunks: []string{"some content"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Len(t, rig.vec.upserted, 1)
	assert.Empty(t, rig.kw.indexed)

	_, err = rig.docs.Get(context.Background(), "kb-1", "doc-1")
	assert.NoError(t, err)
}

func TestIngestEmbedderFailure(t *testing.T) {
	rig := newIndexerRig(t)
	rig.ix = NewIndexer(rig.kbs, rig.docs, rig.mems, rig.vec, rig.kw, rig.gr,
		failEmbedder{}, config.Ingestion{ChunkSize: 40, ChunkOverlap: 10}, zap.NewNop())

	_, err := rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{
		ID: "doc-1", Name: "a.md", Chunks: []string{"some content"},
	})
	require.Error(t, err)
	assert.Empty(t, rig.vec.upserted)
}

func TestDeleteDocumentRemovesAllPlanes(t *testing.T) {
	rig := newIndexerRig(t)
	_, err := rig.ix.Ingest(context.Background(), "kb-1", IngestRequest{
		ID: "doc-1", Name: "a.md", Chunks: []string{"some content"},
	})
	require.NoError(t, err)

	require.NoError(t, rig.ix.DeleteDocument(context.Background(), "kb-1", "doc-1"))

	// One cleanup during ingest, one for the delete itself.
	assert.Equal(t, []string{"doc-1", "doc-1"}, rig.vec.deletedDocs)
	assert.Equal(t, []string{"doc-1", "doc-1"}, rig.kw.deletedDocs)
	_, err = rig.docs.Get(context.Background(), "kb-1", "doc-1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteKBCleansEveryPlane(t *testing.T) {
	rig := newIndexerRig(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := rig.ix.Ingest(ctx, "kb-1", IngestRequest{
			ID:     fmt.Sprintf("doc-%d", i+1),
			Name:   fmt.Sprintf("doc-%d.md", i+1),
			Chunks: []string{"some content here"},
		})
		require.NoError(t, err)
	}
	require.NoError(t, rig.mems.Upsert(ctx, domain.NewMemory("kb-1", "user-1", "", "prefers diagrams", domain.MemoryKindUserPreference, 0.8)))

	require.NoError(t, rig.ix.DeleteKB(ctx, "kb-1"))

	_, err := rig.kbs.Get(ctx, "kb-1")
	assert.True(t, apperrors.IsNotFound(err))
	docs, err := rig.docs.List(ctx, "kb-1")
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, []string{"kb-1"}, rig.vec.dropped)
	assert.Contains(t, rig.kw.deletedDocs, "doc-1")
	assert.Contains(t, rig.kw.deletedDocs, "doc-2")
	memories, err := rig.mems.ListByKB(ctx, "kb-1", 100)
	require.NoError(t, err)
	assert.Empty(t, memories)
}

func TestCreateKBUsesEmbedderDimensions(t *testing.T) {
	rig := newIndexerRig(t)

	kb, err := rig.ix.CreateKB(context.Background(), "user-1", "research", "papers and notes")
	require.NoError(t, err)
	assert.NotEmpty(t, kb.ID)
	assert.Equal(t, 8, kb.EmbeddingDimensions)

	stored, err := rig.kbs.Get(context.Background(), kb.ID)
	require.NoError(t, err)
	assert.Equal(t, "research", stored.Name)

	_, err = rig.ix.CreateKB(context.Background(), "user-1", "  ", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSplitTextOverlap(t *testing.T) {
	chunks := SplitText("one two three four five six seven eight nine ten", 20, 8)
	assert.Equal(t, []string{
		"one two three four",
		"four five six seven",
		"seven eight nine ten",
	}, chunks)
}

func TestSplitTextEdgeCases(t *testing.T) {
	assert.Nil(t, SplitText("", 800, 100))
	assert.Nil(t, SplitText("   \n\t  ", 800, 100))
	assert.Equal(t, []string{"hello world"}, SplitText("hello world", 800, 100))

	// Overlap at least the chunk size would never advance; it is ignored.
	chunks := SplitText("alpha beta gamma delta epsilon", 12, 40)
	assert.Equal(t, []string{"alpha beta", "gamma delta", "epsilon"}, chunks)
}
