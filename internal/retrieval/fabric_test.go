package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	"ragcore/internal/index"
	"ragcore/internal/llm"
	"ragcore/internal/observability"
)

type fakeVector struct {
	hits    []index.VectorHit
	err     error
	queries int
}

func (f *fakeVector) Upsert(context.Context, string, []index.VectorRecord) error { return nil }
func (f *fakeVector) Delete(context.Context, string, []string) error             { return nil }
func (f *fakeVector) DeleteByDocument(context.Context, string, string) error     { return nil }
func (f *fakeVector) DropKB(context.Context, string) error                       { return nil }
func (f *fakeVector) Close() error                                               { return nil }
func (f *fakeVector) Search(context.Context, string, index.VectorQuery) ([]index.VectorHit, error) {
	f.queries++
	return f.hits, f.err
}

type fakeKeyword struct {
	hits     []index.KeywordHit
	err      error
	healthy  bool
	probes   int
	searches int
}

func (f *fakeKeyword) Index(context.Context, string, []index.KeywordDoc) error { return nil }
func (f *fakeKeyword) Delete(context.Context, string, string) error            { return nil }
func (f *fakeKeyword) Close() error                                            { return nil }
func (f *fakeKeyword) Healthy(context.Context) bool {
	f.probes++
	return f.healthy
}
func (f *fakeKeyword) Search(context.Context, string, string, int) ([]index.KeywordHit, error) {
	f.searches++
	return f.hits, f.err
}

type fakeGraph struct {
	answer  string
	err     error
	healthy bool
}

func (f *fakeGraph) Index(context.Context, string, []index.GraphDoc) error { return nil }
func (f *fakeGraph) Healthy(context.Context) bool                          { return f.healthy }
func (f *fakeGraph) Query(_ context.Context, _, _ string, _ index.GraphMode) (string, error) {
	return f.answer, f.err
}
func (f *fakeGraph) Graph(context.Context, string, int) (*index.GraphSnapshot, error) {
	return &index.GraphSnapshot{}, nil
}

func testRetrievalConfig() config.Retrieval {
	return config.Retrieval{
		VectorTopK:         5,
		KeywordLimit:       5,
		MinVectorScore:     0.3,
		RRFK:               60,
		DedupPrefixChars:   100,
		HealthProbeTimeout: time.Second,
		GraphTimeout:       2 * time.Second,
	}
}

func newTestFabric(v index.VectorIndex, k index.KeywordIndex, g index.GraphIndex) *Fabric {
	return NewFabric(
		v, k, g,
		llm.NewMockEmbedder(8),
		testRetrievalConfig(),
		zap.NewNop(),
		observability.NewCollector("ragcore"),
	)
}

func TestHybridSearchFusesBothLegs(t *testing.T) {
	v := &fakeVector{hits: []index.VectorHit{
		{ID: "v1", Content: "reciprocal rank fusion merges lists", DocumentName: "fusion.md", Score: 0.9},
	}}
	k := &fakeKeyword{healthy: true, hits: []index.KeywordHit{
		{ID: "k1", Content: "reciprocal rank fusion merges lists", DocumentName: "fusion.md", Rank: 0},
	}}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "what is rrf", SearchOptions{UseKeyword: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, domain.OriginBoth, results[0].Origin)
	assert.Equal(t, 1, k.probes)
	assert.Equal(t, 1, k.searches)
}

func TestHybridSearchFiltersWeakVectorHitsBeforeFusion(t *testing.T) {
	v := &fakeVector{hits: []index.VectorHit{
		{ID: "v1", Content: "strong semantic match", Score: 0.8},
		{ID: "v2", Content: "weak semantic match", Score: 0.29},
	}}
	k := &fakeKeyword{healthy: true, hits: []index.KeywordHit{
		{ID: "k1", Content: "weak semantic match", Rank: 0},
	}}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "q", SearchOptions{UseKeyword: true})
	require.NoError(t, err)

	// The weak chunk survives only through its keyword rank; fusion must
	// not see its vector membership.
	for _, r := range results {
		if r.Content == "weak semantic match" {
			assert.Equal(t, domain.OriginKeyword, r.Origin)
		}
	}
}

func TestHybridSearchVectorOnlyKeepsCosineScores(t *testing.T) {
	v := &fakeVector{hits: []index.VectorHit{
		{ID: "v1", Content: "first", Score: 0.91},
		{ID: "v2", Content: "second", Score: 0.64},
	}}
	k := &fakeKeyword{healthy: true}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "q", SearchOptions{UseKeyword: true})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.InDelta(t, 0.91, results[0].Score, 1e-9)
	assert.InDelta(t, 0.64, results[1].Score, 1e-9)
	assert.Equal(t, domain.OriginVector, results[0].Origin)
}

func TestHybridSearchSkipsUnhealthyKeyword(t *testing.T) {
	v := &fakeVector{hits: []index.VectorHit{{ID: "v1", Content: "dense", Score: 0.8}}}
	k := &fakeKeyword{healthy: false, hits: []index.KeywordHit{{ID: "k1", Content: "sparse", Rank: 0}}}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "q", SearchOptions{UseKeyword: true})
	require.NoError(t, err)

	assert.Equal(t, 1, k.probes)
	assert.Equal(t, 0, k.searches, "unhealthy index must not be searched")
	require.Len(t, results, 1)
	assert.Equal(t, domain.OriginVector, results[0].Origin)
}

func TestHybridSearchKeywordDisabledByOption(t *testing.T) {
	v := &fakeVector{hits: []index.VectorHit{{ID: "v1", Content: "dense", Score: 0.8}}}
	k := &fakeKeyword{healthy: true, hits: []index.KeywordHit{{ID: "k1", Content: "sparse", Rank: 0}}}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "q", SearchOptions{UseKeyword: false})
	require.NoError(t, err)

	assert.Equal(t, 0, k.probes)
	assert.Equal(t, 0, k.searches)
	require.Len(t, results, 1)
}

func TestHybridSearchVectorDownDegradesToKeyword(t *testing.T) {
	v := &fakeVector{err: errors.New("index corrupted")}
	k := &fakeKeyword{healthy: true, hits: []index.KeywordHit{
		{ID: "k1", Content: "sparse one", Rank: 0},
		{ID: "k2", Content: "sparse two", Rank: 1},
	}}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "q", SearchOptions{UseKeyword: true})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.Equal(t, domain.OriginKeyword, r.Origin)
	}
	assert.Equal(t, "k1", results[0].ID)
	assert.Equal(t, "k2", results[1].ID)
}

func TestHybridSearchBothLegsDownReturnsEmptyNotError(t *testing.T) {
	v := &fakeVector{err: errors.New("vector down")}
	k := &fakeKeyword{healthy: true, err: errors.New("keyword down")}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "q", SearchOptions{UseKeyword: true})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearchZeroVectorHitsUsesKeyword(t *testing.T) {
	v := &fakeVector{}
	k := &fakeKeyword{healthy: true, hits: []index.KeywordHit{{ID: "k1", Content: "sparse", Rank: 0}}}

	f := newTestFabric(v, k, nil)
	results, err := f.HybridSearch(context.Background(), "kb-1", "q", SearchOptions{UseKeyword: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.OriginKeyword, results[0].Origin)
}

func TestKeywordSearchDirectPath(t *testing.T) {
	k := &fakeKeyword{healthy: true, hits: []index.KeywordHit{
		{ID: "k1", Content: "first", DocumentName: "a.md", Rank: 0},
		{ID: "k2", Content: "second", DocumentName: "b.md", Rank: 1},
	}}

	f := newTestFabric(&fakeVector{}, k, nil)
	results, err := f.KeywordSearch(context.Background(), "kb-1", "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, domain.OriginKeyword, results[0].Origin)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestGraphSearchSuccess(t *testing.T) {
	g := &fakeGraph{healthy: true, answer: "entities are linked by citations"}

	f := newTestFabric(&fakeVector{}, &fakeKeyword{}, g)
	res, err := f.GraphSearch(context.Background(), "kb-1", "how are papers related?", index.GraphModeHybrid)
	require.NoError(t, err)

	assert.False(t, res.FellBack)
	assert.Equal(t, "entities are linked by citations", res.Answer)
}

func TestGraphSearchUnhealthyFallsBack(t *testing.T) {
	v := &fakeVector{hits: []index.VectorHit{{ID: "v1", Content: "dense", Score: 0.8}}}
	g := &fakeGraph{healthy: false}

	f := newTestFabric(v, &fakeKeyword{healthy: true}, g)
	res, err := f.GraphSearch(context.Background(), "kb-1", "q", index.GraphModeLocal)
	require.NoError(t, err)

	assert.True(t, res.FellBack)
	assert.NotEmpty(t, res.FallbackReason)
	require.Len(t, res.Results, 1)
}

func TestGraphSearchErrorFallsBack(t *testing.T) {
	v := &fakeVector{hits: []index.VectorHit{{ID: "v1", Content: "dense", Score: 0.8}}}
	g := &fakeGraph{healthy: true, err: errors.New("graph service timeout")}

	f := newTestFabric(v, &fakeKeyword{healthy: true}, g)
	res, err := f.GraphSearch(context.Background(), "kb-1", "q", index.GraphModeGlobal)
	require.NoError(t, err)

	assert.True(t, res.FellBack)
	assert.Contains(t, res.FallbackReason, "timeout")
}

func TestGraphSearchAllIndexesDownReturnsEmptyFallback(t *testing.T) {
	v := &fakeVector{err: errors.New("down")}
	k := &fakeKeyword{healthy: false}
	g := &fakeGraph{healthy: false}

	f := newTestFabric(v, k, g)
	res, err := f.GraphSearch(context.Background(), "kb-1", "q", index.GraphModeNaive)
	require.NoError(t, err)

	assert.True(t, res.FellBack)
	assert.Empty(t, res.Results)
}
