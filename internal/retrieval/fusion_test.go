package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/domain"
	"ragcore/internal/index"
)

func TestFuseRRFBothOrigins(t *testing.T) {
	vector := []index.VectorHit{
		{ID: "v1", Content: "reciprocal rank fusion merges ranked lists", DocumentName: "fusion.md", Score: 0.9},
		{ID: "v2", Content: "cosine similarity for dense retrieval", DocumentName: "vectors.md", Score: 0.7},
	}
	keyword := []index.KeywordHit{
		{ID: "k1", Content: "reciprocal rank fusion merges ranked lists", DocumentName: "fusion.md", Rank: 0},
		{ID: "k2", Content: "inverted index lookup", DocumentName: "keyword.md", Rank: 1},
	}

	fused := FuseRRF(vector, keyword, DefaultRRFK, DefaultDedupPrefix)
	require.Len(t, fused, 3)

	// The shared chunk accumulates both reciprocal ranks and wins.
	assert.Equal(t, "v1", fused[0].ID)
	assert.Equal(t, domain.OriginBoth, fused[0].Origin)
	assert.InDelta(t, 2.0/61.0, fused[0].Score, 1e-9)

	for _, r := range fused[1:] {
		assert.NotEqual(t, domain.OriginBoth, r.Origin)
	}
}

func TestFuseRRFOriginMatchesContributors(t *testing.T) {
	vector := []index.VectorHit{{ID: "v1", Content: "only dense", Score: 0.8}}
	keyword := []index.KeywordHit{{ID: "k1", Content: "only sparse", Rank: 0}}

	fused := FuseRRF(vector, keyword, DefaultRRFK, DefaultDedupPrefix)
	require.Len(t, fused, 2)

	byID := map[string]domain.Origin{}
	for _, r := range fused {
		byID[r.ID] = r.Origin
	}
	assert.Equal(t, domain.OriginVector, byID["v1"])
	assert.Equal(t, domain.OriginKeyword, byID["k1"])
}

func TestFuseRRFDedupByPrefix(t *testing.T) {
	shared := strings.Repeat("a", 100)
	vector := []index.VectorHit{{ID: "v1", Content: shared + " tail one", Score: 0.9}}
	keyword := []index.KeywordHit{{ID: "k1", Content: shared + " tail two", Rank: 0}}

	fused := FuseRRF(vector, keyword, DefaultRRFK, DefaultDedupPrefix)
	require.Len(t, fused, 1)
	assert.Equal(t, domain.OriginBoth, fused[0].Origin)
	// The first-seen record keeps its content.
	assert.Equal(t, "v1", fused[0].ID)
}

func TestFuseRRFPrefixWidthConfigurable(t *testing.T) {
	vector := []index.VectorHit{{ID: "v1", Content: "abcdef", Score: 0.9}}
	keyword := []index.KeywordHit{{ID: "k1", Content: "abcxyz", Rank: 0}}

	fused := FuseRRF(vector, keyword, DefaultRRFK, 3)
	require.Len(t, fused, 1)
	assert.Equal(t, domain.OriginBoth, fused[0].Origin)

	fused = FuseRRF(vector, keyword, DefaultRRFK, 6)
	assert.Len(t, fused, 2)
}

func TestFuseRRFTieBreaksByInsertionOrder(t *testing.T) {
	// Same rank in each list, so identical scores; the vector entry was
	// inserted first and must stay first.
	vector := []index.VectorHit{{ID: "v1", Content: "dense chunk", Score: 0.9}}
	keyword := []index.KeywordHit{{ID: "k1", Content: "sparse chunk", Rank: 0}}

	fused := FuseRRF(vector, keyword, DefaultRRFK, DefaultDedupPrefix)
	require.Len(t, fused, 2)
	assert.Equal(t, fused[0].Score, fused[1].Score)
	assert.Equal(t, "v1", fused[0].ID)
	assert.Equal(t, "k1", fused[1].ID)
}

func TestFuseRRFScoresMonotone(t *testing.T) {
	vector := []index.VectorHit{
		{ID: "v1", Content: "chunk one", Score: 0.95},
		{ID: "v2", Content: "chunk two", Score: 0.85},
		{ID: "v3", Content: "chunk three", Score: 0.75},
	}
	keyword := []index.KeywordHit{
		{ID: "k1", Content: "chunk two", Rank: 0},
		{ID: "k2", Content: "chunk four", Rank: 1},
	}

	fused := FuseRRF(vector, keyword, DefaultRRFK, DefaultDedupPrefix)
	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].Score, fused[i].Score)
	}
}

func TestFuseRRFCJKPrefix(t *testing.T) {
	// Prefix is counted in characters, not bytes.
	content := strings.Repeat("知", 100)
	vector := []index.VectorHit{{ID: "v1", Content: content + "甲", Score: 0.9}}
	keyword := []index.KeywordHit{{ID: "k1", Content: content + "乙", Rank: 0}}

	fused := FuseRRF(vector, keyword, DefaultRRFK, DefaultDedupPrefix)
	require.Len(t, fused, 1)
	assert.Equal(t, domain.OriginBoth, fused[0].Origin)
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, nil, DefaultRRFK, DefaultDedupPrefix))

	keywordOnly := FuseRRF(nil, []index.KeywordHit{{ID: "k1", Content: "sparse", Rank: 0}}, DefaultRRFK, DefaultDedupPrefix)
	require.Len(t, keywordOnly, 1)
	assert.Equal(t, domain.OriginKeyword, keywordOnly[0].Origin)
}
