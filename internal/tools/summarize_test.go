package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

type fakeDocs struct {
	doc *domain.Document
	err error
}

func (f *fakeDocs) FindByName(_ context.Context, _, _ string) (*domain.Document, error) {
	return f.doc, f.err
}

func TestSummarizeTopicPrefersRelationalLookup(t *testing.T) {
	docs := &fakeDocs{doc: &domain.Document{Name: "design.md", Content: "full document body"}}
	fabric := &fakeFabric{hybrid: makeResults(3)}
	tool := NewSummarizeTopic(docs, fabric, 8000)

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), `{"topic":"design.md"}`)

	require.NoError(t, err)
	assert.Contains(t, obs, `Document "design.md"`)
	assert.Contains(t, obs, "full document body")
	// Relational hit means no retrieval round-trip.
	assert.Empty(t, fabric.lastQueries)
}

func TestSummarizeTopicFallsBackToRetrieval(t *testing.T) {
	docs := &fakeDocs{err: apperrors.NotFound("document", "deployment")}
	fabric := &fakeFabric{hybrid: makeResults(3)}
	tool := NewSummarizeTopic(docs, fabric, 8000)
	tc := NewToolContext("kb-1", "")

	obs, err := tool.Execute(context.Background(), tc, `{"topic":"deployment"}`)

	require.NoError(t, err)
	assert.Contains(t, obs, `Passages about "deployment"`)
	assert.Contains(t, obs, "passage a")
	assert.Len(t, tc.Results(), 3)
}

func TestSummarizeTopicClipsLongDocuments(t *testing.T) {
	docs := &fakeDocs{doc: &domain.Document{Name: "big.md", Content: strings.Repeat("z", 9000)}}
	tool := NewSummarizeTopic(docs, &fakeFabric{}, 8000)

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), `{"topic":"big.md"}`)

	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(obs)), 8000+len(`Document "big.md":`)+10)
	assert.True(t, strings.HasSuffix(obs, "..."))
}

func TestSummarizeTopicNothingFound(t *testing.T) {
	docs := &fakeDocs{err: apperrors.NotFound("document", "ghost")}
	tool := NewSummarizeTopic(docs, &fakeFabric{}, 8000)

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), "ghost")

	require.NoError(t, err)
	assert.Contains(t, obs, "No document or passages found")
}
