package contextbuilder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	"ragcore/internal/llm"
	"ragcore/internal/retrieval"
)

type stubRecaller struct {
	memories []domain.ScoredMemory
	err      error
	calls    int
}

func (s *stubRecaller) Recall(context.Context, string, string, int) ([]domain.ScoredMemory, error) {
	s.calls++
	return s.memories, s.err
}

type stubSearcher struct {
	results []domain.RetrievalResult
	err     error
	calls   int
}

func (s *stubSearcher) HybridSearch(context.Context, string, string, retrieval.SearchOptions) ([]domain.RetrievalResult, error) {
	s.calls++
	return s.results, s.err
}

func testContextConfig() config.Context {
	return config.Context{
		MaxTokens:      4000,
		VerbatimTurns:  3,
		MemoryRatio:    0.15,
		HistoryRatio:   0.25,
		RetrievalRatio: 0.60,
	}
}

func scoredMemory(content string) domain.ScoredMemory {
	return domain.ScoredMemory{
		Memory:     domain.Memory{ID: "m-" + content, Content: content},
		Similarity: 0.8,
		Score:      0.6,
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcd"))
	// Characters, not bytes.
	assert.Equal(t, 2, EstimateTokens("知识库检索"))
}

func TestTruncateToTokens(t *testing.T) {
	assert.Equal(t, "short", TruncateToTokens("short", 10))
	assert.Equal(t, "", TruncateToTokens("anything", 0))

	// Prefers the sentence boundary inside the window.
	s := "First sentence ends here. Second sentence is much longer and will not fit into the window at all."
	out := TruncateToTokens(s, 12)
	assert.Equal(t, "First sentence ends here.", out)

	// Never splits a rune.
	cjk := strings.Repeat("疫苗接种注意事项", 50)
	out = TruncateToTokens(cjk, 20)
	assert.True(t, utf8ValidAndShorter(out, cjk))
}

func utf8ValidAndShorter(out, in string) bool {
	return len(out) < len(in) && strings.ToValidUTF8(out, "") == out
}

func TestBuildComposesAllSections(t *testing.T) {
	rec := &stubRecaller{memories: []domain.ScoredMemory{scoredMemory("user is a pediatrician")}}
	search := &stubSearcher{results: []domain.RetrievalResult{
		{ID: "c1", Content: "reciprocal rank fusion merges lists", DocumentName: "fusion.md", Score: 0.9, Origin: domain.OriginBoth},
	}}
	e := NewEngine(rec, search, NewSummarizer(llm.NewMockClient("they discussed vaccines"), zap.NewNop()), testContextConfig(), zap.NewNop())

	res := e.Build(context.Background(), Request{
		KBID:  "kb-1",
		Query: "what is rrf",
		History: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "old question one"},
			{Role: domain.RoleAssistant, Content: "old answer one"},
			{Role: domain.RoleUser, Content: "recent question"},
			{Role: domain.RoleAssistant, Content: "recent answer"},
			{Role: domain.RoleUser, Content: "latest question"},
		},
	})

	assert.Contains(t, res.Context, headerHistory)
	assert.Contains(t, res.Context, headerMemory)
	assert.Contains(t, res.Context, headerRetrieval)

	// Section order is positional: history, memory, retrieval.
	hi := strings.Index(res.Context, headerHistory)
	mi := strings.Index(res.Context, headerMemory)
	ri := strings.Index(res.Context, headerRetrieval)
	assert.Less(t, hi, mi)
	assert.Less(t, mi, ri)

	assert.Contains(t, res.Context, "user is a pediatrician")
	assert.Contains(t, res.Context, "fusion.md")
	assert.Contains(t, res.Context, "recent question")
	assert.Equal(t, "they discussed vaccines", res.HistorySummary)
	require.Len(t, res.Results, 1)
	require.Len(t, res.Memories, 1)
}

func TestBuildRespectsIntentGates(t *testing.T) {
	rec := &stubRecaller{memories: []domain.ScoredMemory{scoredMemory("anything")}}
	search := &stubSearcher{results: []domain.RetrievalResult{{ID: "c1", Content: "text", Score: 0.9}}}
	e := NewEngine(rec, search, nil, testContextConfig(), zap.NewNop())

	intent := &domain.Intent{Tag: domain.IntentGreeting, NeedsKnowledgeBase: false, NeedsMemory: false}
	res := e.Build(context.Background(), Request{KBID: "kb-1", Query: "你好", Intent: intent})

	assert.Zero(t, rec.calls, "memory gate must skip recall")
	assert.Zero(t, search.calls, "knowledge gate must skip retrieval")
	assert.Empty(t, res.Memories)
	assert.Empty(t, res.Results)
	assert.NotContains(t, res.Context, headerRetrieval)
}

func TestBuildDegradesOnRecallFailure(t *testing.T) {
	rec := &stubRecaller{err: errors.New("store offline")}
	search := &stubSearcher{results: []domain.RetrievalResult{{ID: "c1", Content: "still here", Score: 0.9}}}
	e := NewEngine(rec, search, nil, testContextConfig(), zap.NewNop())

	res := e.Build(context.Background(), Request{KBID: "kb-1", Query: "q"})

	assert.Empty(t, res.Memories)
	assert.Contains(t, res.Context, "still here")
}

func TestBuildStaysUnderBudget(t *testing.T) {
	long := strings.Repeat("这是一个很长的检索结果片段。", 200)
	search := &stubSearcher{results: []domain.RetrievalResult{
		{ID: "c1", Content: long, Score: 0.9},
		{ID: "c2", Content: long, Score: 0.8},
		{ID: "c3", Content: long, Score: 0.7},
	}}
	cfg := testContextConfig()
	cfg.MaxTokens = 500
	e := NewEngine(nil, search, nil, cfg, zap.NewNop())

	res := e.Build(context.Background(), Request{KBID: "kb-1", Query: "q"})

	assert.LessOrEqual(t, EstimateTokens(res.Context), 500)
	assert.LessOrEqual(t, res.Stats.TotalTokens, 500)
}

func TestBuildKeepsMostRecentTurns(t *testing.T) {
	search := &stubSearcher{}
	cfg := testContextConfig()
	cfg.MaxTokens = 300
	e := NewEngine(nil, search, nil, cfg, zap.NewNop())

	history := make([]domain.ChatMessage, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, domain.ChatMessage{
			Role:    domain.RoleUser,
			Content: strings.Repeat("x", 50) + string(rune('a'+i)),
		})
	}

	res := e.Build(context.Background(), Request{KBID: "kb-1", Query: "q", History: history})

	// The newest of the verbatim turns always survives packing.
	assert.Contains(t, res.Context, string(rune('a'+9)))
}

func TestBuildEmptyInputs(t *testing.T) {
	e := NewEngine(nil, &stubSearcher{}, nil, testContextConfig(), zap.NewNop())
	res := e.Build(context.Background(), Request{KBID: "kb-1", Query: "q"})

	assert.Equal(t, "", res.Context)
	assert.NotNil(t, res.Memories)
	assert.NotNil(t, res.Results)
	assert.Zero(t, res.Stats.TotalTokens)
}

func TestRenderTurns(t *testing.T) {
	out := RenderTurns([]domain.ChatMessage{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, "User: hi\nAssistant: hello", out)
}
