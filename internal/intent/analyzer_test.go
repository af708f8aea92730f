package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"ragcore/internal/domain"
	"ragcore/internal/llm"
)

func TestAnalyzeParsesLLMVerdict(t *testing.T) {
	client := llm.NewMockClient(`{"intent": "draw_diagram", "needsKnowledgeBase": true, "needsMemory": false, "keywords": ["体检", "流程"], "suggestedTool": "generate_diagram", "confidence": 0.92}`)
	a := NewAnalyzer(client, zap.NewNop())

	got := a.Analyze(context.Background(), "画一个体检流程图", nil)

	assert.Equal(t, domain.IntentDrawDiagram, got.Tag)
	assert.True(t, got.NeedsKnowledgeBase)
	assert.Equal(t, "generate_diagram", got.SuggestedTool)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	assert.Equal(t, []string{"体检", "流程"}, got.Keywords)
}

func TestAnalyzeFallsBackOnMalformedJSON(t *testing.T) {
	client := llm.NewMockClient("I think this is a knowledge question about vaccines.")
	a := NewAnalyzer(client, zap.NewNop())

	got := a.Analyze(context.Background(), "儿童疫苗有哪些接种禁忌？", nil)

	assert.Equal(t, domain.IntentKnowledgeQuery, got.Tag)
	assert.True(t, got.NeedsKnowledgeBase)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}

func TestAnalyzeFallsBackOnLLMError(t *testing.T) {
	client := llm.NewMockClient()
	client.SetError(assert.AnError)
	a := NewAnalyzer(client, zap.NewNop())

	got := a.Analyze(context.Background(), "你好", nil)

	assert.Equal(t, domain.IntentGreeting, got.Tag)
	assert.False(t, got.NeedsKnowledgeBase)
}

func TestAnalyzeNormalizesInvalidTag(t *testing.T) {
	client := llm.NewMockClient(`{"intent": "chitchat_extended", "needsKnowledgeBase": true, "confidence": 2.5}`)
	a := NewAnalyzer(client, zap.NewNop())

	got := a.Analyze(context.Background(), "anything", nil)

	assert.Equal(t, domain.IntentKnowledgeQuery, got.Tag)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestAnalyzeForcesKBFlagOffForDatetime(t *testing.T) {
	client := llm.NewMockClient(`{"intent": "datetime", "needsKnowledgeBase": true, "confidence": 0.9}`)
	a := NewAnalyzer(client, zap.NewNop())

	got := a.Analyze(context.Background(), "现在几点了", nil)

	assert.Equal(t, domain.IntentDatetime, got.Tag)
	assert.False(t, got.NeedsKnowledgeBase)
}

func TestDiagramContinuityOverride(t *testing.T) {
	// The model mislabels the follow-up; the override corrects it.
	client := llm.NewMockClient(`{"intent": "small_talk", "needsKnowledgeBase": false, "confidence": 0.6}`)
	a := NewAnalyzer(client, zap.NewNop())

	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "画一个体检流程图"},
		{Role: domain.RoleAssistant, Content: "[MERMAID_DIAGRAM]flowchart TD\nA-->B[/MERMAID_DIAGRAM]"},
	}
	got := a.Analyze(context.Background(), "重新画，细化一点", history)

	assert.Equal(t, domain.IntentDrawDiagram, got.Tag)
	assert.True(t, got.NeedsKnowledgeBase)
	assert.Equal(t, "generate_diagram", got.SuggestedTool)
}

func TestContinuityRequiresDiagramHistory(t *testing.T) {
	client := llm.NewMockClient(`{"intent": "knowledge_query", "needsKnowledgeBase": true, "confidence": 0.7}`)
	a := NewAnalyzer(client, zap.NewNop())

	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "什么是RRF"},
		{Role: domain.RoleAssistant, Content: "RRF 是一种融合排名的方法。"},
	}
	got := a.Analyze(context.Background(), "重新说一遍", history)

	assert.Equal(t, domain.IntentKnowledgeQuery, got.Tag)
}

func TestContinuityRequiresShortQuestion(t *testing.T) {
	client := llm.NewMockClient(`{"intent": "knowledge_query", "needsKnowledgeBase": true, "confidence": 0.7}`)
	a := NewAnalyzer(client, zap.NewNop())

	history := []domain.ChatMessage{
		{Role: domain.RoleAssistant, Content: "[MERMAID_DIAGRAM]flowchart TD\nA-->B[/MERMAID_DIAGRAM]"},
	}
	long := "请重新解释一下上面那张图里每一个节点的具体含义，并且补充每一步的负责人和时间要求"
	got := a.Analyze(context.Background(), long, history)

	assert.Equal(t, domain.IntentKnowledgeQuery, got.Tag)
}

func TestHeuristicTable(t *testing.T) {
	tests := []struct {
		question string
		tag      domain.IntentTag
		needsKB  bool
	}{
		{"你好", domain.IntentGreeting, false},
		{"hello!", domain.IntentGreeting, false},
		{"现在几点了", domain.IntentDatetime, false},
		{"what time is it", domain.IntentDatetime, false},
		{"画一个流程图", domain.IntentDrawDiagram, true},
		{"draw a flowchart of onboarding", domain.IntentDrawDiagram, true},
		{"总结一下这份文档", domain.IntentDocumentSummary, true},
		{"对比一下两种疫苗的区别", domain.IntentComparison, true},
		{"difference between RRF and weighted sum", domain.IntentComparison, true},
		{"儿童疫苗有哪些注意事项", domain.IntentKnowledgeQuery, true},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got := Heuristic(tt.question)
			assert.Equal(t, tt.tag, got.Tag)
			assert.Equal(t, tt.needsKB, got.NeedsKnowledgeBase)
		})
	}
}

func TestHeuristicDefaultConfidence(t *testing.T) {
	got := Heuristic("some question without any pattern")
	assert.Equal(t, domain.IntentKnowledgeQuery, got.Tag)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	assert.True(t, got.NeedsMemory)
}
