package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragcore/internal/domain"
	"ragcore/internal/llm"
)

const analysisPrompt = `Classify the user's question into exactly one intent tag.

Tags: greeting, small_talk, document_summary, knowledge_query, comparison,
draw_diagram, web_search, datetime, instruction.

Rules:
- greeting/small_talk/datetime never need the knowledge base.
- If the previous assistant turn was a diagram and the question is a short
  complaint or refinement ("redo", "more detail", "重新画"), keep intent
  draw_diagram.
- suggestedTool may name one of: search_knowledge, deep_search,
  keyword_search, graph_search, summarize_topic, web_search,
  generate_diagram, get_current_datetime. Leave empty when unsure.

Recent conversation:
%s

Question: %s

Respond with strict JSON only:
{"intent": "...", "needsKnowledgeBase": bool, "needsMemory": bool, "keywords": ["..."], "suggestedTool": "", "confidence": 0.0-1.0}`

// Analyzer produces one Intent per question.
type Analyzer struct {
	client llm.Client
	logger *zap.Logger
}

// NewAnalyzer builds the intent analyzer.
func NewAnalyzer(client llm.Client, logger *zap.Logger) *Analyzer {
	return &Analyzer{client: client, logger: logger}
}

// Analyze runs the LLM classification with heuristic fallback, then
// enforces the diagram-continuity override regardless of which path
// produced the intent.
func (a *Analyzer) Analyze(ctx context.Context, question string, history []domain.ChatMessage) domain.Intent {
	result := a.classify(ctx, question, history)

	// The prompt asks for continuity; this enforces it even when the
	// model ignores its instructions.
	if isRefinement(question) && lastTurnWasDiagram(history) {
		result.Tag = domain.IntentDrawDiagram
		result.NeedsKnowledgeBase = true
		result.SuggestedTool = "generate_diagram"
		result = result.Normalize()
	}
	return result
}

func (a *Analyzer) classify(ctx context.Context, question string, history []domain.ChatMessage) domain.Intent {
	prompt := fmt.Sprintf(analysisPrompt, renderRecentHistory(history, 4), question)

	raw, err := a.client.Complete(ctx, prompt, llm.Options{Temperature: 0.0, JSONMode: true})
	if err != nil {
		a.logger.Warn("Intent analysis call failed, using heuristics", zap.Error(err))
		return Heuristic(question)
	}

	var wire struct {
		Intent             string   `json:"intent"`
		NeedsKnowledgeBase bool     `json:"needsKnowledgeBase"`
		NeedsMemory        bool     `json:"needsMemory"`
		Keywords           []string `json:"keywords"`
		SuggestedTool      string   `json:"suggestedTool"`
		Confidence         float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &wire); err != nil {
		a.logger.Warn("Intent analysis returned malformed JSON, using heuristics",
			zap.String("reply", raw),
			zap.Error(err))
		return Heuristic(question)
	}

	return domain.Intent{
		Tag:                domain.IntentTag(wire.Intent),
		NeedsKnowledgeBase: wire.NeedsKnowledgeBase,
		NeedsMemory:        wire.NeedsMemory,
		Keywords:           wire.Keywords,
		SuggestedTool:      wire.SuggestedTool,
		Confidence:         wire.Confidence,
	}.Normalize()
}

func renderRecentHistory(history []domain.ChatMessage, limit int) string {
	if len(history) == 0 {
		return "(none)"
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := "User"
		if msg.Role == domain.RoleAssistant {
			role = "Assistant"
		}
		content := msg.Content
		if runes := []rune(content); len(runes) > 200 {
			content = string(runes[:200]) + "..."
		}
		fmt.Fprintf(&b, "%s: %s", role, content)
	}
	return b.String()
}
