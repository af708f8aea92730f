// Package intent classifies a user question into the closed tag set that
// steers retrieval, tool selection and the direct-response shortcut. One
// LLM call does the work; regex heuristics cover parse failures.
package intent

import (
	"regexp"
	"strings"

	"ragcore/internal/domain"
)

var (
	greetingRe = regexp.MustCompile(`^(你好|您好|嗨|哈喽|早上好|下午好|晚上好|hi|hello|hey|yo)[!！。.~\s]*$`)
	datetimeRe = regexp.MustCompile(`几点|几号|星期几|今天.*(日期|时间)|现在.*时间|what time|current time|today'?s date`)
	diagramRe  = regexp.MustCompile(`画.*图|流程图|时序图|架构图|示意图|可视化|diagram|flowchart|sequence chart|visuali[sz]e`)
	summaryRe  = regexp.MustCompile(`总结|概括|摘要|summari[sz]e|summary of`)
	compareRe  = regexp.MustCompile(`对比|比较|区别|差异|异同|compare|difference between|versus|\bvs\b`)

	refinementRe = regexp.MustCompile(`重新|再画|重画|改成|换成|细化|详细一点|不对|redo|try again|more detail`)
)

// Heuristic is the rule-based fallback when the LLM reply cannot be
// parsed. It covers the tags a regex can catch; everything else defaults
// to knowledge_query at half confidence.
func Heuristic(question string) domain.Intent {
	q := strings.ToLower(strings.TrimSpace(question))

	switch {
	case greetingRe.MatchString(q):
		return domain.Intent{
			Tag:        domain.IntentGreeting,
			Confidence: 0.9,
		}.Normalize()
	case datetimeRe.MatchString(q):
		return domain.Intent{
			Tag:           domain.IntentDatetime,
			SuggestedTool: "get_current_datetime",
			Confidence:    0.9,
		}.Normalize()
	case diagramRe.MatchString(q):
		return domain.Intent{
			Tag:                domain.IntentDrawDiagram,
			NeedsKnowledgeBase: true,
			SuggestedTool:      "generate_diagram",
			Confidence:         0.8,
		}.Normalize()
	case summaryRe.MatchString(q):
		return domain.Intent{
			Tag:                domain.IntentDocumentSummary,
			NeedsKnowledgeBase: true,
			SuggestedTool:      "summarize_topic",
			Confidence:         0.8,
		}.Normalize()
	case compareRe.MatchString(q):
		return domain.Intent{
			Tag:                domain.IntentComparison,
			NeedsKnowledgeBase: true,
			SuggestedTool:      "deep_search",
			Confidence:         0.7,
		}.Normalize()
	default:
		return domain.Intent{
			Tag:                domain.IntentKnowledgeQuery,
			NeedsKnowledgeBase: true,
			NeedsMemory:        true,
			Confidence:         0.5,
		}.Normalize()
	}
}

// isRefinement reports whether a short question is complaint or
// refinement language about the previous answer.
func isRefinement(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if len([]rune(q)) > 24 {
		return false
	}
	return refinementRe.MatchString(q)
}

// lastTurnWasDiagram reports whether the previous assistant turn carried
// a Mermaid block.
func lastTurnWasDiagram(history []domain.ChatMessage) bool {
	last := domain.LastAssistantMessage(history)
	return last != nil && strings.Contains(last.Content, "[MERMAID_DIAGRAM]")
}

// IsFollowUp reports whether the question refines or complains about a
// previous answer, which only makes sense when one exists.
func IsFollowUp(question string, history []domain.ChatMessage) bool {
	return domain.LastAssistantMessage(history) != nil && isRefinement(question)
}
