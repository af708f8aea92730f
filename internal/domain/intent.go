package domain

// IntentTag is drawn from a closed classification set. Anything the
// analyzer cannot place defaults to IntentKnowledgeQuery.
type IntentTag string

const (
	IntentGreeting        IntentTag = "greeting"
	IntentSmallTalk       IntentTag = "small_talk"
	IntentDocumentSummary IntentTag = "document_summary"
	IntentKnowledgeQuery  IntentTag = "knowledge_query"
	IntentComparison      IntentTag = "comparison"
	IntentDrawDiagram     IntentTag = "draw_diagram"
	IntentWebSearch       IntentTag = "web_search"
	IntentDatetime        IntentTag = "datetime"
	IntentInstruction     IntentTag = "instruction"
)

// AllIntentTags lists the closed set, in prompt order.
func AllIntentTags() []IntentTag {
	return []IntentTag{
		IntentGreeting,
		IntentSmallTalk,
		IntentDocumentSummary,
		IntentKnowledgeQuery,
		IntentComparison,
		IntentDrawDiagram,
		IntentWebSearch,
		IntentDatetime,
		IntentInstruction,
	}
}

// ValidIntentTag reports whether tag belongs to the closed set.
func ValidIntentTag(tag IntentTag) bool {
	for _, t := range AllIntentTags() {
		if t == tag {
			return true
		}
	}
	return false
}

// Intent is the analyzer's verdict on a user question.
type Intent struct {
	Tag                IntentTag `json:"intent"`
	NeedsKnowledgeBase bool      `json:"needsKnowledgeBase"`
	NeedsMemory        bool      `json:"needsMemory"`
	Keywords           []string  `json:"keywords,omitempty"`
	SuggestedTool      string    `json:"suggestedTool,omitempty"`
	Confidence         float64   `json:"confidence"`
}

// ShouldSkipAgent reports whether the query can be answered directly,
// bypassing the agent loop. Only greetings and small talk qualify.
func (i Intent) ShouldSkipAgent() bool {
	return i.Tag == IntentGreeting || i.Tag == IntentSmallTalk
}

// IsDiagram reports whether the answer must carry a Mermaid block.
func (i Intent) IsDiagram() bool {
	return i.Tag == IntentDrawDiagram
}

// Normalize clamps confidence and forces the knowledge-base flag off for
// tags that never consult the knowledge base.
func (i Intent) Normalize() Intent {
	i.Confidence = clamp01(i.Confidence)
	if !ValidIntentTag(i.Tag) {
		i.Tag = IntentKnowledgeQuery
	}
	switch i.Tag {
	case IntentGreeting, IntentSmallTalk, IntentDatetime:
		i.NeedsKnowledgeBase = false
	}
	return i
}
