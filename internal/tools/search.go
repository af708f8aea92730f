package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"ragcore/internal/contextbuilder"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
	"ragcore/internal/retrieval"
)

// Fabric is the retrieval surface the search tools dispatch against.
type Fabric interface {
	HybridSearch(ctx context.Context, kbID, query string, opts retrieval.SearchOptions) ([]domain.RetrievalResult, error)
	KeywordSearch(ctx context.Context, kbID, query string, limit int) ([]domain.RetrievalResult, error)
	GraphSearch(ctx context.Context, kbID, query string, mode index.GraphMode) (*retrieval.GraphResult, error)
}

type searchInput struct {
	Query string `json:"query" jsonschema:"required,description=Search query text"`
}

type graphInput struct {
	Query string `json:"query" jsonschema:"required,description=Question for the graph index"`
	Mode  string `json:"mode,omitempty" jsonschema:"description=Query mode: local, global, hybrid or naive"`
}

// formatResults renders the top n results the same way the context engine
// renders its retrieval section.
func formatResults(results []domain.RetrievalResult, n int) string {
	if n > len(results) {
		n = len(results)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(contextbuilder.FormatResult(i+1, results[i]))
	}
	return b.String()
}

// ============================================================================
// SEARCH_KNOWLEDGE
// ============================================================================

// SearchKnowledge is the default retrieval tool: hybrid search, compact
// observation.
type SearchKnowledge struct {
	fabric Fabric
}

// NewSearchKnowledge creates the search_knowledge tool.
func NewSearchKnowledge(fabric Fabric) *SearchKnowledge {
	return &SearchKnowledge{fabric: fabric}
}

func (t *SearchKnowledge) Name() string { return "search_knowledge" }

func (t *SearchKnowledge) Description() string {
	return "Search the knowledge base for passages relevant to a query. Use this first for most questions."
}

func (t *SearchKnowledge) InputSchema() *jsonschema.Schema {
	return reflectSchema(searchInput{})
}

func (t *SearchKnowledge) Execute(ctx context.Context, tc *ToolContext, input string) (string, error) {
	query, err := decodeString(input, "query")
	if err != nil {
		return "", err
	}
	results, err := t.fabric.HybridSearch(ctx, tc.KBID, query, retrieval.SearchOptions{
		VectorTopK: 5,
		UseKeyword: true,
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No relevant passages found for %q.", query), nil
	}
	tc.AddResults(results)
	return formatResults(results, 3), nil
}

// ============================================================================
// DEEP_SEARCH
// ============================================================================

// DeepSearch is the wide-net variant used when a question needs broad
// coverage, e.g. before generating a diagram.
type DeepSearch struct {
	fabric Fabric
}

// NewDeepSearch creates the deep_search tool.
func NewDeepSearch(fabric Fabric) *DeepSearch {
	return &DeepSearch{fabric: fabric}
}

func (t *DeepSearch) Name() string { return "deep_search" }

func (t *DeepSearch) Description() string {
	return "Search the knowledge base with a wider net and return more passages. Use for broad or multi-part questions and before generating diagrams."
}

func (t *DeepSearch) InputSchema() *jsonschema.Schema {
	return reflectSchema(searchInput{})
}

func (t *DeepSearch) Execute(ctx context.Context, tc *ToolContext, input string) (string, error) {
	query, err := decodeString(input, "query")
	if err != nil {
		return "", err
	}
	results, err := t.fabric.HybridSearch(ctx, tc.KBID, query, retrieval.SearchOptions{
		VectorTopK: 10,
		UseKeyword: true,
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No relevant passages found for %q.", query), nil
	}
	tc.AddResults(results)
	return formatResults(results, 8), nil
}

// ============================================================================
// KEYWORD_SEARCH
// ============================================================================

// KeywordSearch queries the keyword index alone, for exact-term lookups the
// embedding space misses.
type KeywordSearch struct {
	fabric Fabric
}

// NewKeywordSearch creates the keyword_search tool.
func NewKeywordSearch(fabric Fabric) *KeywordSearch {
	return &KeywordSearch{fabric: fabric}
}

func (t *KeywordSearch) Name() string { return "keyword_search" }

func (t *KeywordSearch) Description() string {
	return "Search the knowledge base by exact keywords only. Use for identifiers, error codes and literal phrases."
}

func (t *KeywordSearch) InputSchema() *jsonschema.Schema {
	return reflectSchema(searchInput{})
}

func (t *KeywordSearch) Execute(ctx context.Context, tc *ToolContext, input string) (string, error) {
	query, err := decodeString(input, "query")
	if err != nil {
		return "", err
	}
	results, err := t.fabric.KeywordSearch(ctx, tc.KBID, query, 5)
	if err != nil {
		if apperrors.IsDegraded(err) {
			return "The keyword index is unavailable right now. Use search_knowledge instead.", nil
		}
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No keyword matches for %q.", query), nil
	}
	tc.AddResults(results)
	return formatResults(results, 5), nil
}

// ============================================================================
// GRAPH_SEARCH
// ============================================================================

// GraphSearch asks the graph index for a synthesized answer, falling back
// to hybrid retrieval through the fabric when the graph cannot serve.
type GraphSearch struct {
	fabric  Fabric
	timeout time.Duration
}

// NewGraphSearch creates the graph_search tool. The timeout replaces the
// registry default because graph queries run far longer than index lookups.
func NewGraphSearch(fabric Fabric, timeout time.Duration) *GraphSearch {
	return &GraphSearch{fabric: fabric, timeout: timeout}
}

func (t *GraphSearch) Name() string { return "graph_search" }

func (t *GraphSearch) Description() string {
	return "Ask the knowledge graph for a synthesized answer about entities and their relationships. Falls back to hybrid search when the graph cannot answer."
}

func (t *GraphSearch) InputSchema() *jsonschema.Schema {
	return reflectSchema(graphInput{})
}

func (t *GraphSearch) CallTimeout() time.Duration { return t.timeout }

func (t *GraphSearch) Execute(ctx context.Context, tc *ToolContext, input string) (string, error) {
	query, err := decodeString(input, "query")
	if err != nil {
		return "", err
	}
	mode := index.GraphMode(decodeOptional(input, "mode"))

	res, err := t.fabric.GraphSearch(ctx, tc.KBID, query, mode)
	if err != nil {
		return "", err
	}
	if !res.FellBack {
		return res.Answer, nil
	}
	tc.AddResults(res.Results)
	if len(res.Results) == 0 {
		return fmt.Sprintf("Graph index unavailable (%s) and hybrid search found nothing for %q.", res.FallbackReason, query), nil
	}
	return fmt.Sprintf("Graph index unavailable (%s); falling back to hybrid search results:\n%s",
		res.FallbackReason, formatResults(res.Results, 8)), nil
}
