package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/retrieval"
)

// DocumentFinder is the relational lookup summarize_topic tries before
// falling back to retrieval.
type DocumentFinder interface {
	FindByName(ctx context.Context, kbID, name string) (*domain.Document, error)
}

type topicInput struct {
	Topic string `json:"topic" jsonschema:"required,description=Document name or topic to summarize"`
}

// SummarizeTopic returns raw document text for a topic so the agent can
// summarize it itself. A direct name match wins; otherwise the passages the
// retriever surfaces are stitched together.
type SummarizeTopic struct {
	docs     DocumentFinder
	fabric   Fabric
	maxChars int
}

// NewSummarizeTopic creates the summarize_topic tool.
func NewSummarizeTopic(docs DocumentFinder, fabric Fabric, maxChars int) *SummarizeTopic {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &SummarizeTopic{docs: docs, fabric: fabric, maxChars: maxChars}
}

func (t *SummarizeTopic) Name() string { return "summarize_topic" }

func (t *SummarizeTopic) Description() string {
	return "Fetch the full text of a document or topic from the knowledge base for summarization. Prefers an exact document name."
}

func (t *SummarizeTopic) InputSchema() *jsonschema.Schema {
	return reflectSchema(topicInput{})
}

func (t *SummarizeTopic) Execute(ctx context.Context, tc *ToolContext, input string) (string, error) {
	topic, err := decodeString(input, "topic", "query")
	if err != nil {
		return "", err
	}

	if t.docs != nil {
		doc, err := t.docs.FindByName(ctx, tc.KBID, topic)
		switch {
		case err == nil && doc != nil && strings.TrimSpace(doc.Content) != "":
			return fmt.Sprintf("Document %q:\n%s", doc.Name, truncate(doc.Content, t.maxChars)), nil
		case err != nil && !apperrors.IsNotFound(err):
			return "", err
		}
	}

	results, err := t.fabric.HybridSearch(ctx, tc.KBID, topic, retrieval.SearchOptions{
		VectorTopK: 10,
		UseKeyword: true,
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No document or passages found for topic %q.", topic), nil
	}
	tc.AddResults(results)

	var b strings.Builder
	fmt.Fprintf(&b, "Passages about %q:\n", topic)
	for _, r := range results {
		if b.Len() >= t.maxChars {
			break
		}
		b.WriteString("\n")
		b.WriteString(r.Content)
		b.WriteString("\n")
	}
	return truncate(b.String(), t.maxChars), nil
}
