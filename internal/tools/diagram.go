package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
	"ragcore/internal/llm"
	"ragcore/internal/mermaid"
)

// materialBudget bounds how much accumulated retrieval text feeds the logic
// analysis stage.
const materialBudget = 4000

const logicPrompt = `You are preparing to draw a diagram. Analyze the request and the source material, then list:
1. The entities or steps involved (short labels).
2. The relationships or transitions between them, in order.
3. Any branching or parallel paths.

Answer as a concise numbered outline. Do NOT write any diagram syntax yet.

Request: %s

Source material:
%s`

const syntaxPrompt = `Convert the following outline into valid Mermaid %s syntax.

Rules:
- Output ONLY the Mermaid source, no explanations, no markdown fences.
- Node labels must be short; quote labels containing spaces or punctuation.
- Every edge must reference declared nodes.

Outline:
%s`

type diagramInput struct {
	Description string `json:"description" jsonschema:"required,description=What the diagram should show"`
	ChartType   string `json:"chartType,omitempty" jsonschema:"description=Mermaid chart type such as flowchart TD or sequenceDiagram"`
}

// GenerateDiagram produces a tagged Mermaid block in two LLM stages: a
// logic analysis over the retrieved material, then syntax emission from the
// resulting outline.
type GenerateDiagram struct {
	client llm.Client
	logger *zap.Logger
}

// NewGenerateDiagram creates the generate_diagram tool.
func NewGenerateDiagram(client llm.Client, logger *zap.Logger) *GenerateDiagram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateDiagram{client: client, logger: logger}
}

func (t *GenerateDiagram) Name() string { return "generate_diagram" }

func (t *GenerateDiagram) Description() string {
	return "Generate a Mermaid diagram from a description. Search for the topic first so the diagram reflects the knowledge base."
}

func (t *GenerateDiagram) InputSchema() *jsonschema.Schema {
	return reflectSchema(diagramInput{})
}

func (t *GenerateDiagram) Execute(ctx context.Context, tc *ToolContext, input string) (string, error) {
	description, err := decodeString(input, "description", "query")
	if err != nil {
		return "", err
	}
	chartType := decodeOptional(input, "chartType")
	if chartType == "" {
		chartType = "flowchart TD"
	}

	outline, err := t.analyzeLogic(ctx, description, t.material(tc))
	if err != nil {
		return "", err
	}

	source, err := t.emitSyntax(ctx, outline, chartType)
	if err != nil {
		return "", err
	}
	return mermaid.Wrap(source), nil
}

// analyzeLogic is stage one: extract entities and relations as an outline.
func (t *GenerateDiagram) analyzeLogic(ctx context.Context, description, material string) (string, error) {
	if material == "" {
		material = "(none retrieved; rely on the request alone)"
	}
	prompt := fmt.Sprintf(logicPrompt, description, material)

	outline, err := t.client.Complete(ctx, prompt, llm.Options{Temperature: 0.2})
	if err != nil {
		return "", apperrors.Wrap(err, "diagram.logic")
	}
	if strings.TrimSpace(outline) == "" {
		return "", apperrors.Degraded("DIAGRAM_EMPTY", "logic analysis returned nothing", nil)
	}
	return outline, nil
}

// emitSyntax is stage two: outline to cleaned Mermaid source.
func (t *GenerateDiagram) emitSyntax(ctx context.Context, outline, chartType string) (string, error) {
	prompt := fmt.Sprintf(syntaxPrompt, chartType, outline)

	raw, err := t.client.Complete(ctx, prompt, llm.Options{Temperature: 0.1})
	if err != nil {
		return "", apperrors.Wrap(err, "diagram.syntax")
	}

	source := mermaid.Clean(raw)
	if source == "" {
		return "", apperrors.Degraded("DIAGRAM_EMPTY", "syntax stage produced no mermaid source", nil)
	}
	return source, nil
}

// material renders the accumulated retrieval results for the logic stage.
func (t *GenerateDiagram) material(tc *ToolContext) string {
	results := tc.Results()
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		if b.Len() >= materialBudget {
			break
		}
		b.WriteString(r.Content)
		b.WriteString("\n\n")
	}
	return truncate(strings.TrimSpace(b.String()), materialBudget)
}
