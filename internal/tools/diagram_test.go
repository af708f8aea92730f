package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragcore/internal/domain"
	"ragcore/internal/llm"
	"ragcore/internal/mermaid"
)

func TestGenerateDiagramTwoStages(t *testing.T) {
	client := llm.NewMockClient(
		"1. Ingest -> 2. Chunk -> 3. Embed -> 4. Index",
		"flowchart TD\n  A[Ingest] --> B[Chunk]\n  B --> C[Embed]\n  C --> D[Index]",
	)
	tool := NewGenerateDiagram(client, zap.NewNop())
	tc := NewToolContext("kb-1", "")
	tc.AddResults([]domain.RetrievalResult{{Content: "Documents are chunked, embedded and indexed."}})

	obs, err := tool.Execute(context.Background(), tc, `{"description":"ingestion pipeline"}`)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obs, mermaid.OpenTag))
	assert.True(t, strings.HasSuffix(obs, mermaid.CloseTag))
	assert.Contains(t, obs, "A[Ingest] --> B[Chunk]")

	prompts := client.Prompts()
	require.Len(t, prompts, 2)
	// Stage one sees the retrieved material; stage two sees the outline.
	assert.Contains(t, prompts[0], "chunked, embedded and indexed")
	assert.Contains(t, prompts[0], "ingestion pipeline")
	assert.Contains(t, prompts[1], "flowchart TD")
	assert.Contains(t, prompts[1], "1. Ingest")
}

func TestGenerateDiagramCleansFencedOutput(t *testing.T) {
	client := llm.NewMockClient(
		"outline",
		"Here is the diagram:\n```mermaid\nsequenceDiagram\n  A->>B: hello\n```",
	)
	tool := NewGenerateDiagram(client, zap.NewNop())

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), `{"description":"handshake","chartType":"sequenceDiagram"}`)

	require.NoError(t, err)
	assert.NotContains(t, obs, "```")
	assert.NotContains(t, obs, "Here is the diagram")
	assert.Contains(t, obs, "sequenceDiagram")
	assert.True(t, mermaid.IsWellFormed(obs))
}

func TestGenerateDiagramDefaultsChartType(t *testing.T) {
	client := llm.NewMockClient("outline", "flowchart TD\n  A --> B")
	tool := NewGenerateDiagram(client, zap.NewNop())

	_, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), `{"description":"simple"}`)

	require.NoError(t, err)
	prompts := client.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "flowchart TD")
}

func TestGenerateDiagramPropagatesLLMError(t *testing.T) {
	client := llm.NewMockClient()
	client.SetError(errors.New("provider down"))
	tool := NewGenerateDiagram(client, zap.NewNop())

	_, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), `{"description":"x"}`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}
