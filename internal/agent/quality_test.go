package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragcore/internal/domain"
	"ragcore/internal/llm"
	"ragcore/internal/mermaid"
	"ragcore/internal/tools"
)

func newTestController(t *testing.T, client llm.Client, toolList ...tools.Tool) *Controller {
	t.Helper()
	a := newTestAgent(t, client, toolList...)
	return NewController(a, NewJudge(client, zap.NewNop()), testAgentConfig(), zap.NewNop(), nil)
}

func knowledgeIntent() domain.Intent {
	return domain.Intent{Tag: domain.IntentKnowledgeQuery, NeedsKnowledgeBase: true, NeedsMemory: true}
}

func TestControllerPassFirstTry(t *testing.T) {
	client := llm.NewMockClient(
		"Answer: RRF merges ranked lists by summing reciprocal ranks.",
		`{"pass": true, "reason": "on topic and substantive"}`,
	)
	c := newTestController(t, client)

	res, err := c.Execute(context.Background(), ReviewRequest{
		Question: "What is RRF?",
		Context:  "## Retrieval\n[1] fusion.md",
		Intent:   knowledgeIntent(),
		ToolCtx:  tools.NewToolContext("kb-1", ""),
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 0, res.Retries)
	assert.Equal(t, "RRF merges ranked lists by summing reciprocal ranks.", res.Answer)
}

func TestControllerRetriesWithFailureReason(t *testing.T) {
	client := llm.NewMockClient(
		"Answer: Step 3 then step 1 then step 2.",
		`{"pass": false, "reason": "step order is causally inconsistent"}`,
		"Answer: Step 1, then step 2, then step 3.",
		`{"pass": true, "reason": "order fixed"}`,
	)
	c := newTestController(t, client)

	res, err := c.Execute(context.Background(), ReviewRequest{
		Question: "How do I deploy?",
		Context:  "deploy doc",
		Intent:   knowledgeIntent(),
		ToolCtx:  tools.NewToolContext("kb-1", ""),
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, "Step 1, then step 2, then step 3.", res.Answer)

	prompts := client.Prompts()
	require.Len(t, prompts, 4)
	retryMsg := prompts[2]
	assert.Contains(t, retryMsg, "step order is causally inconsistent")
	assert.Contains(t, retryMsg, "How do I deploy?")
	assert.Contains(t, retryMsg, "deploy doc")
	assert.Contains(t, retryMsg, "Do NOT use web_search")
}

func TestControllerLengthFallbackAfterRetriesExhausted(t *testing.T) {
	longAnswer := "Answer: " + strings.Repeat("useful detail. ", 10)
	client := llm.NewMockClient()
	client.ChatFn = func(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
		if strings.Contains(messages[len(messages)-1].Content, "Respond with ONLY a JSON object") {
			return `{"pass": false, "reason": "still judged weak"}`, nil
		}
		return longAnswer, nil
	}
	c := newTestController(t, client)

	res, err := c.Execute(context.Background(), ReviewRequest{
		Question: "q",
		Intent:   knowledgeIntent(),
		ToolCtx:  tools.NewToolContext("kb-1", ""),
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "length fallback", res.Reason)
	assert.Equal(t, 3, res.Retries)
	assert.GreaterOrEqual(t, len([]rune(res.Answer)), 100)
}

func TestControllerShortWeakAnswerStaysRejected(t *testing.T) {
	client := llm.NewMockClient()
	client.ChatFn = func(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
		if strings.Contains(messages[len(messages)-1].Content, "Respond with ONLY a JSON object") {
			return `{"pass": false, "reason": "no substance"}`, nil
		}
		return "Answer: dunno", nil
	}
	c := newTestController(t, client)

	res, err := c.Execute(context.Background(), ReviewRequest{
		Question: "q",
		Intent:   knowledgeIntent(),
		ToolCtx:  tools.NewToolContext("kb-1", ""),
	})

	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "no substance", res.Reason)
	assert.Equal(t, 3, res.Retries)
}

func TestControllerDiagramPreCheckWrapsBareMermaid(t *testing.T) {
	client := llm.NewMockClient(
		// The agent hands back a bare diagram; the pre-check wraps it
		// before the judge ever sees it.
		"Answer: flowchart TD\n  A[Start] --> B[End]",
		`{"pass": true, "reason": "diagram present"}`,
	)
	c := newTestController(t, client)

	res, err := c.Execute(context.Background(), ReviewRequest{
		Question: "draw the flow",
		Intent:   domain.Intent{Tag: domain.IntentDrawDiagram, NeedsKnowledgeBase: true},
		ToolCtx:  tools.NewToolContext("kb-1", ""),
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, mermaid.IsWellFormed(res.Answer))
}

func TestControllerDiagramMissingBlockFailsWithoutJudge(t *testing.T) {
	client := llm.NewMockClient(
		"Answer: I cannot draw that, sorry.",
		"Answer: [MERMAID_DIAGRAM]\nflowchart TD\n  A --> B\n[/MERMAID_DIAGRAM]",
		`{"pass": true, "reason": "diagram present"}`,
	)
	c := newTestController(t, client)

	res, err := c.Execute(context.Background(), ReviewRequest{
		Question: "draw it",
		Intent:   domain.Intent{Tag: domain.IntentDrawDiagram},
		ToolCtx:  tools.NewToolContext("kb-1", ""),
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.Retries)
	assert.True(t, mermaid.IsWellFormed(res.Answer))
	// The local diagram check rejected the first answer with no judge call.
	retryMsg := client.Prompts()[1]
	assert.Contains(t, retryMsg, "complete [MERMAID_DIAGRAM] block")
}

func TestJudgeMalformedVerdictAcceptsAnswer(t *testing.T) {
	client := llm.NewMockClient("not json at all")
	j := NewJudge(client, zap.NewNop())

	v := j.Review(context.Background(), "q", "a perfectly fine answer", false)

	assert.True(t, v.Pass)
}

func TestJudgeParsesFencedVerdict(t *testing.T) {
	client := llm.NewMockClient("```json\n{\"pass\": false, \"reason\": \"off-topic\"}\n```")
	j := NewJudge(client, zap.NewNop())

	v := j.Review(context.Background(), "q", "answer", false)

	assert.False(t, v.Pass)
	assert.Equal(t, "off-topic", v.Reason)
}

func TestControllerEmptyAnswerRejectedThenRecovered(t *testing.T) {
	client := llm.NewMockClient()
	call := 0
	client.ChatFn = func(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
		call++
		last := messages[len(messages)-1].Content
		if strings.Contains(last, "Respond with ONLY a JSON object") {
			return `{"pass": true, "reason": "fine"}`, nil
		}
		if call == 1 {
			return "Answer:", nil
		}
		return "Answer: recovered with substance", nil
	}
	c := newTestController(t, client)

	res, err := c.Execute(context.Background(), ReviewRequest{
		Question: "q",
		Intent:   knowledgeIntent(),
		ToolCtx:  tools.NewToolContext("kb-1", ""),
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "recovered with substance", res.Answer)
}
