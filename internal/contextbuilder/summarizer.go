package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragcore/internal/domain"
	"ragcore/internal/llm"
)

const summaryPrompt = `Compress the following conversation into a short factual summary.
Keep decisions, stated preferences and open questions; drop pleasantries.
Stay under %d characters. Answer with the summary only.

%s`

// Summarizer produces a rolling summary of chat turns older than the
// verbatim window.
type Summarizer struct {
	client llm.Client
	logger *zap.Logger
}

// NewSummarizer builds the rolling summarizer.
func NewSummarizer(client llm.Client, logger *zap.Logger) *Summarizer {
	return &Summarizer{client: client, logger: logger}
}

// Summarize compresses turns to at most maxTokens. On LLM failure it
// degrades to a truncated transcript so the section never blocks a query.
func (s *Summarizer) Summarize(ctx context.Context, turns []domain.ChatMessage, maxTokens int) string {
	if len(turns) == 0 || maxTokens <= 0 {
		return ""
	}

	transcript := RenderTurns(turns)
	prompt := fmt.Sprintf(summaryPrompt, maxTokens*CharsPerToken, transcript)

	summary, err := s.client.Complete(ctx, prompt, llm.Options{Temperature: 0.2})
	if err != nil {
		s.logger.Warn("History summarization failed, using truncated transcript", zap.Error(err))
		return TruncateToTokens(transcript, maxTokens)
	}
	return TruncateToTokens(strings.TrimSpace(summary), maxTokens)
}

// RenderTurns formats chat turns one per line.
func RenderTurns(turns []domain.ChatMessage) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch t.Role {
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		case domain.RoleSystem:
			b.WriteString("System: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}
