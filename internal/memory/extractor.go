package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/llm"
)

const extractionPrompt = `You extract durable user memories from a finished exchange.

A memory is a short declarative statement that will still matter in future
conversations: a stated preference, a personal or domain fact, or an event.
Ignore pleasantries, one-off clarifications and anything the user could not
care about next week.

Question:
%s

Answer:
%s

Respond with a JSON array, at most 3 entries, no other text:
[{"content": "...", "kind": "user_preference|factual|event|general", "importance": 0.0-1.0}]
Return [] when nothing endures.`

var (
	greetingPattern = regexp.MustCompile(`^(你好|您好|嗨|哈喽|早上好|晚上好|hi|hello|hey|yo)[!！。.~\s]*$`)
	unknownPattern  = regexp.MustCompile(`我不知道|无法回答|没有找到相关|没有相关信息|i don't know|i do not know|no relevant information`)
	sentenceEnd     = regexp.MustCompile(`[。！？.!?；;\n]`)
)

// ShouldExtract is the cheap pre-filter that keeps the extractor LLM call
// off greetings, trivially short exchanges and non-answers.
func ShouldExtract(question, answer string) bool {
	q := strings.TrimSpace(question)
	a := strings.TrimSpace(answer)
	if q == "" || a == "" {
		return false
	}
	if greetingPattern.MatchString(strings.ToLower(q)) {
		return false
	}
	if unknownPattern.MatchString(strings.ToLower(a)) {
		return false
	}
	// A single short sentence carries nothing worth keeping.
	if len([]rune(a)) < 40 && len(sentenceEnd.FindAllString(a, 2)) <= 1 {
		return false
	}
	return true
}

// Extractor turns finished exchanges into candidate memories.
type Extractor struct {
	client llm.Client
	logger *zap.Logger
}

// NewExtractor builds the LLM-driven extractor.
func NewExtractor(client llm.Client, logger *zap.Logger) *Extractor {
	return &Extractor{client: client, logger: logger}
}

// Extract asks the LLM for memories. The reply must be a JSON array;
// anything else is a degraded outcome, never a crash.
func (e *Extractor) Extract(ctx context.Context, question, answer string) ([]domain.ExtractedMemory, error) {
	prompt := fmt.Sprintf(extractionPrompt, question, answer)

	raw, err := e.client.Complete(ctx, prompt, llm.Options{Temperature: 0.1, JSONMode: false})
	if err != nil {
		return nil, err
	}

	var extracted []domain.ExtractedMemory
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &extracted); err != nil {
		return nil, apperrors.Degraded("MEMORY_PARSE", "extractor returned malformed JSON", err).
			WithDetails("reply=%s", raw)
	}

	kept := extracted[:0]
	for _, m := range extracted {
		m.Content = strings.TrimSpace(m.Content)
		if m.Content == "" {
			continue
		}
		m.Kind = domain.NormalizeMemoryKind(string(m.Kind))
		kept = append(kept, m)
	}
	return kept, nil
}
