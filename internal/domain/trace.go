package domain

import (
	"time"

	"github.com/google/uuid"
)

// ToolCall is one entry in the per-query tool-call log. Output is stored
// truncated; DurationMS covers dispatch through observation.
type ToolCall struct {
	Step       int    `json:"step"`
	Name       string `json:"name"`
	Input      string `json:"input"`
	Output     string `json:"output"`
	DurationMS int64  `json:"durationMs"`
	Failed     bool   `json:"failed,omitempty"`
}

// ResultPreview is the compact form of a retrieval result kept in traces.
type ResultPreview struct {
	DocumentName string  `json:"documentName"`
	Preview      string  `json:"preview"`
	Score        float64 `json:"score"`
}

// ExecutionTrace is the per-query audit record. It is ephemeral to the
// request; persistence is best-effort and not part of the query contract.
type ExecutionTrace struct {
	ID        string `json:"id"`
	KBID      string `json:"kbId"`
	SessionID string `json:"sessionId,omitempty"`

	Question         string          `json:"question"`
	Intent           Intent          `json:"intent"`
	PreSearchQuery   string          `json:"preSearchQuery,omitempty"`
	PreSearchResults []ResultPreview `json:"preSearchResults,omitempty"`
	ToolCalls        []ToolCall      `json:"toolCalls,omitempty"`
	Thoughts         []string        `json:"thoughts,omitempty"`
	Answer           string          `json:"answer"`

	// Annotations records degradations hit along the way, e.g. a dropped
	// keyword signal or a graph fallback.
	Annotations []string `json:"annotations,omitempty"`

	Steps     int           `json:"steps"`
	Retries   int           `json:"retries"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewExecutionTrace starts the audit record for one query.
func NewExecutionTrace(kbID, sessionID, question string) *ExecutionTrace {
	return &ExecutionTrace{
		ID:        uuid.NewString(),
		KBID:      kbID,
		SessionID: sessionID,
		Question:  question,
		CreatedAt: time.Now().UTC(),
	}
}

// Annotate appends a degradation note.
func (t *ExecutionTrace) Annotate(note string) {
	t.Annotations = append(t.Annotations, note)
}
