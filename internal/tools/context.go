// Package tools implements the agent's tool registry: the canonical tool
// set, per-query shared state, and the dispatch layer that turns tool
// results and failures into observations the agent loop can consume.
package tools

import (
	"sync"
	"time"

	"ragcore/internal/domain"
)

// Observer receives every completed tool call. The adaptive context
// manager implements it to decide when the context string needs a rebuild.
type Observer interface {
	AfterCall(name, input, output string)
}

// ToolContext is the state one query's tools share: the tool-call log,
// accumulated retrieval results, and the context string carried by the
// agent prompt. Safe for concurrent use.
type ToolContext struct {
	KBID      string
	SessionID string

	mu          sync.Mutex
	calls       []domain.ToolCall
	results     []domain.RetrievalResult
	contextText string
	invalid     map[string]int
	observer    Observer
}

// NewToolContext creates the shared state for one query.
func NewToolContext(kbID, sessionID string) *ToolContext {
	return &ToolContext{
		KBID:      kbID,
		SessionID: sessionID,
		invalid:   make(map[string]int),
	}
}

// RecordCall appends one entry to the tool-call log. Steps number from 1 in
// call order; output is stored truncated.
func (tc *ToolContext) RecordCall(name, input, output string, d time.Duration, failed bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.calls = append(tc.calls, domain.ToolCall{
		Step:       len(tc.calls) + 1,
		Name:       name,
		Input:      input,
		Output:     truncate(output, maxLoggedOutput),
		DurationMS: d.Milliseconds(),
		Failed:     failed,
	})
}

// Calls returns a copy of the tool-call log.
func (tc *ToolContext) Calls() []domain.ToolCall {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]domain.ToolCall, len(tc.calls))
	copy(out, tc.calls)
	return out
}

// AddResults accumulates retrieval results surfaced by a tool.
func (tc *ToolContext) AddResults(results []domain.RetrievalResult) {
	if len(results) == 0 {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.results = append(tc.results, results...)
}

// Results returns a copy of all accumulated retrieval results.
func (tc *ToolContext) Results() []domain.RetrievalResult {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]domain.RetrievalResult, len(tc.results))
	copy(out, tc.results)
	return out
}

// ContextText returns the current context string.
func (tc *ToolContext) ContextText() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.contextText
}

// SetContextText replaces the context string. The adaptive manager calls
// this after a rebuild so later observations see the fresh context.
func (tc *ToolContext) SetContextText(s string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.contextText = s
}

// MarkInvalid increments the consecutive invalid-parameter count for a tool
// and returns the new count.
func (tc *ToolContext) MarkInvalid(name string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.invalid[name]++
	return tc.invalid[name]
}

// ResetInvalid clears the consecutive invalid-parameter count after a
// well-formed call.
func (tc *ToolContext) ResetInvalid(name string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.invalid, name)
}

// InvalidCount returns the current consecutive invalid-parameter count.
func (tc *ToolContext) InvalidCount(name string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.invalid[name]
}

// SetObserver attaches the post-call hook.
func (tc *ToolContext) SetObserver(o Observer) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.observer = o
}

func (tc *ToolContext) notify(name, input, output string) {
	tc.mu.Lock()
	o := tc.observer
	tc.mu.Unlock()
	if o != nil {
		o.AfterCall(name, input, output)
	}
}
