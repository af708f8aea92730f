// Package llm abstracts the chat, completion and embedding providers behind
// small interfaces so the pipeline never binds to a concrete vendor.
package llm

import (
	"context"
	"strings"
)

// Role constants mirror the chat wire roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn handed to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures a single provider call. Zero values fall back to the
// client's configured defaults.
type Options struct {
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	// JSONMode asks the provider for a strict JSON object response.
	JSONMode bool `json:"jsonMode,omitempty"`
}

// Client is the chat/completion surface the engine depends on. The core
// never assumes token streaming for correctness.
type Client interface {
	// Complete answers a single prompt.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	// Chat answers a conversation.
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
	// IsAvailable reports whether the provider is configured and reachable.
	IsAvailable() bool
}

// Embedder turns text into the fixed-dimension vectors a KB was created with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// CleanJSON strips the markdown code fences providers wrap around JSON
// payloads, returning the bare object/array text.
func CleanJSON(response string) string {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	// Some models prefix prose before the object; cut to the first brace.
	if i := strings.IndexAny(s, "{["); i > 0 {
		s = s[i:]
	}
	return s
}
