package agent

import (
	"fmt"
	"strings"

	"ragcore/internal/domain"
)

const systemPromptTemplate = `You are a knowledge assistant that answers questions using the tools below. Ground every claim in tool observations; do not invent facts.

Available tools:
%s
Follow this format exactly:

Thought: reason about what to do next
Action: <tool name>
Action Input: <JSON object for the tool>
Observation: <tool result, provided to you>
... (repeat Thought/Action/Action Input/Observation as needed)
Answer: <final answer to the user>

Rules:
- Use one Action at a time and wait for its Observation.
- Never write an Observation yourself.
- If the knowledge base has no answer, say so instead of guessing.
- Answer in the language the question was asked in.
- For diagrams, wrap the Mermaid source in [MERMAID_DIAGRAM] and [/MERMAID_DIAGRAM] tags.`

const diagramReminder = `Before calling generate_diagram you MUST first gather material with deep_search or summarize_topic, then pass what you learned in the description.`

// SystemPrompt renders the loop's system message from the tool catalog.
func SystemPrompt(catalog string) string {
	return fmt.Sprintf(systemPromptTemplate, catalog)
}

// EnrichMessage prefixes the user question with the structured sections
// the loop expects: retrieval context, intent hints, then the question.
func EnrichMessage(contextText string, intent domain.Intent, question string) string {
	var b strings.Builder

	b.WriteString("## Retrieval Context\n")
	if strings.TrimSpace(contextText) != "" {
		b.WriteString(strings.TrimSpace(contextText))
	} else {
		b.WriteString("(no context retrieved)")
	}
	b.WriteString("\n\n")

	if intent.SuggestedTool != "" {
		b.WriteString("## Intent Hints\n")
		fmt.Fprintf(&b, "Detected intent: %s. Consider starting with the %s tool.\n\n", intent.Tag, intent.SuggestedTool)
	}

	b.WriteString("## Question\n")
	b.WriteString(strings.TrimSpace(question))

	if intent.IsDiagram() {
		b.WriteString("\n\n")
		b.WriteString(diagramReminder)
	}
	return b.String()
}

// historyWindow clips history to the last n turns for the prompt.
func historyWindow(history []domain.ChatMessage, n int) []domain.ChatMessage {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
