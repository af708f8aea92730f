// Package agent drives the ReAct loop: prompting the LLM, parsing its
// emissions, dispatching tools and extracting the final answer.
package agent

import (
	"encoding/json"
	"strings"

	"ragcore/internal/mermaid"
)

// segmentKind classifies one marker-delimited span of an LLM emission.
type segmentKind int

const (
	segText segmentKind = iota
	segThought
	segAction
	segActionInput
	segObservation
	segAnswer
)

type segment struct {
	kind segmentKind
	text string
}

// markers maps the line prefixes of the ReAct grammar. Matching is
// case-insensitive and tolerates leading list or emphasis noise.
var markers = []struct {
	prefix string
	kind   segmentKind
}{
	{"action input:", segActionInput},
	{"action:", segAction},
	{"thought:", segThought},
	{"observation:", segObservation},
	{"answer:", segAnswer},
	{"final answer:", segAnswer},
}

// tokenize scans the emission line by line, accumulating text into the
// current segment until the next marker line starts a new one.
func tokenize(s string) []segment {
	var (
		out     []segment
		current = segment{kind: segText}
		flush   = func() {
			current.text = strings.TrimSpace(current.text)
			if current.kind != segText || current.text != "" {
				out = append(out, current)
			}
		}
	)

	for _, line := range strings.Split(s, "\n") {
		kind, rest, ok := matchMarker(line)
		if !ok {
			if current.text != "" {
				current.text += "\n"
			}
			current.text += line
			continue
		}
		flush()
		current = segment{kind: kind, text: rest}
	}
	flush()
	return out
}

// matchMarker tests whether a line opens a new segment, returning the
// segment kind and the text after the marker.
func matchMarker(line string) (segmentKind, string, bool) {
	trimmed := strings.TrimLeft(line, " \t>*#-")
	lower := strings.ToLower(trimmed)
	for _, m := range markers {
		if strings.HasPrefix(lower, m.prefix) {
			rest := strings.TrimLeft(trimmed[len(m.prefix):], "* ")
			return m.kind, strings.TrimSpace(rest), true
		}
	}
	return segText, "", false
}

// Parsed is the driver's view of one LLM emission.
type Parsed struct {
	Thoughts    []string
	Action      string
	ActionInput string
	HasAction   bool
	Answer      string
	HasAnswer   bool
}

// ParseResponse interprets one emission. A complete tagged diagram block
// anywhere short-circuits into a final answer; otherwise the first
// dispatchable action wins and any trailing Answer is kept as a candidate.
func ParseResponse(response string) Parsed {
	var p Parsed

	if block, ok := mermaid.ExtractBlock(response); ok {
		p.Answer = block
		p.HasAnswer = true
		p.Thoughts = collectThoughts(tokenize(response), "")
		return p
	}

	segments := tokenize(response)

	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		switch seg.kind {
		case segAction:
			if p.HasAction {
				continue
			}
			tool, inline := splitInlineInput(seg.text)
			p.Action = sanitizeToolName(tool)
			p.ActionInput = inline
			p.HasAction = p.Action != ""
			// Strict form: the input arrives in its own segment.
			if p.HasAction && inline == "" {
				for j := i + 1; j < len(segments); j++ {
					if segments[j].kind == segActionInput {
						p.ActionInput = segments[j].text
						break
					}
					if segments[j].kind == segAction || segments[j].kind == segAnswer || segments[j].kind == segObservation {
						break
					}
				}
			}
		case segAnswer:
			// Last marker wins.
			p.Answer = seg.text
			p.HasAnswer = true
		case segObservation:
			// Fabricated: real observations are appended by the driver.
		}
	}

	if p.HasAnswer {
		p.Answer = CleanAnswer(p.Answer)
		if p.Answer == "" {
			p.HasAnswer = false
		}
	}

	// A diagram emitted without any grammar markers is itself the answer.
	if !p.HasAction && !p.HasAnswer {
		if body, ok := mermaid.DetectBare(response); ok {
			p.Answer = mermaid.Wrap(body)
			p.HasAnswer = true
		}
	}

	p.Thoughts = collectThoughts(segments, p.ActionInput)
	return p
}

// collectThoughts extracts deduplicated thoughts, dropping ones that merely
// restate an action input.
func collectThoughts(segments []segment, actionInput string) []string {
	var (
		out  []string
		seen = map[string]struct{}{}
	)
	for _, seg := range segments {
		if seg.kind != segThought {
			continue
		}
		t := strings.TrimSpace(seg.text)
		if t == "" || referencesInput(t, actionInput) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// referencesInput reports a thought that only carries tool arguments.
func referencesInput(thought, actionInput string) bool {
	if strings.HasPrefix(thought, "{") && json.Valid([]byte(thought)) {
		return true
	}
	if strings.Contains(strings.ToLower(thought), "action input") {
		return true
	}
	trimmedInput := strings.TrimSpace(actionInput)
	return trimmedInput != "" && thought == trimmedInput
}

// splitInlineInput handles the loose form where the input rides on the
// action line itself.
func splitInlineInput(text string) (tool, input string) {
	text = strings.TrimSpace(text)
	for _, sep := range []string{" {", ` "`} {
		if i := strings.Index(text, sep); i > 0 {
			return text[:i], strings.TrimSpace(text[i:])
		}
	}
	return text, ""
}

// sanitizeToolName strips the decoration models wrap around tool names.
func sanitizeToolName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'*[]()")
	if i := strings.IndexAny(s, " \t("); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// CleanAnswer strips residual grammar fragments and the stray triple
// quotes models leave around final answers.
func CleanAnswer(s string) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if kind, _, ok := matchMarker(line); ok && kind != segAnswer {
			// A diagram line is content, not grammar.
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	for _, q := range []string{`"""`, "'''"} {
		out = strings.TrimPrefix(out, q)
		out = strings.TrimSuffix(out, q)
	}
	return mermaid.Normalize(strings.TrimSpace(out))
}
