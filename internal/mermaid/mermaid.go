// Package mermaid handles the tagged diagram blocks that flow between the
// diagram tool, the trace parser and the quality pre-check.
package mermaid

import (
	"regexp"
	"strings"
)

// Tags delimiting a finished diagram in an answer.
const (
	OpenTag  = "[MERMAID_DIAGRAM]"
	CloseTag = "[/MERMAID_DIAGRAM]"
)

var (
	bareStartRe = regexp.MustCompile(`(?m)^\s*(flowchart\s+(TD|LR|TB|RL|BT)|sequenceDiagram|graph\s+(TD|LR|TB|RL|BT)|classDiagram|stateDiagram(-v2)?|erDiagram|pie|gantt)\b`)
	fenceRe     = regexp.MustCompile("(?s)```(?:mermaid)?\\s*(.*?)```")
)

// ExtractBlock returns the first complete tagged block, tags included,
// and whether one was found.
func ExtractBlock(s string) (string, bool) {
	start := strings.Index(s, OpenTag)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(OpenTag):]
	end := strings.Index(rest, CloseTag)
	if end < 0 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", false
	}
	return OpenTag + "\n" + body + "\n" + CloseTag, true
}

// HasOpenTag reports an opening tag without its close.
func HasOpenTag(s string) bool {
	return strings.Contains(s, OpenTag) && !strings.Contains(s, CloseTag)
}

// DetectBare finds an untagged diagram body: either a fenced mermaid code
// block or a line starting with a known diagram keyword.
func DetectBare(s string) (string, bool) {
	if strings.Contains(s, OpenTag) {
		return "", false
	}
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		body := strings.TrimSpace(m[1])
		if bareStartRe.MatchString(body) {
			return body, true
		}
	}
	if loc := bareStartRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[0]:]), true
	}
	return "", false
}

// Wrap tags a bare diagram body.
func Wrap(body string) string {
	return OpenTag + "\n" + strings.TrimSpace(body) + "\n" + CloseTag
}

// Clean strips markdown fences and prose the model wrapped around the
// diagram source, leaving bare mermaid text.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(s, "mermaid\n")

	// Drop prose lines ahead of the first diagram keyword.
	if loc := bareStartRe.FindStringIndex(s); loc != nil && loc[0] > 0 {
		s = s[loc[0]:]
	}
	return strings.TrimSpace(s)
}

// Normalize enforces the tagged format on an answer that should carry a
// diagram: complete blocks pass through, bare diagrams get wrapped, an
// unclosed tag gets closed.
func Normalize(answer string) string {
	if block, ok := ExtractBlock(answer); ok {
		return block
	}
	if HasOpenTag(answer) {
		trimmed := strings.TrimSpace(answer)
		return trimmed + "\n" + CloseTag
	}
	if body, ok := DetectBare(answer); ok {
		return Wrap(body)
	}
	return answer
}

// IsWellFormed reports a single complete block with a non-empty body.
func IsWellFormed(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	if !strings.HasPrefix(trimmed, OpenTag) || !strings.HasSuffix(trimmed, CloseTag) {
		return false
	}
	_, ok := ExtractBlock(trimmed)
	return ok
}
