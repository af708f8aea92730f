// Package evaluation runs question sets against a knowledge base and
// scores every answer with four LLM judges. Runs and per-question
// results are persisted so a client that lost its stream can refetch
// the full state later.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/llm"
)

// =============================================================================
// Judge prompts
// =============================================================================

const retrievalJudgePrompt = `You are grading the retrieval stage of a knowledge-base assistant.

Question:
%s

Retrieved evidence:
%s

Tools called: %s

Score 0-5 how well the retrieved evidence covers what the question needs:
5 = the evidence fully answers the question, 3 = partial coverage, 0 = nothing relevant was retrieved.

Respond with ONLY a JSON object: {"score": 0-5, "reason": "short explanation"}`

const faithfulnessJudgePrompt = `You are grading whether an assistant's answer stays inside its evidence.

Answer:
%s

Retrieved evidence:
%s

Tools called: %s

Score 0-5 how faithfully the answer is grounded in the evidence:
5 = every claim is supported, 3 = minor unsupported additions, 0 = the answer ignores or contradicts the evidence.

Respond with ONLY a JSON object: {"score": 0-5, "reason": "short explanation"}`

const qualityJudgePrompt = `You are grading the overall quality of an assistant's answer.

Question:
%s

Answer:
%s

Score 0-5 across four dimensions: correctness, completeness, clarity, relevance.
5 = excellent on all four, 3 = adequate with visible gaps, 0 = useless.

Respond with ONLY a JSON object: {"score": 0-5, "reason": "short explanation"}`

const toolJudgePrompt = `You are grading an assistant's tool selection for a question.

Question:
%s

Tools called (in order): %s

Expected tools: %s
Expected intent: %s

Score 0-5 whether the calls fit the question:
5 = exactly the right tools in a sensible order, 3 = workable but wasteful or incomplete, 0 = wrong tools for the question.

Respond with ONLY a JSON object: {"score": 0-5, "reason": "short explanation"}`

// Evidence beyond this length is clipped before prompting; judges grade
// coverage, not volume.
const maxEvidenceChars = 6000

// =============================================================================
// Judges
// =============================================================================

// Subject is everything the four judges look at for one evaluated question.
type Subject struct {
	Question       string
	Answer         string
	Evidence       string
	ToolsCalled    []string
	ExpectedTools  []string
	ExpectedIntent string
}

// Scores holds the four verdicts. Each judge writes only its own slot.
type Scores struct {
	Retrieval    domain.JudgeScore
	Faithfulness domain.JudgeScore
	Quality      domain.JudgeScore
	Tool         domain.JudgeScore
}

// Judges scores evaluated answers. Unlike the in-query answer reviewer,
// a judge failure here is an error: a fabricated score would corrupt
// the run, so the caller marks the run failed instead.
type Judges struct {
	client llm.Client
	logger *zap.Logger
}

// NewJudges creates the scoring panel.
func NewJudges(client llm.Client, logger *zap.Logger) *Judges {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judges{client: client, logger: logger}
}

// ScoreAll dispatches the four judges in parallel and collects their
// verdicts. The first judge error cancels the rest.
func (j *Judges) ScoreAll(ctx context.Context, s Subject) (Scores, error) {
	var scores Scores
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		scores.Retrieval, err = j.Retrieval(gctx, s)
		return err
	})
	g.Go(func() error {
		var err error
		scores.Faithfulness, err = j.Faithfulness(gctx, s)
		return err
	})
	g.Go(func() error {
		var err error
		scores.Quality, err = j.Quality(gctx, s)
		return err
	})
	g.Go(func() error {
		var err error
		scores.Tool, err = j.Tool(gctx, s)
		return err
	})
	if err := g.Wait(); err != nil {
		return Scores{}, err
	}
	return scores, nil
}

// Retrieval grades evidence coverage. Questions answered through the
// live web or the clock never touched the indexes, so they score a
// flat 5; a question that retrieved nothing and called nothing scores 0.
func (j *Judges) Retrieval(ctx context.Context, s Subject) (domain.JudgeScore, error) {
	if score, ok := liveShortcut(s.ToolsCalled); ok {
		return score, nil
	}
	if strings.TrimSpace(s.Evidence) == "" && len(s.ToolsCalled) == 0 {
		return domain.JudgeScore{Score: 0, Reason: "no retrieval was performed"}, nil
	}
	prompt := fmt.Sprintf(retrievalJudgePrompt, s.Question, clipEvidence(s.Evidence), toolList(s.ToolsCalled))
	return j.ask(ctx, "retrieval", prompt)
}

// Faithfulness grades grounding, with the same web/datetime shortcuts
// as Retrieval.
func (j *Judges) Faithfulness(ctx context.Context, s Subject) (domain.JudgeScore, error) {
	if score, ok := liveShortcut(s.ToolsCalled); ok {
		return score, nil
	}
	if strings.TrimSpace(s.Evidence) == "" && len(s.ToolsCalled) == 0 {
		return domain.JudgeScore{Score: 0, Reason: "no evidence to ground the answer"}, nil
	}
	prompt := fmt.Sprintf(faithfulnessJudgePrompt, s.Answer, clipEvidence(s.Evidence), toolList(s.ToolsCalled))
	return j.ask(ctx, "faithfulness", prompt)
}

// Quality grades the answer on correctness, completeness, clarity and
// relevance.
func (j *Judges) Quality(ctx context.Context, s Subject) (domain.JudgeScore, error) {
	prompt := fmt.Sprintf(qualityJudgePrompt, s.Question, s.Answer)
	return j.ask(ctx, "quality", prompt)
}

// Tool grades tool selection. A question that expected tools but called
// none scores 0 without spending an LLM call.
func (j *Judges) Tool(ctx context.Context, s Subject) (domain.JudgeScore, error) {
	if len(s.ExpectedTools) > 0 && len(s.ToolsCalled) == 0 {
		return domain.JudgeScore{Score: 0, Reason: "a required tool was never called"}, nil
	}
	prompt := fmt.Sprintf(toolJudgePrompt,
		s.Question,
		toolList(s.ToolsCalled),
		expectedList(s.ExpectedTools),
		expectedText(s.ExpectedIntent))
	return j.ask(ctx, "tool", prompt)
}

func (j *Judges) ask(ctx context.Context, judge, prompt string) (domain.JudgeScore, error) {
	raw, err := j.client.Complete(ctx, prompt, llm.Options{Temperature: 0, JSONMode: true})
	if err != nil {
		return domain.JudgeScore{}, apperrors.Wrap(err, "evaluation."+judge)
	}
	var score domain.JudgeScore
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &score); err != nil {
		j.logger.Warn("judge returned malformed verdict",
			zap.String("judge", judge),
			zap.String("raw", raw))
		return domain.JudgeScore{}, apperrors.Transient("EVAL_VERDICT", "judge "+judge+" returned malformed verdict", err)
	}
	if score.Score < 0 {
		score.Score = 0
	}
	if score.Score > 5 {
		score.Score = 5
	}
	return score, nil
}

// =============================================================================
// Shortcut rules
// =============================================================================

var webTools = map[string]bool{
	"web_search":    true,
	"fetch_webpage": true,
}

// liveShortcut detects questions answered from outside the knowledge
// base. Web answers score 5 "answered via web"; a pure datetime answer
// scores 5 as well since the indexes were rightly never consulted.
func liveShortcut(tools []string) (domain.JudgeScore, bool) {
	datetimeOnly := len(tools) > 0
	for _, t := range tools {
		if webTools[t] {
			return domain.JudgeScore{Score: 5, Reason: "answered via web"}, true
		}
		if t != "get_current_datetime" {
			datetimeOnly = false
		}
	}
	if datetimeOnly {
		return domain.JudgeScore{Score: 5, Reason: "answered via live datetime"}, true
	}
	return domain.JudgeScore{}, false
}

func toolList(tools []string) string {
	if len(tools) == 0 {
		return "(none)"
	}
	return strings.Join(tools, ", ")
}

func expectedList(tools []string) string {
	if len(tools) == 0 {
		return "(not specified)"
	}
	return strings.Join(tools, ", ")
}

func expectedText(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not specified)"
	}
	return s
}

func clipEvidence(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	runes := []rune(s)
	if len(runes) <= maxEvidenceChars {
		return s
	}
	return string(runes[:maxEvidenceChars]) + "..."
}
