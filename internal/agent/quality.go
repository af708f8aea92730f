package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	"ragcore/internal/llm"
	"ragcore/internal/mermaid"
	"ragcore/internal/observability"
	"ragcore/internal/tools"
)

const judgePrompt = `You are reviewing an assistant's answer before it is shown to the user.

Question:
%s

Answer:
%s

Reject the answer if any of these hold:
1. It is off-topic for the question.
2. It carries no substantive information (empty, evasive, or pure boilerplate).
3. %s
4. If it enumerates a procedure, the step order is causally inconsistent.

Respond with ONLY a JSON object: {"pass": true/false, "reason": "short explanation"}`

const diagramRule = `It does not contain a complete [MERMAID_DIAGRAM]...[/MERMAID_DIAGRAM] block (this answer must be a diagram).`
const noDiagramRule = `(not applicable: no diagram was requested)`

const retryPrompt = `Your previous answer was rejected: %s

Answer the original question again and fix that problem.

Original question:
%s

Use ONLY the context below and the knowledge base tools. Do NOT use web_search or fetch_webpage.

Context:
%s`

// Verdict is the judge's decision.
type Verdict struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason"`
}

// Judge asks one LLM whether an answer is fit to return.
type Judge struct {
	client llm.Client
	logger *zap.Logger
}

// NewJudge creates the answer reviewer.
func NewJudge(client llm.Client, logger *zap.Logger) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{client: client, logger: logger}
}

// Review returns the judge's verdict. A diagram answer missing its block
// fails locally without spending an LLM call; an unreachable or
// incoherent judge passes the answer rather than blocking it.
func (j *Judge) Review(ctx context.Context, question, answer string, isDiagram bool) Verdict {
	if isDiagram && !mermaid.IsWellFormed(answer) {
		return Verdict{Pass: false, Reason: "the answer must contain a complete [MERMAID_DIAGRAM] block"}
	}

	rule := noDiagramRule
	if isDiagram {
		rule = diagramRule
	}
	prompt := fmt.Sprintf(judgePrompt, question, answer, rule)

	raw, err := j.client.Complete(ctx, prompt, llm.Options{Temperature: 0, JSONMode: true})
	if err != nil {
		j.logger.Warn("quality judge unavailable, accepting answer", zap.Error(err))
		return Verdict{Pass: true, Reason: "judge unavailable"}
	}

	var v Verdict
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &v); err != nil {
		j.logger.Warn("quality judge returned malformed verdict, accepting answer",
			zap.String("raw", raw),
			zap.Error(err))
		return Verdict{Pass: true, Reason: "verdict unparseable"}
	}
	return v
}

// Reviewed is the controller's final word on one query.
type Reviewed struct {
	Answer   string
	Retries  int
	Accepted bool
	Reason   string
	Agent    *Result
}

// Controller runs the agent, judges the answer, and retries with the
// failure reason until the answer passes, the budget runs out, or the
// length fallback accepts it.
type Controller struct {
	agent   *Agent
	judge   *Judge
	cfg     config.Agent
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewController wires the quality retry controller.
func NewController(agent *Agent, judge *Judge, cfg config.Agent, logger *zap.Logger, metrics *observability.Collector) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		agent:   agent,
		judge:   judge,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// ReviewRequest is one judged agent run.
type ReviewRequest struct {
	Question string
	Context  string
	Intent   domain.Intent
	History  []domain.ChatMessage
	ToolCtx  *tools.ToolContext
}

// Execute runs the loop with quality control. The error return carries
// only first-attempt transport failures; retry failures degrade to the
// best answer seen so far.
func (c *Controller) Execute(ctx context.Context, req ReviewRequest) (*Reviewed, error) {
	isDiagram := req.Intent.IsDiagram()

	agentRes, err := c.agent.Chat(ctx, Request{
		Enriched: EnrichMessage(req.Context, req.Intent, req.Question),
		History:  req.History,
		ToolCtx:  req.ToolCtx,
	})
	if err != nil {
		return nil, err
	}

	answer := c.normalize(agentRes.Answer, isDiagram)
	verdict := c.judgeAnswer(ctx, req, answer, isDiagram)
	reviewed := &Reviewed{Answer: answer, Agent: agentRes, Accepted: verdict.Pass, Reason: verdict.Reason}

	for retry := 1; !reviewed.Accepted && retry <= c.cfg.MaxRetries; retry++ {
		reviewed.Retries = retry
		if c.metrics != nil {
			c.metrics.QualityRetries.Inc()
		}
		c.logger.Info("answer rejected, retrying",
			zap.Int("retry", retry),
			zap.String("reason", reviewed.Reason))

		retryCtx, cancel := context.WithTimeout(ctx, c.retryTimeout())
		res, err := c.agent.Chat(retryCtx, Request{
			Enriched: fmt.Sprintf(retryPrompt, reviewed.Reason, req.Question, c.contextOrNone(req.Context)),
			History:  req.History,
			ToolCtx:  req.ToolCtx,
		})
		cancel()
		if err != nil {
			c.logger.Warn("retry attempt failed, keeping previous answer", zap.Error(err))
			break
		}

		candidate := c.normalize(res.Answer, isDiagram)
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		reviewed.Agent = res
		reviewed.Answer = candidate
		verdict = c.judgeAnswer(ctx, req, candidate, isDiagram)
		reviewed.Accepted = verdict.Pass
		reviewed.Reason = verdict.Reason
	}

	// Length fallback: a substantial answer beats an empty refusal.
	if !reviewed.Accepted && len([]rune(strings.TrimSpace(reviewed.Answer))) >= c.minAnswerChars() {
		c.logger.Info("accepting answer by length fallback",
			zap.Int("chars", len([]rune(reviewed.Answer))))
		reviewed.Accepted = true
		reviewed.Reason = "length fallback"
	}

	// Last line of defense before the answer leaves the pipeline.
	reviewed.Answer = c.normalize(reviewed.Answer, isDiagram)
	return reviewed, nil
}

func (c *Controller) judgeAnswer(ctx context.Context, req ReviewRequest, answer string, isDiagram bool) Verdict {
	if strings.TrimSpace(answer) == "" {
		return Verdict{Pass: false, Reason: "the answer is empty"}
	}
	return c.judge.Review(ctx, req.Question, answer, isDiagram)
}

// normalize applies the diagram pre/post-check.
func (c *Controller) normalize(answer string, isDiagram bool) string {
	if !isDiagram {
		return answer
	}
	return mermaid.Normalize(answer)
}

func (c *Controller) contextOrNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no context retrieved)"
	}
	return s
}

func (c *Controller) retryTimeout() time.Duration {
	if c.cfg.RetryTimeout > 0 {
		return c.cfg.RetryTimeout
	}
	return 30 * time.Second
}

func (c *Controller) minAnswerChars() int {
	if c.cfg.MinAnswerChars > 0 {
		return c.cfg.MinAnswerChars
	}
	return 100
}
