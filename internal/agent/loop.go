package agent

import (
	"context"

	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/llm"
	"ragcore/internal/observability"
	"ragcore/internal/tools"
)

// Outcome labels how a loop run terminated.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeStepsExhausted Outcome = "steps_exhausted"
	OutcomeHardStop       Outcome = "hard_stop"
	OutcomeTimeout        Outcome = "timeout"
)

// state is the driver's position in the ReAct cycle.
type state int

const (
	stateAwaitingLLM state = iota
	stateDispatching
	stateObserving
	stateEmitting
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateAwaitingLLM:
		return "awaiting_llm"
	case stateDispatching:
		return "dispatching_tool"
	case stateObserving:
		return "observing"
	case stateEmitting:
		return "emitting_answer"
	default:
		return "failed"
	}
}

// Agent drives the ReAct loop against the tool registry.
type Agent struct {
	client   llm.Client
	registry *tools.Registry
	cfg      config.Agent
	logger   *zap.Logger
	metrics  *observability.Collector
}

// New creates the loop driver.
func New(client llm.Client, registry *tools.Registry, cfg config.Agent, logger *zap.Logger, metrics *observability.Collector) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		client:   client,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Request is one loop invocation. The enriched message already carries the
// retrieval context and intent hints.
type Request struct {
	Enriched string
	History  []domain.ChatMessage
	ToolCtx  *tools.ToolContext
}

// Result is the loop's terminal output. Tool calls live in the shared tool
// context, not here.
type Result struct {
	Answer   string
	Outcome  Outcome
	Steps    int
	Thoughts []string
}

// run carries the mutable loop state between transitions.
type run struct {
	messages    []llm.Message
	response    string
	parsed      Parsed
	observation string

	lastAnswer string
	answer     string
	thoughts   []string
	seen       map[string]struct{}

	steps    int
	maxSteps int
	nudged   bool

	failOutcome Outcome
	err         error
}

func (r *run) result(outcome Outcome) *Result {
	return &Result{
		Answer:   r.answer,
		Outcome:  outcome,
		Steps:    r.steps,
		Thoughts: r.thoughts,
	}
}

// Chat runs the loop to termination. The error return is reserved for
// provider failures that outlast the retry; steps exhausted, hard stops and
// timeouts come back as outcomes with whatever answer was salvaged.
func (a *Agent) Chat(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		messages: a.seed(req),
		seen:     make(map[string]struct{}),
		maxSteps: a.maxSteps(),
	}

	st := stateAwaitingLLM
	for {
		switch st {
		case stateAwaitingLLM:
			st = a.await(ctx, r)
		case stateDispatching:
			st = a.dispatch(ctx, r, req.ToolCtx)
		case stateObserving:
			st = a.observe(r)
		case stateEmitting:
			a.observeSteps(r.steps)
			return r.result(OutcomeAnswered), nil
		case stateFailed:
			if r.err != nil {
				return nil, r.err
			}
			a.observeSteps(r.steps)
			r.answer = r.lastAnswer
			a.logger.Warn("agent loop failed closed",
				zap.String("outcome", string(r.failOutcome)),
				zap.Int("steps", r.steps))
			return r.result(r.failOutcome), nil
		}
	}
}

// await asks the LLM for the next emission and classifies it.
func (a *Agent) await(ctx context.Context, r *run) state {
	if r.steps >= r.maxSteps {
		r.failOutcome = OutcomeStepsExhausted
		return stateFailed
	}
	if ctx.Err() != nil {
		r.failOutcome = OutcomeTimeout
		return stateFailed
	}
	r.steps++

	response, err := a.complete(ctx, r.messages)
	if err != nil {
		if ctx.Err() != nil {
			r.failOutcome = OutcomeTimeout
			return stateFailed
		}
		r.err = err
		return stateFailed
	}
	r.response = response
	r.parsed = ParseResponse(response)
	a.mergeThoughts(r)

	switch {
	case r.parsed.HasAnswer && !r.parsed.HasAction:
		r.answer = r.parsed.Answer
		return stateEmitting
	case !r.parsed.HasAction:
		// Emission matched no grammar at all. Correct once, then accept
		// the prose as the answer rather than spinning.
		if r.nudged {
			r.answer = CleanAnswer(response)
			return stateEmitting
		}
		r.nudged = true
		r.messages = append(r.messages,
			llm.Message{Role: llm.RoleAssistant, Content: response},
			llm.Message{Role: llm.RoleUser, Content: "Continue using the exact Thought / Action / Action Input format, or finish with Answer:."},
		)
		return stateAwaitingLLM
	default:
		if r.parsed.HasAnswer {
			r.lastAnswer = r.parsed.Answer
		}
		return stateDispatching
	}
}

// dispatch executes the parsed action against the registry.
func (a *Agent) dispatch(ctx context.Context, r *run, tc *tools.ToolContext) state {
	a.logger.Debug("dispatching tool",
		zap.String("tool", r.parsed.Action),
		zap.Int("step", r.steps))
	r.observation = a.registry.Execute(ctx, tc, r.parsed.Action, r.parsed.ActionInput)
	return stateObserving
}

// observe feeds the observation back into the transcript.
func (a *Agent) observe(r *run) state {
	r.messages = append(r.messages,
		llm.Message{Role: llm.RoleAssistant, Content: r.response},
		llm.Message{Role: llm.RoleUser, Content: "Observation: " + r.observation},
	)
	if tools.IsHardStop(r.observation) {
		r.failOutcome = OutcomeHardStop
		return stateFailed
	}
	return stateAwaitingLLM
}

// complete calls the provider with a single retry.
func (a *Agent) complete(ctx context.Context, messages []llm.Message) (string, error) {
	response, err := a.client.Chat(ctx, messages, llm.Options{})
	if err == nil {
		return response, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	a.logger.Warn("llm call failed, retrying once", zap.Error(err))
	response, err = a.client.Chat(ctx, messages, llm.Options{})
	if err != nil {
		return "", apperrors.Transient("LLM_UNAVAILABLE", "llm call failed after retry", err)
	}
	return response, nil
}

// seed builds the opening transcript: system prompt, history window,
// enriched message.
func (a *Agent) seed(req Request) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt(a.registry.Catalog())},
	}
	for _, m := range historyWindow(req.History, a.cfg.HistoryWindow) {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: req.Enriched})
}

func (a *Agent) mergeThoughts(r *run) {
	for _, t := range r.parsed.Thoughts {
		if _, dup := r.seen[t]; dup {
			continue
		}
		r.seen[t] = struct{}{}
		r.thoughts = append(r.thoughts, t)
	}
}

func (a *Agent) maxSteps() int {
	if a.cfg.MaxSteps > 0 {
		return a.cfg.MaxSteps
	}
	return 10
}

func (a *Agent) observeSteps(n int) {
	if a.metrics != nil {
		a.metrics.AgentSteps.Observe(float64(n))
	}
}
