// Package service orchestrates the query pipeline end to end: intent,
// context, agent, quality review, persistence. It is the surface the HTTP
// handlers, the CLI and the evaluation harness all sit on.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragcore/internal/agent"
	"ragcore/internal/config"
	"ragcore/internal/contextbuilder"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/evaluation"
	"ragcore/internal/intent"
	"ragcore/internal/llm"
	"ragcore/internal/memory"
	"ragcore/internal/observability"
	"ragcore/internal/repository"
	"ragcore/internal/tools"
)

// Pipeline stages reported to the progress callback. The transport layer
// maps them onto status events.
const (
	StageIntent  = "analyzing_intent"
	StageContext = "building_context"
	StageAgent   = "running_agent"
	StagePersist = "persisting"
)

const directReplyPrompt = `You are a friendly knowledge-base assistant. Reply briefly and naturally to the user's message. Answer in the user's language. Do not invent knowledge-base content.`

// previewChars bounds each pre-search preview kept in the trace.
const previewChars = 200

// maxEvidenceEntries bounds the evidence string handed to the judges.
const maxEvidenceEntries = 12

// StageFunc receives pipeline stage transitions. nil means no reporting.
type StageFunc func(stage string)

// QueryRequest is one question against a knowledge base. History is
// optional; when SessionID is set and History is empty, recent turns are
// loaded server-side.
type QueryRequest struct {
	KBID      string
	SessionID string
	UserID    string
	Question  string
	History   []domain.ChatMessage
}

// Outcome bundles what one query produced: the audit trace and the
// retrieval results accumulated across pre-search and tool calls.
type Outcome struct {
	Trace   *domain.ExecutionTrace
	Results []domain.RetrievalResult
}

// QueryService runs the pipeline. Chat persistence failures never fail a
// query; trace persistence and memory extraction run detached.
type QueryService struct {
	kbs      repository.KnowledgeBases
	chats    repository.ChatStore
	traces   repository.Traces
	memories *memory.Service

	analyzer   *intent.Analyzer
	engine     *contextbuilder.Engine
	controller *agent.Controller
	client     llm.Client

	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Collector

	background sync.WaitGroup
}

// NewQueryService wires the pipeline.
func NewQueryService(
	kbs repository.KnowledgeBases,
	chats repository.ChatStore,
	traces repository.Traces,
	memories *memory.Service,
	analyzer *intent.Analyzer,
	engine *contextbuilder.Engine,
	controller *agent.Controller,
	client llm.Client,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		kbs:        kbs,
		chats:      chats,
		traces:     traces,
		memories:   memories,
		analyzer:   analyzer,
		engine:     engine,
		controller: controller,
		client:     client,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// Query answers one question. The returned trace always carries the final
// answer string, the intent, and the ordered tool-call log.
func (s *QueryService) Query(ctx context.Context, req QueryRequest, onStage StageFunc) (*Outcome, error) {
	started := time.Now()

	if strings.TrimSpace(req.Question) == "" {
		return nil, apperrors.Validation("QUERY_EMPTY", "question must not be empty")
	}
	if _, err := s.kbs.Get(ctx, req.KBID); err != nil {
		return nil, apperrors.Wrap(err, "service.query")
	}

	history := req.History
	if req.SessionID != "" {
		s.ensureSession(ctx, req)
		if len(history) == 0 {
			history = s.loadHistory(ctx, req.SessionID)
		}
	}

	s.emit(onStage, StageIntent)
	queryIntent := s.analyzer.Analyze(ctx, req.Question, history)

	trace := domain.NewExecutionTrace(req.KBID, req.SessionID, req.Question)
	trace.Intent = queryIntent

	var outcome *Outcome
	var err error
	if queryIntent.ShouldSkipAgent() {
		outcome, err = s.replyDirectly(ctx, req, history, trace)
	} else {
		outcome, err = s.runAgent(ctx, req, queryIntent, history, trace, onStage)
	}
	if err != nil {
		s.observeQuery(queryIntent, "error", started, 0)
		return nil, err
	}

	trace.Duration = time.Since(started)

	s.emit(onStage, StagePersist)
	s.persistTurns(ctx, req, trace.Answer)
	s.finishAsync(ctx, req, trace)

	s.observeQuery(queryIntent, "ok", started, trace.Steps)
	s.logger.Info("query answered",
		zap.String("kbId", req.KBID),
		zap.String("intent", string(queryIntent.Tag)),
		zap.Int("steps", trace.Steps),
		zap.Int("toolCalls", len(trace.ToolCalls)),
		zap.Duration("duration", trace.Duration))
	return outcome, nil
}

// Answer runs the pipeline for the evaluation harness: no session, the
// evidence string built from everything retrieval surfaced.
func (s *QueryService) Answer(ctx context.Context, kbID, question string) (*evaluation.Answered, error) {
	outcome, err := s.Query(ctx, QueryRequest{KBID: kbID, Question: question}, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(outcome.Trace.ToolCalls))
	for _, call := range outcome.Trace.ToolCalls {
		names = append(names, call.Name)
	}
	return &evaluation.Answered{
		Answer:      outcome.Trace.Answer,
		Evidence:    formatEvidence(outcome.Results),
		ToolsCalled: names,
	}, nil
}

// Drain waits for detached trace and memory work. Called on shutdown and
// by tests that assert on async side effects.
func (s *QueryService) Drain() {
	s.background.Wait()
}

// replyDirectly answers greetings and small talk without the agent loop.
func (s *QueryService) replyDirectly(ctx context.Context, req QueryRequest, history []domain.ChatMessage, trace *domain.ExecutionTrace) (*Outcome, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: directReplyPrompt}}
	messages = append(messages, chatMessages(history, 4)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Question})

	answer, err := s.client.Chat(ctx, messages, llm.Options{Temperature: 0.7})
	if err != nil {
		return nil, apperrors.Wrap(err, "service.direct_reply")
	}
	trace.Answer = strings.TrimSpace(answer)
	return &Outcome{Trace: trace}, nil
}

// runAgent is the full path: context build, adaptive manager, agent loop
// under the quality controller.
func (s *QueryService) runAgent(ctx context.Context, req QueryRequest, queryIntent domain.Intent, history []domain.ChatMessage, trace *domain.ExecutionTrace, onStage StageFunc) (*Outcome, error) {
	s.emit(onStage, StageContext)
	built := s.engine.Build(ctx, contextbuilder.Request{
		KBID:      req.KBID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Query:     req.Question,
		History:   history,
		Intent:    &queryIntent,
	})
	trace.PreSearchQuery = req.Question
	trace.PreSearchResults = previews(built.Results, 5)

	toolCtx := tools.NewToolContext(req.KBID, req.SessionID)
	adaptive := agent.NewAdaptiveManager(ctx, s.engine, toolCtx, s.cfg.Tools, agent.AdaptiveParams{
		KBID:      req.KBID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Query:     req.Question,
		Intent:    queryIntent,
		History:   history,
		FollowUp:  intent.IsFollowUp(req.Question, history),
		Initial:   built.Context,
	}, s.logger)

	s.emit(onStage, StageAgent)
	reviewed, err := s.controller.Execute(ctx, agent.ReviewRequest{
		Question: req.Question,
		Context:  built.Context,
		Intent:   queryIntent,
		History:  history,
		ToolCtx:  toolCtx,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "service.agent")
	}

	trace.Answer = reviewed.Answer
	trace.ToolCalls = toolCtx.Calls()
	trace.Thoughts = reviewed.Agent.Thoughts
	trace.Steps = reviewed.Agent.Steps
	trace.Retries = reviewed.Retries
	if rebuilds := adaptive.Rebuilds(); rebuilds > 0 {
		trace.Annotate(fmt.Sprintf("context rebuilt %d times", rebuilds))
	}
	if !reviewed.Accepted {
		trace.Annotate("answer below quality bar: " + reviewed.Reason)
	}

	results := append(built.Results, toolCtx.Results()...)
	return &Outcome{Trace: trace, Results: results}, nil
}

// ensureSession creates the session row on first contact. Failures are
// logged; the query proceeds without server-side history.
func (s *QueryService) ensureSession(ctx context.Context, req QueryRequest) {
	if _, err := s.chats.GetSession(ctx, req.SessionID); err == nil {
		return
	} else if !apperrors.IsNotFound(err) {
		s.logger.Warn("session lookup failed", zap.String("sessionId", req.SessionID), zap.Error(err))
		return
	}
	now := time.Now().UTC()
	err := s.chats.CreateSession(ctx, &domain.ChatSession{
		ID:        req.SessionID,
		KBID:      req.KBID,
		UserID:    req.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger.Warn("session create failed", zap.String("sessionId", req.SessionID), zap.Error(err))
	}
}

func (s *QueryService) loadHistory(ctx context.Context, sessionID string) []domain.ChatMessage {
	history, err := s.chats.History(ctx, sessionID, 0)
	if err != nil {
		s.logger.Warn("history load failed", zap.String("sessionId", sessionID), zap.Error(err))
		return nil
	}
	return history
}

// persistTurns appends the exchange to the session. Chat persistence is
// supplemental: failures degrade to a log line, never to a failed query.
func (s *QueryService) persistTurns(ctx context.Context, req QueryRequest, answer string) {
	if req.SessionID == "" {
		return
	}
	now := time.Now().UTC()
	turns := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: req.Question, CreatedAt: now},
		{Role: domain.RoleAssistant, Content: answer, CreatedAt: now},
	}
	for _, turn := range turns {
		if err := s.chats.AppendMessage(ctx, req.SessionID, turn); err != nil {
			s.logger.Warn("turn persist failed", zap.String("sessionId", req.SessionID), zap.Error(err))
			return
		}
	}
	if err := s.chats.TouchSession(ctx, req.SessionID, now); err != nil {
		s.logger.Warn("session touch failed", zap.String("sessionId", req.SessionID), zap.Error(err))
	}
}

// finishAsync persists the trace and extracts memories detached from the
// request lifetime, so a disconnecting client cannot cancel them.
func (s *QueryService) finishAsync(ctx context.Context, req QueryRequest, trace *domain.ExecutionTrace) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		asyncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		if s.traces != nil {
			if err := s.traces.Save(asyncCtx, trace); err != nil {
				s.logger.Warn("trace persist failed", zap.String("traceId", trace.ID), zap.Error(err))
			}
		}
		if s.memories != nil && trace.Answer != "" {
			stored, err := s.memories.ProcessExchange(asyncCtx, req.KBID, req.UserID, req.SessionID, req.Question, trace.Answer)
			if err != nil {
				s.logger.Warn("memory extraction failed", zap.String("kbId", req.KBID), zap.Error(err))
			} else if stored > 0 {
				s.logger.Debug("memories extracted", zap.String("kbId", req.KBID), zap.Int("stored", stored))
			}
		}
	}()
}

func (s *QueryService) emit(onStage StageFunc, stage string) {
	if onStage != nil {
		onStage(stage)
	}
}

func (s *QueryService) observeQuery(queryIntent domain.Intent, status string, started time.Time, steps int) {
	if s.metrics == nil {
		return
	}
	tag := string(queryIntent.Tag)
	s.metrics.QueriesTotal.WithLabelValues(tag, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(tag).Observe(time.Since(started).Seconds())
	if steps > 0 {
		s.metrics.AgentSteps.Observe(float64(steps))
	}
}

// chatMessages converts the last n history turns to provider messages.
func chatMessages(history []domain.ChatMessage, n int) []llm.Message {
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		out = append(out, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	return out
}

func previews(results []domain.RetrievalResult, n int) []domain.ResultPreview {
	if len(results) > n {
		results = results[:n]
	}
	out := make([]domain.ResultPreview, 0, len(results))
	for _, r := range results {
		out = append(out, domain.ResultPreview{
			DocumentName: r.DocumentName,
			Preview:      r.Preview(previewChars),
			Score:        r.Score,
		})
	}
	return out
}

// formatEvidence renders the retrieval results as the numbered evidence
// block the evaluation judges read. Duplicate ids collapse to their first
// occurrence.
func formatEvidence(results []domain.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	seen := make(map[string]struct{}, len(results))
	n := 0
	for _, r := range results {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		n++
		if n > maxEvidenceEntries {
			break
		}
		fmt.Fprintf(&b, "[%d] %s: %s\n", n, r.DocumentName, strings.TrimSpace(r.Content))
	}
	return strings.TrimSpace(b.String())
}
