package agent

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/contextbuilder"
	"ragcore/internal/domain"
	"ragcore/internal/tools"
)

// Rebuilder is the slice of the context engine the adaptive manager
// consumes.
type Rebuilder interface {
	Build(ctx context.Context, req contextbuilder.Request) *contextbuilder.Result
}

// entityRe matches capitalized name sequences in observations. It is a
// cheap stand-in for NER: good enough to notice a tool surfacing a term
// the context was not built around.
var entityRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]{2,}(?:[ -][A-Z][A-Za-z0-9]+)*\b`)

// entityStopwords are capitalized words that carry no entity signal.
var entityStopwords = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "These": {}, "Those": {},
	"What": {}, "When": {}, "Where": {}, "Which": {}, "Who": {}, "How": {}, "Why": {},
	"And": {}, "But": {}, "Not": {}, "For": {}, "With": {}, "From": {},
	"Thought": {}, "Action": {}, "Observation": {}, "Answer": {},
	"Document": {}, "Tool": {}, "Invalid": {}, "Unknown": {}, "Passages": {},
	"Web": {}, "Content": {}, "Current": {}, "Use": {}, "Check": {},
}

// Rebuild reasons reported by ShouldUpdate.
const (
	reasonToolCalls = "tool_calls"
	reasonTokens    = "observation_tokens"
	reasonEntity    = "new_entity"
	reasonFollowUp  = "follow_up"
)

// AdaptiveManager watches tool calls for one query and rebuilds the
// context string mid-loop when the conversation outgrows it. It implements
// tools.Observer.
type AdaptiveManager struct {
	engine  Rebuilder
	toolCtx *tools.ToolContext
	cfg     config.Tools
	logger  *zap.Logger

	// ctx is the query's context; the manager lives exactly as long as
	// one query, and the observer interface carries no context of its own.
	ctx context.Context

	kbID      string
	sessionID string
	userID    string
	query     string
	intent    domain.Intent
	history   []domain.ChatMessage
	followUp  bool

	mu              sync.Mutex
	entities        map[string]struct{}
	newEntity       string
	callsSinceBuild int
	obsTokens       int
	rebuilds        int
}

// AdaptiveParams seeds the manager for one query.
type AdaptiveParams struct {
	KBID      string
	SessionID string
	UserID    string
	Query     string
	Intent    domain.Intent
	History   []domain.ChatMessage
	FollowUp  bool
	Initial   string
}

// NewAdaptiveManager attaches a manager to the query's tool context.
func NewAdaptiveManager(
	ctx context.Context,
	engine Rebuilder,
	toolCtx *tools.ToolContext,
	cfg config.Tools,
	params AdaptiveParams,
	logger *zap.Logger,
) *AdaptiveManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &AdaptiveManager{
		engine:    engine,
		toolCtx:   toolCtx,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		kbID:      params.KBID,
		sessionID: params.SessionID,
		userID:    params.UserID,
		query:     params.Query,
		intent:    params.Intent,
		history:   params.History,
		followUp:  params.FollowUp,
		entities:  make(map[string]struct{}),
	}
	// Entities already present in the initial context are not "new".
	m.absorb(params.Initial)
	m.absorb(params.Query)
	toolCtx.SetContextText(params.Initial)
	toolCtx.SetObserver(m)
	return m
}

// AfterCall records one tool call and rebuilds the context if a trigger
// fires. Runs on the tool dispatch path, after the call is logged.
func (m *AdaptiveManager) AfterCall(name, input, output string) {
	m.mu.Lock()
	m.callsSinceBuild++
	m.obsTokens += contextbuilder.EstimateTokens(output)
	if m.newEntity == "" {
		m.newEntity = m.firstUnseen(output)
	}
	m.mu.Unlock()

	should, reason := m.ShouldUpdate()
	if !should {
		return
	}
	m.logger.Debug("adaptive context rebuild",
		zap.String("reason", reason),
		zap.String("tool", name))
	m.UpdateContext()
}

// ShouldUpdate reports whether a rebuild trigger fired and which one.
func (m *AdaptiveManager) ShouldUpdate() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.followUp && m.rebuilds == 0 && m.callsSinceBuild >= 1:
		return true, reasonFollowUp
	case m.cfg.AdaptiveMaxCalls > 0 && m.callsSinceBuild >= m.cfg.AdaptiveMaxCalls:
		return true, reasonToolCalls
	case m.cfg.AdaptiveTokenBudget > 0 && m.obsTokens > m.cfg.AdaptiveTokenBudget:
		return true, reasonTokens
	case m.newEntity != "":
		return true, reasonEntity
	}
	return false, ""
}

// UpdateContext rebuilds the context string and writes it into the shared
// tool context, then resets the trigger counters.
func (m *AdaptiveManager) UpdateContext() {
	res := m.engine.Build(m.ctx, contextbuilder.Request{
		KBID:      m.kbID,
		SessionID: m.sessionID,
		UserID:    m.userID,
		Query:     m.rebuildQuery(),
		History:   m.history,
		Intent:    &m.intent,
	})
	m.toolCtx.SetContextText(res.Context)

	m.mu.Lock()
	m.callsSinceBuild = 0
	m.obsTokens = 0
	m.newEntity = ""
	m.rebuilds++
	m.mu.Unlock()
}

// Rebuilds returns how many times the context was replaced.
func (m *AdaptiveManager) Rebuilds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuilds
}

// rebuildQuery biases the rebuild toward the newest entity so retrieval
// shifts with the conversation.
func (m *AdaptiveManager) rebuildQuery() string {
	m.mu.Lock()
	entity := m.newEntity
	m.mu.Unlock()
	if entity == "" {
		return m.query
	}
	return m.query + " " + entity
}

// absorb registers every entity in s as already seen.
func (m *AdaptiveManager) absorb(s string) {
	for _, e := range extractEntities(s) {
		m.entities[e] = struct{}{}
	}
}

// firstUnseen returns the first entity in s the manager has not seen,
// registering everything it finds. Caller holds the lock.
func (m *AdaptiveManager) firstUnseen(s string) string {
	first := ""
	for _, e := range extractEntities(s) {
		if _, seen := m.entities[e]; !seen && first == "" {
			first = e
		}
		m.entities[e] = struct{}{}
	}
	return first
}

func extractEntities(s string) []string {
	var out []string
	for _, match := range entityRe.FindAllString(s, -1) {
		if allStopwords(match) {
			continue
		}
		out = append(out, strings.TrimSpace(match))
	}
	return out
}

// allStopwords reports a match made only of capitalized filler, e.g. a
// sentence start chaining into a question word.
func allStopwords(match string) bool {
	for _, w := range strings.FieldsFunc(match, func(r rune) bool { return r == ' ' || r == '-' }) {
		if _, stop := entityStopwords[w]; !stop {
			return false
		}
	}
	return true
}
