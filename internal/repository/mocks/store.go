// Package mocks provides in-memory implementations of the repository
// interfaces for testing services without a real database.
package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

// failures injects errors per method name. Embedded by every mock so
// failure-path tests read the same everywhere.
type failures struct {
	mu   sync.Mutex
	errs map[string]error
}

// SetError configures the mock to return err from the named method.
func (f *failures) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[method] = err
}

// ClearErrors removes all configured errors.
func (f *failures) ClearErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = nil
}

func (f *failures) fail(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

// ============================================================================
// KNOWLEDGE BASES
// ============================================================================

type KBStore struct {
	failures
	mu  sync.RWMutex
	kbs map[string]*domain.KnowledgeBase
}

func NewKBStore() *KBStore {
	return &KBStore{kbs: make(map[string]*domain.KnowledgeBase)}
}

func (s *KBStore) Create(ctx context.Context, kb *domain.KnowledgeBase) error {
	if err := s.fail("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *kb
	s.kbs[kb.ID] = &cp
	return nil
}

func (s *KBStore) Get(ctx context.Context, id string) (*domain.KnowledgeBase, error) {
	if err := s.fail("Get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	kb, ok := s.kbs[id]
	if !ok {
		return nil, apperrors.NotFound("knowledge_base", id)
	}
	cp := *kb
	return &cp, nil
}

func (s *KBStore) List(ctx context.Context) ([]domain.KnowledgeBase, error) {
	if err := s.fail("List"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.KnowledgeBase, 0, len(s.kbs))
	for _, kb := range s.kbs {
		out = append(out, *kb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *KBStore) Delete(ctx context.Context, id string) error {
	if err := s.fail("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kbs[id]; !ok {
		return apperrors.NotFound("knowledge_base", id)
	}
	delete(s.kbs, id)
	return nil
}

// ============================================================================
// DOCUMENTS
// ============================================================================

type DocumentStore struct {
	failures
	mu   sync.RWMutex
	docs map[string]*domain.Document // kbID/docID -> Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*domain.Document)}
}

func docKey(kbID, id string) string { return kbID + "/" + id }

func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if err := s.fail("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[docKey(doc.KBID, doc.ID)] = &cp
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, kbID, id string) (*domain.Document, error) {
	if err := s.fail("Get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docKey(kbID, id)]
	if !ok {
		return nil, apperrors.NotFound("document", id)
	}
	cp := *doc
	return &cp, nil
}

// FindByName matches exact name first, then substring with the newest
// match winning. Mirrors the sqlite two-pass lookup.
func (s *DocumentStore) FindByName(ctx context.Context, kbID, name string) (*domain.Document, error) {
	if err := s.fail("FindByName"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var fallback *domain.Document
	for _, doc := range s.docs {
		if doc.KBID != kbID {
			continue
		}
		if doc.Name == name {
			cp := *doc
			return &cp, nil
		}
		if strings.Contains(doc.Name, name) {
			if fallback == nil || doc.CreatedAt.After(fallback.CreatedAt) {
				fallback = doc
			}
		}
	}
	if fallback != nil {
		cp := *fallback
		return &cp, nil
	}
	return nil, apperrors.NotFound("document", name)
}

func (s *DocumentStore) List(ctx context.Context, kbID string) ([]domain.Document, error) {
	if err := s.fail("List"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Document
	for _, doc := range s.docs {
		if doc.KBID == kbID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *DocumentStore) Delete(ctx context.Context, kbID, id string) error {
	if err := s.fail("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey(kbID, id)
	if _, ok := s.docs[key]; !ok {
		return apperrors.NotFound("document", id)
	}
	delete(s.docs, key)
	return nil
}

// ============================================================================
// MEMORIES
// ============================================================================

type MemoryStore struct {
	failures
	mu       sync.RWMutex
	memories map[string]*domain.Memory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memories: make(map[string]*domain.Memory)}
}

func (s *MemoryStore) Upsert(ctx context.Context, m *domain.Memory) error {
	if err := s.fail("Upsert"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.memories[m.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Memory, error) {
	if err := s.fail("Get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, apperrors.NotFound("memory", id)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, ids []string) (map[string]domain.Memory, error) {
	if err := s.fail("GetBatch"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Memory, len(ids))
	for _, id := range ids {
		if m, ok := s.memories[id]; ok {
			out[id] = *m
		}
	}
	return out, nil
}

// Touch bumps the access counter and moves the access timestamp forward
// only, the same contract the single sqlite UPDATE keeps.
func (s *MemoryStore) Touch(ctx context.Context, id string, at time.Time) error {
	if err := s.fail("Touch"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil
	}
	m.AccessCount++
	if at.After(m.LastAccessedAt) {
		m.LastAccessedAt = at
	}
	return nil
}

func (s *MemoryStore) ListByKB(ctx context.Context, kbID string, limit int) ([]domain.Memory, error) {
	if err := s.fail("ListByKB"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Memory
	for _, m := range s.memories {
		if m.KBID == kbID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessedAt.After(out[j].LastAccessedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := s.fail("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, id)
	return nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Memory, error) {
	if err := s.fail("PurgeOlderThan"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []domain.Memory
	for id, m := range s.memories {
		if m.LastAccessedAt.Before(cutoff) {
			removed = append(removed, *m)
			delete(s.memories, id)
		}
	}
	return removed, nil
}

// ============================================================================
// EVALUATION RUNS
// ============================================================================

type EvalRunStore struct {
	failures
	mu      sync.RWMutex
	runs    map[string]*domain.EvalRun
	results map[string][]domain.EvalResult // runID -> results
}

func NewEvalRunStore() *EvalRunStore {
	return &EvalRunStore{
		runs:    make(map[string]*domain.EvalRun),
		results: make(map[string][]domain.EvalResult),
	}
}

func (s *EvalRunStore) CreateRun(ctx context.Context, run *domain.EvalRun) error {
	if err := s.fail("CreateRun"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *EvalRunStore) UpdateRun(ctx context.Context, run *domain.EvalRun) error {
	if err := s.fail("UpdateRun"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return apperrors.NotFound("eval_run", run.ID)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *EvalRunStore) GetRun(ctx context.Context, id string) (*domain.EvalRun, error) {
	if err := s.fail("GetRun"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("eval_run", id)
	}
	cp := *run
	return &cp, nil
}

func (s *EvalRunStore) ListRuns(ctx context.Context, kbID string, limit int) ([]domain.EvalRun, error) {
	if err := s.fail("ListRuns"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var out []domain.EvalRun
	for _, run := range s.runs {
		if run.KBID == kbID {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EvalRunStore) SaveResult(ctx context.Context, result *domain.EvalResult) error {
	if err := s.fail("SaveResult"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.RunID] = append(s.results[result.RunID], *result)
	return nil
}

func (s *EvalRunStore) ListResults(ctx context.Context, runID string) ([]domain.EvalResult, error) {
	if err := s.fail("ListResults"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.EvalResult(nil), s.results[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// DeleteRunsOlderThan drops old runs with their results, the same
// cascade the schema's foreign key enforces.
func (s *EvalRunStore) DeleteRunsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.fail("DeleteRunsOlderThan"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, run := range s.runs {
		if run.CreatedAt.Before(cutoff) {
			delete(s.runs, id)
			delete(s.results, id)
			n++
		}
	}
	return n, nil
}

// ============================================================================
// CHAT
// ============================================================================

type ChatStore struct {
	failures
	mu       sync.RWMutex
	sessions map[string]*domain.ChatSession
	history  map[string][]domain.ChatMessage // sessionID -> turns
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		sessions: make(map[string]*domain.ChatSession),
		history:  make(map[string][]domain.ChatMessage),
	}
}

func (s *ChatStore) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	if err := s.fail("GetSession"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("chat_session", id)
	}
	cp := *session
	return &cp, nil
}

func (s *ChatStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	if err := s.fail("CreateSession"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *ChatStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	if err := s.fail("TouchSession"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.UpdatedAt = at
	}
	return nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, sessionID string, msg domain.ChatMessage) error {
	if err := s.fail("AppendMessage"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.history[sessionID] = append(s.history[sessionID], msg)
	return nil
}

// History returns the last limit turns in insertion order.
func (s *ChatStore) History(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if err := s.fail("History"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	turns := s.history[sessionID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.ChatMessage(nil), turns...), nil
}

// ============================================================================
// TRACES
// ============================================================================

type TraceStore struct {
	failures
	mu     sync.RWMutex
	traces map[string]*domain.ExecutionTrace
}

func NewTraceStore() *TraceStore {
	return &TraceStore{traces: make(map[string]*domain.ExecutionTrace)}
}

func (s *TraceStore) Save(ctx context.Context, trace *domain.ExecutionTrace) error {
	if err := s.fail("Save"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *trace
	s.traces[trace.ID] = &cp
	return nil
}

func (s *TraceStore) Get(ctx context.Context, id string) (*domain.ExecutionTrace, error) {
	if err := s.fail("Get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	trace, ok := s.traces[id]
	if !ok {
		return nil, apperrors.NotFound("execution_trace", id)
	}
	cp := *trace
	return &cp, nil
}

func (s *TraceStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.ExecutionTrace, error) {
	if err := s.fail("ListBySession"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var out []domain.ExecutionTrace
	for _, trace := range s.traces {
		if trace.SessionID == sessionID {
			out = append(out, *trace)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
