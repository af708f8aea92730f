package evaluation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/llm"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeRunStore struct {
	mu       sync.Mutex
	runs     map[string]domain.EvalRun
	results  []domain.EvalResult
	statuses []domain.RunStatus

	failSaveResult error
	failUpdateRun  error
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[string]domain.EvalRun)}
}

func (s *fakeRunStore) CreateRun(_ context.Context, run *domain.EvalRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	s.statuses = append(s.statuses, run.Status)
	return nil
}

func (s *fakeRunStore) UpdateRun(_ context.Context, run *domain.EvalRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateRun != nil {
		return s.failUpdateRun
	}
	s.runs[run.ID] = *run
	s.statuses = append(s.statuses, run.Status)
	return nil
}

func (s *fakeRunStore) GetRun(_ context.Context, id string) (*domain.EvalRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("eval_run", id)
	}
	return &run, nil
}

func (s *fakeRunStore) ListRuns(_ context.Context, kbID string, limit int) ([]domain.EvalRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EvalRun
	for _, run := range s.runs {
		if run.KBID == kbID {
			out = append(out, run)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRunStore) SaveResult(_ context.Context, result *domain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveResult != nil {
		return s.failSaveResult
	}
	s.results = append(s.results, *result)
	return nil
}

func (s *fakeRunStore) ListResults(_ context.Context, runID string) ([]domain.EvalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EvalResult
	for _, r := range s.results {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *fakeRunStore) DeleteRunsOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, run := range s.runs {
		if run.CreatedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *fakeRunStore) storedStatuses() []domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RunStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func (s *fakeRunStore) storedResults() []domain.EvalResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EvalResult, len(s.results))
	copy(out, s.results)
	return out
}

type answerFunc func(ctx context.Context, kbID, question string) (*Answered, error)

func (f answerFunc) Answer(ctx context.Context, kbID, question string) (*Answered, error) {
	return f(ctx, kbID, question)
}

func knowledgeAnswerer() Answerer {
	return answerFunc(func(_ context.Context, _, question string) (*Answered, error) {
		return &Answered{
			Answer:      "Answer to: " + question,
			Evidence:    "[1] notes.md (score 0.900)\nEvidence for " + question,
			ToolsCalled: []string{"search_knowledge"},
		}, nil
	})
}

// happyJudges scores every question retrieval 5, faithfulness 4,
// quality 3, tool 2.
func happyJudges(t *testing.T) *llm.MockClient {
	t.Helper()
	return scriptJudges(t, map[string]string{
		"retrieval":    `{"score": 5, "reason": "full coverage"}`,
		"faithfulness": `{"score": 4, "reason": "one loose claim"}`,
		"quality":      `{"score": 3, "reason": "adequate"}`,
		"tool":         `{"score": 2, "reason": "wasteful"}`,
	})
}

func evalConfig() config.Evaluation {
	return config.Evaluation{QuestionTimeout: 5 * time.Second, RunRetentionDays: 30}
}

func newTestHarness(t *testing.T, answerer Answerer, client *llm.MockClient) (*Harness, *fakeRunStore) {
	t.Helper()
	store := newFakeRunStore()
	judges := NewJudges(client, zap.NewNop())
	return NewHarness(answerer, judges, store, evalConfig(), zap.NewNop()), store
}

func questions(texts ...string) []domain.EvalQuestion {
	out := make([]domain.EvalQuestion, len(texts))
	for i, q := range texts {
		out[i] = domain.EvalQuestion{Text: q}
	}
	return out
}

// =============================================================================
// Tests
// =============================================================================

func TestRunHappyPath(t *testing.T) {
	h, store := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))

	var events []Event
	run, err := h.Run(context.Background(), "kb-1", questions("What is RRF?", "What is chunk overlap?"), func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 2, run.CompletedCount)
	assert.Equal(t, 2, run.TotalQuestions)

	// Tool stays out of the average: (5+4+3)/3 per question.
	assert.InDelta(t, 4.0, run.AvgOverall, 1e-9)
	assert.InDelta(t, 5.0, run.AvgRetrieval, 1e-9)
	assert.InDelta(t, 4.0, run.AvgFaithfulness, 1e-9)
	assert.InDelta(t, 3.0, run.AvgQuality, 1e-9)
	assert.InDelta(t, 2.0, run.AvgTool, 1e-9)

	require.Len(t, events, 3)
	assert.Equal(t, EventProgress, events[0].Kind)
	assert.Equal(t, 1, events[0].Completed)
	require.NotNil(t, events[0].Result)
	assert.Equal(t, "What is RRF?", events[0].Result.Question)
	assert.InDelta(t, 4.0, events[0].Result.Average, 1e-9)
	assert.Equal(t, EventProgress, events[1].Kind)
	assert.Equal(t, 2, events[1].Completed)
	assert.Equal(t, EventCompleted, events[2].Kind)
	assert.Nil(t, events[2].Result)

	statuses := store.storedStatuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.RunPending, statuses[0])
	assert.Equal(t, domain.RunRunning, statuses[1])
	assert.Equal(t, domain.RunCompleted, statuses[len(statuses)-1])

	results := store.storedResults()
	require.Len(t, results, 2)
	assert.Equal(t, []string{"search_knowledge"}, results[0].ToolsCalled)
	assert.Contains(t, results[0].Evidence, "Evidence for What is RRF?")
}

func TestRunProgressSnapshotsDoNotMutate(t *testing.T) {
	h, _ := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))

	var first *domain.EvalRun
	_, err := h.Run(context.Background(), "kb-1", questions("q1", "q2"), func(ev Event) {
		if first == nil {
			first = ev.Run
		}
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.CompletedCount, "first progress snapshot must not track later questions")
}

func TestRunFailsWhenAnswererFails(t *testing.T) {
	calls := 0
	answerer := answerFunc(func(_ context.Context, _, question string) (*Answered, error) {
		calls++
		if calls == 2 {
			return nil, apperrors.Fatal("KB_CORRUPT", "index unreadable", nil)
		}
		return &Answered{Answer: "ok", Evidence: "ev", ToolsCalled: []string{"search_knowledge"}}, nil
	})
	h, store := newTestHarness(t, answerer, happyJudges(t))

	var events []Event
	run, err := h.Run(context.Background(), "kb-1", questions("q1", "q2"), func(ev Event) {
		events = append(events, ev)
	})
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Error, "index unreadable")

	require.Len(t, events, 2)
	assert.Equal(t, EventProgress, events[0].Kind)
	assert.Equal(t, EventError, events[1].Kind)
	assert.Equal(t, 1, events[1].Completed)

	// The first question's progress survives the failure.
	assert.Len(t, store.storedResults(), 1)
	statuses := store.storedStatuses()
	assert.Equal(t, domain.RunFailed, statuses[len(statuses)-1])
}

func TestRunFailsWhenAJudgeFails(t *testing.T) {
	client := llm.NewMockClient()
	client.SetError(errors.New("judge pool exhausted"))
	h, _ := newTestHarness(t, knowledgeAnswerer(), client)

	run, err := h.Run(context.Background(), "kb-1", questions("q1"), nil)
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
}

func TestRunFailsWhenResultCannotPersist(t *testing.T) {
	h, store := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))
	store.failSaveResult = errors.New("disk full")

	run, err := h.Run(context.Background(), "kb-1", questions("q1"), nil)
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Error, "evaluation.save_result")
}

func TestRunRejectsEmptyQuestionSet(t *testing.T) {
	h, _ := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))

	_, err := h.Run(context.Background(), "kb-1", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRunCancellationPersistsFailedStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	answerer := answerFunc(func(_ context.Context, _, _ string) (*Answered, error) {
		// Cancel after the first question so the loop sees a dead
		// context before the second.
		cancel()
		return &Answered{Answer: "ok", Evidence: "ev", ToolsCalled: []string{"search_knowledge"}}, nil
	})
	h, store := newTestHarness(t, answerer, happyJudges(t))

	var events []Event
	run, err := h.Run(ctx, "kb-1", questions("q1", "q2"), func(ev Event) {
		events = append(events, ev)
	})
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)

	stored, getErr := store.GetRun(context.Background(), run.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.RunFailed, stored.Status)
	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[len(events)-1].Kind)
}

func TestRunHonorsPerQuestionTimeout(t *testing.T) {
	answerer := answerFunc(func(ctx context.Context, _, _ string) (*Answered, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &Answered{Answer: "too late"}, nil
		}
	})
	store := newFakeRunStore()
	judges := NewJudges(happyJudges(t), zap.NewNop())
	cfg := config.Evaluation{QuestionTimeout: 20 * time.Millisecond}
	h := NewHarness(answerer, judges, store, cfg, zap.NewNop())

	start := time.Now()
	run, err := h.Run(context.Background(), "kb-1", questions("slow"), nil)
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchReconstructsRunState(t *testing.T) {
	h, _ := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))

	run, err := h.Run(context.Background(), "kb-1", questions("q1", "q2"), nil)
	require.NoError(t, err)

	fetched, results, err := h.Fetch(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, fetched.Status)
	assert.Equal(t, 2, fetched.CompletedCount)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
}

func TestFetchUnknownRun(t *testing.T) {
	h, _ := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))

	_, _, err := h.Fetch(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeterministicRerunsScoreIdentically(t *testing.T) {
	h, _ := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))

	first, err := h.Run(context.Background(), "kb-1", questions("q1", "q2", "q3"), nil)
	require.NoError(t, err)
	second, err := h.Run(context.Background(), "kb-1", questions("q1", "q2", "q3"), nil)
	require.NoError(t, err)

	assert.Equal(t, first.AvgOverall, second.AvgOverall)
	assert.Equal(t, first.AvgRetrieval, second.AvgRetrieval)
	assert.Equal(t, first.AvgFaithfulness, second.AvgFaithfulness)
	assert.Equal(t, first.AvgQuality, second.AvgQuality)
	assert.Equal(t, first.AvgTool, second.AvgTool)
}

func TestListRunsForKnowledgeBase(t *testing.T) {
	h, _ := newTestHarness(t, knowledgeAnswerer(), happyJudges(t))

	_, err := h.Run(context.Background(), "kb-1", questions("q1"), nil)
	require.NoError(t, err)
	_, err = h.Run(context.Background(), "kb-2", questions("q1"), nil)
	require.NoError(t, err)

	runs, err := h.List(context.Background(), "kb-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kb-1", runs[0].KBID)
}
