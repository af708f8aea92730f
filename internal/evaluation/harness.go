package evaluation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/repository"
)

// Answerer runs one question end-to-end the way the query service does:
// intent, context assembly, the agent loop, quality review. Evaluation
// questions carry no chat session, so each runs against a fresh context.
type Answerer interface {
	Answer(ctx context.Context, kbID, question string) (*Answered, error)
}

// Answered is the per-question bundle the judges consume.
type Answered struct {
	Answer      string
	Evidence    string
	ToolsCalled []string
}

// Event kinds delivered to the progress callback. The transport layer
// maps them onto named stream events.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventError     = "error"
)

// Event is one run notification. Run is a snapshot taken at emit time;
// Result is set only for progress events.
type Event struct {
	Kind      string             `json:"kind"`
	Run       *domain.EvalRun    `json:"run"`
	Result    *domain.EvalResult `json:"result,omitempty"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
}

// ProgressFunc receives run events. A nil callback is fine; progress is
// persisted either way so a disconnected client can refetch the run.
type ProgressFunc func(Event)

// Harness drives an evaluation run: one question at a time through the
// answerer, four judges in parallel per question, everything persisted
// as it lands.
type Harness struct {
	answerer Answerer
	judges   *Judges
	runs     repository.EvalRuns
	cfg      config.Evaluation
	logger   *zap.Logger
}

// NewHarness wires the evaluator.
func NewHarness(answerer Answerer, judges *Judges, runs repository.EvalRuns, cfg config.Evaluation, logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{
		answerer: answerer,
		judges:   judges,
		runs:     runs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run evaluates a question set against a knowledge base. The run row is
// created pending, moved to running, and finishes completed or failed.
// A failure on any question fails the whole run; progress emitted before
// the failure stays valid and persisted. The returned run reflects the
// terminal state even when err is non-nil.
func (h *Harness) Run(ctx context.Context, kbID string, questions []domain.EvalQuestion, onProgress ProgressFunc) (*domain.EvalRun, error) {
	if len(questions) == 0 {
		return nil, apperrors.Validation("EVAL_NO_QUESTIONS", "question set is empty")
	}

	run := domain.NewEvalRun(kbID, len(questions))
	if err := h.runs.CreateRun(ctx, run); err != nil {
		return nil, apperrors.Wrap(err, "evaluation.create_run")
	}
	if err := h.transition(ctx, run, domain.RunRunning); err != nil {
		return run, err
	}

	h.logger.Info("evaluation run started",
		zap.String("runId", run.ID),
		zap.String("kbId", kbID),
		zap.Int("questions", len(questions)))

	results := make([]domain.EvalResult, 0, len(questions))
	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return h.fail(ctx, run, apperrors.Wrap(err, "evaluation.cancelled"), onProgress)
		}

		result, err := h.evaluateQuestion(ctx, run, i, q)
		if err != nil {
			return h.fail(ctx, run, err, onProgress)
		}

		results = append(results, *result)
		run.CompletedCount = len(results)
		run.Aggregate(results)
		run.UpdatedAt = time.Now().UTC()

		if err := h.runs.SaveResult(ctx, result); err != nil {
			return h.fail(ctx, run, apperrors.Wrap(err, "evaluation.save_result"), onProgress)
		}
		if err := h.runs.UpdateRun(ctx, run); err != nil {
			return h.fail(ctx, run, apperrors.Wrap(err, "evaluation.update_run"), onProgress)
		}
		emit(onProgress, Event{
			Kind:      EventProgress,
			Run:       snapshot(run),
			Result:    result,
			Completed: run.CompletedCount,
			Total:     run.TotalQuestions,
		})
	}

	if err := h.transition(ctx, run, domain.RunCompleted); err != nil {
		return run, err
	}
	emit(onProgress, Event{
		Kind:      EventCompleted,
		Run:       snapshot(run),
		Completed: run.CompletedCount,
		Total:     run.TotalQuestions,
	})

	h.logger.Info("evaluation run completed",
		zap.String("runId", run.ID),
		zap.Float64("avgOverall", run.AvgOverall),
		zap.Float64("avgTool", run.AvgTool))
	return run, nil
}

// Fetch reconstructs a run and its results for clients that lost the
// stream.
func (h *Harness) Fetch(ctx context.Context, runID string) (*domain.EvalRun, []domain.EvalResult, error) {
	run, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	results, err := h.runs.ListResults(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, results, nil
}

// List returns recent runs for a knowledge base.
func (h *Harness) List(ctx context.Context, kbID string, limit int) ([]domain.EvalRun, error) {
	return h.runs.ListRuns(ctx, kbID, limit)
}

func (h *Harness) evaluateQuestion(ctx context.Context, run *domain.EvalRun, idx int, q domain.EvalQuestion) (*domain.EvalResult, error) {
	qctx, cancel := context.WithTimeout(ctx, h.questionTimeout())
	defer cancel()

	answered, err := h.answerer.Answer(qctx, run.KBID, q.Text)
	if err != nil {
		return nil, apperrors.Wrap(err, "evaluation.answer")
	}

	scores, err := h.judges.ScoreAll(qctx, Subject{
		Question:       q.Text,
		Answer:         answered.Answer,
		Evidence:       answered.Evidence,
		ToolsCalled:    answered.ToolsCalled,
		ExpectedTools:  q.ExpectedTools,
		ExpectedIntent: q.ExpectedIntent,
	})
	if err != nil {
		return nil, err
	}

	result := &domain.EvalResult{
		ID:           uuid.NewString(),
		RunID:        run.ID,
		Index:        idx,
		Question:     q.Text,
		Answer:       answered.Answer,
		Evidence:     answered.Evidence,
		ToolsCalled:  answered.ToolsCalled,
		Retrieval:    scores.Retrieval,
		Faithfulness: scores.Faithfulness,
		Quality:      scores.Quality,
		Tool:         scores.Tool,
		CreatedAt:    time.Now().UTC(),
	}
	result.ComputeAverage()
	return result, nil
}

// fail moves the run to failed and emits the error event. Persistence
// uses a detached context so cancellation cannot lose the terminal
// status the refetch path depends on.
func (h *Harness) fail(ctx context.Context, run *domain.EvalRun, cause error, onProgress ProgressFunc) (*domain.EvalRun, error) {
	run.Status = domain.RunFailed
	run.Error = cause.Error()
	run.UpdatedAt = time.Now().UTC()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.runs.UpdateRun(persistCtx, run); err != nil {
		h.logger.Error("failed to persist run failure",
			zap.String("runId", run.ID),
			zap.Error(err))
	}

	emit(onProgress, Event{
		Kind:      EventError,
		Run:       snapshot(run),
		Completed: run.CompletedCount,
		Total:     run.TotalQuestions,
	})
	h.logger.Warn("evaluation run failed",
		zap.String("runId", run.ID),
		zap.Int("completed", run.CompletedCount),
		zap.Error(cause))
	return run, cause
}

func (h *Harness) transition(ctx context.Context, run *domain.EvalRun, next domain.RunStatus) error {
	if !run.Status.CanTransitionTo(next) {
		return apperrors.Fatal("EVAL_STATUS", "illegal run transition "+string(run.Status)+" -> "+string(next), nil)
	}
	run.Status = next
	run.UpdatedAt = time.Now().UTC()
	return apperrors.Wrap(h.runs.UpdateRun(ctx, run), "evaluation.transition")
}

func (h *Harness) questionTimeout() time.Duration {
	if h.cfg.QuestionTimeout > 0 {
		return h.cfg.QuestionTimeout
	}
	return 180 * time.Second
}

func emit(fn ProgressFunc, ev Event) {
	if fn != nil {
		fn(ev)
	}
}

// snapshot copies the run so callbacks can serialize it while the loop
// keeps mutating the original.
func snapshot(run *domain.EvalRun) *domain.EvalRun {
	cp := *run
	return &cp
}
