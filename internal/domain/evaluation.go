package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the evaluation run lifecycle state. Transitions only move
// forward: pending -> running -> (completed | failed).
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// CanTransitionTo reports whether moving to next respects the forward-only
// status path.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunPending:
		return next == RunRunning || next == RunFailed
	case RunRunning:
		return next == RunCompleted || next == RunFailed
	default:
		return false
	}
}

// EvalQuestion is one harness input. Expected tools and intent feed the
// tool judge only; they are optional.
type EvalQuestion struct {
	Text           string   `json:"text"`
	ExpectedTools  []string `json:"expectedTools,omitempty"`
	ExpectedIntent string   `json:"expectedIntent,omitempty"`
}

// JudgeScore is one judge's verdict on one question.
type JudgeScore struct {
	Score  int    `json:"score"` // 0-5
	Reason string `json:"reason"`
}

// EvalResult is the persisted outcome for one question.
type EvalResult struct {
	ID           string     `json:"id"`
	RunID        string     `json:"runId"`
	Index        int        `json:"index"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Evidence     string     `json:"evidence,omitempty"`
	ToolsCalled  []string   `json:"toolsCalled,omitempty"`
	Retrieval    JudgeScore `json:"retrieval"`
	Faithfulness JudgeScore `json:"faithfulness"`
	Quality      JudgeScore `json:"quality"`
	Tool         JudgeScore `json:"tool"`
	// Average is the unit-weighted mean of retrieval, faithfulness and
	// quality. The tool judge is reported but never averaged in.
	Average   float64   `json:"average"`
	CreatedAt time.Time `json:"createdAt"`
}

// ComputeAverage fills Average from the three averaged judges.
func (r *EvalResult) ComputeAverage() {
	r.Average = float64(r.Retrieval.Score+r.Faithfulness.Score+r.Quality.Score) / 3.0
}

// EvalRun aggregates one harness execution over a question set.
type EvalRun struct {
	ID             string    `json:"id"`
	KBID           string    `json:"kbId"`
	Status         RunStatus `json:"status"`
	TotalQuestions int       `json:"totalQuestions"`
	CompletedCount int       `json:"completedCount"`

	AvgRetrieval    float64 `json:"avgRetrieval"`
	AvgFaithfulness float64 `json:"avgFaithfulness"`
	AvgQuality      float64 `json:"avgQuality"`
	AvgTool         float64 `json:"avgTool"`
	AvgOverall      float64 `json:"avgOverall"`

	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewEvalRun creates a pending run for a question set.
func NewEvalRun(kbID string, total int) *EvalRun {
	now := time.Now().UTC()
	return &EvalRun{
		ID:             uuid.NewString(),
		KBID:           kbID,
		Status:         RunPending,
		TotalQuestions: total,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Aggregate recomputes the per-judge averages from results.
func (run *EvalRun) Aggregate(results []EvalResult) {
	if len(results) == 0 {
		return
	}
	var ret, faith, qual, tool, overall float64
	for _, r := range results {
		ret += float64(r.Retrieval.Score)
		faith += float64(r.Faithfulness.Score)
		qual += float64(r.Quality.Score)
		tool += float64(r.Tool.Score)
		overall += r.Average
	}
	n := float64(len(results))
	run.AvgRetrieval = ret / n
	run.AvgFaithfulness = faith / n
	run.AvgQuality = qual / n
	run.AvgTool = tool / n
	run.AvgOverall = overall / n
}
