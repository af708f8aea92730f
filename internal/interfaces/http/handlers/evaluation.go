package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/evaluation"
)

// defaultRunListLimit caps how many runs List returns when the client
// does not ask for a specific count.
const defaultRunListLimit = 20

// EvaluationHandler starts evaluation runs over SSE and serves persisted
// run data for clients that lost the stream.
type EvaluationHandler struct {
	harness *evaluation.Harness
	cfg     *config.Config
	logger  *zap.Logger
}

func NewEvaluationHandler(harness *evaluation.Harness, cfg *config.Config, logger *zap.Logger) *EvaluationHandler {
	return &EvaluationHandler{harness: harness, cfg: cfg, logger: logger}
}

type evalRequest struct {
	Questions []domain.EvalQuestion `json:"questions"`
}

type runDetail struct {
	Run     *domain.EvalRun     `json:"run"`
	Results []domain.EvalResult `json:"results"`
}

type runList struct {
	Runs []domain.EvalRun `json:"runs"`
}

// Stream handles POST /api/v1/kbs/{kbID}/evaluations. The harness emits
// progress, completed and error events through the callback; they map
// one to one onto SSE events.
func (h *EvaluationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")

	var req evalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, h.logger, apperrors.Validation("EVAL_NO_QUESTIONS", "question set is empty"))
		return
	}

	stream, ok := OpenStream(w, h.logger)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go stream.Heartbeat(ctx, h.cfg.Server.HeartbeatInterval)

	run, err := h.harness.Run(ctx, kbID, req.Questions, func(ev evaluation.Event) {
		stream.Send(ev.Kind, ev)
	})
	if err != nil && (run == nil || run.Status != domain.RunFailed) {
		// Failed runs already sent their error event via the callback.
		code, message := clientFacing(err)
		stream.Send(evaluation.EventError, errorBody{Error: true, Code: code, Message: message})
	}
}

// Get handles GET /api/v1/evaluations/{runID}.
func (h *EvaluationHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, results, err := h.harness.Fetch(r.Context(), runID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, runDetail{Run: run, Results: results})
}

// List handles GET /api/v1/kbs/{kbID}/evaluations.
func (h *EvaluationHandler) List(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, h.logger, apperrors.Validation("BAD_LIMIT", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	runs, err := h.harness.List(r.Context(), kbID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if runs == nil {
		runs = []domain.EvalRun{}
	}
	writeJSON(w, h.logger, http.StatusOK, runList{Runs: runs})
}
