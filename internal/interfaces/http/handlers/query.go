package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/service"
)

// queryStreamBudget bounds one query stream end to end. Keep it under
// the server write timeout or the connection dies before the timeout
// event does.
const queryStreamBudget = 120 * time.Second

// QueryHandler streams one question through the pipeline as SSE.
type QueryHandler struct {
	queries *service.QueryService
	cfg     *config.Config
	logger  *zap.Logger
}

func NewQueryHandler(queries *service.QueryService, cfg *config.Config, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{queries: queries, cfg: cfg, logger: logger}
}

type queryRequest struct {
	Question  string               `json:"question"`
	SessionID string               `json:"sessionId,omitempty"`
	UserID    string               `json:"userId,omitempty"`
	History   []domain.ChatMessage `json:"history,omitempty"`
}

type statusEvent struct {
	Stage string `json:"stage"`
}

type completeEvent struct {
	Answer  string                   `json:"answer"`
	Trace   *domain.ExecutionTrace   `json:"trace"`
	Results []domain.RetrievalResult `json:"results,omitempty"`
}

// Stream handles POST /api/v1/kbs/{kbID}/query. Stage transitions go out
// as status events, then a single complete, error or timeout event ends
// the stream.
func (h *QueryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")

	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, h.logger, apperrors.Validation("QUERY_EMPTY", "question must not be empty"))
		return
	}

	stream, ok := OpenStream(w, h.logger)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryStreamBudget)
	defer cancel()
	go stream.Heartbeat(ctx, h.cfg.Server.HeartbeatInterval)

	outcome, err := h.queries.Query(ctx, service.QueryRequest{
		KBID:      kbID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Question:  req.Question,
		History:   req.History,
	}, func(stage string) {
		stream.Send("status", statusEvent{Stage: stage})
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			stream.Send("timeout", errorBody{Error: true, Code: "TIMEOUT", Message: "query timed out"})
			return
		}
		code, message := clientFacing(err)
		stream.Send("error", errorBody{Error: true, Code: code, Message: message})
		h.logger.Warn("query stream failed",
			zap.String("kbId", kbID),
			zap.Error(err))
		return
	}

	stream.Send("complete", completeEvent{
		Answer:  outcome.Trace.Answer,
		Trace:   outcome.Trace,
		Results: outcome.Results,
	})
}
