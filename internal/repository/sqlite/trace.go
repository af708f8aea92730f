package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

// TraceStore persists execution traces as JSON payloads. Traces are an
// audit artifact, queried whole; columns exist only for scoping.
type TraceStore struct {
	db *DB
}

// NewTraceStore creates the trace repository.
func NewTraceStore(db *DB) *TraceStore {
	return &TraceStore{db: db}
}

func (s *TraceStore) Save(ctx context.Context, trace *domain.ExecutionTrace) error {
	payload, err := json.Marshal(trace)
	if err != nil {
		return apperrors.Fatal("STORE_ENCODE", "encode trace", err).WithOp("trace.Save")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_traces (id, kb_id, session_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		trace.ID, trace.KBID, trace.SessionID, string(payload), trace.CreatedAt)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "insert trace", err).WithOp("trace.Save")
	}
	return nil
}

func (s *TraceStore) Get(ctx context.Context, id string) (*domain.ExecutionTrace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM execution_traces WHERE id = ?`, id)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("execution_trace", id)
	}
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "read trace", err).WithOp("trace.Get")
	}
	return decodeTrace(payload)
}

func (s *TraceStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.ExecutionTrace, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM execution_traces
		WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "list traces", err).WithOp("trace.ListBySession")
	}
	defer rows.Close()

	var out []domain.ExecutionTrace
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan trace", err).WithOp("trace.ListBySession")
		}
		trace, err := decodeTrace(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *trace)
	}
	return out, rows.Err()
}

func decodeTrace(payload string) (*domain.ExecutionTrace, error) {
	var trace domain.ExecutionTrace
	if err := json.Unmarshal([]byte(payload), &trace); err != nil {
		return nil, apperrors.Fatal("STORE_DECODE", "decode trace", err).WithOp("trace.decode")
	}
	return &trace, nil
}
