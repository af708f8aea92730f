package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

// EvalRunStore persists evaluation runs and results. Results cascade
// with their run, so retention only has to delete runs.
type EvalRunStore struct {
	db *DB
}

// NewEvalRunStore creates the evaluation repository.
func NewEvalRunStore(db *DB) *EvalRunStore {
	return &EvalRunStore{db: db}
}

const evalRunColumns = "id, kb_id, status, total_questions, completed_count, avg_retrieval, avg_faithfulness, avg_quality, avg_tool, avg_overall, error_message, created_at, updated_at"

func (s *EvalRunStore) CreateRun(ctx context.Context, run *domain.EvalRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO eval_runs (`+evalRunColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.KBID, string(run.Status), run.TotalQuestions, run.CompletedCount,
		run.AvgRetrieval, run.AvgFaithfulness, run.AvgQuality, run.AvgTool, run.AvgOverall,
		run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "insert eval run", err).WithOp("eval.CreateRun")
	}
	return nil
}

func (s *EvalRunStore) UpdateRun(ctx context.Context, run *domain.EvalRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE eval_runs SET
			status = ?, completed_count = ?,
			avg_retrieval = ?, avg_faithfulness = ?, avg_quality = ?, avg_tool = ?, avg_overall = ?,
			error_message = ?, updated_at = ?
		WHERE id = ?`,
		string(run.Status), run.CompletedCount,
		run.AvgRetrieval, run.AvgFaithfulness, run.AvgQuality, run.AvgTool, run.AvgOverall,
		run.Error, run.UpdatedAt, run.ID)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "update eval run", err).WithOp("eval.UpdateRun")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("eval_run", run.ID)
	}
	return nil
}

func (s *EvalRunStore) GetRun(ctx context.Context, id string) (*domain.EvalRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+evalRunColumns+` FROM eval_runs WHERE id = ?`, id)

	var run domain.EvalRun
	err := scanEvalRun(row.Scan, &run)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("eval_run", id)
	}
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "read eval run", err).WithOp("eval.GetRun")
	}
	return &run, nil
}

func (s *EvalRunStore) ListRuns(ctx context.Context, kbID string, limit int) ([]domain.EvalRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+evalRunColumns+` FROM eval_runs
		WHERE kb_id = ? ORDER BY created_at DESC LIMIT ?`, kbID, limit)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "list eval runs", err).WithOp("eval.ListRuns")
	}
	defer rows.Close()

	var out []domain.EvalRun
	for rows.Next() {
		var run domain.EvalRun
		if err := scanEvalRun(rows.Scan, &run); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan eval run", err).WithOp("eval.ListRuns")
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *EvalRunStore) SaveResult(ctx context.Context, result *domain.EvalResult) error {
	tools, err := json.Marshal(result.ToolsCalled)
	if err != nil {
		return apperrors.Fatal("STORE_ENCODE", "encode tool list", err).WithOp("eval.SaveResult")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO eval_results (
			id, run_id, question_index, question, answer, evidence, tools_called,
			retrieval_score, retrieval_reason, faithfulness_score, faithfulness_reason,
			quality_score, quality_reason, tool_score, tool_reason, average, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.RunID, result.Index, result.Question, result.Answer,
		result.Evidence, string(tools),
		result.Retrieval.Score, result.Retrieval.Reason,
		result.Faithfulness.Score, result.Faithfulness.Reason,
		result.Quality.Score, result.Quality.Reason,
		result.Tool.Score, result.Tool.Reason,
		result.Average, result.CreatedAt)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "insert eval result", err).WithOp("eval.SaveResult")
	}
	return nil
}

func (s *EvalRunStore) ListResults(ctx context.Context, runID string) ([]domain.EvalResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, question_index, question, answer, evidence, tools_called,
			retrieval_score, retrieval_reason, faithfulness_score, faithfulness_reason,
			quality_score, quality_reason, tool_score, tool_reason, average, created_at
		FROM eval_results WHERE run_id = ? ORDER BY question_index`, runID)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "list eval results", err).WithOp("eval.ListResults")
	}
	defer rows.Close()

	var out []domain.EvalResult
	for rows.Next() {
		var r domain.EvalResult
		var tools string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Index, &r.Question, &r.Answer,
			&r.Evidence, &tools,
			&r.Retrieval.Score, &r.Retrieval.Reason,
			&r.Faithfulness.Score, &r.Faithfulness.Reason,
			&r.Quality.Score, &r.Quality.Reason,
			&r.Tool.Score, &r.Tool.Reason,
			&r.Average, &r.CreatedAt); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan eval result", err).WithOp("eval.ListResults")
		}
		if tools != "" {
			if err := json.Unmarshal([]byte(tools), &r.ToolsCalled); err != nil {
				return nil, apperrors.Fatal("STORE_DECODE", "decode tool list", err).WithOp("eval.ListResults")
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *EvalRunStore) DeleteRunsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM eval_runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Fatal("STORE_EXEC", "delete old eval runs", err).WithOp("eval.DeleteRunsOlderThan")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanEvalRun(scan func(...any) error, run *domain.EvalRun) error {
	var status string
	err := scan(&run.ID, &run.KBID, &status, &run.TotalQuestions, &run.CompletedCount,
		&run.AvgRetrieval, &run.AvgFaithfulness, &run.AvgQuality, &run.AvgTool, &run.AvgOverall,
		&run.Error, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return err
	}
	run.Status = domain.RunStatus(status)
	return nil
}
