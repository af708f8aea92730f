package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

// MemoryStore persists extracted memories.
type MemoryStore struct {
	db *DB
}

// NewMemoryStore creates the memory repository.
func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

const memoryColumns = "id, kb_id, user_id, session_id, content, kind, importance, access_count, last_accessed_at, created_at"

// Upsert replaces the whole row atomically; concurrent writers to the
// same id cannot interleave partial updates.
func (s *MemoryStore) Upsert(ctx context.Context, m *domain.Memory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, kb_id, user_id, session_id, content, kind, importance, access_count, last_accessed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			kind = excluded.kind,
			importance = excluded.importance,
			access_count = excluded.access_count,
			last_accessed_at = excluded.last_accessed_at`,
		m.ID, m.KBID, m.UserID, m.SessionID, m.Content, string(m.Kind),
		m.Importance, m.AccessCount, m.LastAccessedAt, m.CreatedAt)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "upsert memory", err).WithOp("memory.Upsert")
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)

	var m domain.Memory
	err := scanMemory(row.Scan, &m)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("memory", id)
	}
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "read memory", err).WithOp("memory.Get")
	}
	return &m, nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, ids []string) (map[string]domain.Memory, error) {
	out := make(map[string]domain.Memory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "batch read memories", err).WithOp("memory.GetBatch")
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Memory
		if err := scanMemory(rows.Scan, &m); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan memory", err).WithOp("memory.GetBatch")
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

// Touch bumps the access counter and advances last_accessed_at, as one
// statement. Concurrent touches may lose an increment race inside the
// engine but never corrupt the row, and the timestamp only moves forward.
func (s *MemoryStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1,
		    last_accessed_at = MAX(last_accessed_at, ?)
		WHERE id = ?`, at, id)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "touch memory", err).WithOp("memory.Touch")
	}
	return nil
}

func (s *MemoryStore) ListByKB(ctx context.Context, kbID string, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE kb_id = ? ORDER BY last_accessed_at DESC LIMIT ?`, kbID, limit)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "list memories", err).WithOp("memory.ListByKB")
	}
	defer rows.Close()

	var out []domain.Memory
	for rows.Next() {
		var m domain.Memory
		if err := scanMemory(rows.Scan, &m); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan memory", err).WithOp("memory.ListByKB")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "delete memory", err).WithOp("memory.Delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("memory", id)
	}
	return nil
}

// PurgeOlderThan removes memories last accessed before cutoff and returns
// the removed rows so side indexes can follow. DELETE ... RETURNING keeps
// select-then-delete atomic without an explicit transaction.
func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM memories WHERE last_accessed_at < ?
		RETURNING `+memoryColumns, cutoff)
	if err != nil {
		return nil, apperrors.Fatal("STORE_EXEC", "purge memories", err).WithOp("memory.PurgeOlderThan")
	}
	defer rows.Close()

	var out []domain.Memory
	for rows.Next() {
		var m domain.Memory
		if err := scanMemory(rows.Scan, &m); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan purged memory", err).WithOp("memory.PurgeOlderThan")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemory(scan func(...any) error, m *domain.Memory) error {
	var kind string
	err := scan(&m.ID, &m.KBID, &m.UserID, &m.SessionID, &m.Content, &kind,
		&m.Importance, &m.AccessCount, &m.LastAccessedAt, &m.CreatedAt)
	if err != nil {
		return err
	}
	m.Kind = domain.MemoryKind(kind)
	return nil
}
