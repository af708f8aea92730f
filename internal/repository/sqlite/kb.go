package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

// KBStore persists the knowledge-base catalog.
type KBStore struct {
	db *DB
}

// NewKBStore creates the KB repository.
func NewKBStore(db *DB) *KBStore {
	return &KBStore{db: db}
}

func (s *KBStore) Create(ctx context.Context, kb *domain.KnowledgeBase) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_bases (id, owner_id, name, description, embedding_dims, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		kb.ID, kb.OwnerID, kb.Name, kb.Description, kb.EmbeddingDimensions, kb.CreatedAt, kb.UpdatedAt)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "insert knowledge base", err).WithOp("kb.Create")
	}
	return nil
}

func (s *KBStore) Get(ctx context.Context, id string) (*domain.KnowledgeBase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, embedding_dims, created_at, updated_at
		FROM knowledge_bases WHERE id = ?`, id)

	var kb domain.KnowledgeBase
	err := row.Scan(&kb.ID, &kb.OwnerID, &kb.Name, &kb.Description,
		&kb.EmbeddingDimensions, &kb.CreatedAt, &kb.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("knowledge_base", id)
	}
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "read knowledge base", err).WithOp("kb.Get")
	}
	return &kb, nil
}

func (s *KBStore) List(ctx context.Context) ([]domain.KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, embedding_dims, created_at, updated_at
		FROM knowledge_bases ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "list knowledge bases", err).WithOp("kb.List")
	}
	defer rows.Close()

	var out []domain.KnowledgeBase
	for rows.Next() {
		var kb domain.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.OwnerID, &kb.Name, &kb.Description,
			&kb.EmbeddingDimensions, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan knowledge base", err).WithOp("kb.List")
		}
		out = append(out, kb)
	}
	return out, rows.Err()
}

func (s *KBStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE id = ?`, id)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "delete knowledge base", err).WithOp("kb.Delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("knowledge_base", id)
	}
	return nil
}
