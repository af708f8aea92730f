package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

// DocumentStore persists ingested sources. The full text stays here so
// summarize_topic can serve whole documents without touching an index.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates the document repository.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = "id, kb_id, name, source, content, chunk_count, created_at"

func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, kb_id, name, source, content, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kb_id, id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			content = excluded.content,
			chunk_count = excluded.chunk_count`,
		doc.ID, doc.KBID, doc.Name, doc.Source, doc.Content, doc.ChunkCount, doc.CreatedAt)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "upsert document", err).WithOp("document.Create")
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, kbID, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE kb_id = ? AND id = ?`, kbID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("document", id)
	}
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "read document", err).WithOp("document.Get")
	}
	return doc, nil
}

// FindByName resolves a document by exact name first, then by substring.
// The substring pass picks the most recent match so "design" finds the
// latest design doc.
func (s *DocumentStore) FindByName(ctx context.Context, kbID, name string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE kb_id = ? AND name = ?`, kbID, name)
	doc, err := scanDocument(row)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Fatal("STORE_QUERY", "find document", err).WithOp("document.FindByName")
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE kb_id = ? AND name LIKE '%' || ? || '%'
		ORDER BY created_at DESC LIMIT 1`, kbID, name)
	doc, err = scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("document", name)
	}
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "find document", err).WithOp("document.FindByName")
	}
	return doc, nil
}

func (s *DocumentStore) List(ctx context.Context, kbID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE kb_id = ? ORDER BY created_at DESC`, kbID)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "list documents", err).WithOp("document.List")
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.KBID, &doc.Name, &doc.Source,
			&doc.Content, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan document", err).WithOp("document.List")
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *DocumentStore) Delete(ctx context.Context, kbID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE kb_id = ? AND id = ?`, kbID, id)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "delete document", err).WithOp("document.Delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("document", id)
	}
	return nil
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.KBID, &doc.Name, &doc.Source,
		&doc.Content, &doc.ChunkCount, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
