package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

var docColumns = []string{"id", "kb_id", "name", "source", "content", "chunk_count", "created_at"}

func TestDocumentCreateUpserts(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDocumentStore(db)

	now := time.Now().UTC()
	doc := &domain.Document{
		ID: "doc-1", KBID: "kb-1", Name: "design.md",
		Content: "full text", ChunkCount: 4, CreatedAt: now,
	}
	mock.ExpectExec("INSERT INTO documents (.+) ON CONFLICT").
		WithArgs("doc-1", "kb-1", "design.md", "", "full text", 4, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNameExactMatch(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDocumentStore(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE kb_id = (.+) AND name = ").
		WithArgs("kb-1", "design.md").
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("doc-1", "kb-1", "design.md", "", "full text", 4, now))

	doc, err := store.FindByName(context.Background(), "kb-1", "design.md")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNameFallsBackToSubstring(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDocumentStore(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE kb_id = (.+) AND name = ").
		WithArgs("kb-1", "design").
		WillReturnRows(sqlmock.NewRows(docColumns))
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE kb_id = (.+) AND name LIKE").
		WithArgs("kb-1", "design").
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("doc-1", "kb-1", "design.md", "", "full text", 4, now))

	doc, err := store.FindByName(context.Background(), "kb-1", "design")
	require.NoError(t, err)
	assert.Equal(t, "design.md", doc.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNameMissesBothPasses(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDocumentStore(db)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE kb_id = (.+) AND name = ").
		WithArgs("kb-1", "ghost").
		WillReturnRows(sqlmock.NewRows(docColumns))
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE kb_id = (.+) AND name LIKE").
		WithArgs("kb-1", "ghost").
		WillReturnRows(sqlmock.NewRows(docColumns))

	_, err := store.FindByName(context.Background(), "kb-1", "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentList(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDocumentStore(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE kb_id = (.+) ORDER BY created_at DESC").
		WithArgs("kb-1").
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("doc-2", "kb-1", "b.md", "", "", 2, now).
			AddRow("doc-1", "kb-1", "a.md", "", "", 3, now.Add(-time.Hour)))

	docs, err := store.List(context.Background(), "kb-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b.md", docs[0].Name)
}
