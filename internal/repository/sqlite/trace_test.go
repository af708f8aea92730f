package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

func sampleTrace(t *testing.T) (*domain.ExecutionTrace, string) {
	t.Helper()
	trace := &domain.ExecutionTrace{
		ID:        "tr-1",
		KBID:      "kb-1",
		SessionID: "sess-1",
		Question:  "What is RRF?",
		Intent:    domain.Intent{Tag: domain.IntentKnowledgeQuery, NeedsKnowledgeBase: true},
		ToolCalls: []domain.ToolCall{{Step: 1, Name: "search_knowledge", Input: `{"query":"RRF"}`}},
		Answer:    "It merges ranked lists.",
		Steps:     2,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(trace)
	require.NoError(t, err)
	return trace, string(payload)
}

func TestTraceSaveWritesPayload(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewTraceStore(db)

	trace, payload := sampleTrace(t)
	mock.ExpectExec("INSERT INTO execution_traces").
		WithArgs("tr-1", "kb-1", "sess-1", payload, trace.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), trace))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraceGetRoundTrips(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewTraceStore(db)

	trace, payload := sampleTrace(t)
	mock.ExpectQuery("SELECT payload FROM execution_traces WHERE id = ").
		WithArgs("tr-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.Get(context.Background(), "tr-1")
	require.NoError(t, err)
	assert.Equal(t, trace.Question, got.Question)
	assert.Equal(t, trace.Intent.Tag, got.Intent.Tag)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "search_knowledge", got.ToolCalls[0].Name)
}

func TestTraceGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewTraceStore(db)

	mock.ExpectQuery("SELECT payload FROM execution_traces WHERE id = ").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err := store.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTraceListBySession(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewTraceStore(db)

	_, payload := sampleTrace(t)
	mock.ExpectQuery("SELECT payload FROM execution_traces WHERE session_id = ").
		WithArgs("sess-1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	traces, err := store.ListBySession(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "tr-1", traces[0].ID)
}

func TestTraceCorruptPayloadIsAnError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewTraceStore(db)

	mock.ExpectQuery("SELECT payload FROM execution_traces WHERE id = ").
		WithArgs("tr-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("{not json"))

	_, err := store.Get(context.Background(), "tr-1")
	require.Error(t, err)
	assert.Equal(t, "STORE_DECODE", apperrors.CodeOf(err))
}
