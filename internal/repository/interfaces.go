// Package repository declares the persistence ports of the engine. The
// sqlite subpackage implements them; mocks for service tests live in
// the mocks subpackage.
package repository

import (
	"context"
	"time"

	"ragcore/internal/domain"
)

// KnowledgeBases persists the KB catalog.
type KnowledgeBases interface {
	Create(ctx context.Context, kb *domain.KnowledgeBase) error
	Get(ctx context.Context, id string) (*domain.KnowledgeBase, error)
	List(ctx context.Context) ([]domain.KnowledgeBase, error)
	Delete(ctx context.Context, id string) error
}

// Documents persists ingested sources and their full text. Chunks live in
// the indexes; the relational row keeps the original for summarize_topic.
type Documents interface {
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, kbID, id string) (*domain.Document, error)
	// FindByName matches a document by exact name, then by substring.
	FindByName(ctx context.Context, kbID, name string) (*domain.Document, error)
	List(ctx context.Context, kbID string) ([]domain.Document, error)
	Delete(ctx context.Context, kbID, id string) error
}

// Memories persists extracted memories. Upsert replaces the whole row
// atomically; Touch is lossy-safe formulated as a single statement.
type Memories interface {
	Upsert(ctx context.Context, m *domain.Memory) error
	Get(ctx context.Context, id string) (*domain.Memory, error)
	GetBatch(ctx context.Context, ids []string) (map[string]domain.Memory, error)
	Touch(ctx context.Context, id string, at time.Time) error
	ListByKB(ctx context.Context, kbID string, limit int) ([]domain.Memory, error)
	Delete(ctx context.Context, id string) error
	// PurgeOlderThan removes memories last accessed before cutoff and
	// returns the removed rows so side indexes can follow.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Memory, error)
}

// EvalRuns persists evaluation runs and their per-question results so a
// disconnected client can refetch everything it missed.
type EvalRuns interface {
	CreateRun(ctx context.Context, run *domain.EvalRun) error
	UpdateRun(ctx context.Context, run *domain.EvalRun) error
	GetRun(ctx context.Context, id string) (*domain.EvalRun, error)
	ListRuns(ctx context.Context, kbID string, limit int) ([]domain.EvalRun, error)
	SaveResult(ctx context.Context, result *domain.EvalResult) error
	ListResults(ctx context.Context, runID string) ([]domain.EvalResult, error)
	DeleteRunsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// ChatStore persists sessions and their turns.
type ChatStore interface {
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	CreateSession(ctx context.Context, s *domain.ChatSession) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	AppendMessage(ctx context.Context, sessionID string, msg domain.ChatMessage) error
	// History returns the most recent limit turns in chronological order.
	History(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
}

// Traces persists execution traces, best effort.
type Traces interface {
	Save(ctx context.Context, trace *domain.ExecutionTrace) error
	Get(ctx context.Context, id string) (*domain.ExecutionTrace, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.ExecutionTrace, error)
}
