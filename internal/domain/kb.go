// Package domain holds the data model shared by every engine layer:
// knowledge bases, chunks, memories, intents, retrieval results, execution
// traces, evaluation runs and chat turns.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// KnowledgeBase is the logical root of all indexes and memories. Every
// retrieval operation is scoped by its id; there is no cross-KB leakage.
type KnowledgeBase struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	// EmbeddingDimensions is fixed at creation and must match the embedder.
	EmbeddingDimensions int       `json:"embeddingDimensions"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// NewKnowledgeBase creates a knowledge base with a fresh id.
func NewKnowledgeBase(ownerID, name, description string, dimensions int) (*KnowledgeBase, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if dimensions <= 0 {
		return nil, ErrBadDimensions
	}
	now := time.Now().UTC()
	return &KnowledgeBase{
		ID:                  uuid.NewString(),
		OwnerID:             ownerID,
		Name:                strings.TrimSpace(name),
		Description:         description,
		EmbeddingDimensions: dimensions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}
