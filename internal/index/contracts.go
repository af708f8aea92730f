// Package index declares the contracts of the three retrieval planes:
// dense vector, inverted keyword and graph. The engines behind them are
// opaque services; the fabric composes whatever subset is configured.
package index

import (
	"context"

	"ragcore/internal/domain"
)

// ============================================================================
// VECTOR INDEX
// ============================================================================

// VectorRecord is one unit of text with its embedding, ready for upsert.
type VectorRecord struct {
	ID           string
	Vector       []float32
	Content      string
	DocumentID   string
	DocumentName string
	Type         domain.ContentType
	Metadata     map[string]string
}

// VectorHit is one scored dense-retrieval result. Score is a cosine
// similarity in [0,1].
type VectorHit struct {
	ID           string
	Content      string
	DocumentID   string
	DocumentName string
	Score        float64
	Type         domain.ContentType
	Metadata     map[string]string
}

// VectorQuery is one dense search. An empty Type matches both documents
// and memories; memory recall restricts it.
type VectorQuery struct {
	Vector []float32
	TopK   int
	Type   domain.ContentType
}

// VectorIndex is the dense plane, scoped per knowledge base.
type VectorIndex interface {
	Upsert(ctx context.Context, kbID string, records []VectorRecord) error
	Delete(ctx context.Context, kbID string, ids []string) error
	DeleteByDocument(ctx context.Context, kbID, documentID string) error
	Search(ctx context.Context, kbID string, query VectorQuery) ([]VectorHit, error)
	// DropKB removes every vector belonging to the knowledge base.
	DropKB(ctx context.Context, kbID string) error
	Close() error
}

// ============================================================================
// KEYWORD INDEX
// ============================================================================

// KeywordDoc is one unit of text for inverted indexing.
type KeywordDoc struct {
	ID           string
	DocumentID   string
	DocumentName string
	Content      string
	Type         domain.ContentType
}

// KeywordHit carries no comparable score, only its rank within the reply.
type KeywordHit struct {
	ID           string
	DocumentID   string
	DocumentName string
	Content      string
	Rank         int
}

// KeywordIndex is the sparse plane, scoped per knowledge base.
type KeywordIndex interface {
	Index(ctx context.Context, kbID string, docs []KeywordDoc) error
	Delete(ctx context.Context, kbID, documentID string) error
	Search(ctx context.Context, kbID, query string, limit int) ([]KeywordHit, error)
	// Healthy is the short probe consulted before every keyword search.
	Healthy(ctx context.Context) bool
	Close() error
}

// ============================================================================
// GRAPH INDEX
// ============================================================================

// GraphMode selects the traversal strategy of the graph service.
type GraphMode string

const (
	GraphModeLocal  GraphMode = "local"
	GraphModeGlobal GraphMode = "global"
	GraphModeHybrid GraphMode = "hybrid"
	GraphModeNaive  GraphMode = "naive"
)

// ValidGraphMode reports whether mode is one of the accepted strategies.
func ValidGraphMode(mode GraphMode) bool {
	switch mode {
	case GraphModeLocal, GraphModeGlobal, GraphModeHybrid, GraphModeNaive:
		return true
	}
	return false
}

// GraphDoc is one unit of text for entity/relation extraction.
type GraphDoc struct {
	ID      string
	Name    string
	Content string
}

// GraphSnapshot is the exported view of a knowledge-base graph.
type GraphSnapshot struct {
	Entities  []GraphEntity   `json:"entities"`
	Relations []GraphRelation `json:"relations"`
	Stats     map[string]int  `json:"stats,omitempty"`
}

// GraphEntity is one node of the exported graph.
type GraphEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// GraphRelation is one edge of the exported graph.
type GraphRelation struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Description string `json:"description,omitempty"`
}

// GraphIndex is the graph plane. Implementations degrade gracefully; the
// fabric falls back to hybrid retrieval whenever a call fails.
type GraphIndex interface {
	Index(ctx context.Context, kbID string, docs []GraphDoc) error
	Query(ctx context.Context, kbID, question string, mode GraphMode) (string, error)
	Graph(ctx context.Context, kbID string, limit int) (*GraphSnapshot, error)
	Healthy(ctx context.Context) bool
}
