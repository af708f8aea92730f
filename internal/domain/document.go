package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyName     = errors.New("name must not be empty")
	ErrBadDimensions = errors.New("embedding dimensions must be positive")
)

// ContentType distinguishes a document chunk from an extracted memory when
// both co-exist in the vector index.
type ContentType string

const (
	ContentTypeDocument ContentType = "document"
	ContentTypeMemory   ContentType = "memory"
)

// Document is the ingested source a set of chunks belongs to.
type Document struct {
	ID         string    `json:"id"`
	KBID       string    `json:"kbId"`
	Name       string    `json:"name"`
	Source     string    `json:"source,omitempty"`
	Content    string    `json:"content,omitempty"`
	ChunkCount int       `json:"chunkCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Chunk is an immutable unit of retrievable text. It lives in the vector
// index as embedding+metadata and in the keyword index as text+metadata.
type Chunk struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"documentId"`
	DocumentName string            `json:"documentName"`
	KBID         string            `json:"kbId"`
	Content      string            `json:"content"`
	Type         ContentType       `json:"type"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ChunkID derives the stable chunk identifier. Re-indexing a document must
// produce the same ids so retrieval results stay identical.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%04d", documentID, index)
}
