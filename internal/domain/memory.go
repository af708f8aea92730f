package domain

import (
	"time"

	"github.com/google/uuid"
)

// MemoryKind classifies an extracted memory.
type MemoryKind string

const (
	MemoryKindUserPreference MemoryKind = "user_preference"
	MemoryKindFactual        MemoryKind = "factual"
	MemoryKindEvent          MemoryKind = "event"
	MemoryKindGeneral        MemoryKind = "general"
)

// NormalizeMemoryKind maps free-form LLM output onto the closed kind set.
func NormalizeMemoryKind(s string) MemoryKind {
	switch MemoryKind(s) {
	case MemoryKindUserPreference, MemoryKindFactual, MemoryKindEvent:
		return MemoryKind(s)
	default:
		return MemoryKindGeneral
	}
}

// Memory is a short declarative statement extracted from a past turn.
// Memories are embedded into the vector index tagged type=memory so they
// co-retrieve with document chunks.
type Memory struct {
	ID             string     `json:"id"`
	KBID           string     `json:"kbId"`
	UserID         string     `json:"userId,omitempty"`
	SessionID      string     `json:"sessionId,omitempty"`
	Content        string     `json:"content"`
	Kind           MemoryKind `json:"kind"`
	Importance     float64    `json:"importance"` // [0,1]
	AccessCount    int        `json:"accessCount"`
	LastAccessedAt time.Time  `json:"lastAccessedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewMemory creates a memory with clamped importance and a fresh id.
func NewMemory(kbID, userID, sessionID, content string, kind MemoryKind, importance float64) *Memory {
	now := time.Now().UTC()
	return &Memory{
		ID:             uuid.NewString(),
		KBID:           kbID,
		UserID:         userID,
		SessionID:      sessionID,
		Content:        content,
		Kind:           kind,
		Importance:     clamp01(importance),
		LastAccessedAt: now,
		CreatedAt:      now,
	}
}

// ExtractedMemory is the extractor's raw output before persistence.
type ExtractedMemory struct {
	Content    string     `json:"content"`
	Kind       MemoryKind `json:"kind"`
	Importance float64    `json:"importance"`
}

// ScoredMemory is a recalled memory with its semantic similarity and the
// combined similarity-times-freshness weight used for ranking.
type ScoredMemory struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
