package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole identifies the author of a turn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// ChatMessage is one conversational turn.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ChatSession groups the turns of one conversation against a KB.
type ChatSession struct {
	ID        string    `json:"id"`
	KBID      string    `json:"kbId"`
	UserID    string    `json:"userId,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewChatSession starts a conversation.
func NewChatSession(kbID, userID, title string) *ChatSession {
	now := time.Now().UTC()
	return &ChatSession{
		ID:        uuid.NewString(),
		KBID:      kbID,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LastAssistantMessage returns the most recent assistant turn, or nil.
func LastAssistantMessage(history []ChatMessage) *ChatMessage {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant {
			return &history[i]
		}
	}
	return nil
}
