package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ragcore/internal/domain"
	apperrors "ragcore/internal/errors"
)

// ChatStore persists sessions and turns.
type ChatStore struct {
	db *DB
}

// NewChatStore creates the chat repository.
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, kb_id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.KBID, session.UserID, session.Title,
		session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "insert chat session", err).WithOp("chat.CreateSession")
	}
	return nil
}

func (s *ChatStore) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kb_id, user_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = ?`, id)

	var session domain.ChatSession
	err := row.Scan(&session.ID, &session.KBID, &session.UserID, &session.Title,
		&session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("chat_session", id)
	}
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "read chat session", err).WithOp("chat.GetSession")
	}
	return &session, nil
}

func (s *ChatStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "touch chat session", err).WithOp("chat.TouchSession")
	}
	return nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, sessionID string, msg domain.ChatMessage) error {
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history (session_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`,
		sessionID, string(msg.Role), msg.Content, at)
	if err != nil {
		return apperrors.Fatal("STORE_EXEC", "append chat message", err).WithOp("chat.AppendMessage")
	}
	return nil
}

// History returns the most recent limit turns in chronological order.
// The query walks the autoincrement id backwards, then the rows are
// reversed; insertion order is the conversation order even when two
// turns share a timestamp.
func (s *ChatStore) History(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM chat_history
		WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, apperrors.Fatal("STORE_QUERY", "read chat history", err).WithOp("chat.History")
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, apperrors.Fatal("STORE_SCAN", "scan chat message", err).WithOp("chat.History")
		}
		msg.Role = domain.ChatRole(role)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
