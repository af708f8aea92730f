// Package sqlite implements the repository ports on a single SQLite
// database. The driver is pure Go, so deployments stay CGO-free; WAL
// mode keeps concurrent readers off the writers' backs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	apperrors "ragcore/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_bases (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	embedding_dims INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT NOT NULL,
	kb_id       TEXT NOT NULL,
	name        TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL DEFAULT '',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (kb_id, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_kb_name ON documents (kb_id, name);

CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	kb_id            TEXT NOT NULL,
	user_id          TEXT NOT NULL DEFAULT '',
	session_id       TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL,
	kind             TEXT NOT NULL,
	importance       REAL NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMP NOT NULL,
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_kb_accessed ON memories (kb_id, last_accessed_at);

CREATE TABLE IF NOT EXISTS eval_runs (
	id               TEXT PRIMARY KEY,
	kb_id            TEXT NOT NULL,
	status           TEXT NOT NULL,
	total_questions  INTEGER NOT NULL,
	completed_count  INTEGER NOT NULL DEFAULT 0,
	avg_retrieval    REAL NOT NULL DEFAULT 0,
	avg_faithfulness REAL NOT NULL DEFAULT 0,
	avg_quality      REAL NOT NULL DEFAULT 0,
	avg_tool         REAL NOT NULL DEFAULT 0,
	avg_overall      REAL NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_eval_runs_kb ON eval_runs (kb_id, created_at);

CREATE TABLE IF NOT EXISTS eval_results (
	id                  TEXT PRIMARY KEY,
	run_id              TEXT NOT NULL REFERENCES eval_runs (id) ON DELETE CASCADE,
	question_index      INTEGER NOT NULL,
	question            TEXT NOT NULL,
	answer              TEXT NOT NULL,
	evidence            TEXT NOT NULL DEFAULT '',
	tools_called        TEXT NOT NULL DEFAULT '[]',
	retrieval_score     INTEGER NOT NULL,
	retrieval_reason    TEXT NOT NULL DEFAULT '',
	faithfulness_score  INTEGER NOT NULL,
	faithfulness_reason TEXT NOT NULL DEFAULT '',
	quality_score       INTEGER NOT NULL,
	quality_reason      TEXT NOT NULL DEFAULT '',
	tool_score          INTEGER NOT NULL,
	tool_reason         TEXT NOT NULL DEFAULT '',
	average             REAL NOT NULL,
	created_at          TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_eval_results_run ON eval_results (run_id, question_index);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id         TEXT PRIMARY KEY,
	kb_id      TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history (session_id, id);

CREATE TABLE IF NOT EXISTS execution_traces (
	id         TEXT PRIMARY KEY,
	kb_id      TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traces_session ON execution_traces (session_id, created_at);
`

// DB wraps the shared connection pool. All repository types in this
// package are views over the same handle.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the engine database and applies the
// schema. WAL + busy_timeout let concurrent readers coexist with the
// serialized writers.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Fatal("STORE_OPEN", "open sqlite database", err).WithDetails("path=%s", path)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	wrapped := &DB{DB: db}
	if err := wrapped.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return wrapped, nil
}

// Migrate applies the idempotent schema.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return apperrors.Fatal("STORE_PRAGMA", "enable foreign keys", err)
	}
	if _, err := d.ExecContext(ctx, schema); err != nil {
		return apperrors.Fatal("STORE_MIGRATE", "apply schema", err)
	}
	return nil
}
