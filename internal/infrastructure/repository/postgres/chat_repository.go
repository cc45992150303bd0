package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

// ChatRepository persists conversation transcripts so follow-up questions can
// be resolved server-side when the client sends only a conversation id.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chat schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083002)); err != nil {
		return fmt.Errorf("acquire chat schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_turns (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(conversation_id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_convo ON conversation_turns(conversation_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute chat schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chat schema tx: %w", err)
	}
	return nil
}

func (r *ChatRepository) EnsureConversation(ctx context.Context, conversationID string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversations (conversation_id, created_at, updated_at)
VALUES ($1, $2, $2)
ON CONFLICT (conversation_id) DO NOTHING
`, conversationID, now)
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	return nil
}

func (r *ChatRepository) AppendTurn(ctx context.Context, conversationID string, turn domain.ChatTurn) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation_turns (id, conversation_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5)
`, uuid.NewString(), conversationID, turn.Role, turn.Content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
UPDATE conversations SET updated_at = $2 WHERE conversation_id = $1
`, conversationID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *ChatRepository) ListRecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.ChatTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT role, content
FROM conversation_turns
WHERE conversation_id = $1
ORDER BY created_at DESC
LIMIT $2
`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatTurn, 0, limit)
	for rows.Next() {
		var turn domain.ChatTurn
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
