package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *MessageRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	subject TEXT NOT NULL DEFAULT '',
	sender TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	internal_date BIGINT NOT NULL DEFAULT 0,
	labels JSONB NOT NULL DEFAULT '[]'::jsonb,
	search_tsv TSVECTOR GENERATED ALWAYS AS (
		to_tsvector('english', subject || ' ' || sender || ' ' || snippet)
	) STORED,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_search_tsv ON messages USING GIN(search_tsv);
CREATE INDEX IF NOT EXISTS idx_messages_labels ON messages USING GIN(labels);
CREATE INDEX IF NOT EXISTS idx_messages_internal_date ON messages(internal_date DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *MessageRepository) UpsertMessage(ctx context.Context, msg domain.MailMessage) error {
	labelsJSON, err := json.Marshal(msg.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO messages (id, subject, sender, snippet, internal_date, labels)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE
SET subject = EXCLUDED.subject, sender = EXCLUDED.sender, snippet = EXCLUDED.snippet,
	internal_date = EXCLUDED.internal_date, labels = EXCLUDED.labels
`, msg.ID, msg.Subject, msg.From, msg.Snippet, msg.InternalDate, labelsJSON)
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

// KeywordSearch runs full-text search over subject, sender and snippet.
// Ranks are positional (best hit is rank 1); ts_rank is carried as the raw
// score but is not on the cosine-similarity scale, so thresholding is left to
// the vector leg.
func (r *MessageRepository) KeywordSearch(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
SELECT id, ts_rank(search_tsv, q) AS score
FROM messages, websearch_to_tsquery('english', $1) q
WHERE search_tsv @@ q
`
	args := []any{query}
	if filter.Label != "" {
		sqlQuery += fmt.Sprintf("AND labels @> jsonb_build_array($%d::text)\n", len(args)+1)
		args = append(args, filter.Label)
	}
	sqlQuery += fmt.Sprintf("ORDER BY score DESC, internal_date DESC\nLIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievedDocument, 0, limit)
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		out = append(out, domain.RetrievedDocument{
			ID:     id,
			Rank:   len(out) + 1,
			Source: domain.SourceKeyword,
			Score:  score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword hits: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) GetMessagesByIDs(ctx context.Context, ids []string) (map[string]domain.MailMessage, error) {
	if len(ids) == 0 {
		return map[string]domain.MailMessage{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, subject, sender, snippet, internal_date, labels
FROM messages
WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, fmt.Errorf("get messages by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.MailMessage, len(ids))
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) GetMessageByID(ctx context.Context, id string) (*domain.MailMessage, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, subject, sender, snippet, internal_date, labels
FROM messages
WHERE id = $1
`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrMessageNotFound, "get message", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) ListMessagesByLabel(ctx context.Context, label string, limit int) ([]domain.MailMessage, int, error) {
	total, err := r.CountMessagesByLabel(ctx, label)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, subject, sender, snippet, internal_date, labels
FROM messages
WHERE labels @> jsonb_build_array($1::text)
ORDER BY internal_date DESC
LIMIT $2
`, label, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages by label: %w", err)
	}
	defer rows.Close()

	out := make([]domain.MailMessage, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate labeled messages: %w", err)
	}
	return out, total, nil
}

func (r *MessageRepository) CountMessagesByLabel(ctx context.Context, label string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM messages WHERE labels @> jsonb_build_array($1::text)
`, label).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages by label: %w", err)
	}
	return count, nil
}

func (r *MessageRepository) TotalMessageCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("total message count: %w", err)
	}
	return count, nil
}

func (r *MessageRepository) TopSenders(ctx context.Context, limit int) ([]domain.SenderCount, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT sender, COUNT(*) AS n
FROM messages
WHERE sender <> ''
GROUP BY sender
ORDER BY n DESC, sender ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("top senders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SenderCount, 0, limit)
	for rows.Next() {
		var sc domain.SenderCount
		if err := rows.Scan(&sc.Sender, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan sender count: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sender counts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (domain.MailMessage, error) {
	var msg domain.MailMessage
	var labelsRaw []byte
	if err := row.Scan(&msg.ID, &msg.Subject, &msg.From, &msg.Snippet, &msg.InternalDate, &labelsRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MailMessage{}, err
		}
		return domain.MailMessage{}, fmt.Errorf("scan message: %w", err)
	}
	if len(labelsRaw) > 0 {
		if err := json.Unmarshal(labelsRaw, &msg.Labels); err != nil {
			return domain.MailMessage{}, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	return msg, nil
}
