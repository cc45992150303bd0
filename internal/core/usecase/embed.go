package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
	"github.com/adamstz/organize-mail-sub001/internal/core/ports"
)

// MessageEmbedder is the worker-side pipeline: load a stored message, embed
// its searchable text and upsert the vector. Driven by ingestion events from
// the queue; idempotent because the vector index upserts by message id.
type MessageEmbedder struct {
	store    ports.MessageStore
	vectors  ports.VectorIndex
	embedder ports.Embedder
	logger   *slog.Logger
}

func NewMessageEmbedder(store ports.MessageStore, vectors ports.VectorIndex, embedder ports.Embedder, logger *slog.Logger) *MessageEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageEmbedder{store: store, vectors: vectors, embedder: embedder, logger: logger}
}

var _ ports.MessageIndexer = (*MessageEmbedder)(nil)

func (e *MessageEmbedder) IndexByID(ctx context.Context, messageID string) error {
	msg, err := e.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", messageID, err)
	}

	text := embeddableText(*msg)
	if text == "" {
		// Nothing searchable; skip rather than index an empty vector.
		e.logger.Warn("message_has_no_embeddable_text", "message_id", messageID)
		return nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "embed message", err)
	}

	if err := e.vectors.IndexMessage(ctx, *msg, vector); err != nil {
		return domain.WrapError(domain.ErrTemporary, "index message", err)
	}

	e.logger.Info("message_indexed", "message_id", messageID)
	return nil
}

// embeddableText joins the fields worth searching over. Subject carries most
// of the signal, snippet adds body context, sender helps "from X" queries.
func embeddableText(msg domain.MailMessage) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{msg.Subject, msg.From, msg.Snippet} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n")
}
