package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
	"github.com/adamstz/organize-mail-sub001/internal/core/ports"
)

// MessageIngestor stores one already-fetched message record and publishes
// its ingested event so the worker picks it up for embedding. Label terms are
// canonicalized on the way in so synonyms collapse to one filterable value.
type MessageIngestor struct {
	store  ports.MessageStore
	queue  ports.MessageQueue
	logger *slog.Logger
}

func NewMessageIngestor(store ports.MessageStore, queue ports.MessageQueue, logger *slog.Logger) *MessageIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageIngestor{store: store, queue: queue, logger: logger}
}

var _ ports.MessageIngestService = (*MessageIngestor)(nil)

func (i *MessageIngestor) Ingest(ctx context.Context, msg domain.MailMessage) error {
	msg.ID = strings.TrimSpace(msg.ID)
	if msg.ID == "" {
		return fmt.Errorf("ingest: %w: empty message id", domain.ErrInvalidInput)
	}

	canonical := make([]string, 0, len(msg.Labels))
	for _, label := range msg.Labels {
		if c := domain.CanonicalLabel(label); c != "" {
			canonical = append(canonical, c)
		}
	}
	msg.Labels = canonical

	if err := i.store.UpsertMessage(ctx, msg); err != nil {
		return domain.WrapError(domain.ErrTemporary, "store message", err)
	}

	if err := i.queue.PublishMessageIngested(ctx, msg.ID); err != nil {
		// Row is stored; a lost event means the message stays unindexed
		// until re-ingested, so surface the failure to the caller.
		return fmt.Errorf("publish ingested event: %w", err)
	}

	i.logger.Info("message_ingested", "message_id", msg.ID, "labels", len(msg.Labels))
	return nil
}
