package ports

import (
	"context"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

// QueryService is the inbound contract for hybrid RAG queries over the corpus.
type QueryService interface {
	Query(ctx context.Context, question string, history []domain.ChatTurn) (*domain.QueryResult, error)
	FindSimilarMessages(ctx context.Context, messageID string, limit int) ([]domain.SourceRef, error)
}

// MessageIndexer is the inbound contract for asynchronous message embedding.
type MessageIndexer interface {
	IndexByID(ctx context.Context, messageID string) error
}

// MessageIngestService accepts one already-fetched message record and hands
// it to the embedding pipeline.
type MessageIngestService interface {
	Ingest(ctx context.Context, msg domain.MailMessage) error
}
