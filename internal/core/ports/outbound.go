package ports

import (
	"context"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

// MessageStore is the relational view of the email corpus. Search results are
// ranked lists (1-based rank, no gaps) joined to summaries by message id.
type MessageStore interface {
	UpsertMessage(ctx context.Context, msg domain.MailMessage) error
	KeywordSearch(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error)
	GetMessagesByIDs(ctx context.Context, ids []string) (map[string]domain.MailMessage, error)
	GetMessageByID(ctx context.Context, id string) (*domain.MailMessage, error)
	ListMessagesByLabel(ctx context.Context, label string, limit int) ([]domain.MailMessage, int, error)
	CountMessagesByLabel(ctx context.Context, label string) (int, error)
	TotalMessageCount(ctx context.Context) (int, error)
	TopSenders(ctx context.Context, limit int) ([]domain.SenderCount, error)
}

// VectorIndex performs semantic search over message embeddings.
type VectorIndex interface {
	IndexMessage(ctx context.Context, msg domain.MailMessage, vector []float32) error
	Search(ctx context.Context, queryVector []float32, limit int, threshold float64, filter domain.SearchFilter) ([]domain.RetrievedDocument, error)
	VectorByMessageID(ctx context.Context, messageID string) ([]float32, error)
}

// Embedder builds fixed-dimension vectors for message text and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is the language-model collaborator. Both calls are network-bound
// and may time out; callers decide which failures are recoverable.
type Generator interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
	// ExtractShort is a system-primed call for terse extraction/classification
	// answers (one word or a sentinel), never free-form prose.
	ExtractShort(ctx context.Context, prompt string) (string, error)
}

// ChatStore persists conversation turns so follow-up questions can reference
// prior topics without the caller resending the transcript.
type ChatStore interface {
	EnsureConversation(ctx context.Context, conversationID string) error
	AppendTurn(ctx context.Context, conversationID string, turn domain.ChatTurn) error
	ListRecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.ChatTurn, error)
}

// MessageQueue carries ingestion events from the mailbox sync collaborator to
// the embedding worker.
type MessageQueue interface {
	PublishMessageIngested(ctx context.Context, messageID string) error
	SubscribeMessageIngested(ctx context.Context, handler func(context.Context, string) error) error
}
