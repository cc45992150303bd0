package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
	"github.com/adamstz/organize-mail-sub001/internal/core/ports"
)

// QueryConfig carries the retrieval knobs. Zero values fall back to the
// defaults used throughout the engine.
type QueryConfig struct {
	TopK            int
	ScoreThreshold  float64
	KeywordWeight   float64
	VectorWeight    float64
	RRFK            int
	ContextMaxItems int
	LLMTimeout      time.Duration
}

func (c QueryConfig) withDefaults() QueryConfig {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = 0.35
	}
	if c.KeywordWeight <= 0 && c.VectorWeight <= 0 {
		c.KeywordWeight = 0.4
		c.VectorWeight = 0.6
	}
	if c.RRFK <= 0 {
		c.RRFK = defaultRRFK
	}
	if c.ContextMaxItems <= 0 {
		c.ContextMaxItems = defaultContextMaxItems
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 30 * time.Second
	}
	return c
}

// QueryOrchestrator drives a question through classification, retrieval,
// fusion and synthesis. Classifier and resolver failures degrade to broader
// paths; retrieval and synthesis failures surface as errors because without
// them there is nothing truthful to answer with.
type QueryOrchestrator struct {
	classifier *QueryClassifier
	resolver   *HistoryLabelResolver
	builder    *ContextBuilder
	store      ports.MessageStore
	vectors    ports.VectorIndex
	embedder   ports.Embedder
	generator  ports.Generator
	cfg        QueryConfig
	logger     *slog.Logger
}

func NewQueryOrchestrator(
	store ports.MessageStore,
	vectors ports.VectorIndex,
	embedder ports.Embedder,
	generator ports.Generator,
	cfg QueryConfig,
	logger *slog.Logger,
) *QueryOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &QueryOrchestrator{
		classifier: NewQueryClassifier(generator, cfg.LLMTimeout),
		resolver:   NewHistoryLabelResolver(generator, cfg.LLMTimeout),
		builder:    NewContextBuilder(cfg.ContextMaxItems),
		store:      store,
		vectors:    vectors,
		embedder:   embedder,
		generator:  generator,
		cfg:        cfg,
		logger:     logger,
	}
}

var _ ports.QueryService = (*QueryOrchestrator)(nil)

func (o *QueryOrchestrator) Query(ctx context.Context, question string, history []domain.ChatTurn) (*domain.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("query: %w: empty question", domain.ErrInvalidInput)
	}

	queryType := o.classifier.Classify(ctx, question, history)
	o.logger.Info("query_classified", "query_type", string(queryType))

	switch queryType {
	case domain.QueryTypeClassification:
		result, err := o.answerLabeled(ctx, question, history)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errLabelUnresolved) {
			return nil, err
		}
		// No label could be pinned down; fall through to generic retrieval
		// with the query type preserved so the caller sees what happened.
		o.logger.Info("label_unresolved_degrading_to_search")
		result, err = o.answerBySearch(ctx, question, history, queryType)
		if err != nil {
			return nil, err
		}
		return result, nil
	case domain.QueryTypeAggregation:
		return o.answerAggregation(ctx, question)
	default:
		return o.answerBySearch(ctx, question, history, queryType)
	}
}

var errLabelUnresolved = errors.New("no classification label resolved")

// answerLabeled serves "show me spam"-style questions by listing the labeled
// set directly instead of searching for it.
func (o *QueryOrchestrator) answerLabeled(ctx context.Context, question string, history []domain.ChatTurn) (*domain.QueryResult, error) {
	label, ok := domain.LabelFromQuery(question)
	origin := domain.LabelOriginQuestion
	if !ok {
		label, ok = o.resolver.ResolveLabel(ctx, history)
		origin = domain.LabelOriginHistory
	}
	if !ok {
		return nil, errLabelUnresolved
	}

	messages, total, err := o.store.ListMessagesByLabel(ctx, label, o.cfg.ContextMaxItems)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "list by label", err)
	}

	answer, err := o.synthesize(ctx, buildLabeledAnswerPrompt(
		question, o.builder.BuildLabeled(messages), label, total, len(messages)))
	if err != nil {
		return nil, err
	}

	sources := make([]domain.SourceRef, 0, len(messages))
	for _, msg := range messages {
		sources = append(sources, sourceRefFromMessage(msg, 1.0))
	}

	confidence := 0.9
	if total == 0 {
		confidence = 0.1
	}
	return &domain.QueryResult{
		QueryType:     domain.QueryTypeClassification,
		Answer:        answer,
		Confidence:    confidence,
		ResolvedLabel: label,
		LabelOrigin:   origin,
		ResultCount:   total,
		Sources:       sources,
	}, nil
}

func (o *QueryOrchestrator) answerAggregation(ctx context.Context, question string) (*domain.QueryResult, error) {
	total, err := o.store.TotalMessageCount(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "total count", err)
	}
	senders, err := o.store.TopSenders(ctx, 5)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "top senders", err)
	}

	var stats strings.Builder
	fmt.Fprintf(&stats, "Total emails: %d\n", total)
	if len(senders) > 0 {
		stats.WriteString("Top senders:\n")
		for i, s := range senders {
			fmt.Fprintf(&stats, "%d. %s (%d emails)\n", i+1, s.Sender, s.Count)
		}
	}

	answer, err := o.synthesize(ctx, buildStatsAnswerPrompt(question, stats.String()))
	if err != nil {
		return nil, err
	}

	return &domain.QueryResult{
		QueryType:   domain.QueryTypeAggregation,
		Answer:      answer,
		Confidence:  0.95,
		ResultCount: total,
	}, nil
}

func (o *QueryOrchestrator) answerBySearch(ctx context.Context, question string, history []domain.ChatTurn, queryType domain.QueryType) (*domain.QueryResult, error) {
	limit, threshold := o.retrievalParams(question)

	keyword, vector, err := o.retrieveConcurrently(ctx, question, limit, threshold)
	if err != nil {
		return nil, err
	}

	fused := trimFused(
		fuseRankedLists(keyword, vector, o.cfg.KeywordWeight, o.cfg.VectorWeight, o.cfg.RRFK),
		limit,
	)

	messages := map[string]domain.MailMessage{}
	if len(fused) > 0 {
		ids := make([]string, 0, len(fused))
		for _, doc := range fused {
			ids = append(ids, doc.ID)
		}
		messages, err = o.store.GetMessagesByIDs(ctx, ids)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "hydrate messages", err)
		}
	}

	answer, err := o.synthesize(ctx, buildAnswerPrompt(question, o.builder.Build(fused, messages, history)))
	if err != nil {
		return nil, err
	}

	sources := make([]domain.SourceRef, 0, len(fused))
	for _, doc := range fused {
		msg, ok := messages[doc.ID]
		if !ok {
			continue
		}
		sources = append(sources, sourceRefFromMessage(msg, doc.Score))
	}

	return &domain.QueryResult{
		QueryType:   queryType,
		Answer:      answer,
		Confidence:  deriveConfidence(queryType, topScore(vector), len(sources)),
		ResultCount: len(sources),
		Sources:     sources,
	}, nil
}

// retrievalParams widens counting questions: "how many X" needs the bulk of
// the matching set, not the ten closest hits.
func (o *QueryOrchestrator) retrievalParams(question string) (int, float64) {
	limit := o.cfg.TopK
	threshold := o.cfg.ScoreThreshold

	lower := strings.ToLower(question)
	if strings.Contains(lower, "how many") || strings.Contains(lower, "count") {
		if limit < 50 {
			limit = 50
		}
		if threshold > 0.25 {
			threshold = 0.25
		}
	}
	return limit, threshold
}

// retrieveConcurrently runs the keyword and vector legs in parallel and joins
// both. A single failed leg degrades to the surviving one; both legs failing
// means the engine has no evidence at all, which is fatal.
func (o *QueryOrchestrator) retrieveConcurrently(ctx context.Context, question string, limit int, threshold float64) ([]domain.RetrievedDocument, []domain.RetrievedDocument, error) {
	var (
		wg         sync.WaitGroup
		keyword    []domain.RetrievedDocument
		vector     []domain.RetrievedDocument
		keywordErr error
		vectorErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		keyword, keywordErr = o.store.KeywordSearch(ctx, question, limit, domain.SearchFilter{})
	}()
	go func() {
		defer wg.Done()
		queryVector, err := o.embedder.EmbedQuery(ctx, question)
		if err != nil {
			vectorErr = fmt.Errorf("embed query: %w", err)
			return
		}
		vector, vectorErr = o.vectors.Search(ctx, queryVector, limit, threshold, domain.SearchFilter{})
	}()
	wg.Wait()

	if keywordErr != nil && vectorErr != nil {
		return nil, nil, domain.WrapError(domain.ErrRetrievalUnavailable, "hybrid retrieval",
			errors.Join(keywordErr, vectorErr))
	}
	if keywordErr != nil {
		o.logger.Warn("keyword_retrieval_failed", "error", keywordErr)
	}
	if vectorErr != nil {
		o.logger.Warn("vector_retrieval_failed", "error", vectorErr)
	}
	return keyword, vector, nil
}

func (o *QueryOrchestrator) synthesize(ctx context.Context, prompt string) (string, error) {
	answer, err := o.generator.GenerateFromPrompt(ctx, prompt)
	if err != nil {
		return "", domain.WrapError(domain.ErrSynthesisFailed, "generate answer", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", domain.WrapError(domain.ErrSynthesisFailed, "generate answer", errors.New("empty completion"))
	}
	return answer, nil
}

// FindSimilarMessages looks up the stored vector of a message and returns its
// nearest neighbours, excluding the message itself.
func (o *QueryOrchestrator) FindSimilarMessages(ctx context.Context, messageID string, limit int) ([]domain.SourceRef, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("find similar: %w: empty message id", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 5
	}

	vector, err := o.vectors.VectorByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	neighbours, err := o.vectors.Search(ctx, vector, limit+1, 0, domain.SearchFilter{})
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "similar search", err)
	}

	ids := make([]string, 0, len(neighbours))
	for _, doc := range neighbours {
		if doc.ID == messageID {
			continue
		}
		ids = append(ids, doc.ID)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return []domain.SourceRef{}, nil
	}

	messages, err := o.store.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "hydrate similar", err)
	}

	refs := make([]domain.SourceRef, 0, len(ids))
	for _, doc := range neighbours {
		if doc.ID == messageID {
			continue
		}
		msg, ok := messages[doc.ID]
		if !ok {
			continue
		}
		refs = append(refs, sourceRefFromMessage(msg, doc.Score))
		if len(refs) == limit {
			break
		}
	}
	return refs, nil
}

// deriveConfidence folds classification certainty and retrieval yield into a
// single number. Bands follow the vector similarity of the best hit; an empty
// result set is near-zero confidence no matter how sure the classifier was.
func deriveConfidence(queryType domain.QueryType, topVectorScore float64, resultCount int) float64 {
	if resultCount == 0 {
		return 0.1
	}

	var confidence float64
	switch {
	case topVectorScore > 0.8:
		confidence = 0.9
	case topVectorScore > 0.6:
		confidence = 0.7
	default:
		confidence = 0.5
	}

	if queryType == domain.QueryTypeUnknown {
		confidence *= 0.8
	}
	return confidence
}

func topScore(docs []domain.RetrievedDocument) float64 {
	top := 0.0
	for _, doc := range docs {
		if doc.Score > top {
			top = doc.Score
		}
	}
	return top
}

func sourceRefFromMessage(msg domain.MailMessage, similarity float64) domain.SourceRef {
	date := ""
	if received := msg.ReceivedAt(); !received.IsZero() {
		date = received.Format(contextDateLayout)
	}
	return domain.SourceRef{
		MessageID:  msg.ID,
		Subject:    msg.Subject,
		From:       msg.From,
		Snippet:    msg.Snippet,
		Similarity: similarity,
		Date:       date,
	}
}
