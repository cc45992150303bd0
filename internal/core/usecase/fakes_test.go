package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

var errFakeLLMDown = errors.New("llm unavailable")

type fakeGenerator struct {
	mu             sync.Mutex
	generateReply  string
	generateErr    error
	extractReply   string
	extractErr     error
	generateCalls  int
	extractCalls   int
	lastPrompt     string
	extractPrompts []string
}

func (g *fakeGenerator) GenerateFromPrompt(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generateCalls++
	g.lastPrompt = prompt
	return g.generateReply, g.generateErr
}

func (g *fakeGenerator) ExtractShort(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extractCalls++
	g.lastPrompt = prompt
	g.extractPrompts = append(g.extractPrompts, prompt)
	return g.extractReply, g.extractErr
}

type fakeStore struct {
	keywordDocs    []domain.RetrievedDocument
	keywordErr     error
	keywordLimit   int
	messages       map[string]domain.MailMessage
	labeled        []domain.MailMessage
	labeledTotal   int
	labeledErr     error
	listedLabel    string
	totalCount     int
	topSenders     []domain.SenderCount
	hydrateErr     error
	upsertErr      error
	keywordQueries []string
}

type fakeQueue struct {
	published  []string
	publishErr error
}

func (q *fakeQueue) PublishMessageIngested(_ context.Context, messageID string) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, messageID)
	return nil
}

func (q *fakeQueue) SubscribeMessageIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

func (s *fakeStore) UpsertMessage(_ context.Context, msg domain.MailMessage) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if s.messages == nil {
		s.messages = map[string]domain.MailMessage{}
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *fakeStore) KeywordSearch(_ context.Context, query string, limit int, _ domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	s.keywordQueries = append(s.keywordQueries, query)
	s.keywordLimit = limit
	return s.keywordDocs, s.keywordErr
}

func (s *fakeStore) GetMessagesByIDs(_ context.Context, ids []string) (map[string]domain.MailMessage, error) {
	if s.hydrateErr != nil {
		return nil, s.hydrateErr
	}
	out := make(map[string]domain.MailMessage, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			out[id] = msg
		}
	}
	return out, nil
}

func (s *fakeStore) GetMessageByID(_ context.Context, id string) (*domain.MailMessage, error) {
	if msg, ok := s.messages[id]; ok {
		return &msg, nil
	}
	return nil, domain.ErrMessageNotFound
}

func (s *fakeStore) ListMessagesByLabel(_ context.Context, label string, _ int) ([]domain.MailMessage, int, error) {
	s.listedLabel = label
	return s.labeled, s.labeledTotal, s.labeledErr
}

func (s *fakeStore) CountMessagesByLabel(_ context.Context, _ string) (int, error) {
	return s.labeledTotal, nil
}

func (s *fakeStore) TotalMessageCount(_ context.Context) (int, error) {
	return s.totalCount, nil
}

func (s *fakeStore) TopSenders(_ context.Context, _ int) ([]domain.SenderCount, error) {
	return s.topSenders, nil
}

type fakeVectors struct {
	searchDocs   []domain.RetrievedDocument
	searchErr    error
	searchLimit  int
	searchThresh float64
	stored       map[string][]float32
	indexed      []string
	indexErr     error
}

func (v *fakeVectors) IndexMessage(_ context.Context, msg domain.MailMessage, _ []float32) error {
	if v.indexErr != nil {
		return v.indexErr
	}
	v.indexed = append(v.indexed, msg.ID)
	return nil
}

func (v *fakeVectors) Search(_ context.Context, _ []float32, limit int, threshold float64, _ domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	v.searchLimit = limit
	v.searchThresh = threshold
	return v.searchDocs, v.searchErr
}

func (v *fakeVectors) VectorByMessageID(_ context.Context, messageID string) ([]float32, error) {
	if vec, ok := v.stored[messageID]; ok {
		return vec, nil
	}
	return nil, domain.ErrMessageNotFound
}

type fakeEmbedder struct {
	vector   []float32
	embedErr error
	texts    []string
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	e.texts = append(e.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	e.texts = append(e.texts, text)
	return e.vector, nil
}

func userTurn(content string) domain.ChatTurn {
	return domain.ChatTurn{Role: domain.RoleUser, Content: content}
}

func assistantTurn(content string) domain.ChatTurn {
	return domain.ChatTurn{Role: domain.RoleAssistant, Content: content}
}
