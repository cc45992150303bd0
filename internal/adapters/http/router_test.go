package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

type fakeQueryService struct {
	result      *domain.QueryResult
	queryErr    error
	similar     []domain.SourceRef
	similarErr  error
	lastHistory []domain.ChatTurn
	lastLimit   int
}

func (s *fakeQueryService) Query(_ context.Context, _ string, history []domain.ChatTurn) (*domain.QueryResult, error) {
	s.lastHistory = history
	return s.result, s.queryErr
}

func (s *fakeQueryService) FindSimilarMessages(_ context.Context, _ string, limit int) ([]domain.SourceRef, error) {
	s.lastLimit = limit
	return s.similar, s.similarErr
}

type fakeChatStore struct {
	turns    []domain.ChatTurn
	appended []domain.ChatTurn
	listErr  error
}

func (s *fakeChatStore) EnsureConversation(context.Context, string) error { return nil }

func (s *fakeChatStore) AppendTurn(_ context.Context, _ string, turn domain.ChatTurn) error {
	s.appended = append(s.appended, turn)
	return nil
}

func (s *fakeChatStore) ListRecentTurns(context.Context, string, int) ([]domain.ChatTurn, error) {
	return s.turns, s.listErr
}

func postQuery(t *testing.T, handler http.Handler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestQueryEndpointHappyPath(t *testing.T) {
	service := &fakeQueryService{result: &domain.QueryResult{
		QueryType:     domain.QueryTypeClassification,
		Answer:        "You have 42 promotional emails.",
		Confidence:    0.9,
		ResolvedLabel: "promotions",
		ResultCount:   42,
		Sources:       []domain.SourceRef{{MessageID: "m1", Subject: "Sale", Similarity: 0.91}},
	}}
	handler := NewRouter(service, nil, nil, nil, 6).Handler()

	res := postQuery(t, handler, `{"question":"how many promotional emails do I have?"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var body queryResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.QueryType != "classification" || body.ResolvedLabel != "promotions" || body.ResultCount != 42 {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(body.Sources) != 1 || body.Sources[0].MessageID != "m1" {
		t.Fatalf("unexpected sources %+v", body.Sources)
	}
}

func TestQueryEndpointValidation(t *testing.T) {
	handler := NewRouter(&fakeQueryService{}, nil, nil, nil, 6).Handler()

	if res := postQuery(t, handler, `{"question":"  "}`); res.Code != http.StatusBadRequest {
		t.Fatalf("blank question: expected 400, got %d", res.Code)
	}
	if res := postQuery(t, handler, `{not json`); res.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: expected 405, got %d", res.Code)
	}
}

func TestQueryEndpointErrorMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusServiceUnavailable:  domain.WrapError(domain.ErrRetrievalUnavailable, "hybrid retrieval", errors.New("down")),
		http.StatusBadGateway:          domain.WrapError(domain.ErrSynthesisFailed, "generate answer", errors.New("down")),
		http.StatusInternalServerError: errors.New("unclassified"),
	}
	for wantStatus, serviceErr := range cases {
		handler := NewRouter(&fakeQueryService{queryErr: serviceErr}, nil, nil, nil, 6).Handler()
		res := postQuery(t, handler, `{"question":"anything"}`)
		if res.Code != wantStatus {
			t.Fatalf("error %v: expected %d, got %d", serviceErr, wantStatus, res.Code)
		}
	}
}

func TestQueryEndpointForwardsChatHistory(t *testing.T) {
	service := &fakeQueryService{result: &domain.QueryResult{QueryType: domain.QueryTypeClassification, Answer: "x"}}
	handler := NewRouter(service, nil, nil, nil, 6).Handler()

	res := postQuery(t, handler, `{
		"question":"who sent the most out of those?",
		"chat_history":[
			{"role":"user","content":"how many promotional emails do I have?"},
			{"role":"assistant","content":"You have 42 promotional emails."}
		]}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(service.lastHistory) != 2 || service.lastHistory[0].Role != "user" {
		t.Fatalf("history not forwarded: %+v", service.lastHistory)
	}
}

func TestQueryEndpointLoadsHistoryByConversationID(t *testing.T) {
	service := &fakeQueryService{result: &domain.QueryResult{QueryType: domain.QueryTypeClassification, Answer: "deals@shop.test"}}
	chat := &fakeChatStore{turns: []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "how many promotional emails do I have?"},
		{Role: domain.RoleAssistant, Content: "You have 42 promotional emails."},
	}}
	handler := NewRouter(service, nil, chat, nil, 6).Handler()

	res := postQuery(t, handler, `{"question":"who sent the most out of those?","conversation_id":"conv-1"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(service.lastHistory) != 2 {
		t.Fatalf("stored history not used: %+v", service.lastHistory)
	}
	// Both turns of this exchange should be persisted afterwards.
	if len(chat.appended) != 2 || chat.appended[0].Role != domain.RoleUser || chat.appended[1].Role != domain.RoleAssistant {
		t.Fatalf("exchange not persisted: %+v", chat.appended)
	}
}

type fakeIngestService struct {
	ingested  []domain.MailMessage
	ingestErr error
}

func (s *fakeIngestService) Ingest(_ context.Context, msg domain.MailMessage) error {
	if s.ingestErr != nil {
		return s.ingestErr
	}
	s.ingested = append(s.ingested, msg)
	return nil
}

func TestIngestEndpoint(t *testing.T) {
	ingest := &fakeIngestService{}
	handler := NewRouter(&fakeQueryService{}, ingest, nil, nil, 6).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(`{
		"id":"m1",
		"subject":"Your receipt",
		"from":"shop@example.test",
		"snippet":"Thanks for your order",
		"internal_date":1709290500000,
		"labels":["receipts"]
	}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(ingest.ingested) != 1 || ingest.ingested[0].ID != "m1" || ingest.ingested[0].From != "shop@example.test" {
		t.Fatalf("message not forwarded: %+v", ingest.ingested)
	}
}

func TestIngestEndpointValidation(t *testing.T) {
	ingest := &fakeIngestService{ingestErr: domain.WrapError(domain.ErrInvalidInput, "ingest", errors.New("empty message id"))}
	handler := NewRouter(&fakeQueryService{}, ingest, nil, nil, 6).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(`{"id":""}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("empty id: expected 400, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(`{not json`))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: expected 405, got %d", res.Code)
	}
}

func TestLabelsEndpoint(t *testing.T) {
	handler := NewRouter(&fakeQueryService{}, nil, nil, nil, 6).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/labels", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Labels) == 0 {
		t.Fatalf("expected label list")
	}
}

func TestSimilarMessagesEndpoint(t *testing.T) {
	service := &fakeQueryService{similar: []domain.SourceRef{
		{MessageID: "m2", Subject: "neighbour", Similarity: 0.91},
	}}
	handler := NewRouter(service, nil, nil, nil, 6).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/m1/similar?limit=3", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if service.lastLimit != 3 {
		t.Fatalf("limit not forwarded, got %d", service.lastLimit)
	}

	var body struct {
		Similar []sourcePayload `json:"similar"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Similar) != 1 || body.Similar[0].MessageID != "m2" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSimilarMessagesEndpointValidation(t *testing.T) {
	service := &fakeQueryService{similarErr: domain.WrapError(domain.ErrMessageNotFound, "vector lookup", errors.New("missing"))}
	handler := NewRouter(service, nil, nil, nil, 6).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/m1/similar?limit=nope", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/messages/ghost/similar", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("unknown message: expected 404, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/messages/m1/unknown", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("bad suffix: expected 404, got %d", res.Code)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	handler := NewRouter(&fakeQueryService{}, nil, nil, nil, 6).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}
