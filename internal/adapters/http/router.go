package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
	"github.com/adamstz/organize-mail-sub001/internal/core/ports"
	"github.com/adamstz/organize-mail-sub001/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	queryService  ports.QueryService
	ingestService ports.MessageIngestService
	chatStore     ports.ChatStore
	metrics       *metrics.HTTPServerMetrics
	historySize   int
}

func NewRouter(
	queryService ports.QueryService,
	ingestService ports.MessageIngestService,
	chatStore ports.ChatStore,
	httpMetrics *metrics.HTTPServerMetrics,
	historySize int,
) *Router {
	if historySize <= 0 {
		historySize = 6
	}
	return &Router{
		queryService:  queryService,
		ingestService: ingestService,
		chatStore:     chatStore,
		metrics:       httpMetrics,
		historySize:   historySize,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/labels", rt.labels)
	mux.HandleFunc("/v1/messages", rt.ingestMessage)
	mux.HandleFunc("/v1/messages/", rt.similarMessages)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(recoverMiddleware(handler)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatTurnPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type queryRequest struct {
	Question       string            `json:"question"`
	ChatHistory    []chatTurnPayload `json:"chat_history"`
	ConversationID string            `json:"conversation_id"`
}

type sourcePayload struct {
	MessageID  string  `json:"message_id"`
	Subject    string  `json:"subject"`
	From       string  `json:"from"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
	Date       string  `json:"date,omitempty"`
}

type queryResponse struct {
	QueryType     string          `json:"query_type"`
	Answer        string          `json:"answer"`
	Confidence    float64         `json:"confidence"`
	ResolvedLabel string          `json:"resolved_label,omitempty"`
	ResultCount   int             `json:"result_count"`
	Sources       []sourcePayload `json:"sources"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	history := make([]domain.ChatTurn, 0, len(req.ChatHistory))
	for _, turn := range req.ChatHistory {
		history = append(history, domain.ChatTurn{Role: turn.Role, Content: turn.Content})
	}

	// A conversation id substitutes for client-held history.
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID != "" && len(history) == 0 && rt.chatStore != nil {
		stored, err := rt.chatStore.ListRecentTurns(r.Context(), conversationID, rt.historySize)
		if err != nil {
			slog.Warn("load_conversation_history_failed", "error", err)
		} else {
			history = stored
		}
	}

	start := time.Now()
	result, err := rt.queryService.Query(r.Context(), req.Question, history)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordQueryObservation(serviceName, string(result.QueryType), len(result.Sources), result.Confidence, time.Since(start))
		if result.ResolvedLabel != "" {
			rt.metrics.RecordLabelResolution(serviceName, result.LabelOrigin)
		}
	}
	rt.persistTurns(r, conversationID, req.Question, result.Answer)

	writeJSON(w, http.StatusOK, toQueryResponse(result))
}

// persistTurns appends the exchanged turns when the client drives the
// conversation by id. Failures are logged, never surfaced: the answer is
// already computed.
func (rt *Router) persistTurns(r *http.Request, conversationID, question, answer string) {
	if conversationID == "" || rt.chatStore == nil {
		return
	}
	ctx := r.Context()
	if err := rt.chatStore.EnsureConversation(ctx, conversationID); err != nil {
		slog.Warn("ensure_conversation_failed", "error", err)
		return
	}
	if err := rt.chatStore.AppendTurn(ctx, conversationID, domain.ChatTurn{Role: domain.RoleUser, Content: question}); err != nil {
		slog.Warn("append_user_turn_failed", "error", err)
		return
	}
	if err := rt.chatStore.AppendTurn(ctx, conversationID, domain.ChatTurn{Role: domain.RoleAssistant, Content: answer}); err != nil {
		slog.Warn("append_assistant_turn_failed", "error", err)
	}
}

type ingestRequest struct {
	ID           string   `json:"id"`
	Subject      string   `json:"subject"`
	From         string   `json:"from"`
	Snippet      string   `json:"snippet"`
	InternalDate int64    `json:"internal_date"`
	Labels       []string `json:"labels"`
}

func (rt *Router) ingestMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.ingestService == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	err := rt.ingestService.Ingest(r.Context(), domain.MailMessage{
		ID:           req.ID,
		Subject:      req.Subject,
		From:         req.From,
		Snippet:      req.Snippet,
		InternalDate: req.InternalDate,
		Labels:       req.Labels,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": req.ID, "status": "queued"})
}

func (rt *Router) labels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": domain.AllowedLabels})
}

func (rt *Router) similarMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/messages/")
	messageID, suffix, found := strings.Cut(rest, "/")
	if !found || suffix != "similar" || messageID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 50 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer between 1 and 50"})
			return
		}
		limit = parsed
	}

	refs, err := rt.queryService.FindSimilarMessages(r.Context(), messageID, limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	out := make([]sourcePayload, 0, len(refs))
	for _, ref := range refs {
		out = append(out, toSourcePayload(ref))
	}
	writeJSON(w, http.StatusOK, map[string]any{"similar": out})
}

func toQueryResponse(result *domain.QueryResult) queryResponse {
	sources := make([]sourcePayload, 0, len(result.Sources))
	for _, ref := range result.Sources {
		sources = append(sources, toSourcePayload(ref))
	}
	return queryResponse{
		QueryType:     string(result.QueryType),
		Answer:        result.Answer,
		Confidence:    result.Confidence,
		ResolvedLabel: result.ResolvedLabel,
		ResultCount:   result.ResultCount,
		Sources:       sources,
	}
}

func toSourcePayload(ref domain.SourceRef) sourcePayload {
	return sourcePayload{
		MessageID:  ref.MessageID,
		Subject:    ref.Subject,
		From:       ref.From,
		Snippet:    ref.Snippet,
		Similarity: ref.Similarity,
		Date:       ref.Date,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
