package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
	"github.com/adamstz/organize-mail-sub001/internal/core/ports"
)

// QueryClassifier maps a question (plus optional history) to exactly one
// query type. Rules run first because they carry no network failure modes;
// the LLM is consulted only for phrasing the rules cannot place, and a
// heuristic pass covers LLM unavailability. Classification never fails:
// unresolvable input yields QueryTypeUnknown.
type QueryClassifier struct {
	generator ports.Generator
	timeout   time.Duration
}

func NewQueryClassifier(generator ports.Generator, timeout time.Duration) *QueryClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QueryClassifier{generator: generator, timeout: timeout}
}

var aggregationCues = []string{
	"how many", "count", "number of", "per day", "total",
	"who emails me most", "most common sender", "top senders",
}

var followUpCues = []string{
	"those", "of them", "from them", "these", "the ones",
}

var conversationCues = []string{
	"hello", "hi there", "thank you", "thanks", "what can you", "help me",
}

func (c *QueryClassifier) Classify(ctx context.Context, question string, history []domain.ChatTurn) domain.QueryType {
	questionLower := strings.ToLower(strings.TrimSpace(question))
	if questionLower == "" {
		return domain.QueryTypeUnknown
	}

	// A question naming a known label routes straight to the label path.
	if _, ok := domain.LabelFromQuery(questionLower); ok {
		return domain.QueryTypeClassification
	}

	// Bare follow-ups ("of those, who sends most?") inherit the labeled set
	// under discussion; the label itself is recovered from history later.
	if len(history) > 0 && containsAny(questionLower, followUpCues) {
		return domain.QueryTypeClassification
	}

	if containsAny(questionLower, conversationCues) {
		return domain.QueryTypeUnknown
	}

	if containsAny(questionLower, aggregationCues) {
		return domain.QueryTypeAggregation
	}

	if c.generator != nil {
		if queryType, ok := c.classifyWithModel(ctx, question, history); ok {
			return queryType
		}
	}

	return c.heuristicFallback(questionLower)
}

func (c *QueryClassifier) classifyWithModel(ctx context.Context, question string, history []domain.ChatTurn) (domain.QueryType, bool) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.generator.ExtractShort(callCtx, buildQueryTypePrompt(question, history))
	if err != nil {
		slog.Debug("query_type_llm_failed", "error", err)
		return domain.QueryTypeUnknown, false
	}

	queryType, ok := parseQueryType(raw)
	if !ok {
		slog.Debug("query_type_llm_unparseable", "raw", raw)
	}
	return queryType, ok
}

// parseQueryType normalizes a loosely structured model reply down to one tag.
// Models often preamble ("the answer is search.") or use near-synonyms, so
// the first recognizable word wins.
func parseQueryType(raw string) (domain.QueryType, bool) {
	reply := strings.ToLower(strings.TrimSpace(raw))
	if reply == "" {
		return domain.QueryTypeUnknown, false
	}

	if idx := strings.Index(reply, "answer is"); idx >= 0 {
		reply = strings.TrimSpace(reply[idx+len("answer is"):])
	}

	first := reply
	if fields := strings.Fields(reply); len(fields) > 0 {
		first = fields[0]
	}
	first = strings.Trim(first, `.,!?":;'`)
	first = strings.ReplaceAll(first, "_", "-")

	switch first {
	case "classification":
		return domain.QueryTypeClassification, true
	case "aggregation", "count":
		return domain.QueryTypeAggregation, true
	case "search", "semantic", "temporal", "filtered-temporal", "search-by-sender":
		return domain.QueryTypeSearch, true
	case "unknown", "conversation":
		return domain.QueryTypeUnknown, true
	}

	switch {
	case strings.Contains(reply, "classification"):
		return domain.QueryTypeClassification, true
	case strings.Contains(reply, "aggregation"), strings.Contains(reply, "statistic"):
		return domain.QueryTypeAggregation, true
	case strings.Contains(reply, "search"), strings.Contains(reply, "semantic"):
		return domain.QueryTypeSearch, true
	}
	return domain.QueryTypeUnknown, false
}

// heuristicFallback covers LLM unavailability. Lookup phrasing and temporal
// phrasing both resolve to a content search; anything with no mail-shaped
// signal at all stays unknown so the caller degrades to generic retrieval.
func (c *QueryClassifier) heuristicFallback(questionLower string) domain.QueryType {
	hasTemporal := containsAny(questionLower, []string{"recent", "latest", "last", "newest", "first", "oldest"})
	hasContent := containsAny(questionLower, []string{"from", "about", "regarding", "email", "mail", "message", "sent", "sender", "who", "what", "which"})
	if hasTemporal || hasContent {
		return domain.QueryTypeSearch
	}
	return domain.QueryTypeUnknown
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
