package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
	"github.com/adamstz/organize-mail-sub001/internal/core/ports"
)

// noLabelSentinel is the reply the extraction prompt requests when the
// transcript carries no discernible topic.
const noLabelSentinel = "none"

// HistoryLabelResolver recovers the classification label implied by a
// conversation when the current question omits it ("who sent the most of
// those?"). Recency across competing topics is a prompting contract: the
// transcript is rendered oldest first and the model is asked for the label
// under discussion; the resolver applies no local recency heuristics.
// Resolution failure is never fatal - every error path degrades to absent.
type HistoryLabelResolver struct {
	generator ports.Generator
	timeout   time.Duration
}

func NewHistoryLabelResolver(generator ports.Generator, timeout time.Duration) *HistoryLabelResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HistoryLabelResolver{generator: generator, timeout: timeout}
}

// ResolveLabel returns the canonical label discussed in history, or ok=false
// when the history is empty, the model answers the "none" sentinel, or the
// extraction call fails.
func (r *HistoryLabelResolver) ResolveLabel(ctx context.Context, history []domain.ChatTurn) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	if r.generator == nil {
		return "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.generator.ExtractShort(callCtx, buildLabelExtractionPrompt(history))
	if err != nil {
		slog.Debug("history_label_extraction_failed", "error", err)
		return "", false
	}

	term := cleanExtractedTerm(raw)
	if term == "" || strings.EqualFold(term, noLabelSentinel) {
		return "", false
	}

	return domain.CanonicalLabel(term), true
}

// cleanExtractedTerm is the narrow adapter around the loosely structured
// extraction reply: first line only, markdown/quotes stripped, optional
// "label:" prefix removed, lowercased.
func cleanExtractedTerm(raw string) string {
	term := strings.TrimSpace(raw)
	if idx := strings.IndexByte(term, '\n'); idx >= 0 {
		term = term[:idx]
	}
	term = strings.NewReplacer("**", "", "*", "", "__", "", "`", "").Replace(term)

	lower := strings.ToLower(term)
	for _, prefix := range []string{"label:", "the label is", "answer:"} {
		if strings.HasPrefix(lower, prefix) {
			term = term[len(prefix):]
			lower = strings.ToLower(term)
		}
	}

	term = strings.Trim(term, ` "'.,:;`)
	return strings.ToLower(term)
}
