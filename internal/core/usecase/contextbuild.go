package usecase

import (
	"fmt"
	"strings"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

const (
	defaultContextMaxItems = 10
	fallbackSubject        = "No subject"
	fallbackSender         = "Unknown"
	fallbackContent        = "No content available"
	contextDateLayout      = "2006-01-02 15:04"
)

// ContextBuilder renders retrieved mail into the plain-text block handed to
// the answer prompt. The block is deterministic for identical inputs: entries
// follow fused order, numbering starts at 1, and missing fields render as
// fixed fallbacks rather than empty strings so the model never sees a bare
// "Subject:" line.
type ContextBuilder struct {
	maxItems int
}

func NewContextBuilder(maxItems int) *ContextBuilder {
	if maxItems <= 0 {
		maxItems = defaultContextMaxItems
	}
	return &ContextBuilder{maxItems: maxItems}
}

// Build assembles the retrieval context. Fused documents with no hydrated
// message are skipped; the sequence numbering still stays gapless.
func (b *ContextBuilder) Build(fused []domain.FusedDocument, messages map[string]domain.MailMessage, history []domain.ChatTurn) string {
	var sb strings.Builder

	if transcript := renderTranscript(history, 6); transcript != "" {
		sb.WriteString("Previous conversation:\n")
		sb.WriteString(transcript)
		sb.WriteString("\n\n")
	}

	n := 0
	for _, doc := range fused {
		if n >= b.maxItems {
			break
		}
		msg, ok := messages[doc.ID]
		if !ok {
			continue
		}
		n++
		writeEmailEntry(&sb, n, doc.Score, msg)
	}

	if n == 0 {
		sb.WriteString("No emails were found matching the query.\n")
	}

	return sb.String()
}

// BuildLabeled renders a labeled sample without relevance scores; listing by
// label has no ranking signal worth showing the model.
func (b *ContextBuilder) BuildLabeled(messages []domain.MailMessage) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i >= b.maxItems {
			break
		}
		fmt.Fprintf(&sb, "Email %d:\n", i+1)
		writeEmailFields(&sb, msg)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		sb.WriteString("No emails carry this label.\n")
	}
	return sb.String()
}

func writeEmailEntry(sb *strings.Builder, seq int, score float64, msg domain.MailMessage) {
	fmt.Fprintf(sb, "Email %d (Relevance: %.2f):\n", seq, score)
	writeEmailFields(sb, msg)
	sb.WriteString("\n")
}

func writeEmailFields(sb *strings.Builder, msg domain.MailMessage) {
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = fallbackSubject
	}
	sender := strings.TrimSpace(msg.From)
	if sender == "" {
		sender = fallbackSender
	}
	content := strings.TrimSpace(msg.Snippet)
	if content == "" {
		content = fallbackContent
	}
	date := "Unknown"
	if received := msg.ReceivedAt(); !received.IsZero() {
		date = received.Format(contextDateLayout)
	}

	fmt.Fprintf(sb, "Subject: %s\n", subject)
	fmt.Fprintf(sb, "From: %s\n", sender)
	fmt.Fprintf(sb, "Date: %s\n", date)
	fmt.Fprintf(sb, "Content: %s\n", content)
}
