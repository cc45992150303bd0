package usecase

import (
	"fmt"
	"strings"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

// Prompt builders for the language-model collaborator. Kept together so the
// fuzzy LLM boundary stays isolated from deterministic retrieval logic.

func buildQueryTypePrompt(question string, history []domain.ChatTurn) string {
	historyBlock := ""
	if len(history) > 0 {
		historyBlock = "\nPrevious conversation:\n" + renderTranscript(history, 6)
	}

	return fmt.Sprintf(`Classify this email query by INTENT. Return ONLY the type name, nothing else.

Query: "%s"
%s
NOTE: Pronouns like "those", "them", "of these" reference previous context - focus on what the user wants to DO, not the pronouns.

Types and Examples:

classification (filter by label/category like spam, receipts, jobs):
- "show me spam"
- "job rejections"
- "receipt emails"
- "of those, which are spam"

aggregation (count, statistics, rankings):
- "how many emails total"
- "who emails me most"
- "top 5 senders"

search (look up emails by content, sender or time):
- "emails about the project deadline"
- "recent messages from uber"
- "show me latest 5"

unknown (anything that is not a question about emails)

Type:`, question, historyBlock)
}

func buildLabelExtractionPrompt(history []domain.ChatTurn) string {
	return fmt.Sprintf(`Based on the conversation history below, what email classification label is being discussed?

%s

Look for patterns like:
- "promotional emails", "marketing mail", "spam messages"
- "job applications", "interview emails", "rejection notices"
- "receipt emails", "finance messages", "security alerts"

Return ONLY the classification label (one word) or "none" if unclear:

Examples:
History: "how many promotional emails do I have?" -> Label: promotional
History: "97 job applications" -> Label: job
History: "security alerts" -> Label: security

Now extract from the history above:`, renderTranscript(history, 0))
}

func buildAnswerPrompt(question, context string) string {
	return fmt.Sprintf(`You are an email assistant. I have retrieved emails from the user's mailbox and YOU MUST analyze them.

YOUR TASK:
- For "how many" questions: Count the emails that match based on subject/content
- For other questions: Extract and summarize the relevant information
- Be specific and cite emails by their numbers
- RESPOND IN NATURAL LANGUAGE, NOT JSON. Write a conversational, helpful answer.

===== EMAILS FROM USER'S MAILBOX =====

%s

===== USER QUESTION =====

%s

Analyze the emails above and answer the question naturally.`, context, question)
}

func buildLabeledAnswerPrompt(question, context, label string, totalCount, sampleCount int) string {
	return fmt.Sprintf(`You are an email assistant with DIRECT ACCESS to the user's email database.

The emails below are REAL emails from the user's mailbox that match the label '%s'.
Total emails with this label: %d
Sample shown below: %d emails

YOUR TASK: Answer the user's question about these labeled emails.
- Count how many if asked
- Summarize the content if asked
- List specific examples if asked
- RESPOND IN NATURAL LANGUAGE, NOT JSON

===== LABELED EMAILS =====

%s

===== USER QUESTION =====

%s

Answer naturally based on the emails above.`, label, totalCount, sampleCount, context, question)
}

func buildStatsAnswerPrompt(question, stats string) string {
	return fmt.Sprintf(`You are an email assistant. I've gathered statistics from the user's email database.

YOUR TASK: Answer the user's statistics question using the data below.
- Present numbers clearly
- Highlight top items if relevant
- Be concise but informative
- RESPOND IN NATURAL LANGUAGE, NOT JSON

===== EMAIL STATISTICS =====

%s

===== USER QUESTION =====

%s

Answer based on the statistics above.`, stats, question)
}

// renderTranscript prints turns oldest first, role-prefixed. lastN <= 0 keeps
// the full history; otherwise only the trailing lastN turns are rendered.
func renderTranscript(history []domain.ChatTurn, lastN int) string {
	turns := history
	if lastN > 0 && len(turns) > lastN {
		turns = turns[len(turns)-lastN:]
	}

	var b strings.Builder
	for _, turn := range turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := "Assistant"
		if strings.EqualFold(strings.TrimSpace(turn.Role), domain.RoleUser) {
			role = "User"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
