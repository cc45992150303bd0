package domain

import (
	"sort"
	"strings"
)

// AllowedLabels is the fixed set of canonical classification labels. Read-only
// after init; the ingestion pipeline and this engine share the same set.
var AllowedLabels = map[string]struct{}{
	"finance": {}, "banking": {}, "investments": {}, "security": {},
	"authentication": {}, "meetings": {}, "appointments": {}, "personal": {},
	"work": {}, "career": {}, "shopping": {}, "social": {}, "entertainment": {},
	"news": {}, "newsletters": {}, "promotions": {}, "marketing": {}, "spam": {},
	"travel": {}, "health": {}, "education": {}, "legal": {}, "taxes": {},
	"receipts": {}, "notifications": {}, "updates": {}, "alerts": {},
	"support": {}, "bills": {}, "insurance": {}, "job-application": {},
	"job-interview": {}, "job-offer": {}, "job-rejection": {}, "job-ad": {},
	"job-followup": {},
}

// labelSynonyms maps common query terms to canonical labels. Multi-word terms
// must win over their substrings, so lookups go through sortedSynonymTerms.
var labelSynonyms = map[string]string{
	"job rejection":    "job-rejection",
	"job rejections":   "job-rejection",
	"rejected":         "job-rejection",
	"rejection":        "job-rejection",
	"job offer":        "job-offer",
	"job offers":       "job-offer",
	"offer":            "job-offer",
	"interview":        "job-interview",
	"interviews":       "job-interview",
	"job application":  "job-application",
	"job applications": "job-application",
	"applied":          "job-application",
	"job":              "job-application",
	"job ad":           "job-ad",
	"job ads":          "job-ad",
	"job alert":        "job-ad",
	"job followup":     "job-followup",
	"finance":          "finance",
	"financial":        "finance",
	"invoice":          "finance",
	"banking":          "banking",
	"bank":             "banking",
	"investment":       "investments",
	"investments":      "investments",
	"security alert":   "security",
	"security":         "security",
	"authentication":   "authentication",
	"meeting":          "meetings",
	"meetings":         "meetings",
	"appointment":      "appointments",
	"appointments":     "appointments",
	"promo":            "promotions",
	"promotion":        "promotions",
	"promotional":      "promotions",
	"promotions":       "promotions",
	"marketing":        "marketing",
	"newsletter":       "newsletters",
	"newsletters":      "newsletters",
	"shopping":         "shopping",
	"receipt":          "receipts",
	"receipts":         "receipts",
	"bill":             "bills",
	"bills":            "bills",
	"tax":              "taxes",
	"taxes":            "taxes",
	"legal":            "legal",
	"insurance":        "insurance",
	"travel":           "travel",
	"health":           "health",
	"education":        "education",
	"spam":             "spam",
	"notification":     "notifications",
	"notifications":    "notifications",
	"alert":            "alerts",
	"alerts":           "alerts",
	"update":           "updates",
	"updates":          "updates",
	"support":          "support",
}

// sortedSynonymTerms holds synonym keys longest first so that multi-word
// terms ("job application") match before their one-word substrings ("job").
var sortedSynonymTerms = func() []string {
	terms := make([]string, 0, len(labelSynonyms))
	for term := range labelSynonyms {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
	return terms
}()

// CanonicalLabel maps a raw extracted term onto the fixed label set.
// Unknown terms pass through trimmed and lowercased as best-effort labels.
func CanonicalLabel(term string) string {
	normalized := strings.ToLower(strings.TrimSpace(term))
	if normalized == "" {
		return ""
	}
	if label, ok := labelSynonyms[normalized]; ok {
		return label
	}
	if _, ok := AllowedLabels[normalized]; ok {
		return normalized
	}
	return normalized
}

// LabelFromQuery scans a question for a known label term, longest match first.
// Returns the canonical label and whether anything matched.
func LabelFromQuery(question string) (string, bool) {
	questionLower := strings.ToLower(question)
	for _, term := range sortedSynonymTerms {
		if strings.Contains(questionLower, term) {
			return labelSynonyms[term], true
		}
	}
	return "", false
}

// IsAllowedLabel reports whether a label belongs to the canonical set.
func IsAllowedLabel(label string) bool {
	_, ok := AllowedLabels[label]
	return ok
}
