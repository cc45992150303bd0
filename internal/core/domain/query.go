package domain

// QueryType is the closed set of actionable query intents. Every question
// resolves to exactly one tag.
type QueryType string

const (
	QueryTypeClassification QueryType = "classification"
	QueryTypeSearch         QueryType = "search"
	QueryTypeAggregation    QueryType = "aggregation"
	QueryTypeUnknown        QueryType = "unknown"
)

// ChatTurn is one prior message of the conversation, oldest first in a history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RetrievalSource identifies which ranked list a document came from.
type RetrievalSource string

const (
	SourceKeyword RetrievalSource = "keyword"
	SourceVector  RetrievalSource = "vector"
)

// RetrievedDocument is one entry of a single source's ranked list.
// Rank is 1-based, strictly increasing within a list.
type RetrievedDocument struct {
	ID     string          `json:"id"`
	Rank   int             `json:"rank"`
	Source RetrievalSource `json:"source"`
	Score  float64         `json:"score"`
}

// FusedDocument is a document after rank fusion, never persisted.
type FusedDocument struct {
	ID      string            `json:"id"`
	Score   float64           `json:"score"`
	Sources []RetrievalSource `json:"sources"`
}

// FromBothSources reports whether keyword and vector retrieval both returned it.
func (d FusedDocument) FromBothSources() bool {
	return len(d.Sources) > 1
}

// Label origins: where a classification label was pinned down.
const (
	LabelOriginQuestion = "question"
	LabelOriginHistory  = "history"
)

// SearchFilter narrows retrieval to one canonical classification label.
type SearchFilter struct {
	Label string
}

// SourceRef is the caller-visible provenance of one answer source.
type SourceRef struct {
	MessageID  string  `json:"message_id"`
	Subject    string  `json:"subject"`
	From       string  `json:"from"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
	Date       string  `json:"date,omitempty"`
}

// QueryResult is the terminal outcome of one query request.
type QueryResult struct {
	QueryType     QueryType   `json:"query_type"`
	Answer        string      `json:"answer"`
	Confidence    float64     `json:"confidence"`
	ResolvedLabel string      `json:"resolved_label,omitempty"`
	LabelOrigin   string      `json:"label_origin,omitempty"`
	ResultCount   int         `json:"result_count"`
	Sources       []SourceRef `json:"sources,omitempty"`
}
