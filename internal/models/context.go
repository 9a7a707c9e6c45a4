package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scored decorates a record with its similarity to the current query.
// Relevance is nil when no query was supplied and is always serialized,
// as null in that case, alongside the record's own fields.
type Scored[T any] struct {
	Item      T
	Relevance *float64
}

func (s Scored[T]) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(s.Item)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("scored item must encode as an object: %w", err)
	}
	rel, err := json.Marshal(s.Relevance)
	if err != nil {
		return nil, err
	}
	fields["relevance"] = rel
	return json.Marshal(fields)
}

// Unscored wraps items in recency order with a nil relevance.
func Unscored[T any](items []T) []Scored[T] {
	out := make([]Scored[T], len(items))
	for i, it := range items {
		out[i] = Scored[T]{Item: it}
	}
	return out
}

// ContextSnapshot is the assembled view of memory returned for a query.
// It is rebuilt on every request and never persisted.
type ContextSnapshot struct {
	ShortTerm   ShortTermContext `json:"shortTerm"`
	LongTerm    LongTermContext  `json:"longTerm"`
	Episodic    EpisodicContext  `json:"episodic"`
	Semantic    *SemanticContext `json:"semantic,omitempty"`
	Query       string           `json:"query,omitempty"`
	Storage     string           `json:"storage"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Error       string           `json:"error,omitempty"`
}

type ShortTermContext struct {
	RecentMessages []Scored[Message]    `json:"recentMessages"`
	ActiveFiles    []Scored[ActiveFile] `json:"activeFiles"`
	Errors         []string             `json:"errors,omitempty"`
}

type LongTermContext struct {
	Milestones   []Scored[Milestone]   `json:"milestones"`
	Decisions    []Scored[Decision]    `json:"decisions"`
	Requirements []Scored[Requirement] `json:"requirements"`
	Errors       []string              `json:"errors,omitempty"`
}

type EpisodicContext struct {
	RecentEpisodes []Scored[Episode] `json:"recentEpisodes"`
	Errors         []string          `json:"errors,omitempty"`
}

type SemanticContext struct {
	SimilarMessages []SemanticMatch `json:"similarMessages"`
	SimilarFiles    []SemanticMatch `json:"similarFiles"`
	CodeSnippets    []SnippetGroup  `json:"codeSnippets"`
	Errors          []string        `json:"errors,omitempty"`
}

// SemanticMatch is a similarity hit resolved to a human-readable label
// (message text or file path) when the owning record still exists.
type SemanticMatch struct {
	ContentID   string  `json:"contentId"`
	ContentType string  `json:"contentType"`
	Similarity  float64 `json:"similarity"`
	Label       string  `json:"label,omitempty"`
}

// SnippetGroup collects snippet hits from one file. Relevance is the
// highest similarity of any snippet in the group.
type SnippetGroup struct {
	FilePath  string         `json:"filePath"`
	Relevance float64        `json:"relevance"`
	Snippets  []SnippetMatch `json:"snippets"`
}

type SnippetMatch struct {
	SnippetID  int64   `json:"snippetId"`
	SymbolName string  `json:"symbolName"`
	SymbolKind string  `json:"symbolKind"`
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	Language   string  `json:"language"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}
