package model

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// Rule is a retrievable legal reference: a statute, procedure, precedent or interpretation.
type Rule struct {
	ID           RuleID
	Type         types.RuleType
	Title        string
	Content      string
	Jurisdiction string
	Source       string
	Category     string
	Embedding    []float32
	CreatedAt    time.Time
}

// Copy returns a deep copy of the rule
func (r *Rule) Copy() *Rule {
	copied := *r
	if r.Embedding != nil {
		copied.Embedding = make([]float32, len(r.Embedding))
		copy(copied.Embedding, r.Embedding)
	}
	return &copied
}

// ScoredRule is a vector search hit over the rule corpus
type ScoredRule struct {
	Rule       *Rule   `json:"rule"`
	Similarity float64 `json:"similarity"`
}

// RuleFilter narrows a vector lookup over the rule corpus
type RuleFilter struct {
	Types []types.RuleType
	Limit int
}

// StaticRule is an entry of the in-memory keyword corpus
type StaticRule struct {
	ID       string         `json:"id" toml:"id"`
	Title    string         `json:"title" toml:"title"`
	Content  string         `json:"content" toml:"content"`
	Source   string         `json:"source" toml:"source"`
	Category string         `json:"category" toml:"category"`
	Metadata map[string]any `json:"metadata,omitempty" toml:"metadata"`
}

// HybridQuery is the input of a two-path rule retrieval
type HybridQuery struct {
	Query          string
	IncludeStatic  bool
	IncludeCaseLaw bool
	Limit          int
	// MinSimilarity overrides the configured floor for the vector path when set
	MinSimilarity *float64
}

// HybridResult keeps static and vector results as separate labeled sets
type HybridResult struct {
	StaticRules []*StaticRule `json:"static_rules"`
	CaseLaw     []*ScoredRule `json:"case_law"`
}
