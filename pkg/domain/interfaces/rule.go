package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// RuleRepository defines the interface for the vector-searchable rule corpus
type RuleRepository interface {
	// Put creates or replaces a rule by ID
	Put(ctx context.Context, rule *model.Rule) (*model.Rule, error)

	// Get retrieves a rule by ID. Returns model.ErrNotFound when absent.
	Get(ctx context.Context, id model.RuleID) (*model.Rule, error)

	// List returns rules of the given types (all rules when empty)
	List(ctx context.Context, ruleTypes []types.RuleType) ([]*model.Rule, error)

	// FindSimilar returns up to filter.Limit rules of filter.Types ordered by
	// descending cosine similarity to embedding.
	FindSimilar(ctx context.Context, embedding []float32, filter model.RuleFilter) ([]*model.ScoredRule, error)
}
