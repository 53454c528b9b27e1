package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type ruleRepository struct {
	mu    sync.RWMutex
	rules map[model.RuleID]*model.Rule
}

func newRuleRepository() *ruleRepository {
	return &ruleRepository{
		rules: make(map[model.RuleID]*model.Rule),
	}
}

func (r *ruleRepository) Put(ctx context.Context, rule *model.Rule) (*model.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := rule.Copy()
	if stored.ID == "" {
		stored.ID = model.NewRuleID()
	}
	if existing, exists := r.rules[stored.ID]; exists {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = time.Now().UTC()
	}

	r.rules[stored.ID] = stored
	return stored.Copy(), nil
}

func (r *ruleRepository) Get(ctx context.Context, id model.RuleID) (*model.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, exists := r.rules[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "rule not found", goerr.V(model.RuleIDKey, id))
	}
	return rule.Copy(), nil
}

func (r *ruleRepository) List(ctx context.Context, ruleTypes []types.RuleType) ([]*model.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Rule, 0)
	for _, rule := range r.rules {
		if len(ruleTypes) > 0 && !slices.Contains(ruleTypes, rule.Type) {
			continue
		}
		result = append(result, rule.Copy())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *ruleRepository) FindSimilar(ctx context.Context, embedding []float32, filter model.RuleFilter) ([]*model.ScoredRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*model.ScoredRule, 0)
	for _, rule := range r.rules {
		if len(rule.Embedding) == 0 {
			continue
		}
		if len(filter.Types) > 0 && !slices.Contains(filter.Types, rule.Type) {
			continue
		}
		results = append(results, &model.ScoredRule{
			Rule:       rule.Copy(),
			Similarity: cosineSimilarity(embedding, rule.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results, nil
}
