package core

import (
	"fmt"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/m-mizutani/gollem"
)

// New builds the lookup tools offered to a reasoning agent working on one case.
// Tools only read: memory search and listing over the case, and hybrid rule search.
func New(memory interfaces.MemoryStore, rules interfaces.RuleRetriever, caseID model.CaseID) []gollem.Tool {
	return []gollem.Tool{
		&searchMemoryTool{memory: memory, caseID: caseID},
		&listCaseMemoryTool{memory: memory, caseID: caseID},
		&searchRulesTool{rules: rules},
	}
}

func extractInt64(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

func extractBool(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func limitArg(args map[string]any, fallback, maximum int) int {
	limit := fallback
	if v, err := extractInt64(args, "limit"); err == nil && v > 0 {
		limit = int(v)
	}
	return min(limit, maximum)
}
