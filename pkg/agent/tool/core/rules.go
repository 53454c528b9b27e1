package core

import (
	"context"
	"fmt"

	"github.com/LalaIAm/case-agent/pkg/agent/tool"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// searchRulesTool runs a hybrid search over the court rule corpus and stored case law
type searchRulesTool struct {
	rules interfaces.RuleRetriever
}

func (t *searchRulesTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__search_rules",
		Description: "Search Minnesota conciliation court rules by keyword and stored case law or interpretations by semantic similarity",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "Keywords or a question about the rule",
				Required:    true,
			},
			"include_case_law": {
				Type:        gollem.TypeBoolean,
				Description: "Also search case law and interpretations (default: true)",
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: "Maximum number of results per source (default: 5)",
			},
		},
	}
}

func (t *searchRulesTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	tool.Updatef(ctx, "Searching court rules: %s", query)

	result, err := t.rules.HybridSearch(ctx, model.HybridQuery{
		Query:          query,
		IncludeStatic:  true,
		IncludeCaseLaw: extractBool(args, "include_case_law", true),
		Limit:          limitArg(args, 5, 20),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search rules", goerr.V("query", query))
	}

	static := make([]map[string]any, len(result.StaticRules))
	for i, r := range result.StaticRules {
		static[i] = map[string]any{
			"id":       r.ID,
			"title":    r.Title,
			"content":  r.Content,
			"source":   r.Source,
			"category": r.Category,
		}
	}

	caseLaw := make([]map[string]any, len(result.CaseLaw))
	for i, hit := range result.CaseLaw {
		caseLaw[i] = map[string]any{
			"id":           string(hit.Rule.ID),
			"type":         string(hit.Rule.Type),
			"title":        hit.Rule.Title,
			"content":      hit.Rule.Content,
			"source":       hit.Rule.Source,
			"jurisdiction": hit.Rule.Jurisdiction,
			"similarity":   hit.Similarity,
		}
	}

	return map[string]any{
		"static_rules": static,
		"case_law":     caseLaw,
	}, nil
}
