package core

import (
	"context"
	"fmt"

	"github.com/LalaIAm/case-agent/pkg/agent/tool"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

var blockTypeNames = func() []string {
	names := make([]string, 0, len(types.AllBlockTypes()))
	for _, t := range types.AllBlockTypes() {
		names = append(names, string(t))
	}
	return names
}()

func blockTypesArg(args map[string]any) ([]types.BlockType, error) {
	raw, _ := args["block_type"].(string)
	if raw == "" {
		return nil, nil
	}
	t := types.BlockType(raw)
	if !t.IsValid() {
		return nil, fmt.Errorf("unknown block_type %q", raw)
	}
	return []types.BlockType{t}, nil
}

func blockItem(b *model.MemoryBlock) map[string]any {
	return map[string]any{
		"id":         string(b.ID),
		"type":       string(b.Type),
		"content":    b.Content,
		"metadata":   map[string]any(b.Metadata),
		"created_at": b.CreatedAt.String(),
	}
}

// searchMemoryTool searches the case memory by semantic similarity
type searchMemoryTool struct {
	memory interfaces.MemoryStore
	caseID model.CaseID
}

func (t *searchMemoryTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__search_memory",
		Description: "Search the recorded facts, evidence, rules, questions and strategy of the current case by semantic similarity to the query",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "Search query text",
				Required:    true,
			},
			"block_type": {
				Type:        gollem.TypeString,
				Description: "Restrict results to one kind of memory",
				Enum:        blockTypeNames,
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: "Maximum number of results to return (default: 5)",
			},
		},
	}
}

func (t *searchMemoryTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	blockTypes, err := blockTypesArg(args)
	if err != nil {
		return nil, err
	}

	tool.Updatef(ctx, "Searching case memory: %s", query)

	hits, err := t.memory.Search(ctx, model.MemorySearch{
		Query: query,
		Scope: model.CaseScope(t.caseID),
		Types: blockTypes,
		Limit: limitArg(args, 5, 20),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memory", goerr.V(model.CaseIDKey, t.caseID))
	}

	items := make([]map[string]any, len(hits))
	for i, hit := range hits {
		item := blockItem(hit.Block)
		item["similarity"] = hit.Similarity
		items[i] = item
	}
	return map[string]any{"blocks": items}, nil
}

// listCaseMemoryTool lists the newest memory of the current case
type listCaseMemoryTool struct {
	memory interfaces.MemoryStore
	caseID model.CaseID
}

func (t *listCaseMemoryTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__list_case_memory",
		Description: "List the most recent memory of the current case, newest first",
		Parameters: map[string]*gollem.Parameter{
			"block_type": {
				Type:        gollem.TypeString,
				Description: "Restrict results to one kind of memory",
				Enum:        blockTypeNames,
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: "Maximum number of blocks to return (default: 20)",
			},
		},
	}
}

func (t *listCaseMemoryTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	blockTypes, err := blockTypesArg(args)
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, "Listing case memory...")

	blocks, err := t.memory.CaseContext(ctx, t.caseID, blockTypes, limitArg(args, 20, 100))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list case memory", goerr.V(model.CaseIDKey, t.caseID))
	}

	items := make([]map[string]any, len(blocks))
	for i, b := range blocks {
		items[i] = blockItem(b)
	}
	return map[string]any{"blocks": items}, nil
}
