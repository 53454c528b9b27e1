package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

func factsSummary(blocks []*model.MemoryBlock) string {
	var lines []string
	for _, b := range blocks {
		if b.Type != types.BlockTypeFact {
			continue
		}
		kind := b.Metadata.String("fact_type")
		if kind == "" {
			kind = "fact"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", kind, b.Content))
	}
	return strings.Join(lines, "\n")
}

func evidenceSummary(blocks []*model.MemoryBlock) string {
	var lines []string
	for _, b := range blocks {
		if b.Type != types.BlockTypeEvidence {
			continue
		}
		kind := b.Metadata.String("evidence_type")
		if kind == "" {
			kind = "document"
		}
		line := fmt.Sprintf("- [%s] %s", kind, b.Content)
		if score, ok := b.Metadata.Float("relevance_score"); ok {
			line += fmt.Sprintf(" (relevance: %.2f)", score)
		}
		lines = append(lines, fmt.Sprintf("%s {id: %s}", line, b.ID))
	}
	return strings.Join(lines, "\n")
}

func rulesSummary(blocks []*model.MemoryBlock) string {
	var lines []string
	for _, b := range blocks {
		if b.Type != types.BlockTypeRule {
			continue
		}
		source := b.Metadata.String("rule_source")
		if source == "" {
			source = "rule"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", source, b.Metadata.String("citation"), truncate(b.Content, 500)))
	}
	return strings.Join(lines, "\n")
}

var strategyHeadings = []struct {
	kind  string
	title string
}{
	{"legal_argument", "Legal Arguments"},
	{"negotiation", "Negotiation"},
	{"procedural", "Procedural Steps"},
}

// strategySummary groups strategy blocks by kind, each group ordered by ascending priority
func strategySummary(blocks []*model.MemoryBlock) string {
	byKind := make(map[string][]*model.MemoryBlock)
	for _, b := range blocks {
		if b.Type != types.BlockTypeStrategy {
			continue
		}
		kind := b.Metadata.String("strategy_type")
		if kind != "negotiation" && kind != "procedural" {
			kind = "legal_argument"
		}
		byKind[kind] = append(byKind[kind], b)
	}

	var sections []string
	for _, h := range strategyHeadings {
		group := byKind[h.kind]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return priorityOf(group[i]) < priorityOf(group[j])
		})
		lines := []string{"### " + h.title}
		for _, b := range group {
			lines = append(lines, "- "+b.Content)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

func priorityOf(b *model.MemoryBlock) float64 {
	if p, ok := b.Metadata.Float("priority"); ok {
		return p
	}
	return 99
}
