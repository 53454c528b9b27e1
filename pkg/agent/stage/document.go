package stage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"golang.org/x/sync/errgroup"
)

// Document analyzes uploaded documents and records the evidence they contain
type Document struct {
	llm gollem.LLMClient
	cfg Config
}

type evidenceItem struct {
	Content        string   `json:"content"`
	EvidenceType   string   `json:"evidence_type"`
	RelevanceScore *float64 `json:"relevance_score"`
}

type documentSummary struct {
	Summary    string   `json:"summary"`
	KeyDetails []string `json:"key_details"`
}

type documentOutput struct {
	EvidenceItems       []evidenceItem    `json:"evidence_items"`
	DocumentSummaries   []documentSummary `json:"document_summaries"`
	RelevanceRationales map[string]string `json:"relevance_rationales"`
}

var documentSchema = &gollem.Parameter{
	Title:       "DocumentAnalysis",
	Description: "Evidence extracted from one document",
	Type:        gollem.TypeObject,
	Properties: map[string]*gollem.Parameter{
		"evidence_items": {
			Type: gollem.TypeArray,
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"content":         {Type: gollem.TypeString, Required: true},
					"evidence_type":   {Type: gollem.TypeString, Enum: []string{"document", "witness", "physical"}},
					"relevance_score": {Type: gollem.TypeNumber, Description: "Between 0 and 1"},
				},
			},
			Required: true,
		},
		"document_summaries": {
			Type: gollem.TypeArray,
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"summary":     {Type: gollem.TypeString, Required: true},
					"key_details": {Type: gollem.TypeArray, Items: &gollem.Parameter{Type: gollem.TypeString}},
				},
			},
		},
		"relevance_rationales": {
			Type:        gollem.TypeObject,
			Description: "Rationale per evidence index, keyed by the index as a string",
		},
	},
}

const (
	defaultRelevance = 0.7
	highRelevance    = 0.7
	linkedFacts      = 3
)

type documentTally struct {
	evidence      int
	highRelevance int
}

func (p *Document) Stage() types.Stage { return types.StageDocument }

func (p *Document) Execute(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
	docs, err := env.Documents.ListByCase(ctx, input.Case.ID, types.DocumentKindUploaded)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}
	if len(docs) == 0 {
		env.Reasoning.LogReasoning(ctx, input.RunID, "No uploaded documents; skipping.")
		return model.Skipped("case has no uploaded documents", documentDefaults()), nil
	}

	evidence, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeEvidence, 1000)
	if err != nil {
		return nil, err
	}
	analyzed := make(map[string]bool)
	for _, b := range excludeRun(evidence, input.RunID) {
		if id := b.Metadata.String("document_id"); id != "" {
			analyzed[id] = true
		}
	}

	var pending []*model.Document
	for _, d := range docs {
		if analyzed[string(d.ID)] || strings.TrimSpace(d.Content) == "" {
			continue
		}
		pending = append(pending, d)
		if len(pending) >= p.cfg.DocumentBatchSize {
			break
		}
	}
	if len(pending) == 0 {
		env.Reasoning.LogReasoning(ctx, input.RunID, "Every uploaded document was already analyzed.")
		return model.Skipped("no unanalyzed documents", documentDefaults()), nil
	}

	factBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeFact, 50)
	if err != nil {
		return nil, err
	}
	facts := p.cfg.fit(factsSummary(factBlocks))

	w, err := newBlockWriter(ctx, env, p.Stage(), input)
	if err != nil {
		return nil, err
	}

	tallies := make([]documentTally, len(pending))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.DocumentConcurrency)
	for i, doc := range pending {
		eg.Go(func() error {
			tally, err := p.analyze(egCtx, input, env, w, doc, facts)
			if err != nil {
				return goerr.Wrap(err, "failed to analyze document", goerr.V("document_id", doc.ID), goerr.V("filename", doc.Filename))
			}
			tallies[i] = tally
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := w.finish(ctx); err != nil {
		return nil, err
	}

	result := documentDefaults()
	result["documents_analyzed"] = len(pending)
	evidenceCount, high := 0, 0
	for _, t := range tallies {
		evidenceCount += t.evidence
		high += t.highRelevance
	}
	result["evidence_items_extracted"] = evidenceCount
	result["high_relevance_count"] = high
	return model.Completed(result), nil
}

func (p *Document) analyze(ctx context.Context, input *model.StageInput, env interfaces.StageEnv, w *blockWriter, doc *model.Document, facts string) (documentTally, error) {
	var tally documentTally
	env.Reasoning.LogReasoning(ctx, input.RunID, fmt.Sprintf("Analyzing document: %s", doc.Filename))

	var out documentOutput
	msg := documentMessage(doc.Filename, p.cfg.fit(doc.Content), facts)
	if err := generateJSON(ctx, p.llm, documentSystemPrompt, documentSchema, msg, &out); err != nil {
		return tally, err
	}

	for i, item := range out.EvidenceItems {
		content := strings.TrimSpace(item.Content)
		if content == "" {
			continue
		}
		relevance := defaultRelevance
		if item.RelevanceScore != nil {
			relevance = model.ClampScore(*item.RelevanceScore)
		}
		if relevance >= highRelevance {
			tally.highRelevance++
		}

		md := model.Metadata{
			"evidence_type":   item.EvidenceType,
			"document_id":     string(doc.ID),
			"relevance_score": relevance,
		}
		if rationale := strings.TrimSpace(out.RelevanceRationales[strconv.Itoa(i)]); rationale != "" {
			md["relevance_rationale"] = rationale
		}

		block, err := w.create(ctx, string(doc.ID), types.BlockTypeEvidence, content, md)
		if err != nil {
			return tally, goerr.Wrap(err, "failed to record evidence")
		}
		tally.evidence++

		p.linkFacts(ctx, env, input.Case.ID, block)
	}

	for _, s := range out.DocumentSummaries {
		var parts []string
		if summary := strings.TrimSpace(s.Summary); summary != "" {
			parts = append(parts, summary)
		}
		details := make([]string, 0, len(s.KeyDetails))
		for _, d := range s.KeyDetails {
			if d = strings.TrimSpace(d); d != "" {
				details = append(details, d)
			}
		}
		if len(details) > 0 {
			parts = append(parts, "Key details: "+strings.Join(details, "; "))
		}
		if len(parts) == 0 {
			continue
		}

		md := model.Metadata{
			"evidence_type":       "document",
			"document_id":         string(doc.ID),
			"is_document_summary": true,
			"key_details":         details,
		}
		if _, err := w.create(ctx, string(doc.ID)+"/summary", types.BlockTypeEvidence, strings.Join(parts, "\n"), md); err != nil {
			return tally, goerr.Wrap(err, "failed to record document summary")
		}
	}

	return tally, nil
}

// linkFacts relates an evidence block to the most similar facts of the case. Failures only lose the links.
func (p *Document) linkFacts(ctx context.Context, env interfaces.StageEnv, caseID model.CaseID, block *model.MemoryBlock) {
	similar, err := env.Memory.Search(ctx, model.MemorySearch{
		Query: block.Content,
		Scope: model.CaseScope(caseID),
		Types: []types.BlockType{types.BlockTypeFact},
		Limit: linkedFacts,
	})
	if err != nil {
		logging.From(ctx).Warn("failed to search related facts", "block_id", block.ID, "error", err)
		return
	}
	if len(similar) == 0 {
		return
	}

	ids := make([]model.MemoryBlockID, 0, len(similar))
	for _, s := range similar {
		ids = append(ids, s.Block.ID)
	}
	if _, err := env.Memory.Link(ctx, block.ID, ids); err != nil {
		logging.From(ctx).Warn("failed to link evidence to facts", "block_id", block.ID, "error", err)
	}
}

func documentDefaults() model.StageResult {
	return model.StageResult{
		"documents_analyzed":       0,
		"evidence_items_extracted": 0,
		"high_relevance_count":     0,
	}
}
