package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/agent/tool"
	"github.com/LalaIAm/case-agent/pkg/agent/tool/core"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Strategy weighs facts, evidence and rules into arguments, negotiation points and procedural steps.
// It runs as a tool-using agent so the model can look up memory and rules on its own.
type Strategy struct {
	llm gollem.LLMClient
	cfg Config
}

type strategyItem struct {
	Content                 string   `json:"content"`
	Priority                *int     `json:"priority"`
	ConfidenceScore         *float64 `json:"confidence_score"`
	SupportingEvidenceIDs   []string `json:"supporting_evidence_ids"`
	SupportingRuleCitations []string `json:"supporting_rule_citations"`
	Dependencies            []string `json:"dependencies"`
}

type strategyOutput struct {
	CaseStrengths         []string       `json:"case_strengths"`
	CaseWeaknesses        []string       `json:"case_weaknesses"`
	LegalArguments        []strategyItem `json:"legal_arguments"`
	NegotiationPoints     []strategyItem `json:"negotiation_points"`
	ProceduralSteps       []strategyItem `json:"procedural_steps"`
	BurdenOfProofAnalysis string         `json:"burden_of_proof_analysis"`
	RecommendedApproach   string         `json:"recommended_approach"`
}

func (p *Strategy) Stage() types.Stage { return types.StageStrategy }

func (p *Strategy) Execute(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
	factBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeFact, 50)
	if err != nil {
		return nil, err
	}
	evidenceBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeEvidence, 50)
	if err != nil {
		return nil, err
	}
	ruleBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeRule, 30)
	if err != nil {
		return nil, err
	}

	msg := p.cfg.fit(strategyMessage(
		disputeType(input),
		p.cfg.fit(factsSummary(factBlocks)),
		p.cfg.fit(evidenceSummary(evidenceBlocks)),
		p.cfg.fit(rulesSummary(ruleBlocks)),
	))

	env.Reasoning.LogReasoning(ctx, input.RunID, "Analyzing case strategy.")
	ctx = withReasoning(ctx, input, env)

	agent := gollem.New(p.llm,
		gollem.WithSystemPrompt(strategySystemPrompt),
		gollem.WithTools(core.New(env.Memory, env.Rules, input.Case.ID)...),
		gollem.WithToolMiddleware(
			func(next gollem.ToolHandler) gollem.ToolHandler {
				return func(ctx context.Context, req *gollem.ToolExecRequest) (*gollem.ToolExecResponse, error) {
					resp, err := next(ctx, req)
					if resp != nil && resp.Error != nil {
						tool.Update(ctx, fmt.Sprintf("Tool %s failed: %v", req.Tool.Name, resp.Error))
					}
					return resp, err
				}
			},
		),
	)

	resp, err := agent.Execute(ctx, gollem.Text(msg))
	if err != nil {
		return nil, classifyLLMError(err, "failed to execute strategy agent")
	}
	if resp == nil || len(resp.Texts) == 0 {
		return nil, goerr.Wrap(model.ErrPermanentStage, "strategy agent returned no answer")
	}

	var out strategyOutput
	if err := decodeJSON(strings.Join(resp.Texts, "\n"), &out); err != nil {
		return nil, err
	}

	w, err := newBlockWriter(ctx, env, p.Stage(), input)
	if err != nil {
		return nil, err
	}
	arguments, err := p.record(ctx, w, "legal_argument", out.LegalArguments)
	if err != nil {
		return nil, err
	}
	negotiation, err := p.record(ctx, w, "negotiation", out.NegotiationPoints)
	if err != nil {
		return nil, err
	}
	procedural, err := p.record(ctx, w, "procedural", out.ProceduralSteps)
	if err != nil {
		return nil, err
	}
	if err := w.finish(ctx); err != nil {
		return nil, err
	}

	return model.Completed(model.StageResult{
		"legal_arguments_created":    arguments,
		"negotiation_points_created": negotiation,
		"procedural_steps_created":   procedural,
		"case_strengths":             nonNil(out.CaseStrengths),
		"case_weaknesses":            nonNil(out.CaseWeaknesses),
		"burden_of_proof_analysis":   strings.TrimSpace(out.BurdenOfProofAnalysis),
		"recommended_approach":       strings.TrimSpace(out.RecommendedApproach),
	}), nil
}

func (p *Strategy) record(ctx context.Context, w *blockWriter, kind string, items []strategyItem) (int, error) {
	created := 0
	for _, item := range items {
		content := strings.TrimSpace(item.Content)
		if content == "" {
			continue
		}

		priority := 1
		if item.Priority != nil {
			priority = *item.Priority
		}
		md := model.Metadata{
			"strategy_type": kind,
			"priority":      priority,
		}
		switch kind {
		case "legal_argument":
			if item.ConfidenceScore != nil {
				md["confidence_score"] = *item.ConfidenceScore
			}
			if len(item.SupportingEvidenceIDs) > 0 {
				md["supporting_evidence_ids"] = item.SupportingEvidenceIDs
			}
			if len(item.SupportingRuleCitations) > 0 {
				md["supporting_rule_citations"] = item.SupportingRuleCitations
			}
		case "procedural":
			md["dependencies"] = nonNil(item.Dependencies)
		}

		if _, err := w.create(ctx, kind, types.BlockTypeStrategy, content, md); err != nil {
			return created, goerr.Wrap(err, "failed to record strategy", goerr.V("strategy_type", kind))
		}
		created++
	}
	return created, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
