package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Research looks up the court rules and case law relevant to the case and records them as rule blocks
type Research struct {
	llm gollem.LLMClient
	cfg Config
}

type researchRule struct {
	Source             string   `json:"source"`
	Citation           string   `json:"citation"`
	ContentSummary     string   `json:"content_summary"`
	Content            string   `json:"content"`
	ApplicabilityScore *float64 `json:"applicability_score"`
}

type researchPrecedent struct {
	Title     string `json:"title"`
	Citation  string `json:"citation"`
	Summary   string `json:"summary"`
	Relevance string `json:"relevance"`
}

type researchOutput struct {
	ResearchQueries []string            `json:"research_queries"`
	ApplicableRules []researchRule      `json:"applicable_rules"`
	Precedents      []researchPrecedent `json:"precedents"`
	LegalStandards  []string            `json:"legal_standards"`
}

var researchSchema = &gollem.Parameter{
	Title:       "ResearchFindings",
	Description: "Rules, precedents and legal standards applicable to a case",
	Type:        gollem.TypeObject,
	Properties: map[string]*gollem.Parameter{
		"research_queries": {
			Type:  gollem.TypeArray,
			Items: &gollem.Parameter{Type: gollem.TypeString},
		},
		"applicable_rules": {
			Type:        gollem.TypeArray,
			Description: "Rules that govern the case",
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"source":              {Type: gollem.TypeString, Enum: []string{"statute", "case_law", "court_rule"}, Required: true},
					"citation":            {Type: gollem.TypeString},
					"content_summary":     {Type: gollem.TypeString, Required: true},
					"applicability_score": {Type: gollem.TypeNumber, Description: "Between 0 and 1"},
				},
			},
			Required: true,
		},
		"precedents": {
			Type: gollem.TypeArray,
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"title":     {Type: gollem.TypeString},
					"citation":  {Type: gollem.TypeString},
					"summary":   {Type: gollem.TypeString},
					"relevance": {Type: gollem.TypeString},
				},
			},
		},
		"legal_standards": {
			Type:        gollem.TypeArray,
			Description: "Elements and burden of proof",
			Items:       &gollem.Parameter{Type: gollem.TypeString},
			Required:    true,
		},
	},
}

const maxRuleContent = 2000

// PrecedentQuery builds the web query for published decisions similar to the case
func PrecedentQuery(jurisdiction, disputeType, facts string) string {
	runes := []rune(facts)
	if len(runes) > 200 {
		runes = runes[:200]
	}
	query := jurisdiction + " conciliation court " + disputeType + " precedent"
	if len(runes) > 0 {
		query += " similar to: " + string(runes)
	}
	return query
}

// ResearchQuery builds the retrieval query for a dispute type and its facts summary
func ResearchQuery(disputeType, facts string) string {
	query := disputeType + " Minnesota Conciliation Court rules procedures"
	if facts != "" {
		runes := []rune(facts)
		if len(runes) > 300 {
			runes = runes[:300]
		}
		query += " " + string(runes)
	}
	return query
}

func (p *Research) Stage() types.Stage { return types.StageResearch }

func (p *Research) Execute(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
	factBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeFact, 50)
	if err != nil {
		return nil, err
	}
	facts := factsSummary(factBlocks)
	dispute := disputeType(input)

	found, err := env.Rules.HybridSearch(ctx, model.HybridQuery{
		Query:          ResearchQuery(dispute, facts),
		IncludeStatic:  true,
		IncludeCaseLaw: true,
		Limit:          p.cfg.MaxRules,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search rules")
	}
	env.Reasoning.LogReasoning(ctx, input.RunID, fmt.Sprintf("Found %d court rules and %d case law records.", len(found.StaticRules), len(found.CaseLaw)))

	var staticLines []string
	for _, r := range found.StaticRules {
		staticLines = append(staticLines, fmt.Sprintf("- %s (%s): %s", r.Title, r.Source, truncate(r.Content, 500)))
	}
	web := p.searchWeb(ctx, input, env, dispute, facts)

	var caseLaw strings.Builder
	for _, hit := range web {
		fmt.Fprintf(&caseLaw, "### %s\nSource: %s\n%s\n\n", hit.Title, hit.URL, hit.Content)
	}
	for _, hit := range found.CaseLaw {
		fmt.Fprintf(&caseLaw, "### %s\n%s\n\n", hit.Rule.Title, hit.Rule.Content)
	}

	msg := researchMessage(dispute, p.cfg.fit(facts), p.cfg.fit(strings.Join(staticLines, "\n")), p.cfg.fit(caseLaw.String()))
	env.Reasoning.LogReasoning(ctx, input.RunID, "Analyzing research results.")

	var out researchOutput
	if err := generateJSON(ctx, p.llm, researchSystemPrompt, researchSchema, msg, &out); err != nil {
		return nil, err
	}

	w, err := newBlockWriter(ctx, env, p.Stage(), input)
	if err != nil {
		return nil, err
	}

	rulesFound, staticCount, caseLawCount := 0, 0, 0
	for _, r := range out.ApplicableRules {
		content := strings.TrimSpace(r.ContentSummary)
		if content == "" {
			content = strings.TrimSpace(r.Content)
		}
		if content == "" {
			continue
		}
		source := strings.ToLower(r.Source)
		md := model.Metadata{
			"rule_source":  source,
			"citation":     r.Citation,
			"jurisdiction": p.cfg.Jurisdiction,
		}
		if r.ApplicabilityScore != nil {
			md["applicability_score"] = *r.ApplicabilityScore
		}
		if _, err := w.create(ctx, "analysis", types.BlockTypeRule, truncate(content, maxRuleContent), md); err != nil {
			return nil, goerr.Wrap(err, "failed to record rule")
		}
		rulesFound++
		if source == "case_law" {
			caseLawCount++
		} else {
			staticCount++
		}
	}

	for i, r := range found.StaticRules {
		if i >= 5 || rulesFound >= p.cfg.MaxRules {
			break
		}
		md := model.Metadata{
			"rule_source":         "statute",
			"citation":            r.Source,
			"jurisdiction":        p.cfg.Jurisdiction,
			"applicability_score": 0.8,
		}
		if _, err := w.create(ctx, string(r.ID), types.BlockTypeRule, truncate(r.Content, maxRuleContent), md); err != nil {
			return nil, goerr.Wrap(err, "failed to record static rule", goerr.V("static_rule_id", r.ID))
		}
		rulesFound++
		staticCount++
	}

	if err := w.finish(ctx); err != nil {
		return nil, err
	}

	standards := out.LegalStandards
	if len(standards) > 5 {
		standards = standards[:5]
	}

	logging.From(ctx).Info("research recorded", "rules_found", rulesFound, "precedents", len(out.Precedents))

	return model.Completed(model.StageResult{
		"rules_found":        rulesFound,
		"case_law_count":     caseLawCount,
		"static_rules_count": staticCount,
		"web_precedents":     len(web),
		"research_summary":   strings.Join(standards, "; "),
	}), nil
}

// searchWeb looks up published case law and precedents similar to the case and
// adds them to the rule corpus. The web is an optional source: failures are
// logged and leave the stage to work from the stored corpus.
func (p *Research) searchWeb(ctx context.Context, input *model.StageInput, env interfaces.StageEnv, dispute, facts string) []*model.CaseLawHit {
	if env.CaseLaw == nil || p.cfg.WebResults == 0 {
		return nil
	}
	logger := logging.From(ctx)

	queries := []string{
		ResearchQuery(dispute, facts) + " case law precedent",
		PrecedentQuery(p.cfg.Jurisdiction, dispute, facts),
	}
	seen := make(map[string]struct{})
	var hits []*model.CaseLawHit
	for _, q := range queries {
		found, err := env.CaseLaw.SearchCaseLaw(ctx, model.CaseLawQuery{
			Query:        q,
			Jurisdiction: p.cfg.Jurisdiction,
			MaxResults:   p.cfg.WebResults,
		})
		if err != nil {
			logger.Warn("web case law search failed", "error", err)
			continue
		}
		for _, hit := range found {
			if _, ok := seen[hit.URL]; ok {
				continue
			}
			seen[hit.URL] = struct{}{}
			hits = append(hits, hit)
		}
	}

	if env.Precedents != nil {
		recorded := 0
		for _, hit := range hits {
			if _, err := env.Precedents.RecordCaseLaw(ctx, hit, p.cfg.Jurisdiction); err != nil {
				logger.Warn("failed to record precedent", "url", hit.URL, "error", err)
				continue
			}
			recorded++
		}
		logger.Info("recorded web precedents", "found", len(hits), "recorded", recorded)
	}

	env.Reasoning.LogReasoning(ctx, input.RunID, fmt.Sprintf("Found %d published precedents on the web.", len(hits)))
	return hits
}
