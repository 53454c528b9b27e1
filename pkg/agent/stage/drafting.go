package stage

import (
	"context"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Drafting writes the statement of claim, hearing script and legal advice for the case
type Drafting struct {
	llm gollem.LLMClient
	cfg Config
}

type draftedDocument struct {
	ClaimAmount *float64 `json:"claim_amount"`
	FullText    string   `json:"full_text"`
}

type draftingOutput struct {
	StatementOfClaim draftedDocument `json:"statement_of_claim"`
	HearingScript    draftedDocument `json:"hearing_script"`
	LegalAdvice      draftedDocument `json:"legal_advice"`
}

func draftSchema(description string, fields ...string) *gollem.Parameter {
	props := map[string]*gollem.Parameter{
		"full_text": {Type: gollem.TypeString, Description: "The complete document text", Required: true},
	}
	for _, f := range fields {
		props[f] = &gollem.Parameter{Type: gollem.TypeString}
	}
	return &gollem.Parameter{Type: gollem.TypeObject, Description: description, Properties: props, Required: true}
}

var draftingSchema = &gollem.Parameter{
	Title:       "CaseDrafts",
	Description: "Court documents drafted for the claimant",
	Type:        gollem.TypeObject,
	Properties: map[string]*gollem.Parameter{
		"statement_of_claim": func() *gollem.Parameter {
			p := draftSchema("Statement of claim for filing", "title", "plaintiff", "defendant", "facts_section", "legal_basis_section", "relief_requested")
			p.Properties["claim_amount"] = &gollem.Parameter{Type: gollem.TypeNumber, Description: "Amount claimed in dollars"}
			return p
		}(),
		"hearing_script": draftSchema("Script for the claimant at the hearing", "introduction", "closing_statement"),
		"legal_advice":   draftSchema("Plain-language advice for the claimant", "case_summary", "procedural_guidance"),
	},
}

func (p *Drafting) Stage() types.Stage { return types.StageDrafting }

func (p *Drafting) Execute(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
	factBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeFact, 100)
	if err != nil {
		return nil, err
	}
	evidenceBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeEvidence, 100)
	if err != nil {
		return nil, err
	}
	ruleBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeRule, 50)
	if err != nil {
		return nil, err
	}
	strategyBlocks, err := caseBlocks(ctx, env, input.Case.ID, types.BlockTypeStrategy, 50)
	if err != nil {
		return nil, err
	}

	env.Reasoning.LogReasoning(ctx, input.RunID, "Drafting statement of claim, hearing script and legal advice.")

	msg := p.cfg.fit(draftingMessage(
		input.Case.DisplayTitle(),
		disputeType(input),
		parties(input),
		p.cfg.fit(factsSummary(factBlocks)),
		p.cfg.fit(evidenceSummary(evidenceBlocks)),
		p.cfg.fit(rulesSummary(ruleBlocks)),
		p.cfg.fit(strategySummary(strategyBlocks)),
	))

	var out draftingOutput
	if err := generateJSON(ctx, p.llm, draftingSystemPrompt, draftingSchema, msg, &out); err != nil {
		return nil, err
	}

	existing, err := env.Documents.ListByCase(ctx, input.Case.ID, types.DocumentKindGenerated)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list generated documents", goerr.V(model.CaseIDKey, input.Case.ID))
	}
	versions := make(map[types.DocumentType]int)
	written := make(map[types.DocumentType]*model.Document)
	for _, doc := range existing {
		if doc.RunID == input.RunID {
			written[doc.Type] = doc
			continue
		}
		versions[doc.Type]++
	}

	result := model.StageResult{}
	drafts := []struct {
		docType  types.DocumentType
		filename string
		key      string
		draft    draftedDocument
	}{
		{types.DocumentTypeStatementOfClaim, "statement_of_claim.txt", "statement_of_claim_id", out.StatementOfClaim},
		{types.DocumentTypeHearingScript, "hearing_script.txt", "hearing_script_id", out.HearingScript},
		{types.DocumentTypeLegalAdvice, "legal_advice.txt", "legal_advice_id", out.LegalAdvice},
	}

	generated := 0
	for _, d := range drafts {
		text := strings.TrimSpace(d.draft.FullText)
		if text == "" {
			env.Reasoning.LogReasoning(ctx, input.RunID, "No text drafted for "+string(d.docType)+".")
			continue
		}

		if doc, ok := written[d.docType]; ok {
			result[d.key] = doc.ID.String()
			generated++
			continue
		}

		doc, err := env.Documents.Create(ctx, &model.Document{
			ID:       model.NewDocumentID(),
			CaseID:   input.Case.ID,
			Kind:     types.DocumentKindGenerated,
			Type:     d.docType,
			Filename: d.filename,
			Content:  text,
			Version:  versions[d.docType] + 1,
			RunID:    input.RunID,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to store generated document", goerr.V("document_type", d.docType))
		}
		result[d.key] = doc.ID.String()
		generated++
	}

	if generated == 0 {
		return nil, goerr.Wrap(model.ErrPermanentStage, "drafting produced no documents")
	}
	result["documents_generated"] = generated
	if amount := out.StatementOfClaim.ClaimAmount; amount != nil && *amount > 0 {
		result["claim_amount"] = *amount
	}

	return model.Completed(result), nil
}
