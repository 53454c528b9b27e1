package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Intake extracts facts, parties and clarifying questions from the case description
type Intake struct {
	llm gollem.LLMClient
	cfg Config
}

type intakeFact struct {
	Content         string   `json:"content"`
	FactType        string   `json:"fact_type"`
	DateOccurred    string   `json:"date_occurred"`
	PartiesInvolved []string `json:"parties_involved"`
	ConfidenceScore *float64 `json:"confidence_score"`
	Confidence      *float64 `json:"confidence"`
}

type intakeEvent struct {
	Date            string   `json:"date"`
	Description     string   `json:"description"`
	PartiesInvolved []string `json:"parties_involved"`
	ConfidenceScore *float64 `json:"confidence_score"`
}

type intakeQuestion struct {
	Content      string `json:"content"`
	QuestionType string `json:"question_type"`
}

type intakeOutput struct {
	DisputeType    string           `json:"dispute_type"`
	Parties        []string         `json:"parties"`
	TimelineEvents []intakeEvent    `json:"timeline_events"`
	Facts          []intakeFact     `json:"facts"`
	Questions      []intakeQuestion `json:"questions"`
}

var disputeTypes = []string{"contract", "property_damage", "debt_collection", "landlord_tenant", "consumer", "personal_injury", "other"}

var intakeSchema = &gollem.Parameter{
	Title:       "IntakeAnalysis",
	Description: "Facts, parties and open questions extracted from a case description",
	Type:        gollem.TypeObject,
	Properties: map[string]*gollem.Parameter{
		"dispute_type": {
			Type:        gollem.TypeString,
			Description: "Category of the dispute",
			Enum:        disputeTypes,
			Required:    true,
		},
		"parties": {
			Type:        gollem.TypeArray,
			Description: "Names or roles of the parties",
			Items:       &gollem.Parameter{Type: gollem.TypeString},
			Required:    true,
		},
		"timeline_events": {
			Type:        gollem.TypeArray,
			Description: "Dated events in chronological order",
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"date":        {Type: gollem.TypeString, Description: "Date of the event as stated"},
					"description": {Type: gollem.TypeString, Description: "What happened", Required: true},
				},
			},
		},
		"facts": {
			Type:        gollem.TypeArray,
			Description: "Facts stated by the claimant",
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"content":          {Type: gollem.TypeString, Description: "The fact", Required: true},
					"fact_type":        {Type: gollem.TypeString, Enum: []string{"claim", "counterclaim", "timeline"}},
					"date_occurred":    {Type: gollem.TypeString},
					"parties_involved": {Type: gollem.TypeArray, Items: &gollem.Parameter{Type: gollem.TypeString}},
					"confidence_score": {Type: gollem.TypeNumber, Description: "Confidence between 0 and 1"},
				},
			},
			Required: true,
		},
		"questions": {
			Type:        gollem.TypeArray,
			Description: "Clarifying questions for missing information",
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"content":       {Type: gollem.TypeString, Required: true},
					"question_type": {Type: gollem.TypeString, Enum: []string{"clarification", "missing_info", "legal_issue"}},
				},
			},
		},
	},
}

// IntakeSkipDefaults is the result recorded when a case has no description
func IntakeSkipDefaults() model.StageResult {
	return model.StageResult{
		"dispute_type":        "other",
		"facts_extracted":     0,
		"questions_generated": 0,
		"parties":             []string{},
	}
}

func (p *Intake) Stage() types.Stage { return types.StageIntake }

func (p *Intake) Execute(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
	if !input.Case.HasDescription() {
		env.Reasoning.LogReasoning(ctx, input.RunID, "No case description; skipping fact extraction.")
		return model.Skipped("case has no description", IntakeSkipDefaults()), nil
	}

	w, err := newBlockWriter(ctx, env, p.Stage(), input)
	if err != nil {
		return nil, err
	}

	existing, err := env.Memory.CaseContext(ctx, input.Case.ID, []types.BlockType{types.BlockTypeFact, types.BlockTypeQuestion}, 50)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load existing facts")
	}
	existing = excludeRun(existing, input.RunID)

	msg := intakeMessage(p.cfg.fit(input.Case.Description), p.cfg.fit(usecase.FormatMemoryContext(existing)))
	env.Reasoning.LogReasoning(ctx, input.RunID, "Extracting facts from the case description.")

	var out intakeOutput
	if err := generateJSON(ctx, p.llm, intakeSystemPrompt, intakeSchema, msg, &out); err != nil {
		return nil, err
	}

	facts := 0
	for _, f := range out.Facts {
		content := strings.TrimSpace(f.Content)
		if content == "" {
			continue
		}
		md := model.Metadata{
			"fact_type":        f.FactType,
			"confidence_score": confidence(f.ConfidenceScore, f.Confidence),
		}
		if f.DateOccurred != "" {
			md["date_occurred"] = f.DateOccurred
		}
		if len(f.PartiesInvolved) > 0 {
			md["parties_involved"] = f.PartiesInvolved
		}
		if _, err := w.create(ctx, "fact", types.BlockTypeFact, content, md); err != nil {
			return nil, goerr.Wrap(err, "failed to record fact")
		}
		facts++
	}

	for _, ev := range out.TimelineEvents {
		content := strings.TrimSpace(ev.Description)
		if content == "" {
			continue
		}
		md := model.Metadata{
			"fact_type":        "timeline",
			"confidence_score": confidence(ev.ConfidenceScore, nil),
		}
		if ev.Date != "" {
			md["date_occurred"] = ev.Date
		}
		if len(ev.PartiesInvolved) > 0 {
			md["parties_involved"] = ev.PartiesInvolved
		}
		if _, err := w.create(ctx, "timeline", types.BlockTypeFact, content, md); err != nil {
			return nil, goerr.Wrap(err, "failed to record timeline event")
		}
		facts++
	}

	questions := 0
	for _, q := range out.Questions {
		if questions >= p.cfg.MaxQuestions {
			break
		}
		content := strings.TrimSpace(q.Content)
		if content == "" {
			continue
		}
		md := model.Metadata{
			"question_type": q.QuestionType,
			"answered":      false,
		}
		if _, err := w.create(ctx, "", types.BlockTypeQuestion, content, md); err != nil {
			return nil, goerr.Wrap(err, "failed to record question")
		}
		questions++
	}

	if err := w.finish(ctx); err != nil {
		return nil, err
	}

	dispute := out.DisputeType
	if !isDisputeType(dispute) {
		dispute = "other"
	}
	partyList := out.Parties
	if partyList == nil {
		partyList = []string{}
	}

	env.Reasoning.LogReasoning(ctx, input.RunID, fmt.Sprintf("Recorded %d facts and %d questions (%s dispute).", facts, questions, dispute))

	return model.Completed(model.StageResult{
		"dispute_type":        dispute,
		"facts_extracted":     facts,
		"questions_generated": questions,
		"parties":             partyList,
	}), nil
}

func isDisputeType(s string) bool {
	for _, t := range disputeTypes {
		if t == s {
			return true
		}
	}
	return false
}
