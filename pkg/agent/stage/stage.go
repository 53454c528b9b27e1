// Package stage implements the five pipeline stage processors on top of a gollem LLM client.
// Each processor reads the case memory, asks the model for structured JSON and records
// what it learned as memory blocks or generated documents.
package stage

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/agent/tool"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Config tunes the stage processors
type Config struct {
	// ContextWindow caps each text section handed to the model, in characters
	ContextWindow int
	// MaxQuestions caps the clarifying questions recorded by intake
	MaxQuestions int
	// MaxRules caps the rule blocks recorded by research
	MaxRules int
	// DocumentBatchSize caps the documents analyzed in one document stage run
	DocumentBatchSize int
	// DocumentConcurrency is the number of documents analyzed in parallel
	DocumentConcurrency int
	// Jurisdiction labels research output
	Jurisdiction string
	// WebResults caps the precedents fetched per web search during research
	WebResults int
}

// DefaultConfig returns the standard processor settings
func DefaultConfig() Config {
	return Config{
		ContextWindow:       12000,
		MaxQuestions:        5,
		MaxRules:            10,
		DocumentBatchSize:   10,
		DocumentConcurrency: 3,
		Jurisdiction:        "Minnesota",
		WebResults:          5,
	}
}

// Validate checks that every limit is usable
func (c Config) Validate() error {
	switch {
	case c.ContextWindow < 100:
		return goerr.New("context window must be at least 100 characters", goerr.V("context_window", c.ContextWindow))
	case c.MaxQuestions < 0:
		return goerr.New("max questions must not be negative", goerr.V("max_questions", c.MaxQuestions))
	case c.MaxRules < 1:
		return goerr.New("max rules must be at least 1", goerr.V("max_rules", c.MaxRules))
	case c.DocumentBatchSize < 1:
		return goerr.New("document batch size must be at least 1", goerr.V("document_batch_size", c.DocumentBatchSize))
	case c.DocumentConcurrency < 1:
		return goerr.New("document concurrency must be at least 1", goerr.V("document_concurrency", c.DocumentConcurrency))
	case c.WebResults < 0:
		return goerr.New("web results must not be negative", goerr.V("web_results", c.WebResults))
	}
	return nil
}

// New builds the processors for every pipeline stage, in pipeline order
func New(llm gollem.LLMClient, cfg Config) []interfaces.StageProcessor {
	return []interfaces.StageProcessor{
		&Intake{llm: llm, cfg: cfg},
		&Research{llm: llm, cfg: cfg},
		&Document{llm: llm, cfg: cfg},
		&Strategy{llm: llm, cfg: cfg},
		&Drafting{llm: llm, cfg: cfg},
	}
}

// withReasoning routes tool progress updates into the run's reasoning trace
func withReasoning(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) context.Context {
	return tool.WithUpdate(ctx, func(ctx context.Context, message string) {
		env.Reasoning.LogReasoning(ctx, input.RunID, message)
	})
}

func (c Config) fit(text string) string {
	return usecase.TruncateForContext(text, c.ContextWindow)
}

func caseBlocks(ctx context.Context, env interfaces.StageEnv, caseID model.CaseID, blockType types.BlockType, limit int) ([]*model.MemoryBlock, error) {
	blocks, err := env.Memory.CaseContext(ctx, caseID, []types.BlockType{blockType}, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load case memory", goerr.V("block_type", blockType))
	}
	return blocks, nil
}

// disputeType reads the intake classification, defaulting to "other"
func disputeType(input *model.StageInput) string {
	if t := input.Prior(types.StageIntake).String("dispute_type"); t != "" {
		return t
	}
	return "other"
}

func parties(input *model.StageInput) []string {
	return input.Prior(types.StageIntake).Strings("parties")
}

func confidence(score, fallback *float64) float64 {
	switch {
	case score != nil:
		return model.ClampScore(*score)
	case fallback != nil:
		return model.ClampScore(*fallback)
	}
	return model.DefaultConfidence
}
