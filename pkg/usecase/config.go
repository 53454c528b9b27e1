package usecase

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/m-mizutani/goerr/v2"
)

// Config holds tuning parameters of the use cases
type Config struct {
	Memory    MemoryConfig
	Retrieval RetrievalConfig
	Workflow  WorkflowConfig
	Advisor   AdvisorConfig
}

// MemoryConfig tunes the memory store
type MemoryConfig struct {
	// ContextWindow is the maximum number of characters of formatted case context
	ContextWindow int
	// CaseContextLimit is the default number of blocks fetched for case context
	CaseContextLimit int
	// SearchLimit is used when a search does not specify a limit
	SearchLimit int
}

// RetrievalConfig tunes hybrid rule retrieval
type RetrievalConfig struct {
	SimilarityThreshold float64
	MaxResults          int
	Jurisdiction        string
}

// AdvisorConfig tunes the conversational advisor
type AdvisorConfig struct {
	// ContextWindow caps the memory context given to the model, in characters
	ContextWindow int
	// SearchLimit is the number of memory blocks retrieved for a question
	SearchLimit int
	// HistoryLimit is the number of earlier messages replayed to the model
	HistoryLimit int
}

// WorkflowConfig tunes the stage orchestrator
type WorkflowConfig struct {
	StageTimeout  time.Duration
	StageTimeouts map[types.Stage]time.Duration
	Retry         retry.Policy
}

// TimeoutFor returns the wall-clock limit of stage
func (c WorkflowConfig) TimeoutFor(stage types.Stage) time.Duration {
	if d, ok := c.StageTimeouts[stage]; ok && d > 0 {
		return d
	}
	return c.StageTimeout
}

func DefaultConfig() Config {
	return Config{
		Memory: MemoryConfig{
			ContextWindow:    12000,
			CaseContextLimit: 50,
			SearchLimit:      10,
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: 0.7,
			MaxResults:          10,
			Jurisdiction:        "Minnesota",
		},
		Workflow: WorkflowConfig{
			StageTimeout: 300 * time.Second,
			Retry:        retry.DefaultPolicy(),
		},
		Advisor: AdvisorConfig{
			ContextWindow: 28000,
			SearchLimit:   30,
			HistoryLimit:  20,
		},
	}
}

// Validate checks the configuration for unusable values
func (c Config) Validate() error {
	if c.Memory.ContextWindow <= 0 {
		return goerr.New("context window must be positive", goerr.V("context_window", c.Memory.ContextWindow))
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return goerr.New("similarity threshold must be in [0, 1]", goerr.V("threshold", c.Retrieval.SimilarityThreshold))
	}
	if c.Retrieval.MaxResults <= 0 {
		return goerr.New("max results must be positive", goerr.V("max_results", c.Retrieval.MaxResults))
	}
	if c.Workflow.StageTimeout <= 0 {
		return goerr.New("stage timeout must be positive", goerr.V("stage_timeout", c.Workflow.StageTimeout))
	}
	for stage, d := range c.Workflow.StageTimeouts {
		if !stage.IsValid() {
			return goerr.New("unknown stage in timeout overrides", goerr.V("stage", stage))
		}
		if d <= 0 {
			return goerr.New("stage timeout must be positive", goerr.V("stage", stage), goerr.V("timeout", d))
		}
	}
	if c.Advisor.ContextWindow <= 0 || c.Advisor.SearchLimit <= 0 || c.Advisor.HistoryLimit <= 0 {
		return goerr.New("advisor limits must be positive",
			goerr.V("context_window", c.Advisor.ContextWindow),
			goerr.V("search_limit", c.Advisor.SearchLimit),
			goerr.V("history_limit", c.Advisor.HistoryLimit))
	}
	if err := c.Workflow.Retry.Validate(); err != nil {
		return goerr.Wrap(err, "invalid retry policy")
	}
	return nil
}
