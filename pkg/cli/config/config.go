package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/LalaIAm/case-agent/pkg/agent/stage"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

// Tuning is the optional TOML tuning file. Fields left out of the file keep their defaults.
type Tuning struct {
	Workflow  WorkflowSection  `toml:"workflow"`
	Retry     RetrySection     `toml:"retry"`
	Rules     RulesSection     `toml:"rules"`
	Intake    IntakeSection    `toml:"intake"`
	Memory    MemorySection    `toml:"memory"`
	Documents DocumentsSection `toml:"documents"`
	Advisor   AdvisorSection   `toml:"advisor"`
}

// WorkflowSection holds stage time limits. Durations use Go syntax, e.g. "300s" or "5m".
type WorkflowSection struct {
	StageTimeout  string            `toml:"stage_timeout"`
	StageTimeouts map[string]string `toml:"stage_timeouts"`
}

type RetrySection struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelay   string  `toml:"base_delay"`
	MaxDelay    string  `toml:"max_delay"`
	Jitter      float64 `toml:"jitter"`
}

type RulesSection struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MaxResults          int     `toml:"max_results"`
	Jurisdiction        string  `toml:"jurisdiction"`
	WebResults          int     `toml:"web_results"`
}

type IntakeSection struct {
	MaxQuestions int `toml:"max_questions"`
}

type MemorySection struct {
	ContextWindow    int `toml:"context_window"`
	CaseContextLimit int `toml:"case_context_limit"`
}

type DocumentsSection struct {
	BatchSize   int `toml:"batch_size"`
	Concurrency int `toml:"concurrency"`
}

type AdvisorSection struct {
	ContextWindow int `toml:"context_window"`
	SearchLimit   int `toml:"search_limit"`
	HistoryLimit  int `toml:"history_limit"`
}

// DefaultTuning returns the tuning values used when no file is given
func DefaultTuning() *Tuning {
	uc := usecase.DefaultConfig()
	st := stage.DefaultConfig()

	return &Tuning{
		Workflow: WorkflowSection{
			StageTimeout:  uc.Workflow.StageTimeout.String(),
			StageTimeouts: map[string]string{},
		},
		Retry: RetrySection{
			MaxAttempts: uc.Workflow.Retry.MaxAttempts,
			BaseDelay:   uc.Workflow.Retry.BaseDelay.String(),
			MaxDelay:    uc.Workflow.Retry.MaxDelay.String(),
			Jitter:      uc.Workflow.Retry.Jitter,
		},
		Rules: RulesSection{
			SimilarityThreshold: uc.Retrieval.SimilarityThreshold,
			MaxResults:          uc.Retrieval.MaxResults,
			Jurisdiction:        uc.Retrieval.Jurisdiction,
			WebResults:          st.WebResults,
		},
		Intake: IntakeSection{
			MaxQuestions: st.MaxQuestions,
		},
		Memory: MemorySection{
			ContextWindow:    uc.Memory.ContextWindow,
			CaseContextLimit: uc.Memory.CaseContextLimit,
		},
		Documents: DocumentsSection{
			BatchSize:   st.DocumentBatchSize,
			Concurrency: st.DocumentConcurrency,
		},
		Advisor: AdvisorSection{
			ContextWindow: uc.Advisor.ContextWindow,
			SearchLimit:   uc.Advisor.SearchLimit,
			HistoryLimit:  uc.Advisor.HistoryLimit,
		},
	}
}

// LoadTuning reads a tuning file on top of the defaults. An empty path returns the defaults.
func LoadTuning(path string) (*Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "tuning file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read tuning file", goerr.V(ConfigPathKey, path))
	}

	if err := toml.Unmarshal(data, tuning); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse tuning file",
			goerr.V(ConfigPathKey, path),
			goerr.V("error", err.Error()))
	}

	if err := tuning.Validate(); err != nil {
		return nil, goerr.Wrap(err, "tuning file validation failed", goerr.V(ConfigPathKey, path))
	}

	return tuning, nil
}

// Validate checks that both derived configurations are usable
func (t *Tuning) Validate() error {
	uc, err := t.UseCaseConfig()
	if err != nil {
		return err
	}
	if err := uc.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidConfig, err.Error())
	}

	if err := t.StageConfig().Validate(); err != nil {
		return goerr.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// UseCaseConfig converts the tuning values into the orchestrator configuration
func (t *Tuning) UseCaseConfig() (usecase.Config, error) {
	cfg := usecase.DefaultConfig()

	stageTimeout, err := parseDuration("workflow", "stage_timeout", t.Workflow.StageTimeout)
	if err != nil {
		return cfg, err
	}
	cfg.Workflow.StageTimeout = stageTimeout

	for name, v := range t.Workflow.StageTimeouts {
		s := types.Stage(name)
		if !s.IsValid() {
			return cfg, goerr.Wrap(ErrUnknownStage, "unknown stage in stage_timeouts",
				goerr.V(SectionKey, "workflow.stage_timeouts"),
				goerr.V(FieldKey, name))
		}
		d, err := parseDuration("workflow.stage_timeouts", name, v)
		if err != nil {
			return cfg, err
		}
		if cfg.Workflow.StageTimeouts == nil {
			cfg.Workflow.StageTimeouts = make(map[types.Stage]time.Duration)
		}
		cfg.Workflow.StageTimeouts[s] = d
	}

	baseDelay, err := parseDuration("retry", "base_delay", t.Retry.BaseDelay)
	if err != nil {
		return cfg, err
	}
	maxDelay, err := parseDuration("retry", "max_delay", t.Retry.MaxDelay)
	if err != nil {
		return cfg, err
	}
	cfg.Workflow.Retry = retry.Policy{
		MaxAttempts: t.Retry.MaxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Jitter:      t.Retry.Jitter,
	}

	cfg.Retrieval.SimilarityThreshold = t.Rules.SimilarityThreshold
	cfg.Retrieval.MaxResults = t.Rules.MaxResults
	cfg.Retrieval.Jurisdiction = t.Rules.Jurisdiction

	cfg.Memory.ContextWindow = t.Memory.ContextWindow
	cfg.Memory.CaseContextLimit = t.Memory.CaseContextLimit

	cfg.Advisor = usecase.AdvisorConfig{
		ContextWindow: t.Advisor.ContextWindow,
		SearchLimit:   t.Advisor.SearchLimit,
		HistoryLimit:  t.Advisor.HistoryLimit,
	}

	return cfg, nil
}

// StageConfig converts the tuning values into the stage processor configuration
func (t *Tuning) StageConfig() stage.Config {
	cfg := stage.DefaultConfig()
	cfg.ContextWindow = t.Memory.ContextWindow
	cfg.MaxQuestions = t.Intake.MaxQuestions
	cfg.MaxRules = t.Rules.MaxResults
	cfg.DocumentBatchSize = t.Documents.BatchSize
	cfg.DocumentConcurrency = t.Documents.Concurrency
	cfg.Jurisdiction = t.Rules.Jurisdiction
	cfg.WebResults = t.Rules.WebResults
	return cfg
}

func parseDuration(section, field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, goerr.Wrap(ErrInvalidDuration, err.Error(),
			goerr.V(SectionKey, section),
			goerr.V(FieldKey, field),
			goerr.V(ValueKey, v))
	}
	return d, nil
}
