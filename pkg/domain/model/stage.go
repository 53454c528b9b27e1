package model

import (
	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// StageInput is the accumulated context handed to a stage processor
type StageInput struct {
	Case         *Case
	SessionID    SessionID
	RunID        AgentRunID
	InvocationID InvocationID
	// PriorResults holds the results of stages already finished in this invocation,
	// falling back to the latest successful result from earlier invocations.
	PriorResults map[types.Stage]StageResult
	// MemoryContext is the formatted case memory at the moment the stage starts
	MemoryContext string
}

// Prior returns the result of an earlier stage, or nil
func (in *StageInput) Prior(stage types.Stage) StageResult {
	if in.PriorResults == nil {
		return nil
	}
	return in.PriorResults[stage]
}

// StageOutput is what a processor returns: a result payload, optionally flagged as skipped
type StageOutput struct {
	Result     StageResult
	Skipped    bool
	SkipReason string
}

// Completed builds a non-skipped output
func Completed(result StageResult) *StageOutput {
	return &StageOutput{Result: result}
}

// Skipped builds an output for a stage whose precondition was not met
func Skipped(reason string, defaults StageResult) *StageOutput {
	return &StageOutput{Result: defaults, Skipped: true, SkipReason: reason}
}

// String returns the string value for key, or ""
func (r StageResult) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Strings returns a string list for key, accepting []string and []any
func (r StageResult) Strings(key string) []string {
	list, _ := toStringList(r[key])
	return list
}
