package model

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// StageResult is the structured payload returned by a stage processor
type StageResult map[string]any

// AgentRun is the execution record of one stage within one workflow invocation
type AgentRun struct {
	ID           AgentRunID
	CaseID       CaseID
	InvocationID InvocationID
	Stage        types.Stage
	Status       types.RunStatus
	Reasoning    []string
	Result       StageResult
	Error        string
	ErrorKind    types.ErrorKind
	Attempts     int
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// NewAgentRun creates a pending run record for stage
func NewAgentRun(caseID CaseID, invocationID InvocationID, stage types.Stage, now time.Time) *AgentRun {
	return &AgentRun{
		ID:           NewAgentRunID(),
		CaseID:       caseID,
		InvocationID: invocationID,
		Stage:        stage,
		Status:       types.RunStatusPending,
		CreatedAt:    now,
	}
}

// Transition moves the run to next, setting timestamps. Backward moves are rejected.
func (r *AgentRun) Transition(next types.RunStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return goerr.Wrap(ErrValidation, "invalid run status transition",
			goerr.V(RunIDKey, r.ID),
			goerr.V("from", r.Status),
			goerr.V("to", next),
		)
	}

	r.Status = next
	switch {
	case next == types.RunStatusRunning:
		r.StartedAt = &now
	case next.IsTerminal():
		r.CompletedAt = &now
	}
	return nil
}

// Copy returns a deep copy of the run
func (r *AgentRun) Copy() *AgentRun {
	copied := *r
	copied.Reasoning = append([]string(nil), r.Reasoning...)
	if r.Result != nil {
		copied.Result = make(StageResult, len(r.Result))
		for k, v := range r.Result {
			copied.Result[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		copied.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		copied.CompletedAt = &t
	}
	return &copied
}
