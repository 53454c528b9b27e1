package model

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// Event is a progress notification delivered to the observers of a case
type Event struct {
	Type      types.EventType `json:"type"`
	CaseID    CaseID          `json:"case_id"`
	Stage     types.Stage     `json:"stage,omitempty"`
	RunID     AgentRunID      `json:"run_id,omitempty"`
	Status    types.RunStatus `json:"status,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind types.ErrorKind `json:"error_kind,omitempty"`
	Result    StageResult     `json:"result,omitempty"`
	Progress  int             `json:"progress"`
	Workflow  *WorkflowState  `json:"workflow,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewStageEvent builds a stage_* event from the current state of run
func NewStageEvent(eventType types.EventType, run *AgentRun, progress int, now time.Time) *Event {
	ev := &Event{
		Type:      eventType,
		CaseID:    run.CaseID,
		Stage:     run.Stage,
		RunID:     run.ID,
		Status:    run.Status,
		Error:     run.Error,
		ErrorKind: run.ErrorKind,
		Progress:  progress,
		Timestamp: now,
	}
	if run.Status.IsTerminal() {
		ev.Result = run.Result
	}
	return ev
}

// NewWorkflowEvent builds a workflow_update event carrying a state snapshot
func NewWorkflowEvent(state *WorkflowState, now time.Time) *Event {
	return &Event{
		Type:      types.EventWorkflowUpdate,
		CaseID:    state.CaseID,
		Stage:     state.CurrentStage,
		Error:     state.Error,
		Progress:  state.Progress,
		Workflow:  state,
		Timestamp: now,
	}
}
