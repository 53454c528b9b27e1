package model

import (
	"sort"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// StageState is the per-stage view inside a WorkflowState
type StageState struct {
	Stage     types.Stage     `json:"stage"`
	Status    types.RunStatus `json:"status"`
	RunID     AgentRunID      `json:"run_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind types.ErrorKind `json:"error_kind,omitempty"`
}

// WorkflowState is a snapshot derived from the AgentRun records of a case. It is never persisted.
type WorkflowState struct {
	CaseID          CaseID               `json:"case_id"`
	InvocationID    InvocationID         `json:"invocation_id,omitempty"`
	CurrentStage    types.Stage          `json:"current_stage,omitempty"`
	CompletedStages []types.Stage        `json:"completed_stages"`
	SkippedStages   []types.Stage        `json:"skipped_stages"`
	Status          types.WorkflowStatus `json:"workflow_status"`
	Error           string               `json:"error,omitempty"`
	Progress        int                  `json:"progress"`
	Stages          []StageState         `json:"stages"`
}

// DeriveWorkflowState reconstructs the workflow snapshot of a case.
//
// Each stage is represented by its most recent run. The overall status follows the
// most recent invocation: running while any of its runs is pending or running, failed
// when one of its runs failed, and completed once every stage is completed or skipped.
func DeriveWorkflowState(caseID CaseID, runs []*AgentRun) *WorkflowState {
	state := &WorkflowState{
		CaseID:          caseID,
		CompletedStages: []types.Stage{},
		SkippedStages:   []types.Stage{},
		Status:          types.WorkflowStatusIdle,
	}

	ordered := make([]*AgentRun, len(runs))
	copy(ordered, runs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	latest := make(map[types.Stage]*AgentRun)
	for _, run := range ordered {
		latest[run.Stage] = run
	}

	var latestInvocation InvocationID
	if len(ordered) > 0 {
		latestInvocation = ordered[len(ordered)-1].InvocationID
	}
	state.InvocationID = latestInvocation

	done := 0
	for _, stage := range types.AllStages() {
		run, ok := latest[stage]
		if !ok {
			state.Stages = append(state.Stages, StageState{Stage: stage, Status: types.RunStatusPending})
			continue
		}

		state.Stages = append(state.Stages, StageState{
			Stage:     stage,
			Status:    run.Status,
			RunID:     run.ID,
			Error:     run.Error,
			ErrorKind: run.ErrorKind,
		})

		switch run.Status {
		case types.RunStatusCompleted:
			state.CompletedStages = append(state.CompletedStages, stage)
			done++
		case types.RunStatusSkipped:
			state.SkippedStages = append(state.SkippedStages, stage)
			done++
		}
	}
	state.Progress = ProgressPercentage(done)

	for _, run := range ordered {
		if run.InvocationID != latestInvocation {
			continue
		}
		switch run.Status {
		case types.RunStatusPending, types.RunStatusRunning:
			state.Status = types.WorkflowStatusRunning
			state.CurrentStage = run.Stage
			state.Error = ""
			return state
		case types.RunStatusFailed:
			state.Status = types.WorkflowStatusFailed
			state.CurrentStage = run.Stage
			state.Error = run.Error
		}
	}

	if state.Status != types.WorkflowStatusFailed && done == types.StageCount {
		state.Status = types.WorkflowStatusCompleted
	}

	return state
}

// ProgressPercentage converts a number of finished stages into a percentage
func ProgressPercentage(done int) int {
	if done <= 0 {
		return 0
	}
	if done >= types.StageCount {
		return 100
	}
	return done * 100 / types.StageCount
}
