package types

import "fmt"

// RunStatus represents the status of a single stage execution
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// AllRunStatuses returns all valid run statuses
func AllRunStatuses() []RunStatus {
	return []RunStatus{
		RunStatusPending,
		RunStatusRunning,
		RunStatusCompleted,
		RunStatusFailed,
		RunStatusSkipped,
	}
}

// IsValid checks if the run status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending,
		RunStatusRunning,
		RunStatusCompleted,
		RunStatusFailed,
		RunStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed from s
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusSkipped
}

// IsDone reports whether the stage counts towards workflow progress
func (s RunStatus) IsDone() bool {
	return s == RunStatusCompleted || s == RunStatusSkipped
}

// CanTransitionTo reports whether moving from s to next follows
// pending -> running -> {completed | failed | skipped}.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning
	case RunStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// String returns the string representation of the run status
func (s RunStatus) String() string {
	return string(s)
}

// ParseRunStatus parses a string into a RunStatus
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid run status: %s", s)
	}
	return status, nil
}
