package types

// WorkflowStatus is the overall status derived from a case's stage runs
type WorkflowStatus string

const (
	WorkflowStatusIdle      WorkflowStatus = "idle"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// String returns the string representation of the workflow status
func (s WorkflowStatus) String() string {
	return string(s)
}
