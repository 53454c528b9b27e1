package types

// EventType is the kind of a progress event delivered to case observers
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
	EventWorkflowUpdate EventType = "workflow_update"
	// EventStageProgress carries an incremental reasoning line of a running stage
	EventStageProgress EventType = "stage_progress"
)

// String returns the string representation of the event type
func (t EventType) String() string {
	return string(t)
}
