package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
)

// AgentRunRepository defines the interface for stage execution records
type AgentRunRepository interface {
	// Create stores a new run
	Create(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error)

	// Get retrieves a run by ID. Returns model.ErrNotFound when absent.
	Get(ctx context.Context, id model.AgentRunID) (*model.AgentRun, error)

	// Update replaces status, result, error and timestamps of a run.
	// The reasoning trace is left untouched; use AppendReasoning.
	Update(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error)

	// AppendReasoning atomically appends a line to the reasoning trace
	AppendReasoning(ctx context.Context, id model.AgentRunID, text string) error

	// ListByCase returns every run of a case ordered by creation time
	ListByCase(ctx context.Context, caseID model.CaseID) ([]*model.AgentRun, error)
}
