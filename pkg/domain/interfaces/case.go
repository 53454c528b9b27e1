package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
)

// CaseRepository defines the interface for Case data access
type CaseRepository interface {
	// Create stores a new case, generating an ID when empty
	Create(ctx context.Context, c *model.Case) (*model.Case, error)

	// Get retrieves a case by ID. Returns model.ErrNotFound when absent.
	Get(ctx context.Context, id model.CaseID) (*model.Case, error)

	// List retrieves all cases ordered by creation time
	List(ctx context.Context) ([]*model.Case, error)

	// Update replaces an existing case
	Update(ctx context.Context, c *model.Case) (*model.Case, error)
}
