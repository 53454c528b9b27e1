package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// DocumentRepository defines the interface for case documents
type DocumentRepository interface {
	// Create stores a document, generating an ID when empty
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// Get retrieves a document by ID. Returns model.ErrNotFound when absent.
	Get(ctx context.Context, id model.DocumentID) (*model.Document, error)

	// ListByCase returns the documents of a case of the given kind in creation order
	ListByCase(ctx context.Context, caseID model.CaseID, kind types.DocumentKind) ([]*model.Document, error)
}
