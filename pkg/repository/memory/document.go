package memory

import (
	"context"
	"sync"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type documentRepository struct {
	mu        sync.RWMutex
	documents map[model.DocumentID]*model.Document
	order     []model.DocumentID
}

func newDocumentRepository() *documentRepository {
	return &documentRepository{
		documents: make(map[model.DocumentID]*model.Document),
	}
}

func copyDocument(d *model.Document) *model.Document {
	copied := *d
	return &copied
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyDocument(doc)
	if created.ID == "" {
		created.ID = model.NewDocumentID()
	}
	if _, exists := r.documents[created.ID]; exists {
		return nil, goerr.Wrap(model.ErrConflict, "document already exists", goerr.V("document_id", created.ID))
	}
	if created.Version == 0 {
		created.Version = 1
	}
	created.CreatedAt = time.Now().UTC()

	r.documents[created.ID] = created
	r.order = append(r.order, created.ID)
	return copyDocument(created), nil
}

func (r *documentRepository) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("document_id", id))
	}
	return copyDocument(doc), nil
}

func (r *documentRepository) ListByCase(ctx context.Context, caseID model.CaseID, kind types.DocumentKind) ([]*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Document, 0)
	for _, id := range r.order {
		doc := r.documents[id]
		if doc.CaseID == caseID && doc.Kind == kind {
			result = append(result, copyDocument(doc))
		}
	}
	return result, nil
}
