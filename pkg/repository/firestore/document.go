package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type documentDoc struct {
	ID        model.DocumentID   `firestore:"ID"`
	CaseID    model.CaseID       `firestore:"CaseID"`
	Kind      types.DocumentKind `firestore:"Kind"`
	Type      types.DocumentType `firestore:"Type"`
	Filename  string             `firestore:"Filename"`
	Content   string             `firestore:"Content"`
	Version   int                `firestore:"Version"`
	RunID     model.AgentRunID   `firestore:"RunID"`
	CreatedAt time.Time          `firestore:"CreatedAt"`
}

func (d *documentDoc) toModel() *model.Document {
	return &model.Document{
		ID:        d.ID,
		CaseID:    d.CaseID,
		Kind:      d.Kind,
		Type:      d.Type,
		Filename:  d.Filename,
		Content:   d.Content,
		Version:   d.Version,
		RunID:     d.RunID,
		CreatedAt: d.CreatedAt,
	}
}

type documentRepository struct {
	base
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	created := *doc
	if created.ID == "" {
		created.ID = model.NewDocumentID()
	}
	if created.Version == 0 {
		created.Version = 1
	}
	created.CreatedAt = time.Now().UTC()

	d := documentDoc(created)
	docRef := r.collection(collectionDocuments).Doc(string(created.ID))
	if _, err := docRef.Create(ctx, &d); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrConflict, "document already exists", goerr.V("document_id", created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create document", goerr.V("document_id", created.ID))
	}

	return &created, nil
}

func (r *documentRepository) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	snap, err := r.collection(collectionDocuments).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("document_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get document", goerr.V("document_id", id))
	}

	var d documentDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal document", goerr.V("document_id", id))
	}
	return d.toModel(), nil
}

func (r *documentRepository) ListByCase(ctx context.Context, caseID model.CaseID, kind types.DocumentKind) ([]*model.Document, error) {
	iter := r.collection(collectionDocuments).
		Where("CaseID", "==", string(caseID)).
		Where("Kind", "==", string(kind)).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	docs := make([]*model.Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents", goerr.V(model.CaseIDKey, caseID))
		}

		var d documentDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal document")
		}
		docs = append(docs, d.toModel())
	}

	return docs, nil
}
