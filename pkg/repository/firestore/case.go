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

type caseDoc struct {
	ID          model.CaseID     `firestore:"ID"`
	OwnerID     string           `firestore:"OwnerID"`
	Title       string           `firestore:"Title"`
	Description string           `firestore:"Description"`
	Status      types.CaseStatus `firestore:"Status"`
	CreatedAt   time.Time        `firestore:"CreatedAt"`
	UpdatedAt   time.Time        `firestore:"UpdatedAt"`
}

func toCaseDoc(c *model.Case) *caseDoc {
	return &caseDoc{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Title:       c.Title,
		Description: c.Description,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (d *caseDoc) toModel() *model.Case {
	return &model.Case{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status.Normalize(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type caseRepository struct {
	base
}

func (r *caseRepository) Create(ctx context.Context, c *model.Case) (*model.Case, error) {
	created := *c
	if created.ID == "" {
		created.ID = model.NewCaseID()
	}
	created.Status = created.Status.Normalize()
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	docRef := r.collection(collectionCases).Doc(string(created.ID))
	if _, err := docRef.Create(ctx, toCaseDoc(&created)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrConflict, "case already exists", goerr.V(model.CaseIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create case", goerr.V(model.CaseIDKey, created.ID))
	}

	return &created, nil
}

func (r *caseRepository) Get(ctx context.Context, id model.CaseID) (*model.Case, error) {
	doc, err := r.collection(collectionCases).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.CaseIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, id))
	}

	var d caseDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal case", goerr.V(model.CaseIDKey, id))
	}
	return d.toModel(), nil
}

func (r *caseRepository) List(ctx context.Context) ([]*model.Case, error) {
	iter := r.collection(collectionCases).OrderBy("CreatedAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	cases := make([]*model.Case, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate cases")
		}

		var d caseDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal case")
		}
		cases = append(cases, d.toModel())
	}

	return cases, nil
}

func (r *caseRepository) Update(ctx context.Context, c *model.Case) (*model.Case, error) {
	docRef := r.collection(collectionCases).Doc(string(c.ID))
	updated := *c
	updated.Status = updated.Status.Normalize()
	updated.UpdatedAt = time.Now().UTC()

	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "OwnerID", Value: updated.OwnerID},
		{Path: "Title", Value: updated.Title},
		{Path: "Description", Value: updated.Description},
		{Path: "Status", Value: updated.Status},
		{Path: "UpdatedAt", Value: updated.UpdatedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.CaseIDKey, c.ID))
		}
		return nil, goerr.Wrap(err, "failed to update case", goerr.V(model.CaseIDKey, c.ID))
	}

	return r.Get(ctx, c.ID)
}
