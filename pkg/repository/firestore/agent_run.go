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

type agentRunDoc struct {
	ID           model.AgentRunID   `firestore:"ID"`
	CaseID       model.CaseID       `firestore:"CaseID"`
	InvocationID model.InvocationID `firestore:"InvocationID"`
	Stage        types.Stage        `firestore:"Stage"`
	Status       types.RunStatus    `firestore:"Status"`
	Reasoning    []string           `firestore:"Reasoning"`
	Result       map[string]any     `firestore:"Result"`
	Error        string             `firestore:"Error"`
	ErrorKind    types.ErrorKind    `firestore:"ErrorKind"`
	Attempts     int                `firestore:"Attempts"`
	CreatedAt    time.Time          `firestore:"CreatedAt"`
	StartedAt    *time.Time         `firestore:"StartedAt"`
	CompletedAt  *time.Time         `firestore:"CompletedAt"`
}

func toAgentRunDoc(r *model.AgentRun) *agentRunDoc {
	return &agentRunDoc{
		ID:           r.ID,
		CaseID:       r.CaseID,
		InvocationID: r.InvocationID,
		Stage:        r.Stage,
		Status:       r.Status,
		Reasoning:    r.Reasoning,
		Result:       r.Result,
		Error:        r.Error,
		ErrorKind:    r.ErrorKind,
		Attempts:     r.Attempts,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
}

func (d *agentRunDoc) toModel() *model.AgentRun {
	return &model.AgentRun{
		ID:           d.ID,
		CaseID:       d.CaseID,
		InvocationID: d.InvocationID,
		Stage:        d.Stage,
		Status:       d.Status,
		Reasoning:    d.Reasoning,
		Result:       model.StageResult(d.Result),
		Error:        d.Error,
		ErrorKind:    d.ErrorKind,
		Attempts:     d.Attempts,
		CreatedAt:    d.CreatedAt,
		StartedAt:    d.StartedAt,
		CompletedAt:  d.CompletedAt,
	}
}

type agentRunRepository struct {
	base
}

func (r *agentRunRepository) Create(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error) {
	created := run.Copy()
	if created.ID == "" {
		created.ID = model.NewAgentRunID()
	}

	docRef := r.collection(collectionAgentRuns).Doc(string(created.ID))
	if _, err := docRef.Create(ctx, toAgentRunDoc(created)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrConflict, "agent run already exists", goerr.V(model.RunIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create agent run", goerr.V(model.RunIDKey, created.ID))
	}

	return created, nil
}

func (r *agentRunRepository) Get(ctx context.Context, id model.AgentRunID) (*model.AgentRun, error) {
	doc, err := r.collection(collectionAgentRuns).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get agent run", goerr.V(model.RunIDKey, id))
	}

	var d agentRunDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal agent run", goerr.V(model.RunIDKey, id))
	}
	return d.toModel(), nil
}

func (r *agentRunRepository) Update(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error) {
	_, err := r.collection(collectionAgentRuns).Doc(string(run.ID)).Update(ctx, []firestore.Update{
		{Path: "Status", Value: run.Status},
		{Path: "Result", Value: map[string]any(run.Result)},
		{Path: "Error", Value: run.Error},
		{Path: "ErrorKind", Value: run.ErrorKind},
		{Path: "Attempts", Value: run.Attempts},
		{Path: "StartedAt", Value: run.StartedAt},
		{Path: "CompletedAt", Value: run.CompletedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, run.ID))
		}
		return nil, goerr.Wrap(err, "failed to update agent run", goerr.V(model.RunIDKey, run.ID))
	}

	return r.Get(ctx, run.ID)
}

// AppendReasoning reads and rewrites the trace in a transaction. ArrayUnion is
// not used because it collapses repeated lines.
func (r *agentRunRepository) AppendReasoning(ctx context.Context, id model.AgentRunID, text string) error {
	docRef := r.collection(collectionAgentRuns).Doc(string(id))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, id))
			}
			return goerr.Wrap(err, "failed to read agent run", goerr.V(model.RunIDKey, id))
		}

		var d agentRunDoc
		if err := snap.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal agent run")
		}

		return tx.Update(docRef, []firestore.Update{
			{Path: "Reasoning", Value: append(d.Reasoning, text)},
		})
	})
}

func (r *agentRunRepository) ListByCase(ctx context.Context, caseID model.CaseID) ([]*model.AgentRun, error) {
	iter := r.collection(collectionAgentRuns).
		Where("CaseID", "==", string(caseID)).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	runs := make([]*model.AgentRun, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate agent runs", goerr.V(model.CaseIDKey, caseID))
		}

		var d agentRunDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal agent run")
		}
		runs = append(runs, d.toModel())
	}

	return runs, nil
}
