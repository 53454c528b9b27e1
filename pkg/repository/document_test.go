package repository_test

import (
	"context"
	"testing"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func runDocumentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("ListByCase returns documents of one kind", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)

		uploaded, err := repo.Document().Create(ctx, &model.Document{
			CaseID:   c.ID,
			Kind:     types.DocumentKindUploaded,
			Type:     types.DocumentTypeEvidence,
			Filename: "receipt.txt",
			Content:  "Paid $1,200 on March 3.",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, uploaded.Version).Equal(1)

		_, err = repo.Document().Create(ctx, &model.Document{
			CaseID:  c.ID,
			Kind:    types.DocumentKindGenerated,
			Type:    types.DocumentTypeStatementOfClaim,
			Content: "Statement of claim",
		})
		gt.NoError(t, err).Required()

		docs, err := repo.Document().ListByCase(ctx, c.ID, types.DocumentKindUploaded)
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(1)
		gt.Value(t, docs[0].Filename).Equal("receipt.txt")

		got, err := repo.Document().Get(ctx, uploaded.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Content).Equal("Paid $1,200 on March 3.")
	})

	t.Run("Create keeps the writing run", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		runID := model.NewAgentRunID()

		created, err := repo.Document().Create(ctx, &model.Document{
			CaseID:  c.ID,
			Kind:    types.DocumentKindGenerated,
			Type:    types.DocumentTypeHearingScript,
			Content: "Your Honor",
			RunID:   runID,
		})
		gt.NoError(t, err).Required()

		got, err := repo.Document().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.RunID).Equal(runID)
	})

	t.Run("Get returns not found for unknown document", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Document().Get(context.Background(), model.NewDocumentID())
		gt.Error(t, err).Is(model.ErrNotFound)
	})
}

func TestDocumentRepository(t *testing.T) {
	runAllBackends(t, runDocumentRepositoryTest)
}
