package repository_test

import (
	"context"
	"testing"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func runCaseRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and defaults status to draft", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Case().Create(ctx, &model.Case{
			OwnerID:     "user-1",
			Title:       "Security deposit",
			Description: "Landlord kept the full deposit.",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, created.ID).NotEqual(model.CaseID(""))
		gt.Value(t, created.Status).Equal(types.CaseStatusDraft)
		gt.Bool(t, created.CreatedAt.IsZero()).False()

		retrieved, err := repo.Case().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Title).Equal("Security deposit")
		gt.Value(t, retrieved.OwnerID).Equal("user-1")
		gt.Value(t, retrieved.Description).Equal("Landlord kept the full deposit.")
	})

	t.Run("Create with existing ID returns conflict", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := newTestCase(t, repo)
		_, err := repo.Case().Create(ctx, &model.Case{ID: c.ID, Title: "dup"})
		gt.Error(t, err).Is(model.ErrConflict)
	})

	t.Run("Get returns not found for unknown ID", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Case().Get(context.Background(), model.NewCaseID())
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("Update changes status and keeps creation time", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := newTestCase(t, repo)
		c.Status = types.CaseStatusActive
		updated, err := repo.Case().Update(ctx, c)
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Status).Equal(types.CaseStatusActive)
		gt.Bool(t, updated.CreatedAt.Equal(c.CreatedAt)).True()
	})

	t.Run("Update of unknown case returns not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Case().Update(context.Background(), &model.Case{ID: model.NewCaseID()})
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("List includes created cases", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c1 := newTestCase(t, repo)
		c2 := newTestCase(t, repo)

		cases, err := repo.Case().List(ctx)
		gt.NoError(t, err).Required()

		found := map[model.CaseID]bool{}
		for _, c := range cases {
			found[c.ID] = true
		}
		gt.Bool(t, found[c1.ID]).True()
		gt.Bool(t, found[c2.ID]).True()
	})
}

func TestCaseRepository(t *testing.T) {
	runAllBackends(t, runCaseRepositoryTest)
}
