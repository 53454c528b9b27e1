package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func runMemoryBlockRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create fills case ID from the session", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)

		created, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{
			SessionID: s.ID,
			Type:      types.BlockTypeFact,
			Content:   "The deposit was $1,200.",
			Embedding: axisVector(0),
			Metadata:  model.Metadata{"category": "financial", "importance": 0.9},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, created.CaseID).Equal(c.ID)

		retrieved, err := repo.MemoryBlock().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Content).Equal("The deposit was $1,200.")
		gt.Value(t, retrieved.Type).Equal(types.BlockTypeFact)
		gt.Value(t, retrieved.Metadata.String("category")).Equal("financial")
		gt.Array(t, retrieved.Embedding).Length(testDim)
	})

	t.Run("Create keeps a caller supplied timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)
		at := time.Date(2024, 5, 31, 9, 30, 0, 0, time.UTC)

		created, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{
			SessionID: s.ID,
			Type:      types.BlockTypeFact,
			Content:   "Tenant returned the keys.",
			Embedding: axisVector(1),
			CreatedAt: at,
		})
		gt.NoError(t, err).Required()
		gt.Bool(t, created.CreatedAt.Equal(at)).True()
		gt.Bool(t, created.UpdatedAt.Equal(at)).True()

		retrieved, err := repo.MemoryBlock().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, retrieved.CreatedAt.Equal(at)).True()
	})

	t.Run("Create stamps a block without timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)

		created, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{
			SessionID: s.ID,
			Type:      types.BlockTypeFact,
			Content:   "Tenant returned the keys.",
			Embedding: axisVector(1),
		})
		gt.NoError(t, err).Required()
		gt.Bool(t, created.CreatedAt.IsZero()).False()
	})

	t.Run("Create with unknown session returns not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.MemoryBlock().Create(context.Background(), &model.MemoryBlock{
			SessionID: model.NewSessionID(),
			Type:      types.BlockTypeFact,
			Content:   "orphan",
		})
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("Update replaces content and metadata", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)

		created, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{
			SessionID: s.ID,
			Type:      types.BlockTypeQuestion,
			Content:   "When was the deposit paid?",
			Metadata:  model.Metadata{"answered": false},
		})
		gt.NoError(t, err).Required()

		created.Content = "When exactly was the deposit paid?"
		created.Metadata = model.Metadata{"answered": true}
		updated, err := repo.MemoryBlock().Update(ctx, created)
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Content).Equal("When exactly was the deposit paid?")
		gt.Value(t, updated.Metadata["answered"]).Equal(any(true))
	})

	t.Run("Update keeps a caller supplied timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)
		created, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{
			SessionID: s.ID,
			Type:      types.BlockTypeStrategy,
			Content:   "Send a demand letter first.",
			Metadata:  model.Metadata{"dependencies": []string{}},
			CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		})
		gt.NoError(t, err).Required()

		at := time.Date(2024, 6, 2, 14, 0, 0, 0, time.UTC)
		created.Content = "Send a demand letter by certified mail."
		created.UpdatedAt = at
		updated, err := repo.MemoryBlock().Update(ctx, created)
		gt.NoError(t, err).Required()
		gt.Bool(t, updated.UpdatedAt.Equal(at)).True()

		retrieved, err := repo.MemoryBlock().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, retrieved.UpdatedAt.Equal(at)).True()
	})

	t.Run("Delete removes the block", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)

		created, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{
			SessionID: s.ID,
			Type:      types.BlockTypeEvidence,
			Content:   "Receipt",
		})
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.MemoryBlock().Delete(ctx, created.ID)).Required()
		_, err = repo.MemoryBlock().Get(ctx, created.ID)
		gt.Error(t, err).Is(model.ErrNotFound)

		err = repo.MemoryBlock().Delete(ctx, created.ID)
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("ListBySession keeps creation order and filters by type", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)

		contents := []struct {
			blockType types.BlockType
			content   string
		}{
			{types.BlockTypeFact, "first"},
			{types.BlockTypeQuestion, "second"},
			{types.BlockTypeFact, "third"},
		}
		for _, item := range contents {
			_, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s.ID, Type: item.blockType, Content: item.content})
			gt.NoError(t, err).Required()
		}

		all, err := repo.MemoryBlock().ListBySession(ctx, s.ID, nil)
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(3)
		gt.Value(t, all[0].Content).Equal("first")
		gt.Value(t, all[2].Content).Equal("third")

		facts, err := repo.MemoryBlock().ListBySession(ctx, s.ID, []types.BlockType{types.BlockTypeFact})
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(2)
	})

	t.Run("ListByCase spans sessions newest first with limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)

		s1 := newTestSession(t, repo, c.ID)
		_, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s1.ID, Type: types.BlockTypeFact, Content: "old"})
		gt.NoError(t, err).Required()
		_, err = repo.Session().Complete(ctx, s1.ID, s1.StartedAt)
		gt.NoError(t, err).Required()

		s2 := newTestSession(t, repo, c.ID)
		_, err = repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s2.ID, Type: types.BlockTypeFact, Content: "new"})
		gt.NoError(t, err).Required()

		blocks, err := repo.MemoryBlock().ListByCase(ctx, c.ID, nil, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, blocks).Length(2)
		gt.Value(t, blocks[0].Content).Equal("new")
		gt.Value(t, blocks[1].Content).Equal("old")

		limited, err := repo.MemoryBlock().ListByCase(ctx, c.ID, nil, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, limited).Length(1)
		gt.Value(t, limited[0].Content).Equal("new")
	})

	t.Run("FindSimilar orders by similarity within scope", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)

		other := newTestCase(t, repo)
		otherSession := newTestSession(t, repo, other.ID)

		_, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s.ID, Type: types.BlockTypeFact, Content: "orthogonal", Embedding: axisVector(5)})
		gt.NoError(t, err).Required()
		_, err = repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s.ID, Type: types.BlockTypeFact, Content: "close", Embedding: axisVector(0, 0.5)})
		gt.NoError(t, err).Required()
		_, err = repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s.ID, Type: types.BlockTypeFact, Content: "exact", Embedding: axisVector(0)})
		gt.NoError(t, err).Required()
		_, err = repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: otherSession.ID, Type: types.BlockTypeFact, Content: "other case", Embedding: axisVector(0)})
		gt.NoError(t, err).Required()

		results, err := repo.MemoryBlock().FindSimilar(ctx, axisVector(0), model.BlockFilter{
			Scope: model.CaseScope(c.ID),
			Limit: 2,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(2)
		gt.Value(t, results[0].Block.Content).Equal("exact")
		gt.Value(t, results[1].Block.Content).Equal("close")
		gt.Bool(t, results[0].Similarity >= results[1].Similarity).True()
		gt.Bool(t, results[0].Similarity > 0.99).True()
	})

	t.Run("FindSimilar filters by type and session", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		s := newTestSession(t, repo, c.ID)

		_, err := repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s.ID, Type: types.BlockTypeFact, Content: "fact", Embedding: axisVector(0)})
		gt.NoError(t, err).Required()
		_, err = repo.MemoryBlock().Create(ctx, &model.MemoryBlock{SessionID: s.ID, Type: types.BlockTypeStrategy, Content: "strategy", Embedding: axisVector(0)})
		gt.NoError(t, err).Required()

		results, err := repo.MemoryBlock().FindSimilar(ctx, axisVector(0), model.BlockFilter{
			Scope: model.SessionScope(s.ID),
			Types: []types.BlockType{types.BlockTypeStrategy},
			Limit: 10,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].Block.Content).Equal("strategy")
	})

	t.Run("FindSimilar rejects an ambiguous scope", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.MemoryBlock().FindSimilar(context.Background(), axisVector(0), model.BlockFilter{Limit: 5})
		gt.Error(t, err).Is(model.ErrValidation)
	})
}

func TestMemoryBlockRepository(t *testing.T) {
	runAllBackends(t, runMemoryBlockRepositoryTest)
}
