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

func appendTurns(t *testing.T, repo interfaces.Repository, caseID model.CaseID, contents ...string) []*model.ConversationMessage {
	t.Helper()
	base := time.Now().UTC().Truncate(time.Millisecond)
	var result []*model.ConversationMessage
	for i, content := range contents {
		role := types.MessageRoleUser
		if i%2 == 1 {
			role = types.MessageRoleAssistant
		}
		m, err := repo.Conversation().Append(context.Background(), &model.ConversationMessage{
			CaseID:    caseID,
			Role:      role,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		gt.NoError(t, err).Required()
		result = append(result, m)
	}
	return result
}

func contentsOf(msgs []*model.ConversationMessage) []string {
	result := make([]string, len(msgs))
	for i, m := range msgs {
		result[i] = m.Content
	}
	return result
}

func runConversationRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Append assigns an ID and keeps context types", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)

		created, err := repo.Conversation().Append(ctx, &model.ConversationMessage{
			CaseID:      c.ID,
			Role:        types.MessageRoleAssistant,
			Content:     "Gather the receipts.",
			ContextUsed: []types.BlockType{types.BlockTypeFact, types.BlockTypeEvidence},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).NotEqual(model.MessageID(""))
		gt.Bool(t, created.CreatedAt.IsZero()).False()

		got, err := repo.Conversation().Recent(ctx, c.ID, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(1).Required()
		gt.Value(t, got[0].ID).Equal(created.ID)
		gt.Value(t, got[0].Role).Equal(types.MessageRoleAssistant)
		gt.Value(t, got[0].ContextUsed).Equal([]types.BlockType{types.BlockTypeFact, types.BlockTypeEvidence})
	})

	t.Run("Append rejects a repeated ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)

		id := model.NewMessageID()
		_, err := repo.Conversation().Append(ctx, &model.ConversationMessage{ID: id, CaseID: c.ID, Role: types.MessageRoleUser, Content: "a"})
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Append(ctx, &model.ConversationMessage{ID: id, CaseID: c.ID, Role: types.MessageRoleUser, Content: "b"})
		gt.Error(t, err).Is(model.ErrConflict)
	})

	t.Run("Recent returns the latest messages oldest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		appendTurns(t, repo, c.ID, "q1", "a1", "q2", "a2", "q3")

		got, err := repo.Conversation().Recent(ctx, c.ID, 3)
		gt.NoError(t, err).Required()
		gt.Value(t, contentsOf(got)).Equal([]string{"q2", "a2", "q3"})

		got, err = repo.Conversation().Recent(ctx, c.ID, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(5)
	})

	t.Run("List pages newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)
		appendTurns(t, repo, c.ID, "q1", "a1", "q2", "a2", "q3")

		got, err := repo.Conversation().List(ctx, c.ID, 2, 0)
		gt.NoError(t, err).Required()
		gt.Value(t, contentsOf(got)).Equal([]string{"q3", "a2"})

		got, err = repo.Conversation().List(ctx, c.ID, 2, 4)
		gt.NoError(t, err).Required()
		gt.Value(t, contentsOf(got)).Equal([]string{"q1"})

		got, err = repo.Conversation().List(ctx, c.ID, 2, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(0)
	})

	t.Run("DeleteByCase only touches one case", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		first := newTestCase(t, repo)
		second := newTestCase(t, repo)
		appendTurns(t, repo, first.ID, "q1", "a1", "q2")
		appendTurns(t, repo, second.ID, "other")

		n, err := repo.Conversation().DeleteByCase(ctx, first.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, n).Equal(3)

		got, err := repo.Conversation().Recent(ctx, first.ID, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(0)

		got, err = repo.Conversation().Recent(ctx, second.ID, 0)
		gt.NoError(t, err).Required()
		gt.Value(t, contentsOf(got)).Equal([]string{"other"})
	})
}

func TestConversationRepository(t *testing.T) {
	runAllBackends(t, runConversationRepositoryTest)
}
