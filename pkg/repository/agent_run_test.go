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

func runAgentRunRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Update keeps reasoning appended concurrently", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)

		run := model.NewAgentRun(c.ID, model.NewInvocationID(), types.StageIntake, time.Now().UTC())
		created, err := repo.AgentRun().Create(ctx, run)
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.AgentRun().AppendReasoning(ctx, created.ID, "reading description")).Required()
		gt.NoError(t, repo.AgentRun().AppendReasoning(ctx, created.ID, "reading description")).Required()

		gt.NoError(t, created.Transition(types.RunStatusRunning, time.Now().UTC())).Required()
		gt.NoError(t, created.Transition(types.RunStatusCompleted, time.Now().UTC())).Required()
		created.Result = model.StageResult{"dispute_type": "contract"}
		created.Attempts = 1

		updated, err := repo.AgentRun().Update(ctx, created)
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Status).Equal(types.RunStatusCompleted)
		gt.Value(t, updated.Result.String("dispute_type")).Equal("contract")
		gt.Array(t, updated.Reasoning).Length(2)
		gt.Value(t, updated.StartedAt).NotNil()
		gt.Value(t, updated.CompletedAt).NotNil()
	})

	t.Run("AppendReasoning on unknown run returns not found", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.AgentRun().AppendReasoning(context.Background(), model.NewAgentRunID(), "x")
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("ListByCase orders runs by creation time", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newTestCase(t, repo)

		invocation := model.NewInvocationID()
		base := time.Now().UTC()
		for i, stage := range types.AllStages() {
			_, err := repo.AgentRun().Create(ctx, model.NewAgentRun(c.ID, invocation, stage, base.Add(time.Duration(i)*time.Millisecond)))
			gt.NoError(t, err).Required()
		}

		runs, err := repo.AgentRun().ListByCase(ctx, c.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, runs).Length(types.StageCount)
		for i, stage := range types.AllStages() {
			gt.Value(t, runs[i].Stage).Equal(stage)
		}
	})
}

func TestAgentRunRepository(t *testing.T) {
	runAllBackends(t, runAgentRunRepositoryTest)
}
