package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func runsByStage(runs []*model.AgentRun) map[types.Stage]*model.AgentRun {
	m := make(map[types.Stage]*model.AgentRun)
	for _, r := range runs {
		m[r.Stage] = r
	}
	return m
}

func TestWorkflow_FullPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newCase(t, "My landlord kept my deposit")

	f.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		env.Reasoning.LogReasoning(ctx, input.RunID, "extracting facts")
		_, err := env.Memory.Create(ctx, input.SessionID, types.BlockTypeFact, "Deposit of $900 was withheld", nil)
		if err != nil {
			return nil, err
		}
		return model.Completed(model.StageResult{"facts_extracted": 1}), nil
	}
	f.processors[types.StageResearch].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		if input.Prior(types.StageIntake)["facts_extracted"] != 1 {
			return nil, goerr.Wrap(model.ErrPermanentStage, "intake result missing")
		}
		if input.MemoryContext == "" {
			return nil, goerr.Wrap(model.ErrPermanentStage, "intake writes not visible")
		}
		return model.Completed(model.StageResult{"rules_found": 0}), nil
	}

	state, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{})
	gt.NoError(t, err).Required()
	gt.Value(t, state.Status).Equal(types.WorkflowStatusCompleted)
	gt.Number(t, state.Progress).Equal(100)
	gt.Value(t, state.CompletedStages).Equal(types.AllStages())

	runs, err := f.uc.Workflow.ListRuns(ctx, c.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, runs).Length(types.StageCount)
	for i, run := range runs {
		gt.Value(t, run.Stage).Equal(types.AllStages()[i])
		gt.Value(t, run.Status).Equal(types.RunStatusCompleted)
		gt.Value(t, run.StartedAt).NotNil()
		gt.Value(t, run.CompletedAt).NotNil()
		gt.Number(t, run.Attempts).Equal(1)
	}
	gt.Value(t, runs[0].Reasoning).Equal([]string{"extracting facts"})

	updated, err := f.uc.Case.GetCase(ctx, c.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, updated.Status).Equal(types.CaseStatusCompleted)

	t.Run("events follow stage order", func(t *testing.T) {
		var stageEvents []*model.Event
		for _, ev := range f.publisher.Events() {
			if ev.Type == types.EventStageStarted || ev.Type == types.EventStageCompleted {
				stageEvents = append(stageEvents, ev)
			}
		}
		gt.Array(t, stageEvents).Length(2 * types.StageCount)
		for i, stage := range types.AllStages() {
			gt.Value(t, stageEvents[2*i].Type).Equal(types.EventStageStarted)
			gt.Value(t, stageEvents[2*i].Stage).Equal(stage)
			gt.Value(t, stageEvents[2*i+1].Type).Equal(types.EventStageCompleted)
			gt.Value(t, stageEvents[2*i+1].Stage).Equal(stage)
			gt.Number(t, stageEvents[2*i+1].Progress).Equal((i + 1) * 20)
		}

		progress := f.publisher.OfType(types.EventStageProgress)
		gt.Array(t, progress).Length(1)
		gt.Value(t, progress[0].Reasoning).Equal("extracting facts")

		updates := f.publisher.OfType(types.EventWorkflowUpdate)
		gt.Bool(t, len(updates) >= types.StageCount).True()
		gt.Value(t, updates[len(updates)-1].Workflow.Status).Equal(types.WorkflowStatusCompleted)
	})
}

func TestWorkflow_SkippedIntake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newCase(t, "")

	f.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		if !input.Case.HasDescription() {
			return model.Skipped("case has no description", model.StageResult{"facts_extracted": 0}), nil
		}
		return model.Completed(model.StageResult{}), nil
	}

	state, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{})
	gt.NoError(t, err).Required()

	runs, err := f.uc.Workflow.ListRuns(ctx, c.ID)
	gt.NoError(t, err).Required()
	byStage := runsByStage(runs)

	intake := byStage[types.StageIntake]
	gt.Value(t, intake.Status).Equal(types.RunStatusSkipped)
	gt.Value(t, intake.StartedAt).NotNil()
	gt.Value(t, intake.Result["facts_extracted"]).Equal(any(0))
	gt.Value(t, intake.Result["skip_reason"]).Equal(any("case has no description"))

	gt.Value(t, byStage[types.StageResearch].Status).Equal(types.RunStatusCompleted)
	gt.Number(t, f.processors[types.StageResearch].Calls()).Equal(1)

	gt.Value(t, state.Status).Equal(types.WorkflowStatusCompleted)
	gt.Value(t, state.SkippedStages).Equal([]types.Stage{types.StageIntake})
	gt.Number(t, state.Progress).Equal(100)
}

func TestWorkflow_FailureHaltsPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newCase(t, "description")

	f.processors[types.StageDocument].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		return nil, goerr.New("malformed model output")
	}

	state, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{})
	gt.NoError(t, err).Required()
	gt.Value(t, state.Status).Equal(types.WorkflowStatusFailed)
	gt.Value(t, state.CurrentStage).Equal(types.StageDocument)
	gt.Number(t, state.Progress).Equal(40)

	runs, err := f.uc.Workflow.ListRuns(ctx, c.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, runs).Length(3)

	failed := runs[2]
	gt.Value(t, failed.Status).Equal(types.RunStatusFailed)
	gt.Value(t, failed.ErrorKind).Equal(types.ErrorKindPermanentStage)
	gt.Number(t, failed.Attempts).Equal(1)
	gt.Number(t, f.processors[types.StageDocument].Calls()).Equal(1)
	gt.Number(t, f.processors[types.StageStrategy].Calls()).Equal(0)

	// earlier results are kept
	gt.Value(t, runs[0].Status).Equal(types.RunStatusCompleted)
	gt.Value(t, runs[1].Status).Equal(types.RunStatusCompleted)

	failedEvents := f.publisher.OfType(types.EventStageFailed)
	gt.Array(t, failedEvents).Length(1)
	gt.Value(t, failedEvents[0].Stage).Equal(types.StageDocument)
	gt.Value(t, failedEvents[0].ErrorKind).Equal(types.ErrorKindPermanentStage)

	updated, err := f.uc.Case.GetCase(ctx, c.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, updated.Status).Equal(types.CaseStatusActive)
}

func TestWorkflow_TransientRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		c := f.newCase(t, "description")

		var mu sync.Mutex
		failures := 2
		f.processors[types.StageResearch].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
			mu.Lock()
			defer mu.Unlock()
			if failures > 0 {
				failures--
				return nil, errors.New("429 too many requests")
			}
			return model.Completed(model.StageResult{"rules_found": 3}), nil
		}

		state, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, state.Status).Equal(types.WorkflowStatusCompleted)

		runs, err := f.uc.Workflow.ListRuns(ctx, c.ID)
		gt.NoError(t, err).Required()
		research := runsByStage(runs)[types.StageResearch]
		gt.Number(t, research.Attempts).Equal(3)
		gt.Array(t, research.Reasoning).Length(2)
	})

	t.Run("fails once attempts are exhausted", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		c := f.newCase(t, "description")

		f.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
			return nil, goerr.Wrap(model.ErrTransientService, "reasoning service unavailable")
		}

		state, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, state.Status).Equal(types.WorkflowStatusFailed)

		runs, err := f.uc.Workflow.ListRuns(ctx, c.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, runs).Length(1)
		gt.Value(t, runs[0].ErrorKind).Equal(types.ErrorKindTransientService)
		gt.Number(t, runs[0].Attempts).Equal(3)
		gt.Number(t, f.processors[types.StageIntake].Calls()).Equal(3)
	})
}

func TestWorkflow_StageTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Workflow.StageTimeouts = map[types.Stage]time.Duration{types.StageResearch: time.Second}
	f := newFixture(t, usecase.WithConfig(cfg))
	ctx := context.Background()
	c := f.newCase(t, "description")

	cancelled := make(chan struct{})
	f.processors[types.StageResearch].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		select {
		case <-time.After(5 * time.Second):
			return model.Completed(model.StageResult{}), nil
		case <-ctx.Done():
			close(cancelled)
			return nil, ctx.Err()
		}
	}

	start := time.Now()
	state, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{})
	gt.NoError(t, err).Required()
	gt.Bool(t, time.Since(start) < 4*time.Second).True()
	gt.Value(t, state.Status).Equal(types.WorkflowStatusFailed)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight call was not cancelled")
	}

	runs, err := f.uc.Workflow.ListRuns(ctx, c.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, runs).Length(2)
	gt.Value(t, runs[1].Status).Equal(types.RunStatusFailed)
	gt.Value(t, runs[1].ErrorKind).Equal(types.ErrorKindTimeout)
	gt.Number(t, runs[1].Attempts).Equal(1)
	gt.Number(t, f.processors[types.StageDocument].Calls()).Equal(0)
}

func TestWorkflow_SingleFlight(t *testing.T) {
	t.Run("concurrent triggers yield one run and one conflict", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		c := f.newCase(t, "description")

		release := make(chan struct{})
		f.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return model.Completed(model.StageResult{}), nil
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		results := make([]*usecase.RunResult, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = f.uc.Workflow.RunWorkflow(ctx, c.ID, usecase.RunOptions{})
			}(i)
		}
		wg.Wait()

		started, conflicts := 0, 0
		for i := range errs {
			switch {
			case errs[i] == nil:
				started++
				gt.Value(t, results[i].Status).Equal("started")
			case errors.Is(errs[i], model.ErrConflict):
				conflicts++
			}
		}
		gt.Number(t, started).Equal(1)
		gt.Number(t, conflicts).Equal(1)
		gt.Bool(t, f.uc.Workflow.IsRunning(c.ID)).True()

		close(release)
		f.uc.Workflow.Wait()
		gt.Bool(t, f.uc.Workflow.IsRunning(c.ID)).False()

		state, err := f.uc.Workflow.GetStatus(ctx, c.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, state.Status).Equal(types.WorkflowStatusCompleted)
	})

	t.Run("different cases run concurrently", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		a := f.newCase(t, "a")
		b := f.newCase(t, "b")

		_, err := f.uc.Workflow.RunWorkflow(ctx, a.ID, usecase.RunOptions{})
		gt.NoError(t, err).Required()
		_, err = f.uc.Workflow.RunWorkflow(ctx, b.ID, usecase.RunOptions{})
		gt.NoError(t, err).Required()
		f.uc.Workflow.Wait()

		for _, id := range []model.CaseID{a.ID, b.ID} {
			state, err := f.uc.Workflow.GetStatus(ctx, id)
			gt.NoError(t, err).Required()
			gt.Value(t, state.Status).Equal(types.WorkflowStatusCompleted)
		}
	})

	t.Run("force restart pre-empts the running invocation", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		c := f.newCase(t, "description")

		entered := make(chan struct{}, 2)
		var mu sync.Mutex
		calls := 0
		f.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			entered <- struct{}{}
			if first {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return model.Completed(model.StageResult{}), nil
		}

		firstRun, err := f.uc.Workflow.RunWorkflow(ctx, c.ID, usecase.RunOptions{})
		gt.NoError(t, err).Required()
		<-entered

		_, err = f.uc.Workflow.RunWorkflow(ctx, c.ID, usecase.RunOptions{})
		gt.Error(t, err).Is(model.ErrConflict)

		secondRun, err := f.uc.Workflow.RunWorkflow(ctx, c.ID, usecase.RunOptions{ForceRestart: true})
		gt.NoError(t, err).Required()
		gt.Value(t, secondRun.InvocationID).NotEqual(firstRun.InvocationID)
		f.uc.Workflow.Wait()

		runs, err := f.uc.Workflow.ListRuns(ctx, c.ID)
		gt.NoError(t, err).Required()

		var preempted []*model.AgentRun
		for _, run := range runs {
			if run.InvocationID == firstRun.InvocationID {
				preempted = append(preempted, run)
			}
		}
		gt.Array(t, preempted).Length(1)
		gt.Value(t, preempted[0].Status).Equal(types.RunStatusFailed)
		gt.Value(t, preempted[0].Error).Equal("pre-empted by forced restart")

		for _, ev := range f.publisher.OfType(types.EventStageFailed) {
			gt.Value(t, ev.RunID).NotEqual(preempted[0].ID)
		}

		state, err := f.uc.Workflow.GetStatus(ctx, c.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, state.InvocationID).Equal(secondRun.InvocationID)
		gt.Value(t, state.Status).Equal(types.WorkflowStatusCompleted)
	})
}

func TestWorkflow_SingleStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newCase(t, "description")

	_, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{})
	gt.NoError(t, err).Required()

	var seen model.StageResult
	f.processors[types.StageStrategy].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		seen = input.Prior(types.StageResearch)
		return model.Completed(model.StageResult{"legal_arguments_created": 2}), nil
	}

	state, err := f.uc.Workflow.RunSync(ctx, c.ID, usecase.RunOptions{Stage: types.StageStrategy})
	gt.NoError(t, err).Required()
	gt.Value(t, seen["stage"]).Equal(any("research"))
	gt.Number(t, f.processors[types.StageIntake].Calls()).Equal(1)
	gt.Number(t, f.processors[types.StageStrategy].Calls()).Equal(2)
	gt.Value(t, state.Status).Equal(types.WorkflowStatusCompleted)

	_, err = f.uc.Workflow.RunWorkflow(ctx, c.ID, usecase.RunOptions{Stage: "appeal"})
	gt.Error(t, err).Is(model.ErrValidation)
}

func TestWorkflow_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Workflow.RunWorkflow(context.Background(), model.NewCaseID(), usecase.RunOptions{})
	gt.Error(t, err).Is(model.ErrNotFound)

	_, err = f.uc.Workflow.GetStatus(context.Background(), model.NewCaseID())
	gt.Error(t, err).Is(model.ErrNotFound)

	c := f.newCase(t, "")
	state, err := f.uc.Workflow.GetStatus(context.Background(), c.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, state.Status).Equal(types.WorkflowStatusIdle)
	gt.Number(t, state.Progress).Equal(0)
}

func TestWorkflow_Shutdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newCase(t, "description")

	entered := make(chan struct{})
	f.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.uc.Workflow.RunWorkflow(ctx, c.ID, usecase.RunOptions{})
	gt.NoError(t, err).Required()
	<-entered

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	gt.NoError(t, f.uc.Workflow.Shutdown(shutdownCtx))

	state, err := f.uc.Workflow.GetStatus(ctx, c.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, state.Status).Equal(types.WorkflowStatusFailed)
	gt.Value(t, state.Error).Equal("workflow interrupted by shutdown")
}
