package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/async"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/m-mizutani/goerr/v2"
)

var (
	errPreempted = goerr.New("pre-empted by forced restart")
	errShutdown  = goerr.New("workflow interrupted by shutdown")
)

// WorkflowDeps are the collaborators of the orchestrator
type WorkflowDeps struct {
	Processors []interfaces.StageProcessor
	Cases      *CaseUseCase
	Sessions   *SessionUseCase
	Memory     *MemoryUseCase
	Retrieval  *RetrievalUseCase
	Publisher  interfaces.Publisher
	CaseLaw    interfaces.CaseLawSearcher
}

// RunOptions selects what a workflow invocation executes
type RunOptions struct {
	// Stage runs a single stage when set; the full pipeline otherwise
	Stage types.Stage
	// ForceRestart pre-empts an invocation already running for the case
	ForceRestart bool
}

// RunResult is the immediate answer to a workflow trigger
type RunResult struct {
	Status       string             `json:"status"`
	Message      string             `json:"message"`
	InvocationID model.InvocationID `json:"invocation_id"`
}

// WorkflowUseCase drives the five-stage pipeline of a case. At most one
// invocation runs per case; stages of an invocation run strictly in order.
type WorkflowUseCase struct {
	repo       interfaces.Repository
	processors map[types.Stage]interfaces.StageProcessor
	cases      *CaseUseCase
	sessions   *SessionUseCase
	memory     *MemoryUseCase
	retrieval  *RetrievalUseCase
	publisher  interfaces.Publisher
	caseLaw    interfaces.CaseLawSearcher
	config     WorkflowConfig
	now        func() time.Time

	mu       sync.Mutex
	inflight map[model.CaseID]*invocation
	wg       sync.WaitGroup

	activeRuns sync.Map // model.AgentRunID -> *activeRun
}

var _ interfaces.ReasoningLogger = &WorkflowUseCase{}

type invocation struct {
	id        model.InvocationID
	caseID    model.CaseID
	cancel    context.CancelCauseFunc
	done      chan struct{}
	preempted atomic.Bool
	previous  *invocation
}

type activeRun struct {
	caseID model.CaseID
	stage  types.Stage
	inv    *invocation
}

func NewWorkflowUseCase(repo interfaces.Repository, deps WorkflowDeps, cfg WorkflowConfig, now func() time.Time) *WorkflowUseCase {
	table := make(map[types.Stage]interfaces.StageProcessor, len(deps.Processors))
	for _, p := range deps.Processors {
		table[p.Stage()] = p
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &WorkflowUseCase{
		repo:       repo,
		processors: table,
		cases:      deps.Cases,
		sessions:   deps.Sessions,
		memory:     deps.Memory,
		retrieval:  deps.Retrieval,
		publisher:  publisher,
		caseLaw:    deps.CaseLaw,
		config:     cfg,
		now:        now,
		inflight:   make(map[model.CaseID]*invocation),
	}
}

// RunWorkflow starts an invocation in the background and returns immediately.
// Progress is observed through published events. A second trigger for a case
// with a running invocation fails with model.ErrConflict unless ForceRestart is set.
func (uc *WorkflowUseCase) RunWorkflow(ctx context.Context, caseID model.CaseID, opts RunOptions) (*RunResult, error) {
	c, stages, err := uc.prepare(ctx, caseID, opts)
	if err != nil {
		return nil, err
	}

	runCtx, inv, err := uc.acquire(ctx, caseID, opts.ForceRestart)
	if err != nil {
		return nil, err
	}

	uc.wg.Add(1)
	async.Go(runCtx, func(ctx context.Context) error {
		defer uc.wg.Done()
		return uc.execute(ctx, inv, c, stages)
	})

	msg := "workflow started"
	if opts.Stage != "" {
		msg = fmt.Sprintf("stage %s started", opts.Stage)
	}
	if inv.previous != nil {
		msg += " (previous run pre-empted)"
	}

	return &RunResult{
		Status:       "started",
		Message:      msg,
		InvocationID: inv.id,
	}, nil
}

// RunSync executes an invocation on the calling goroutine and returns the final state
func (uc *WorkflowUseCase) RunSync(ctx context.Context, caseID model.CaseID, opts RunOptions) (*model.WorkflowState, error) {
	c, stages, err := uc.prepare(ctx, caseID, opts)
	if err != nil {
		return nil, err
	}

	runCtx, inv, err := uc.acquire(ctx, caseID, opts.ForceRestart)
	if err != nil {
		return nil, err
	}

	uc.wg.Add(1)
	execErr := func() error {
		defer uc.wg.Done()
		return uc.execute(runCtx, inv, c, stages)
	}()
	if execErr != nil {
		return nil, execErr
	}

	return uc.GetStatus(context.WithoutCancel(ctx), caseID)
}

// GetStatus derives the workflow snapshot of a case from its run records
func (uc *WorkflowUseCase) GetStatus(ctx context.Context, caseID model.CaseID) (*model.WorkflowState, error) {
	if _, err := uc.repo.Case().Get(ctx, caseID); err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, caseID))
	}
	return uc.state(ctx, caseID)
}

// ListRuns returns the run records of a case in creation order
func (uc *WorkflowUseCase) ListRuns(ctx context.Context, caseID model.CaseID) ([]*model.AgentRun, error) {
	runs, err := uc.repo.AgentRun().ListByCase(ctx, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs", goerr.V(model.CaseIDKey, caseID))
	}
	return runs, nil
}

// IsRunning reports whether an invocation is in flight for the case in this process
func (uc *WorkflowUseCase) IsRunning(caseID model.CaseID) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.inflight[caseID]
	return ok
}

// Wait blocks until every dispatched invocation has returned
func (uc *WorkflowUseCase) Wait() {
	uc.wg.Wait()
}

// Shutdown cancels every in-flight invocation and waits for them until ctx ends
func (uc *WorkflowUseCase) Shutdown(ctx context.Context) error {
	uc.mu.Lock()
	for _, inv := range uc.inflight {
		inv.cancel(errShutdown)
	}
	uc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		uc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "workflow shutdown timed out")
	}
}

// LogReasoning appends a line to the reasoning trace of a run and notifies observers.
// Failures are logged and never interrupt the stage.
func (uc *WorkflowUseCase) LogReasoning(ctx context.Context, runID model.AgentRunID, text string) {
	if text == "" {
		return
	}
	logger := logging.From(ctx)

	if err := uc.repo.AgentRun().AppendReasoning(context.WithoutCancel(ctx), runID, text); err != nil {
		logger.Warn("failed to append reasoning", "run_id", runID, "error", err)
		return
	}

	v, ok := uc.activeRuns.Load(runID)
	if !ok {
		return
	}
	ar := v.(*activeRun)
	uc.publish(ctx, ar.inv, &model.Event{
		Type:      types.EventStageProgress,
		CaseID:    ar.caseID,
		Stage:     ar.stage,
		RunID:     runID,
		Status:    types.RunStatusRunning,
		Reasoning: text,
		Timestamp: uc.now(),
	})
}

func (uc *WorkflowUseCase) prepare(ctx context.Context, caseID model.CaseID, opts RunOptions) (*model.Case, []types.Stage, error) {
	stages := types.AllStages()
	if opts.Stage != "" {
		if !opts.Stage.IsValid() {
			return nil, nil, goerr.Wrap(model.ErrValidation, "unknown stage", goerr.V(model.StageKey, opts.Stage))
		}
		stages = []types.Stage{opts.Stage}
	}
	for _, stage := range stages {
		if _, ok := uc.processors[stage]; !ok {
			return nil, nil, goerr.Wrap(model.ErrValidation, "no processor registered for stage", goerr.V(model.StageKey, stage))
		}
	}

	c, err := uc.repo.Case().Get(ctx, caseID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, caseID))
	}
	return c, stages, nil
}

// acquire registers a new invocation for the case, pre-empting the current one when forced
func (uc *WorkflowUseCase) acquire(ctx context.Context, caseID model.CaseID, force bool) (context.Context, *invocation, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	current, running := uc.inflight[caseID]
	if running && !force {
		return nil, nil, goerr.Wrap(model.ErrConflict, "workflow already running",
			goerr.V(model.CaseIDKey, caseID),
			goerr.V("invocation_id", current.id))
	}

	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	inv := &invocation{
		id:     model.NewInvocationID(),
		caseID: caseID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if running {
		current.preempted.Store(true)
		current.cancel(errPreempted)
		inv.previous = current
		logging.From(ctx).Warn("pre-empting running workflow",
			"case_id", caseID,
			"invocation_id", current.id,
			"new_invocation_id", inv.id,
		)
	}

	uc.inflight[caseID] = inv
	return runCtx, inv, nil
}

func (uc *WorkflowUseCase) release(inv *invocation) {
	uc.mu.Lock()
	if uc.inflight[inv.caseID] == inv {
		delete(uc.inflight, inv.caseID)
	}
	uc.mu.Unlock()

	inv.cancel(nil)
	close(inv.done)
}

func (uc *WorkflowUseCase) execute(ctx context.Context, inv *invocation, c *model.Case, stages []types.Stage) error {
	defer uc.release(inv)

	logger := logging.From(ctx).With("case_id", c.ID, "invocation_id", inv.id)
	ctx = logging.With(ctx, logger)

	if inv.previous != nil {
		select {
		case <-inv.previous.done:
		case <-ctx.Done():
			return nil
		}
	}

	session, err := uc.sessions.GetOrCreateSession(ctx, c.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare session", goerr.V(model.CaseIDKey, c.ID))
	}
	if err := uc.caseStatus(ctx, c.ID, types.CaseStatusActive); err != nil {
		return err
	}

	prior, err := uc.priorResults(ctx, c.ID)
	if err != nil {
		return err
	}

	logger.Info("workflow started", "stages", stages, "session_id", session.ID)

	for _, stage := range stages {
		if ctx.Err() != nil {
			logger.Info("workflow cancelled before stage", "stage", stage, "cause", context.Cause(ctx))
			return nil
		}

		run, err := uc.runStage(ctx, inv, c, session.ID, stage, prior)
		if err != nil {
			return err
		}
		if run.Status == types.RunStatusFailed {
			logger.Warn("workflow halted", "stage", stage, "run_id", run.ID, "error", run.Error)
			uc.publishState(ctx, inv, c.ID)
			return nil
		}
		prior[stage] = run.Result
		uc.publishState(ctx, inv, c.ID)
	}

	state, err := uc.state(context.WithoutCancel(ctx), c.ID)
	if err != nil {
		return err
	}
	if state.Status == types.WorkflowStatusCompleted {
		if err := uc.caseStatus(ctx, c.ID, types.CaseStatusCompleted); err != nil {
			return err
		}
	}

	logger.Info("workflow finished", "status", state.Status, "progress", state.Progress)
	return nil
}

// runStage drives one stage through pending -> running -> terminal. The returned
// run is terminal; an error is returned only when bookkeeping itself fails.
func (uc *WorkflowUseCase) runStage(ctx context.Context, inv *invocation, c *model.Case, sessionID model.SessionID, stage types.Stage, prior map[types.Stage]model.StageResult) (*model.AgentRun, error) {
	logger := logging.From(ctx).With("stage", stage)
	ctx = logging.With(ctx, logger)
	store := context.WithoutCancel(ctx)

	run, err := uc.repo.AgentRun().Create(store, model.NewAgentRun(c.ID, inv.id, stage, uc.now()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create run", goerr.V(model.CaseIDKey, c.ID), goerr.V(model.StageKey, stage))
	}
	logger = logger.With("run_id", run.ID)
	ctx = logging.With(ctx, logger)

	if err := run.Transition(types.RunStatusRunning, uc.now()); err != nil {
		return nil, err
	}
	started, err := uc.repo.AgentRun().Update(store, run)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to start run", goerr.V(model.RunIDKey, run.ID))
	}
	run = started
	uc.publishRun(ctx, inv, types.EventStageStarted, run)
	logger.Info("stage started")

	uc.activeRuns.Store(run.ID, &activeRun{caseID: c.ID, stage: stage, inv: inv})
	defer uc.activeRuns.Delete(run.ID)

	input := &model.StageInput{
		Case:          c,
		SessionID:     sessionID,
		RunID:         run.ID,
		InvocationID:  inv.id,
		PriorResults:  copyResults(prior),
		MemoryContext: uc.memoryContext(ctx, c.ID),
	}

	output, attempts, stageErr := uc.callWithRetry(ctx, uc.processors[stage], input)
	run.Attempts = attempts

	switch {
	case stageErr != nil:
		cause := context.Cause(ctx)
		if ctx.Err() != nil && cause != nil {
			stageErr = cause
		}
		run.Error = stageErr.Error()
		run.ErrorKind = model.KindOf(stageErr)
		if err := run.Transition(types.RunStatusFailed, uc.now()); err != nil {
			return nil, err
		}
		logger.Warn("stage failed", "error", stageErr, "error_kind", run.ErrorKind, "attempt", attempts)

	case output.Skipped:
		run.Result = withSkipReason(output.Result, output.SkipReason)
		if err := run.Transition(types.RunStatusSkipped, uc.now()); err != nil {
			return nil, err
		}
		logger.Info("stage skipped", "reason", output.SkipReason)

	default:
		run.Result = output.Result
		if err := run.Transition(types.RunStatusCompleted, uc.now()); err != nil {
			return nil, err
		}
		logger.Info("stage completed", "attempt", attempts)
	}

	finished, err := uc.repo.AgentRun().Update(store, run)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record run result", goerr.V(model.RunIDKey, run.ID))
	}
	run = finished

	eventType := types.EventStageCompleted
	if run.Status == types.RunStatusFailed {
		eventType = types.EventStageFailed
	}
	uc.publishRun(ctx, inv, eventType, run)

	return run, nil
}

// callWithRetry calls the processor, retrying transient failures with backoff
func (uc *WorkflowUseCase) callWithRetry(ctx context.Context, proc interfaces.StageProcessor, input *model.StageInput) (*model.StageOutput, int, error) {
	env := interfaces.StageEnv{
		Memory:     uc.memory,
		Rules:      uc.retrieval,
		Reasoning:  uc,
		Documents:  uc.repo.Document(),
		CaseLaw:    uc.caseLaw,
		Precedents: uc.retrieval,
	}
	timeout := uc.config.TimeoutFor(proc.Stage())

	var output *model.StageOutput
	attempts, err := retry.Do(ctx, uc.config.Retry, retry.Options{
		Retryable: func(err error) bool {
			return ctx.Err() == nil && model.KindOf(err).IsRetryable()
		},
		OnRetry: func(a retry.Attempt) {
			logging.From(ctx).Warn("retrying stage",
				"attempt", a.Number,
				"wait", a.Wait,
				"error", a.Err,
			)
			uc.LogReasoning(ctx, input.RunID, fmt.Sprintf("attempt %d failed (%v), retrying in %s", a.Number, a.Err, a.Wait.Round(time.Millisecond)))
		},
	}, func(ctx context.Context, attempt int) error {
		out, err := callWithTimeout(ctx, proc, input, env, timeout)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return output, attempts, nil
}

type stageReturn struct {
	output *model.StageOutput
	err    error
}

// callWithTimeout runs one processor call under a wall-clock limit. On expiry the
// call's context is cancelled and the stage fails with model.ErrStageTimeout.
func callWithTimeout(ctx context.Context, proc interfaces.StageProcessor, input *model.StageInput, env interfaces.StageEnv, timeout time.Duration) (*model.StageOutput, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan stageReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- stageReturn{err: goerr.Wrap(model.ErrPermanentStage, "stage processor panicked",
					goerr.V(model.StageKey, proc.Stage()),
					goerr.V("panic", fmt.Sprint(r)))}
			}
		}()
		out, err := proc.Execute(stageCtx, input, env)
		ch <- stageReturn{output: out, err: err}
	}()

	var ret stageReturn
	select {
	case ret = <-ch:
	case <-stageCtx.Done():
	}

	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if stageCtx.Err() == context.DeadlineExceeded {
		return nil, goerr.Wrap(model.ErrStageTimeout, "stage exceeded its time limit",
			goerr.V(model.StageKey, proc.Stage()),
			goerr.V("timeout", timeout.String()))
	}
	if ret.err != nil {
		return nil, ret.err
	}
	if ret.output == nil {
		return nil, goerr.Wrap(model.ErrPermanentStage, "stage processor returned no output", goerr.V(model.StageKey, proc.Stage()))
	}
	if ret.output.Result == nil {
		ret.output.Result = model.StageResult{}
	}
	return ret.output, nil
}

func (uc *WorkflowUseCase) memoryContext(ctx context.Context, caseID model.CaseID) string {
	blocks, err := uc.memory.CaseContext(ctx, caseID, nil, 0)
	if err != nil {
		logging.From(ctx).Warn("failed to load memory context", "error", err)
		return ""
	}
	return uc.memory.FormatContext(blocks)
}

// priorResults collects the latest successful result of every stage from earlier invocations
func (uc *WorkflowUseCase) priorResults(ctx context.Context, caseID model.CaseID) (map[types.Stage]model.StageResult, error) {
	runs, err := uc.repo.AgentRun().ListByCase(ctx, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs", goerr.V(model.CaseIDKey, caseID))
	}

	prior := make(map[types.Stage]model.StageResult)
	for _, run := range runs {
		if run.Status.IsDone() {
			prior[run.Stage] = run.Result
		}
	}
	return prior, nil
}

func (uc *WorkflowUseCase) state(ctx context.Context, caseID model.CaseID) (*model.WorkflowState, error) {
	runs, err := uc.repo.AgentRun().ListByCase(ctx, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs", goerr.V(model.CaseIDKey, caseID))
	}
	return model.DeriveWorkflowState(caseID, runs), nil
}

func (uc *WorkflowUseCase) caseStatus(ctx context.Context, caseID model.CaseID, status types.CaseStatus) error {
	return uc.cases.setStatus(context.WithoutCancel(ctx), caseID, status)
}

// publish delivers ev unless the invocation was pre-empted
func (uc *WorkflowUseCase) publish(ctx context.Context, inv *invocation, ev *model.Event) {
	if inv != nil && inv.preempted.Load() {
		return
	}
	uc.publisher.Publish(ctx, ev)
}

func (uc *WorkflowUseCase) publishRun(ctx context.Context, inv *invocation, eventType types.EventType, run *model.AgentRun) {
	progress := 0
	if state, err := uc.state(context.WithoutCancel(ctx), run.CaseID); err == nil {
		progress = state.Progress
	}
	uc.publish(ctx, inv, model.NewStageEvent(eventType, run, progress, uc.now()))
}

func (uc *WorkflowUseCase) publishState(ctx context.Context, inv *invocation, caseID model.CaseID) {
	state, err := uc.state(context.WithoutCancel(ctx), caseID)
	if err != nil {
		logging.From(ctx).Warn("failed to derive workflow state", "error", err)
		return
	}
	uc.publish(ctx, inv, model.NewWorkflowEvent(state, uc.now()))
}

func copyResults(in map[types.Stage]model.StageResult) map[types.Stage]model.StageResult {
	out := make(map[types.Stage]model.StageResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func withSkipReason(result model.StageResult, reason string) model.StageResult {
	out := make(model.StageResult, len(result)+1)
	for k, v := range result {
		out[k] = v
	}
	if reason != "" {
		out["skip_reason"] = reason
	}
	return out
}
