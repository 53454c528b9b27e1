package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type agentRunRepository struct {
	mu   sync.RWMutex
	runs map[model.AgentRunID]*model.AgentRun
}

func newAgentRunRepository() *agentRunRepository {
	return &agentRunRepository{
		runs: make(map[model.AgentRunID]*model.AgentRun),
	}
}

func (r *agentRunRepository) Create(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := run.Copy()
	if created.ID == "" {
		created.ID = model.NewAgentRunID()
	}
	if _, exists := r.runs[created.ID]; exists {
		return nil, goerr.Wrap(model.ErrConflict, "agent run already exists", goerr.V(model.RunIDKey, created.ID))
	}

	r.runs[created.ID] = created
	return created.Copy(), nil
}

func (r *agentRunRepository) Get(ctx context.Context, id model.AgentRunID) (*model.AgentRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, exists := r.runs[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, id))
	}
	return run.Copy(), nil
}

func (r *agentRunRepository) Update(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.runs[run.ID]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, run.ID))
	}

	updated := run.Copy()
	updated.Reasoning = existing.Reasoning
	updated.CreatedAt = existing.CreatedAt

	r.runs[run.ID] = updated
	return updated.Copy(), nil
}

func (r *agentRunRepository) AppendReasoning(ctx context.Context, id model.AgentRunID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, exists := r.runs[id]
	if !exists {
		return goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, id))
	}
	run.Reasoning = append(run.Reasoning, text)
	return nil
}

func (r *agentRunRepository) ListByCase(ctx context.Context, caseID model.CaseID) ([]*model.AgentRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.AgentRun, 0)
	for _, run := range r.runs {
		if run.CaseID == caseID {
			result = append(result, run.Copy())
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
