package postgres

import (
	"context"
	"errors"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

const agentRunColumns = `id, case_id, invocation_id, stage, status, reasoning, result, error, error_kind, attempts, created_at, started_at, completed_at`

type agentRunRepository struct {
	db *pgxpool.Pool
}

func scanAgentRun(row pgx.Row) (*model.AgentRun, error) {
	var (
		run    model.AgentRun
		result map[string]any
	)
	if err := row.Scan(
		&run.ID, &run.CaseID, &run.InvocationID, &run.Stage, &run.Status,
		&run.Reasoning, &result, &run.Error, &run.ErrorKind, &run.Attempts,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt,
	); err != nil {
		return nil, err
	}
	run.Result = model.StageResult(result)
	return &run, nil
}

func resultArg(result model.StageResult) any {
	if result == nil {
		return nil
	}
	return map[string]any(result)
}

func (r *agentRunRepository) Create(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error) {
	created := run.Copy()
	if created.ID == "" {
		created.ID = model.NewAgentRunID()
	}
	if created.Reasoning == nil {
		created.Reasoning = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO agent_runs (`+agentRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		created.ID, created.CaseID, created.InvocationID, created.Stage, created.Status,
		created.Reasoning, resultArg(created.Result), created.Error, created.ErrorKind, created.Attempts,
		created.CreatedAt, created.StartedAt, created.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(model.ErrConflict, "agent run already exists", goerr.V(model.RunIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to insert agent run", goerr.V(model.RunIDKey, created.ID))
	}

	return created, nil
}

func (r *agentRunRepository) Get(ctx context.Context, id model.AgentRunID) (*model.AgentRun, error) {
	run, err := scanAgentRun(r.db.QueryRow(ctx, `SELECT `+agentRunColumns+` FROM agent_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get agent run", goerr.V(model.RunIDKey, id))
	}
	return run, nil
}

func (r *agentRunRepository) Update(ctx context.Context, run *model.AgentRun) (*model.AgentRun, error) {
	updated, err := scanAgentRun(r.db.QueryRow(ctx, `
		UPDATE agent_runs
		SET status = $2, result = $3, error = $4, error_kind = $5, attempts = $6,
			started_at = $7, completed_at = $8
		WHERE id = $1
		RETURNING `+agentRunColumns,
		run.ID, run.Status, resultArg(run.Result), run.Error, run.ErrorKind, run.Attempts,
		run.StartedAt, run.CompletedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, run.ID))
		}
		return nil, goerr.Wrap(err, "failed to update agent run", goerr.V(model.RunIDKey, run.ID))
	}
	return updated, nil
}

func (r *agentRunRepository) AppendReasoning(ctx context.Context, id model.AgentRunID, text string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE agent_runs SET reasoning = array_append(reasoning, $2) WHERE id = $1`, id, text)
	if err != nil {
		return goerr.Wrap(err, "failed to append reasoning", goerr.V(model.RunIDKey, id))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(model.ErrNotFound, "agent run not found", goerr.V(model.RunIDKey, id))
	}
	return nil
}

func (r *agentRunRepository) ListByCase(ctx context.Context, caseID model.CaseID) ([]*model.AgentRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+agentRunColumns+` FROM agent_runs WHERE case_id = $1 ORDER BY created_at, seq`, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query agent runs", goerr.V(model.CaseIDKey, caseID))
	}
	defer rows.Close()

	runs := make([]*model.AgentRun, 0)
	for rows.Next() {
		run, err := scanAgentRun(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan agent run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate agent runs")
	}

	return runs, nil
}
