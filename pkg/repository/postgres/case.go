package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

const caseColumns = `id, owner_id, title, description, status, created_at, updated_at`

type caseRepository struct {
	db *pgxpool.Pool
}

func scanCase(row pgx.Row) (*model.Case, error) {
	var c model.Case
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Description, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = c.Status.Normalize()
	return &c, nil
}

func (r *caseRepository) Create(ctx context.Context, c *model.Case) (*model.Case, error) {
	created := *c
	if created.ID == "" {
		created.ID = model.NewCaseID()
	}
	created.Status = created.Status.Normalize()
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		created.ID, created.OwnerID, created.Title, created.Description, created.Status, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(model.ErrConflict, "case already exists", goerr.V(model.CaseIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to insert case", goerr.V(model.CaseIDKey, created.ID))
	}

	return &created, nil
}

func (r *caseRepository) Get(ctx context.Context, id model.CaseID) (*model.Case, error) {
	c, err := scanCase(r.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.CaseIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, id))
	}
	return c, nil
}

func (r *caseRepository) List(ctx context.Context) ([]*model.Case, error) {
	rows, err := r.db.Query(ctx, `SELECT `+caseColumns+` FROM cases ORDER BY created_at, id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query cases")
	}
	defer rows.Close()

	cases := make([]*model.Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan case")
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate cases")
	}

	return cases, nil
}

func (r *caseRepository) Update(ctx context.Context, c *model.Case) (*model.Case, error) {
	updated, err := scanCase(r.db.QueryRow(ctx, `
		UPDATE cases
		SET owner_id = $2, title = $3, description = $4, status = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+caseColumns,
		c.ID, c.OwnerID, c.Title, c.Description, c.Status.Normalize(), time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.CaseIDKey, c.ID))
		}
		return nil, goerr.Wrap(err, "failed to update case", goerr.V(model.CaseIDKey, c.ID))
	}
	return updated, nil
}
