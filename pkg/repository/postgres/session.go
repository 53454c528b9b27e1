package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

const sessionColumns = `id, case_id, sequence, status, started_at, ended_at`

type sessionRepository struct {
	db *pgxpool.Pool
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	if err := row.Scan(&s.ID, &s.CaseID, &s.Sequence, &s.Status, &s.StartedAt, &s.EndedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreateActive serializes callers of the same case on a transaction-scoped
// advisory lock; the partial unique index backs it up.
func (r *sessionRepository) GetOrCreateActive(ctx context.Context, caseID model.CaseID, now time.Time) (*model.Session, bool, error) {
	var (
		result  *model.Session
		created bool
	)

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, caseID); err != nil {
			return goerr.Wrap(err, "failed to lock case sessions")
		}

		active, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE case_id = $1 AND status = $2`,
			caseID, types.SessionStatusActive))
		switch {
		case err == nil:
			result = active
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return goerr.Wrap(err, "failed to query active session")
		}

		session, err := scanSession(tx.QueryRow(ctx, `
			INSERT INTO sessions (id, case_id, sequence, status, started_at)
			SELECT $1, $2, COALESCE(MAX(sequence), 0) + 1, $3, $4
			FROM sessions WHERE case_id = $2
			RETURNING `+sessionColumns,
			model.NewSessionID(), caseID, types.SessionStatusActive, now.UTC()))
		if err != nil {
			return goerr.Wrap(err, "failed to insert session")
		}

		result, created = session, true
		return nil
	})
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to get or create active session", goerr.V(model.CaseIDKey, caseID))
	}

	return result, created, nil
}

func (r *sessionRepository) Get(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V(model.SessionIDKey, id))
	}
	return s, nil
}

func (r *sessionRepository) FindActive(ctx context.Context, caseID model.CaseID) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE case_id = $1 AND status = $2`,
		caseID, types.SessionStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to query active session", goerr.V(model.CaseIDKey, caseID))
	}
	return s, nil
}

func (r *sessionRepository) List(ctx context.Context, caseID model.CaseID) ([]*model.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE case_id = $1 ORDER BY sequence`, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query sessions", goerr.V(model.CaseIDKey, caseID))
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan session")
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate sessions")
	}

	return sessions, nil
}

func (r *sessionRepository) Complete(ctx context.Context, id model.SessionID, endedAt time.Time) (*model.Session, error) {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET status = $2, ended_at = $3
		WHERE id = $1 AND status = $4`,
		id, types.SessionStatusCompleted, endedAt.UTC(), types.SessionStatusActive)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to complete session", goerr.V(model.SessionIDKey, id))
	}
	return r.Get(ctx, id)
}

func (r *sessionRepository) Archive(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.IsActive() {
		return nil, goerr.Wrap(model.ErrValidation, "active session cannot be archived", goerr.V(model.SessionIDKey, id))
	}

	_, err = r.db.Exec(ctx, `UPDATE sessions SET status = $2 WHERE id = $1 AND status <> $3`,
		id, types.SessionStatusArchived, types.SessionStatusActive)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to archive session", goerr.V(model.SessionIDKey, id))
	}
	return r.Get(ctx, id)
}
