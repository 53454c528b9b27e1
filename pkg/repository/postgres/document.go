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

const documentColumns = `id, case_id, kind, type, filename, content, version, run_id, created_at`

type documentRepository struct {
	db *pgxpool.Pool
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(&d.ID, &d.CaseID, &d.Kind, &d.Type, &d.Filename, &d.Content, &d.Version, &d.RunID, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	created := *doc
	if created.ID == "" {
		created.ID = model.NewDocumentID()
	}
	if created.Version == 0 {
		created.Version = 1
	}
	created.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		created.ID, created.CaseID, created.Kind, created.Type, created.Filename, created.Content, created.Version, created.RunID, created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(model.ErrConflict, "document already exists", goerr.V("document_id", created.ID))
		}
		return nil, goerr.Wrap(err, "failed to insert document", goerr.V("document_id", created.ID))
	}

	return &created, nil
}

func (r *documentRepository) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("document_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get document", goerr.V("document_id", id))
	}
	return d, nil
}

func (r *documentRepository) ListByCase(ctx context.Context, caseID model.CaseID, kind types.DocumentKind) ([]*model.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE case_id = $1 AND kind = $2 ORDER BY seq`, caseID, kind)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query documents", goerr.V(model.CaseIDKey, caseID))
	}
	defer rows.Close()

	docs := make([]*model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan document")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate documents")
	}

	return docs, nil
}
