package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

const memoryBlockColumns = `id, session_id, case_id, type, content, embedding::text, metadata, created_at, updated_at`

type memoryBlockRepository struct {
	db *pgxpool.Pool
}

func scanMemoryBlock(row pgx.Row, extra ...any) (*model.MemoryBlock, error) {
	var (
		b         model.MemoryBlock
		embedding *string
		metadata  map[string]any
	)
	dest := append([]any{
		&b.ID, &b.SessionID, &b.CaseID, &b.Type, &b.Content, &embedding, &metadata, &b.CreatedAt, &b.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	vec, err := parseVector(embedding)
	if err != nil {
		return nil, err
	}
	b.Embedding = vec
	b.Metadata = model.Metadata(metadata)
	if b.Metadata == nil {
		b.Metadata = model.Metadata{}
	}
	return &b, nil
}

func blockTypeStrings(blockTypes []types.BlockType) []string {
	values := make([]string, 0, len(blockTypes))
	for _, t := range blockTypes {
		values = append(values, string(t))
	}
	return values
}

func (r *memoryBlockRepository) Create(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error) {
	created := block.Copy()
	if created.ID == "" {
		created.ID = model.NewMemoryBlockID()
	}
	if created.Metadata == nil {
		created.Metadata = model.Metadata{}
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	if created.UpdatedAt.IsZero() {
		created.UpdatedAt = created.CreatedAt
	}

	// case_id is taken from the owning session when the caller leaves it empty
	row := r.db.QueryRow(ctx, `
		INSERT INTO memory_blocks (id, session_id, case_id, type, content, embedding, metadata, created_at, updated_at)
		SELECT $1, s.id, COALESCE(NULLIF($3, ''), s.case_id), $4, $5, $6::vector, $7, $8, $9
		FROM sessions s WHERE s.id = $2
		RETURNING case_id`,
		created.ID, created.SessionID, created.CaseID, created.Type, created.Content,
		nullableVector(created.Embedding), map[string]any(created.Metadata), created.CreatedAt, created.UpdatedAt)

	if err := row.Scan(&created.CaseID); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, created.SessionID))
		case isUniqueViolation(err):
			return nil, goerr.Wrap(model.ErrConflict, "memory block already exists", goerr.V(model.BlockIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to insert memory block", goerr.V(model.BlockIDKey, created.ID))
	}

	return created, nil
}

func (r *memoryBlockRepository) Get(ctx context.Context, id model.MemoryBlockID) (*model.MemoryBlock, error) {
	b, err := scanMemoryBlock(r.db.QueryRow(ctx, `SELECT `+memoryBlockColumns+` FROM memory_blocks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get memory block", goerr.V(model.BlockIDKey, id))
	}
	return b, nil
}

func (r *memoryBlockRepository) Update(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error) {
	metadata := block.Metadata.Clone()
	if metadata == nil {
		metadata = model.Metadata{}
	}
	updatedAt := block.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	b, err := scanMemoryBlock(r.db.QueryRow(ctx, `
		UPDATE memory_blocks
		SET content = $2,
			embedding = COALESCE($3::vector, embedding),
			metadata = $4,
			updated_at = $5
		WHERE id = $1
		RETURNING `+memoryBlockColumns,
		block.ID, block.Content, nullableVector(block.Embedding), map[string]any(metadata), updatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, block.ID))
		}
		return nil, goerr.Wrap(err, "failed to update memory block", goerr.V(model.BlockIDKey, block.ID))
	}
	return b, nil
}

func (r *memoryBlockRepository) Delete(ctx context.Context, id model.MemoryBlockID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM memory_blocks WHERE id = $1`, id)
	if err != nil {
		return goerr.Wrap(err, "failed to delete memory block", goerr.V(model.BlockIDKey, id))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, id))
	}
	return nil
}

func (r *memoryBlockRepository) ListBySession(ctx context.Context, sessionID model.SessionID, blockTypes []types.BlockType) ([]*model.MemoryBlock, error) {
	query := `SELECT ` + memoryBlockColumns + ` FROM memory_blocks WHERE session_id = $1`
	args := []any{sessionID}
	if len(blockTypes) > 0 {
		query += ` AND type = ANY($2)`
		args = append(args, blockTypeStrings(blockTypes))
	}
	query += ` ORDER BY seq`

	return r.list(ctx, query, args...)
}

func (r *memoryBlockRepository) ListByCase(ctx context.Context, caseID model.CaseID, blockTypes []types.BlockType, limit int) ([]*model.MemoryBlock, error) {
	query := `SELECT ` + memoryBlockColumns + ` FROM memory_blocks WHERE case_id = $1`
	args := []any{caseID}
	if len(blockTypes) > 0 {
		args = append(args, blockTypeStrings(blockTypes))
		query += fmt.Sprintf(` AND type = ANY($%d)`, len(args))
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	return r.list(ctx, query, args...)
}

func (r *memoryBlockRepository) list(ctx context.Context, query string, args ...any) ([]*model.MemoryBlock, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memory blocks")
	}
	defer rows.Close()

	blocks := make([]*model.MemoryBlock, 0)
	for rows.Next() {
		b, err := scanMemoryBlock(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory block")
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory blocks")
	}

	return blocks, nil
}

func (r *memoryBlockRepository) FindSimilar(ctx context.Context, embedding []float32, filter model.BlockFilter) ([]*model.ScoredBlock, error) {
	if !filter.Scope.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "search scope must name exactly one session or case")
	}

	args := []any{formatVector(embedding)}
	query := `SELECT ` + memoryBlockColumns + `, 1 - (embedding <=> $1::vector) AS similarity
		FROM memory_blocks
		WHERE embedding IS NOT NULL`
	if filter.Scope.SessionID != "" {
		args = append(args, filter.Scope.SessionID)
		query += fmt.Sprintf(` AND session_id = $%d`, len(args))
	} else {
		args = append(args, filter.Scope.CaseID)
		query += fmt.Sprintf(` AND case_id = $%d`, len(args))
	}
	if len(filter.Types) > 0 {
		args = append(args, blockTypeStrings(filter.Types))
		query += fmt.Sprintf(` AND type = ANY($%d)`, len(args))
	}
	query += ` ORDER BY embedding <=> $1::vector`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query similar memory blocks")
	}
	defer rows.Close()

	results := make([]*model.ScoredBlock, 0)
	for rows.Next() {
		var similarity float64
		b, err := scanMemoryBlock(rows, &similarity)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory block")
		}
		results = append(results, &model.ScoredBlock{Block: b, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate similar memory blocks")
	}

	return results, nil
}
