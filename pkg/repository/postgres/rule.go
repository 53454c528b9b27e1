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

const ruleColumns = `id, type, title, content, jurisdiction, source, category, embedding::text, created_at`

type ruleRepository struct {
	db *pgxpool.Pool
}

func scanRule(row pgx.Row, extra ...any) (*model.Rule, error) {
	var (
		rule      model.Rule
		embedding *string
	)
	dest := append([]any{
		&rule.ID, &rule.Type, &rule.Title, &rule.Content, &rule.Jurisdiction, &rule.Source, &rule.Category, &embedding, &rule.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	vec, err := parseVector(embedding)
	if err != nil {
		return nil, err
	}
	rule.Embedding = vec
	return &rule, nil
}

func ruleTypeStrings(ruleTypes []types.RuleType) []string {
	values := make([]string, 0, len(ruleTypes))
	for _, t := range ruleTypes {
		values = append(values, string(t))
	}
	return values
}

func (r *ruleRepository) Put(ctx context.Context, rule *model.Rule) (*model.Rule, error) {
	id := rule.ID
	if id == "" {
		id = model.NewRuleID()
	}

	stored, err := scanRule(r.db.QueryRow(ctx, `
		INSERT INTO rules (id, type, title, content, jurisdiction, source, category, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, $9)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			jurisdiction = EXCLUDED.jurisdiction,
			source = EXCLUDED.source,
			category = EXCLUDED.category,
			embedding = EXCLUDED.embedding
		RETURNING `+ruleColumns,
		id, rule.Type, rule.Title, rule.Content, rule.Jurisdiction, rule.Source, rule.Category,
		nullableVector(rule.Embedding), time.Now().UTC()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert rule", goerr.V(model.RuleIDKey, id))
	}
	return stored, nil
}

func (r *ruleRepository) Get(ctx context.Context, id model.RuleID) (*model.Rule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "rule not found", goerr.V(model.RuleIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get rule", goerr.V(model.RuleIDKey, id))
	}
	return rule, nil
}

func (r *ruleRepository) List(ctx context.Context, ruleTypes []types.RuleType) ([]*model.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules`
	var args []any
	if len(ruleTypes) > 0 {
		query += ` WHERE type = ANY($1)`
		args = append(args, ruleTypeStrings(ruleTypes))
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query rules")
	}
	defer rows.Close()

	rules := make([]*model.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan rule")
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate rules")
	}

	return rules, nil
}

func (r *ruleRepository) FindSimilar(ctx context.Context, embedding []float32, filter model.RuleFilter) ([]*model.ScoredRule, error) {
	args := []any{formatVector(embedding)}
	query := `SELECT ` + ruleColumns + `, 1 - (embedding <=> $1::vector) AS similarity
		FROM rules
		WHERE embedding IS NOT NULL`
	if len(filter.Types) > 0 {
		args = append(args, ruleTypeStrings(filter.Types))
		query += fmt.Sprintf(` AND type = ANY($%d)`, len(args))
	}
	query += ` ORDER BY embedding <=> $1::vector`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query similar rules")
	}
	defer rows.Close()

	results := make([]*model.ScoredRule, 0)
	for rows.Next() {
		var similarity float64
		rule, err := scanRule(rows, &similarity)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan rule")
		}
		results = append(results, &model.ScoredRule{Rule: rule, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate similar rules")
	}

	return results, nil
}
