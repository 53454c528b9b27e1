package postgres

import (
	"context"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

const messageColumns = `id, case_id, role, content, context_used, created_at`

type conversationRepository struct {
	db *pgxpool.Pool
}

func scanMessage(row pgx.Row) (*model.ConversationMessage, error) {
	var m model.ConversationMessage
	var used []string
	if err := row.Scan(&m.ID, &m.CaseID, &m.Role, &m.Content, &used, &m.CreatedAt); err != nil {
		return nil, err
	}
	for _, t := range used {
		m.ContextUsed = append(m.ContextUsed, types.BlockType(t))
	}
	return &m, nil
}

func (r *conversationRepository) Append(ctx context.Context, msg *model.ConversationMessage) (*model.ConversationMessage, error) {
	created := *msg
	if created.ID == "" {
		created.ID = model.NewMessageID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		created.ID, created.CaseID, created.Role, created.Content, blockTypeStrings(created.ContextUsed), created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(model.ErrConflict, "message already exists", goerr.V("message_id", created.ID))
		}
		return nil, goerr.Wrap(err, "failed to insert message", goerr.V(model.CaseIDKey, created.CaseID))
	}
	return &created, nil
}

func (r *conversationRepository) query(ctx context.Context, caseID model.CaseID, sql string, args ...any) ([]*model.ConversationMessage, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query messages", goerr.V(model.CaseIDKey, caseID))
	}
	defer rows.Close()

	messages := make([]*model.ConversationMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate messages")
	}
	return messages, nil
}

func (r *conversationRepository) Recent(ctx context.Context, caseID model.CaseID, limit int) ([]*model.ConversationMessage, error) {
	if limit <= 0 {
		return r.query(ctx, caseID,
			`SELECT `+messageColumns+` FROM conversation_messages WHERE case_id = $1 ORDER BY seq`, caseID)
	}
	return r.query(ctx, caseID, `
		SELECT `+messageColumns+` FROM (
			SELECT seq, `+messageColumns+` FROM conversation_messages
			WHERE case_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq`, caseID, limit)
}

func (r *conversationRepository) List(ctx context.Context, caseID model.CaseID, limit, offset int) ([]*model.ConversationMessage, error) {
	if limit <= 0 {
		return r.query(ctx, caseID, `
			SELECT `+messageColumns+` FROM conversation_messages
			WHERE case_id = $1 ORDER BY seq DESC OFFSET $2`, caseID, offset)
	}
	return r.query(ctx, caseID, `
		SELECT `+messageColumns+` FROM conversation_messages
		WHERE case_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`, caseID, limit, offset)
}

func (r *conversationRepository) DeleteByCase(ctx context.Context, caseID model.CaseID) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversation_messages WHERE case_id = $1`, caseID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete messages", goerr.V(model.CaseIDKey, caseID))
	}
	return int(tag.RowsAffected()), nil
}
