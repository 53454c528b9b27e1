package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

// Postgres implements interfaces.Repository on PostgreSQL with the pgvector extension
type Postgres struct {
	pool         *pgxpool.Pool
	caseRepo     *caseRepository
	session      *sessionRepository
	memoryBlock  *memoryBlockRepository
	rule         *ruleRepository
	agentRun     *agentRunRepository
	document     *documentRepository
	conversation *conversationRepository
}

var _ interfaces.Repository = &Postgres{}

func New(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to connect to postgres")
	}

	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool. Close releases the pool.
func NewWithPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:         pool,
		caseRepo:     &caseRepository{db: pool},
		session:      &sessionRepository{db: pool},
		memoryBlock:  &memoryBlockRepository{db: pool},
		rule:         &ruleRepository{db: pool},
		agentRun:     &agentRunRepository{db: pool},
		document:     &documentRepository{db: pool},
		conversation: &conversationRepository{db: pool},
	}
}

func (p *Postgres) Case() interfaces.CaseRepository {
	return p.caseRepo
}

func (p *Postgres) Session() interfaces.SessionRepository {
	return p.session
}

func (p *Postgres) MemoryBlock() interfaces.MemoryBlockRepository {
	return p.memoryBlock
}

func (p *Postgres) Rule() interfaces.RuleRepository {
	return p.rule
}

func (p *Postgres) AgentRun() interfaces.AgentRunRepository {
	return p.agentRun
}

func (p *Postgres) Document() interfaces.DocumentRepository {
	return p.document
}

func (p *Postgres) Conversation() interfaces.ConversationRepository {
	return p.conversation
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// formatVector renders an embedding as a pgvector literal
func formatVector(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(embedding))
	for _, v := range embedding {
		parts = append(parts, strconv.FormatFloat(float64(v), 'f', 6, 32))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// nullableVector returns nil for an empty embedding so the column stays NULL
func nullableVector(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return formatVector(embedding)
}

// parseVector reads the text form of a pgvector value
func parseVector(text *string) ([]float32, error) {
	if text == nil {
		return nil, nil
	}
	trimmed := strings.Trim(strings.TrimSpace(*text), "[]")
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid vector component", goerr.V("value", p))
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
